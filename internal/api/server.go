package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/sameday/internal/dataset"
	"github.com/lox/sameday/internal/history"
	"github.com/lox/sameday/internal/imagegen"
	"github.com/lox/sameday/internal/ingest"
	"github.com/lox/sameday/internal/metrics"
	"github.com/lox/sameday/internal/models"
)

type Server struct {
	cache      *dataset.Cache
	port       string
	tmpl       *template.Template
	imageCache *imagegen.Cache
	imageGen   *imagegen.Generator
	cards      *imagegen.CardCache
	genMu      sync.Mutex // Prevents concurrent generation of the same banner

	mu     sync.Mutex
	upload []byte // nil while the default file is in use
}

func NewServer(cache *dataset.Cache, port, imageDir string) *Server {
	// Banner generation is optional; without an API key only cached banners are served.
	var imageGen *imagegen.Generator
	if gen, err := imagegen.NewGenerator(imagegen.GeneratorConfigFromEnv()); err != nil {
		log.Printf("api: banner generation disabled: %v", err)
	} else {
		imageGen = gen
	}

	return &Server{
		cache:      cache,
		port:       port,
		tmpl:       newTemplates(),
		imageCache: imagegen.NewCache(imageDir),
		imageGen:   imageGen,
		cards:      imagegen.NewCardCache(10 * time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/reset", s.handleReset)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/card.png", s.handleCard)
	mux.HandleFunc("/banner/", s.handleBanner)
	mux.HandleFunc("/api/dataset", s.handleAPIDataset)
	mux.HandleFunc("/api/compare", s.handleAPICompare)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// loadTable returns the table for the active source and whether that
// source is an upload.
func (s *Server) loadTable() (*models.Table, bool, error) {
	s.mu.Lock()
	raw := s.upload
	s.mu.Unlock()

	t, err := s.cache.Load(raw)
	return t, raw != nil, err
}

func (s *Server) setUpload(raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upload = raw
}

func compare(t *models.Table, date time.Time) (*models.Comparison, error) {
	c, err := history.Compare(t, date)
	switch {
	case err == nil:
		metrics.ComparisonsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, history.ErrNoHistoricalData):
		metrics.ComparisonsTotal.WithLabelValues("no_historical_data").Inc()
	case errors.Is(err, history.ErrNoExactMatch):
		metrics.ComparisonsTotal.WithLabelValues("no_exact_match").Inc()
	default:
		metrics.ComparisonsTotal.WithLabelValues("error").Inc()
	}
	return c, err
}

// errBadDate marks a date parameter that could not be parsed.
var errBadDate = errors.New("invalid date")

// errNoValidDays means the table loaded but no row has an average, so there
// is no date to pick.
var errNoValidDays = errors.New("no days with an average temperature")

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: want YYYY-MM-DD", errBadDate, s)
	}
	return d, nil
}

// errorStatus maps a load or comparison failure to an HTTP status and a
// message suitable for showing to the user.
func errorStatus(err error, date time.Time) (int, string) {
	var pe *ingest.ParseError
	switch {
	case errors.Is(err, errBadDate):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ingest.ErrNoSource):
		return http.StatusServiceUnavailable, "No data file is available. Upload a station CSV to get started."
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity, fmt.Sprintf("The data file could not be read: %v", pe.Err)
	case errors.Is(err, errNoValidDays):
		return http.StatusUnprocessableEntity, "The data file has no days with an average temperature."
	case errors.Is(err, dataset.ErrEmpty):
		return http.StatusUnprocessableEntity, "The data file contains no usable rows."
	case errors.Is(err, history.ErrNoHistoricalData):
		return http.StatusNotFound, fmt.Sprintf("There are no records for %s in any year.", date.Format("January 2"))
	case errors.Is(err, history.ErrNoExactMatch):
		return http.StatusNotFound, fmt.Sprintf("There is no data for %s. Please choose another date.", date.Format("January 2, 2006"))
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	resp := map[string]any{
		"default_source": s.cache.DefaultPath(),
		"banners":        s.imageCache.List(),
	}

	t, uploaded, err := s.loadTable()
	if err != nil {
		resp["status"] = "error"
		resp["error"] = err.Error()
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(resp)
		return
	}

	resp["status"] = "ok"
	resp["rows"] = t.Len()
	resp["uploaded"] = uploaded
	json.NewEncoder(w).Encode(resp)
}
