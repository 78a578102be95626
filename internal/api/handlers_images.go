package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lox/sameday/internal/imagegen"
)

// handleBanner serves the banner image for a band at /banner/{band}.png.
// It checks the cache first and generates on demand when a generator is
// configured.
func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/banner/")
	if !strings.HasSuffix(name, ".png") {
		http.NotFound(w, r)
		return
	}
	band, err := imagegen.ParseBand(strings.TrimSuffix(name, ".png"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if data, ok := s.imageCache.Get(band); ok {
		servePNG(w, data, "public, max-age=3600")
		return
	}

	if s.imageGen == nil {
		log.Printf("api: no generator and no cached banner for %s", band)
		http.Error(w, "Banner image unavailable", http.StatusServiceUnavailable)
		return
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	// Double-check cache after acquiring lock
	if data, ok := s.imageCache.Get(band); ok {
		servePNG(w, data, "public, max-age=3600")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	data, err := s.imageGen.Generate(ctx, band)
	if err != nil {
		log.Printf("api: banner generation failed: %v", err)
		http.Error(w, "Image generation failed", http.StatusServiceUnavailable)
		return
	}
	if err := s.imageCache.Set(band, data); err != nil {
		log.Printf("api: failed to cache banner: %v", err)
	}
	servePNG(w, data, "public, max-age=3600")
}

// handleCard serves a share card for ?date=, defaulting to the latest date
// with data. Cards are cached per source and date.
func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	t, uploaded, err := s.loadTable()
	if err != nil {
		status, msg := errorStatus(err, time.Time{})
		http.Error(w, msg, status)
		return
	}

	date, err := s.pickDate(r.URL.Query().Get("date"), newDatasetInfo(t, uploaded))
	if err != nil {
		status, msg := errorStatus(err, time.Time{})
		http.Error(w, msg, status)
		return
	}

	key := imagegen.CardKey(t.SourceHash, date)
	if data, ok := s.cards.Get(key); ok {
		servePNG(w, data, "public, max-age=300")
		return
	}

	c, err := compare(t, date)
	if err != nil {
		status, msg := errorStatus(err, date)
		http.Error(w, msg, status)
		return
	}

	// Only an already cached banner is used; cards never wait on generation.
	banner, _ := s.imageCache.Get(imagegen.BandFor(c.DiffFromMean))
	data, err := imagegen.RenderCard(c, banner)
	if err != nil {
		log.Printf("api: render card: %v", err)
		http.Error(w, "Failed to render card", http.StatusInternalServerError)
		return
	}
	s.cards.Set(key, data)
	servePNG(w, data, "public, max-age=300")
}

func servePNG(w http.ResponseWriter, data []byte, cacheControl string) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", cacheControl)
	w.Write(data)
}
