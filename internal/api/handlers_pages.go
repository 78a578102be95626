package api

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"
	"time"
)

const maxUploadSize = 32 << 20

// PageData is the view model for the index page.
type PageData struct {
	Info      *DatasetInfo
	Date      time.Time
	Dashboard *Dashboard
	Band      string
	Error     string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := PageData{}
	status := http.StatusOK

	t, uploaded, err := s.loadTable()
	if err != nil {
		status, data.Error = errorStatus(err, time.Time{})
		s.renderIndex(w, status, data)
		return
	}
	data.Info = newDatasetInfo(t, uploaded)

	date, err := s.pickDate(r.URL.Query().Get("date"), data.Info)
	if err != nil {
		status, data.Error = errorStatus(err, time.Time{})
		data.Date = data.Info.ValidLast
		s.renderIndex(w, status, data)
		return
	}
	data.Date = date

	c, err := compare(t, date)
	if err != nil {
		status, data.Error = errorStatus(err, date)
		s.renderIndex(w, status, data)
		return
	}
	data.Dashboard = newDashboard(c)
	data.Band = string(data.Dashboard.Interpretation.Band)

	s.renderIndex(w, status, data)
}

// pickDate parses the requested date, defaulting to the latest date with
// data and clamping to the range the table covers.
func (s *Server) pickDate(q string, info *DatasetInfo) (time.Time, error) {
	if !info.HasValid {
		return time.Time{}, errNoValidDays
	}
	if q == "" {
		return info.ValidLast, nil
	}
	d, err := parseDate(q)
	if err != nil {
		return time.Time{}, err
	}
	if d.Before(info.ValidFirst) {
		d = info.ValidFirst
	}
	if d.After(info.ValidLast) {
		d = info.ValidLast
	}
	return d, nil
}

func (s *Server) renderIndex(w http.ResponseWriter, status int, data PageData) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", data); err != nil {
		log.Printf("api: template error: %v", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// handleUpload makes an uploaded station file the active source. The file
// is parsed before it is accepted, so a bad upload leaves the previous
// source in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	t, err := s.cache.Load(raw)
	if err != nil {
		status, msg := errorStatus(err, time.Time{})
		http.Error(w, msg, status)
		return
	}

	s.setUpload(raw)
	s.cards.Clear()
	log.Printf("api: using uploaded source (%d rows)", t.Len())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.setUpload(nil)
	s.cache.Reset()
	s.cards.Clear()
	log.Printf("api: reverted to default source %s", s.cache.DefaultPath())
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
