package api

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/lox/sameday/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// newTemplates creates and parses the HTML templates with custom functions.
func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"temp": func(f float64) string {
			return fmt.Sprintf("%.1f°C", f)
		},
		"day": func(t time.Time) string {
			return t.Format(dateLayout)
		},
		"longdate": func(t time.Time) string {
			return t.Format("January 2, 2006")
		},
		"pct": func(f float64) string {
			return fmt.Sprintf("%.1f%%", f)
		},
		"comma": func(n int) string {
			s := fmt.Sprintf("%d", n)
			for i := len(s) - 3; i > 0; i -= 3 {
				s = s[:i] + "," + s[i:]
			}
			return s
		},
	}
	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

// RenderSummary writes the HTML interpretation for c, as shown beneath the
// dashboard charts.
func RenderSummary(w io.Writer, c *models.Comparison) error {
	return newTemplates().ExecuteTemplate(w, "summary.html", newDashboard(c))
}
