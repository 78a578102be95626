package httputil

import (
	"net/http"
	"time"
)

const DefaultTimeout = 60 * time.Second

// NewClient returns an HTTP client for source downloads. The timeout covers
// the whole transfer of a multi-megabyte station export.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
