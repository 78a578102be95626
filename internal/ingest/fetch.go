package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/sameday/internal/httputil"
	"github.com/lox/sameday/internal/metrics"
)

// maxSourceBytes caps a downloaded station export. A century of daily rows
// is a few megabytes.
const maxSourceBytes = 64 << 20

// Fetcher downloads a station export over HTTP(S) or FTP.
type Fetcher struct {
	client         *http.Client
	maxElapsedTime time.Duration
	ftpTimeout     time.Duration
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:         httputil.NewClient(),
		maxElapsedTime: 2 * time.Minute,
		ftpTimeout:     30 * time.Second,
	}
}

// SetMaxElapsedTime bounds how long HTTP retries may run.
func (f *Fetcher) SetMaxElapsedTime(d time.Duration) {
	f.maxElapsedTime = d
}

// Fetch returns the raw bytes at rawURL. Supported schemes are http, https
// and ftp.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var body []byte
	switch u.Scheme {
	case "http", "https":
		body, err = f.fetchHTTP(ctx, u.String())
	case "ftp":
		body, err = f.fetchFTP(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.FetchesTotal.WithLabelValues(u.Scheme, status).Inc()
	return body, err
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", "sameday/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch source: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch source: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch source: status %d", resp.StatusCode))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.maxElapsedTime
	notify := func(err error, wait time.Duration) {
		log.Printf("fetch: %v, retrying in %s", err, wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":" + strconv.Itoa(21)
	}

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(io.LimitReader(resp, maxSourceBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
