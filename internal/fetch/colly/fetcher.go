// Package collyfetch implements the page Fetcher using gocolly.
package collyfetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/foosdb/rankingsd/internal/fetch"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs one HTTP GET per call via a cloned Colly collector.
// It keeps no state between calls and never retries.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher with a pooled transport shared by all clones.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Clones share the visited-URL store, and forced re-ingestion fetches
	// the same ranking pages again within one process.
	c.AllowURLRevisit = true
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	})
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single bounded HTTP GET and returns the raw body. On
// failure it returns a *fetch.Error classifying the cause.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body       []byte
		statusCode int
		respErr    error
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		respErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return nil, &fetch.Error{Kind: kindForContext(ctx.Err()), URL: url, Err: ctx.Err()}
	case visitErr := <-done:
		if visitErr == nil && respErr == nil {
			return body, nil
		}
		err := respErr
		if err == nil {
			err = visitErr
		}
		return nil, classify(url, statusCode, err)
	}
}

func classify(url string, statusCode int, err error) *fetch.Error {
	if statusCode >= 400 {
		return &fetch.Error{Kind: fetch.KindHTTPStatus, URL: url, StatusCode: statusCode, Err: err}
	}
	if isTimeout(err) {
		return &fetch.Error{Kind: fetch.KindTimeout, URL: url, Err: err}
	}
	return &fetch.Error{Kind: fetch.KindUnreachable, URL: url, Err: err}
}

func kindForContext(err error) fetch.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return fetch.KindTimeout
	}
	return fetch.KindUnreachable
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
