package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmbuildings-go/internal/config"
	"github.com/wegman-software/osmbuildings-go/internal/logger"
)

// RetryPolicy controls how failed requests are repeated.
// Every failure class is retried the same way, with a fixed delay.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	Delay      time.Duration // wait between attempts
}

// DefaultRetryPolicy retries five times, 500ms apart
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: config.DefaultMaxRetries,
		Delay:      config.DefaultRetryDelay,
	}
}

// Observer is notified after every attempt. err is nil on success.
type Observer interface {
	ObserveAttempt(attempt int, err error)
}

// Fetcher queries an Overpass endpoint for buildings
type Fetcher struct {
	endpoint  string
	userAgent string
	padding   float64
	timeout   int
	policy    RetryPolicy
	client    *http.Client
	observer  Observer
}

// NewFetcher creates a fetcher from configuration. A nil client gets a
// default one with the configured HTTP timeout.
func NewFetcher(cfg *config.Config, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &Fetcher{
		endpoint:  cfg.Endpoint,
		userAgent: cfg.UserAgent,
		padding:   cfg.Padding,
		timeout:   cfg.QueryTimeout,
		policy: RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay,
		},
		client: client,
	}
}

// SetObserver registers an attempt observer (metrics)
func (f *Fetcher) SetObserver(o Observer) {
	f.observer = o
}

// Policy returns the retry policy in use
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy
}

// LoadChunk fetches building elements inside the padded box around lat/lon.
// When retries run out the error of the last attempt is returned unwrapped.
func (f *Fetcher) LoadChunk(ctx context.Context, lat, lon float64) ([]Element, error) {
	bounds := BoundsAround(lat, lon, f.padding)
	query := BuildQuery(bounds, f.timeout)

	logger.Get().Debug("Loading chunk",
		zap.Float64("lat", lat),
		zap.Float64("lon", lon),
		zap.Float64("south", bounds.MinLat),
		zap.Float64("west", bounds.MinLon),
		zap.Float64("north", bounds.MaxLat),
		zap.Float64("east", bounds.MaxLon))

	resp, err := f.fetchWithRetry(ctx, query)
	if err != nil {
		return nil, err
	}
	if resp.Elements == nil {
		return []Element{}, nil
	}
	return resp.Elements, nil
}

// fetchWithRetry runs attempts in sequence until one succeeds or the
// policy is exhausted
func (f *Fetcher) fetchWithRetry(ctx context.Context, query string) (*Response, error) {
	log := logger.Get()
	var lastErr error

	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn("Overpass request failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", f.policy.MaxRetries),
				zap.Duration("delay", f.policy.Delay),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.policy.Delay):
			}
		}

		resp, err := f.fetch(ctx, query)
		if f.observer != nil {
			f.observer.ObserveAttempt(attempt, err)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}

	log.Error("Overpass request failed, giving up",
		zap.Int("attempts", f.policy.MaxRetries+1),
		zap.Error(lastErr))

	return nil, lastErr
}

// fetch performs a single GET and decodes the body
func (f *Fetcher) fetch(ctx context.Context, query string) (*Response, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", f.endpoint, err)
	}
	u.RawQuery = url.Values{"data": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var result Response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}

	// A runtime error remark means the element list is partial or empty
	if result.Remark != "" {
		if strings.Contains(result.Remark, "runtime error") {
			return nil, &RemarkError{Remark: result.Remark}
		}
		logger.Get().Warn("Overpass response remark", zap.String("remark", result.Remark))
	}

	return &result, nil
}
