package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmbuildings-go/internal/config"
)

const sampleResponse = `{
  "version": 0.6,
  "generator": "Overpass API",
  "elements": [
    {
      "type": "way",
      "id": 1001,
      "tags": {"building": "yes", "building:levels": "4"},
      "geometry": [
        {"lat": 41.7150, "lon": 44.7830},
        {"lat": 41.7151, "lon": 44.7830},
        {"lat": 41.7151, "lon": 44.7832},
        {"lat": 41.7150, "lon": 44.7830}
      ]
    },
    {
      "type": "relation",
      "id": 2002,
      "tags": {"building": "apartments", "type": "multipolygon"},
      "members": [
        {"type": "way", "ref": 11, "role": "outer", "geometry": [{"lat": 41.71, "lon": 44.78}]},
        {"type": "way", "ref": 12, "role": "inner", "geometry": [{"lat": 41.72, "lon": 44.79}]}
      ]
    }
  ]
}`

func testConfig(endpoint string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.RetryDelay = time.Millisecond
	return cfg
}

// roundTripFunc lets a test script transport-level outcomes per attempt
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type recordingObserver struct {
	attempts atomic.Int32
	failures atomic.Int32
}

func (o *recordingObserver) ObserveAttempt(attempt int, err error) {
	o.attempts.Add(1)
	if err != nil {
		o.failures.Add(1)
	}
}

func TestLoadChunkSuccess(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		gotQuery = r.URL.Query().Get("data")
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "osmbuildings-go") {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), srv.Client())
	elements, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(elements) != 2 {
		t.Fatalf("got %d elements, want 2", len(elements))
	}
	if elements[0].Type != osm.TypeWay || len(elements[0].Geometry) != 4 {
		t.Errorf("unexpected way element: %+v", elements[0])
	}
	if elements[0].Tags.Find("building:levels") != "4" {
		t.Errorf("building:levels = %q, want 4", elements[0].Tags.Find("building:levels"))
	}
	if elements[1].Type != osm.TypeRelation || len(elements[1].Members) != 2 {
		t.Errorf("unexpected relation element: %+v", elements[1])
	}
	if elements[1].Members[1].Role != "inner" {
		t.Errorf("member role = %q, want inner", elements[1].Members[1].Role)
	}

	if !strings.Contains(gotQuery, `way["building"]`) || !strings.Contains(gotQuery, "out geom;") {
		t.Errorf("unexpected query sent: %s", gotQuery)
	}
}

func TestLoadChunkEmptyElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version": 0.6, "elements": []}`)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), srv.Client())
	elements, err := f.LoadChunk(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elements == nil || len(elements) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", elements)
	}
}

func TestLoadChunkRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 4 {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	f := NewFetcher(testConfig(srv.URL), srv.Client())
	f.SetObserver(obs)

	elements, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(elements) != 2 {
		t.Errorf("got %d elements, want 2", len(elements))
	}
	if calls.Load() != 5 {
		t.Errorf("server saw %d calls, want 5", calls.Load())
	}
	if obs.attempts.Load() != 5 || obs.failures.Load() != 4 {
		t.Errorf("observer saw %d attempts / %d failures, want 5 / 4",
			obs.attempts.Load(), obs.failures.Load())
	}
}

func TestLoadChunkRetriesMalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `<html>runtime error: out of memory</html>`)
			return
		}
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), srv.Client())
	if _, err := f.LoadChunk(context.Background(), 41.715, 44.783); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestLoadChunkRetriesRuntimeErrorRemark(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, `{"version": 0.6, "elements": [], "remark": "runtime error: Query timed out in \"query\" at line 1 after 181 seconds."}`)
			return
		}
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), srv.Client())
	elements, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(elements) != 2 {
		t.Errorf("got %d elements, want 2", len(elements))
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestLoadChunkRemarkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version": 0.6, "elements": [], "remark": "runtime error: out of memory"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 1
	f := NewFetcher(cfg, srv.Client())

	_, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	var remarkErr *RemarkError
	if !errors.As(err, &remarkErr) {
		t.Fatalf("expected *RemarkError, got %v", err)
	}
	if !strings.Contains(remarkErr.Remark, "out of memory") {
		t.Errorf("Remark = %q", remarkErr.Remark)
	}
}

func TestLoadChunkInformationalRemark(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"version": 0.6, "elements": [], "remark": "area data is stale"}`)
	}))
	defer srv.Close()

	f := NewFetcher(testConfig(srv.URL), srv.Client())
	if _, err := f.LoadChunk(context.Background(), 0, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1", calls.Load())
	}
}

func TestDecodeElementTags(t *testing.T) {
	var e Element
	data := `{"type": "way", "id": 7, "tags": {"building": "yes", "building:levels": null, "name": ""}}`
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if e.Type != osm.TypeWay || e.ID != 7 {
		t.Errorf("element = %+v", e)
	}
	if e.Tags.HasTag("building:levels") {
		t.Error("null tag should be dropped")
	}
	if !e.Tags.HasTag("name") || e.Tags.Find("name") != "" {
		t.Error("empty tag should be kept")
	}
	if len(e.Tags) != 2 {
		t.Errorf("tags = %v, want 2 entries", e.Tags)
	}

	var bare Element
	if err := json.Unmarshal([]byte(`{"type": "node", "id": 1}`), &bare); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if bare.Tags != nil {
		t.Errorf("tags = %v, want nil when absent", bare.Tags)
	}
}

func TestLoadChunkExhaustedReturnsLastError(t *testing.T) {
	var calls atomic.Int32
	errs := make([]error, 0, 6)

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := calls.Add(1)
		err := fmt.Errorf("connection reset on attempt %d", n)
		errs = append(errs, err)
		return nil, err
	})}

	f := NewFetcher(testConfig("http://overpass.invalid/api/interpreter"), client)
	_, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	if err == nil {
		t.Fatal("expected error but got none")
	}

	// one initial attempt plus five retries
	if calls.Load() != 6 {
		t.Fatalf("transport saw %d calls, want 6", calls.Load())
	}
	if !errors.Is(err, errs[len(errs)-1]) {
		t.Errorf("error %v does not carry the final attempt's failure", err)
	}
	for _, earlier := range errs[:len(errs)-1] {
		if errors.Is(err, earlier) {
			t.Errorf("error should not aggregate earlier failure %v", earlier)
		}
	}
	if strings.Contains(err.Error(), "retries") {
		t.Errorf("error should not be wrapped with retry context: %v", err)
	}
}

func TestLoadChunkStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 1
	f := NewFetcher(cfg, srv.Client())

	_, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("StatusCode = %d, want 504", statusErr.StatusCode)
	}
}

func TestLoadChunkZeroRetries(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	})}

	cfg := testConfig("http://overpass.invalid/api/interpreter")
	cfg.MaxRetries = 0
	f := NewFetcher(cfg, client)

	if _, err := f.LoadChunk(context.Background(), 0, 0); err == nil {
		t.Fatal("expected error but got none")
	}
	if calls.Load() != 1 {
		t.Errorf("transport saw %d calls, want 1", calls.Load())
	}
}

func TestLoadChunkContextCancelledDuringDelay(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("unreachable")
	})}

	cfg := testConfig("http://overpass.invalid/api/interpreter")
	cfg.RetryDelay = time.Hour
	f := NewFetcher(cfg, client)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.LoadChunk(ctx, 0, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestLoadChunkScriptedTransport(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("dial tcp: i/o timeout")
		}
		return okResponse(sampleResponse), nil
	})}

	f := NewFetcher(testConfig("http://overpass.invalid/api/interpreter"), client)
	elements, err := f.LoadChunk(context.Background(), 41.715, 44.783)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(elements) != 2 {
		t.Errorf("got %d elements, want 2", len(elements))
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxRetries != 5 || p.Delay != 500*time.Millisecond {
		t.Errorf("DefaultRetryPolicy() = %+v, want 5 retries at 500ms", p)
	}
	if got := NewFetcher(config.DefaultConfig(), nil).Policy(); got != p {
		t.Errorf("default fetcher policy = %+v, want %+v", got, p)
	}
}
