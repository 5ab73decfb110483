package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kozaktomas/vface/internal/auth"
	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/database"
	"github.com/kozaktomas/vface/internal/database/mock"
	"github.com/kozaktomas/vface/internal/dispatch"
	"github.com/kozaktomas/vface/internal/encoder"
	"github.com/kozaktomas/vface/internal/gallery"
	"github.com/kozaktomas/vface/internal/metrics"
)

type blockingEncoder struct {
	release chan struct{}
	mu      sync.Mutex
	active  int
	peak    int
}

func (e *blockingEncoder) Encode(ctx context.Context, image []byte) ([][]float64, error) {
	e.mu.Lock()
	e.active++
	if e.active > e.peak {
		e.peak = e.active
	}
	e.mu.Unlock()

	if e.release != nil {
		<-e.release
	}

	e.mu.Lock()
	e.active--
	e.mu.Unlock()

	if string(image) == "nobody" {
		return nil, encoder.ErrNoFace
	}
	return [][]float64{{0, 0}}, nil
}

// slowEncoder answers after delay and fails if its context ends first.
type slowEncoder struct {
	delay time.Duration
}

func (e slowEncoder) Encode(ctx context.Context, image []byte) ([][]float64, error) {
	select {
	case <-time.After(e.delay):
		return [][]float64{{0, 0}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testServer(t *testing.T, cfg *config.Config, enc dispatch.Encoder) (*Server, *prometheus.Registry) {
	t.Helper()
	store := mock.NewMockStore()
	store.AddClient("shop", "s3cret", 5)
	store.AddIdentity(5, "staff", database.IdentityRecord{IdentityID: "u1", Metadata: "Alice", Vector: []float64{0, 0}})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.New(auth.NewGate(store), gallery.New(), store, enc, mock.NewMockAuditLog(),
		dispatch.WithMetrics(m), dispatch.WithLogger(logger))
	return NewServer(cfg, d, reg, logger), reg
}

func recognizeBody(image string) string {
	return `{"api":{"client":"shop","key":"s3cret"},"data":{"gid":"staff","threshold":0.8,"img":"` +
		base64.StdEncoding.EncodeToString([]byte(image)) + `"}}`
}

func TestRoutes(t *testing.T) {
	srv, _ := testServer(t, config.Defaults(), &blockingEncoder{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"hello", http.MethodGet, "/", "", http.StatusOK},
		{"health", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"metrics", http.MethodGet, "/metrics", "", http.StatusOK},
		{"legacy recognition", http.MethodPost, "/recognition", recognizeBody("face"), http.StatusOK},
		{"v1 recognize", http.MethodPost, "/api/v1/recognize", recognizeBody("face"), http.StatusOK},
		{"v1 recognition", http.MethodPost, "/api/v1/recognition", recognizeBody("nobody"), http.StatusUnprocessableEntity},
		{"legacy clear", http.MethodPost, "/clear", `{"api":{"client":"shop","key":"s3cret"},"data":{"gid":"staff"}}`, http.StatusOK},
		{"legacy update bad body", http.MethodPost, "/update", "not json", http.StatusBadRequest},
		{"v1 register bad body", http.MethodPost, "/api/v1/register", "{}", http.StatusBadRequest},
		{"unknown path", http.MethodPost, "/api/v2/recognize", "{}", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/recognition", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("%s %s: expected status %d, got %d\nBody: %s", tt.method, tt.path, tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRoutes_UnknownPathBody(t *testing.T) {
	srv, _ := testServer(t, config.Defaults(), &blockingEncoder{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/photos", nil))

	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, rec.Body.String())
	}
	if result["msg"] != "The request path structure is incorrect." {
		t.Errorf("unexpected msg %v", result["msg"])
	}
}

func TestMetrics_CountRequests(t *testing.T) {
	srv, reg := testServer(t, config.Defaults(), &blockingEncoder{})
	srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/recognition", strings.NewReader(recognizeBody("face"))))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "vface_requests_total" {
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 1 {
				t.Errorf("expected 1 request, got %v", got)
			}
			return
		}
	}
	t.Error("vface_requests_total not registered")
}

func TestServer_SerialServing(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.MaxConcurrent = 1
	enc := &blockingEncoder{release: make(chan struct{})}
	srv, _ := testServer(t, cfg, enc)

	const n = 4
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/recognition", strings.NewReader(recognizeBody("face"))))
			codes[i] = rec.Code
		}()
	}

	for range n {
		select {
		case enc.release <- struct{}{}:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out releasing encoder")
		}
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, code)
		}
	}
	if enc.peak != 1 {
		t.Errorf("expected at most one request in flight, saw %d", enc.peak)
	}
}

func TestServer_ClientDeadlineDoesNotCutResponse(t *testing.T) {
	srv, _ := testServer(t, config.Defaults(), slowEncoder{delay: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/recognition", strings.NewReader(recognizeBody("face"))).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result struct {
		StatusCode int    `json:"status_code"`
		Msg        string `json:"msg"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("response is not one JSON document: %v: %s", err, rec.Body.String())
	}
	if result.StatusCode != http.StatusOK || result.Msg != "Ok" {
		t.Errorf("expected 200 Ok, got %d %s", result.StatusCode, result.Msg)
	}
}
