package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"edgemesh/internal/enum"
	"edgemesh/internal/metrics"
)

type fakeLBClient struct {
	info  RoutingInfo
	err   error
	calls int
}

func (f *fakeLBClient) Route(ctx context.Context, appHostname string) (RoutingInfo, error) {
	f.calls++
	if f.err != nil {
		return RoutingInfo{}, f.err
	}
	return f.info, nil
}

func newTestRouter(t *testing.T, backendURL string, lb *fakeLBClient) (*Router, *metrics.Collector) {
	host, portStr, _ := splitBackend(backendURL)
	port, _ := strconv.Atoi(portStr)
	lb.info = RoutingInfo{TargetHost: host, TargetPort: port, ContainerID: "c1", ImageID: "img-1", TTL: time.Minute}
	collector := metrics.NewCollector()
	return NewRouter(lb, collector, time.Second, zaptest.NewLogger(t)), collector
}

func splitBackend(rawURL string) (string, string, error) {
	trimmed := strings.TrimPrefix(rawURL, "http://")
	parts := strings.Split(trimmed, ":")
	return parts[0], parts[1], nil
}

func TestColdHitCallsLBAndCachesAndRecordsMetric(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer backend.Close()

	lb := &fakeLBClient{}
	router, collector := newTestRouter(t, backend.URL, lb)

	mux := chi.NewRouter()
	router.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/apps/demo/index.html", nil)
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if lb.calls != 1 {
		t.Fatalf("expected 1 LB call, got %d", lb.calls)
	}
	if _, ok := router.cache.Get("demo", "1.2.3.4"); !ok {
		t.Fatal("expected cache entry after cold hit")
	}
	if collector.ByAppHostname("demo").RequestCount != 1 {
		t.Fatal("expected metric recorded")
	}
}

func TestCacheHitSkipsLB(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	lb := &fakeLBClient{}
	router, collector := newTestRouter(t, backend.URL, lb)
	mux := chi.NewRouter()
	router.Routes(mux)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/apps/demo/page", nil)
		req.RemoteAddr = "1.2.3.4:5555"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
	}

	if lb.calls != 1 {
		t.Fatalf("expected exactly 1 LB call across both requests, got %d", lb.calls)
	}
	if collector.ByAppHostname("demo").RequestCount != 2 {
		t.Fatal("expected both requests counted")
	}
}

func TestBackend5xxInvalidatesCache(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer backend.Close()

	lb := &fakeLBClient{}
	router, _ := newTestRouter(t, backend.URL, lb)
	mux := chi.NewRouter()
	router.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/apps/demo/page", nil)
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("got %d", rec.Code)
	}
	if _, ok := router.cache.Get("demo", "1.2.3.4"); ok {
		t.Fatal("expected cache entry invalidated after 5xx")
	}
}

func TestNoCapacityReturns503WithoutCaching(t *testing.T) {
	lb := &fakeLBClient{err: enum.NewError(enum.ErrNoCapacity, "no healthy backends")}
	router, _ := newTestRouter(t, "http://127.0.0.1:1", lb)
	mux := chi.NewRouter()
	router.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/apps/demo/page", nil)
	req.RemoteAddr = "1.2.3.4:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d", rec.Code)
	}
	if _, ok := router.cache.Get("demo", "1.2.3.4"); ok {
		t.Fatal("expected no cache entry written on failure")
	}
}

func TestEmptyHostnameReturns400(t *testing.T) {
	lb := &fakeLBClient{}
	router, _ := newTestRouter(t, "http://127.0.0.1:1", lb)
	mux := chi.NewRouter()
	router.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/apps/%20/page", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}
