package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"edgemesh/internal/backend"
	"edgemesh/internal/consulapi"
)

func newTestServer(t *testing.T) (*Registry, *httptest.Server) {
	r := New(60*time.Second, zaptest.NewLogger(t))
	router := chi.NewRouter()
	NewServer(r, zaptest.NewLogger(t)).Routes(router)
	return r, httptest.NewServer(router)
}

func TestHandleRegisterThenWatchReturnsBackend(t *testing.T) {
	r, srv := newTestServer(t)
	defer srv.Close()

	body, _ := json.Marshal(consulapi.RegisterRequest{
		ID:      "c1",
		Name:    "demo",
		Address: "10.0.0.5",
		Port:    30001,
		Tags:    consulapi.BuildTags("img-1", "demo", 30001),
	})
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/agent/service/register", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	_, healthy := r.QueryHealthy("demo")
	if len(healthy) != 1 || healthy[0].ContainerID != "c1" {
		t.Fatalf("got %v", healthy)
	}

	watchResp, err := http.Get(srv.URL + "/v1/health/service/demo?passing=true&index=0&wait=1s")
	if err != nil {
		t.Fatal(err)
	}
	defer watchResp.Body.Close()

	if watchResp.Header.Get(consulapi.IndexHeader) == "" {
		t.Error("expected X-Consul-Index header")
	}

	var entries []consulapi.HealthEntry
	if err := json.NewDecoder(watchResp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Service.ID != "c1" || entries[0].Service.Port != 30001 {
		t.Fatalf("got %+v", entries)
	}
}

func TestHandleDeregisterRemovesBackend(t *testing.T) {
	r, srv := newTestServer(t)
	defer srv.Close()

	r.Register(backend.Backend{ContainerID: "c1", Labels: backend.Labels{AppHostname: "demo"}})

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/agent/service/deregister/c1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	_, healthy := r.QueryHealthy("demo")
	if len(healthy) != 0 {
		t.Fatalf("expected empty, got %v", healthy)
	}
}

func TestHandleCatalogSummarizesBackendsPerHostname(t *testing.T) {
	r, srv := newTestServer(t)
	defer srv.Close()

	r.Register(backend.Backend{ContainerID: "c1", Labels: backend.Labels{AppHostname: "demo"}})
	r.Register(backend.Backend{ContainerID: "c2", Labels: backend.Labels{AppHostname: "demo"}})
	r.Register(backend.Backend{ContainerID: "c3", Labels: backend.Labels{AppHostname: "other"}})

	resp, err := http.Get(srv.URL + "/v1/catalog/services")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	var entries []catalogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.AppHostname == "demo" && (e.BackendCount != 2 || e.PassingCount != 2) {
			t.Errorf("demo entry got %+v", e)
		}
		if e.AppHostname == "other" && (e.BackendCount != 1 || e.PassingCount != 1) {
			t.Errorf("other entry got %+v", e)
		}
	}
}

func TestHandleRegisterRejectsMalformedBody(t *testing.T) {
	_, srv := newTestServer(t)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/v1/agent/service/register", bytes.NewReader([]byte("not json")))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got status %d", resp.StatusCode)
	}
}
