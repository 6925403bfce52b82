package lb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edgemesh/internal/consulapi"
	"edgemesh/internal/enum"
)

func TestRegistryClientParsesPassingEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := []consulapi.HealthEntry{
			{
				Service: consulapi.Service{ID: "c1", Service: "demo", Address: "10.0.0.5", Port: 30001,
					Tags: consulapi.BuildTags("img-1", "demo", 30001)},
				Checks: []consulapi.Check{{Status: "passing"}},
			},
			{
				Service: consulapi.Service{ID: "c2", Service: "demo", Address: "10.0.0.6", Port: 30002,
					Tags: consulapi.BuildTags("img-1", "demo", 30002)},
				Checks: []consulapi.Check{{Status: "critical"}},
			},
		}
		w.Header().Set(consulapi.IndexHeader, "5")
		json.NewEncoder(w).Encode(entries)
	}))
	defer srv.Close()

	client := NewRegistryClient(srv.URL, time.Second)
	backends, err := client.QueryHealthy(context.Background(), "demo")
	if err != nil {
		t.Fatal(err)
	}
	if len(backends) != 1 || backends[0].ContainerID != "c1" {
		t.Fatalf("expected only the passing backend, got %v", backends)
	}
}

func TestRegistryClientNon200IsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewRegistryClient(srv.URL, time.Second)
	_, err := client.QueryHealthy(context.Background(), "demo")
	if enum.KindOf(err) != enum.ErrTransport {
		t.Errorf("got %v", err)
	}
}

func TestRegistryClientTimeoutClassifiesAsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	client := NewRegistryClient(srv.URL, time.Second)
	_, err := client.QueryHealthy(ctx, "demo")
	if enum.KindOf(err) != enum.ErrTimeout {
		t.Errorf("got %v", err)
	}
}
