package lb

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"edgemesh/internal/apphost"
	"edgemesh/internal/backend"
	"edgemesh/internal/consulapi"
	"edgemesh/internal/enum"
)

// RegistryClient implements Discovery against a registry's
// Consul-shaped HTTP surface, calling the watch endpoint with wait=0
// for a non-blocking snapshot — the per-request query the Core's
// routing path calls through its circuit breaker, distinct from the
// registry's own long-poll watch consumers.
type RegistryClient struct {
	baseURL string
	http    *http.Client
}

// NewRegistryClient builds a client against baseURL (e.g.
// "http://registry:8500") with the given per-call timeout.
func NewRegistryClient(baseURL string, timeout time.Duration) *RegistryClient {
	return &RegistryClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// QueryHealthy fetches the current passing backend set for
// appHostname.
func (c *RegistryClient) QueryHealthy(ctx context.Context, appHostname string) ([]backend.Backend, error) {
	url := c.baseURL + "/v1/health/service/" + appHostname + "?passing=true&index=0&wait=0s"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, enum.Wrap(enum.ErrTransport, "building registry request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, enum.Wrap(enum.ErrTimeout, "registry query timed out", err)
		}
		return nil, enum.Wrap(enum.ErrTransport, "registry query failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, enum.NewError(enum.ErrTransport, "registry returned non-200 status")
	}

	var entries []consulapi.HealthEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, enum.Wrap(enum.ErrParse, "decoding registry response", err)
	}

	backends := make([]backend.Backend, 0, len(entries))
	for _, e := range entries {
		if !allChecksPassing(e.Checks) {
			continue
		}
		imageID, hostname, _ := consulapi.ParseTags(e.Service.Tags)
		if hostname == "" {
			hostname, _ = apphost.Validate(e.Service.Service)
		}
		backends = append(backends, backend.Backend{
			ContainerID: e.Service.ID,
			Address: backend.Address{
				Host:         e.Service.Address,
				ExternalPort: e.Service.Port,
			},
			Labels: backend.Labels{
				ImageID:     imageID,
				AppHostname: hostname,
			},
			Health: enum.HealthPassing,
		})
	}
	return backends, nil
}

func allChecksPassing(checks []consulapi.Check) bool {
	for _, c := range checks {
		if c.Status != string(enum.HealthPassing) {
			return false
		}
	}
	return true
}
