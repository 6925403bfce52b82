package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"edgemesh/internal/enum"
)

// RoutingInfo is the edge router's view of an LB routing decision.
type RoutingInfo struct {
	TargetHost  string
	TargetPort  int
	ContainerID string
	ImageID     string
	TTL         time.Duration
}

// LBClient resolves an app hostname to a RoutingInfo by calling the
// load balancer core's HTTP surface.
type LBClient interface {
	Route(ctx context.Context, appHostname string) (RoutingInfo, error)
}

type lbHTTPResponse struct {
	TargetHost  string `json:"target_host"`
	TargetPort  int    `json:"target_port"`
	ContainerID string `json:"container_id"`
	ImageID     string `json:"image_id"`
	TTLSeconds  int    `json:"ttl_seconds"`
}

type lbHTTPError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HTTPLBClient implements LBClient against the LB core's /route/{host}
// endpoint.
type HTTPLBClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPLBClient builds a client against baseURL with timeout as its
// per-call deadline. No default is applied here; a zero timeout leaves
// the client without a deadline of its own.
func NewHTTPLBClient(baseURL string, timeout time.Duration) *HTTPLBClient {
	return &HTTPLBClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Route calls the LB core for appHostname.
func (c *HTTPLBClient) Route(ctx context.Context, appHostname string) (RoutingInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/route/"+appHostname, nil)
	if err != nil {
		return RoutingInfo{}, enum.Wrap(enum.ErrTransport, "building LB request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return RoutingInfo{}, enum.Wrap(enum.ErrTimeout, "LB call timed out", err)
		}
		return RoutingInfo{}, enum.Wrap(enum.ErrTransport, "LB call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var lbErr lbHTTPError
		if decErr := json.NewDecoder(resp.Body).Decode(&lbErr); decErr == nil && lbErr.Kind != "" {
			return RoutingInfo{}, enum.NewError(enum.ErrorKind(lbErr.Kind), lbErr.Message)
		}
		return RoutingInfo{}, enum.NewError(enum.ErrUnknown, "LB returned an unrecognized error response")
	}

	var body lbHTTPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RoutingInfo{}, enum.Wrap(enum.ErrParse, "decoding LB response", err)
	}

	return RoutingInfo{
		TargetHost:  body.TargetHost,
		TargetPort:  body.TargetPort,
		ContainerID: body.ContainerID,
		ImageID:     body.ImageID,
		TTL:         time.Duration(body.TTLSeconds) * time.Second,
	}, nil
}
