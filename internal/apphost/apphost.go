// Package apphost normalizes and validates application hostnames, the
// identifier that threads through the edge router, load balancer, and
// service registry.
package apphost

import (
	"strings"

	"edgemesh/internal/enum"
)

// Normalize lowercases, strips a leading protocol scheme, strips a
// trailing port, and strips trailing slashes from a raw hostname.
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.ToLower(h)

	if idx := strings.Index(h, "://"); idx != -1 {
		h = h[idx+3:]
	}

	h = strings.TrimRight(h, "/")

	// Strip a trailing :port, but don't mistake an IPv6 literal's
	// colons for a port separator.
	if !strings.Contains(h, "[") {
		if idx := strings.LastIndex(h, ":"); idx != -1 {
			h = h[:idx]
		}
	}

	return h
}

// Validate normalizes raw and rejects it if empty, returning a
// *enum.KindedError tagged ErrInvalidInput on failure.
func Validate(raw string) (string, error) {
	h := Normalize(raw)
	if h == "" {
		return "", enum.NewError(enum.ErrInvalidInput, "app hostname must not be empty")
	}
	return h, nil
}
