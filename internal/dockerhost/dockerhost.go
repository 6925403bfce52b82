// Package dockerhost resolves the network address of the container
// engine that backends run under: read DOCKER_HOST, fall back to the
// platform default, and normalize unix/tcp schemes into something the
// registry's health prober and probe-address builder can dial
// directly. npipe values are rejected as unsupported.
package dockerhost

import (
	"net/url"
	"os"
	"strings"

	"edgemesh/internal/enum"
)

const (
	defaultUnixSocket = "/var/run/docker.sock"
	envDockerHost     = "DOCKER_HOST"
)

// Host describes a resolved engine endpoint: either a unix socket path
// (Network == "unix") or a TCP host:port (Network == "tcp").
type Host struct {
	Network string
	Addr    string
}

// Resolve reads DOCKER_HOST from the environment and normalizes it. An
// unset DOCKER_HOST resolves to the platform default unix socket.
func Resolve() (Host, error) {
	return ResolveFrom(os.Getenv(envDockerHost))
}

// ResolveFrom normalizes an explicit DOCKER_HOST-style value. Empty
// input resolves to the default unix socket.
func ResolveFrom(raw string) (Host, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Host{Network: "unix", Addr: defaultUnixSocket}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Host{}, enum.Wrap(enum.ErrInvalidInput, "malformed DOCKER_HOST", err)
	}

	switch u.Scheme {
	case "unix":
		path := u.Path
		if path == "" {
			path = defaultUnixSocket
		}
		return Host{Network: "unix", Addr: path}, nil
	case "tcp", "http", "https":
		if u.Host == "" {
			return Host{}, enum.NewError(enum.ErrInvalidInput, "DOCKER_HOST missing host:port")
		}
		return Host{Network: "tcp", Addr: u.Host}, nil
	case "npipe":
		return Host{}, enum.NewError(enum.ErrInvalidInput, "npipe DOCKER_HOST is not supported")
	default:
		return Host{}, enum.NewError(enum.ErrInvalidInput, "unsupported DOCKER_HOST scheme "+u.Scheme)
	}
}

// ProbeAddress builds the host:port used to TCP-dial a backend
// container given its published host and external port. Backends
// published on 0.0.0.0 or an empty host are dialed through the
// resolved engine host instead, matching how container runtimes bind
// published ports to the host's own interfaces rather than the
// container's internal one.
func ProbeAddress(engine Host, backendHost string, externalPort int) string {
	if backendHost == "" || backendHost == "0.0.0.0" {
		if engine.Network == "tcp" {
			if h, _, ok := strings.Cut(engine.Addr, ":"); ok {
				backendHost = h
			} else {
				backendHost = engine.Addr
			}
		} else {
			backendHost = "127.0.0.1"
		}
	}
	return backendHost + ":" + itoa(externalPort)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
