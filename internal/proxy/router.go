package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"edgemesh/internal/apphost"
	"edgemesh/internal/enum"
	"edgemesh/internal/metrics"
)

// DefaultBackendTimeout bounds an outbound edge-to-backend request.
const DefaultBackendTimeout = 10 * time.Second

// Router is the edge router's HTTP handler: cache lookup, LB query on
// miss, reverse-proxy forwarding, failure invalidation, and metrics.
type Router struct {
	cache   *RoutingCache
	lb      LBClient
	metrics *metrics.Collector
	logger  *zap.Logger

	backendTimeout time.Duration

	mu       sync.Mutex
	inFlight map[cacheKey]*inflightResolve
}

type inflightResolve struct {
	done chan struct{}
	info RoutingInfo
	err  error
}

// NewRouter builds a Router. backendTimeout falls back to
// DefaultBackendTimeout when zero.
func NewRouter(lb LBClient, collector *metrics.Collector, backendTimeout time.Duration, logger *zap.Logger) *Router {
	if backendTimeout <= 0 {
		backendTimeout = DefaultBackendTimeout
	}
	return &Router{
		cache:          NewRoutingCache(),
		lb:             lb,
		metrics:        collector,
		logger:         logger,
		backendTimeout: backendTimeout,
		inFlight:       make(map[cacheKey]*inflightResolve),
	}
}

// Routes mounts the apps catch-all on r.
func (rt *Router) Routes(r chi.Router) {
	r.HandleFunc("/apps/{app_hostname}/*", rt.ServeHTTP)
}

// ServeHTTP resolves the request's routing target (from cache or the
// LB) and forwards it, recording metrics for the completed request.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	rawHostname := chi.URLParam(r, "app_hostname")
	appHostname, err := apphost.Validate(rawHostname)
	if err != nil {
		http.Error(w, "empty app hostname", http.StatusBadRequest)
		return
	}

	clientIP := clientIPOf(r)
	tail := chi.URLParam(r, "*")

	entry, fromCache := rt.cache.Get(appHostname, clientIP)
	if !fromCache {
		info, resolveErr := rt.resolve(r, appHostname, clientIP)
		if resolveErr != nil {
			rt.writeRouteError(w, resolveErr)
			return
		}
		entry = CacheEntry{
			TargetHost:  info.TargetHost,
			TargetPort:  info.TargetPort,
			ContainerID: info.ContainerID,
			ImageID:     info.ImageID,
		}
		rt.cache.Put(appHostname, clientIP, entry, info.TTL)
	}

	status := rt.forward(w, r, entry, appHostname, clientIP, tail)

	rt.metrics.Record(metrics.Sample{
		UserID:      "",
		AppHostname: appHostname,
		ContainerID: entry.ContainerID,
		StatusCode:  status,
		LatencyMs:   float64(time.Since(start).Microseconds()) / 1000,
	})
}

// resolve calls the LB, collapsing concurrent callers for the same
// (app_hostname, client_ip) key into a single in-flight call to bound
// fan-out during cold-cache bursts.
func (rt *Router) resolve(r *http.Request, appHostname, clientIP string) (RoutingInfo, error) {
	key := cacheKey{appHostname, clientIP}

	rt.mu.Lock()
	if existing, ok := rt.inFlight[key]; ok {
		rt.mu.Unlock()
		<-existing.done
		return existing.info, existing.err
	}
	flight := &inflightResolve{done: make(chan struct{})}
	rt.inFlight[key] = flight
	rt.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()

	flight.info, flight.err = rt.lb.Route(ctx, appHostname)
	close(flight.done)

	rt.mu.Lock()
	delete(rt.inFlight, key)
	rt.mu.Unlock()

	return flight.info, flight.err
}

func (rt *Router) writeRouteError(w http.ResponseWriter, err error) {
	switch enum.KindOf(err) {
	case enum.ErrInvalidInput:
		http.Error(w, "invalid app hostname", http.StatusBadRequest)
	case enum.ErrNotFound, enum.ErrNoCapacity, enum.ErrUnavailable:
		http.Error(w, "no instances available", http.StatusServiceUnavailable)
	case enum.ErrTimeout, enum.ErrCircuitOpen:
		http.Error(w, "no instances available", http.StatusServiceUnavailable)
	default:
		http.Error(w, "upstream resolution failed", http.StatusBadGateway)
	}
}

// forward builds the upstream request and streams the response back,
// applying failure invalidation on >= 500 or transport error. Returns
// the status code recorded for metrics (502 on transport failure).
func (rt *Router) forward(w http.ResponseWriter, r *http.Request, entry CacheEntry, appHostname, clientIP, tail string) int {
	target := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(entry.TargetHost, strconv.Itoa(entry.TargetPort)),
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	originalDirector := proxy.Director
	correlationID := correlationIDOf(r)

	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.URL.Path = "/" + strings.TrimPrefix(tail, "/")
		req.URL.RawPath = req.URL.Path
		req.Host = target.Host
		req.Header.Del("Content-Length")
		req.Header.Set("X-Correlation-ID", correlationID)
		req.Header.Set("X-Forwarded-For", appendForwardedFor(req.Header.Get("X-Forwarded-For"), clientIP))
	}

	ctx, cancel := context.WithTimeout(r.Context(), rt.backendTimeout)
	defer cancel()
	proxyReq := r.WithContext(ctx)

	status := 0
	transportFailed := false
	proxy.ErrorHandler = func(rw http.ResponseWriter, _ *http.Request, err error) {
		transportFailed = true
		rt.logger.Warn("proxy: upstream transport error",
			zap.String("app_hostname", appHostname), zap.String("container_id", entry.ContainerID), zap.Error(err))
		rw.WriteHeader(http.StatusBadGateway)
		status = http.StatusBadGateway
	}
	proxy.ModifyResponse = func(resp *http.Response) error {
		status = resp.StatusCode
		return nil
	}

	proxy.ServeHTTP(w, proxyReq)

	if transportFailed || status >= 500 {
		rt.cache.Invalidate(appHostname, clientIP)
	}
	return status
}

func clientIPOf(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func correlationIDOf(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func appendForwardedFor(existing, clientIP string) string {
	if existing == "" {
		return clientIP
	}
	return existing + ", " + clientIP
}
