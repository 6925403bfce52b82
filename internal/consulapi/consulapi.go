// Package consulapi defines the Consul-shaped wire types the service
// registry speaks on its HTTP surface: the health/service watch
// response and the agent register/deregister request bodies. The
// registry implements this dialect directly rather than depending on a
// real Consul agent, since its authoritative state is its own
// in-process backend map.
package consulapi

// IndexHeader is the HTTP response header carrying the new version
// token after a watch call.
const IndexHeader = "X-Consul-Index"

// Service is the nested service descriptor inside a health entry.
type Service struct {
	ID      string   `json:"ID"`
	Service string   `json:"Service"`
	Address string   `json:"Address"`
	Port    int      `json:"Port"`
	Tags    []string `json:"Tags"`
}

// Check is a single health check result on a service entry. The
// registry reports one synthetic TCP check per backend.
type Check struct {
	Status string `json:"Status"`
}

// HealthEntry is one element of the GET /v1/health/service/{name}
// response array.
type HealthEntry struct {
	Service Service `json:"Service"`
	Checks  []Check `json:"Checks"`
}

// RegisterRequest is the body of PUT /v1/agent/service/register.
type RegisterRequest struct {
	ID    string      `json:"ID"`
	Name  string      `json:"Name"`
	Address string    `json:"Address"`
	Port  int         `json:"Port"`
	Tags  []string    `json:"Tags"`
	Check CheckConfig `json:"Check"`
}

// CheckConfig describes the active health check the registry performs
// against a newly-registered backend.
type CheckConfig struct {
	TCP                            string `json:"TCP"`
	Interval                       string `json:"Interval"`
	Timeout                        string `json:"Timeout"`
	DeregisterCriticalServiceAfter string `json:"DeregisterCriticalServiceAfter"`
}

// Tag prefixes used to smuggle Backend.Labels through Consul's flat
// Tags list.
const (
	TagImagePrefix       = "image-"
	TagAppHostnamePrefix = "app-hostname-"
	TagExternalPortPrefix = "external-port-"
)
