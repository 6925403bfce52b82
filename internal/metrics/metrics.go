// Package metrics implements the edge router's in-process aggregate
// collector: per-dimension counts and latency keyed by user_id,
// app_hostname, container_id, and a global rollup, queryable by
// dimension and exported to Prometheus.
package metrics

import "sync"

// Sample is one completed request observation.
type Sample struct {
	UserID      string
	AppHostname string
	ContainerID string
	StatusCode  int
	LatencyMs   float64
}

// DimensionStats is the aggregate recorded for one dimension value.
type DimensionStats struct {
	RequestCount        int64
	ErrorCount          int64
	LatencySum          float64
	NonZeroLatencyCount int64
	StatusHistogram     map[int]int64
}

func newDimensionStats() *DimensionStats {
	return &DimensionStats{StatusHistogram: make(map[int]int64)}
}

func (d *DimensionStats) record(s Sample) {
	d.RequestCount++
	if s.StatusCode >= 400 {
		d.ErrorCount++
	}
	if s.LatencyMs > 0 {
		d.LatencySum += s.LatencyMs
		d.NonZeroLatencyCount++
	}
	d.StatusHistogram[s.StatusCode]++
}

func (d *DimensionStats) clone() DimensionStats {
	hist := make(map[int]int64, len(d.StatusHistogram))
	for k, v := range d.StatusHistogram {
		hist[k] = v
	}
	return DimensionStats{
		RequestCount:        d.RequestCount,
		ErrorCount:          d.ErrorCount,
		LatencySum:          d.LatencySum,
		NonZeroLatencyCount: d.NonZeroLatencyCount,
		StatusHistogram:     hist,
	}
}

// UserView is the by-user query response: the user's own rollup plus
// the sub-maps of app hostnames and containers whose first-observed
// user matches.
type UserView struct {
	Stats        DimensionStats
	AppHostnames map[string]DimensionStats
	Containers   map[string]DimensionStats
}

// Collector is the concurrency-safe aggregate store.
type Collector struct {
	mu sync.Mutex

	global        *DimensionStats
	byUser        map[string]*DimensionStats
	byAppHostname map[string]*DimensionStats
	byContainer   map[string]*DimensionStats

	firstUserForApp       map[string]string
	firstUserForContainer map[string]string
}

// NewCollector builds an empty Collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.reset()
	return c
}

func (c *Collector) reset() {
	c.global = newDimensionStats()
	c.byUser = make(map[string]*DimensionStats)
	c.byAppHostname = make(map[string]*DimensionStats)
	c.byContainer = make(map[string]*DimensionStats)
	c.firstUserForApp = make(map[string]string)
	c.firstUserForContainer = make(map[string]string)
}

// Record applies one sample to the global rollup and every applicable
// dimension. A sample with an empty UserID still updates app_hostname,
// container_id, and global dimensions; it is only dropped from the
// by_user dimension.
func (c *Collector) Record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.global.record(s)

	if s.AppHostname != "" {
		stats := c.dimension(c.byAppHostname, s.AppHostname)
		stats.record(s)
		if s.UserID != "" {
			if _, ok := c.firstUserForApp[s.AppHostname]; !ok {
				c.firstUserForApp[s.AppHostname] = s.UserID
			}
		}
	}

	if s.ContainerID != "" {
		stats := c.dimension(c.byContainer, s.ContainerID)
		stats.record(s)
		if s.UserID != "" {
			if _, ok := c.firstUserForContainer[s.ContainerID]; !ok {
				c.firstUserForContainer[s.ContainerID] = s.UserID
			}
		}
	}

	if s.UserID != "" {
		stats := c.dimension(c.byUser, s.UserID)
		stats.record(s)
	}
}

func (c *Collector) dimension(index map[string]*DimensionStats, key string) *DimensionStats {
	stats, ok := index[key]
	if !ok {
		stats = newDimensionStats()
		index[key] = stats
	}
	return stats
}

// Global returns the global rollup.
func (c *Collector) Global() DimensionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global.clone()
}

// ByAppHostname returns the rollup for one app hostname.
func (c *Collector) ByAppHostname(hostname string) DimensionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.byAppHostname[hostname]; ok {
		return s.clone()
	}
	return DimensionStats{StatusHistogram: map[int]int64{}}
}

// ByContainer returns the rollup for one container id.
func (c *Collector) ByContainer(containerID string) DimensionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.byContainer[containerID]; ok {
		return s.clone()
	}
	return DimensionStats{StatusHistogram: map[int]int64{}}
}

// ByUser returns userID's own rollup plus the sub-maps of app
// hostnames and containers first attributed to that user.
func (c *Collector) ByUser(userID string) UserView {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := UserView{
		AppHostnames: make(map[string]DimensionStats),
		Containers:   make(map[string]DimensionStats),
	}
	if s, ok := c.byUser[userID]; ok {
		view.Stats = s.clone()
	} else {
		view.Stats = DimensionStats{StatusHistogram: map[int]int64{}}
	}

	for app, owner := range c.firstUserForApp {
		if owner == userID {
			view.AppHostnames[app] = c.byAppHostname[app].clone()
		}
	}
	for container, owner := range c.firstUserForContainer {
		if owner == userID {
			view.Containers[container] = c.byContainer[container].clone()
		}
	}
	return view
}

// Reset clears all counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}
