// Package billing maintains the per-container usage interval ledger:
// at most one active interval per container, idempotent on
// lifecycle-event replay, ceiling-minute duration and rate-based cost
// on close.
package billing

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgemesh/internal/enum"
	"edgemesh/internal/lifecycle"
)

// DefaultRatePerMinute is the billing rate used when none is
// configured.
const DefaultRatePerMinute = 0.01

// Interval is one open or closed usage run of a container.
type Interval struct {
	UserID          string
	ImageID         string
	ContainerID     string
	Start           time.Time
	End             *time.Time
	DurationMinutes int
	Cost            float64
	Status          enum.IntervalStatus
}

// Ledger holds every container's usage intervals, keyed by container
// id. At most one interval per container is active at a time; closed
// intervals accumulate in history.
type Ledger struct {
	rate   float64
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	active  map[string]*Interval
	history map[string][]Interval // completed intervals, newest last
}

// New builds an empty Ledger billing at ratePerMinute (falls back to
// DefaultRatePerMinute when zero).
func New(ratePerMinute float64, logger *zap.Logger) *Ledger {
	if ratePerMinute <= 0 {
		ratePerMinute = DefaultRatePerMinute
	}
	return &Ledger{
		rate:    ratePerMinute,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		active:  make(map[string]*Interval),
		history: make(map[string][]Interval),
	}
}

// Dispatcher builds a lifecycle.Dispatcher wired to onCreated/onStarted
// opening an interval and onStopped/onDeleted closing it.
// container.started mirrors container.created: either may open the
// interval depending on which event arrives first for a container.
func (l *Ledger) Dispatcher() *lifecycle.Dispatcher {
	d := lifecycle.NewDispatcher(l.onOpen, l.onOpen, l.onClose, l.onClose)
	d.OnUnknown(func(eventType string) {
		l.logger.Warn("billing: unknown lifecycle event type, skipping", zap.String("event", eventType))
	})
	return d
}

func (l *Ledger) onOpen(e lifecycle.Event) error {
	if e.UserID == "" {
		l.logger.Warn("billing: dropping event with missing user_id",
			zap.String("container_id", e.ContainerID), zap.String("event", string(e.Type)))
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.active[e.ContainerID]; ok {
		return nil // invariant C: already-active container, no-op
	}

	l.active[e.ContainerID] = &Interval{
		UserID:      e.UserID,
		ImageID:     e.ImageID,
		ContainerID: e.ContainerID,
		Start:       e.TimestampOrNow(l.now),
		Status:      enum.IntervalActive,
	}
	return nil
}

func (l *Ledger) onClose(e lifecycle.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	interval, ok := l.active[e.ContainerID]
	if !ok {
		l.logger.Warn("billing: no active interval to close", zap.String("container_id", e.ContainerID))
		return nil
	}

	end := e.TimestampOrNow(l.now)
	closed := *interval
	closed.End = &end
	closed.DurationMinutes = ceilMinutes(closed.Start, end)
	closed.Cost = round2(l.rate * float64(closed.DurationMinutes))
	closed.Status = enum.IntervalCompleted

	delete(l.active, e.ContainerID)
	l.history[e.ContainerID] = append(l.history[e.ContainerID], closed)
	return nil
}

func ceilMinutes(start, end time.Time) int {
	seconds := end.Sub(start).Seconds()
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds / 60))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// activeIntervalsLocked returns copies of the currently active
// intervals owned by userID (restricted to imageID unless it is
// empty), used by summaries. Callers must hold l.mu.
func (l *Ledger) activeIntervalsLocked(userID, imageID string) []Interval {
	var out []Interval
	for _, iv := range l.active {
		if iv.UserID == userID && (imageID == "" || iv.ImageID == imageID) {
			out = append(out, *iv)
		}
	}
	return out
}

func (l *Ledger) completedIntervalsLocked(userID, imageID string) []Interval {
	var out []Interval
	for _, ivs := range l.history {
		for _, iv := range ivs {
			if iv.UserID == userID && (imageID == "" || iv.ImageID == imageID) {
				out = append(out, iv)
			}
		}
	}
	return out
}
