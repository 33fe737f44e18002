package live

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Health describes the watchdog's current assessment. It never touches
// planner internals, only the last cycle's completion time, per
// spec.md §5's "staging fields and the last AvoidanceOutput are the
// only cross-thread state."
type Health int

const (
	HealthOK Health = iota
	HealthCritical
	HealthTermination
)

func (h Health) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthCritical:
		return "critical"
	case HealthTermination:
		return "termination"
	default:
		return "unknown"
	}
}

// Watchdog polls the age of the last completed planning cycle against
// TimeoutCritical/TimeoutTermination thresholds (spec.md §5).
type Watchdog struct {
	mu                 sync.Mutex
	lastCycle          time.Time
	timeoutCritical    time.Duration
	timeoutTermination time.Duration
	log                *zap.SugaredLogger
}

// NewWatchdog constructs a Watchdog with the given thresholds.
func NewWatchdog(timeoutCritical, timeoutTermination time.Duration, log *zap.SugaredLogger) *Watchdog {
	return &Watchdog{
		lastCycle:          time.Now(),
		timeoutCritical:    timeoutCritical,
		timeoutTermination: timeoutTermination,
		log:                log,
	}
}

// NotifyCycleComplete records that a planning cycle just finished.
func (w *Watchdog) NotifyCycleComplete(at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastCycle = at
}

// Health evaluates the current watchdog state.
func (w *Watchdog) Health(now time.Time) Health {
	w.mu.Lock()
	age := now.Sub(w.lastCycle)
	w.mu.Unlock()

	switch {
	case w.timeoutTermination > 0 && age > w.timeoutTermination:
		return HealthTermination
	case w.timeoutCritical > 0 && age > w.timeoutCritical:
		return HealthCritical
	default:
		return HealthOK
	}
}

// Run polls Health every interval until stop is closed, logging
// transitions. It never calls back into the planner: callers read
// Health() directly to decide on a forced-hover command.
func (w *Watchdog) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := HealthOK
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h := w.Health(now)
			if h != last && w.log != nil {
				w.log.Warnw("live: watchdog health transition", "from", last.String(), "to", h.String())
			}
			last = h
		}
	}
}
