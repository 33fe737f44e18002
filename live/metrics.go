package live

import (
	"expvar"
	"net/http"

	"go.uber.org/zap"
)

// MetricsConfig controls the optional expvar endpoint, adapted from
// nad_nav/viz.go's VizConfig/StartViz.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Metrics exposes live cycle statistics via expvar, the teacher's debug
// surface (nad_nav/viz.go), repurposed from camera-anchor fields to the
// avoidance planner's mode/obstacle/speed fields. No example repo in the
// pack imports prometheus/client_golang directly (see DESIGN.md), so
// expvar remains the idiom here rather than a swap to a metrics library.
type Metrics struct {
	cycle *expvar.Map
}

// StartMetrics starts the /debug/vars HTTP endpoint when enabled.
func StartMetrics(cfg MetricsConfig, log *zap.SugaredLogger) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:7070"
	}

	m := &Metrics{cycle: expvar.NewMap("avoidance_cycle")}
	m.cycle.Set("mode", new(expvar.String))
	m.cycle.Set("obstacle_ahead", new(expvar.Int))
	m.cycle.Set("cruise_speed", new(expvar.Float))
	m.cycle.Set("path_nodes", new(expvar.Int))

	server := &http.Server{Addr: addr, Handler: http.DefaultServeMux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Errorw("live: metrics server error", "err", err)
			}
		}
	}()
	return m, nil
}

// UpdateCycle publishes one cycle's summary fields.
func (m *Metrics) UpdateCycle(mode string, obstacleAhead bool, cruiseSpeed float64, pathNodes int) {
	if m == nil {
		return
	}
	setString(m.cycle, "mode", mode)
	setInt(m.cycle, "obstacle_ahead", boolToInt(obstacleAhead))
	setFloat(m.cycle, "cruise_speed", cruiseSpeed)
	setInt(m.cycle, "path_nodes", int64(pathNodes))
}

func setString(m *expvar.Map, key, value string) {
	if v := m.Get(key); v != nil {
		if s, ok := v.(*expvar.String); ok {
			s.Set(value)
			return
		}
	}
	s := new(expvar.String)
	s.Set(value)
	m.Set(key, s)
}

func setInt(m *expvar.Map, key string, value int64) {
	if v := m.Get(key); v != nil {
		if i, ok := v.(*expvar.Int); ok {
			i.Set(value)
			return
		}
	}
	i := new(expvar.Int)
	i.Set(value)
	m.Set(key, i)
}

func setFloat(m *expvar.Map, key string, value float64) {
	if v := m.Get(key); v != nil {
		if f, ok := v.(*expvar.Float); ok {
			f.Set(value)
			return
		}
	}
	f := new(expvar.Float)
	f.Set(value)
	m.Set(key, f)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
