// Package notify implements the per-session data-notification gate (spec
// section 4.4): the policy deciding whether a fresh measurement should be
// surfaced to the session listener. Like internal/bfd/fsm.go's ApplyEvent,
// the decision function is a pure function over explicit state; Gate only
// threads that state between calls so callers don't have to.
package notify

import "github.com/multirange/core/internal/ranging/model"

// EdgeState is the PROXIMITY_EDGE hysteresis state (spec section 4.4:
// "edge_armed: bool (starts true)").
type EdgeState struct {
	Armed bool
}

// DefaultEdgeState returns the initial hysteresis state.
func DefaultEdgeState() EdgeState {
	return EdgeState{Armed: true}
}

// decide is the pure decision function: given a notification config,
// hysteresis state, and a distance sample in meters, it returns whether to
// emit and the hysteresis state to carry into the next call. No field of
// cfg or edge is mutated; the caller (Gate) commits the returned state.
func decide(cfg model.NotificationConfig, edge EdgeState, distanceM float64) (bool, EdgeState) {
	switch cfg.Kind {
	case model.NotificationDisable:
		return false, edge
	case model.NotificationEnable:
		return true, edge
	case model.NotificationProximityLevel:
		near, far := cmToM(cfg.NearCm), cmToM(cfg.FarCm)
		return near <= distanceM && distanceM <= far, edge
	case model.NotificationProximityEdge:
		near, far := cmToM(cfg.NearCm), cmToM(cfg.FarCm)
		return decideEdge(near, far, edge, distanceM)
	default:
		return false, edge
	}
}

// decideEdge implements the two-state hysteresis (spec section 4.4):
// armed means the band was last observed from the outside. While armed,
// re-entering the strict interior (near < d < far) emits and disarms;
// while disarmed (inside), crossing back outside (d <= near or d >= far)
// emits and re-arms. Every other sample is suppressed.
func decideEdge(near, far float64, edge EdgeState, d float64) (bool, EdgeState) {
	if edge.Armed {
		if near < d && d < far {
			return true, EdgeState{Armed: false}
		}
		return false, edge
	}
	if d <= near || d >= far {
		return true, EdgeState{Armed: true}
	}
	return false, edge
}

func cmToM(cm uint32) float64 { return float64(cm) / 100.0 }

// -------------------------------------------------------------------------
// Gate — stateful wrapper used by the session kernel
// -------------------------------------------------------------------------

// Gate is the per-session/per-technology data-notification gate (spec
// section 4.4). The zero value is not usable; construct with NewGate.
type Gate struct {
	initial model.NotificationConfig
	current model.NotificationConfig
	edge    EdgeState
}

// NewGate constructs a Gate with cfg as both the initial and current
// configuration.
func NewGate(cfg model.NotificationConfig) *Gate {
	return &Gate{initial: cfg, current: cfg, edge: DefaultEdgeState()}
}

// AppToBackground forces the gate to DISABLE and re-arms the edge
// hysteresis (spec section 4.4).
func (g *Gate) AppToBackground() {
	g.current = model.NotificationConfig{Kind: model.NotificationDisable}
	g.edge = DefaultEdgeState()
}

// AppToForeground restores the gate's initial configuration and re-arms
// the edge hysteresis (spec section 4.4).
func (g *Gate) AppToForeground() {
	g.current = g.initial
	g.edge = DefaultEdgeState()
}

// ShouldEmit decides whether distanceM (in meters) should be surfaced,
// advancing the gate's internal hysteresis state as a side effect.
func (g *Gate) ShouldEmit(distanceM float64) bool {
	emit, next := decide(g.current, g.edge, distanceM)
	g.edge = next
	return emit
}

// Current returns the gate's active configuration (initial, unless
// AppToBackground has been called more recently than AppToForeground).
func (g *Gate) Current() model.NotificationConfig {
	return g.current
}
