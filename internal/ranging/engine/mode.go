package engine

import "github.com/multirange/core/internal/ranging/tech"

// Mode is a predicate over the technology set the ranging engine actually
// selected (spec section 4.7: "ranging mode policies define which
// technology subsets are acceptable"). The engine evaluates a Mode after
// select_configs() and turns a rejecting Mode into a ConfigSelectionException
// with ReasonUnsupported rather than starting a lesser configuration.
type Mode interface {
	// Accepts reports whether selected, the technologies select_configs()
	// actually produced local configs for, satisfies this policy.
	Accepts(selected tech.Set) bool

	// String names the policy for logging.
	String() string
}

// uwbOnlyMode accepts only a selection that is exactly UWB.
type uwbOnlyMode struct{}

// UWBOnly requires UWB and nothing else to have been selected.
func UWBOnly() Mode { return uwbOnlyMode{} }

func (uwbOnlyMode) Accepts(selected tech.Set) bool {
	return selected.Has(tech.UWB) && len(selected.Slice()) == 1
}

func (uwbOnlyMode) String() string { return "UWBOnly" }

// bestAvailableMode accepts any non-empty selection.
type bestAvailableMode struct{}

// BestAvailable accepts whatever the selectors managed to configure, as
// long as at least one technology was selected.
func BestAvailable() Mode { return bestAvailableMode{} }

func (bestAvailableMode) Accepts(selected tech.Set) bool { return !selected.Empty() }

func (bestAvailableMode) String() string { return "BestAvailable" }

// fallbackMode accepts the primary technology alone, or the primary
// together with the secondary, but rejects a selection that contains
// neither and rejects a selection containing technologies outside the
// pair.
type fallbackMode struct {
	primary, secondary tech.Technology
}

// Fallback builds a Mode that accepts {primary} or {primary, secondary},
// in that preference order, and nothing else.
func Fallback(primary, secondary tech.Technology) Mode {
	return fallbackMode{primary: primary, secondary: secondary}
}

func (m fallbackMode) Accepts(selected tech.Set) bool {
	if !selected.Has(m.primary) {
		return false
	}
	allowed := tech.NewSet(m.primary, m.secondary)
	for _, t := range selected.Slice() {
		if !allowed.Has(t) {
			return false
		}
	}
	return true
}

func (m fallbackMode) String() string {
	return "Fallback(" + m.primary.String() + "," + m.secondary.String() + ")"
}
