package fusion

import (
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// DataFuser combines the filtered, per-technology outputs of one peer's
// active sources into a single stream (spec section 4.5). Implementations
// must be side-effect-free except for their own internal bookkeeping: the
// FusionEngine is the only thing that calls Fuse, in arrival order.
type DataFuser interface {
	// Fuse is called once per filtered sample that survives its chain.
	// active is the current set of technologies with a live data source on
	// this peer. It returns the data to emit and whether anything should be
	// emitted at all.
	Fuse(incoming model.RangingData, active tech.Set) (model.RangingData, bool)

	// Forget discards any cached state for t (called when the engine
	// removes a data source), so a stopped technology cannot keep
	// influencing fusion output.
	Forget(t tech.Technology)
}

// Passthrough is the simplest DataFuser: every filtered sample is emitted
// as-is (spec section 4.5 "single best source" — here, whichever source
// most recently produced a sample).
type Passthrough struct{}

// NewPassthrough constructs a Passthrough fuser.
func NewPassthrough() *Passthrough { return &Passthrough{} }

// Fuse always emits incoming unmodified.
func (p *Passthrough) Fuse(incoming model.RangingData, _ tech.Set) (model.RangingData, bool) {
	return incoming, true
}

// Forget is a no-op: Passthrough holds no per-technology state.
func (p *Passthrough) Forget(tech.Technology) {}

// Preferential prefers UWB whenever it is an active source; otherwise it
// falls back to the most recently seen source (spec section 4.5, scenario
// 4). Fused data always carries the timestamp of the triggering input,
// even when the value itself comes from the preferred source's last
// reading (spec section 4.5: "Fused data carries the timestamp of the
// triggering input").
type Preferential struct {
	last map[tech.Technology]model.RangingData
}

// NewPreferential constructs a Preferential fuser.
func NewPreferential() *Preferential {
	return &Preferential{last: make(map[tech.Technology]model.RangingData)}
}

// Fuse records incoming as the latest sample for its technology, then
// emits UWB's latest sample (stamped with incoming's timestamp) if UWB is
// active and has produced at least one sample; otherwise emits incoming.
func (p *Preferential) Fuse(incoming model.RangingData, active tech.Set) (model.RangingData, bool) {
	p.last[incoming.Technology] = incoming

	if active.Has(tech.UWB) {
		if uwb, ok := p.last[tech.UWB]; ok {
			uwb.TimestampMs = incoming.TimestampMs
			return uwb, true
		}
	}
	return incoming, true
}

// Forget drops cached state for t so it can no longer be emitted.
func (p *Preferential) Forget(t tech.Technology) {
	delete(p.last, t)
}
