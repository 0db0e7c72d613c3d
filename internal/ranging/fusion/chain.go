package fusion

import "github.com/multirange/core/internal/ranging/model"

// chain is the per-technology filter+primer stack a FusionEngine runs
// every sample through before handing it to the DataFuser (spec section
// 4.5). aoaEnabled chains run rotation filtering and the primer stack;
// all others run only the linear distance filter.
type chain struct {
	linear   *linearFilter
	rotation *rotationFilter // nil when AoA is not active for this chain
	primers  *primerChain    // nil when AoA is not active for this chain
}

// newChain builds the filter chain for one technology. aoaEnabled mirrors
// the session's AngleOfArrivalNeeded flag, gated by whether the source
// actually reports angles (spec section 4.5: "for UWB with AoA enabled...
// for non-UWB or AoA disabled, only the linear distance filter is
// active").
func newChain(aoaEnabled bool, primerCfg PrimerConfig) *chain {
	c := &chain{linear: newLinearFilter()}
	if aoaEnabled {
		c.rotation = newRotationFilter()
		c.primers = newPrimerChain(primerCfg)
	}
	return c
}

// feed runs d through the chain in spec order: rotation filter, linear
// filter, primers. Any stage suppressing the sample short-circuits the
// rest.
func (c *chain) feed(d model.RangingData) (model.RangingData, bool) {
	if c.rotation != nil {
		var ok bool
		d, ok = c.rotation.feed(d)
		if !ok {
			return model.RangingData{}, false
		}
	}

	filtered, ok := c.linear.feed(d)
	if !ok {
		return model.RangingData{}, false
	}
	d = filtered

	if c.primers != nil {
		d, ok = c.primers.feed(d)
		if !ok {
			return model.RangingData{}, false
		}
	}
	return d, true
}
