package fusion

import "github.com/multirange/core/internal/ranging/model"

// PrimerConfig holds the tunables for the AoA-conditioning primer stack
// (spec section 4.5). All angles are degrees; 0 is boresight.
type PrimerConfig struct {
	// FieldOfViewDeg is the half-angle the field-of-view primer gates on:
	// azimuth readings outside [-FieldOfViewDeg, FieldOfViewDeg] are
	// suppressed.
	FieldOfViewDeg float64
	// FrontVelocityThreshold and BackVelocityThreshold are the
	// angular-velocity thresholds (degrees per sample) the back-azimuth
	// primer uses to decide whether a fast swing indicates the peer has
	// moved behind the device (spec section 4.5 "back-azimuth
	// disambiguation with configurable front/back angular-velocity
	// thresholds").
	FrontVelocityThreshold float64
	BackVelocityThreshold  float64
}

// DefaultPrimerConfig returns conservative defaults used when the session
// does not override them.
func DefaultPrimerConfig() PrimerConfig {
	return PrimerConfig{
		FieldOfViewDeg:          120,
		FrontVelocityThreshold:  90,
		BackVelocityThreshold:   45,
	}
}

// primer is a signal-conditioning stage applied after the rotation/linear
// filters, in the order described by spec section 4.5: AoA conditioning,
// field-of-view gating, back-azimuth disambiguation, mirror score,
// masking.
type primer interface {
	feed(d model.RangingData) (model.RangingData, bool)
}

// primerChain runs a fixed sequence of primers, short-circuiting on the
// first suppression.
type primerChain struct {
	stages []primer
}

func newPrimerChain(cfg PrimerConfig) *primerChain {
	return &primerChain{stages: []primer{
		&aoaConditioningPrimer{},
		&fovGatePrimer{halfAngle: cfg.FieldOfViewDeg},
		&backAzimuthPrimer{frontThreshold: cfg.FrontVelocityThreshold, backThreshold: cfg.BackVelocityThreshold},
		&mirrorScorePrimer{},
		&maskingPrimer{},
	}}
}

func (c *primerChain) feed(d model.RangingData) (model.RangingData, bool) {
	for _, stage := range c.stages {
		var ok bool
		d, ok = stage.feed(d)
		if !ok {
			return model.RangingData{}, false
		}
	}
	return d, true
}

// aoaConditioningPrimer normalizes azimuth into (-180, 180] so downstream
// gating and disambiguation operate on a consistent range.
type aoaConditioningPrimer struct{}

func (p *aoaConditioningPrimer) feed(d model.RangingData) (model.RangingData, bool) {
	if d.Azimuth == nil {
		return d, true
	}
	az := *d.Azimuth
	az.Value = normalizeAngle(az.Value)
	d.Azimuth = &az
	return d, true
}

func normalizeAngle(deg float64) float64 {
	for deg <= -180 {
		deg += 360
	}
	for deg > 180 {
		deg -= 360
	}
	return deg
}

// fovGatePrimer suppresses samples whose azimuth falls outside the
// configured field of view (spec section 4.5 "field-of-view gating").
// A zero or negative halfAngle disables gating.
type fovGatePrimer struct {
	halfAngle float64
}

func (p *fovGatePrimer) feed(d model.RangingData) (model.RangingData, bool) {
	if p.halfAngle <= 0 || d.Azimuth == nil {
		return d, true
	}
	if absFloat(d.Azimuth.Value) > p.halfAngle {
		return model.RangingData{}, false
	}
	return d, true
}

// backAzimuthPrimer disambiguates a peer swinging behind the device: a
// fast angular swing past the front threshold is treated as the peer
// crossing to the back half-plane and the azimuth is mirrored around
// boresight; a swing slower than the back threshold is treated as
// continued front-side motion and left unmodified.
type backAzimuthPrimer struct {
	frontThreshold float64
	backThreshold  float64

	havePrev bool
	prevDeg  float64
	behind   bool
}

func (p *backAzimuthPrimer) feed(d model.RangingData) (model.RangingData, bool) {
	if d.Azimuth == nil {
		return d, true
	}
	cur := d.Azimuth.Value
	if p.havePrev {
		velocity := absFloat(cur - p.prevDeg)
		switch {
		case velocity >= p.frontThreshold:
			p.behind = true
		case velocity <= p.backThreshold:
			p.behind = false
		}
	}
	p.prevDeg = cur
	p.havePrev = true

	if p.behind {
		az := *d.Azimuth
		az.Value = normalizeAngle(180 - az.Value)
		d.Azimuth = &az
	}
	return d, true
}

// mirrorScorePrimer downgrades confidence near the field-of-view edge,
// where azimuth ambiguity between a true reading and its mirror image is
// highest (spec section 4.5 "mirror score").
type mirrorScorePrimer struct{}

const mirrorScoreEdgeDeg = 100

func (p *mirrorScorePrimer) feed(d model.RangingData) (model.RangingData, bool) {
	if d.Azimuth == nil {
		return d, true
	}
	if absFloat(d.Azimuth.Value) >= mirrorScoreEdgeDeg && d.Azimuth.Confidence > model.ConfidenceLow {
		az := *d.Azimuth
		az.Confidence--
		d.Azimuth = &az
	}
	return d, true
}

// maskingPrimer suppresses samples the device's own chassis would occlude
// (spec section 4.5 "masking"): elevation readings steeply below the
// horizon are treated as blocked by the device body.
type maskingPrimer struct{}

const maskedElevationDeg = -60

func (p *maskingPrimer) feed(d model.RangingData) (model.RangingData, bool) {
	if d.Elevation != nil && d.Elevation.Value <= maskedElevationDeg {
		return model.RangingData{}, false
	}
	return d, true
}
