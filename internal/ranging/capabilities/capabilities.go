// Package capabilities defines the CapabilitiesProvider contract the
// ranging core consumes to learn what the local device can do and when
// that changes (spec section 1 "the core consumes a CapabilitiesProvider
// interface", section 2, section 4.2).
package capabilities

import (
	"context"
	"log/slog"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// Provider exposes the local device's current ranging capabilities and
// notifies subscribers when they change (new hardware becomes available,
// a radio is toggled off, etc.). Implementations live outside this
// specification (spec section 1 names capability discovery as an external
// collaborator); this package only defines the contract and a stub used in
// tests and single-capability-set deployments.
//
// Usage:
//
//	p := capabilities.NewStatic(caps, logger)
//	changes := p.Events()
//	go func() {
//	    for c := range changes {
//	        handle(c) // caller-supplied reaction to a capability change
//	    }
//	}()
//	p.Run(ctx) // blocks until ctx is cancelled
type Provider interface {
	// Current returns the most recently known capability snapshot. Safe to
	// call concurrently with Run.
	Current() model.LocalCapabilities

	// Run starts watching for capability changes. It blocks until ctx is
	// cancelled. Detected changes are sent to the channel returned by
	// Events(). Run must be called at most once.
	Run(ctx context.Context) error

	// Events returns a read-only channel that receives updated capability
	// snapshots whenever they change. The channel is closed when Run
	// returns.
	Events() <-chan model.LocalCapabilities

	// Close releases any resources held by the provider. If Run is still
	// active, the caller should cancel the context first.
	Close() error
}

// -------------------------------------------------------------------------
// StaticProvider — fixed-capability implementation
// -------------------------------------------------------------------------

// StaticProvider is a Provider whose capability snapshot never changes
// after construction. It is the reference implementation of Provider; a
// real deployment supplies its own Provider backed by the platform's radio
// stacks. cmd/rangingd does not use it: it hands the engine a closure over
// the capability set built from its configuration.
type StaticProvider struct {
	caps   model.LocalCapabilities
	events chan model.LocalCapabilities
	logger *slog.Logger
}

// NewStatic creates a Provider that always reports caps and emits no
// change events.
func NewStatic(caps model.LocalCapabilities, logger *slog.Logger) *StaticProvider {
	return &StaticProvider{
		caps:   caps,
		events: make(chan model.LocalCapabilities),
		logger: logger.With(slog.String("component", "capabilities.static")),
	}
}

// Current returns the fixed capability snapshot.
func (p *StaticProvider) Current() model.LocalCapabilities { return p.caps }

// Run blocks until ctx is cancelled. The static provider never emits
// change events.
func (p *StaticProvider) Run(ctx context.Context) error {
	p.logger.Info("static capabilities provider started", slog.Any("supported", p.caps.Supported.Slice()))
	<-ctx.Done()
	close(p.events)
	p.logger.Info("static capabilities provider stopped")
	return nil
}

// Events returns the (always empty) change-event channel.
func (p *StaticProvider) Events() <-chan model.LocalCapabilities { return p.events }

// Close is a no-op for the static provider.
func (p *StaticProvider) Close() error { return nil }

// -------------------------------------------------------------------------
// Ranging technology model (spec section 4.2)
// -------------------------------------------------------------------------

// IsSupported reports whether t is among the technologies caps declares
// support for (spec section 4.2: "is_supported(tech, platform_caps) is
// evaluated against capability providers only").
func IsSupported(t tech.Technology, caps model.LocalCapabilities) bool {
	return caps.Supported.Has(t)
}
