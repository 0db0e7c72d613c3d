// Package fusion implements the per-peer sensor-fusion pipeline (spec
// section 4.5): a filter+primer chain per active technology feeding a
// DataFuser that merges them into one output stream.
package fusion

import (
	"sync"

	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/tech"
)

// Listener receives fused ranging data from an Engine. Implementations
// must not block (the session kernel forwards to its own listener under
// the same non-blocking expectation adapters are held to).
type Listener func(model.RangingData)

// Engine is the per-peer fusion pipeline (spec section 4.5 "FusionEngine").
// The zero value is not usable; construct with NewEngine.
type Engine struct {
	mu sync.Mutex

	chains     map[tech.Technology]*chain
	active     tech.Set
	fuser      DataFuser
	aoaEnabled bool
	primerCfg  PrimerConfig

	listener Listener
	started  bool
}

// NewEngine constructs a fusion Engine. fuser combines per-technology
// output (Passthrough or Preferential); aoaEnabled and primerCfg configure
// every chain created by AddDataSource.
func NewEngine(fuser DataFuser, aoaEnabled bool, primerCfg PrimerConfig) *Engine {
	return &Engine{
		chains:     make(map[tech.Technology]*chain),
		fuser:      fuser,
		aoaEnabled: aoaEnabled,
		primerCfg:  primerCfg,
	}
}

// Start arms the engine, registering listener as the destination for
// fused output (spec section 4.5 "start(listener)").
func (e *Engine) Start(listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = listener
	e.started = true
}

// AddDataSource allocates a configured filter chain for t, if one does not
// already exist (spec section 4.5: "idempotent; creating a source
// allocates a configured filter").
func (e *Engine) AddDataSource(t tech.Technology) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.chains[t]; exists {
		return
	}
	e.chains[t] = newChain(e.aoaEnabled, e.primerCfg)
	e.active = e.active.Add(t)
}

// RemoveDataSource disposes of t's filter chain and any fuser state for
// it, if a source exists (spec section 4.5: "idempotent... removing it
// disposes of it").
func (e *Engine) RemoveDataSource(t tech.Technology) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.chains[t]; !exists {
		return
	}
	delete(e.chains, t)
	e.active = e.active.Remove(t)
	e.fuser.Forget(t)
}

// ActiveSources reports the technologies with a live filter chain.
func (e *Engine) ActiveSources() tech.Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Feed runs data through its technology's filter chain and then the
// fuser, invoking the listener with the fused result unless either stage
// suppresses the sample (spec section 4.5: "runs the per-technology
// filter, then the fuser; emits zero or one fused RangingData per
// input"). Feeding a technology with no registered data source is a
// silent no-op (spec section 9 open question: unregistered-technology
// feed must not panic or guess at a filter).
func (e *Engine) Feed(data model.RangingData) {
	e.mu.Lock()
	c, ok := e.chains[data.Technology]
	if !ok {
		e.mu.Unlock()
		return
	}

	filtered, ok := c.feed(data)
	if !ok {
		e.mu.Unlock()
		return
	}

	fused, ok := e.fuser.Fuse(filtered, e.active)
	listener := e.listener
	started := e.started
	e.mu.Unlock()

	if !ok || !started || listener == nil {
		return
	}
	listener(fused)
}

// Stop disposes of every filter chain; no further callbacks follow (spec
// section 4.5 "stop()").
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chains = make(map[tech.Technology]*chain)
	e.active = 0
	e.started = false
	e.listener = nil
}
