package oob_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/fusion"
	"github.com/multirange/core/internal/ranging/model"
	"github.com/multirange/core/internal/ranging/session"
	"github.com/multirange/core/internal/ranging/tech"
)

// csLocalCaps is the simplest LocalCapabilities value that exercises the
// OOB handshake without the UWB/RTT detail records: CS needs nothing
// beyond presence in Supported.
func csLocalCaps() model.LocalCapabilities {
	return model.LocalCapabilities{Supported: tech.NewSet(tech.CS)}
}

func newCsEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{Local: csLocalCaps(), Mode: engine.BestAvailable()})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

// noopListener discards every session event; these tests assert on the
// Fake adapter and the kernel's state directly.
type noopListener struct{}

func (noopListener) OnConfigFinalized([]model.TechnologyConfig)                  {}
func (noopListener) OnPeerStarted(model.RangingDevice, tech.Technology)          {}
func (noopListener) OnPeerStopped(model.RangingDevice, tech.Technology, model.Reason) {}
func (noopListener) OnRangingData(model.RangingDevice, model.RangingData)        {}
func (noopListener) OnSessionClosed(model.Reason)                               {}

func newTestKernel() *session.Kernel {
	return session.New(session.Config{
		SessionConfig: model.SessionConfig{DataNotification: model.NotificationConfig{Kind: model.NotificationEnable}},
		PrimerConfig:  fusion.DefaultPrimerConfig(),
		NewFuser:      func() fusion.DataFuser { return fusion.NewPassthrough() },
	}, noopListener{})
}
