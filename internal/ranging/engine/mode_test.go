package engine_test

import (
	"testing"

	"github.com/multirange/core/internal/ranging/engine"
	"github.com/multirange/core/internal/ranging/tech"
)

func TestUWBOnlyRejectsMixedSelection(t *testing.T) {
	t.Parallel()

	m := engine.UWBOnly()
	if !m.Accepts(tech.NewSet(tech.UWB)) {
		t.Error("expected UWBOnly to accept {UWB}")
	}
	if m.Accepts(tech.NewSet(tech.UWB, tech.CS)) {
		t.Error("expected UWBOnly to reject {UWB, CS}")
	}
	if m.Accepts(tech.NewSet(tech.CS)) {
		t.Error("expected UWBOnly to reject {CS}")
	}
}

func TestBestAvailableRejectsOnlyEmptySelection(t *testing.T) {
	t.Parallel()

	m := engine.BestAvailable()
	if m.Accepts(tech.Set(0)) {
		t.Error("expected BestAvailable to reject the empty set")
	}
	if !m.Accepts(tech.NewSet(tech.RSSI)) {
		t.Error("expected BestAvailable to accept any non-empty set")
	}
}

func TestFallbackAcceptsPrimaryAloneOrWithSecondary(t *testing.T) {
	t.Parallel()

	m := engine.Fallback(tech.UWB, tech.RTT)
	if !m.Accepts(tech.NewSet(tech.UWB)) {
		t.Error("expected Fallback to accept primary alone")
	}
	if !m.Accepts(tech.NewSet(tech.UWB, tech.RTT)) {
		t.Error("expected Fallback to accept primary+secondary")
	}
	if m.Accepts(tech.NewSet(tech.RTT)) {
		t.Error("expected Fallback to reject secondary alone")
	}
	if m.Accepts(tech.NewSet(tech.UWB, tech.CS)) {
		t.Error("expected Fallback to reject primary plus an unrelated technology")
	}
}
