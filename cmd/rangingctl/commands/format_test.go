package commands

import (
	"strings"
	"testing"

	"github.com/multirange/core/internal/ranging/model"
	rangingserver "github.com/multirange/core/internal/ranging/server"
)

func TestFormatSessionsTable(t *testing.T) {
	t.Parallel()

	peer := model.RandomRangingDevice()
	sessions := []rangingserver.SessionSnapshot{
		{Peer: peer, State: "Active", Technologies: []string{"CS", "UWB"}},
	}

	out, err := formatSessions(sessions, formatTable)
	if err != nil {
		t.Fatalf("formatSessions() error: %v", err)
	}

	if !strings.Contains(out, peer.String()) {
		t.Errorf("formatSessions() table output missing peer: %q", out)
	}
	if !strings.Contains(out, "CS,UWB") {
		t.Errorf("formatSessions() table output missing technologies: %q", out)
	}
}

func TestFormatSessionsJSON(t *testing.T) {
	t.Parallel()

	peer := model.RandomRangingDevice()
	sessions := []rangingserver.SessionSnapshot{
		{Peer: peer, State: "Active", Technologies: []string{"CS"}},
	}

	out, err := formatSessions(sessions, formatJSON)
	if err != nil {
		t.Fatalf("formatSessions() error: %v", err)
	}
	if !strings.Contains(out, peer.String()) {
		t.Errorf("formatSessions() JSON output missing peer: %q", out)
	}
}

func TestFormatSessionsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := formatSessions(nil, "xml")
	if err == nil {
		t.Fatal("formatSessions() error = nil, want error for unsupported format")
	}
}

func TestFormatSessionDetail(t *testing.T) {
	t.Parallel()

	peer := model.RandomRangingDevice()
	session := rangingserver.SessionSnapshot{Peer: peer, State: "Active", Technologies: []string{"RTT"}}

	out, err := formatSession(session, formatTable)
	if err != nil {
		t.Fatalf("formatSession() error: %v", err)
	}
	if !strings.Contains(out, "RTT") {
		t.Errorf("formatSession() missing technology: %q", out)
	}
}
