package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	rangingserver "github.com/multirange/core/internal/ranging/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of ranging sessions in the requested format.
func formatSessions(sessions []rangingserver.SessionSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(sessions)
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSession renders a single ranging session in the requested format.
func formatSession(session rangingserver.SessionSnapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(session)
	case formatTable:
		return formatSessionDetail(session), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}

func formatSessionsTable(sessions []rangingserver.SessionSnapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tSTATE\tTECHNOLOGIES")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			s.Peer.String(),
			s.State,
			strings.Join(s.Technologies, ","),
		)
	}

	_ = w.Flush()
	return buf.String()
}

func formatSessionDetail(s rangingserver.SessionSnapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Peer:\t%s\n", s.Peer.String())
	fmt.Fprintf(w, "State:\t%s\n", s.State)
	fmt.Fprintf(w, "Technologies:\t%s\n", strings.Join(s.Technologies, ","))

	_ = w.Flush()
	return buf.String()
}
