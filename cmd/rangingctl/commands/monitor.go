package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	rangingserver "github.com/multirange/core/internal/ranging/server"
)

func monitorCmd() *cobra.Command {
	var (
		interval       time.Duration
		includeCurrent bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll ranging sessions for changes",
		Long:  "Polls rangingd's introspection API at --interval and prints session changes until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			seen := make(map[string]rangingserver.SessionSnapshot)

			if includeCurrent {
				if err := pollOnce(ctx, seen, true); err != nil {
					return err
				}
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := pollOnce(ctx, seen, false); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().BoolVar(&includeCurrent, "current", false,
		"print current sessions before polling for changes")

	return cmd
}

// pollOnce fetches the current session list and prints any peer that is
// new, changed, or has disappeared since the last poll, updating seen in
// place. When printAll is true every current session is printed
// regardless of whether it changed.
func pollOnce(ctx context.Context, seen map[string]rangingserver.SessionSnapshot, printAll bool) error {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	current := make(map[string]rangingserver.SessionSnapshot, len(sessions))
	for _, s := range sessions {
		key := s.Peer.String()
		current[key] = s

		prev, existed := seen[key]
		if printAll || !existed || prev.State != s.State || !sameTechnologies(prev.Technologies, s.Technologies) {
			printSessionEvent(s, existed)
		}
	}

	for key, prev := range seen {
		if _, stillPresent := current[key]; !stillPresent {
			fmt.Printf("[gone] peer=%s state=%s\n", prev.Peer.String(), prev.State)
		}
	}

	for key := range seen {
		delete(seen, key)
	}
	for key, s := range current {
		seen[key] = s
	}

	return nil
}

func printSessionEvent(s rangingserver.SessionSnapshot, wasKnown bool) {
	verb := "new"
	if wasKnown {
		verb = "changed"
	}
	fmt.Printf("[%s] peer=%s state=%s technologies=%v\n", verb, s.Peer.String(), s.State, s.Technologies)
}

func sameTechnologies(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
