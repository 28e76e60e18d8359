package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/clone-bot/internal/ghost"
)

func newGhostCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ghost",
		Short: "Control ghost mode (the clone answers only while you are away)",
	}

	// withTracker opens storage for one presence operation and prints the result
	withTracker := func(op func(ctx context.Context, t *ghost.Tracker) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			store, err := e.openStorage()
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer closeQuietly(e.logger, "storage", store)

			t := ghost.NewTracker(store, e.logger)
			if err := op(cmd.Context(), t); err != nil {
				return err
			}
			return printJSON(t.Status(cmd.Context()))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "on",
			Short: "Enable ghost mode",
			Args:  cobra.NoArgs,
			RunE:  withTracker(func(ctx context.Context, t *ghost.Tracker) error { return t.Enable(ctx) }),
		},
		&cobra.Command{
			Use:   "off",
			Short: "Disable ghost mode and mark yourself online",
			Args:  cobra.NoArgs,
			RunE:  withTracker(func(ctx context.Context, t *ghost.Tracker) error { return t.Disable(ctx) }),
		},
		&cobra.Command{
			Use:   "ping",
			Short: "Record a heartbeat now",
			Args:  cobra.NoArgs,
			RunE:  withTracker(func(ctx context.Context, t *ghost.Tracker) error { return t.Ping(ctx) }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show presence and ghost mode",
			Args:  cobra.NoArgs,
			RunE:  withTracker(func(context.Context, *ghost.Tracker) error { return nil }),
		},
	)
	return cmd
}
