package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/clone-bot/internal/safety"
	"github.com/xaenox/clone-bot/internal/storage"
)

func newReviewCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and resolve replies held back by the safety guard",
	}

	open := func(cmd *cobra.Command) (*safety.ReviewQueue, storage.Storage, error) {
		store, err := e.openStorage()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return safety.NewReviewQueue(cmd.Context(), store, e.logger), store, nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List pending review items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(e.logger, "storage", store)
			return printJSON(queue.Pending(cmd.Context()))
		},
	}

	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(e.logger, "storage", store)

			item, err := queue.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}

	var edited string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending reply, optionally recording what should have been said",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(e.logger, "storage", store)

			item, err := queue.Reject(cmd.Context(), args[0], edited)
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
	reject.Flags().StringVar(&edited, "edit", "", "Corrected reply to keep with the rejected item")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count review items by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, store, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(e.logger, "storage", store)
			return printJSON(queue.Stats(cmd.Context()))
		},
	}

	cmd.AddCommand(list, approve, reject, stats)
	return cmd
}
