package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xaenox/clone-bot/internal/conversation"
	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/models"
	"github.com/xaenox/clone-bot/internal/rag"
)

func newIndexCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "index <exchanges.json>",
		Short: "Add past conversations to retrieval memory",
		Long: "Reads a JSON array of {contact, date, their_message, your_reply} objects " +
			"and embeds each exchange into the memory index.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			var exchanges []models.HistoryExchange
			if err := json.Unmarshal(data, &exchanges); err != nil {
				return fmt.Errorf("failed to parse %s: %w", args[0], err)
			}

			memory, index, err := e.openMemory()
			if err != nil {
				return err
			}
			defer closeQuietly(e.logger, "memory index", index)

			indexed, err := memory.IndexHistory(cmd.Context(), exchanges)
			if err != nil {
				return err
			}
			if vs, ok := memory.Embedder().(embedding.VocabularyStore); ok {
				if err := vs.SaveVocabulary(e.vocabularyPath()); err != nil {
					return fmt.Errorf("failed to save embedding vocabulary: %w", err)
				}
			}
			return printJSON(map[string]int{"indexed": indexed, "total": len(exchanges)})
		},
	}
}

type memoryReport struct {
	Retrieval rag.Stats             `json:"retrieval"`
	Log       *conversation.Summary `json:"log,omitempty"`
}

func newMemoryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect retrieval memory and the conversation log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show indexed memory count and conversation log size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			memory, index, err := e.openMemory()
			if err != nil {
				return err
			}
			defer closeQuietly(e.logger, "memory index", index)

			stats, err := memory.Stats(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := conversation.NewMarkdownLog(e.cfg.DataDir).Summary()
			if err != nil {
				return err
			}
			return printJSON(memoryReport{Retrieval: stats, Log: summary})
		},
	})
	return cmd
}
