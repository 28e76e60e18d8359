package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xaenox/clone-bot/internal/embedding"
	"github.com/xaenox/clone-bot/internal/rag"
	"github.com/xaenox/clone-bot/internal/storage"
	"github.com/xaenox/clone-bot/pkg/config"
	"go.uber.org/zap"
)

// env carries what every subcommand needs once config is loaded
type env struct {
	logger     *zap.Logger
	configPath string
	cfg        *config.Config
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	e := &env{logger: logger}

	root := &cobra.Command{
		Use:           "clone-bot",
		Short:         "Reply to chats in your own voice while you are away",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(e.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config from %s: %w", e.configPath, err)
			}
			e.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", config.DefaultPath, "Path to config.yaml")

	root.AddCommand(
		newStartCmd(e),
		newGhostCmd(e),
		newReviewCmd(e),
		newIndexCmd(e),
		newMemoryCmd(e),
	)
	return root
}

func (e *env) openStorage() (storage.Storage, error) {
	switch e.cfg.Storage.Driver {
	case config.StorageMemory:
		e.logger.Info("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	case config.StoragePostgres:
		e.logger.Info("Using PostgreSQL storage")
		return storage.NewPostgresStorage(e.cfg.Storage.Database.Storage(), e.logger)
	default:
		e.logger.Info("Using file storage", zap.String("dir", e.cfg.DataDir))
		return storage.NewFileStorage(e.cfg.DataDir), nil
	}
}

func (e *env) indexDir() string {
	if e.cfg.Memory.IndexDir != "" {
		return e.cfg.Memory.IndexDir
	}
	return filepath.Join(e.cfg.DataDir, "memory-index")
}

// openMemory builds the retrieval memory. The caller closes the index.
func (e *env) openMemory() (*rag.Memory, rag.Index, error) {
	backend, err := embedding.ParseBackend(e.cfg.Embedding.Provider)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := embedding.New(embedding.Config{
		Backend:    backend,
		APIKey:     e.cfg.Embedding.APIKey,
		BaseURL:    e.cfg.Embedding.BaseURL,
		Model:      e.cfg.Embedding.Model,
		Dimensions: e.cfg.Embedding.Dimensions,
	}, e.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	if vs, ok := embedder.(embedding.VocabularyStore); ok {
		loaded, err := vs.LoadVocabulary(e.vocabularyPath())
		if err != nil {
			e.logger.Warn("Failed to load embedding vocabulary, using uniform weights", zap.Error(err))
		} else if loaded {
			e.logger.Debug("Loaded embedding vocabulary", zap.String("path", e.vocabularyPath()))
		}
	}

	var index rag.Index
	if e.cfg.Memory.Index == "memory" {
		index = rag.NewMemoryIndex()
	} else {
		index = rag.NewSQLiteIndex(e.indexDir(), e.logger)
	}
	return rag.NewMemory(embedder, index, e.logger), index, nil
}

func (e *env) vocabularyPath() string {
	return filepath.Join(e.indexDir(), "vocabulary.json")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func closeQuietly(logger *zap.Logger, what string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close "+what, zap.Error(err))
	}
}
