package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/clone-bot/internal/brain"
	"github.com/xaenox/clone-bot/internal/conversation"
	"github.com/xaenox/clone-bot/internal/gateway"
	"github.com/xaenox/clone-bot/internal/ghost"
	"github.com/xaenox/clone-bot/internal/mimicry"
	"github.com/xaenox/clone-bot/internal/persona"
	"github.com/xaenox/clone-bot/internal/pipeline"
	"github.com/xaenox/clone-bot/internal/safety"
	"github.com/xaenox/clone-bot/pkg/config"
	"go.uber.org/zap"
)

func newStartCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Connect the enabled gateways and start replying",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.start(cmd)
		},
	}
}

func (e *env) start(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := e.cfg

	profile, err := persona.Load(cfg.DataDir)
	if errors.Is(err, persona.ErrNoSoul) {
		return fmt.Errorf("%w: write your persona to %s/%s first", err, cfg.DataDir, persona.SoulFile)
	}
	if err != nil {
		return err
	}
	e.logger.Info("Loaded persona", zap.String("name", profile.Name))

	store, err := e.openStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeQuietly(e.logger, "storage", store)

	backend, err := brain.ParseBackend(cfg.LLM.Provider)
	if err != nil {
		return err
	}
	generator, err := brain.New(brain.Config{
		Backend:     backend,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	memory, index, err := e.openMemory()
	if err != nil {
		return err
	}
	defer closeQuietly(e.logger, "memory index", index)

	var exchangeLog conversation.ExchangeLog
	if cfg.Memory.Log {
		exchangeLog = conversation.NewMarkdownLog(cfg.DataDir)
	}

	policy, err := cfg.Safety.Policy()
	if err != nil {
		return err
	}

	presence := ghost.NewTracker(store, e.logger)
	orchestrator := pipeline.New(pipeline.Deps{
		Profile:           profile,
		Generator:         generator,
		Retriever:         memory,
		Tracker:           conversation.NewTracker(exchangeLog, e.logger),
		Guard:             safety.NewGuard(profile, safety.Policy{BlockAt: policy.BlockAt, QueueAt: policy.QueueAt}),
		Reviews:           safety.NewReviewQueue(ctx, store, e.logger),
		Mimicry:           mimicry.NewEngine(mimicrySettings(profile, cfg)),
		Logger:            e.logger,
		GenerationTimeout: cfg.LLM.Timeout,
	})

	adapters, err := e.adapters()
	if err != nil {
		return err
	}

	runner := gateway.NewRunner(
		adapters,
		orchestrator,
		presence,
		gateway.NewContactDirectory(cfg.ContactList()),
		mimicry.NewPacing(nil),
		gateway.RunnerConfig{
			ReconnectDelay:    cfg.Gateway.ReconnectDelay,
			HeartbeatInterval: cfg.Ghost.HeartbeatInterval,
			Heartbeat:         cfg.Ghost.Heartbeat,
			QueueSize:         cfg.Gateway.QueueSize,
		},
		e.logger,
	)

	if cfg.Ghost.Heartbeat {
		e.logger.Warn("Gateway heartbeat is on: while the clone runs you count as online, so ghost mode will not reply")
	}

	e.logger.Info("Clone is running", zap.Int("gateways", len(adapters)), zap.String("backend", string(backend)))
	return runner.Run(ctx)
}

func (e *env) adapters() ([]gateway.Adapter, error) {
	var adapters []gateway.Adapter

	if e.cfg.Telegram.Enabled {
		tg, err := gateway.NewTelegramAdapter(gateway.TelegramConfig{
			Token:       e.cfg.Telegram.Token,
			PollTimeout: e.cfg.Telegram.PollTimeout,
			Debug:       e.cfg.Telegram.Debug,
			APIEndpoint: e.cfg.Telegram.APIEndpoint,
		}, e.logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, tg)
	}

	if e.cfg.Matrix.Enabled {
		mx, err := gateway.NewMatrixAdapter(gateway.MatrixConfig{
			Homeserver:  e.cfg.Matrix.Homeserver,
			UserID:      e.cfg.Matrix.UserID,
			AccessToken: e.cfg.Matrix.AccessToken,
			AutoJoin:    e.cfg.Matrix.AutoJoin,
		}, e.logger)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, mx)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no gateway enabled: set telegram.enabled or matrix.enabled")
	}
	return adapters, nil
}

// mimicrySettings starts from the persona and applies config overrides
func mimicrySettings(profile persona.Profile, cfg *config.Config) mimicry.Settings {
	s := mimicry.SettingsFromProfile(profile)
	if cfg.Mimicry.ResponseTimeAvg > 0 {
		s.Baseline = cfg.Mimicry.ResponseTimeAvg
	}
	if cfg.Mimicry.OnlineHoursStart > 0 || cfg.Mimicry.OnlineHoursEnd > 0 {
		s.OnlineHoursStart = cfg.Mimicry.OnlineHoursStart
		s.OnlineHoursEnd = cfg.Mimicry.OnlineHoursEnd
	}
	if cfg.Mimicry.TypoRate > 0 {
		s.TypoRate = cfg.Mimicry.TypoRate
	}
	if cfg.Style.Capitalization != "" {
		s.Capitalization = cfg.Style.Capitalization
	}
	if cfg.Style.AvgMessageLength > 0 {
		s.AvgMessageLength = cfg.Style.AvgMessageLength
	}
	return s
}
