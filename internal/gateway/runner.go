package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xaenox/clone-bot/internal/mimicry"
	"github.com/xaenox/clone-bot/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultReconnectDelay = 3 * time.Second
	defaultQueueSize      = 64
)

// Stats counts what happened to inbound messages
type Stats struct {
	Received int64 `json:"received"`
	Replied  int64 `json:"replied"`
	Ignored  int64 `json:"ignored"`
	Queued   int64 `json:"queued"`
	Blocked  int64 `json:"blocked"`
	Failed   int64 `json:"failed"`
}

type counters struct {
	received, replied, ignored, queued, blocked, failed atomic.Int64
}

type RunnerConfig struct {
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	// Heartbeat marks the user online while gateways are connected
	Heartbeat bool
	QueueSize int
}

type Runner struct {
	adapters  map[string]Adapter
	processor Processor
	presence  Presence
	contacts  ContactDirectory
	pacing    *mimicry.Pacing
	cfg       RunnerConfig
	logger    *zap.Logger
	stats     counters
	workers   atomic.Int64

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewRunner(adapters []Adapter, processor Processor, presence Presence, contacts ContactDirectory, pacing *mimicry.Pacing, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if pacing == nil {
		pacing = mimicry.NewPacing(nil)
	}
	byChannel := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}
	return &Runner{
		adapters:  byChannel,
		processor: processor,
		presence:  presence,
		contacts:  contacts,
		pacing:    pacing,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// Run blocks until ctx is canceled or an adapter hits a terminal error.
// On shutdown adapters stop receiving, queued messages are finished, then
// the heartbeat stops.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.adapters) == 0 {
		return errors.New("no gateways configured")
	}

	hbCtx, stopHeartbeat := context.WithCancel(context.Background())
	var hbDone sync.WaitGroup
	if r.cfg.Heartbeat && r.presence != nil {
		hbDone.Add(1)
		go func() {
			defer hbDone.Done()
			r.presence.RunHeartbeat(hbCtx, r.cfg.HeartbeatInterval)
		}()
	}

	events := make(chan InboundEvent, r.cfg.QueueSize)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		r.dispatch(context.WithoutCancel(ctx), events)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.adapters {
		g.Go(func() error {
			return r.receive(gctx, a, events)
		})
	}
	err := g.Wait()

	close(events)
	<-dispatched
	stopHeartbeat()
	hbDone.Wait()

	s := r.Stats()
	r.logger.Info("Gateways stopped",
		zap.Int64("received", s.Received),
		zap.Int64("replied", s.Replied),
		zap.Int64("ignored", s.Ignored),
		zap.Int64("queued", s.Queued),
		zap.Int64("blocked", s.Blocked),
		zap.Int64("failed", s.Failed))
	return err
}

// receive keeps one adapter connected, retrying after a fixed delay
func (r *Runner) receive(ctx context.Context, a Adapter, events chan<- InboundEvent) error {
	channel := a.Channel()
	for {
		r.logger.Info("Gateway connecting", zap.String("channel", channel))
		err := a.Receive(ctx, events)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrLoggedOut) {
			r.logger.Error("Gateway logged out, not reconnecting",
				zap.Error(err),
				zap.String("channel", channel))
			return fmt.Errorf("%s gateway: %w", channel, err)
		}
		r.logger.Warn("Gateway disconnected, reconnecting",
			zap.Error(err),
			zap.String("channel", channel),
			zap.Duration("delay", r.cfg.ReconnectDelay))
		if !r.sleep(ctx, r.cfg.ReconnectDelay) {
			return nil
		}
	}
}

type worker struct {
	key   string
	queue chan InboundEvent
	sent  int
}

// idleReport says a worker finished done events and is waiting for more
type idleReport struct {
	key  string
	done int
}

// dispatch routes events to per-conversation workers until events is
// closed. A worker is retired once it has finished everything sent to it,
// so quiet conversations do not keep a goroutine around. The dispatcher is
// the only sender, which makes the sent == done check race free.
func (r *Runner) dispatch(ctx context.Context, events <-chan InboundEvent) {
	var wg sync.WaitGroup
	workers := make(map[string]*worker)
	idle := make(chan idleReport)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				for _, w := range workers {
					close(w.queue)
				}
				wg.Wait()
				return
			}
			key := ev.conversationKey()
			w, ok := workers[key]
			if !ok {
				w = &worker{key: key, queue: make(chan InboundEvent, r.cfg.QueueSize)}
				workers[key] = w
				r.workers.Add(1)
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer r.workers.Add(-1)
					r.work(ctx, w.key, w.queue, idle)
				}()
			}
			w.sent++
			w.queue <- ev

		case report := <-idle:
			if w, ok := workers[report.key]; ok && w.sent == report.done {
				close(w.queue)
				delete(workers, report.key)
			}
		}
	}
}

// work handles one conversation in order. It offers a single idle report
// each time its queue runs dry and exits when the queue is closed.
func (r *Runner) work(ctx context.Context, key string, queue <-chan InboundEvent, idle chan<- idleReport) {
	done := 0
	reported := false
	for {
		var report chan<- idleReport
		if !reported && len(queue) == 0 {
			report = idle
		}
		select {
		case ev, ok := <-queue:
			if !ok {
				return
			}
			r.handle(ctx, ev)
			done++
			reported = false
		case report <- idleReport{key: key, done: done}:
			reported = true
		}
	}
}

// ActiveWorkers is the number of conversations with a live worker
func (r *Runner) ActiveWorkers() int {
	return int(r.workers.Load())
}

func (r *Runner) handle(ctx context.Context, ev InboundEvent) {
	r.stats.received.Add(1)
	logger := r.logger.With(
		zap.String("channel", ev.Channel),
		zap.String("conversation", ev.ConversationID),
		zap.String("event_id", ev.ID))

	if r.presence != nil && r.presence.GhostModeEnabled(ctx) && !r.presence.IsUserOffline(ctx) {
		r.stats.ignored.Add(1)
		logger.Debug("User is online, clone stays quiet")
		return
	}

	contact := ev.Sender
	if r.contacts != nil {
		contact = r.contacts.Resolve(contact)
	}
	logger.Info("Message received",
		zap.String("contact", contact.DisplayName()),
		zap.String("text", preview(ev.Message.Text)))

	outcome, err := r.processor.Process(ctx, ev.Message, contact)
	if err != nil {
		r.stats.failed.Add(1)
		logger.Error("Failed to process message", zap.Error(err))
		return
	}

	switch outcome.Action {
	case models.ActionIgnore:
		r.stats.ignored.Add(1)
		logger.Debug("Ignored")
	case models.ActionQueued:
		r.stats.queued.Add(1)
		logger.Info("Queued for review")
	case models.ActionBlocked:
		r.stats.blocked.Add(1)
		logger.Warn("Blocked by safety guard")
	case models.ActionReply:
		if err := r.deliver(ctx, ev, outcome); err != nil {
			r.stats.failed.Add(1)
			logger.Error("Failed to deliver reply", zap.Error(err))
			return
		}
		r.stats.replied.Add(1)
	}
}

// deliver sends the fragments with read, typing and gap pauses in between
func (r *Runner) deliver(ctx context.Context, ev InboundEvent, outcome models.Outcome) error {
	a, ok := r.adapters[ev.Channel]
	if !ok {
		return fmt.Errorf("no adapter for channel %q", ev.Channel)
	}

	if !r.sleep(ctx, r.pacing.ReadWait(outcome.Delay)) {
		return ctx.Err()
	}
	if err := a.MarkRead(ctx, ev.ConversationID, ev.MessageID); err != nil {
		r.logger.Debug("Failed to send read receipt", zap.Error(err), zap.String("channel", ev.Channel))
	}

	for i, fragment := range outcome.Replies {
		if err := a.SendTyping(ctx, ev.ConversationID); err != nil {
			r.logger.Debug("Failed to send typing indicator", zap.Error(err), zap.String("channel", ev.Channel))
		}
		if !r.sleep(ctx, r.pacing.FragmentTyping(fragment)) {
			return ctx.Err()
		}
		if err := a.Send(ctx, ev.ConversationID, fragment); err != nil {
			return fmt.Errorf("send fragment %d/%d: %w", i+1, len(outcome.Replies), err)
		}
		r.logger.Info("Reply sent", zap.String("channel", ev.Channel), zap.String("text", preview(fragment)))

		if i < len(outcome.Replies)-1 && !r.sleep(ctx, r.pacing.Gap()) {
			return ctx.Err()
		}
	}
	return nil
}

func (r *Runner) Stats() Stats {
	return Stats{
		Received: r.stats.received.Load(),
		Replied:  r.stats.replied.Load(),
		Ignored:  r.stats.ignored.Load(),
		Queued:   r.stats.queued.Load(),
		Blocked:  r.stats.blocked.Load(),
		Failed:   r.stats.failed.Load(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
