// Package worker schedules scoring runs in serve mode: on a fixed interval,
// and on demand via the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sebasrosalesr/credit-intelligence-center/internal/domain"
	"github.com/sebasrosalesr/credit-intelligence-center/internal/engine"
)

// Worker triggers scoring runs. A run in progress is never overlapped; a
// trigger arriving mid-run is dropped (the next interval covers it).
type Worker struct {
	engine *engine.Engine
	bus    domain.EventBus

	mu      sync.Mutex
	running bool

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Interval between scheduled runs. Zero disables the ticker; runs
	// then only happen via bus triggers.
	Interval time.Duration

	// Options applied to every scheduled run.
	RunOptions engine.RunOptions
}

// RunRequest is the bus payload for on-demand runs. Zero-valued fields fall
// back to the worker's configured options.
type RunRequest struct {
	DryRun    *bool  `json:"dry_run,omitempty"`
	Target    string `json:"target,omitempty"`
	BatchSize int    `json:"batch_size,omitempty"`
	Filter    string `json:"filter,omitempty"`
}

// NewWorker creates a run scheduler.
func NewWorker(eng *engine.Engine, bus domain.EventBus) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		engine: eng,
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins interval scheduling and subscribes to run requests.
func (w *Worker) Start(cfg Config) error {
	if w.bus != nil {
		sub, err := w.bus.Subscribe(w.ctx, domain.TopicRunRequest, func(ctx context.Context, msg *domain.Message) error {
			return w.handleRunRequest(ctx, cfg, msg)
		})
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
		slog.Info("worker subscribed", "topic", domain.TopicRunRequest)
	}

	if cfg.Interval > 0 {
		w.wg.Add(1)
		go w.tick(cfg)
		slog.Info("worker scheduled", "interval", cfg.Interval.String())
	}

	return nil
}

func (w *Worker) tick(cfg Config) {
	defer w.wg.Done()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(w.ctx, cfg.RunOptions)
		}
	}
}

func (w *Worker) handleRunRequest(ctx context.Context, cfg Config, msg *domain.Message) error {
	opts := cfg.RunOptions

	var req RunRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Error("invalid run request payload", "message_id", msg.ID, "error", err)
			return err
		}
	}

	if req.DryRun != nil {
		opts.DryRun = *req.DryRun
	}
	if req.Target != "" {
		opts.Target = req.Target
	}
	if req.BatchSize > 0 {
		opts.BatchSize = req.BatchSize
	}
	if req.Filter != "" {
		opts.Filter = req.Filter
	}

	w.runOnce(ctx, opts)
	return nil
}

func (w *Worker) runOnce(ctx context.Context, opts engine.RunOptions) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		slog.Warn("run already in progress, skipping trigger")
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if _, err := w.engine.Run(ctx, opts); err != nil {
		slog.Error("scheduled run failed", "error", err)
	}
}

// Stop cancels scheduling and waits for the ticker goroutine to drain.
// A run already in flight finishes on its own.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}
