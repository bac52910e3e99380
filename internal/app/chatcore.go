package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bobmcallan/vire-chat/internal/chatcore/eventlog"
	"github.com/bobmcallan/vire-chat/internal/chatcore/gateway"
	"github.com/bobmcallan/vire-chat/internal/chatcore/idempotency"
	"github.com/bobmcallan/vire-chat/internal/chatcore/jobstore"
	"github.com/bobmcallan/vire-chat/internal/chatcore/lanestore"
	"github.com/bobmcallan/vire-chat/internal/chatcore/processor"
	"github.com/bobmcallan/vire-chat/internal/chatcore/signalregistry"
	"github.com/bobmcallan/vire-chat/internal/chatcore/toolregistry"
	"github.com/bobmcallan/vire-chat/internal/chatcore/workerpool"
	"github.com/bobmcallan/vire-chat/internal/common"
	"github.com/surrealdb/surrealdb.go"
)

// ChatCore bundles the collaborators that make up the chat job
// orchestration subsystem: lane queueing, durable job records, the
// append-only event log, idempotent ingress, the LLM gateway, the tool
// registry, the per-job agent loop, and the worker pool that drives it.
type ChatCore struct {
	Lanes      lanestore.Store
	Jobs       *jobstore.Store
	Events     *eventlog.Log
	Signals    *signalregistry.Registry
	Idempotent *idempotency.Store
	Gateway    gateway.Gateway
	Tools      *toolregistry.Registry
	Processor  *processor.Processor
	Pool       *workerpool.Pool
}

// newChatCore wires a ChatCore from config. geminiKey may be empty, in
// which case the gateway is left nil and Enabled callers must check for
// that before dispatching — chat is opt-in via config.Chat.Enabled, and an
// operator may enable it before an API key is configured.
func newChatCore(ctx context.Context, cfg *common.Config, db *surrealdb.DB, logger *common.Logger, geminiKey string) (*ChatCore, error) {
	signals := signalregistry.New(signalregistry.Config{
		Capacity: cfg.Chat.SignalCapacity,
		TTL:      cfg.Chat.SignalTTL(),
	})

	events := eventlog.New(signals)

	jobRoot := cfg.Chat.JobRoot
	if jobRoot == "" {
		jobRoot = "chat-jobs"
	}
	if !filepath.IsAbs(jobRoot) {
		jobRoot = filepath.Join(cfg.Storage.DataPath, jobRoot)
	}
	jobs := jobstore.New(jobRoot)

	var lanes lanestore.Store
	switch cfg.Chat.QueueBackend {
	case "surreal":
		if db == nil {
			return nil, fmt.Errorf("chatcore: queue_backend=surreal requires a live SurrealDB connection")
		}
		lanes = lanestore.NewSurreal(db, logger)
	case "inline", "":
		lanes = lanestore.NewInline()
	default:
		return nil, fmt.Errorf("chatcore: unknown queue_backend %q", cfg.Chat.QueueBackend)
	}

	idempotentRoot := filepath.Join(cfg.Storage.DataPath, "chat", "idempotency")
	idempotent := idempotency.New(idempotentRoot, func(ctx context.Context, jobID string) (bool, error) {
		return jobs.Exists(jobID), nil
	})

	tools := toolregistry.New()

	var gw gateway.Gateway
	if geminiKey != "" {
		g, err := gateway.NewGeminiGateway(ctx, geminiKey,
			gateway.WithModel(cfg.Clients.Gemini.Model),
			gateway.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("chatcore: failed to initialize gateway: %w", err)
		}
		gw = g
	}

	var proc *processor.Processor
	var pool *workerpool.Pool
	if gw != nil {
		proc = processor.New(gw, tools, jobs, events, logger, processor.Config{
			MaxToolRounds: cfg.Chat.MaxToolRounds,
			MaxToolCalls:  cfg.Chat.MaxToolCalls,
			Model:         cfg.Clients.Gemini.Model,
		})
		pool = workerpool.New(lanes, proc, logger, workerpool.Config{
			Concurrency:    cfg.Chat.WorkerPoolSize,
			ClaimTTL:       cfg.Chat.ClaimTTL(),
			RescanInterval: cfg.Chat.RecoveryRescanInterval(),
		})
		pool.SetRescan(func(rescanCtx context.Context) (int, error) {
			return jobs.RecoverRunning(rescanCtx, lanes, pool, cfg.Chat.ClaimTTL())
		})
	}

	return &ChatCore{
		Lanes:      lanes,
		Jobs:       jobs,
		Events:     events,
		Signals:    signals,
		Idempotent: idempotent,
		Gateway:    gw,
		Tools:      tools,
		Processor:  proc,
		Pool:       pool,
	}, nil
}

// StartChatWorkerPool launches the chat worker pool, if chat is enabled
// and a gateway was successfully constructed.
func (a *App) StartChatWorkerPool() {
	if a.ChatCore == nil || a.ChatCore.Pool == nil {
		return
	}
	a.ChatCore.Pool.Start(a.Config.Chat.WorkerPoolSize)
}
