// Package workerpool runs the goroutines that actually process chat jobs.
// It is deliberately ignorant of chat semantics: it knows how to take a
// dispatch-ready (lane, job) pair off a channel, hand it to an injected
// Processor, and release the lane slot afterwards — adapted from the
// donor's JobManager.processLoop()/safeGo() pattern, generalized from a
// single shared priority queue to per-lane dispatch.
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bobmcallan/vire-chat/internal/chatcore/lanestore"
	"github.com/bobmcallan/vire-chat/internal/common"
)

// Dispatch is one lane's turn to run: the lane whose active slot now holds
// jobID.
type Dispatch struct {
	LaneID string
	JobID  string
}

// Processor executes one job to completion (or cancellation/failure). It
// must not block past ctx's cancellation.
type Processor interface {
	Process(ctx context.Context, laneID, jobID string)
}

// Pool runs N worker goroutines draining a dispatch channel, releasing
// each lane's active slot via lanestore.Finish when a job completes and
// re-enqueuing the lane's next job (if any) for dispatch.
type Pool struct {
	store     lanestore.Store
	processor Processor
	logger    *common.Logger
	claimTTL  time.Duration

	dispatch chan Dispatch
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	rescanInterval time.Duration
	rescan         func(ctx context.Context) (int, error)
}

// Config bundles the pool's tunables.
type Config struct {
	Concurrency    int
	ClaimTTL       time.Duration
	QueueDepth     int           // dispatch channel buffer
	RescanInterval time.Duration // periodic crash-recovery scan; 0 disables it
}

// New constructs a Pool. Call Start to launch workers.
func New(store lanestore.Store, processor Processor, logger *common.Logger, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	return &Pool{
		store:          store,
		processor:      processor,
		logger:         logger,
		claimTTL:       cfg.ClaimTTL,
		dispatch:       make(chan Dispatch, cfg.QueueDepth),
		rescanInterval: cfg.RescanInterval,
	}
}

// SetRescan installs the periodic crash-recovery scan Start launches
// alongside the worker goroutines, in addition to whatever startup scan the
// caller already ran. fn is expected to be the jobstore recovery scan,
// closed over the pool itself so it can dispatch whatever it recovers; it
// is called on its own goroutine so it must respect ctx cancellation. A nil
// fn or non-positive RescanInterval leaves only the startup scan in place.
func (p *Pool) SetRescan(fn func(ctx context.Context) (int, error)) {
	p.rescan = fn
}

// safeGo launches fn with panic recovery, matching the donor's
// JobManager.safeGo.
func (p *Pool) safeGo(name string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("recovered from panic in worker pool goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the configured number of worker goroutines. Safe to call
// once; call Stop before starting again.
func (p *Pool) Start(concurrency int) {
	ctx, cancel := context.WithCancel(context.Background())
	p.ctx = ctx
	p.cancel = cancel

	if concurrency <= 0 {
		concurrency = 5
	}
	for i := 0; i < concurrency; i++ {
		name := fmt.Sprintf("chat-worker-%d", i)
		p.safeGo(name, func() { p.run(ctx) })
	}

	if p.rescan != nil && p.rescanInterval > 0 {
		p.safeGo("chat-rescan", func() { p.rescanLoop(ctx) })
	}
}

// rescanLoop periodically re-runs crash recovery so orphaned jobs left
// behind between the startup scan and now — e.g. a worker that died
// mid-job without the process itself restarting — still get re-enqueued.
func (p *Pool) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(p.rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			recovered, err := p.rescan(ctx)
			if err != nil {
				p.logger.Warn().Err(err).Msg("periodic chat job recovery scan failed")
				continue
			}
			if recovered > 0 {
				p.logger.Info().Int("recovered", recovered).
					Msg("periodic chat job recovery scan re-enqueued orphaned jobs")
			}
		}
	}
}

// Stop cancels all workers and waits for them to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Submit enqueues a dispatch-ready (lane, job) pair for a free worker to
// pick up. Called by ingress immediately after lanestore.Enqueue reports
// Dispatch: true, and by the pool itself when Finish promotes a queued job.
// Back-pressure is absorbed by lane queues upstream and by the dispatch
// channel's own buffer; Submit blocks rather than drop once both are full,
// since a dropped dispatch would leave its lane's active slot permanently
// occupied with nothing to ever release it. Unblocks early if the pool is
// stopped.
func (p *Pool) Submit(d Dispatch) {
	ctx := p.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case p.dispatch <- d:
	case <-ctx.Done():
		p.logger.Warn().Str("lane_id", d.LaneID).Str("job_id", d.JobID).
			Msg("worker pool stopped before dispatch could be submitted")
	}
}

func (p *Pool) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.dispatch:
			p.processOne(ctx, d)
		}
	}
}

func (p *Pool) processOne(ctx context.Context, d Dispatch) {
	start := time.Now()
	p.processor.Process(ctx, d.LaneID, d.JobID)
	duration := time.Since(start)

	result, err := p.store.Finish(ctx, d.LaneID, d.JobID, p.claimTTL)
	if err != nil {
		p.logger.Warn().Str("lane_id", d.LaneID).Str("job_id", d.JobID).Err(err).
			Msg("failed to release lane slot after processing")
		return
	}
	if result.Outcome == lanestore.FinishNotOwner {
		p.logger.Warn().Str("lane_id", d.LaneID).Str("job_id", d.JobID).
			Msg("finish reported not_owner — another actor already advanced this lane")
		return
	}

	p.logger.Debug().Str("lane_id", d.LaneID).Str("job_id", d.JobID).
		Dur("duration", duration).Msg("chat job processed")

	if result.Next != nil {
		p.Submit(Dispatch{LaneID: d.LaneID, JobID: *result.Next})
	}
}
