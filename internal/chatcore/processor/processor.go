// Package processor runs the per-job LLM-tool agent loop: build the
// prompt, call the gateway, dispatch any tool calls through the role gate,
// and emit events for each step until the model produces a final answer
// or a budget/cancellation cuts the loop short. Adapted from the donor's
// executeJob dispatch-by-type switch, generalized from a fixed job-type
// table to an open-ended tool-call loop.
package processor

import (
	"context"
	"fmt"

	"github.com/bobmcallan/vire-chat/internal/chatcore/eventlog"
	"github.com/bobmcallan/vire-chat/internal/chatcore/gateway"
	"github.com/bobmcallan/vire-chat/internal/chatcore/jobstore"
	"github.com/bobmcallan/vire-chat/internal/chatcore/toolregistry"
	"github.com/bobmcallan/vire-chat/internal/common"
	"github.com/bobmcallan/vire-chat/internal/models"
)

const (
	DefaultMaxToolRounds = 5
	DefaultMaxToolCalls  = 12
)

// Config bundles the processor's tunables.
type Config struct {
	MaxToolRounds int
	MaxToolCalls  int
	Model         string
}

// Processor runs the agent loop for one job at a time. A single Processor
// instance is shared across worker goroutines — all its dependencies are
// safe for concurrent use.
type Processor struct {
	gateway gateway.Gateway
	tools   *toolregistry.Registry
	jobs    *jobstore.Store
	events  *eventlog.Log
	logger  *common.Logger
	cfg     Config
}

// New constructs a Processor.
func New(gw gateway.Gateway, tools *toolregistry.Registry, jobs *jobstore.Store, events *eventlog.Log, logger *common.Logger, cfg Config) *Processor {
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = DefaultMaxToolCalls
	}
	return &Processor{gateway: gw, tools: tools, jobs: jobs, events: events, logger: logger, cfg: cfg}
}

// Process implements workerpool.Processor. It never returns an error —
// every failure mode is recorded as a job.failed event and a persisted
// status transition, since the worker pool treats a processor call as
// fire-and-log.
func (p *Processor) Process(ctx context.Context, laneID, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			p.fail(laneID, jobID, models.ErrKindInternal, msg)
			p.appendBestEffort(p.jobs.JobDir(laneID, jobID), jobID, models.EventJobFailed, map[string]interface{}{
				"error_kind": string(models.ErrKindInternal), "message": msg,
			})
		}
	}()

	job, err := p.jobs.Load(laneID, jobID)
	if err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("processor: failed to load job record")
		return
	}
	if job.Status == models.ChatJobCancelled {
		return
	}

	if _, err := p.jobs.Transition(laneID, jobID, func(j *models.ChatJob) error {
		j.Status = models.ChatJobProcessing
		return nil
	}); err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("processor: failed to mark job processing")
		return
	}

	dir := p.jobs.JobDir(laneID, jobID)
	p.appendBestEffort(dir, jobID, models.EventJobProcessing, nil)

	messages := append([]models.ChatMessage(nil), job.Messages...)
	dispatchCtx := toolregistry.DispatchContext{
		Role:      job.Role,
		TeacherID: job.TeacherID,
		StudentID: job.StudentID,
		AuditTag:  job.JobID,
	}

	totalToolCalls := 0
	for round := 0; round < p.cfg.MaxToolRounds; round++ {
		if p.isCancelled(laneID, jobID) {
			p.appendBestEffort(dir, jobID, models.EventJobCancelled, nil)
			p.finalize(laneID, jobID, models.ChatJobCancelled, nil)
			return
		}

		resp, err := p.gateway.Complete(ctx, gateway.Request{
			Model:    p.cfg.Model,
			Messages: messages,
			Tools:    p.tools.Specs(job.Role),
		})
		if err != nil {
			kind := models.ErrKindGatewayFailure
			if chatErr, ok := err.(*models.ChatError); ok {
				kind = chatErr.Kind
			}
			p.fail(laneID, jobID, kind, err.Error())
			p.appendBestEffort(dir, jobID, models.EventJobFailed, map[string]interface{}{
				"error_kind": string(kind), "message": err.Error(),
			})
			return
		}

		if len(resp.Message.ToolCalls) == 0 {
			p.appendBestEffort(dir, jobID, models.EventAssistantDelta, map[string]interface{}{"text": resp.Message.Content})
			p.appendBestEffort(dir, jobID, models.EventAssistantDone, map[string]interface{}{"text": resp.Message.Content})
			reply := resp.Message
			p.finalize(laneID, jobID, models.ChatJobDone, &reply)
			p.appendBestEffort(dir, jobID, models.EventJobDone, nil)
			return
		}

		totalToolCalls += len(resp.Message.ToolCalls)
		if totalToolCalls > p.cfg.MaxToolCalls {
			p.fail(laneID, jobID, models.ErrKindToolBudgetExceeded, "tool call budget exceeded")
			p.appendBestEffort(dir, jobID, models.EventJobFailed, map[string]interface{}{
				"error_kind": string(models.ErrKindToolBudgetExceeded), "message": "tool call budget exceeded",
			})
			return
		}

		messages = append(messages, resp.Message)

		for _, call := range resp.Message.ToolCalls {
			p.appendBestEffort(dir, jobID, models.EventToolStart, map[string]interface{}{
				"tool": call.Name, "call_id": call.ID,
			})

			issues, validateErr := p.tools.Validate(call.Name, call.Arguments)
			if validateErr != nil || len(issues) > 0 {
				payload := map[string]interface{}{"tool": call.Name, "error": "invalid_arguments"}
				p.appendBestEffort(dir, jobID, models.EventToolResult, payload)
				messages = append(messages, toolResultMessage(call, `{"error":"invalid_arguments"}`))
				continue
			}

			result, dispatchErr := p.tools.Dispatch(ctx, call.Name, call.Arguments, dispatchCtx)
			if dispatchErr != nil {
				result = `{"error":"tool_failure"}`
			}
			p.appendBestEffort(dir, jobID, models.EventToolResult, map[string]interface{}{
				"tool": call.Name, "call_id": call.ID, "result": result,
			})
			messages = append(messages, toolResultMessage(call, result))
		}
	}

	p.fail(laneID, jobID, models.ErrKindToolBudgetExceeded, "tool round budget exceeded")
	p.appendBestEffort(dir, jobID, models.EventJobFailed, map[string]interface{}{
		"error_kind": string(models.ErrKindToolBudgetExceeded), "message": "tool round budget exceeded",
	})
}

func toolResultMessage(call models.ChatToolCall, result string) models.ChatMessage {
	return models.ChatMessage{Role: "tool", Name: call.Name, ToolCallID: call.ID, Content: result}
}

func (p *Processor) isCancelled(laneID, jobID string) bool {
	job, err := p.jobs.Load(laneID, jobID)
	if err != nil {
		return false
	}
	return job.Status == models.ChatJobCancelled
}

func (p *Processor) fail(laneID, jobID string, kind models.ChatErrorKind, message string) {
	_, err := p.jobs.Transition(laneID, jobID, func(j *models.ChatJob) error {
		j.Status = models.ChatJobFailed
		j.Error = &models.ChatError{Kind: kind, Message: message}
		return nil
	})
	if err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("processor: failed to persist failure transition")
	}
}

func (p *Processor) finalize(laneID, jobID string, status models.ChatJobStatus, reply *models.ChatMessage) {
	_, err := p.jobs.Transition(laneID, jobID, func(j *models.ChatJob) error {
		j.Status = status
		j.Reply = reply
		return nil
	})
	if err != nil {
		p.logger.Error().Str("job_id", jobID).Err(err).Msg("processor: failed to persist terminal transition")
	}
}

// appendBestEffort appends an event, logging but swallowing failure —
// event-append errors must never mask a job's real outcome.
func (p *Processor) appendBestEffort(dir, jobID string, eventType models.ChatEventType, payload map[string]interface{}) {
	if _, err := p.events.Append(dir, jobID, eventType, payload); err != nil {
		p.logger.Warn().Str("job_id", jobID).Str("event_type", string(eventType)).Err(err).
			Msg("processor: failed to append event")
	}
}
