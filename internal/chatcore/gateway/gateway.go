// Package gateway is the chat processor's only door to an LLM backend. It
// defines the Gateway interface the processor depends on and a concrete
// Gemini-backed implementation, adapted from the donor's
// internal/clients/gemini.Client — generalized from single-shot content
// generation to a multi-turn, tool-calling chat completion, and wrapped in
// cenkalti/backoff/v4 retry since the processor itself never retries (the
// retry policy belongs at the gateway boundary only).
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/genai"

	"github.com/bobmcallan/vire-chat/internal/common"
	"github.com/bobmcallan/vire-chat/internal/models"
)

const (
	DefaultModel = "gemini-3-flash-preview"
)

// ToolSpec describes one callable tool in the shape the gateway needs to
// advertise it to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON Schema object
}

// Request is one turn's worth of context sent to the gateway.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []models.ChatMessage
	Tools        []ToolSpec
}

// Response is the model's reply: either assistant text, or one or more
// tool calls the processor must execute before calling the gateway again.
type Response struct {
	Message      models.ChatMessage
	FinishReason string
}

// Gateway is the interface the chat processor depends on. Swappable for
// tests via a stub.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// GeminiGateway implements Gateway against google.golang.org/genai.
type GeminiGateway struct {
	client  *genai.Client
	model   string
	logger  *common.Logger
	backoff func() backoff.BackOff
}

// Option configures a GeminiGateway.
type Option func(*GeminiGateway)

func WithModel(model string) Option {
	return func(g *GeminiGateway) { g.model = model }
}

func WithLogger(logger *common.Logger) Option {
	return func(g *GeminiGateway) { g.logger = logger }
}

// NewGeminiGateway constructs a gateway backed by the Gemini API.
func NewGeminiGateway(ctx context.Context, apiKey string, opts ...Option) (*GeminiGateway, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: create gemini client: %w", err)
	}

	g := &GeminiGateway{
		client: client,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall time
			return backoff.WithMaxRetries(b, 3)
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Complete sends one turn to Gemini, retrying transient failures with
// exponential backoff, and returns either assistant text or tool calls.
func (g *GeminiGateway) Complete(ctx context.Context, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	contents := toGenaiContents(req.Messages)
	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}

	var result *genai.GenerateContentResponse
	operation := func() error {
		var err error
		result, err = g.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(g.backoff(), ctx)); err != nil {
		return Response{}, &models.ChatError{Kind: models.ErrKindGatewayFailure, Message: err.Error()}
	}

	return fromGenaiResponse(result)
}

// isTransient classifies errors the gateway retries. The genai client
// returns generic errors (no exported status-code type at the time this
// was written), so classification is best-effort on the error text.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "deadline exceeded", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
