// Package toolregistry defines the pluggable surface the chat processor
// calls into when the gateway asks for a tool invocation: a role/skill
// allowlist, JSON-schema argument validation, and dispatch. It is
// deliberately empty of any concrete tool — this project's domain tools
// (portfolio lookups, market data queries, etc.) are registered by the
// application wiring layer, not hardcoded here.
package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobmcallan/vire-chat/internal/chatcore/gateway"
	"github.com/bobmcallan/vire-chat/internal/models"
)

// Tool is one callable unit a chat job may invoke. Implementations must be
// safe for concurrent use — the same tool may be invoked by multiple
// lanes' workers simultaneously.
type Tool interface {
	Spec() gateway.ToolSpec
	// Roles lists the roles permitted to invoke this tool. Empty means
	// every role.
	Roles() []models.ChatRole
	Call(ctx context.Context, args map[string]interface{}) (string, error)
}

// DispatchContext carries the caller identity and audit tag a tool
// implementation may need without threading it through every Call
// signature.
type DispatchContext struct {
	Role      models.ChatRole
	TeacherID string
	StudentID string
	AuditTag  string
}

// Issue is one argument-validation failure.
type Issue struct {
	Field   string
	Message string
}

// Registry holds the set of tools available to the chat processor, keyed
// by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Spec().Name] = tool
}

// Specs returns the gateway-facing tool specs for every tool the given
// role may invoke (the allowlist the processor passes to the gateway as
// `tools=allowed_tools(role, skill)`; skill-level scoping is left to the
// application wiring that constructs per-skill Registry instances).
func (r *Registry) Specs(role models.ChatRole) []gateway.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]gateway.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		if allowedFor(t, role) {
			specs = append(specs, t.Spec())
		}
	}
	return specs
}

// List returns the names of tools the given role may invoke.
func (r *Registry) List(role models.ChatRole) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name, t := range r.tools {
		if allowedFor(t, role) {
			names = append(names, name)
		}
	}
	return names
}

func allowedFor(t Tool, role models.ChatRole) bool {
	roles := t.Roles()
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Schema returns a tool's declared input schema for validation.
func (r *Registry) Schema(name string) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("toolregistry: unknown tool %q", name)
	}
	return t.Spec().Parameters, nil
}

// Validate checks arguments against a tool's required-field schema. Only
// "required" is enforced — the gateway/model is trusted to emit
// type-correct arguments, and deeper validation belongs to the tool itself.
func (r *Registry) Validate(name string, arguments map[string]interface{}) ([]Issue, error) {
	schema, err := r.Schema(name)
	if err != nil {
		return nil, err
	}
	required, _ := schema["required"].([]interface{})
	var issues []Issue
	for _, req := range required {
		field, ok := req.(string)
		if !ok {
			continue
		}
		if _, present := arguments[field]; !present {
			issues = append(issues, Issue{Field: field, Message: "required argument missing"})
		}
	}
	return issues, nil
}

// permissionDeniedResult is the fixed tool-result payload for role-gated
// rejections.
const permissionDeniedResult = `{"error":"permission denied"}`

// Dispatch validates the role gate then arguments, and calls the tool.
// A role-gate rejection is returned as a tool result (not an error). An
// unknown tool or failed argument validation is returned as a ChatError of
// kind tool_invalid_arguments; the processor turns any Dispatch error into
// a tool.result event rather than failing the job.
func (r *Registry) Dispatch(ctx context.Context, name string, arguments map[string]interface{}, dispatchCtx DispatchContext) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", &models.ChatError{
			Kind:    models.ErrKindToolInvalidArguments,
			Message: fmt.Sprintf("unknown tool %q", name),
		}
	}

	if !allowedFor(tool, dispatchCtx.Role) {
		return permissionDeniedResult, nil
	}

	issues, err := r.Validate(name, arguments)
	if err != nil {
		return "", err
	}
	if len(issues) > 0 {
		return "", &models.ChatError{
			Kind:    models.ErrKindToolInvalidArguments,
			Message: fmt.Sprintf("invalid arguments for %q: %+v", name, issues),
		}
	}

	return tool.Call(ctx, arguments)
}
