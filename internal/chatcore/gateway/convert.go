package gateway

import (
	"encoding/json"

	"google.golang.org/genai"

	"github.com/bobmcallan/vire-chat/internal/models"
)

// toGenaiContents maps the processor's role-tagged message history onto
// genai's Content/Part shape, including tool-call and tool-result turns.
func toGenaiContents(messages []models.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "tool":
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{
					genai.NewPartFromFunctionResponse(m.Name, map[string]any{"result": m.Content}),
				},
			})
		case "assistant":
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Arguments))
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		default: // "user"
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents
}

// toFunctionDeclarations maps gateway.ToolSpec onto genai's tool schema.
func toFunctionDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  jsonSchemaToGenai(t.Parameters),
		})
	}
	return decls
}

// jsonSchemaToGenai converts a plain JSON-Schema-shaped map (as produced by
// the tool registry) into genai's typed Schema. Only the object/properties
// subset the tool registry emits is supported.
func jsonSchemaToGenai(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{Type: genai.TypeObject}
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if propSchema, ok := raw.(map[string]interface{}); ok {
				out.Properties[name] = primitiveSchema(propSchema)
			}
		}
	}
	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func primitiveSchema(s map[string]interface{}) *genai.Schema {
	out := &genai.Schema{}
	switch s["type"] {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeString
	}
	if desc, ok := s["description"].(string); ok {
		out.Description = desc
	}
	return out
}

// fromGenaiResponse extracts an assistant ChatMessage (text and/or tool
// calls) from a genai response.
func fromGenaiResponse(result *genai.GenerateContentResponse) (Response, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return Response{}, &models.ChatError{Kind: models.ErrKindGatewayFailure, Message: "empty response from model"}
	}

	candidate := result.Candidates[0]
	msg := models.ChatMessage{Role: "assistant"}

	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			msg.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			var argsMap map[string]interface{}
			_ = json.Unmarshal(args, &argsMap)
			msg.ToolCalls = append(msg.ToolCalls, models.ChatToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: argsMap,
			})
		}
	}

	return Response{Message: msg, FinishReason: string(candidate.FinishReason)}, nil
}
