// Package llm adapts the Gemini API to the agent's interpreter and to the
// digest summarizer.
package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"taskagent/internal/agent"
	"taskagent/internal/models"
	"taskagent/internal/tools"
)

const DefaultModel = "gemini-2.5-flash"

// NewClient builds a Gemini API client for apiKey.
func NewClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// GeminiInterpreter asks a Gemini model for the next step of a turn. It
// keeps no state between calls; every request carries the whole turn.
type GeminiInterpreter struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiInterpreter(client *genai.Client, model string, temperature float32) *GeminiInterpreter {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiInterpreter{client: client, model: model, temperature: temperature}
}

var _ agent.Interpreter = (*GeminiInterpreter)(nil)

func (g *GeminiInterpreter) Interpret(ctx context.Context, req agent.Request) (*agent.Step, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: FunctionDeclarations(req.Tools)}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, Contents(req), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return stepFrom(resp), nil
}

func stepFrom(resp *genai.GenerateContentResponse) *agent.Step {
	step := &agent.Step{}
	for i, fc := range resp.FunctionCalls() {
		id := fc.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", fc.Name, i)
		}
		step.Calls = append(step.Calls, tools.Call{ID: id, Name: fc.Name, Args: fc.Args})
	}
	if len(step.Calls) == 0 {
		step.Text = resp.Text()
	}
	return step
}

// Contents lays out history, the new input and the rounds already executed
// in the order the model expects.
func Contents(req agent.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1+2*len(req.Rounds))
	for _, m := range req.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == models.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Input, genai.RoleUser))

	for _, round := range req.Rounds {
		calls := make([]*genai.Part, 0, len(round.Calls))
		for _, c := range round.Calls {
			calls = append(calls, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Args}})
		}
		contents = append(contents, genai.NewContentFromParts(calls, genai.RoleModel))

		responses := make([]*genai.Part, 0, len(round.Results))
		for _, r := range round.Results {
			key := "output"
			if r.Failed() {
				key = "error"
			}
			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       r.CallID,
				Name:     r.Name,
				Response: map[string]any{key: r.Text},
			}})
		}
		contents = append(contents, genai.NewContentFromParts(responses, genai.RoleUser))
	}
	return contents
}

// FunctionDeclarations converts tool declarations to the Gemini schema. All
// parameters are strings.
func FunctionDeclarations(decls []tools.Declaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fd := &genai.FunctionDeclaration{Name: d.Name, Description: d.Description}
		if len(d.Params) > 0 {
			schema := &genai.Schema{Type: genai.TypeObject, Properties: make(map[string]*genai.Schema, len(d.Params))}
			for _, p := range d.Params {
				schema.Properties[p.Name] = &genai.Schema{Type: genai.TypeString, Description: p.Description, Enum: p.Enum}
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			fd.Parameters = schema
		}
		out = append(out, fd)
	}
	return out
}
