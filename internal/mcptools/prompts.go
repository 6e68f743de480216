package mcptools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/scope"
)

const maxPromptMessages = 10

// ServerPrompts returns the test prompts with their handlers.
func (t *Toolset) ServerPrompts() []server.ServerPrompt {
	return []server.ServerPrompt{
		t.prompt(mcp.Prompt{
			Name:        "simple_prompt",
			Description: "A basic prompt with no arguments",
		}, func(map[string]string) []string {
			return []string{"You are a helpful assistant. Please respond concisely and accurately."}
		}),
		t.prompt(mcp.Prompt{
			Name:        "greeting_prompt",
			Description: "Generate a greeting message",
			Arguments: []mcp.PromptArgument{
				{Name: "name", Description: "Name of the person to greet", Required: true},
				{Name: "style", Description: "Greeting style (formal, casual, friendly)"},
			},
		}, func(args map[string]string) []string {
			return []string{fmt.Sprintf("Generate a %s greeting for %s.", orDefault(args["style"], "friendly"), args["name"])}
		}),
		t.prompt(mcp.Prompt{
			Name:        "template_prompt",
			Description: "A template with multiple arguments",
			Arguments: []mcp.PromptArgument{
				{Name: "topic", Description: "Main topic", Required: true},
				{Name: "context", Description: "Additional context"},
				{Name: "length", Description: "Desired length (short, medium, long)"},
			},
		}, func(args map[string]string) []string {
			text := fmt.Sprintf("Write a %s explanation about %s.", orDefault(args["length"], "medium"), args["topic"])
			if c := args["context"]; c != "" {
				text += " Context: " + c
			}
			return []string{text}
		}),
		t.prompt(mcp.Prompt{
			Name:        "multi_message_prompt",
			Description: "Prompt that returns multiple messages",
			Arguments: []mcp.PromptArgument{
				{Name: "count", Description: "Number of messages to generate", Required: true},
			},
		}, func(args map[string]string) []string {
			n, err := strconv.Atoi(args["count"])
			if err != nil || n < 1 {
				n = 1
			}
			n = min(n, maxPromptMessages)
			out := make([]string, n)
			for i := range out {
				out[i] = fmt.Sprintf("Message %d of %d: Generate a helpful response.", i+1, n)
			}
			return out
		}),
	}
}

func (t *Toolset) prompt(definition mcp.Prompt, render func(map[string]string) []string) server.ServerPrompt {
	required := scope.ForPrompt(definition.Name)
	return server.ServerPrompt{
		Prompt: definition,
		Handler: func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			if t.requireScopes && !oauth.HasScope(ctx, required) {
				t.logger.Info("Prompt rejected", "prompt", definition.Name, "required_scope", required)
				return nil, fmt.Errorf("insufficient scope: %s required", required)
			}
			for _, arg := range definition.Arguments {
				if arg.Required && req.Params.Arguments[arg.Name] == "" {
					return nil, fmt.Errorf("missing required argument: %s", arg.Name)
				}
			}

			texts := render(req.Params.Arguments)
			messages := make([]mcp.PromptMessage, 0, len(texts))
			for _, text := range texts {
				messages = append(messages, mcp.PromptMessage{
					Role:    mcp.RoleUser,
					Content: mcp.NewTextContent(text),
				})
			}
			return &mcp.GetPromptResult{
				Description: definition.Description,
				Messages:    messages,
			}, nil
		},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
