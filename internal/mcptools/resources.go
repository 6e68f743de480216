package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/scope"
)

// Resource URIs.
const (
	URIStaticGreeting   = "test://static/greeting"
	URIStaticNumbers    = "test://static/numbers"
	URIDynamicTimestamp = "test://dynamic/timestamp"
	URIDynamicRandom    = "test://dynamic/random"
	URILargeText        = "test://large-text"

	mimeText = "text/plain"
	mimeJSON = "application/json"

	greetingText = "Hello from mcp-test-kits!"
	maxRandom    = 100
)

const loremParagraph = `
Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor
incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis
nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat.

Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu
fugiat nulla pariatur. Excepteur sint occaecat cupidatat non proident, sunt in
culpa qui officia deserunt mollit anim id est laborum.

`

var largeText = strings.Repeat(loremParagraph, 100)

// ServerResources returns the test resources with their handlers.
func (t *Toolset) ServerResources() []server.ServerResource {
	return []server.ServerResource{
		t.resource(URIStaticGreeting, "static-greeting", "Static greeting text", mimeText,
			func() (string, error) { return greetingText, nil }),
		t.resource(URIStaticNumbers, "static-numbers", "A fixed list of numbers", mimeJSON,
			func() (string, error) {
				return marshalText(map[string]any{"numbers": []int{1, 2, 3, 4, 5}})
			}),
		t.resource(URIDynamicTimestamp, "dynamic-timestamp", "The current time", mimeJSON,
			func() (string, error) {
				now := t.now()
				return marshalText(map[string]any{
					"timestamp": now.UTC().Format(isoTimestampLayout),
					"unix":      now.Unix(),
				})
			}),
		t.resource(URIDynamicRandom, "dynamic-random", "A random number between 0 and 100", mimeJSON,
			func() (string, error) {
				return marshalText(map[string]any{"random": rand.IntN(maxRandom + 1)})
			}),
		t.resource(URILargeText, "large-text", "A large block of text", mimeText,
			func() (string, error) { return largeText, nil }),
	}
}

func (t *Toolset) resource(uri, name, description, mimeType string, read func() (string, error)) server.ServerResource {
	required := scope.ForResource(uri)
	return server.ServerResource{
		Resource: mcp.Resource{
			URI:         uri,
			Name:        name,
			Description: description,
			MIMEType:    mimeType,
		},
		Handler: func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			if t.requireScopes && !oauth.HasScope(ctx, required) {
				t.logger.Info("Resource read rejected", "uri", uri, "required_scope", required)
				return nil, fmt.Errorf("insufficient scope: %s required", required)
			}
			text, err := read()
			if err != nil {
				return nil, err
			}
			t.logger.Debug("Resource read", "uri", uri)
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: uri, MIMEType: mimeType, Text: text},
			}, nil
		},
	}
}

func marshalText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode resource: %w", err)
	}
	return string(b), nil
}
