package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/internal/testutil"
	"github.com/midodimori/mcp-test-kits/scope"
	"github.com/midodimori/mcp-test-kits/security"
)

type testTools map[string]server.ServerTool

func newTestTools(opts ...Option) testTools {
	opts = append([]Option{WithLogger(testutil.DiscardLogger())}, opts...)
	tools := make(testTools)
	for _, tool := range New(opts...).ServerTools() {
		tools[tool.Tool.Name] = tool
	}
	return tools
}

func (tools testTools) call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	tool, ok := tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s not registered", name)
	}

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return tool.Handler(ctx, req)
}

func callTool(t *testing.T, tools testTools, ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()

	result, err := tools.call(ctx, name, args)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T, want mcp.TextContent", result.Content[0])
	return text.Text
}

func TestServerTools(t *testing.T) {
	tools := New().ServerTools()

	require.Len(t, tools, len(scope.ToolNames))
	for i, name := range scope.ToolNames {
		assert.Equal(t, name, tools[i].Tool.Name)
		assert.Equal(t, "object", tools[i].Tool.InputSchema.Type)
		assert.NotEmpty(t, tools[i].Tool.Description)
	}
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, NewServer("mcp-test-kits", "1.0.0", WithLogger(testutil.DiscardLogger())))
}

// initializeCapabilities runs initialize against s and returns the keys of
// the advertised server capabilities.
func initializeCapabilities(t *testing.T, s *server.MCPServer) map[string]json.RawMessage {
	t.Helper()

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "initialize",
		"params": {
			"protocolVersion": "2025-03-26",
			"capabilities": {},
			"clientInfo": {"name": "test-client", "version": "1.0.0"}
		}
	}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var body struct {
		Result struct {
			Capabilities map[string]json.RawMessage `json:"capabilities"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Result.Capabilities
}

func TestNewServer_Capabilities(t *testing.T) {
	tests := []struct {
		name string
		caps Capabilities
		want []string
		not  []string
	}{
		{name: "all", caps: AllCapabilities(), want: []string{"tools", "resources", "prompts"}},
		{name: "no tools", caps: Capabilities{Resources: true, Prompts: true}, want: []string{"resources", "prompts"}, not: []string{"tools"}},
		{name: "tools only", caps: Capabilities{Tools: true}, want: []string{"tools"}, not: []string{"resources", "prompts"}},
		{name: "none", caps: Capabilities{}, not: []string{"tools", "resources", "prompts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("mcp-test-kits", "1.0.0",
				WithLogger(testutil.DiscardLogger()),
				WithCapabilities(tt.caps),
			)
			got := initializeCapabilities(t, s)
			for _, key := range tt.want {
				assert.Contains(t, got, key)
			}
			for _, key := range tt.not {
				assert.NotContains(t, got, key)
			}
		})
	}
}

func TestTools(t *testing.T) {
	clock := testutil.NewMockTime(time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC))
	s := newTestTools(WithClock(clock.Now))
	ctx := context.Background()

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		want     string
		wantFail bool
	}{
		{name: "echo", tool: "echo", args: map[string]any{"message": "hello"}, want: "hello"},
		{name: "echo empty", tool: "echo", args: map[string]any{"message": ""}, want: ""},
		{name: "echo missing", tool: "echo", args: map[string]any{}, want: "Missing required argument: message", wantFail: true},
		{name: "add integers", tool: "add", args: map[string]any{"a": 2, "b": 3}, want: "5"},
		{name: "add fractions", tool: "add", args: map[string]any{"a": 1.5, "b": 1}, want: "2.5"},
		{name: "add negative", tool: "add", args: map[string]any{"a": -4, "b": 1}, want: "-3"},
		{name: "add missing b", tool: "add", args: map[string]any{"a": 1}, want: "Missing required argument: b", wantFail: true},
		{name: "add wrong type", tool: "add", args: map[string]any{"a": "one", "b": 1}, wantFail: true},
		{name: "multiply", tool: "multiply", args: map[string]any{"x": 6, "y": 7}, want: "42"},
		{name: "multiply by zero", tool: "multiply", args: map[string]any{"x": 6, "y": 0}, want: "0"},
		{name: "reverse ascii", tool: "reverse_string", args: map[string]any{"text": "hello"}, want: "olleh"},
		{name: "reverse unicode", tool: "reverse_string", args: map[string]any{"text": "añb"}, want: "bña"},
		{name: "timestamp default", tool: "get_timestamp", args: map[string]any{}, want: "2025-01-02T03:04:05.006Z"},
		{name: "timestamp iso", tool: "get_timestamp", args: map[string]any{"format": "iso"}, want: "2025-01-02T03:04:05.006Z"},
		{name: "timestamp unix", tool: "get_timestamp", args: map[string]any{"format": "unix"}, want: "1735787045"},
		{name: "timestamp bad format", tool: "get_timestamp", args: map[string]any{"format": "rfc"}, wantFail: true},
		{name: "sample error default", tool: "sample_error", args: map[string]any{}, want: "This is a test error", wantFail: true},
		{name: "sample error custom", tool: "sample_error", args: map[string]any{"error_message": "boom"}, want: "boom", wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, s, ctx, tt.tool, tt.args)

			assert.Equal(t, tt.wantFail, result.IsError)
			if tt.want != "" || !tt.wantFail {
				assert.Equal(t, tt.want, resultText(t, result))
			}
		})
	}
}

func TestGenerateUUID(t *testing.T) {
	s := newTestTools()

	first := resultText(t, callTool(t, s, context.Background(), "generate_uuid", nil))
	second := resultText(t, callTool(t, s, context.Background(), "generate_uuid", nil))

	_, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestLongRunningTask(t *testing.T) {
	tests := []struct {
		name      string
		duration  any
		wantSleep time.Duration
		wantText  string
	}{
		{name: "whole seconds", duration: 2, wantSleep: 2 * time.Second, wantText: "Task completed after 2 seconds"},
		{name: "fraction", duration: 0.5, wantSleep: 500 * time.Millisecond, wantText: "Task completed after 0.5 seconds"},
		{name: "clamped high", duration: 30, wantSleep: 10 * time.Second, wantText: "Task completed after 10 seconds"},
		{name: "clamped low", duration: -3, wantSleep: 0, wantText: "Task completed after 0 seconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var slept time.Duration
			s := newTestTools(WithSleep(func(_ context.Context, d time.Duration) error {
				slept = d
				return nil
			}))

			result := callTool(t, s, context.Background(), "long_running_task", map[string]any{"duration": tt.duration})

			assert.False(t, result.IsError)
			assert.Equal(t, tt.wantText, resultText(t, result))
			assert.Equal(t, tt.wantSleep, slept)
		})
	}
}

func TestLongRunningTask_Cancelled(t *testing.T) {
	s := newTestTools()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.call(ctx, "long_running_task", map[string]any{"duration": 5})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScopeEnforcement(t *testing.T) {
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	s := newTestTools(WithScopeEnforcement(true), WithInstrumentation(inst))

	withScope := func(granted string) context.Context {
		return oauth.ContextWithClaims(context.Background(), &security.Claims{
			Scope:            granted,
			RegisteredClaims: jwt.RegisteredClaims{Subject: "test-user"},
		})
	}

	tests := []struct {
		name     string
		ctx      context.Context
		wantFail bool
	}{
		{name: "exact scope", ctx: withScope("mcp:tools:echo")},
		{name: "tools wildcard", ctx: withScope("mcp:tools:*")},
		{name: "other tool", ctx: withScope("mcp:tools:add"), wantFail: true},
		{name: "no claims", ctx: context.Background(), wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, s, tt.ctx, "echo", map[string]any{"message": "hi"})

			assert.Equal(t, tt.wantFail, result.IsError)
			if tt.wantFail {
				assert.Equal(t, "Insufficient scope: mcp:tools:echo required", resultText(t, result))
			} else {
				assert.Equal(t, "hi", resultText(t, result))
			}
		})
	}
}

func TestScopeEnforcement_Disabled(t *testing.T) {
	s := newTestTools()

	result := callTool(t, s, context.Background(), "echo", map[string]any{"message": "open"})

	assert.False(t, result.IsError)
	assert.Equal(t, "open", resultText(t, result))
}
