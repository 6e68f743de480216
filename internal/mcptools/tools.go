// Package mcptools registers the MCP test tools, resources and prompts
// served behind the bearer gate. With scope enforcement on, each tool
// requires mcp:tools:<name>, resources require mcp:resources:* and prompts
// require mcp:prompts:*.
package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	oauth "github.com/midodimori/mcp-test-kits"
	"github.com/midodimori/mcp-test-kits/instrumentation"
	"github.com/midodimori/mcp-test-kits/scope"
)

const (
	// MaxTaskDuration caps long_running_task.
	MaxTaskDuration = 10 * time.Second

	defaultErrorMessage = "This is a test error"

	timestampFormatUnix = "unix"
	timestampFormatISO  = "iso"

	// isoTimestampLayout matches JavaScript's Date.toISOString.
	isoTimestampLayout = "2006-01-02T15:04:05.000Z"
)

// Tool call results reported to RecordToolCall.
const (
	callResultSuccess   = "success"
	callResultError     = "error"
	callResultForbidden = "forbidden"
)

// Capabilities selects which groups NewServer and Register expose.
type Capabilities struct {
	Tools     bool
	Resources bool
	Prompts   bool
}

// AllCapabilities enables every group.
func AllCapabilities() Capabilities {
	return Capabilities{Tools: true, Resources: true, Prompts: true}
}

// Toolset holds the tool handlers and their dependencies.
type Toolset struct {
	logger        *slog.Logger
	requireScopes bool
	capabilities  Capabilities
	now           func() time.Time
	sleep         func(context.Context, time.Duration) error

	metrics *instrumentation.Metrics
	tracer  trace.Tracer
}

// Option configures a Toolset.
type Option func(*Toolset)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolset) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithScopeEnforcement makes every handler check the token claims in the
// call context for its required scope.
func WithScopeEnforcement(enabled bool) Option {
	return func(t *Toolset) {
		t.requireScopes = enabled
	}
}

// WithCapabilities limits registration to the enabled groups. Default: all.
func WithCapabilities(c Capabilities) Option {
	return func(t *Toolset) {
		t.capabilities = c
	}
}

// WithInstrumentation records tool call metrics and spans.
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(t *Toolset) {
		if inst != nil {
			t.metrics = inst.Metrics()
			t.tracer = inst.Tracer("mcptools")
		}
	}
}

// WithClock overrides the time source of get_timestamp and the timestamp
// resource.
func WithClock(now func() time.Time) Option {
	return func(t *Toolset) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSleep overrides how long_running_task waits.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(t *Toolset) {
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// New creates a Toolset.
func New(opts ...Option) *Toolset {
	t := &Toolset{
		logger:       slog.Default(),
		capabilities: AllCapabilities(),
		now:          time.Now,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewServer creates an MCP server named name and registers the enabled
// capability groups. Disabled groups are not advertised at initialize.
func NewServer(name, version string, opts ...Option) *server.MCPServer {
	t := New(opts...)

	serverOpts := []server.ServerOption{server.WithRecovery()}
	if t.capabilities.Tools {
		serverOpts = append(serverOpts, server.WithToolCapabilities(false))
	}
	if t.capabilities.Resources {
		serverOpts = append(serverOpts, server.WithResourceCapabilities(false, false))
	}
	if t.capabilities.Prompts {
		serverOpts = append(serverOpts, server.WithPromptCapabilities(false))
	}

	s := server.NewMCPServer(name, version, serverOpts...)
	t.Register(s)
	return s
}

// Register adds the tools, resources and prompts of the enabled groups to s.
func (t *Toolset) Register(s *server.MCPServer) {
	if t.capabilities.Tools {
		s.AddTools(t.ServerTools()...)
	}
	if t.capabilities.Resources {
		s.AddResources(t.ServerResources()...)
	}
	if t.capabilities.Prompts {
		s.AddPrompts(t.ServerPrompts()...)
	}
}

// ServerTools returns the tools with their wrapped handlers, in
// scope.ToolNames order.
func (t *Toolset) ServerTools() []server.ServerTool {
	entries := t.tools()
	out := make([]server.ServerTool, 0, len(entries))
	for _, entry := range entries {
		out = append(out, server.ServerTool{
			Tool:    entry.definition,
			Handler: t.wrap(entry.definition.Name, entry.handler),
		})
	}
	return out
}

type toolEntry struct {
	definition mcp.Tool
	handler    server.ToolHandlerFunc
}

func (t *Toolset) tools() []toolEntry {
	return []toolEntry{
		{
			definition: mcp.Tool{
				Name:        "echo",
				Description: "Returns the input message unchanged",
				InputSchema: objectSchema(map[string]any{
					"message": property("string", "The message to echo"),
				}, "message"),
			},
			handler: t.echo,
		},
		{
			definition: mcp.Tool{
				Name:        "add",
				Description: "Adds two numbers together",
				InputSchema: objectSchema(map[string]any{
					"a": property("number", "First number"),
					"b": property("number", "Second number"),
				}, "a", "b"),
			},
			handler: t.add,
		},
		{
			definition: mcp.Tool{
				Name:        "multiply",
				Description: "Multiplies two numbers",
				InputSchema: objectSchema(map[string]any{
					"x": property("number", "First number"),
					"y": property("number", "Second number"),
				}, "x", "y"),
			},
			handler: t.multiply,
		},
		{
			definition: mcp.Tool{
				Name:        "reverse_string",
				Description: "Reverses a string",
				InputSchema: objectSchema(map[string]any{
					"text": property("string", "Text to reverse"),
				}, "text"),
			},
			handler: t.reverseString,
		},
		{
			definition: mcp.Tool{
				Name:        "generate_uuid",
				Description: "Generates a random UUID",
				InputSchema: objectSchema(map[string]any{}),
			},
			handler: t.generateUUID,
		},
		{
			definition: mcp.Tool{
				Name:        "get_timestamp",
				Description: "Returns the current timestamp",
				InputSchema: objectSchema(map[string]any{
					"format": map[string]any{
						"type":        "string",
						"enum":        []string{timestampFormatUnix, timestampFormatISO},
						"default":     timestampFormatISO,
						"description": "Format: 'unix' or 'iso'",
					},
				}),
			},
			handler: t.getTimestamp,
		},
		{
			definition: mcp.Tool{
				Name:        "sample_error",
				Description: "Always throws an error (for testing error handling)",
				InputSchema: objectSchema(map[string]any{
					"error_message": map[string]any{
						"type":        "string",
						"default":     defaultErrorMessage,
						"description": "Custom error message",
					},
				}),
			},
			handler: t.sampleError,
		},
		{
			definition: mcp.Tool{
				Name:        "long_running_task",
				Description: "Simulates a long-running operation",
				InputSchema: objectSchema(map[string]any{
					"duration": map[string]any{
						"type":        "number",
						"minimum":     0,
						"maximum":     MaxTaskDuration.Seconds(),
						"description": "Duration in seconds (max 10)",
					},
				}, "duration"),
			},
			handler: t.longRunningTask,
		},
	}
}

// wrap adds the scope check, metrics and a span around a tool handler.
func (t *Toolset) wrap(name string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	required := scope.ForTool(name)
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if t.tracer != nil {
			var span trace.Span
			ctx, span = t.tracer.Start(ctx, "mcp.tool."+name)
			defer span.End()
			span.SetAttributes(attribute.String(instrumentation.AttrToolName, name))
		}

		if t.requireScopes && !oauth.HasScope(ctx, required) {
			t.logger.Info("Tool call rejected", "tool", name, "required_scope", required)
			t.record(ctx, name, callResultForbidden)
			return mcp.NewToolResultError(fmt.Sprintf("Insufficient scope: %s required", required)), nil
		}

		result, err := handler(ctx, req)
		switch {
		case err != nil:
			instrumentation.RecordError(trace.SpanFromContext(ctx), err)
			t.record(ctx, name, callResultError)
		case result != nil && result.IsError:
			instrumentation.SetSpanError(trace.SpanFromContext(ctx), "tool returned an error result")
			t.record(ctx, name, callResultError)
		default:
			instrumentation.SetSpanSuccess(trace.SpanFromContext(ctx))
			t.record(ctx, name, callResultSuccess)
		}
		t.logger.Debug("Tool called", "tool", name, "error", err)
		return result, err
	}
}

func (t *Toolset) record(ctx context.Context, tool, result string) {
	if t.metrics != nil {
		t.metrics.RecordToolCall(ctx, tool, result)
	}
}

func (t *Toolset) echo(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Message *string `json:"message"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}
	if args.Message == nil {
		return missingArgument("message"), nil
	}
	return mcp.NewToolResultText(*args.Message), nil
}

func (t *Toolset) add(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		A *float64 `json:"a"`
		B *float64 `json:"b"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}
	if args.A == nil {
		return missingArgument("a"), nil
	}
	if args.B == nil {
		return missingArgument("b"), nil
	}
	return mcp.NewToolResultText(formatNumber(*args.A + *args.B)), nil
}

func (t *Toolset) multiply(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}
	if args.X == nil {
		return missingArgument("x"), nil
	}
	if args.Y == nil {
		return missingArgument("y"), nil
	}
	return mcp.NewToolResultText(formatNumber(*args.X * *args.Y)), nil
}

func (t *Toolset) reverseString(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Text *string `json:"text"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}
	if args.Text == nil {
		return missingArgument("text"), nil
	}

	runes := []rune(*args.Text)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return mcp.NewToolResultText(string(runes)), nil
}

func (t *Toolset) generateUUID(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(uuid.NewString()), nil
}

func (t *Toolset) getTimestamp(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Format string `json:"format"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}

	now := t.now()
	switch args.Format {
	case timestampFormatUnix:
		return mcp.NewToolResultText(strconv.FormatInt(now.Unix(), 10)), nil
	case "", timestampFormatISO:
		return mcp.NewToolResultText(now.UTC().Format(isoTimestampLayout)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Invalid format %q: expected 'unix' or 'iso'", args.Format)), nil
	}
}

func (t *Toolset) sampleError(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		ErrorMessage string `json:"error_message"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}
	if args.ErrorMessage == "" {
		args.ErrorMessage = defaultErrorMessage
	}
	return mcp.NewToolResultError(args.ErrorMessage), nil
}

func (t *Toolset) longRunningTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := struct {
		Duration *float64 `json:"duration"`
	}{}
	if err := req.BindArguments(&args); err != nil {
		return invalidArguments(err), nil
	}
	if args.Duration == nil {
		return missingArgument("duration"), nil
	}

	seconds := min(max(*args.Duration, 0), MaxTaskDuration.Seconds())
	if err := t.sleep(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		return nil, fmt.Errorf("task interrupted: %w", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Task completed after %s seconds", formatNumber(seconds))), nil
}

func objectSchema(properties map[string]any, required ...string) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func property(typ, description string) map[string]any {
	return map[string]any{
		"type":        typ,
		"description": description,
	}
}

func invalidArguments(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err))
}

func missingArgument(name string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Missing required argument: %s", name))
}

// formatNumber prints integral values without a fraction, as JSON numbers
// are printed by most MCP clients.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
