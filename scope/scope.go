// Package scope implements the space-delimited OAuth scope model used by the
// MCP test API, including the ":*" suffix wildcard.
//
// A granted scope satisfies a required scope when the two are equal, or when
// the granted scope ends in ":*" and its prefix equals the required scope with
// its final ":segment" removed. Wildcards are one level deep:
//
//	Satisfies([]string{"mcp:tools:*"}, "mcp:tools:echo")     // true
//	Satisfies([]string{"mcp:tools:*"}, "mcp:tools:a:b")      // false
//	Satisfies([]string{"mcp:*"}, "mcp:tools:echo")           // false
//	Satisfies([]string{":*"}, "echo")                        // true
package scope

import "strings"

const (
	// Wildcard is the suffix that turns a scope into a one-level wildcard.
	Wildcard = ":*"

	toolsPrefix = "mcp:tools:"

	// ToolsAll grants every tool.
	ToolsAll = "mcp:tools:*"
	// ResourcesAll grants every resource.
	ResourcesAll = "mcp:resources:*"
	// PromptsAll grants every prompt.
	PromptsAll = "mcp:prompts:*"
)

// ToolNames lists the tools exposed by the test API, in advertising order.
var ToolNames = []string{
	"echo",
	"add",
	"multiply",
	"reverse_string",
	"generate_uuid",
	"get_timestamp",
	"sample_error",
	"long_running_task",
}

// Parse splits a space-delimited scope string. Empty input yields no scopes.
func Parse(s string) []string {
	return strings.Fields(s)
}

// Join is the inverse of Parse.
func Join(scopes []string) string {
	return strings.Join(scopes, " ")
}

// Satisfies reports whether any granted scope covers required.
func Satisfies(granted []string, required string) bool {
	if required == "" {
		return false
	}
	// A single-segment scope has the empty parent, which ":*" covers.
	parent := ""
	if i := strings.LastIndex(required, ":"); i >= 0 {
		parent = required[:i]
	}
	for _, g := range granted {
		if g == required {
			return true
		}
		if prefix, ok := strings.CutSuffix(g, Wildcard); ok && prefix == parent {
			return true
		}
	}
	return false
}

// ForTool returns the scope required to call the named tool.
func ForTool(name string) string {
	return toolsPrefix + name
}

// ForResource returns the scope required to read a resource. Resources are
// not individually scoped.
func ForResource(_ string) string {
	return ResourcesAll
}

// ForPrompt returns the scope required to get a prompt.
func ForPrompt(_ string) string {
	return PromptsAll
}

// Supported returns the scopes advertised in discovery metadata.
func Supported() []string {
	out := make([]string, 0, len(ToolNames)+3)
	out = append(out, ToolsAll)
	for _, name := range ToolNames {
		out = append(out, ForTool(name))
	}
	return append(out, ResourcesAll, PromptsAll)
}
