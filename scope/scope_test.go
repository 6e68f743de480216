package scope

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", []string{}},
		{"whitespace only", "   ", []string{}},
		{"single", "mcp:tools:echo", []string{"mcp:tools:echo"}},
		{"multiple", "mcp:tools:echo  mcp:prompts:*", []string{"mcp:tools:echo", "mcp:prompts:*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSatisfies(t *testing.T) {
	tests := []struct {
		name     string
		granted  []string
		required string
		want     bool
	}{
		{"exact match", []string{"mcp:tools:echo"}, "mcp:tools:echo", true},
		{"wildcard one level", []string{"mcp:tools:*"}, "mcp:tools:echo", true},
		{"wildcard does not cross levels", []string{"mcp:tools:*"}, "mcp:tools:a:b", false},
		{"top-level wildcard does not cover nested", []string{"mcp:*"}, "mcp:tools:echo", false},
		{"different namespace", []string{"mcp:prompts:*"}, "mcp:tools:echo", false},
		{"no scopes", nil, "mcp:tools:echo", false},
		{"empty required", []string{"mcp:tools:*"}, "", false},
		{"bare star is not a wildcard", []string{"*"}, "admin", false},
		{"empty-prefix wildcard covers single segment", []string{":*"}, "echo", true},
		{"empty-prefix wildcard covers leading colon", []string{":*"}, ":echo", true},
		{"empty-prefix wildcard does not cover nested", []string{":*"}, "mcp:echo", false},
		{"single segment needs exact grant", []string{"mcp:tools:*"}, "echo", false},
		{"literal wildcard required", []string{"mcp:resources:*"}, "mcp:resources:*", true},
		{"one of many", []string{"openid", "mcp:tools:add"}, "mcp:tools:add", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(tt.granted, tt.required); got != tt.want {
				t.Errorf("Satisfies(%v, %q) = %v, want %v", tt.granted, tt.required, got, tt.want)
			}
		})
	}
}

func TestRequiredScopes(t *testing.T) {
	if got := ForTool("echo"); got != "mcp:tools:echo" {
		t.Errorf("ForTool = %q", got)
	}
	if got := ForResource("test://static"); got != ResourcesAll {
		t.Errorf("ForResource = %q", got)
	}
	if got := ForPrompt("greeting"); got != PromptsAll {
		t.Errorf("ForPrompt = %q", got)
	}
}

func TestSupported(t *testing.T) {
	got := Supported()
	if len(got) != len(ToolNames)+3 {
		t.Fatalf("Supported() returned %d scopes, want %d", len(got), len(ToolNames)+3)
	}
	if got[0] != ToolsAll {
		t.Errorf("first scope = %q, want %q", got[0], ToolsAll)
	}
	if got[len(got)-1] != PromptsAll || got[len(got)-2] != ResourcesAll {
		t.Errorf("trailing scopes = %v", got[len(got)-2:])
	}
	for _, name := range ToolNames {
		if !Satisfies(got, ForTool(name)) {
			t.Errorf("supported scopes do not cover tool %q", name)
		}
	}
}
