package model

import (
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestQualifyDequalifyRoundTrip(t *testing.T) {
	cases := []struct {
		server string
		tool   string
	}{
		{"filesystem", "read-file"},
		{"github", "createIssue"},
		{"a", "b"},
		{"weather", "get_forecast"}, // underscore in the tool name is fine
	}
	for _, tc := range cases {
		full := QualifyToolName(tc.server, tc.tool)
		server, tool, err := DequalifyToolName(full)
		if err != nil {
			t.Errorf("DequalifyToolName(%q) failed: %v", full, err)
			continue
		}
		if server != tc.server || tool != tc.tool {
			t.Errorf("Round trip of (%q, %q) gave (%q, %q)", tc.server, tc.tool, server, tool)
		}
	}
}

func TestDequalifyToolNameErrors(t *testing.T) {
	cases := []string{
		"weather_get_forecast", // missing prefix
		"mcp_",                 // nothing after prefix
		"mcp_weather",          // no tool part
		"mcp__tool",            // empty server
		"",
	}
	for _, name := range cases {
		if _, _, err := DequalifyToolName(name); err == nil {
			t.Errorf("Expected error for %q", name)
		}
	}
}

func TestDequalifySplitsOnFirstSeparator(t *testing.T) {
	// A server name containing an underscore is misattributed on the way
	// back; the split-once convention is deliberate.
	full := QualifyToolName("my_server", "tool")
	server, tool, err := DequalifyToolName(full)
	if err != nil {
		t.Fatalf("DequalifyToolName failed: %v", err)
	}
	if server != "my" || tool != "server_tool" {
		t.Errorf("Expected split-once result (my, server_tool), got (%q, %q)", server, tool)
	}
}

func TestToOpenAITool(t *testing.T) {
	tool := Tool{
		Name:        "read_file",
		Description: "Read a file from disk",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
		},
		ServerName: "filesystem",
	}

	got := tool.ToOpenAITool()
	if got.Type != openai.ToolTypeFunction {
		t.Errorf("Expected function tool type, got %s", got.Type)
	}
	if got.Function == nil {
		t.Fatal("Function definition should not be nil")
	}
	if got.Function.Name != "mcp_filesystem_read_file" {
		t.Errorf("Unexpected qualified name: %s", got.Function.Name)
	}
	if got.Function.Description != "[MCP:filesystem] Read a file from disk" {
		t.Errorf("Unexpected description: %s", got.Function.Description)
	}
	schema, ok := got.Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("Parameters should carry the input schema, got %T", got.Function.Parameters)
	}
	if schema["type"] != "object" {
		t.Errorf("Schema should pass through unchanged, got %v", schema)
	}
}

func TestServerConfigValidate(t *testing.T) {
	valid := ServerConfig{Name: "fs", Command: "npx", Enabled: true}
	if err := valid.Validate(); err != nil {
		t.Errorf("Valid config should pass, got: %v", err)
	}
	if err := (ServerConfig{Command: "npx"}).Validate(); err == nil {
		t.Error("Config without name should fail validation")
	}
	if err := (ServerConfig{Name: "fs"}).Validate(); err == nil {
		t.Error("Config without command should fail validation")
	}
}
