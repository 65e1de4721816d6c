package model

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// QualifiedToolPrefix starts every tool name exposed to the LLM layer.
const QualifiedToolPrefix = "mcp_"

// Tool is one callable operation advertised by an MCP server. Instances are
// immutable snapshots; a client replaces its whole catalog on every
// discovery refresh.
type Tool struct {
	// Name is the tool name as the server advertises it
	Name string `json:"name"`

	// Description is the human/LLM readable purpose of the tool
	Description string `json:"description"`

	// InputSchema is the JSON schema describing the tool arguments
	InputSchema map[string]any `json:"input_schema"`

	// ServerName identifies the server that owns this tool
	ServerName string `json:"server_name"`
}

// QualifiedName returns the globally unique name used to route invocations
// back to the owning server.
func (t Tool) QualifiedName() string {
	return QualifyToolName(t.ServerName, t.Name)
}

// ToOpenAITool converts the descriptor into the function-calling schema the
// LLM layer consumes. The name is qualified and the description is tagged
// with the owning server so the model can tell providers apart.
func (t Tool) ToOpenAITool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        t.QualifiedName(),
			Description: fmt.Sprintf("[MCP:%s] %s", t.ServerName, t.Description),
			Parameters:  t.InputSchema,
		},
	}
}

// QualifyToolName forms "mcp_<server>_<tool>".
func QualifyToolName(serverName, toolName string) string {
	return QualifiedToolPrefix + serverName + "_" + toolName
}

// DequalifyToolName splits a qualified name back into (server, tool).
// The remainder after the "mcp_" prefix is split on the first underscore,
// so a server name that itself contains an underscore is misattributed;
// that matches the qualification convention and is not corrected here.
func DequalifyToolName(fullName string) (serverName, toolName string, err error) {
	if !strings.HasPrefix(fullName, QualifiedToolPrefix) {
		return "", "", fmt.Errorf("invalid MCP tool name: %s", fullName)
	}
	rest := strings.TrimPrefix(fullName, QualifiedToolPrefix)
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid MCP tool name format: %s", fullName)
	}
	return parts[0], parts[1], nil
}
