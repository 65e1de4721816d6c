package mcpbridge

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/mcpbridge/mcp"
	"github.com/ghiac/mcpbridge/model"
)

// serverCreateRequest is the payload for adding a server at runtime.
// Enabled is a pointer so an absent field defaults to true.
type serverCreateRequest struct {
	Name    string            `json:"name" binding:"required"`
	Command string            `json:"command" binding:"required"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	Enabled *bool             `json:"enabled"`
}

// toolCallRequest is the payload for invoking a tool by qualified name.
type toolCallRequest struct {
	ToolName  string         `json:"tool_name" binding:"required"`
	Arguments map[string]any `json:"arguments"`
}

// RegisterRoutes registers HTTP routes on the given gin.Engine
// Routes: /mcp/status, /mcp/servers, /mcp/tools, /mcp/tools/call
func (b *Bridge) RegisterRoutes(router *gin.Engine) {
	router.GET("/mcp/status", b.handleStatus)
	router.GET("/mcp/servers", b.handleListServers)
	router.POST("/mcp/servers", b.handleAddServer)
	router.POST("/mcp/servers/:name/connect", b.handleConnectServer)
	router.POST("/mcp/servers/:name/disconnect", b.handleDisconnectServer)
	router.DELETE("/mcp/servers/:name", b.handleRemoveServer)
	router.GET("/mcp/servers/:name/resources", b.handleListResources)
	router.POST("/mcp/servers/:name/resources/read", b.handleReadResource)
	router.GET("/mcp/tools", b.handleListTools)
	router.GET("/mcp/tools/llm", b.handleToolsForLLM)
	router.POST("/mcp/tools/call", b.handleCallTool)
}

// handleStatus reports the initialized flag and a per-server summary
func (b *Bridge) handleStatus(c *gin.Context) {
	c.JSON(200, b.manager.Status())
}

// handleListServers lists every configured server with its connection state
func (b *Bridge) handleListServers(c *gin.Context) {
	configs := b.manager.Configs()
	servers := make([]gin.H, 0, len(configs))
	for _, cfg := range configs {
		_, connected := b.manager.Client(cfg.Name)
		servers = append(servers, gin.H{
			"name":      cfg.Name,
			"command":   cfg.Command,
			"args":      cfg.Args,
			"enabled":   cfg.Enabled,
			"connected": connected,
		})
	}
	c.JSON(200, gin.H{"servers": servers})
}

// handleAddServer registers a new server config and, when enabled,
// immediately attempts to connect it
func (b *Bridge) handleAddServer(c *gin.Context) {
	var req serverCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	cfg := model.ServerConfig{
		Name:    req.Name,
		Command: req.Command,
		Args:    req.Args,
		Env:     req.Env,
		Enabled: enabled,
	}
	if err := b.manager.AddServer(cfg); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if !enabled {
		c.JSON(200, gin.H{"status": "added", "enabled": false})
		return
	}

	if err := b.manager.Reconnect(c.Request.Context(), cfg.Name); err != nil {
		c.JSON(200, gin.H{
			"status":  "added_but_not_connected",
			"message": fmt.Sprintf("Server added but failed to connect: %v", err),
		})
		return
	}
	client, _ := b.manager.Client(cfg.Name)
	c.JSON(200, gin.H{"status": "connected", "tools_count": len(client.Tools())})
}

// handleConnectServer (re)connects one configured server
func (b *Bridge) handleConnectServer(c *gin.Context) {
	name := c.Param("name")
	if err := b.manager.Reconnect(c.Request.Context(), name); err != nil {
		c.JSON(500, gin.H{"error": fmt.Sprintf("Failed to connect to server '%s': %v", name, err)})
		return
	}
	toolsCount := 0
	if client, ok := b.manager.Client(name); ok {
		toolsCount = len(client.Tools())
	}
	c.JSON(200, gin.H{"status": "connected", "tools_count": toolsCount})
}

// handleDisconnectServer disconnects one server, keeping its config
func (b *Bridge) handleDisconnectServer(c *gin.Context) {
	name := c.Param("name")
	if err := b.manager.DisconnectServer(name); err != nil {
		c.JSON(404, gin.H{"error": fmt.Sprintf("Server '%s' not connected", name)})
		return
	}
	c.JSON(200, gin.H{"status": "disconnected"})
}

// handleRemoveServer disconnects and deletes one server configuration
func (b *Bridge) handleRemoveServer(c *gin.Context) {
	b.manager.RemoveServer(c.Param("name"))
	c.JSON(200, gin.H{"status": "removed"})
}

// handleListTools lists the aggregated tool catalog
func (b *Bridge) handleListTools(c *gin.Context) {
	all := b.manager.AllTools()
	tools := make([]gin.H, 0, len(all))
	for _, tool := range all {
		tools = append(tools, gin.H{
			"name":         tool.Name,
			"full_name":    tool.QualifiedName(),
			"description":  tool.Description,
			"server":       tool.ServerName,
			"input_schema": tool.InputSchema,
		})
	}
	c.JSON(200, gin.H{"tools": tools})
}

// handleToolsForLLM returns the catalog as function-calling definitions
func (b *Bridge) handleToolsForLLM(c *gin.Context) {
	c.JSON(200, gin.H{"tools": b.manager.ToolsForLLM()})
}

// handleCallTool invokes a tool by its qualified name
func (b *Bridge) handleCallTool(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	result, err := b.manager.CallTool(c.Request.Context(), req.ToolName, req.Arguments)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true, "result": result})
}

// handleListResources lists resources exposed by one connected server
func (b *Bridge) handleListResources(c *gin.Context) {
	name := c.Param("name")
	resources, err := b.manager.ListResources(c.Request.Context(), name)
	if err != nil {
		var notConnected *mcp.NotConnectedError
		if errors.As(err, &notConnected) {
			c.JSON(404, gin.H{"error": fmt.Sprintf("Server '%s' not connected", name)})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"resources": resources})
}

// handleReadResource reads one resource from one connected server
func (b *Bridge) handleReadResource(c *gin.Context) {
	name := c.Param("name")
	uri := c.Query("uri")
	if uri == "" {
		c.JSON(400, gin.H{"error": "uri query parameter is required"})
		return
	}

	content, err := b.manager.ReadResource(c.Request.Context(), name, uri)
	if err != nil {
		var notConnected *mcp.NotConnectedError
		if errors.As(err, &notConnected) {
			c.JSON(404, gin.H{"error": fmt.Sprintf("Server '%s' not connected", name)})
			return
		}
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"success": true, "content": content})
}
