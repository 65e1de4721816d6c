package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/mcpbridge"
	"github.com/ghiac/mcpbridge/config"
)

func main() {
	// Example usage of the mcpbridge library

	// 1. Create a server definitions file (for demonstration)
	// In real usage, this would already exist and point at real MCP servers
	serversFile := createExampleServersFile()
	defer os.Remove(serversFile)

	// 2. Load configuration from the environment
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load config: %v", err)
	}
	cfg.ServersFile = serversFile

	// 3. Create the bridge and connect every enabled server
	bridge := mcpbridge.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bridge.Start(ctx); err != nil {
		stdlog.Fatalf("Failed to start bridge: %v", err)
	}
	defer bridge.Shutdown()

	// 4. Inspect the aggregated catalog
	status := bridge.Manager().Status()
	fmt.Printf("Initialized: %v\n", status.Initialized)
	for _, server := range status.Servers {
		fmt.Printf("  %s: enabled=%v connected=%v tools=%d\n",
			server.Name, server.Enabled, server.Connected, server.ToolsCount)
	}

	for _, tool := range bridge.Manager().AllTools() {
		fmt.Printf("Tool %s (%s)\n", tool.QualifiedName(), tool.Description)
	}

	// 5. Call a tool by its qualified name, the way an LLM function-calling
	// layer would
	if tools := bridge.Manager().AllTools(); len(tools) > 0 {
		result, err := bridge.Manager().CallTool(ctx, tools[0].QualifiedName(), map[string]any{})
		if err != nil {
			fmt.Printf("Tool call failed: %v\n", err)
		} else {
			fmt.Printf("Tool result: %s\n", result)
		}
	}

	// 6. Optionally expose the administrative HTTP surface
	if cfg.HTTP.Enabled {
		router := gin.Default()
		bridge.RegisterRoutes(router)

		go func() {
			if err := router.Run(cfg.GetAddress()); err != nil {
				stdlog.Fatalf("HTTP server failed: %v", err)
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
	}
}

// createExampleServersFile writes a minimal server definitions file for
// demonstration. The "everything" server requires npx to be installed.
func createExampleServersFile() string {
	tmpDir, err := os.MkdirTemp("", "mcpbridge-example-*")
	if err != nil {
		stdlog.Fatalf("Failed to create temp dir: %v", err)
	}

	content := `{
  "mcpServers": {
    "everything": {
      "command": "npx",
      "args": ["-y", "@modelcontextprotocol/server-everything"]
    },
    "filesystem": {
      "command": "npx",
      "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
      "enabled": false
    }
  }
}
`
	path := filepath.Join(tmpDir, "mcp_servers.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		stdlog.Fatalf("Failed to write servers file: %v", err)
	}
	return path
}
