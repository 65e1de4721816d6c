package model

import "fmt"

// ServerConfig describes one external MCP tool provider: how to launch it
// and whether it participates in ConnectAll. Configs are immutable once
// created; they are added at config-load time or through Manager.AddServer
// and removed only by explicit deletion.
type ServerConfig struct {
	// Name is the unique key for this server across the manager
	Name string `json:"name" yaml:"name"`

	// Command is the executable to spawn (e.g. "npx", "python", "node")
	Command string `json:"command" yaml:"command"`

	// Args are the command arguments, in order
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env contains environment overrides merged over the parent environment
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Enabled controls whether ConnectAll spawns this server
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Validate checks that the config can be used to spawn a process.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}
	if c.Command == "" {
		return fmt.Errorf("server '%s': command cannot be empty", c.Name)
	}
	return nil
}
