// Package mcp connects to external Model Context Protocol servers over
// child-process stdio, speaks line-delimited JSON-RPC 2.0 with each, and
// aggregates their tool catalogs behind one invocation surface. Client owns
// a single subprocess session; Manager owns the directory of configs and
// live clients and routes qualified tool names back to the right session.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ghiac/mcpbridge/log"
	"github.com/ghiac/mcpbridge/model"
	"github.com/sashabaranov/go-openai"
)

// Manager orchestrates multiple MCP server connections. It is an explicitly
// constructed state object: create one, pass it through the dependency
// graph, and tear it down with DisconnectAll.
type Manager struct {
	mu          sync.RWMutex
	configs     []model.ServerConfig
	clients     map[string]*Client
	initialized bool

	timeout time.Duration
}

// NewManager creates a manager whose per-request timeout is d (values <= 0
// fall back to DefaultRequestTimeout).
func NewManager(d time.Duration) *Manager {
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return &Manager{
		clients: make(map[string]*Client),
		timeout: d,
	}
}

// serverConfigFile is the wire shape of one server entry in the config
// file. Enabled is a pointer so an absent field defaults to true.
type serverConfigFile struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	Enabled *bool             `json:"enabled"`
}

func (s serverConfigFile) toConfig(name string) model.ServerConfig {
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return model.ServerConfig{
		Name:    name,
		Command: s.Command,
		Args:    s.Args,
		Env:     s.Env,
		Enabled: enabled,
	}
}

// LoadConfig replaces the config set from a JSON file. Two equivalent
// shapes are accepted: an array of named entries under "mcpServers" or
// "servers", and the Claude-Desktop name-keyed object map under
// "mcpServers". Object-form entries whose name was already loaded from the
// array form are skipped as duplicates. A missing file is not an error.
func (m *Manager) LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Log.Infof("No MCP config file found at %s", path)
			return nil
		}
		return fmt.Errorf("failed to read MCP config %s: %w", path, err)
	}

	var doc struct {
		MCPServers json.RawMessage `json:"mcpServers"`
		Servers    json.RawMessage `json:"servers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse MCP config %s: %w", path, err)
	}

	var configs []model.ServerConfig
	seen := make(map[string]bool)

	arraySrc := doc.MCPServers
	if !isJSONArray(arraySrc) {
		arraySrc = doc.Servers
	}
	if isJSONArray(arraySrc) {
		var entries []serverConfigFile
		if err := json.Unmarshal(arraySrc, &entries); err != nil {
			return fmt.Errorf("failed to parse MCP server list in %s: %w", path, err)
		}
		for _, e := range entries {
			if e.Command == "" {
				continue
			}
			name := e.Name
			if name == "" {
				name = "unnamed"
			}
			configs = append(configs, e.toConfig(name))
			seen[name] = true
		}
	}

	if isJSONObject(doc.MCPServers) {
		var entries map[string]serverConfigFile
		if err := json.Unmarshal(doc.MCPServers, &entries); err != nil {
			return fmt.Errorf("failed to parse MCP server map in %s: %w", path, err)
		}
		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		// Map iteration order is randomized; apply in sorted order so
		// repeated loads of the same file behave identically.
		sort.Strings(names)
		for _, name := range names {
			e := entries[name]
			if e.Command == "" || seen[name] {
				continue
			}
			configs = append(configs, e.toConfig(name))
			seen[name] = true
		}
	}

	m.mu.Lock()
	m.configs = configs
	m.mu.Unlock()

	log.Log.Infof("Loaded %d MCP server configs from %s", len(configs), path)
	return nil
}

func isJSONArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

func isJSONObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}

// AddServer registers one more server config. Names must stay unique.
func (m *Manager) AddServer(cfg model.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.configs {
		if existing.Name == cfg.Name {
			return fmt.Errorf("server '%s' already exists", cfg.Name)
		}
	}
	m.configs = append(m.configs, cfg)
	return nil
}

// RemoveServer disconnects any live client for name and deletes its config.
func (m *Manager) RemoveServer(name string) {
	m.mu.Lock()
	client := m.clients[name]
	delete(m.clients, name)
	kept := m.configs[:0]
	for _, cfg := range m.configs {
		if cfg.Name != name {
			kept = append(kept, cfg)
		}
	}
	m.configs = kept
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
}

// ConnectAll connects every enabled, not-yet-connected server in config
// order. A failing server is logged and skipped; partial failure never
// aborts startup.
func (m *Manager) ConnectAll(ctx context.Context) {
	for _, cfg := range m.Configs() {
		if !cfg.Enabled {
			continue
		}
		m.mu.RLock()
		_, exists := m.clients[cfg.Name]
		m.mu.RUnlock()
		if exists {
			continue
		}

		client := NewClient(cfg, m.timeout)
		if err := client.Connect(ctx); err != nil {
			log.Log.Warnf("Failed to connect to MCP server '%s': %v", cfg.Name, err)
			continue
		}
		m.mu.Lock()
		m.clients[cfg.Name] = client
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
}

// DisconnectAll disconnects every live client and clears the registry.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.initialized = false
	m.mu.Unlock()

	for _, client := range clients {
		client.Disconnect()
	}
}

// DisconnectServer disconnects one live client and removes it from the
// registry; the config stays.
func (m *Manager) DisconnectServer(name string) error {
	m.mu.Lock()
	client, ok := m.clients[name]
	delete(m.clients, name)
	m.mu.Unlock()

	if !ok {
		return &NotConnectedError{Server: name}
	}
	client.Disconnect()
	return nil
}

// Reconnect discards any existing client for name and connects a fresh one.
func (m *Manager) Reconnect(ctx context.Context, name string) error {
	m.mu.Lock()
	old := m.clients[name]
	delete(m.clients, name)
	var cfg *model.ServerConfig
	for i := range m.configs {
		if m.configs[i].Name == name {
			cfg = &m.configs[i]
			break
		}
	}
	m.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	if cfg == nil {
		return fmt.Errorf("no configuration for MCP server '%s'", name)
	}

	client := NewClient(*cfg, m.timeout)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.clients[name] = client
	m.mu.Unlock()
	return nil
}

// Configs returns a snapshot of the configured servers in load order.
func (m *Manager) Configs() []model.ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ServerConfig, len(m.configs))
	copy(out, m.configs)
	return out
}

// Client returns the live client for a server, if any.
func (m *Manager) Client(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[name]
	return c, ok
}

// connectedNames returns the live client names in sorted order, for
// deterministic aggregation.
func (m *Manager) connectedNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllTools flattens the current catalog of every connected server.
func (m *Manager) AllTools() []model.Tool {
	var tools []model.Tool
	for _, name := range m.connectedNames() {
		if client, ok := m.Client(name); ok {
			tools = append(tools, client.Tools()...)
		}
	}
	return tools
}

// ToolsForLLM returns every tool as a function-calling definition with a
// qualified name, the schema the LLM orchestration layer consumes.
func (m *Manager) ToolsForLLM() []openai.Tool {
	all := m.AllTools()
	tools := make([]openai.Tool, 0, len(all))
	for _, t := range all {
		tools = append(tools, t.ToOpenAITool())
	}
	return tools
}

// CallTool routes a qualified tool name ("mcp_<server>_<tool>") to the
// owning client and invokes it.
func (m *Manager) CallTool(ctx context.Context, fullName string, args map[string]any) (json.RawMessage, error) {
	serverName, toolName, err := model.DequalifyToolName(fullName)
	if err != nil {
		return nil, err
	}
	client, ok := m.Client(serverName)
	if !ok {
		return nil, &NotConnectedError{Server: serverName}
	}
	return client.CallTool(ctx, toolName, args)
}

// ListResources lists resources from one connected server.
func (m *Manager) ListResources(ctx context.Context, serverName string) ([]model.Resource, error) {
	client, ok := m.Client(serverName)
	if !ok {
		return nil, &NotConnectedError{Server: serverName}
	}
	return client.ListResources(ctx)
}

// ReadResource reads one resource from one connected server.
func (m *Manager) ReadResource(ctx context.Context, serverName, uri string) (json.RawMessage, error) {
	client, ok := m.Client(serverName)
	if !ok {
		return nil, &NotConnectedError{Server: serverName}
	}
	return client.ReadResource(ctx, uri)
}

// RefreshCatalogs re-runs tool discovery on every connected client so
// long-lived hosts pick up provider catalog changes.
func (m *Manager) RefreshCatalogs(ctx context.Context) {
	for _, name := range m.connectedNames() {
		client, ok := m.Client(name)
		if !ok || !client.Connected() {
			continue
		}
		if err := client.RefreshTools(ctx); err != nil {
			log.Log.Warnf("Failed to refresh tools from '%s': %v", name, err)
		}
	}
}
