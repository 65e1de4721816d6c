package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/ghiac/mcpbridge/model"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp_servers.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func configNames(configs []model.ServerConfig) []string {
	names := make([]string, 0, len(configs))
	for _, c := range configs {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

func TestLoadConfigArrayForm(t *testing.T) {
	path := writeConfigFile(t, `{
		"mcpServers": [
			{"name": "fs", "command": "npx", "args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]},
			{"name": "git", "command": "uvx", "env": {"GIT_DIR": "/repo"}, "enabled": false},
			{"command": "node"},
			{"name": "broken"}
		]
	}`)

	m := NewManager(time.Second)
	if err := m.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	configs := m.Configs()
	if len(configs) != 3 {
		t.Fatalf("expected 3 configs (entry without command skipped), got %d", len(configs))
	}
	if configs[0].Name != "fs" || !configs[0].Enabled {
		t.Errorf("first config wrong: %+v", configs[0])
	}
	if len(configs[0].Args) != 3 {
		t.Errorf("args not preserved: %+v", configs[0].Args)
	}
	if configs[1].Name != "git" || configs[1].Enabled {
		t.Errorf("explicit enabled=false not honored: %+v", configs[1])
	}
	if configs[1].Env["GIT_DIR"] != "/repo" {
		t.Errorf("env not preserved: %+v", configs[1].Env)
	}
	if configs[2].Name != "unnamed" {
		t.Errorf("nameless entry should default to 'unnamed', got %q", configs[2].Name)
	}
}

func TestLoadConfigObjectForm(t *testing.T) {
	path := writeConfigFile(t, `{
		"mcpServers": {
			"fs": {"command": "npx", "args": ["-y", "server-fs"]},
			"web": {"command": "node", "enabled": false}
		}
	}`)

	m := NewManager(time.Second)
	if err := m.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	configs := m.Configs()
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	got := configNames(configs)
	if got[0] != "fs" || got[1] != "web" {
		t.Errorf("unexpected names: %v", got)
	}
	for _, cfg := range configs {
		if cfg.Name == "fs" && !cfg.Enabled {
			t.Error("fs should default to enabled")
		}
		if cfg.Name == "web" && cfg.Enabled {
			t.Error("web should be disabled")
		}
	}
}

func TestLoadConfigShapesAreEquivalent(t *testing.T) {
	arrayPath := writeConfigFile(t, `{
		"mcpServers": [
			{"name": "alpha", "command": "npx", "args": ["a"]},
			{"name": "beta", "command": "node", "args": ["b"], "enabled": false}
		]
	}`)
	objectPath := writeConfigFile(t, `{
		"mcpServers": {
			"beta": {"command": "node", "args": ["b"], "enabled": false},
			"alpha": {"command": "npx", "args": ["a"]}
		}
	}`)

	m1 := NewManager(time.Second)
	m2 := NewManager(time.Second)
	if err := m1.LoadConfig(arrayPath); err != nil {
		t.Fatalf("array load: %v", err)
	}
	if err := m2.LoadConfig(objectPath); err != nil {
		t.Fatalf("object load: %v", err)
	}

	byName := func(configs []model.ServerConfig) map[string]model.ServerConfig {
		out := make(map[string]model.ServerConfig, len(configs))
		for _, c := range configs {
			out[c.Name] = c
		}
		return out
	}
	set1, set2 := byName(m1.Configs()), byName(m2.Configs())
	if len(set1) != len(set2) {
		t.Fatalf("set sizes differ: %d vs %d", len(set1), len(set2))
	}
	for name, c1 := range set1 {
		c2, ok := set2[name]
		if !ok {
			t.Errorf("missing %q in object-form set", name)
			continue
		}
		if c1.Command != c2.Command || c1.Enabled != c2.Enabled || len(c1.Args) != len(c2.Args) {
			t.Errorf("configs differ for %q: %+v vs %+v", name, c1, c2)
		}
	}
}

func TestLoadConfigObjectFormDuplicatesSkipped(t *testing.T) {
	// Mixed document: the "servers" array loads first, then the object map
	// under "mcpServers"; the duplicate name keeps the array entry.
	path := writeConfigFile(t, `{
		"servers": [
			{"name": "fs", "command": "from-array"}
		],
		"mcpServers": {
			"fs": {"command": "from-object"},
			"extra": {"command": "node"}
		}
	}`)

	m := NewManager(time.Second)
	if err := m.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	configs := m.Configs()
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d: %v", len(configs), configNames(configs))
	}
	for _, cfg := range configs {
		if cfg.Name == "fs" && cfg.Command != "from-array" {
			t.Errorf("duplicate should be skipped, fs command = %q", cfg.Command)
		}
	}
}

func TestLoadConfigServersKey(t *testing.T) {
	path := writeConfigFile(t, `{"servers": [{"name": "only", "command": "npx"}]}`)
	m := NewManager(time.Second)
	if err := m.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(m.Configs()) != 1 || m.Configs()[0].Name != "only" {
		t.Errorf("servers key not honored: %v", m.Configs())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	m := NewManager(time.Second)
	if err := m.LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Errorf("missing config file should not be an error, got %v", err)
	}
	if len(m.Configs()) != 0 {
		t.Errorf("expected no configs, got %v", m.Configs())
	}
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{"mcpServers": [`)
	m := NewManager(time.Second)
	if err := m.LoadConfig(path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestAddServerRejectsDuplicatesAndInvalid(t *testing.T) {
	m := NewManager(time.Second)
	if err := m.AddServer(model.ServerConfig{Name: "fs", Command: "npx", Enabled: true}); err != nil {
		t.Fatalf("AddServer failed: %v", err)
	}
	if err := m.AddServer(model.ServerConfig{Name: "fs", Command: "node"}); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if err := m.AddServer(model.ServerConfig{Name: "", Command: "node"}); err == nil {
		t.Error("invalid config should be rejected")
	}
}

func TestConnectAllPartialFailure(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("good")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddServer(model.ServerConfig{Name: "bad", Command: "/nonexistent-mcp-binary-zz", Enabled: true}); err != nil {
		t.Fatal(err)
	}

	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	if _, ok := m.Client("good"); !ok {
		t.Error("valid server should be connected")
	}
	if _, ok := m.Client("bad"); ok {
		t.Error("failing server must not be registered")
	}

	status := m.Status()
	if !status.Initialized {
		t.Error("manager should be initialized after ConnectAll")
	}
}

func TestConnectAllSkipsDisabled(t *testing.T) {
	cfg := helperServerConfig("sleepy")
	cfg.Enabled = false

	m := NewManager(10 * time.Second)
	if err := m.AddServer(cfg); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	if _, ok := m.Client("sleepy"); ok {
		t.Error("disabled server must not be connected")
	}
	status := m.Status()
	if len(status.Servers) != 1 || status.Servers[0].Connected || status.Servers[0].Enabled {
		t.Errorf("unexpected status for disabled server: %+v", status.Servers)
	}
}

// The handshake-failure scenario from the reference behavior: echo prints
// "{}" and exits, so initialize never completes, yet the server stays
// visible as configured with zero tools.
func TestStatusAfterHandshakeFailure(t *testing.T) {
	path := writeConfigFile(t, `{"mcpServers": {"fs": {"command": "echo", "args": ["{}"]}}}`)

	m := NewManager(5 * time.Second)
	if err := m.LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	status := m.Status()
	if len(status.Servers) != 1 {
		t.Fatalf("expected 1 server in status, got %d", len(status.Servers))
	}
	st := status.Servers[0]
	if st.Name != "fs" || !st.Enabled {
		t.Errorf("fs should be configured and enabled: %+v", st)
	}
	if st.Connected {
		t.Error("fs should not be connected after a failed handshake")
	}
	if st.ToolsCount != 0 {
		t.Errorf("expected tools_count 0, got %d", st.ToolsCount)
	}
}

func TestCallToolRoutesQualifiedName(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("fs")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	result, err := m.CallTool(context.Background(), "mcp_fs_echo", map[string]any{"text": "routed"})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if !strings.Contains(string(result), "routed") {
		t.Errorf("unexpected result: %s", result)
	}
}

func TestCallToolNameErrors(t *testing.T) {
	m := NewManager(time.Second)

	if _, err := m.CallTool(context.Background(), "plain_name", nil); err == nil {
		t.Error("missing mcp_ prefix should fail")
	}
	if _, err := m.CallTool(context.Background(), "mcp_onlyserver", nil); err == nil {
		t.Error("malformed qualified name should fail")
	}
	_, err := m.CallTool(context.Background(), "mcp_ghost_tool", nil)
	var notConnected *NotConnectedError
	if !errors.As(err, &notConnected) {
		t.Errorf("unknown server should yield NotConnectedError, got %v", err)
	}
	if notConnected != nil && notConnected.Server != "ghost" {
		t.Errorf("error should name the server, got %q", notConnected.Server)
	}
}

func TestToolsForLLMAggregation(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("alpha")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddServer(helperServerConfig("beta")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	all := m.AllTools()
	wantTotal := 0
	for _, name := range []string{"alpha", "beta"} {
		client, ok := m.Client(name)
		if !ok {
			t.Fatalf("server %q not connected", name)
		}
		wantTotal += len(client.Tools())
	}
	if len(all) != wantTotal {
		t.Errorf("AllTools length %d, want %d", len(all), wantTotal)
	}

	llmTools := m.ToolsForLLM()
	if len(llmTools) != wantTotal {
		t.Errorf("ToolsForLLM length %d, want %d", len(llmTools), wantTotal)
	}
	for _, tool := range llmTools {
		name := tool.Function.Name
		if !strings.HasPrefix(name, "mcp_alpha_") && !strings.HasPrefix(name, "mcp_beta_") {
			t.Errorf("tool name %q lacks a connected-server prefix", name)
		}
		if !strings.HasPrefix(tool.Function.Description, "[MCP:") {
			t.Errorf("description %q lacks the server tag", tool.Function.Description)
		}
	}
}

func TestReconnect(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("fs")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	first, ok := m.Client("fs")
	if !ok {
		t.Fatal("fs should be connected")
	}
	if err := m.Reconnect(context.Background(), "fs"); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	second, ok := m.Client("fs")
	if !ok {
		t.Fatal("fs should be connected after reconnect")
	}
	if first == second {
		t.Error("reconnect must build a fresh client")
	}
	if first.Connected() {
		t.Error("old client should be disconnected")
	}
	if !second.Connected() {
		t.Error("new client should be connected")
	}

	if err := m.Reconnect(context.Background(), "missing"); err == nil {
		t.Error("reconnecting an unconfigured server should fail")
	}
}

func TestRemoveServerDisconnects(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("fs")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())

	client, ok := m.Client("fs")
	if !ok {
		t.Fatal("fs should be connected")
	}
	m.RemoveServer("fs")
	if client.Connected() {
		t.Error("removed server's client should be disconnected")
	}
	if _, ok := m.Client("fs"); ok {
		t.Error("removed server should not be registered")
	}
	if len(m.Configs()) != 0 {
		t.Error("removed server's config should be gone")
	}
}

func TestDisconnectAllClearsRegistry(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("fs")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())

	m.DisconnectAll()
	if _, ok := m.Client("fs"); ok {
		t.Error("registry should be empty after DisconnectAll")
	}
	if m.Status().Initialized {
		t.Error("initialized flag should clear on DisconnectAll")
	}
	// Idempotent, including on an already-empty manager.
	m.DisconnectAll()

	if err := m.DisconnectServer("fs"); err == nil {
		t.Error("disconnecting an absent server should report NotConnectedError")
	}
}

func TestManagerListAndReadResources(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("fs")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	resources, err := m.ListResources(context.Background(), "fs")
	if err != nil {
		t.Fatalf("ListResources failed: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(resources))
	}

	raw, err := m.ReadResource(context.Background(), "fs", resources[0].URI)
	if err != nil {
		t.Fatalf("ReadResource failed: %v", err)
	}
	var parsed struct {
		Contents []struct {
			Text string `json:"text"`
		} `json:"contents"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("bad resources/read payload: %v", err)
	}
	if len(parsed.Contents) != 1 || parsed.Contents[0].Text == "" {
		t.Errorf("unexpected contents: %s", raw)
	}

	if _, err := m.ListResources(context.Background(), "ghost"); err == nil {
		t.Error("resources on unknown server should fail")
	}
}

func TestRefreshCatalogs(t *testing.T) {
	m := NewManager(10 * time.Second)
	if err := m.AddServer(helperServerConfig("fs")); err != nil {
		t.Fatal(err)
	}
	m.ConnectAll(context.Background())
	defer m.DisconnectAll()

	before := len(m.AllTools())
	m.RefreshCatalogs(context.Background())
	after := len(m.AllTools())
	if before != after {
		t.Errorf("refresh against a stable server changed the catalog: %d -> %d", before, after)
	}
}
