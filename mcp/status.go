package mcp

// ServerStatus is the read-only view of one configured server.
type ServerStatus struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	// ToolsCount is the size of the live catalog, 0 when disconnected
	ToolsCount int `json:"tools_count"`
}

// Status is the snapshot consumed by the administrative surface.
type Status struct {
	Initialized bool           `json:"initialized"`
	Servers     []ServerStatus `json:"servers"`
}

// Status reports, for every configured server, whether it is enabled,
// whether a live client exists, and that client's tool count.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	servers := make([]ServerStatus, 0, len(m.configs))
	for _, cfg := range m.configs {
		st := ServerStatus{Name: cfg.Name, Enabled: cfg.Enabled}
		if client, ok := m.clients[cfg.Name]; ok {
			st.Connected = true
			st.ToolsCount = len(client.Tools())
		}
		servers = append(servers, st)
	}
	return Status{Initialized: m.initialized, Servers: servers}
}
