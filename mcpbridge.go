package mcpbridge

import (
	"context"
	"sync"

	"github.com/ghiac/mcpbridge/config"
	"github.com/ghiac/mcpbridge/log"
	"github.com/ghiac/mcpbridge/mcp"
)

// Bridge is the main entry point for the library.
// It owns the MCP server manager and the optional catalog refresh scheduler.
type Bridge struct {
	cfg     *config.Config
	manager *mcp.Manager

	scheduler   *CatalogScheduler
	schedulerMu sync.RWMutex
}

// New creates a Bridge from the given configuration. Nothing is connected
// yet; call Start to load the server file and bring connections up.
func New(cfg *config.Config) *Bridge {
	return &Bridge{
		cfg:     cfg,
		manager: mcp.NewManager(cfg.RequestTimeout),
	}
}

// Start loads the server definitions file, connects every enabled server,
// and starts the catalog refresh scheduler when configured. Servers that
// fail to connect are logged and skipped; Start only fails on an unreadable
// or malformed server file.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.manager.LoadConfig(b.cfg.ServersFile); err != nil {
		return err
	}
	b.manager.ConnectAll(ctx)

	status := b.manager.Status()
	connected := 0
	for _, s := range status.Servers {
		if s.Connected {
			connected++
		}
	}
	log.Log.Infof("MCP bridge started: %d/%d servers connected", connected, len(status.Servers))

	if b.cfg.Refresh.Enabled {
		b.StartScheduler(ctx)
	}
	return nil
}

// Shutdown stops the scheduler and disconnects every server.
func (b *Bridge) Shutdown() {
	b.StopScheduler()
	b.manager.DisconnectAll()
	log.Log.Infof("MCP bridge stopped")
}

// Manager returns the underlying server manager.
func (b *Bridge) Manager() *mcp.Manager {
	return b.manager
}

// StartScheduler starts the periodic catalog refresh. Calling it while a
// scheduler is already running is a no-op.
func (b *Bridge) StartScheduler(ctx context.Context) {
	b.schedulerMu.Lock()
	if b.scheduler != nil {
		b.schedulerMu.Unlock()
		return
	}
	scheduler := NewCatalogScheduler(b.manager, b.cfg.Refresh.Interval)
	b.scheduler = scheduler
	b.schedulerMu.Unlock()

	scheduler.Start(ctx)
}

// StopScheduler stops the catalog refresh scheduler gracefully.
func (b *Bridge) StopScheduler() {
	b.schedulerMu.Lock()
	scheduler := b.scheduler
	b.scheduler = nil
	b.schedulerMu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
}

// Version returns the current version of the library
func Version() string {
	return "0.1.0"
}
