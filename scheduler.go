package mcpbridge

import (
	"context"
	"sync"
	"time"

	"github.com/ghiac/mcpbridge/log"
	"github.com/ghiac/mcpbridge/mcp"
)

// CatalogScheduler periodically re-runs tool discovery on every connected
// server so long-lived hosts pick up catalog changes without reconnecting.
type CatalogScheduler struct {
	manager  *mcp.Manager
	interval time.Duration
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewCatalogScheduler creates a scheduler that refreshes every interval
// (values <= 0 fall back to 5 minutes).
func NewCatalogScheduler(manager *mcp.Manager, interval time.Duration) *CatalogScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CatalogScheduler{
		manager:  manager,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start starts the scheduler in a background goroutine.
func (cs *CatalogScheduler) Start(ctx context.Context) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.running {
		log.Log.Warnf("[CatalogScheduler] Scheduler is already running")
		return
	}

	cs.running = true
	cs.stopChan = make(chan struct{}) // Recreate stopChan in case it was closed
	log.Log.Infof("[CatalogScheduler] Starting catalog refresh | Interval: %v", cs.interval)

	go cs.run(ctx)
}

// Stop stops the scheduler gracefully.
func (cs *CatalogScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.running {
		return
	}

	close(cs.stopChan)
	cs.running = false
}

// run runs the scheduler loop
func (cs *CatalogScheduler) run(ctx context.Context) {
	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.manager.RefreshCatalogs(ctx)
		case <-cs.stopChan:
			log.Log.Infof("[CatalogScheduler] Scheduler stopped")
			return
		case <-ctx.Done():
			log.Log.Infof("[CatalogScheduler] Scheduler stopped (context cancelled)")
			return
		}
	}
}
