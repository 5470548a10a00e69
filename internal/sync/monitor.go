package sync

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/craftbiz/cartsync/internal/errors"
	"github.com/craftbiz/cartsync/internal/logging"
	"github.com/craftbiz/cartsync/internal/remote"
)

// Monitor probes remote connectivity and drives automatic sync passes.
// It stands in for browser online/offline events: a successful probe after
// a failed one is the offline-to-online edge that triggers a pass.
type Monitor struct {
	engine *Engine
	remote remote.CartStore

	probeInterval time.Duration
	drainInterval time.Duration

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// MonitorConfig holds connectivity monitor configuration.
type MonitorConfig struct {
	ProbeInterval time.Duration // How often to probe the remote (default: 30 seconds)
	DrainInterval time.Duration // How often to drain a non-empty queue while online (default: 1 minute)
}

// DefaultMonitorConfig returns default monitor configuration.
func DefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		ProbeInterval: 30 * time.Second,
		DrainInterval: time.Minute,
	}
}

// NewMonitor creates a Monitor.
func NewMonitor(engine *Engine, remoteStore remote.CartStore, config *MonitorConfig) *Monitor {
	if config == nil {
		config = DefaultMonitorConfig()
	}
	return &Monitor{
		engine:        engine,
		remote:        remoteStore,
		probeInterval: config.ProbeInterval,
		drainInterval: config.DrainInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins probing. An immediate initial probe runs so a non-empty
// queue left over from a previous session is replayed on startup.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.mu.Unlock()

	m.probe(ctx)

	m.wg.Add(2)
	go m.probeLoop(ctx)
	go m.drainLoop(ctx)

	logging.Info("Connectivity monitor started")
}

// Stop stops the monitor gracefully.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	logging.Info("Connectivity monitor stopped")
}

// IsRunning reports whether the monitor is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

// probe checks reachability and triggers a pass on the offline-to-online
// edge, or on a first successful probe with work pending.
func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := m.remote.Ping(probeCtx)
	cancel()

	online := err == nil
	becameOnline := m.engine.SetOnline(online)

	if becameOnline && m.engine.PendingCount() > 0 {
		go m.runPass(ctx)
	}
}

func (m *Monitor) drainLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.engine.IsOnline() && m.engine.PendingCount() > 0 {
				go m.runPass(ctx)
			}
		}
	}
}

// runPass executes one pass; an already-running pass is simply dropped.
func (m *Monitor) runPass(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	_, err := m.engine.Sync(passCtx)
	if err != nil && !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		logging.ErrorWithCode("Background sync pass failed", string(apperrors.CodeOf(err)), err)
	}
}
