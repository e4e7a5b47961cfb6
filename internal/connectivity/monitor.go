// Package connectivity decides whether the application talks to the
// remote store directly or defers writes. A cancellable polling task
// probes reachability; a persisted manual override always wins over
// probe results.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ClaudeNdayambaje/payesmart1/internal/events"
	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
	"github.com/ClaudeNdayambaje/payesmart1/internal/queue"
	"github.com/ClaudeNdayambaje/payesmart1/internal/settings"
)

// ErrSyncUnavailable - a sync was requested while the store is
// unreachable.
var ErrSyncUnavailable = errors.New("cannot sync: remote store unreachable")

// Prober checks reachability of the remote store.
type Prober interface {
	Ping(ctx context.Context) error
}

// ReplayFunc applies one queued operation against the remote store.
type ReplayFunc func(ctx context.Context, op queue.Operation) error

// Monitor owns the process-wide connectivity state.
type Monitor struct {
	prober   Prober
	settings *settings.File
	queue    *queue.Queue
	bus      *events.Bus
	log      *logrus.Logger
	replay   ReplayFunc

	interval     time.Duration
	probeTimeout time.Duration

	mu        sync.Mutex
	mode      models.Mode
	broadcast models.Mode // last mode published, "" before the first

	syncMu sync.Mutex // re-entrancy guard for Sync
}

func NewMonitor(p Prober, sf *settings.File, q *queue.Queue, bus *events.Bus, log *logrus.Logger, interval time.Duration) *Monitor {
	m := &Monitor{
		prober:       p,
		settings:     sf,
		queue:        q,
		bus:          bus,
		log:          log,
		interval:     interval,
		probeTimeout: 5 * time.Second,
	}
	// Until the first probe lands, the persisted override is all we know.
	if sf.Get().OfflineMode {
		m.mode = models.ModeOffline
	} else {
		m.mode = models.ModeOnline
	}
	return m
}

// SetReplay wires the function that replays queued operations. Set
// once at startup, before Run.
func (m *Monitor) SetReplay(fn ReplayFunc) { m.replay = fn }

// Run probes immediately, then on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.checkOnce(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce(ctx)
		}
	}
}

// Mode returns the current connectivity mode.
func (m *Monitor) Mode() models.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// State snapshots the full connectivity state.
func (m *Monitor) State() models.ConnectivityState {
	m.mu.Lock()
	mode := m.mode
	m.mu.Unlock()
	return models.ConnectivityState{
		Mode:           mode,
		ManualOverride: m.settings.Get().OfflineMode,
		PendingCount:   m.queue.Pending(),
	}
}

// ToggleManualOverride flips the persisted offline override and
// immediately recomputes the mode.
func (m *Monitor) ToggleManualOverride(ctx context.Context) (models.ConnectivityState, error) {
	var enabled bool
	err := m.settings.Set(func(s *settings.Settings) {
		s.OfflineMode = !s.OfflineMode
		enabled = s.OfflineMode
	})
	if err != nil {
		return models.ConnectivityState{}, err
	}
	if enabled {
		m.setMode(ctx, models.ModeOffline)
	} else {
		m.checkOnce(ctx)
	}
	return m.State(), nil
}

// Sync replays queued operations against the remote store. It is a
// no-op when a sync is already running. The pending count reaches zero
// only once every operation is confirmed persisted remotely.
func (m *Monitor) Sync(ctx context.Context) error {
	if m.replay == nil {
		return nil
	}
	if !m.syncMu.TryLock() {
		return nil // already syncing
	}
	defer m.syncMu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Ping(probeCtx)
	cancel()
	if err != nil {
		return ErrSyncUnavailable
	}

	remaining, err := m.queue.Replay(ctx, m.replay)
	m.log.WithFields(logrus.Fields{
		"module":    "connectivity",
		"remaining": remaining,
	}).Info("sync finished")
	m.bus.Publish(events.TopicConnectionStatusChanged, m.State())
	return err
}

// checkOnce runs one reachability probe and derives the mode. Probe
// results never override the manual flag; the probe still runs so the
// status display stays honest.
func (m *Monitor) checkOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Ping(probeCtx)
	cancel()

	if m.settings.Get().OfflineMode {
		m.setMode(ctx, models.ModeOffline)
		return
	}
	if err != nil {
		m.setMode(ctx, models.ModeOffline)
	} else {
		m.setMode(ctx, models.ModeOnline)
	}
}

// setMode records the computed mode and broadcasts it only when it
// differs from the previously broadcast one. An offline-to-online
// transition kicks off a sync.
func (m *Monitor) setMode(ctx context.Context, mode models.Mode) {
	m.mu.Lock()
	m.mode = mode
	changed := m.broadcast != mode
	wasOffline := m.broadcast == models.ModeOffline
	if changed {
		m.broadcast = mode
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	m.log.WithFields(logrus.Fields{
		"module": "connectivity",
		"mode":   mode,
	}).Info("connectivity mode changed")
	m.bus.Publish(events.TopicConnectionStatusChanged, m.State())

	if wasOffline && mode == models.ModeOnline && m.replay != nil {
		go func() {
			if err := m.Sync(ctx); err != nil {
				m.log.WithField("module", "connectivity").Warn("sync after reconnect: " + err.Error())
			}
		}()
	}
}
