// Package health tracks which target databases are currently reachable.
//
// The monitor probes every adapter through its HealthCheck and keeps a
// per-service healthy flag. The runner reads a snapshot before each
// dispatch, so a probe flipping mid-batch never produces a half-excluded
// comparison. Two policies exist: in the default policy services are
// probed once at startup and then on a background interval, and a service
// down at startup stays out of the run; in strict mode every dispatch is
// preceded by a fresh probe of all services.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

type Config struct {
	// ProbeTimeout bounds a single health check.
	ProbeTimeout time.Duration `yaml:"probe_timeout" envconfig:"HEALTH_PROBE_TIMEOUT"`

	// Interval between background re-probes. Zero disables the loop.
	Interval time.Duration `yaml:"interval" envconfig:"HEALTH_INTERVAL"`

	// Strict re-probes every service before each dispatch instead of
	// relying on the background loop.
	Strict bool `yaml:"strict" envconfig:"HEALTH_STRICT"`
}

func DefaultConfig() Config {
	return Config{
		ProbeTimeout: 3 * time.Second,
		Interval:     15 * time.Second,
	}
}

// Monitor owns the health state of all registered adapters.
type Monitor struct {
	cfg      Config
	adapters []vdb.Adapter
	log      *zap.Logger

	mu      sync.RWMutex
	healthy map[string]bool
	// atStart records the verdict of the first probe. In the default
	// policy a service down at start is never re-admitted.
	atStart map[string]bool
	probed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(cfg Config, adapters []vdb.Adapter, log *zap.Logger) *Monitor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultConfig().ProbeTimeout
	}
	return &Monitor{
		cfg:      cfg,
		adapters: adapters,
		log:      log,
		healthy:  make(map[string]bool, len(adapters)),
		atStart:  make(map[string]bool, len(adapters)),
	}
}

// ProbeAll checks every adapter once and updates the health map. The first
// call fixes the at-start verdicts.
func (m *Monitor) ProbeAll(ctx context.Context) {
	verdicts := make(map[string]bool, len(m.adapters))
	var wg sync.WaitGroup
	var vmu sync.Mutex

	for _, a := range m.adapters {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := m.probe(ctx, a)
			vmu.Lock()
			verdicts[a.Name()] = ok
			vmu.Unlock()
		}()
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	first := !m.probed
	m.probed = true
	for name, ok := range verdicts {
		if first {
			m.atStart[name] = ok
		}
		if !m.cfg.Strict && !m.atStart[name] {
			// Default policy: down at start means out for the run.
			m.healthy[name] = false
			continue
		}
		if prev, seen := m.healthy[name]; seen && prev != ok {
			m.log.Warn("database health changed",
				zap.String("database", name),
				zap.Bool("healthy", ok))
		}
		m.healthy[name] = ok
	}
}

func (m *Monitor) probe(ctx context.Context, a vdb.Adapter) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	status, err := a.HealthCheck(probeCtx)
	if err != nil || status == nil || !status.Reachable {
		m.log.Debug("health probe failed",
			zap.String("database", a.Name()),
			zap.Error(err))
		return false
	}
	return true
}

// Refresh re-probes before a dispatch when strict mode demands it.
func (m *Monitor) Refresh(ctx context.Context) {
	if m.cfg.Strict {
		m.ProbeAll(ctx)
	}
}

// Snapshot partitions all services into healthy and excluded under one
// lock acquisition, in stable order. Dispatch decisions for one batch
// must come from a single snapshot; reading the two lists separately
// would let a background probe flip a service between the reads.
func (m *Monitor) Snapshot() (healthy, excluded []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ok := range m.healthy {
		if ok {
			healthy = append(healthy, name)
		} else {
			excluded = append(excluded, name)
		}
	}
	sort.Strings(healthy)
	sort.Strings(excluded)
	return healthy, excluded
}

// Healthy returns the names of currently healthy services in stable order.
func (m *Monitor) Healthy() []string {
	healthy, _ := m.Snapshot()
	return healthy
}

// Excluded returns the names of currently unhealthy services in stable
// order.
func (m *Monitor) Excluded() []string {
	_, excluded := m.Snapshot()
	return excluded
}

// Start launches the background re-probe loop in the default policy.
// Strict mode probes inline via Refresh and needs no loop.
func (m *Monitor) Start(ctx context.Context) {
	if m.cfg.Strict || m.cfg.Interval <= 0 {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.ProbeAll(loopCtx)
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}
