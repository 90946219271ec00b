// Package inventory discovers services across all host sources, reconciles
// them into one snapshot, and publishes ordered change events.
package inventory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// auditSink is the slice of the audit plugin the inventory needs.
// Resolved by name at Start; a missing audit plugin disables recording.
type auditSink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Module implements the inventory plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	bus      plugin.EventBus
	resolver plugin.PluginResolver

	adapters []SourceAdapter
	ctrl     *controller
	ports    PortLookup
	audit    auditSink

	mu      sync.RWMutex
	current *Snapshot

	mergeMu   sync.Mutex
	trigger   chan struct{}
	intervals chan time.Duration

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup

	nowFunc func() time.Time
}

// New creates a new inventory plugin instance.
func New() *Module {
	return &Module{
		trigger:   make(chan struct{}, 1),
		intervals: make(chan time.Duration, 1),
		nowFunc:   time.Now,
	}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "inventory",
		Version:      "0.1.0",
		Description:  "Service discovery, merge and change events",
		Dependencies: []string{"portmap", "audit"},
		Required:     true,
		Roles:        []string{"discovery"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.resolver = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if d := deps.Config.GetDuration("discover_interval"); d > 0 {
			m.cfg.DiscoverInterval = d
		}
		if d := deps.Config.GetDuration("adapter_timeout"); d > 0 {
			m.cfg.AdapterTimeout = d
		}
		if s := deps.Config.GetString("docker_socket"); s != "" {
			m.cfg.DockerSocket = s
		}
		if v := deps.Config.GetInt("max_process_services"); v > 0 {
			m.cfg.MaxProcessServices = v
		}
	}

	docker := newDockerClient(m.cfg.DockerSocket, m.logger.Named("docker"))
	m.ctrl = newController(docker, m.logger.Named("control"))

	// Registration order matters: it breaks equal-precedence identity ties.
	m.adapters = []SourceAdapter{
		&DockerAdapter{client: docker, logger: m.logger.Named("docker")},
		NewSystemdAdapter(m.logger.Named("systemd")),
		NewLaunchdAdapter(m.logger.Named("launchd")),
		NewWinSvcAdapter(m.logger.Named("winsvc")),
		NewProcessAdapter(m.cfg.MaxProcessServices, m.logger.Named("process")),
	}

	m.logger.Info("inventory module initialized",
		zap.Duration("discover_interval", m.cfg.DiscoverInterval),
		zap.Int("adapters", len(m.adapters)),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.resolver != nil {
		if p, ok := m.resolver.Resolve("portmap"); ok {
			if pl, isLookup := p.(PortLookup); isLookup {
				m.ports = pl
			}
		}
		if p, ok := m.resolver.Resolve("audit"); ok {
			if sink, isSink := p.(auditSink); isSink {
				m.audit = sink
			}
		}
	}

	m.loopCtx, m.loopCancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.runDiscoveryLoop()

	m.logger.Info("inventory module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.wg.Wait()
	m.logger.Info("inventory module stopped")
	return nil
}

// runDiscoveryLoop drives merge cycles. Ticks arriving while a cycle is in
// flight are coalesced; manual triggers share the same guard.
func (m *Module) runDiscoveryLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.DiscoverInterval)
	defer ticker.Stop()

	// First cycle immediately so the snapshot exists before the first tick.
	m.runMerge(m.loopCtx, false)

	for {
		select {
		case <-m.loopCtx.Done():
			return
		case <-ticker.C:
			m.runMerge(m.loopCtx, false)
		case <-m.trigger:
			m.runMerge(m.loopCtx, false)
		case d := <-m.intervals:
			ticker.Reset(d)
			m.logger.Info("discover interval updated", zap.Duration("interval", d))
		}
	}
}

// runMerge executes one full cycle: collect, merge, swap snapshots, diff,
// publish. Periodic ticks are coalesced (return false when a cycle is
// already in flight); a resync waits for the running cycle and then
// performs its own, so an explicit request is never dropped.
func (m *Module) runMerge(ctx context.Context, resync bool) bool {
	if resync {
		m.mergeMu.Lock()
	} else if !m.mergeMu.TryLock() {
		return false
	}
	defer m.mergeMu.Unlock()

	start := time.Now()
	snap := m.collect(ctx)

	m.mu.Lock()
	prev := m.current
	if resync {
		prev = nil
	}
	m.current = snap
	m.mu.Unlock()

	degraded := 0
	for _, s := range snap.Sources {
		if s.Degraded {
			degraded++
		}
	}
	degradedSources.Set(float64(degraded))
	mergeDuration.Observe(time.Since(start).Seconds())

	events := diff(prev, snap)
	for _, e := range events {
		eventsEmitted.WithLabelValues(string(e.Kind)).Inc()
		// Synchronous publish preserves batch order for subscribers.
		_ = m.bus.Publish(ctx, plugin.Event{
			Topic:     TopicServiceEvent,
			Source:    "inventory",
			Timestamp: snap.TakenAt,
			Payload:   e,
		})
	}

	if len(events) > 0 {
		m.logger.Debug("merge cycle completed",
			zap.Int("services", len(snap.Services)),
			zap.Int("events", len(events)),
		)
	}
	return true
}

// collect runs every adapter concurrently, each bounded by the adapter
// timeout, and joins the results in registration order.
func (m *Module) collect(ctx context.Context) *Snapshot {
	results := make([]adapterResult, len(m.adapters))
	var wg sync.WaitGroup

	for i, a := range m.adapters {
		wg.Add(1)
		go func(i int, a SourceAdapter) {
			defer wg.Done()
			actx, cancel := context.WithTimeout(ctx, m.cfg.AdapterTimeout)
			defer cancel()
			units, err := a.List(actx)
			results[i] = adapterResult{kind: a.Kind(), units: units, err: err}
			if err != nil {
				m.logger.Debug("source adapter degraded",
					zap.String("source", string(a.Kind())),
					zap.Error(err),
				)
			}
		}(i, a)
	}
	wg.Wait()

	return merge(results, m.ports, m.nowFunc())
}

// Resync forces a full re-discovery: the next published batch is a single
// Discovered event carrying the complete list.
func (m *Module) Resync(ctx context.Context) {
	m.runMerge(ctx, true)
}

// scheduleMerge requests an out-of-band cycle, used after control ops.
func (m *Module) scheduleMerge() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current merged service list.
func (m *Module) Snapshot() []*models.Service {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	return cloneServices(m.current.Services)
}

// Services implements the resolver-side interface sysstats and sentinel use.
func (m *Module) Services() []*models.Service {
	return m.Snapshot()
}

// Get returns a copy of one service by id.
func (m *Module) Get(id string) (*models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != nil {
		for _, s := range m.current.Services {
			if s.ID == id {
				c := s.Clone()
				return &c, nil
			}
		}
	}
	return nil, ErrNotFound
}

// Sources reports per-source degraded state from the last cycle.
func (m *Module) Sources() []SourceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	out := make([]SourceState, len(m.current.Sources))
	copy(out, m.current.Sources)
	return out
}

// ApplyUsage attributes sampled resource figures onto current services by
// pid. Resource fields are not diffed, so mutating the live snapshot under
// the lock cannot disturb the event stream.
func (m *Module) ApplyUsage(usage map[uint32]models.ResourceUsage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	for _, s := range m.current.Services {
		if s.PID == nil {
			continue
		}
		u, ok := usage[*s.PID]
		if !ok {
			// Pid exited since the sample: figures are unknown, not zero.
			s.CPUPercent, s.MemoryBytes, s.MemoryPercent = nil, nil, nil
			continue
		}
		cpu, mem, memPct := u.CPUPercent, u.MemoryBytes, u.MemoryPercent
		s.CPUPercent = &cpu
		s.MemoryBytes = &mem
		s.MemoryPercent = &memPct
	}
}

// Control issues a lifecycle operation and schedules an immediate re-merge.
func (m *Module) Control(ctx context.Context, id string, op ControlOp) error {
	svc, err := m.Get(id)
	if err != nil {
		return err
	}

	err = m.ctrl.Control(ctx, svc, op)
	m.recordControl(ctx, op, svc, err)
	if err != nil {
		return err
	}

	m.scheduleMerge()
	return nil
}

// SetAutostart toggles boot enablement and schedules a re-merge.
func (m *Module) SetAutostart(ctx context.Context, id string, enabled bool) error {
	svc, err := m.Get(id)
	if err != nil {
		return err
	}

	err = m.ctrl.SetAutostart(ctx, svc, enabled)
	if m.audit != nil {
		m.audit.Record(ctx, models.AuditEntry{
			EventType: models.AuditConfigChange,
			Operation: "autostart=" + strconv.FormatBool(enabled),
			SubjectID: svc.ID,
			Success:   err == nil,
			Error:     errString(err),
		})
	}
	if err != nil {
		return err
	}

	m.scheduleMerge()
	return nil
}

// SetDiscoverInterval changes the merge cycle period at runtime.
func (m *Module) SetDiscoverInterval(d time.Duration) {
	m.mu.Lock()
	m.cfg.DiscoverInterval = d
	m.mu.Unlock()
	select {
	case m.intervals <- d:
	default:
	}
}

func (m *Module) recordControl(ctx context.Context, op ControlOp, svc *models.Service, err error) {
	if m.audit == nil {
		return
	}
	var eventType models.AuditEventType
	switch op {
	case OpStart:
		eventType = models.AuditServiceStart
	case OpStop:
		eventType = models.AuditServiceStop
	case OpRestart:
		eventType = models.AuditRestart
	case OpKill:
		eventType = models.AuditProcessKill
	}
	m.audit.Record(ctx, models.AuditEntry{
		EventType: eventType,
		Operation: string(op),
		SubjectID: svc.ID,
		Success:   err == nil,
		Error:     errString(err),
	})
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	sources := m.Sources()
	degraded := 0
	details := make(map[string]string, len(sources))
	for _, s := range sources {
		state := "ok"
		if s.Partial {
			state = "partial"
		}
		if s.Degraded {
			state = "degraded"
			degraded++
		}
		details[string(s.Kind)] = state
	}

	status := "ok"
	if degraded > 0 {
		status = "degraded"
	}
	return plugin.HealthStatus{
		Status:  status,
		Details: details,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
