// Package portmap maintains the host's listening-port table, correlates it
// with discovered services, and answers free-port and scan queries.
package portmap

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

// serviceSource is the slice of the inventory plugin portmap consumes.
type serviceSource interface {
	Services() []*models.Service
}

// auditSink is the slice of the audit plugin portmap consumes.
type auditSink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Config holds the portmap module configuration.
type Config struct {
	CorrelateInterval time.Duration `mapstructure:"correlate_interval"`
	ScanTimeout       time.Duration `mapstructure:"scan_timeout"`
	ScanConcurrency   int           `mapstructure:"scan_concurrency"`
}

// DefaultConfig returns the portmap defaults.
func DefaultConfig() Config {
	return Config{
		CorrelateInterval: 10 * time.Second,
		ScanTimeout:       2 * time.Second,
		ScanConcurrency:   100,
	}
}

// Module implements the portmap plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	resolver plugin.PluginResolver

	services serviceSource
	audit    auditSink
	scanner  *Scanner
	read     connectionReader

	mu      sync.RWMutex
	table   []tableEntry
	records []models.PortRecord
	readErr error

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new portmap plugin instance.
func New() *Module {
	return &Module{read: readConnections}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "portmap",
		Version:     "0.1.0",
		Description: "Listening-port table, correlation and scanning",
		Required:    true,
		Roles:       []string{"ports"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.resolver = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if d := deps.Config.GetDuration("correlate_interval"); d > 0 {
			m.cfg.CorrelateInterval = d
		}
		if d := deps.Config.GetDuration("scan_timeout"); d > 0 {
			m.cfg.ScanTimeout = d
		}
		if v := deps.Config.GetInt("scan_concurrency"); v > 0 {
			m.cfg.ScanConcurrency = v
		}
	}

	m.scanner = NewScanner(m.cfg.ScanTimeout, m.cfg.ScanConcurrency, m.logger.Named("scanner"))

	m.logger.Info("portmap module initialized",
		zap.Duration("correlate_interval", m.cfg.CorrelateInterval))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.resolver != nil {
		if p, ok := m.resolver.Resolve("inventory"); ok {
			if src, isSource := p.(serviceSource); isSource {
				m.services = src
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
	go m.runCorrelateLoop()

	m.logger.Info("portmap module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.wg.Wait()
	m.logger.Info("portmap module stopped")
	return nil
}

func (m *Module) runCorrelateLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CorrelateInterval)
	defer ticker.Stop()

	m.refresh(m.loopCtx)

	for {
		select {
		case <-m.loopCtx.Done():
			return
		case <-ticker.C:
			m.refresh(m.loopCtx)
		}
	}
}

// refresh rereads the socket table and re-correlates against the current
// service list.
func (m *Module) refresh(ctx context.Context) {
	entries, err := readTable(ctx, m.read)
	if err != nil {
		m.logger.Warn("port table read failed", zap.Error(err))
		m.mu.Lock()
		m.readErr = err
		m.mu.Unlock()
		return
	}

	var services []*models.Service
	if m.services != nil {
		services = m.services.Services()
	}
	records := correlate(entries, services)

	m.mu.Lock()
	m.table = entries
	m.records = records
	m.readErr = nil
	m.mu.Unlock()
}

// PortsForPID implements the inventory's port-enrichment lookup.
func (m *Module) PortsForPID(pid uint32) []uint16 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ports []uint16
	for _, e := range m.table {
		if e.PID == pid {
			ports = append(ports, e.Port)
		}
	}
	return ports
}

// Usage returns the latest correlated port table.
func (m *Module) Usage() []models.PortRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PortRecord, len(m.records))
	copy(out, m.records)
	return out
}

// FreePorts returns the first count unoccupied ports above 1023.
func (m *Module) FreePorts(count int) ([]uint16, error) {
	m.mu.RLock()
	occupied := occupiedSet(m.table)
	m.mu.RUnlock()
	return findFreePorts(occupied, count)
}

// ScanRange actively probes host ports [from, to] and audit-records the scan.
func (m *Module) ScanRange(ctx context.Context, host string, from, to uint16) ([]uint16, error) {
	open, err := m.scanner.ScanRange(ctx, host, from, to)
	if m.audit != nil {
		m.audit.Record(ctx, models.AuditEntry{
			EventType: models.AuditPortScan,
			Operation: "scan " + host + " " + strconv.Itoa(int(from)) + "-" + strconv.Itoa(int(to)),
			SubjectID: host,
			Success:   err == nil,
			Error:     errString(err),
		})
	}
	return open, err
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.readErr != nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "port table read failing: " + m.readErr.Error(),
		}
	}
	return plugin.HealthStatus{
		Status: "ok",
		Details: map[string]string{
			"occupied_ports": strconv.Itoa(len(m.table)),
		},
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
