// Package sentinel evaluates the discovered services and the port table
// against a fixed security rule set, producing severity-classified findings.
package sentinel

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// serviceSource is the slice of the inventory plugin sentinel consumes.
type serviceSource interface {
	Services() []*models.Service
}

// portSource is the slice of the portmap plugin sentinel consumes.
type portSource interface {
	Usage() []models.PortRecord
}

// auditSink is the slice of the audit plugin sentinel consumes.
type auditSink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Config holds the sentinel module configuration.
type Config struct {
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}

// DefaultConfig returns the sentinel defaults.
func DefaultConfig() Config {
	return Config{ScanInterval: 10 * time.Minute}
}

// Module implements the sentinel plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	resolver plugin.PluginResolver

	services serviceSource
	ports    portSource
	audit    auditSink

	// uidsOf is swappable for tests.
	uidsOf func(ctx context.Context, pid uint32) ([]int32, error)

	mu   sync.RWMutex
	last *models.SecurityScanResult

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new sentinel plugin instance.
func New() *Module {
	return &Module{uidsOf: processUIDs}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "sentinel",
		Version:      "0.1.0",
		Description:  "Security rule engine over services and ports",
		Dependencies: []string{"inventory", "portmap", "audit"},
		Roles:        []string{"security"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.resolver = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if d := deps.Config.GetDuration("scan_interval"); d > 0 {
			m.cfg.ScanInterval = d
		}
	}

	m.logger.Info("sentinel module initialized",
		zap.Duration("scan_interval", m.cfg.ScanInterval))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.resolver != nil {
		if p, ok := m.resolver.Resolve("inventory"); ok {
			if src, isSource := p.(serviceSource); isSource {
				m.services = src
			}
		}
		if p, ok := m.resolver.Resolve("portmap"); ok {
			if src, isSource := p.(portSource); isSource {
				m.ports = src
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
	go m.runScanLoop()

	m.logger.Info("sentinel module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.wg.Wait()
	m.logger.Info("sentinel module stopped")
	return nil
}

func (m *Module) runScanLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.loopCtx.Done():
			return
		case <-ticker.C:
			if _, err := m.Scan(m.loopCtx); err != nil {
				m.logger.Warn("scheduled security scan failed", zap.Error(err))
			}
		}
	}
}

// Scan evaluates the current service and port state and stores the result.
func (m *Module) Scan(ctx context.Context) (*models.SecurityScanResult, error) {
	var services []*models.Service
	if m.services != nil {
		services = m.services.Services()
	}
	var ports []models.PortRecord
	if m.ports != nil {
		ports = m.ports.Usage()
	}

	issues := evaluate(services, ports, m.rootPIDs(ctx, services))

	result := &models.SecurityScanResult{
		Issues:          issues,
		ScannedAt:       time.Now().Unix(),
		ServicesScanned: len(services),
		PortsScanned:    len(ports),
	}
	result.Recount()

	m.mu.Lock()
	m.last = result
	m.mu.Unlock()

	if m.audit != nil {
		m.audit.Record(ctx, models.AuditEntry{
			EventType: models.AuditSecurityScan,
			Operation: "security scan: " + strconv.Itoa(len(issues)) + " findings",
			Success:   true,
		})
	}

	m.logger.Info("security scan complete",
		zap.Int("services", len(services)),
		zap.Int("ports", len(ports)),
		zap.Int("findings", len(issues)),
		zap.Int("critical", result.CriticalCount))
	return result, nil
}

// Last returns the most recent scan result, or nil when no scan has run.
func (m *Module) Last() *models.SecurityScanResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// rootPIDs resolves which tracked pids run as uid 0 at scan time.
func (m *Module) rootPIDs(ctx context.Context, services []*models.Service) map[uint32]bool {
	root := make(map[uint32]bool)
	for _, svc := range services {
		if svc.PID == nil {
			continue
		}
		uids, err := m.uidsOf(ctx, *svc.PID)
		if err != nil {
			continue
		}
		for _, uid := range uids {
			if uid == 0 {
				root[*svc.PID] = true
				break
			}
		}
	}
	return root
}

func processUIDs(ctx context.Context, pid uint32) ([]int32, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	return proc.UidsWithContext(ctx)
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.last == nil {
		return plugin.HealthStatus{Status: "ok", Message: "no scan run yet"}
	}
	return plugin.HealthStatus{
		Status: "ok",
		Details: map[string]string{
			"findings": strconv.Itoa(len(m.last.Issues)),
			"critical": strconv.Itoa(m.last.CriticalCount),
		},
	}
}
