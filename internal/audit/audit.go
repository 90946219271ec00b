// Package audit persists an append-only log of operator-visible operations:
// service control, configuration changes, scans, and LLM analyses.
package audit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// Config holds the audit module configuration.
type Config struct {
	RetentionPeriod     time.Duration `mapstructure:"retention_period"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns the audit defaults: 30 days retention, hourly prune.
func DefaultConfig() Config {
	return Config{
		RetentionPeriod:     720 * time.Hour,
		MaintenanceInterval: time.Hour,
	}
}

// recordTimeout bounds the background insert of one entry.
const recordTimeout = 5 * time.Second

// Module implements the audit plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config
	store  *entryStore

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new audit plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "audit",
		Version:     "0.1.0",
		Description: "Append-only operation log",
		Required:    true,
		Roles:       []string{"audit"},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if d := deps.Config.GetDuration("retention_period"); d > 0 {
			m.cfg.RetentionPeriod = d
		}
		if d := deps.Config.GetDuration("maintenance_interval"); d > 0 {
			m.cfg.MaintenanceInterval = d
		}
	}

	if err := deps.Store.Migrate(ctx, "audit", migrations); err != nil {
		return err
	}
	m.store = &entryStore{store: deps.Store}

	m.logger.Info("audit module initialized",
		zap.Duration("retention_period", m.cfg.RetentionPeriod))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	m.loopCtx, m.loopCancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.runMaintenanceLoop()

	m.logger.Info("audit module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.wg.Wait()
	m.logger.Info("audit module stopped")
	return nil
}

// Record persists an entry without blocking the caller. Missing id and
// timestamp are filled in; insert failures are logged, never propagated.
func (m *Module) Record(_ context.Context, entry models.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := m.store.insert(ctx, entry); err != nil {
			m.logger.Warn("audit record failed",
				zap.String("event_type", string(entry.EventType)),
				zap.Error(err))
		}
	}()
}

// List returns stored entries newest first.
func (m *Module) List(ctx context.Context, f Filter, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return m.store.list(ctx, f, limit, offset)
}

func (m *Module) runMaintenanceLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.loopCtx.Done():
			return
		case <-ticker.C:
			m.prune(m.loopCtx)
		}
	}
}

func (m *Module) prune(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.RetentionPeriod)
	deleted, err := m.store.deleteOlderThan(ctx, cutoff)
	if err != nil {
		m.logger.Warn("audit prune failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		m.logger.Info("audit entries pruned",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	n, err := m.store.count(ctx)
	if err != nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "audit store unreachable: " + err.Error(),
		}
	}
	return plugin.HealthStatus{
		Status: "ok",
		Details: map[string]string{
			"entries": strconv.Itoa(n),
		},
	}
}
