// Package sysstats samples system and per-service resource usage on a fixed
// interval and keeps a bounded history of samples.
package sysstats

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// usageSink is the slice of the inventory plugin sysstats consumes: the pid
// list to attribute and the write-back of attributed usage.
type usageSink interface {
	Services() []*models.Service
	ApplyUsage(usage map[uint32]models.ResourceUsage)
}

// Config holds the sysstats module configuration.
type Config struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	HistoryWindow  time.Duration `mapstructure:"history_window"`
	GPUProvider    string        `mapstructure:"gpu_provider"`
}

// DefaultConfig returns the sysstats defaults.
func DefaultConfig() Config {
	return Config{
		SampleInterval: 5 * time.Second,
		HistoryWindow:  30 * time.Minute,
		GPUProvider:    GPUProviderAuto,
	}
}

// Module implements the sysstats plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	resolver plugin.PluginResolver

	inventory usageSink
	sampler   *sampler
	ring      *sampleRing

	mu        sync.RWMutex
	gpu       gpuReader
	sampleErr error

	intervals chan time.Duration

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new sysstats plugin instance.
func New() *Module {
	return &Module{intervals: make(chan time.Duration, 1)}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "sysstats",
		Version:      "0.1.0",
		Description:  "System and per-service resource sampling",
		Dependencies: []string{"inventory"},
		Roles:        []string{"stats"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.resolver = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if d := deps.Config.GetDuration("sample_interval"); d > 0 {
			m.cfg.SampleInterval = d
		}
		if d := deps.Config.GetDuration("history_window"); d > 0 {
			m.cfg.HistoryWindow = d
		}
		if p := deps.Config.GetString("gpu_provider"); p != "" {
			if !validGPUProvider(p) {
				return fmt.Errorf("unknown gpu provider %q", p)
			}
			m.cfg.GPUProvider = p
		}
	}

	m.sampler = newSampler(m.logger.Named("sampler"))
	m.ring = newSampleRing(ringCapacity(m.cfg.HistoryWindow, m.cfg.SampleInterval))
	m.gpu = detectGPUProvider(m.cfg.GPUProvider, runGPUTool)

	gpuName := GPUProviderNone
	if m.gpu != nil {
		gpuName = m.gpu.name()
	}
	m.logger.Info("sysstats module initialized",
		zap.Duration("sample_interval", m.cfg.SampleInterval),
		zap.Int("history_capacity", m.ring.capacity()),
		zap.String("gpu_provider", gpuName))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.resolver != nil {
		if p, ok := m.resolver.Resolve("inventory"); ok {
			if sink, isSink := p.(usageSink); isSink {
				m.inventory = sink
			}
		}
	}

	m.loopCtx, m.loopCancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.runSampleLoop()

	m.logger.Info("sysstats module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.loopCancel != nil {
		m.loopCancel()
	}
	m.wg.Wait()
	m.logger.Info("sysstats module stopped")
	return nil
}

func (m *Module) runSampleLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	m.tick(m.loopCtx)

	for {
		select {
		case <-m.loopCtx.Done():
			return
		case <-ticker.C:
			m.tick(m.loopCtx)
		case d := <-m.intervals:
			ticker.Reset(d)
			m.logger.Info("sample interval changed", zap.Duration("interval", d))
		}
	}
}

// tick takes one sample, appends it to the history and pushes per-service
// usage back into the inventory.
func (m *Module) tick(ctx context.Context) {
	sample := m.sampler.sample(ctx, time.Now().UTC())

	m.mu.RLock()
	gpu := m.gpu
	m.mu.RUnlock()
	if gpu != nil {
		stats, err := gpu.read(ctx)
		m.mu.Lock()
		m.sampleErr = err
		m.mu.Unlock()
		if err != nil {
			m.logger.Warn("gpu sampling failed", zap.Error(err))
		} else {
			sample.GPUs = stats
		}
	}

	m.ring.push(sample)

	if m.inventory == nil {
		return
	}
	var pids []uint32
	for _, svc := range m.inventory.Services() {
		if svc.PID != nil {
			pids = append(pids, *svc.PID)
		}
	}
	m.inventory.ApplyUsage(m.sampler.sampleProcesses(ctx, pids))
}

// Current returns the most recent sample, or false when nothing has been
// sampled yet.
func (m *Module) Current() (models.StatsSample, bool) {
	return m.ring.latest()
}

// History returns all retained samples, oldest first.
func (m *Module) History() []models.StatsSample {
	return m.ring.snapshot()
}

// SetSampleInterval changes the sampling cadence at runtime and resizes the
// history ring so the retained window stays at history_window. Non-blocking;
// a pending ticker change is replaced.
func (m *Module) SetSampleInterval(d time.Duration) error {
	if d < time.Second {
		return fmt.Errorf("sample interval %s below 1s minimum", d)
	}
	m.mu.Lock()
	m.cfg.SampleInterval = d
	window := m.cfg.HistoryWindow
	m.mu.Unlock()
	m.ring.resize(ringCapacity(window, d))

	select {
	case m.intervals <- d:
	default:
		select {
		case <-m.intervals:
		default:
		}
		m.intervals <- d
	}
	return nil
}

// SetGPUProvider switches the GPU stats source at runtime.
func (m *Module) SetGPUProvider(provider string) error {
	if !validGPUProvider(provider) {
		return fmt.Errorf("unknown gpu provider %q", provider)
	}
	m.mu.Lock()
	m.gpu = detectGPUProvider(provider, runGPUTool)
	m.mu.Unlock()
	m.logger.Info("gpu provider changed", zap.String("provider", provider))
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.RLock()
	err := m.sampleErr
	m.mu.RUnlock()

	if err != nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "gpu sampling failing: " + err.Error(),
		}
	}
	return plugin.HealthStatus{
		Status: "ok",
		Details: map[string]string{
			"samples": strconv.Itoa(m.ring.len()),
		},
	}
}

func ringCapacity(window, interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	return int(window / interval)
}
