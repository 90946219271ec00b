// Package explain produces plain-language descriptions of services and log
// analyses using a local Ollama model. It is optional: when disabled or the
// model server is unreachable, callers receive a fixed fallback text.
package explain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/internal/llm/ollama"
	"github.com/servicedeck/servicedeck/pkg/llm"
	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// FallbackText is returned whenever the model cannot be reached. Callers
// must never see a hard failure from an explanation request.
const FallbackText = "explanation unavailable"

// Valid log analysis kinds.
var analysisKinds = map[string]string{
	"errors":      "Identify the errors in these logs and explain their likely causes.",
	"patterns":    "Identify recurring patterns and notable trends in these logs.",
	"anomalies":   "Identify unusual or unexpected entries in these logs.",
	"performance": "Identify performance problems visible in these logs (slow operations, timeouts, resource pressure).",
	"security":    "Identify security-relevant events in these logs (failed logins, access violations, suspicious activity).",
}

// auditSink is the slice of the audit plugin explain consumes.
type auditSink interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Config holds the explain module configuration.
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the explain defaults. Disabled until an operator
// points it at a running Ollama instance.
func DefaultConfig() Config {
	oc := ollama.DefaultConfig()
	return Config{
		Enabled: false,
		URL:     oc.URL,
		Model:   oc.Model,
		Timeout: oc.Timeout,
	}
}

// Module implements the explain plugin.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	resolver plugin.PluginResolver

	provider llm.Provider
	audit    auditSink
}

// New creates a new explain plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "explain",
		Version:      "0.1.0",
		Description:  "LLM-backed service explanations and log analysis",
		Dependencies: []string{"audit"},
		Roles:        []string{"explainer"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.resolver = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		m.cfg.Enabled = deps.Config.GetBool("enabled")
		if v := deps.Config.GetString("url"); v != "" {
			m.cfg.URL = v
		}
		if v := deps.Config.GetString("model"); v != "" {
			m.cfg.Model = v
		}
		if d := deps.Config.GetDuration("timeout"); d > 0 {
			m.cfg.Timeout = d
		}
	}

	if m.cfg.Enabled {
		provider, err := ollama.New(ollama.Config{
			URL:     m.cfg.URL,
			Model:   m.cfg.Model,
			Timeout: m.cfg.Timeout,
		}, m.logger.Named("ollama"))
		if err != nil {
			return fmt.Errorf("ollama provider: %w", err)
		}
		m.provider = provider
	}

	m.logger.Info("explain module initialized",
		zap.Bool("enabled", m.cfg.Enabled),
		zap.String("model", m.cfg.Model))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.resolver != nil {
		if p, ok := m.resolver.Resolve("audit"); ok {
			if sink, isSink := p.(auditSink); isSink {
				m.audit = sink
			}
		}
	}
	m.logger.Info("explain module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("explain module stopped")
	return nil
}

// ExplainService asks the model what a service does. Never returns an error
// to the caller path that renders text: failures degrade to FallbackText.
func (m *Module) ExplainService(ctx context.Context, name, path, description string) (string, error) {
	if m.provider == nil {
		return FallbackText, nil
	}

	var sb strings.Builder
	sb.WriteString("Explain in two or three sentences, for a system operator, what the following service does and whether it is safe to stop.\n")
	sb.WriteString("Service name: " + name + "\n")
	if path != "" {
		sb.WriteString("Executable path: " + path + "\n")
	}
	if description != "" {
		sb.WriteString("Self-description: " + description + "\n")
	}

	text, err := m.generate(ctx, sb.String())
	m.record(ctx, "explain service "+name, name, err)
	if err != nil {
		m.logger.Warn("service explanation failed", zap.String("service", name), zap.Error(err))
		return FallbackText, nil
	}
	return text, nil
}

// AnalyzeLogs runs one analysis kind over a sanitized log corpus.
func (m *Module) AnalyzeLogs(ctx context.Context, text, kind string) (string, error) {
	instruction, ok := analysisKinds[kind]
	if !ok {
		return "", fmt.Errorf("unknown analysis kind %q", kind)
	}
	if m.provider == nil {
		return FallbackText, nil
	}

	prompt := instruction + " Be concise and concrete.\n\nLogs:\n" + sanitize(text)

	result, err := m.generate(ctx, prompt)
	m.record(ctx, "analyze logs: "+kind, "", err)
	if err != nil {
		m.logger.Warn("log analysis failed", zap.String("kind", kind), zap.Error(err))
		return FallbackText, nil
	}
	return result, nil
}

func (m *Module) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	resp, err := m.provider.Generate(ctx, prompt, llm.WithModel(m.cfg.Model))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func (m *Module) record(ctx context.Context, operation, subject string, err error) {
	if m.audit == nil {
		return
	}
	entry := models.AuditEntry{
		EventType: models.AuditLLMAnalysis,
		Operation: operation,
		SubjectID: subject,
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	m.audit.Record(ctx, entry)
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if !m.cfg.Enabled {
		return plugin.HealthStatus{Status: "ok", Message: "disabled"}
	}
	if reporter, ok := m.provider.(llm.HealthReporter); ok {
		if err := reporter.Heartbeat(ctx); err != nil {
			return plugin.HealthStatus{
				Status:  "degraded",
				Message: "ollama unreachable: " + err.Error(),
			}
		}
	}
	return plugin.HealthStatus{
		Status: "ok",
		Details: map[string]string{
			"model": m.cfg.Model,
		},
	}
}
