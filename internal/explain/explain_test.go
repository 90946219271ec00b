package explain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/llm"
	"github.com/servicedeck/servicedeck/pkg/models"
)

type fakeProvider struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeProvider) Generate(_ context.Context, prompt string, _ ...llm.CallOption) (*llm.Response, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.response}, nil
}

func (f *fakeProvider) Chat(_ context.Context, _ []llm.Message, _ ...llm.CallOption) (*llm.Response, error) {
	return nil, errors.New("not used")
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (f *fakeAudit) Record(_ context.Context, entry models.AuditEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func newTestModule(provider llm.Provider) (*Module, *fakeAudit) {
	audit := &fakeAudit{}
	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()
	m.cfg.Enabled = true
	m.provider = provider
	m.audit = audit
	return m, audit
}

func TestExplainService(t *testing.T) {
	provider := &fakeProvider{response: "nginx serves web traffic."}
	m, audit := newTestModule(provider)

	text, err := m.ExplainService(context.Background(), "nginx", "/usr/sbin/nginx", "web server")
	if err != nil {
		t.Fatalf("ExplainService() error = %v", err)
	}
	if text != "nginx serves web traffic." {
		t.Errorf("text = %q", text)
	}

	if len(provider.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(provider.prompts))
	}
	for _, want := range []string{"nginx", "/usr/sbin/nginx", "web server"} {
		if !strings.Contains(provider.prompts[0], want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 || audit.entries[0].EventType != models.AuditLLMAnalysis {
		t.Errorf("audit entries = %+v, want one llm_analysis record", audit.entries)
	}
	if !audit.entries[0].Success {
		t.Error("audit entry should report success")
	}
}

func TestExplainServiceDegradesOnProviderError(t *testing.T) {
	m, audit := newTestModule(&fakeProvider{err: errors.New("connection refused")})

	text, err := m.ExplainService(context.Background(), "nginx", "", "")
	if err != nil {
		t.Fatalf("provider failure must not surface an error, got %v", err)
	}
	if text != FallbackText {
		t.Errorf("text = %q, want %q", text, FallbackText)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 || audit.entries[0].Success {
		t.Error("failed explanation should be audit-recorded as unsuccessful")
	}
}

func TestExplainServiceDisabled(t *testing.T) {
	m := New()
	m.logger = zap.NewNop()
	m.cfg = DefaultConfig()

	text, err := m.ExplainService(context.Background(), "nginx", "", "")
	if err != nil {
		t.Fatalf("ExplainService() error = %v", err)
	}
	if text != FallbackText {
		t.Errorf("text = %q, want %q when disabled", text, FallbackText)
	}
}

func TestAnalyzeLogs(t *testing.T) {
	for kind := range analysisKinds {
		provider := &fakeProvider{response: "analysis"}
		m, _ := newTestModule(provider)

		text, err := m.AnalyzeLogs(context.Background(), "some log lines", kind)
		if err != nil {
			t.Fatalf("AnalyzeLogs(%s) error = %v", kind, err)
		}
		if text != "analysis" {
			t.Errorf("AnalyzeLogs(%s) = %q", kind, text)
		}
	}
}

func TestAnalyzeLogsUnknownKind(t *testing.T) {
	m, _ := newTestModule(&fakeProvider{})

	if _, err := m.AnalyzeLogs(context.Background(), "logs", "vibes"); err == nil {
		t.Error("unknown kind should be rejected")
	}
}

// TestAnalyzeLogsSanitizesPrompt verifies credentials never leave the host.
func TestAnalyzeLogsSanitizesPrompt(t *testing.T) {
	provider := &fakeProvider{response: "ok"}
	m, _ := newTestModule(provider)

	_, err := m.AnalyzeLogs(context.Background(), "login with password=hunter2 from 10.0.0.5", "security")
	if err != nil {
		t.Fatalf("AnalyzeLogs() error = %v", err)
	}

	prompt := provider.prompts[0]
	if strings.Contains(prompt, "hunter2") || strings.Contains(prompt, "10.0.0.5") {
		t.Errorf("prompt leaked sensitive data: %q", prompt)
	}
}
