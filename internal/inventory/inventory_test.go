package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/servicedeck/servicedeck/internal/event"
	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
	"go.uber.org/zap"
)

// fakeAdapter returns canned units, swappable between cycles.
type fakeAdapter struct {
	mu    sync.Mutex
	kind  models.SourceKind
	units []RawUnit
	err   error
}

func (f *fakeAdapter) Kind() models.SourceKind { return f.kind }

func (f *fakeAdapter) List(_ context.Context) ([]RawUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units, f.err
}

func (f *fakeAdapter) set(units []RawUnit, err error) {
	f.mu.Lock()
	f.units = units
	f.err = err
	f.mu.Unlock()
}

func newTestModule(adapters ...SourceAdapter) (*Module, *event.Bus) {
	bus := event.NewBus(zap.NewNop())
	m := New()
	m.logger = zap.NewNop()
	m.bus = bus
	m.cfg = DefaultConfig()
	m.adapters = adapters
	return m, bus
}

func collectEvents(bus *event.Bus) (*[]*ServiceEvent, func()) {
	var events []*ServiceEvent
	unsub := bus.Subscribe(TopicServiceEvent, func(_ context.Context, e plugin.Event) {
		if se, ok := e.Payload.(*ServiceEvent); ok {
			events = append(events, se)
		}
	})
	return &events, unsub
}

// TestRunMergeFirstCycle verifies the first merge publishes one Discovered
// event and seeds the snapshot.
func TestRunMergeFirstCycle(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "sshd.service", Name: "sshd", Status: models.StatusRunning},
	}}
	m, bus := newTestModule(adapter)
	events, unsub := collectEvents(bus)
	defer unsub()

	if !m.runMerge(context.Background(), false) {
		t.Fatal("runMerge returned false on an idle module")
	}

	if len(*events) != 1 || (*events)[0].Kind != EventDiscovered {
		t.Fatalf("events = %+v, want single discovered", *events)
	}
	if got := m.Snapshot(); len(got) != 1 || got[0].ID != "systemd:sshd.service" {
		t.Errorf("snapshot = %+v, want sshd", got)
	}
}

// TestRunMergeEmitsDeltas verifies subsequent cycles publish only changes.
func TestRunMergeEmitsDeltas(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning},
	}}
	m, bus := newTestModule(adapter)
	m.runMerge(context.Background(), false)

	events, unsub := collectEvents(bus)
	defer unsub()

	adapter.set([]RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusStopped},
		{Kind: models.SourceSystemd, NativeID: "b.service", Name: "b", Status: models.StatusRunning},
	}, nil)
	m.runMerge(context.Background(), false)

	if len(*events) != 2 {
		t.Fatalf("events = %d, want 2 (added + status_changed)", len(*events))
	}
	if (*events)[0].Kind != EventAdded || (*events)[0].Service.ID != "systemd:b.service" {
		t.Errorf("first event = %s %s, want added b", (*events)[0].Kind, (*events)[0].Service.ID)
	}
	if (*events)[1].Kind != EventStatusChanged {
		t.Errorf("second event = %s, want status_changed", (*events)[1].Kind)
	}
}

// TestRunMergeNoOpSilent verifies an unchanged state emits nothing.
func TestRunMergeNoOpSilent(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning},
	}}
	m, bus := newTestModule(adapter)
	m.runMerge(context.Background(), false)

	events, unsub := collectEvents(bus)
	defer unsub()

	m.runMerge(context.Background(), false)

	if len(*events) != 0 {
		t.Errorf("events = %d, want 0 on a no-op cycle", len(*events))
	}
}

// TestResyncEmitsDiscovered verifies an explicit resync replays the full
// list as one Discovered event even with no changes.
func TestResyncEmitsDiscovered(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning},
	}}
	m, bus := newTestModule(adapter)
	m.runMerge(context.Background(), false)

	events, unsub := collectEvents(bus)
	defer unsub()

	m.Resync(context.Background())

	if len(*events) != 1 || (*events)[0].Kind != EventDiscovered {
		t.Fatalf("events = %+v, want single discovered after resync", *events)
	}
}

// TestMergeCoalescing verifies periodic cycles skip while another is in
// flight.
func TestMergeCoalescing(t *testing.T) {
	m, _ := newTestModule(&fakeAdapter{kind: models.SourceSystemd})
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	if m.runMerge(context.Background(), false) {
		t.Error("runMerge should skip while another cycle is in flight")
	}
}

// gatedAdapter blocks inside List until released, so tests can hold a merge
// cycle open mid-collect.
type gatedAdapter struct {
	kind    models.SourceKind
	units   []RawUnit
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAdapter) Kind() models.SourceKind { return g.kind }

func (g *gatedAdapter) List(_ context.Context) ([]RawUnit, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.units, nil
}

// TestResyncWaitsForInFlightCycle verifies an explicit resync arriving while
// a periodic merge is collecting is not dropped: it waits for the running
// cycle and then publishes its own Discovered event.
func TestResyncWaitsForInFlightCycle(t *testing.T) {
	gate := &gatedAdapter{
		kind: models.SourceSystemd,
		units: []RawUnit{
			{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m, bus := newTestModule(gate)

	// Seed cycle.
	go func() { <-gate.entered; gate.release <- struct{}{} }()
	m.runMerge(context.Background(), false)

	events, unsub := collectEvents(bus)
	defer unsub()

	// Hold a periodic cycle open mid-collect.
	tickDone := make(chan struct{})
	go func() {
		m.runMerge(context.Background(), false)
		close(tickDone)
	}()
	<-gate.entered

	resyncDone := make(chan struct{})
	go func() {
		m.Resync(context.Background())
		close(resyncDone)
	}()

	// Finish the tick, then let the resync's own collect proceed.
	gate.release <- struct{}{}
	<-tickDone
	go func() { <-gate.entered; gate.release <- struct{}{} }()

	select {
	case <-resyncDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Resync never completed while a cycle was in flight")
	}

	discovered := 0
	for _, e := range *events {
		if e.Kind == EventDiscovered {
			discovered++
		}
	}
	if discovered != 1 {
		t.Fatalf("discovered events = %d, want 1 from the resync", discovered)
	}
}

// TestSnapshotIsCopy verifies readers cannot mutate module state.
func TestSnapshotIsCopy(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning, Ports: []uint16{80}},
	}}
	m, _ := newTestModule(adapter)
	m.runMerge(context.Background(), false)

	snap := m.Snapshot()
	snap[0].Name = "tampered"
	snap[0].Ports[0] = 9999

	fresh := m.Snapshot()
	if fresh[0].Name != "a" || fresh[0].Ports[0] != 80 {
		t.Error("Snapshot() must return copies, not live references")
	}
}

// TestGetNotFound verifies a missing id yields ErrNotFound.
func TestGetNotFound(t *testing.T) {
	m, _ := newTestModule(&fakeAdapter{kind: models.SourceSystemd})
	m.runMerge(context.Background(), false)

	if _, err := m.Get("docker:nope"); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// TestApplyUsage verifies resource attribution by pid and nil-out for exited
// pids.
func TestApplyUsage(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning, PID: pidPtr(10)},
		{Kind: models.SourceSystemd, NativeID: "b.service", Name: "b", Status: models.StatusRunning, PID: pidPtr(20)},
	}}
	m, _ := newTestModule(adapter)
	m.runMerge(context.Background(), false)

	m.ApplyUsage(map[uint32]models.ResourceUsage{
		10: {CPUPercent: 12.5, MemoryBytes: 1 << 20, MemoryPercent: 3.1},
	})

	services := m.Snapshot()
	var a, b *models.Service
	for _, s := range services {
		switch s.Name {
		case "a":
			a = s
		case "b":
			b = s
		}
	}

	if a.CPUPercent == nil || *a.CPUPercent != 12.5 {
		t.Errorf("a.CPUPercent = %v, want 12.5", a.CPUPercent)
	}
	if b.CPUPercent != nil {
		t.Error("b resources should be unknown (nil) when the pid was not sampled")
	}
}

// TestApplyUsageDoesNotChurnEvents verifies a usage update between two
// identical merges emits no events.
func TestApplyUsageDoesNotChurnEvents(t *testing.T) {
	adapter := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning, PID: pidPtr(10)},
	}}
	m, bus := newTestModule(adapter)
	m.runMerge(context.Background(), false)

	m.ApplyUsage(map[uint32]models.ResourceUsage{10: {CPUPercent: 50}})

	events, unsub := collectEvents(bus)
	defer unsub()

	m.runMerge(context.Background(), false)

	if len(*events) != 0 {
		t.Errorf("events = %d, want 0 after resource attribution", len(*events))
	}
}

// TestSourcesReporting verifies degraded-source observability.
func TestSourcesReporting(t *testing.T) {
	healthy := &fakeAdapter{kind: models.SourceSystemd, units: []RawUnit{
		{Kind: models.SourceSystemd, NativeID: "a.service", Name: "a", Status: models.StatusRunning},
	}}
	broken := &fakeAdapter{kind: models.SourceDocker, err: ErrSourceUnavailable}
	m, _ := newTestModule(broken, healthy)
	m.runMerge(context.Background(), false)

	sources := m.Sources()
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(sources))
	}
	if !sources[0].Degraded || sources[0].Kind != models.SourceDocker {
		t.Errorf("docker source should be degraded: %+v", sources[0])
	}
	if sources[1].Degraded {
		t.Errorf("systemd source should be healthy: %+v", sources[1])
	}

	health := m.Health(context.Background())
	if health.Status != "degraded" {
		t.Errorf("health = %s, want degraded", health.Status)
	}
}

// TestSetDiscoverIntervalNonBlocking verifies interval updates never block
// even without a running loop.
func TestSetDiscoverIntervalNonBlocking(t *testing.T) {
	m, _ := newTestModule(&fakeAdapter{kind: models.SourceSystemd})

	done := make(chan struct{})
	go func() {
		m.SetDiscoverInterval(2 * time.Second)
		m.SetDiscoverInterval(3 * time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetDiscoverInterval blocked")
	}
}
