package portmap

import (
	"context"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeDial reports open only for the given ports.
func fakeDial(open ...uint16) func(ctx context.Context, addr string) bool {
	set := make(map[uint16]struct{}, len(open))
	for _, p := range open {
		set[p] = struct{}{}
	}
	return func(_ context.Context, addr string) bool {
		idx := strings.LastIndex(addr, ":")
		port, _ := strconv.Atoi(addr[idx+1:])
		_, ok := set[uint16(port)]
		return ok
	}
}

func TestScanRangeFindsOpenPorts(t *testing.T) {
	s := NewScanner(time.Second, 10, zap.NewNop())
	s.dial = fakeDial(8080, 8081, 8090)

	open, err := s.ScanRange(context.Background(), "127.0.0.1", 8000, 8100)
	if err != nil {
		t.Fatalf("ScanRange() error = %v", err)
	}

	want := []uint16{8080, 8081, 8090}
	if !reflect.DeepEqual(open, want) {
		t.Errorf("open = %v, want %v", open, want)
	}
}

// TestScanRangeDeterministic verifies repeated scans of the same state give
// identical results despite concurrent dialing.
func TestScanRangeDeterministic(t *testing.T) {
	s := NewScanner(time.Second, 50, zap.NewNop())
	s.dial = fakeDial(1025, 1500, 1999)

	first, err := s.ScanRange(context.Background(), "127.0.0.1", 1024, 2048)
	if err != nil {
		t.Fatalf("ScanRange() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.ScanRange(context.Background(), "127.0.0.1", 1024, 2048)
		if err != nil {
			t.Fatalf("ScanRange() error = %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("scan not deterministic: %v != %v", first, again)
		}
	}
}

func TestScanRangeInvalidRange(t *testing.T) {
	s := NewScanner(time.Second, 10, zap.NewNop())

	if _, err := s.ScanRange(context.Background(), "127.0.0.1", 9000, 8000); err == nil {
		t.Error("inverted range should be rejected")
	}
}

func TestScanRangeCancelled(t *testing.T) {
	s := NewScanner(time.Second, 10, zap.NewNop())
	s.dial = fakeDial()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ScanRange(ctx, "127.0.0.1", 1024, 2048); err == nil {
		t.Error("cancelled scan should return the context error")
	}
}

func TestScanRangeSinglePort(t *testing.T) {
	s := NewScanner(time.Second, 10, zap.NewNop())
	s.dial = fakeDial(443)

	open, err := s.ScanRange(context.Background(), "localhost", 443, 443)
	if err != nil {
		t.Fatalf("ScanRange() error = %v", err)
	}
	if len(open) != 1 || open[0] != 443 {
		t.Errorf("open = %v, want [443]", open)
	}
}
