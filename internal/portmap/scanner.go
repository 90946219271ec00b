package portmap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scanner performs active TCP connect scans against a host.
type Scanner struct {
	timeout     time.Duration
	concurrency int
	logger      *zap.Logger

	// dial is swappable for tests.
	dial func(ctx context.Context, addr string) bool
}

// NewScanner creates a connect scanner with bounded concurrency.
func NewScanner(timeout time.Duration, concurrency int, logger *zap.Logger) *Scanner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 100
	}
	s := &Scanner{
		timeout:     timeout,
		concurrency: concurrency,
		logger:      logger,
	}
	s.dial = s.tryConnect
	return s
}

// ScanRange probes every TCP port in [from, to] on host and returns the open
// ones ascending. The scan respects ctx cancellation between dials.
func (s *Scanner) ScanRange(ctx context.Context, host string, from, to uint16) ([]uint16, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range %d-%d", from, to)
	}

	var mu sync.Mutex
	var open []uint16
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)

	for port := int(from); port <= int(to); port++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(p uint16) {
			defer wg.Done()
			defer func() { <-sem }()

			addr := net.JoinHostPort(host, strconv.Itoa(int(p)))
			if s.dial(ctx, addr) {
				mu.Lock()
				open = append(open, p)
				mu.Unlock()
			}
		}(uint16(port))
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Sort for deterministic output.
	sort.Slice(open, func(i, j int) bool { return open[i] < open[j] })

	s.logger.Debug("port scan complete",
		zap.String("host", host),
		zap.Uint16("from", from),
		zap.Uint16("to", to),
		zap.Int("open", len(open)),
	)
	return open, nil
}

func (s *Scanner) tryConnect(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
