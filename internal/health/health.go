// Package health tracks whether the Moltbook API is reachable from this
// machine. molt serve runs a Monitor and reports its state on /v1/health.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Status is the reachability state of the remote API.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Config holds probe settings.
type Config struct {
	URL                string        // probed with GET
	Interval           time.Duration // time between probes
	Timeout            time.Duration // max time per probe
	GracePeriod        time.Duration // delay before first probe
	UnhealthyThreshold int           // consecutive failures before unhealthy
}

// Report is the monitor's view at one point in time.
type Report struct {
	Status           Status    `json:"status"`
	Message          string    `json:"message,omitempty"`
	CheckedAt        time.Time `json:"checked_at,omitzero"`
	Latency          string    `json:"latency,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// Monitor runs periodic probes and tracks state.
type Monitor struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	mu     sync.Mutex
	report Report
	cancel context.CancelFunc
	done   chan struct{}

	// onChange is called on every status transition.
	onChange func(Status)
}

// NewMonitor creates a monitor. onChange may be nil.
func NewMonitor(cfg Config, logger *slog.Logger, onChange func(Status)) *Monitor {
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		report:     Report{Status: StatusUnknown},
		onChange:   onChange,
	}
}

// Start begins periodic probing.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop halts the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// CurrentStatus returns the current status.
func (m *Monitor) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report.Status
}

// Report returns the latest report.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.report
}

func (m *Monitor) run(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		close(m.done)
		m.mu.Unlock()
	}()

	if m.cfg.GracePeriod > 0 {
		select {
		case <-time.After(m.cfg.GracePeriod):
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := probe(checkCtx, m.httpClient, m.cfg.URL)
	elapsed := time.Since(start)

	// Shutting down; the result means nothing.
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	prev := m.report.Status
	m.report.CheckedAt = start
	m.report.Latency = elapsed.Round(time.Millisecond).String()
	if err == nil {
		m.report.ConsecutiveFails = 0
		m.report.Status = StatusHealthy
		m.report.Message = "ok"
	} else {
		m.report.ConsecutiveFails++
		m.report.Message = err.Error()
		if m.report.ConsecutiveFails >= m.cfg.UnhealthyThreshold {
			m.report.Status = StatusUnhealthy
		}
	}
	next := m.report.Status
	fails := m.report.ConsecutiveFails
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("API probe failed",
			"url", m.cfg.URL,
			"error", err,
			"consecutive_fails", fails,
			"threshold", m.cfg.UnhealthyThreshold,
		)
	}

	if prev != next {
		if next == StatusUnhealthy {
			m.logger.Error("Moltbook API unreachable", "consecutive_fails", fails)
		} else {
			m.logger.Info("Moltbook API status changed", "from", prev, "to", next)
		}
		if m.onChange != nil {
			m.onChange(next)
		}
	}
}

// Check runs one probe against url and returns nil if the API answered.
func Check(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return probe(ctx, &http.Client{Timeout: timeout}, url)
}

// probe treats any answer below 500 as reachable: the API root replies
// 401 or 404 to anonymous requests while still being up.
func probe(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: %d", resp.StatusCode)
	}
	return nil
}
