// Package proxymgr rotates the proxies yt-dlp downloads and extractions go through.
// Proxies that keep failing are benched with exponential backoff and brought back
// by a background TCP health check.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/url"
	"sync"
	"time"

	"audiograb/internal/config"
	"audiograb/internal/errs"
	"audiograb/internal/observability"
)

// State represents the current state of a proxy.
type State int

// Proxy states.
const (
	StateAvailable State = iota
	StateBenched
)

func (s State) String() string {
	if s == StateBenched {
		return "benched"
	}

	return "available"
}

const (
	healthCheckTimeout = 10 * time.Second
	maxBackoff         = time.Hour
)

// Stats is a snapshot of one proxy's health.
type Stats struct {
	State         State     `json:"state"`
	FailureCount  int       `json:"failureCount"`
	LastFailure   time.Time `json:"lastFailure"`
	BackoffUntil  time.Time `json:"backoffUntil"`
	LastHealthChk time.Time `json:"lastHealthCheck"`
}

// Manager manages proxy rotation and health. A nil *Manager has no proxies.
type Manager struct {
	log     *slog.Logger
	cfg     config.Proxy
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.Mutex
	proxies map[string]*Stats
	order   []string
}

// New creates a proxy manager over cfg.Proxies.
func New(log *slog.Logger, cfg config.Proxy, metrics *observability.Metrics) *Manager {
	mgr := &Manager{
		log:     log.With(slog.String("package", "proxymgr")),
		cfg:     cfg,
		metrics: metrics,
		now:     time.Now,
		proxies: make(map[string]*Stats, len(cfg.Proxies)),
		order:   make([]string, 0, len(cfg.Proxies)),
	}

	for _, proxy := range cfg.Proxies {
		if _, dup := mgr.proxies[proxy]; dup {
			continue
		}

		mgr.proxies[proxy] = &Stats{State: StateAvailable}
		mgr.order = append(mgr.order, proxy)
	}

	metrics.SetProxiesAvailable(len(mgr.order))

	return mgr
}

// Next returns a random available proxy, or "" when none is configured or all are benched.
func (m *Manager) Next() string {
	if m == nil {
		return ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	available := m.available()
	if len(available) == 0 {
		return ""
	}

	proxy := available[rand.IntN(len(available))]
	m.metrics.RecordProxyRequest(proxy)

	return proxy
}

// Acquire is Next returning errs.ErrNoProxiesAvailable when proxies are configured but all benched.
func (m *Manager) Acquire() (string, error) {
	if m.Len() == 0 {
		return "", nil
	}

	proxy := m.Next()
	if proxy == "" {
		return "", errs.ErrNoProxiesAvailable
	}

	return proxy, nil
}

// MarkFailed counts a failure. Once MaxFailures is reached the proxy is benched for
// FailureBackoff doubled per extra failure, capped at one hour.
func (m *Manager) MarkFailed(proxy string) {
	if m == nil || proxy == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.proxies[proxy]
	if !ok {
		return
	}

	m.metrics.RecordProxyFailure(proxy)

	info.FailureCount++
	info.LastFailure = m.now()

	threshold := max(m.cfg.MaxFailures, 1)
	if info.FailureCount < threshold {
		return
	}

	shift := min(info.FailureCount-threshold, 16)

	backoff := m.cfg.FailureBackoff * time.Duration(1<<shift)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}

	info.State = StateBenched
	info.BackoffUntil = info.LastFailure.Add(backoff)

	m.metrics.SetProxiesAvailable(len(m.available()))
	m.log.Warn("proxy benched",
		slog.String("proxy", proxy),
		slog.Int("failure_count", info.FailureCount),
		slog.Duration("backoff", backoff))
}

// MarkSuccess makes the proxy available again and resets its failure count.
func (m *Manager) MarkSuccess(proxy string) {
	if m == nil || proxy == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset(proxy)
}

// Restore manually brings a benched proxy back.
func (m *Manager) Restore(proxy string) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reset(proxy) {
		m.log.Info("proxy restored", slog.String("proxy", proxy))
	}
}

// HealthCheck dials the proxy host over TCP and records the outcome.
func (m *Manager) HealthCheck(ctx context.Context, proxy string) error {
	u, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("parse proxy URL: %w", err)
	}

	dialer := &net.Dialer{Timeout: healthCheckTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		m.MarkFailed(proxy)

		return fmt.Errorf("dial proxy: %w", err)
	}
	defer conn.Close()

	m.mu.Lock()
	if info, ok := m.proxies[proxy]; ok {
		info.LastHealthChk = m.now()
	}

	m.reset(proxy)
	m.mu.Unlock()

	return nil
}

// RunHealthChecker checks every proxy each HealthCheckInterval until ctx is done.
func (m *Manager) RunHealthChecker(ctx context.Context) {
	if m.Len() == 0 || m.cfg.HealthCheckInterval <= 0 {
		return
	}

	m.log.InfoContext(ctx, "proxy health checker started",
		slog.Duration("interval", m.cfg.HealthCheckInterval),
		slog.Int("proxy_count", m.Len()))

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

// Stats returns a snapshot of every proxy.
func (m *Manager) Stats() map[string]Stats {
	if m == nil {
		return map[string]Stats{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[string]Stats, len(m.proxies))
	for proxy, info := range m.proxies {
		stats[proxy] = *info
	}

	return stats
}

// Len returns the number of configured proxies.
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}

	return len(m.order)
}

// Available returns the number of proxies not currently benched.
func (m *Manager) Available() int {
	if m == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.available())
}

// reset must be called with mu held.
func (m *Manager) reset(proxy string) bool {
	info, ok := m.proxies[proxy]
	if !ok {
		return false
	}

	info.State = StateAvailable
	info.FailureCount = 0
	info.BackoffUntil = time.Time{}

	m.metrics.SetProxiesAvailable(len(m.available()))

	return true
}

// available must be called with mu held. Benched proxies whose backoff expired count as available.
func (m *Manager) available() []string {
	now := m.now()
	out := make([]string, 0, len(m.order))

	for _, proxy := range m.order {
		info := m.proxies[proxy]
		if info.State == StateAvailable || now.After(info.BackoffUntil) {
			out = append(out, proxy)
		}
	}

	return out
}

func (m *Manager) checkAll(ctx context.Context) {
	m.mu.Lock()
	proxies := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, proxy := range proxies {
		if ctx.Err() != nil {
			return
		}

		if err := m.HealthCheck(ctx, proxy); err != nil {
			m.log.DebugContext(ctx, "proxy health check failed",
				slog.String("proxy", proxy),
				slog.Any("error", err))
		}
	}
}
