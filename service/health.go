package service

import (
	"sync"
	"time"

	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/core"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusNotLoaded = "not_loaded"

	// 窗口内请求数少于该值时不判定 degraded
	minHealthSamples = 20
)

// Health 是 health() 的返回值
type Health struct {
	Status        string          `json:"status"`
	Loaded        bool            `json:"loaded"`
	ModelType     string          `json:"model_type"`
	ModelVersion  string          `json:"model_version,omitempty"`
	Dimensions    core.Dimensions `json:"dimensions"`
	Capabilities  []string        `json:"capabilities,omitempty"`
	Source        string          `json:"source,omitempty"`
	LoadedAt      *time.Time      `json:"loaded_at,omitempty"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	ErrorRate     float64         `json:"error_rate"`
	Stats         Stats           `json:"stats"`
	Cache         cache.Stats     `json:"cache"`
}

// Health 返回服务状态：未加载、健康或降级（窗口错误率超过阈值）。
func (s *Service) Health() Health {
	h := Health{
		Status:        StatusNotLoaded,
		ModelType:     StatusNotLoaded,
		UptimeSeconds: s.opts.Now().Sub(s.started).Seconds(),
		Stats:         s.Stats(),
		Cache:         s.cache.Stats(),
	}
	requests, rate := s.health.errorRate()
	h.ErrorRate = rate

	snap := s.snap.Load()
	if snap == nil {
		return h
	}
	loadedAt := snap.LoadedAt
	h.Loaded = true
	h.ModelType = string(snap.Config.ModelType)
	h.ModelVersion = snap.Version
	h.Dimensions = snap.Config.Dimensions()
	h.Capabilities = snap.Capabilities()
	h.Source = snap.Source
	h.LoadedAt = &loadedAt

	h.Status = StatusHealthy
	if requests >= minHealthSamples && rate > s.opts.DegradedErrorRate {
		h.Status = StatusDegraded
	}
	return h
}

// healthMonitor 用两个相邻窗口近似滑动窗口错误率
type healthMonitor struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time

	start     time.Time
	cur, prev bucket
}

type bucket struct{ requests, errors int64 }

func newHealthMonitor(window time.Duration, now func() time.Time) *healthMonitor {
	return &healthMonitor{window: window, now: now, start: now()}
}

func (m *healthMonitor) rotate() {
	elapsed := m.now().Sub(m.start)
	switch {
	case elapsed < m.window:
		return
	case elapsed < 2*m.window:
		m.prev = m.cur
	default:
		m.prev = bucket{}
	}
	m.cur = bucket{}
	m.start = m.now()
}

func (m *healthMonitor) record(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotate()
	m.cur.requests++
	if failed {
		m.cur.errors++
	}
}

func (m *healthMonitor) errorRate() (int64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotate()
	req := m.cur.requests + m.prev.requests
	if req == 0 {
		return 0, 0
	}
	return req, float64(m.cur.errors+m.prev.errors) / float64(req)
}
