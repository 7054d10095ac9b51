package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 速率限制器接口
type RateLimiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Remaining() int
}

// TokenBucket 令牌桶，按经过的时间连续补充
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // 每秒补充的令牌数
	lastRefill time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// NewTokenBucket 创建令牌桶，初始为满
func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillPerSecond,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill 调用方持有锁
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}

// Allow 有令牌则消耗一个
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait 阻塞直到拿到令牌或 ctx 结束
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}

		tb.mu.Lock()
		wait := time.Second
		if tb.refillRate > 0 {
			wait = time.Duration((1 - tb.tokens) / tb.refillRate * float64(time.Second))
		}
		tb.mu.Unlock()
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining 当前可用令牌数
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// SlidingWindow 滑动窗口：windowSize 内最多 limit 次
type SlidingWindow struct {
	limit      int
	windowSize time.Duration
	requests   []time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// NewSlidingWindow 创建滑动窗口限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// prune 调用方持有锁
func (sw *SlidingWindow) prune() {
	cutoff := sw.now().Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 窗口未满则记录一次请求
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.prune()
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, sw.now())
	return true
}

// Wait 阻塞直到窗口有空位或 ctx 结束
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		wait := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			if d := sw.windowSize - sw.now().Sub(sw.requests[0]); d > 0 {
				wait = d
			}
		}
		sw.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining 窗口内剩余次数
func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune()
	return max(0, sw.limit-len(sw.requests))
}

// Manager 按名称共享限流器（同一交易所的多个账户共用公共接口额度）
type Manager struct {
	limiters map[string]RateLimiter
	fallback RateLimiter
	mu       sync.RWMutex
}

// NewManager 创建带默认限流规则的管理器
func NewManager() *Manager {
	m := &Manager{
		limiters: make(map[string]RateLimiter),
		fallback: NewSlidingWindow(50, time.Second),
	}
	// Backpack 所有账户共用一个出口，按 IP 限流
	m.limiters["backpack:account"] = NewTokenBucket(10, 5)
	// OKX 资金划转 1 次/秒，提币 6 次/秒，子账户查询 2 次/2 秒
	m.limiters["okx:transfer"] = NewTokenBucket(1, 1)
	m.limiters["okx:withdrawal"] = NewTokenBucket(6, 6)
	m.limiters["okx:subaccount"] = NewSlidingWindow(2, 2*time.Second)
	m.limiters["okx:general"] = NewSlidingWindow(10, time.Second)
	return m
}

// Set 注册或替换限流器
func (m *Manager) Set(name string, l RateLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = l
}

// Get 按名称获取，不存在时返回通用限流器
func (m *Manager) Get(name string) RateLimiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.limiters[name]; ok {
		return l
	}
	return m.fallback
}

// Wait 等待指定名称的限流器
func (m *Manager) Wait(ctx context.Context, name string) error {
	return m.Get(name).Wait(ctx)
}
