// Package pause 提供可取消的停顿和带退避的重试，测试中可替换 Sleeper 避免真实等待。
package pause

import (
	"context"
	"time"
)

// Sleeper 停顿 d，ctx 结束时提前返回 ctx.Err()
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep 默认实现
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// None 不停顿，只检查 ctx
func None(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// Policy 重试策略：失败后等待 Delay，每次乘以 Backoff
type Policy struct {
	Attempts int
	Delay    time.Duration
	Backoff  float64
}

// Retry 执行 fn 直到成功、次数用完或 ctx 结束；onErr 可用于记录每次失败
func Retry(ctx context.Context, p Policy, sleep Sleeper, onErr func(attempt int, err error), fn func() error) error {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := max(p.Attempts, 1)
	delay := p.Delay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if onErr != nil {
			onErr(attempt, err)
		}
		if attempt == attempts {
			break
		}
		if sErr := sleep(ctx, delay); sErr != nil {
			return sErr
		}
		if p.Backoff > 1 {
			delay = time.Duration(float64(delay) * p.Backoff)
		}
	}
	return err
}
