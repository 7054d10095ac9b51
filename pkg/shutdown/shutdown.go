// Package shutdown 进程退出时并发执行已注册的关闭回调。
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/betbot/gopack/pkg/logger"
)

// Handler 关闭处理函数，应在 ctx 结束前返回
type Handler func(ctx context.Context) error

type callback struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
type Manager struct {
	mu        sync.Mutex
	callbacks []callback
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback{name: name, fn: fn})
}

// Shutdown 执行所有回调（阻塞），只执行一次；返回各回调错误的合并
// ctx 应该带超时，超时后不再等待未完成的回调
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return nil
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, cb := range callbacks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cb.fn(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
				mu.Unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("所有关闭回调已完成")
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		return ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}
