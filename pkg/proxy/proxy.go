// Package proxy 代理行解析、移动代理换 IP 和可用性检测。
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sdkhttp "github.com/betbot/gopack/pkg/sdk/http"
)

// ErrNoChangeLink 移动代理没有换 IP 链接
var ErrNoChangeLink = errors.New("proxy: no change-ip link")

// DefaultCheckURL 检测代理时访问的地址
const DefaultCheckURL = "https://lisk.drpc.org"

// Proxy 一条代理：user:pass@host:port，移动代理额外带换 IP 链接
type Proxy struct {
	Addr       string
	ChangeLink string
}

// Parse 解析 proxies.txt 中的一行；mobile 时格式为 addr|change_link
func Parse(line string, mobile bool) (*Proxy, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, errors.New("proxy: empty line")
	}
	p := &Proxy{Addr: line}
	if mobile {
		addr, link, ok := strings.Cut(line, "|")
		if !ok || strings.TrimSpace(link) == "" {
			return nil, fmt.Errorf("proxy: mobile proxy %q must be addr|change_link", line)
		}
		p.Addr = strings.TrimSpace(addr)
		p.ChangeLink = strings.TrimSpace(link)
	}
	p.Addr = strings.TrimPrefix(strings.TrimPrefix(p.Addr, "http://"), "https://")
	if p.Addr == "" {
		return nil, fmt.Errorf("proxy: empty address in %q", line)
	}
	return p, nil
}

// URL 给 HTTP 客户端使用的代理地址
func (p *Proxy) URL() string {
	if p == nil {
		return ""
	}
	return "http://" + p.Addr
}

// String 存储格式，与 Parse 互逆
func (p *Proxy) String() string {
	if p == nil {
		return ""
	}
	if p.ChangeLink != "" {
		return p.Addr + "|" + p.ChangeLink
	}
	return p.Addr
}

// Host 去掉账号密码的 host:port，用于日志
func (p *Proxy) Host() string {
	if p == nil {
		return ""
	}
	if i := strings.LastIndexByte(p.Addr, '@'); i >= 0 {
		return p.Addr[i+1:]
	}
	return p.Addr
}

// ChangeIP 请求换 IP 链接
func (p *Proxy) ChangeIP(ctx context.Context) error {
	if p == nil || p.ChangeLink == "" {
		return ErrNoChangeLink
	}
	c := sdkhttp.NewClient("", sdkhttp.WithTimeout(30*time.Second), sdkhttp.WithRetries(1))
	if _, err := c.Do(ctx, http.MethodGet, p.ChangeLink, nil, nil); err != nil {
		return fmt.Errorf("change ip for %s: %w", p.Host(), err)
	}
	return nil
}

// Checker 代理可用性检测
type Checker struct {
	URL         string
	Timeout     time.Duration
	Concurrency int
}

// Alive 通过代理 GET 检测地址，200 视为可用
func (c Checker) Alive(ctx context.Context, p *Proxy) bool {
	target := c.URL
	if target == "" {
		target = DefaultCheckURL
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	client := sdkhttp.NewClient("", sdkhttp.WithProxy(p.URL()), sdkhttp.WithTimeout(timeout), sdkhttp.WithRetries(0))
	resp, err := client.Do(ctx, http.MethodGet, target, nil, nil)
	return err == nil && resp != nil && resp.StatusCode() == http.StatusOK
}

// Filter 并发检测，按原顺序返回可用的代理
func (c Checker) Filter(ctx context.Context, proxies []*Proxy) []*Proxy {
	limit := c.Concurrency
	if limit <= 0 {
		limit = 50
	}
	sem := make(chan struct{}, limit)
	alive := make([]bool, len(proxies))

	var wg sync.WaitGroup
	for i, p := range proxies {
		wg.Add(1)
		go func(i int, p *Proxy) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			alive[i] = c.Alive(ctx, p)
		}(i, p)
	}
	wg.Wait()

	out := make([]*Proxy, 0, len(proxies))
	for i, ok := range alive {
		if ok {
			out = append(out, proxies[i])
		}
	}
	return out
}

// RoundRobin 循环分配代理，列表为空时返回 nil
type RoundRobin struct {
	list []*Proxy
	next atomic.Uint64
}

// NewRoundRobin 创建轮询器
func NewRoundRobin(list []*Proxy) *RoundRobin {
	return &RoundRobin{list: list}
}

// Next 下一个代理
func (r *RoundRobin) Next() *Proxy {
	if r == nil || len(r.list) == 0 {
		return nil
	}
	i := r.next.Add(1) - 1
	return r.list[i%uint64(len(r.list))]
}
