package domain

import (
	"time"

	"github.com/betbot/gopack/pkg/deltaneutral"
	"github.com/betbot/gopack/pkg/proxy"
)

// Wallet 一个 Backpack API secret 及其代理、收款地址
type Wallet struct {
	ID         int64        // 数据库 ID
	PrivateKey string       // base64 ed25519 secret
	Proxy      *proxy.Proxy // 可为空
	Recipient  string       // OKX_DEPOSIT 的收款地址，可为空
	Status     Status       // pending / completed
	CreatedAt  time.Time    // 创建时间
}

// Masked 日志和 API 中使用的脱敏 key
func (w Wallet) Masked() string {
	return MaskKey(w.PrivateKey)
}

// MaskKey 只保留首尾 4 位
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// Route 一个钱包及其待执行的任务
type Route struct {
	Wallet Wallet
	Tasks  []TaskName
}

// Fork 一个标的下的一组对冲腿，作为一个执行单元
type Fork struct {
	ID        int64                    // 数据库 ID，按此顺序执行
	PlanID    string                   // 同一次分配生成的 fork 共享 plan id
	Symbol    string                   // XXX_USDC_PERP
	Group     deltaneutral.SymbolGroup // 账户和多空腿
	Status    Status                   // pending / completed
	CreatedAt time.Time                // 创建时间
	UpdatedAt time.Time                // 更新时间
}

// JobRun 一次工作流执行记录
type JobRun struct {
	ID         int64          `json:"id"`
	JobName    string         `json:"job_name"`
	Scope      string         `json:"scope"`
	Account    string         `json:"account,omitempty"` // 脱敏 key
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	OK         *bool          `json:"ok,omitempty"`
	Error      string         `json:"error,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}
