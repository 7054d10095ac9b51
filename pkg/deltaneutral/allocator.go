// Package deltaneutral 把多个账户的 USDC 余额拆成多空两条腿：
// 每组一个多头账户，若干空头账户按余额比例分摊多头的名义价值，
// 使每个标的上的多空名义价值近似相等。
package deltaneutral

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidInput 余额映射或参数非法
	ErrInvalidInput = errors.New("deltaneutral: invalid input")
	// ErrPerturbationExhausted 去重扰动达到上限，仅用于日志，不会返回给调用方
	ErrPerturbationExhausted = errors.New("deltaneutral: perturbation attempts exhausted")
)

const perpSuffix = "_USDC_PERP"

// Direction 仓位方向
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// AccountBalance 单个账户的可用余额（报价币种，通常是 USDC）
type AccountBalance struct {
	Account string  `json:"account"`
	Balance float64 `json:"balance"`
}

// Position 一条腿的分配结果
// TotalSize == round(BaseSize*Leverage, 2)，BaseSize 不超过账户余额
type Position struct {
	Symbol    string    `json:"symbol"`
	Account   string    `json:"account"`
	Direction Direction `json:"direction"`
	BaseSize  float64   `json:"base_size"`
	Leverage  float64   `json:"leverage"`
	TotalSize float64   `json:"total_size"`
}

// Source 随机数来源，*rand.Rand 满足该接口
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Result 一次规划的完整结果
type Result struct {
	Positions      []Position
	PairsRequested int // 按账户数估算的组数
	PairsBuilt     int // 实际组成的组数
	Exhausted      int // 去重扰动耗尽、可能与其他腿重复的腿数
}

// Underfilled 剩余账户不足导致组数少于预期（不是错误）
func (r *Result) Underfilled() bool {
	return r.PairsBuilt < r.PairsRequested
}

// Allocator 无状态的分配器，可重入
type Allocator struct {
	cfg Config
	rnd Source
	log *logrus.Entry
}

// New 创建分配器
func New(cfg Config, rnd Source, log *logrus.Entry) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rnd == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidInput)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Allocator{cfg: cfg, rnd: rnd, log: log.WithField("component", "deltaneutral")}, nil
}

// Allocate 返回所有组的多空仓位
func (a *Allocator) Allocate(balances map[string]float64) ([]Position, error) {
	res, err := a.Plan(balances)
	if err != nil {
		return nil, err
	}
	return res.Positions, nil
}

// AllocateBalances 与 Allocate 相同，输入为列表形式
func (a *Allocator) AllocateBalances(list []AccountBalance) ([]Position, error) {
	balances := make(map[string]float64, len(list))
	for _, b := range list {
		if _, dup := balances[b.Account]; dup {
			return nil, fmt.Errorf("%w: duplicate account %s", ErrInvalidInput, maskAccount(b.Account))
		}
		balances[b.Account] = b.Balance
	}
	return a.Allocate(balances)
}

// Plan 执行分配并返回统计信息
func (a *Allocator) Plan(balances map[string]float64) (*Result, error) {
	accounts, err := sortedAccounts(balances)
	if err != nil {
		return nil, err
	}

	total := len(accounts)
	numPairs := total / a.cfg.AvgAccountsPerPair
	if total >= a.cfg.MinAccountsPerPair && numPairs == 0 {
		numPairs = 1
	}

	res := &Result{Positions: []Position{}, PairsRequested: numPairs}
	used := make(map[string]bool, total)

	for i := 0; i < numPairs; i++ {
		symbol := a.pickSymbol()

		remaining := make([]string, 0, total)
		for _, acc := range accounts {
			if !used[acc] {
				remaining = append(remaining, acc)
			}
		}
		if len(remaining) < a.cfg.MinAccountsPerPair {
			break
		}

		positions, exhausted := a.buildPair(symbol, remaining, balances, used)
		res.Positions = append(res.Positions, positions...)
		res.PairsBuilt++
		res.Exhausted += exhausted
	}

	if res.Underfilled() {
		a.log.Infof("账户不足，实际组数 %d/%d", res.PairsBuilt, res.PairsRequested)
	}
	return res, nil
}

func (a *Allocator) buildPair(symbol string, remaining []string, balances map[string]float64, used map[string]bool) ([]Position, int) {
	longAcc := remaining[a.rnd.Intn(len(remaining))]
	used[longAcc] = true
	long := a.longLeg(symbol, longAcc, balances[longAcc])

	rest := make([]string, 0, len(remaining)-1)
	for _, acc := range remaining {
		if acc != longAcc {
			rest = append(rest, acc)
		}
	}

	hi := min(a.cfg.MaxShortAccounts, len(rest), a.cfg.MaxAccountsPerPair-1)
	lo := min(a.cfg.MinShortAccounts, hi)
	k := lo + a.rnd.Intn(hi-lo+1)

	shortAccs := a.sample(rest, k)
	for _, acc := range shortAccs {
		used[acc] = true
	}

	shorts := a.shortLegs(symbol, long.TotalSize, shortAccs, balances)
	a.correct(long.TotalSize, shorts, balances)
	a.topUp(symbol, long.TotalSize, shorts, balances)
	exhausted := a.dedupe(long, shorts, balances)

	return append([]Position{long}, shorts...), exhausted
}

func (a *Allocator) longLeg(symbol, acc string, balance float64) Position {
	usage := a.uniform(a.cfg.LongUsageMin, a.cfg.LongUsageMax)
	base := round2(balance * usage)
	if limit := floor2(balance * a.cfg.LongUsageMax); base > limit {
		base = limit
	}
	lev := float64(a.cfg.LongLeverageMin + a.rnd.Intn(a.cfg.LongLeverageMax-a.cfg.LongLeverageMin+1))
	lev = math.Min(lev, a.cfg.MaxLeverage)

	return Position{
		Symbol:    symbol,
		Account:   acc,
		Direction: Long,
		BaseSize:  base,
		Leverage:  lev,
		TotalSize: round2(base * lev),
	}
}

// shortLegs 按余额占比分摊多头名义价值
func (a *Allocator) shortLegs(symbol string, longTotal float64, accs []string, balances map[string]float64) []Position {
	var sum float64
	for _, acc := range accs {
		sum += balances[acc]
	}

	out := make([]Position, 0, len(accs))
	for _, acc := range accs {
		share := 1 / float64(len(accs))
		if sum > 0 {
			share = balances[acc] / sum
		}
		lev := a.uniform(a.cfg.ShortLeverageMin, a.cfg.ShortLeverageMax)
		lev = round2(math.Min(a.cfg.MaxLeverage, math.Max(a.cfg.ShortLeverageMin, lev)))

		p := Position{
			Symbol:    symbol,
			Account:   acc,
			Direction: Short,
			Leverage:  lev,
			TotalSize: round2(longTotal * share),
		}
		a.fit(&p, balances[acc], false)
		out = append(out, p)
	}
	return out
}

// correct 把空头总名义价值缩放到多头名义价值
func (a *Allocator) correct(longTotal float64, shorts []Position, balances map[string]float64) {
	sum := sumTotals(shorts)
	factor := 1.0
	if sum > 0 {
		factor = longTotal / sum
	}
	for i := range shorts {
		shorts[i].TotalSize = round2(shorts[i].TotalSize * factor)
		a.fit(&shorts[i], balances[shorts[i].Account], true)
	}
}

// topUp 余额封顶后留下的空头缺口，补到仍有余量的空头腿上
func (a *Allocator) topUp(symbol string, longTotal float64, shorts []Position, balances map[string]float64) {
	gap := round2(longTotal - sumTotals(shorts))
	for i := range shorts {
		if gap <= 0 {
			break
		}
		p := &shorts[i]
		capacity := round2(floor2(balances[p.Account])*a.cfg.MaxLeverage - p.TotalSize)
		if capacity <= 0 {
			continue
		}
		before := p.TotalSize
		p.TotalSize = round2(p.TotalSize + math.Min(gap, capacity))
		a.fit(p, balances[p.Account], true)
		gap = round2(gap - (p.TotalSize - before))
	}

	if longTotal > 0 && gap/longTotal > a.cfg.NeutralityTolerance {
		a.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"long":   longTotal,
			"gap":    gap,
		}).Warn("空头余额不足以覆盖多头名义价值")
	}
}

// dedupe 同一组内不允许出现相同的 TotalSize，下单后按金额匹配腿
func (a *Allocator) dedupe(long Position, shorts []Position, balances map[string]float64) int {
	seen := map[int64]bool{cents(long.TotalSize): true}
	exhausted := 0

	for i := range shorts {
		p := &shorts[i]
		for attempt := 0; seen[cents(p.TotalSize)]; attempt++ {
			if attempt >= a.cfg.PerturbationAttempts {
				exhausted++
				a.log.WithError(ErrPerturbationExhausted).WithFields(logrus.Fields{
					"account":    maskAccount(p.Account),
					"total_size": p.TotalSize,
				}).Warn("无法消除重复的仓位金额")
				break
			}
			delta := a.uniform(-a.cfg.PerturbationRange, a.cfg.PerturbationRange)
			p.TotalSize = math.Max(0, round2(p.TotalSize+delta))
			a.fit(p, balances[p.Account], false)
		}
		seen[cents(p.TotalSize)] = true
	}
	return exhausted
}

// fit 由 TotalSize 推导 BaseSize 并按余额封顶。
// raise 为 true 时封顶后抬高杠杆（不超过 MaxLeverage）以尽量保住名义价值。
// 返回前总是 TotalSize = round2(BaseSize*Leverage)。
func (a *Allocator) fit(p *Position, balance float64, raise bool) {
	p.BaseSize = round2(p.TotalSize / p.Leverage)
	if limit := floor2(balance); p.BaseSize > limit {
		p.BaseSize = limit
		if raise && limit > 0 {
			p.Leverage = round2(math.Min(a.cfg.MaxLeverage, p.TotalSize/limit))
		}
	}
	p.TotalSize = round2(p.BaseSize * p.Leverage)
}

func (a *Allocator) pickSymbol() string {
	s := strings.ToUpper(strings.TrimSpace(a.cfg.Symbols[a.rnd.Intn(len(a.cfg.Symbols))]))
	if strings.HasSuffix(s, perpSuffix) {
		return s
	}
	return s + perpSuffix
}

// sample 无放回随机抽取 k 个账户（保留抽取顺序）
func (a *Allocator) sample(pool []string, k int) []string {
	c := append([]string(nil), pool...)
	for i := 0; i < k; i++ {
		j := i + a.rnd.Intn(len(c)-i)
		c[i], c[j] = c[j], c[i]
	}
	return c[:k]
}

func (a *Allocator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*a.rnd.Float64()
}

func sortedAccounts(balances map[string]float64) ([]string, error) {
	accounts := make([]string, 0, len(balances))
	for acc, bal := range balances {
		if strings.TrimSpace(acc) == "" {
			return nil, fmt.Errorf("%w: empty account identifier", ErrInvalidInput)
		}
		if math.IsNaN(bal) || math.IsInf(bal, 0) || bal < 0 {
			return nil, fmt.Errorf("%w: account %s balance %v", ErrInvalidInput, maskAccount(acc), bal)
		}
		accounts = append(accounts, acc)
	}
	sort.Strings(accounts)
	return accounts, nil
}

// maskAccount 账户标识可能就是 API 私钥，写日志和错误前只保留首尾
func maskAccount(acc string) string {
	if len(acc) <= 8 {
		return "****"
	}
	return acc[:4] + "..." + acc[len(acc)-4:]
}

func sumTotals(ps []Position) float64 {
	var sum float64
	for _, p := range ps {
		sum += p.TotalSize
	}
	return sum
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// floor2 截断到两位小数，用于余额上限
func floor2(v float64) float64 {
	return decimal.NewFromFloat(v).Truncate(2).InexactFloat64()
}

func cents(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
}
