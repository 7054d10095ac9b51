package deltaneutral

import (
	"fmt"
	"strings"
)

// Config 分配器参数（默认值即原始脚本中的常量）
type Config struct {
	Symbols []string // 可选标的，例如 ["SOL", "BTC"]，没有 _USDC_PERP 后缀时自动补齐

	MaxLeverage float64 // 任意一条腿的杠杆上限

	MinAccountsPerPair int // 组成一组对冲至少需要的账户数
	MaxAccountsPerPair int // 一组对冲最多使用的账户数（含多头）
	AvgAccountsPerPair int // 用于估算组数：总账户数 / Avg

	MinShortAccounts int // 每组空头账户下限
	MaxShortAccounts int // 每组空头账户上限

	LongUsageMin float64 // 多头使用余额比例下限
	LongUsageMax float64 // 多头使用余额比例上限（同时是硬上限）

	LongLeverageMin int // 多头杠杆（整数）下限
	LongLeverageMax int // 多头杠杆（整数）上限

	ShortLeverageMin float64 // 空头杠杆下限
	ShortLeverageMax float64 // 空头杠杆上限

	PerturbationRange    float64 // 去重扰动幅度 [-R, R]
	PerturbationAttempts int     // 去重扰动最多尝试次数

	NeutralityTolerance float64 // 多空名义价值的相对偏差容忍度，超出只记录日志
}

// DefaultConfig 返回默认参数
func DefaultConfig() Config {
	return Config{
		Symbols:              []string{"SOL"},
		MaxLeverage:          5.0,
		MinAccountsPerPair:   3,
		MaxAccountsPerPair:   6,
		AvgAccountsPerPair:   5,
		MinShortAccounts:     2,
		MaxShortAccounts:     5,
		LongUsageMin:         0.65,
		LongUsageMax:         0.75,
		LongLeverageMin:      2,
		LongLeverageMax:      5,
		ShortLeverageMin:     2,
		ShortLeverageMax:     3,
		PerturbationRange:    0.5,
		PerturbationAttempts: 50,
		NeutralityTolerance:  0.05,
	}
}

// Validate 校验参数之间的约束
func (c Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: symbols is empty", ErrInvalidInput)
	}
	for _, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalidInput)
		}
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("%w: max_leverage must be >= 1, got %v", ErrInvalidInput, c.MaxLeverage)
	}
	if c.MinShortAccounts < 1 || c.MaxShortAccounts < c.MinShortAccounts {
		return fmt.Errorf("%w: short accounts range [%d,%d]", ErrInvalidInput, c.MinShortAccounts, c.MaxShortAccounts)
	}
	// 剩余账户数 >= MinAccountsPerPair 时必须能凑出多头 + MinShortAccounts 个空头
	if c.MinAccountsPerPair < c.MinShortAccounts+1 {
		return fmt.Errorf("%w: min_accounts_per_pair must be >= %d", ErrInvalidInput, c.MinShortAccounts+1)
	}
	if c.MaxAccountsPerPair-1 < c.MinShortAccounts {
		return fmt.Errorf("%w: max_accounts_per_pair must be >= %d", ErrInvalidInput, c.MinShortAccounts+1)
	}
	if c.AvgAccountsPerPair < 1 {
		return fmt.Errorf("%w: avg_accounts_per_pair must be >= 1", ErrInvalidInput)
	}
	if c.LongUsageMin <= 0 || c.LongUsageMax > 1 || c.LongUsageMin > c.LongUsageMax {
		return fmt.Errorf("%w: long usage range [%v,%v]", ErrInvalidInput, c.LongUsageMin, c.LongUsageMax)
	}
	if c.LongLeverageMin < 1 || c.LongLeverageMin > c.LongLeverageMax || float64(c.LongLeverageMin) > c.MaxLeverage {
		return fmt.Errorf("%w: long leverage range [%d,%d]", ErrInvalidInput, c.LongLeverageMin, c.LongLeverageMax)
	}
	if c.ShortLeverageMin < 1 || c.ShortLeverageMin > c.ShortLeverageMax || c.ShortLeverageMin > c.MaxLeverage {
		return fmt.Errorf("%w: short leverage range [%v,%v]", ErrInvalidInput, c.ShortLeverageMin, c.ShortLeverageMax)
	}
	if c.PerturbationRange <= 0 || c.PerturbationAttempts < 1 {
		return fmt.Errorf("%w: perturbation range=%v attempts=%d", ErrInvalidInput, c.PerturbationRange, c.PerturbationAttempts)
	}
	if c.NeutralityTolerance < 0 {
		return fmt.Errorf("%w: neutrality_tolerance must be >= 0", ErrInvalidInput)
	}
	return nil
}
