package deltaneutral

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, seed int64, mutate func(*Config)) *Allocator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Symbols = []string{"SOL", "BTC", "ETH"}
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(cfg, rand.New(rand.NewSource(seed)), nil)
	require.NoError(t, err)
	return a
}

func randomBalances(seed int64, n int, lo, hi float64) map[string]float64 {
	r := rand.New(rand.NewSource(seed))
	out := make(map[string]float64, n)
	for i := 0; i < n; i++ {
		out[fmt.Sprintf("acc-%02d", i)] = math.Round((lo+(hi-lo)*r.Float64())*100) / 100
	}
	return out
}

func checkPositions(t *testing.T, balances map[string]float64, positions []Position) {
	t.Helper()
	const eps = 0.01

	symbolOf := map[string]string{}
	for _, p := range positions {
		// 余额约束
		assert.LessOrEqualf(t, p.BaseSize, balances[p.Account]+eps, "base size over balance: %+v", p)
		assert.GreaterOrEqual(t, p.BaseSize, 0.0)
		// 杠杆范围
		assert.GreaterOrEqualf(t, p.Leverage, 2.0, "leverage too low: %+v", p)
		assert.LessOrEqualf(t, p.Leverage, 5.0, "leverage too high: %+v", p)
		// 名义价值一致
		assert.InDeltaf(t, p.BaseSize*p.Leverage, p.TotalSize, eps, "notional mismatch: %+v", p)
		// 账户只属于一个标的
		if sym, ok := symbolOf[p.Account]; ok {
			t.Fatalf("account %s used twice (%s, %s)", p.Account, sym, p.Symbol)
		}
		symbolOf[p.Account] = p.Symbol
	}

	for sym, e := range Totals(positions) {
		require.Greaterf(t, e.Long, 0.0, "symbol %s has no long notional", sym)
		assert.Lessf(t, math.Abs(e.Long-e.Short)/e.Long, 0.05, "symbol %s not neutral: %+v", sym, e)
	}
}

func TestAllocate_PositionBounds(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		balances := randomBalances(seed, 3+int(seed%25), 500, 1000)
		a := newTestAllocator(t, seed, nil)

		positions, err := a.Allocate(balances)
		require.NoError(t, err)
		require.NotEmpty(t, positions, "seed=%d", seed)
		checkPositions(t, balances, positions)
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	balances := randomBalances(7, 23, 50, 2000)

	first, err := newTestAllocator(t, 99, nil).Allocate(balances)
	require.NoError(t, err)
	second, err := newTestAllocator(t, 99, nil).Allocate(balances)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAllocate_EmptyAndSmall(t *testing.T) {
	a := newTestAllocator(t, 1, nil)

	positions, err := a.Allocate(map[string]float64{})
	require.NoError(t, err)
	assert.Empty(t, positions)

	positions, err = a.Allocate(map[string]float64{"a": 100, "b": 100})
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestAllocate_FiveAccountsOnePair(t *testing.T) {
	balances := map[string]float64{"a": 1000, "b": 500, "c": 500, "d": 500, "e": 500}

	for seed := int64(0); seed < 30; seed++ {
		a := newTestAllocator(t, seed, nil)
		res, err := a.Plan(balances)
		require.NoError(t, err)
		assert.Equal(t, 1, res.PairsRequested)
		assert.Equal(t, 1, res.PairsBuilt)

		var longs, shorts int
		seen := map[string]bool{}
		for _, p := range res.Positions {
			assert.Equal(t, res.Positions[0].Symbol, p.Symbol)
			assert.False(t, seen[p.Account], "duplicate account %s", p.Account)
			seen[p.Account] = true
			if p.Direction == Long {
				longs++
			} else {
				shorts++
			}
		}
		assert.Equal(t, 1, longs)
		assert.GreaterOrEqual(t, shorts, 2)
		assert.LessOrEqual(t, shorts, 4)
		checkPositions(t, balances, res.Positions)
	}
}

func TestAllocate_InvalidInput(t *testing.T) {
	a := newTestAllocator(t, 1, nil)

	_, err := a.Allocate(map[string]float64{"a": 100, "b": -1, "c": 100})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.Allocate(map[string]float64{"a": math.NaN(), "b": 1, "c": 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.Allocate(map[string]float64{"": 10})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.AllocateBalances([]AccountBalance{{"a", 1}, {"a", 2}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAllocate_Underfilled(t *testing.T) {
	// 12 个账户估算 4 组（avg=3），每组至少用 3 个账户、最多 6 个，第 4 组可能凑不齐
	a := newTestAllocator(t, 5, func(c *Config) { c.AvgAccountsPerPair = 3 })
	balances := randomBalances(3, 12, 500, 1000)

	res, err := a.Plan(balances)
	require.NoError(t, err)
	assert.Equal(t, 4, res.PairsRequested)
	assert.LessOrEqual(t, res.PairsBuilt, res.PairsRequested)
	assert.Equal(t, res.PairsBuilt < res.PairsRequested, res.Underfilled())
	checkPositions(t, balances, res.Positions)
}

func TestAllocate_ZeroBalances(t *testing.T) {
	a := newTestAllocator(t, 11, nil)
	balances := map[string]float64{"a": 0, "b": 0, "c": 0, "d": 0}

	res, err := a.Plan(balances)
	require.NoError(t, err)
	for _, p := range res.Positions {
		assert.Zero(t, p.BaseSize)
		assert.Zero(t, p.TotalSize)
		assert.GreaterOrEqual(t, p.Leverage, 2.0)
	}
	// 全部为 0 的空头无法去重，只能放弃扰动
	assert.Greater(t, res.Exhausted, 0)
}

func TestAllocate_UniqueTotalsWithinPair(t *testing.T) {
	// 余额相同的账户容易得出相同金额
	balances := map[string]float64{}
	for i := 0; i < 30; i++ {
		balances[fmt.Sprintf("w%02d", i)] = 600
	}
	a := newTestAllocator(t, 17, func(c *Config) { c.Symbols = []string{"SOL"} })

	res, err := a.Plan(balances)
	require.NoError(t, err)
	assert.Zero(t, res.Exhausted)

	// 每组从多头开始，直到下一个多头
	var pair map[int64]bool
	for _, p := range res.Positions {
		if p.Direction == Long {
			pair = map[int64]bool{}
		}
		c := cents(p.TotalSize)
		assert.False(t, pair[c], "duplicate total size %v in pair", p.TotalSize)
		pair[c] = true
	}
	checkPositions(t, balances, res.Positions)
}

func TestAllocate_SymbolSuffix(t *testing.T) {
	a := newTestAllocator(t, 2, func(c *Config) { c.Symbols = []string{"sol", "BTC_USDC_PERP"} })
	balances := randomBalances(4, 15, 500, 900)

	positions, err := a.Allocate(balances)
	require.NoError(t, err)
	for _, p := range positions {
		assert.Contains(t, []string{"SOL_USDC_PERP", "BTC_USDC_PERP"}, p.Symbol)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinAccountsPerPair = 2
	_, err := New(cfg, rand.New(rand.NewSource(1)), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGroupAndTotals(t *testing.T) {
	positions := []Position{
		{Symbol: "SOL_USDC_PERP", Account: "a", Direction: Long, BaseSize: 100, Leverage: 3, TotalSize: 300},
		{Symbol: "SOL_USDC_PERP", Account: "b", Direction: Short, BaseSize: 60, Leverage: 2.5, TotalSize: 150},
		{Symbol: "SOL_USDC_PERP", Account: "c", Direction: Short, BaseSize: 75, Leverage: 2, TotalSize: 150},
		{Symbol: "BTC_USDC_PERP", Account: "d", Direction: Long, BaseSize: 10, Leverage: 2, TotalSize: 20},
		{Symbol: "BTC_USDC_PERP", Account: "e", Direction: Short, BaseSize: 9, Leverage: 2, TotalSize: 18},
	}

	groups := Group(positions)
	require.Len(t, groups, 2)
	sol := groups["SOL_USDC_PERP"]
	assert.Equal(t, []string{"a", "b", "c"}, sol.Accounts)
	assert.Len(t, sol.Long, 1)
	assert.Len(t, sol.Short, 2)
	assert.Equal(t, Leg{Account: "b", BaseSize: 60, Leverage: 2.5, TotalSize: 150}, sol.Short[0])

	totals := Totals(positions)
	assert.Equal(t, Exposure{Long: 300, Short: 300, Delta: 0}, totals["SOL_USDC_PERP"])
	assert.Equal(t, Exposure{Long: 20, Short: 18, Delta: 2}, totals["BTC_USDC_PERP"])
	assert.Equal(t, []string{"BTC_USDC_PERP", "SOL_USDC_PERP"}, Symbols(totals))
}

// fixedSource 总是取第一个候选、区间中点，扰动量恒为 0
type fixedSource struct{}

func (fixedSource) Float64() float64 { return 0.5 }
func (fixedSource) Intn(int) int     { return 0 }

func newLoggedAllocator(t *testing.T) (*Allocator, *logtest.Hook) {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	a, err := New(DefaultConfig(), fixedSource{}, logrus.NewEntry(log))
	require.NoError(t, err)
	return a, hook
}

func TestAllocate_LogsMaskedAccounts(t *testing.T) {
	a, hook := newLoggedAllocator(t)
	secrets := []string{"SECRETKEY_A==", "SECRETKEY_B==", "SECRETKEY_C==", "SECRETKEY_D=="}
	balances := map[string]float64{}
	for _, s := range secrets {
		balances[s] = 0
	}

	res, err := a.Plan(balances)
	require.NoError(t, err)
	require.Greater(t, res.Exhausted, 0)
	require.NotEmpty(t, hook.AllEntries())

	for _, e := range hook.AllEntries() {
		line, err := e.String()
		require.NoError(t, err)
		for _, s := range secrets {
			assert.NotContains(t, line, s)
		}
	}
	assert.Contains(t, hook.LastEntry().Data["account"], "...")

	_, err = a.Allocate(map[string]float64{"SECRETKEY_A==": -1, "SECRETKEY_B==": 1, "SECRETKEY_C==": 1})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.NotContains(t, err.Error(), "SECRETKEY_A==")
}

func TestAllocate_ShortfallAboveTolerance(t *testing.T) {
	a, hook := newLoggedAllocator(t)
	// 多头 7000*2=14000，两个空头最多 1*5 各 5
	balances := map[string]float64{"a-long": 10000, "b-short": 1, "c-short": 1}

	res, err := a.Plan(balances)
	require.NoError(t, err)
	require.Len(t, res.Positions, 3)
	assert.Equal(t, Long, res.Positions[0].Direction)
	assert.Equal(t, 14000.0, res.Positions[0].TotalSize)

	tot := Totals(res.Positions)[res.Positions[0].Symbol]
	assert.Equal(t, 10.0, tot.Short)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["gap"] == 13990.0 {
			warned = true
		}
	}
	assert.True(t, warned, "shortfall should be logged at warn")
}
