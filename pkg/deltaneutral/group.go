package deltaneutral

import "sort"

// Leg 按标的分组后存储的一条腿
type Leg struct {
	Account   string  `json:"account"`
	BaseSize  float64 `json:"base_size"`
	Leverage  float64 `json:"leverage"`
	TotalSize float64 `json:"total_size"`
}

// SymbolGroup 同一标的下的账户与多空腿
type SymbolGroup struct {
	Accounts []string `json:"accounts"`
	Long     []Leg    `json:"long"`
	Short    []Leg    `json:"short"`
}

// Exposure 单个标的的多空名义价值汇总
type Exposure struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
	Delta float64 `json:"delta"`
}

// Group 按标的分组，账户按首次出现的顺序记录
func Group(positions []Position) map[string]*SymbolGroup {
	out := make(map[string]*SymbolGroup)
	for _, p := range positions {
		g, ok := out[p.Symbol]
		if !ok {
			g = &SymbolGroup{Accounts: []string{}, Long: []Leg{}, Short: []Leg{}}
			out[p.Symbol] = g
		}
		if !contains(g.Accounts, p.Account) {
			g.Accounts = append(g.Accounts, p.Account)
		}
		leg := Leg{Account: p.Account, BaseSize: p.BaseSize, Leverage: p.Leverage, TotalSize: p.TotalSize}
		if p.Direction == Long {
			g.Long = append(g.Long, leg)
		} else {
			g.Short = append(g.Short, leg)
		}
	}
	return out
}

// Totals 统计每个标的的多空名义价值与差额
func Totals(positions []Position) map[string]Exposure {
	out := make(map[string]Exposure)
	for _, p := range positions {
		e := out[p.Symbol]
		if p.Direction == Long {
			e.Long += p.TotalSize
		} else {
			e.Short += p.TotalSize
		}
		out[p.Symbol] = e
	}
	for sym, e := range out {
		e.Long = round2(e.Long)
		e.Short = round2(e.Short)
		e.Delta = round2(e.Long - e.Short)
		out[sym] = e
	}
	return out
}

// Symbols 返回排好序的标的列表，便于稳定输出
func Symbols[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
