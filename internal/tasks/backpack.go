package tasks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/pkg/sdk/backpack"
)

// randomSwaps 余额低于该值时停止买入
var minSwapBalance = decimal.RequireFromString("0.2")

func spotSymbol(token string) string {
	return strings.ToUpper(token) + "_USDC"
}

func perpSymbol(token string) string {
	return strings.ToUpper(token) + "_USDC_PERP"
}

// tokenDecimals 查询失败或为 0 时按 6 位
func tokenDecimals(ctx context.Context, ex Exchange, symbol string) int32 {
	places, err := ex.GetTokenDecimals(ctx, symbol)
	if err != nil || places <= 0 {
		return 6
	}
	return int32(places)
}

func logOrder(log *logrus.Entry, order *backpack.Order) {
	switch {
	case order == nil:
	case order.Status == backpack.StatusFilled:
		log.Info("✅ Order filled successfully!")
	case order.Status == backpack.StatusNew:
		log.Info("Order placed successfully and is now active")
	default:
		log.Infof("Order status: %s", order.Status)
	}
}

// spot 一次现货 FOK 限价单：Bid 用 USDC 买入，Ask 卖出代币
func (e *Executor) spot(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	cfg := e.cfg.Spot
	token := strings.ToUpper(e.pick(cfg.Symbols))
	symbol := spotSymbol(token)

	var order *backpack.Order
	if backpack.Side(cfg.Side) == backpack.Bid {
		balance, err := ex.GetBalance(ctx, "USDC")
		if err != nil {
			return false, err
		}
		log.Infof("USDC balance: %s", balance)

		var amount decimal.Decimal
		if cfg.UsePercentageUSDC {
			pct := e.decimalIn(cfg.TradePercentageUSDC)
			amount = balance.Mul(pct)
			log.Infof("Using %s%% of balance (%s USDC) for purchase", pct.Mul(decimal.NewFromInt(100)).StringFixed(2), amount.StringFixed(4))
		} else {
			amount = e.decimalIn(cfg.AmountUSDC)
			if amount.GreaterThan(balance) {
				log.Warnf("Insufficient USDC balance: %s, needed: %s", balance, amount.StringFixed(4))
				return false, nil
			}
			log.Infof("Using fixed amount: %s USDC for purchase", amount.StringFixed(4))
		}
		order, err = ex.PostLimitOrder(ctx, symbol, backpack.Bid, amount, decimal.Zero, backpack.FOK)
		if err != nil {
			return false, fmt.Errorf("place spot order: %w", err)
		}
	} else {
		balance, err := ex.GetBalance(ctx, token)
		if err != nil {
			return false, err
		}
		places := tokenDecimals(ctx, ex, symbol)
		log.Infof("%s balance: %s, precision: %d", token, balance, places)

		var amount decimal.Decimal
		if cfg.UsePercentageToken {
			pct := e.decimalIn(cfg.TradePercentageToken)
			amount = balance.Mul(pct).Truncate(places)
			log.Infof("Selling %s%% of balance (%s %s)", pct.Mul(decimal.NewFromInt(100)).StringFixed(2), amount, token)
		} else {
			amount = e.decimalIn(cfg.AmountToken)
			if amount.GreaterThan(balance) {
				log.Warnf("Insufficient %s balance: %s, needed: %s", token, balance, amount)
				return false, nil
			}
			amount = amount.Truncate(places)
			log.Infof("Selling fixed amount: %s %s", amount, token)
		}
		if !amount.IsPositive() {
			log.Warn("After rounding, amount became zero. Skipping trade.")
			return false, nil
		}
		order, err = ex.PostLimitSellOrder(ctx, symbol, amount, backpack.FOK)
		if err != nil {
			return false, fmt.Errorf("place spot order: %w", err)
		}
	}
	logOrder(log, order)
	return true, nil
}

// futures 一次合约市价开仓，金额乘以杠杆
func (e *Executor) futures(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	cfg := e.cfg.Futures
	symbol := perpSymbol(e.pick(cfg.Symbols))
	leverage := decimal.NewFromInt(int64(cfg.Leverage))
	amount := e.decimalIn(cfg.Amount)
	pct := e.decimalIn(cfg.TradePercentage)

	balance, err := ex.GetBalance(ctx, "USDC")
	if err != nil {
		return false, err
	}

	amountUSD := amount.Mul(leverage)
	if cfg.UsePercentage {
		amountUSD = balance.Mul(pct).Mul(leverage)
		log.Infof("Using %s%% of balance (%s USDC) with %dx leverage",
			pct.Mul(decimal.NewFromInt(100)).StringFixed(2), balance.Mul(pct).StringFixed(4), cfg.Leverage)
	} else if amount.GreaterThan(balance) {
		log.Warnf("Insufficient USDC balance: %s, needed: %s", balance, amount.StringFixed(4))
		return false, nil
	}

	if _, err := ex.OpenFuturesPosition(ctx, symbol, backpack.Side(cfg.Side), amountUSD); err != nil {
		return false, fmt.Errorf("open position: %w", err)
	}
	log.Infof("Opened %s position on %s with %s USDC (leverage: %dx)", cfg.Side, symbol, amountUSD.StringFixed(2), cfg.Leverage)
	return true, nil
}

// randomSwaps 若干次随机代币 GTC 买入，至少成功一次即完成
func (e *Executor) randomSwaps(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	cfg := e.cfg.RandomSwaps
	n := cfg.NumOfSwaps.Int(e.rnd)
	log.Infof("Starting %d random token purchases", n)

	ok := 0
	for i := range n {
		balance, err := ex.GetBalance(ctx, "USDC")
		if err != nil {
			log.Errorf("Error during purchase %d: %v", i+1, err)
		} else if balance.LessThanOrEqual(minSwapBalance) {
			log.Warn("Insufficient USDC balance for further purchases")
			break
		} else {
			symbol := spotSymbol(e.pick(cfg.Symbols))
			pct := e.decimalIn(cfg.SwapPercentage)
			amount := balance.Mul(pct)
			log.Infof("Purchase %d/%d: %s for %s USDC (%s%% of current USDC balance)",
				i+1, n, symbol, amount.StringFixed(4), pct.Mul(decimal.NewFromInt(100)).StringFixed(2))

			order, err := ex.PostLimitOrder(ctx, symbol, backpack.Bid, amount, decimal.Zero, backpack.GTC)
			switch {
			case err != nil:
				log.Errorf("Failed to place buy order for %s: %v", symbol, err)
			case order.Placed():
				log.Infof("✅ Buy order for %s successfully placed: %s", symbol, order.Status)
				ok++
			default:
				log.Warnf("Unexpected response when placing buy order: %+v", order)
			}
		}
		if err := e.pauseModules(ctx, log); err != nil {
			return ok > 0, err
		}
	}

	log.Infof("Completed %d successful purchases out of %d attempts", ok, n)
	return ok > 0, nil
}

// closeAll 打印并平掉全部合约持仓，没有持仓时不算完成
func (e *Executor) closeAll(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	log.Info("Closing all positions for account")
	if _, err := ex.CheckAllPositions(ctx); err != nil {
		return false, err
	}
	closed, err := ex.CloseAllPositions(ctx)
	if err != nil {
		return false, err
	}
	if closed {
		log.Info("✅ Successfully closed all positions")
	} else {
		log.Info("No positions to close or closing failed")
	}
	return closed, nil
}

// swapAllToUSDC 把 USDC 以外的所有可用余额按最优买价卖出
func (e *Executor) swapAllToUSDC(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	log.Info("Starting conversion of all tokens to USDC")
	balances, err := ex.GetBalances(ctx)
	if err != nil {
		return false, err
	}
	if len(balances) == 0 {
		log.Info("No balances found")
		return false, nil
	}

	anyOK := false
	for _, token := range sortedTokens(balances) {
		available := balances[token].Available
		if token == "USDC" || !available.IsPositive() {
			continue
		}
		pair := spotSymbol(token)

		if err := e.sellAll(ctx, ex, log, token, pair, available); err != nil {
			log.Errorf("Error processing %s: %v", token, err)
		} else {
			anyOK = true
		}
		if err := e.pauseModules(ctx, log); err != nil {
			return anyOK, err
		}
	}
	return anyOK, nil
}

func sortedTokens(balances map[string]backpack.Balance) []string {
	return slices.Sorted(maps.Keys(balances))
}

func (e *Executor) sellAll(ctx context.Context, ex Exchange, log *logrus.Entry, token, pair string, available decimal.Decimal) error {
	price, err := ex.GetTokenPrice(ctx, pair)
	if err != nil {
		return err
	}
	places := tokenDecimals(ctx, ex, pair)
	log.Infof("Balance %s: %s, Value in USDC: ~%s, Precision: %d", token, available, available.Mul(price).StringFixed(4), places)

	amount := available.Truncate(places)
	if !amount.IsPositive() {
		return fmt.Errorf("after rounding to %d decimals %s balance became zero", places, token)
	}
	order, err := ex.PostLimitSellOrder(ctx, pair, amount, backpack.GTC)
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	if !order.Placed() {
		return fmt.Errorf("unexpected order status %q", order.Status)
	}
	log.Infof("✅ Order for %s successfully placed: %s", token, order.Status)
	return nil
}

// tickers 列出 USDC 现货和永续交易对
func (e *Executor) tickers(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	spot, perp, err := ex.GetUSDCSymbols(ctx)
	if err != nil {
		return false, err
	}
	log.Infof("USDC spot symbols (%d): %s", len(spot), strings.Join(spot, ", "))
	log.Infof("USDC perp symbols (%d): %s", len(perp), strings.Join(perp, ", "))
	return len(spot) > 0, nil
}
