package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/internal/chains"
	"github.com/betbot/gopack/pkg/pause"
	"github.com/betbot/gopack/pkg/sdk/backpack"
	"github.com/betbot/gopack/pkg/sdk/okx"
)

const (
	sweepSettle  = 10 * time.Second // 子账户归集后等待到账
	arrivalPoll  = 20 * time.Second
	arrivalRetry = 10 * time.Second
	depositRetry = 1.5
)

// okxWithdraw 余额不足 min_usdc_balance 时从 OKX 提币到钱包的 Backpack 充值地址并等待到账
func (e *Executor) okxWithdraw(ctx context.Context, ex Exchange, log *logrus.Entry) (bool, error) {
	if e.cex == nil {
		return false, ErrNoOKX
	}
	cfg := e.cfg.OKXWithdraw
	token := strings.ToUpper(cfg.Token)

	before, err := ex.GetBalance(ctx, token)
	if err != nil {
		return false, err
	}
	if before.GreaterThanOrEqual(decimal.NewFromFloat(cfg.MinUSDCBalance)) {
		log.Debugf("Wallet already holds %s %s. Withdrawal is not required.", before.Round(5), token)
		return true, nil
	}

	chain, err := chains.Lookup(e.pick(cfg.Chains))
	if err != nil {
		return false, err
	}
	address, err := ex.GetDepositAddress(ctx, chain.Backpack)
	if err != nil {
		return false, err
	}
	if err := chains.ValidateAddress(chain, address); err != nil {
		return false, fmt.Errorf("backpack deposit address: %w", err)
	}

	log.Debug("Checking sub-accounts balances before withdrawal...")
	if moved, err := e.cex.TransferAllSubToMain(ctx, token); err != nil {
		log.Warnf("Sub-account sweep failed: %v", err)
	} else if moved.IsPositive() {
		log.Infof("Moved %s %s from sub-accounts", moved, token)
	}
	if err := e.sleep(ctx, sweepSettle); err != nil {
		return false, err
	}

	amount := e.decimalIn(cfg.Amount).Round(2)
	wdID, err := e.cex.Withdraw(ctx, okx.WithdrawRequest{
		Ccy:    token,
		Amount: amount,
		Chain:  chain.Name,
		ToAddr: address,
	})
	if err != nil {
		return false, err
	}
	log.Infof("OKX withdrawal %s: %s %s to %s via %s", wdID, amount, token, address, chain.Name)

	if err := e.waitArrival(ctx, ex, token, before, log); err != nil {
		return false, err
	}
	log.Infof("✅ %s has arrived | [%s]", token, address)
	return true, nil
}

// waitArrival 轮询余额直到超过 before；查询失败时缩短间隔重试，只受 ctx 约束
func (e *Executor) waitArrival(ctx context.Context, ex Exchange, token string, before decimal.Decimal, log *logrus.Entry) error {
	log.Infof("Waiting for %s to arrive...", token)
	for {
		wait := arrivalPoll
		balance, err := ex.GetBalance(ctx, token)
		switch {
		case err != nil:
			log.Errorf("Something went wrong %v", err)
			wait = arrivalRetry
		case balance.GreaterThan(before):
			return nil
		}
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// okxDeposit 把超出 keep_balance 的部分从 Backpack 提到 recipient（通常是 OKX 充值地址）
func (e *Executor) okxDeposit(ctx context.Context, ex Exchange, recipient string, log *logrus.Entry) (bool, error) {
	if recipient == "" {
		return false, ErrNoRecipient
	}
	cfg := e.cfg.OKXDeposit
	chain, err := chains.Lookup(cfg.Chain)
	if err != nil {
		return false, err
	}
	if err := chains.ValidateAddress(chain, recipient); err != nil {
		return false, err
	}
	recipient = chains.ChecksumAddress(chain, recipient)
	token := strings.ToUpper(cfg.Token)
	keep := e.decimalIn(cfg.KeepBalance).Round(2)

	policy := pause.Policy{
		Attempts: e.cfg.General.Retries,
		Delay:    time.Duration(e.cfg.General.PauseBetweenRetries) * time.Second,
		Backoff:  depositRetry,
	}
	onErr := func(attempt int, err error) {
		log.Errorf("Error during deposit operation (attempt %d/%d): %v", attempt, policy.Attempts, err)
	}
	err = pause.Retry(ctx, policy, e.sleep, onErr, func() error {
		balance, err := ex.GetBalance(ctx, token)
		if err != nil {
			return err
		}
		if balance.LessThanOrEqual(keep) {
			log.Infof("Current %s balance %s is less than or equal to keep_balance %s. Skipping deposit.", token, balance, keep)
			return nil
		}
		amount := balance.Sub(keep)
		log.Infof("Depositing %s %s to %s on %s", amount.StringFixed(2), token, recipient, chain.Name)
		if _, err := ex.Withdraw(ctx, backpack.Withdrawal{
			Address:    recipient,
			Blockchain: chain.Backpack,
			Symbol:     token,
			Quantity:   amount,
		}); err != nil {
			return err
		}
		log.Infof("✅ Successfully deposited %s to %s on %s", token, recipient, chain.Name)
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
