package okx

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// 资金账户
	accountFunding = "6"

	// 子账户转母账户（母账户 key 发起）
	transferSubToMaster = "2"

	// 链上提币
	destOnChain = "4"
)

// ChainID OKX 链标识，形如 USDC-Solana
func ChainID(ccy, chain string) string {
	if strings.Contains(chain, "-") {
		return chain
	}
	return strings.ToUpper(ccy) + "-" + chain
}

// ListSubAccounts 子账户名称
func (c *Client) ListSubAccounts(ctx context.Context) ([]string, error) {
	var rows []struct {
		SubAcct string `json:"subAcct"`
		Enable  bool   `json:"enable"`
	}
	if err := c.get(ctx, "okx:subaccount", "/api/v5/users/subaccount/list", nil, &rows); err != nil {
		return nil, fmt.Errorf("list sub-accounts: %w", err)
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.SubAcct)
	}
	return names, nil
}

// SubAccountBalance 子账户资金账户可用余额
func (c *Client) SubAccountBalance(ctx context.Context, sub, ccy string) (decimal.Decimal, error) {
	var rows []struct {
		Ccy      string          `json:"ccy"`
		AvailBal decimal.Decimal `json:"availBal"`
	}
	q := url.Values{"subAcct": {sub}, "ccy": {ccy}}
	if err := c.get(ctx, "okx:subaccount", "/api/v5/asset/subaccount/balances", q, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("sub-account %s balance: %w", sub, err)
	}
	for _, r := range rows {
		if strings.EqualFold(r.Ccy, ccy) {
			return r.AvailBal, nil
		}
	}
	return decimal.Zero, nil
}

// FundingBalance 母账户资金账户可用余额
func (c *Client) FundingBalance(ctx context.Context, ccy string) (decimal.Decimal, error) {
	var rows []struct {
		Ccy      string          `json:"ccy"`
		AvailBal decimal.Decimal `json:"availBal"`
	}
	if err := c.get(ctx, "okx:general", "/api/v5/asset/balances", url.Values{"ccy": {ccy}}, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("funding balance: %w", err)
	}
	for _, r := range rows {
		if strings.EqualFold(r.Ccy, ccy) {
			return r.AvailBal, nil
		}
	}
	return decimal.Zero, nil
}

// TransferFromSub 子账户资金账户转入母账户资金账户
func (c *Client) TransferFromSub(ctx context.Context, sub, ccy string, amount decimal.Decimal) error {
	body := map[string]string{
		"ccy":     ccy,
		"amt":     amount.String(),
		"from":    accountFunding,
		"to":      accountFunding,
		"type":    transferSubToMaster,
		"subAcct": sub,
	}
	if err := c.post(ctx, "okx:transfer", "/api/v5/asset/transfer", body, nil); err != nil {
		return fmt.Errorf("transfer %s %s from %s: %w", amount, ccy, sub, err)
	}
	return nil
}

// TransferAllSubToMain 把所有子账户的 ccy 归集到母账户，单个子账户失败只记录日志
func (c *Client) TransferAllSubToMain(ctx context.Context, ccy string) (decimal.Decimal, error) {
	subs, err := c.ListSubAccounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	moved := decimal.Zero
	for _, sub := range subs {
		bal, err := c.SubAccountBalance(ctx, sub, ccy)
		if err != nil {
			c.log.Warnf("skip sub-account %s: %v", sub, err)
			continue
		}
		if !bal.IsPositive() {
			continue
		}
		if err := c.TransferFromSub(ctx, sub, ccy, bal); err != nil {
			c.log.Warnf("%v", err)
			continue
		}
		c.log.Infof("Transferred %s %s from sub-account %s to main", bal, ccy, sub)
		moved = moved.Add(bal)
	}
	return moved, nil
}

// WithdrawalFee 指定链的最低提币手续费
func (c *Client) WithdrawalFee(ctx context.Context, ccy, chain string) (decimal.Decimal, error) {
	var rows []struct {
		Ccy    string `json:"ccy"`
		Chain  string `json:"chain"`
		Fee    string `json:"fee"`
		MinFee string `json:"minFee"`
	}
	if err := c.get(ctx, "okx:general", "/api/v5/asset/currencies", url.Values{"ccy": {ccy}}, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("currencies: %w", err)
	}
	id := ChainID(ccy, chain)
	for _, r := range rows {
		if r.Chain != id {
			continue
		}
		fee := r.MinFee
		if fee == "" {
			fee = r.Fee
		}
		if fee == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(fee)
	}
	return decimal.Zero, fmt.Errorf("chain %s not available for %s", id, ccy)
}

// WithdrawRequest 链上提币参数
type WithdrawRequest struct {
	Ccy    string
	Amount decimal.Decimal
	Chain  string
	ToAddr string
}

// Withdraw 链上提币，返回提币单号
func (c *Client) Withdraw(ctx context.Context, req WithdrawRequest) (string, error) {
	if req.ToAddr == "" {
		return "", fmt.Errorf("okx withdraw: empty destination address")
	}
	amt := req.Amount.Truncate(2)
	if !amt.IsPositive() {
		return "", fmt.Errorf("okx withdraw: amount %s too small", req.Amount)
	}
	body := map[string]string{
		"ccy":    req.Ccy,
		"amt":    amt.String(),
		"dest":   destOnChain,
		"toAddr": req.ToAddr,
		"chain":  ChainID(req.Ccy, req.Chain),
	}
	var rows []struct {
		WdID string `json:"wdId"`
	}
	if err := c.post(ctx, "okx:withdrawal", "/api/v5/asset/withdrawal", body, &rows); err != nil {
		return "", fmt.Errorf("okx withdraw %s %s: %w", amt, req.Ccy, err)
	}
	id := ""
	if len(rows) > 0 {
		id = rows[0].WdID
	}
	c.log.Infof("Withdrawal %s submitted: %s %s to %s via %s", id, amt, req.Ccy, req.ToAddr, body["chain"])
	return id, nil
}
