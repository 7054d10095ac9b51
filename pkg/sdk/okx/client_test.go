package okx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gopack/pkg/ratelimit"
)

var testCreds = Credentials{APIKey: "key", Secret: "secret", Passphrase: "pass"}

type fakeOKX struct {
	mu        sync.Mutex
	transfers []map[string]string
	withdraws []map[string]string
}

func (f *fakeOKX) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		want := Sign(testCreds.Secret, r.Header.Get("OK-ACCESS-TIMESTAMP"), r.Method, r.URL.RequestURI(), string(body))
		assert.Equal(t, want, r.Header.Get("OK-ACCESS-SIGN"), "signature for %s", r.URL.RequestURI())
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))

		w.Header().Set("Content-Type", "application/json")
		reply := func(data string) {
			_, _ = w.Write([]byte(`{"code":"0","msg":"","data":` + data + `}`))
		}

		switch r.URL.Path {
		case "/api/v5/users/subaccount/list":
			reply(`[{"subAcct":"alpha","enable":true},{"subAcct":"beta","enable":true},{"subAcct":"broken","enable":true}]`)
		case "/api/v5/asset/subaccount/balances":
			switch r.URL.Query().Get("subAcct") {
			case "alpha":
				reply(`[{"ccy":"USDC","availBal":"12.5"}]`)
			case "beta":
				reply(`[{"ccy":"USDC","availBal":"0"}]`)
			default:
				_, _ = w.Write([]byte(`{"code":"58110","msg":"sub-account frozen","data":[]}`))
			}
		case "/api/v5/asset/transfer":
			var m map[string]string
			require.NoError(t, json.Unmarshal(body, &m))
			f.mu.Lock()
			f.transfers = append(f.transfers, m)
			f.mu.Unlock()
			reply(`[{"transId":"1"}]`)
		case "/api/v5/asset/currencies":
			reply(`[{"ccy":"USDC","chain":"USDC-ERC20","minFee":"3"},{"ccy":"USDC","chain":"USDC-Solana","minFee":"0.5"}]`)
		case "/api/v5/asset/balances":
			reply(`[{"ccy":"USDC","availBal":"99.1"}]`)
		case "/api/v5/asset/withdrawal":
			var m map[string]string
			require.NoError(t, json.Unmarshal(body, &m))
			f.mu.Lock()
			f.withdraws = append(f.withdraws, m)
			f.mu.Unlock()
			reply(`[{"wdId":"w-1","ccy":"USDC"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newTestClient(t *testing.T, f *fakeOKX) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	limits := ratelimit.NewManager()
	for _, name := range []string{"okx:transfer", "okx:withdrawal", "okx:subaccount", "okx:general"} {
		limits.Set(name, ratelimit.NewTokenBucket(100, 100))
	}
	c, err := New(testCreds, Options{BaseURL: srv.URL, Limits: limits})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 6e6, time.UTC) }
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Credentials{APIKey: "k"}, Options{})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSign_MethodUppercased(t *testing.T) {
	got := Sign("secret", "2026-01-02T03:04:05.006Z", "get", "/api/v5/asset/balances?ccy=USDC", "")
	assert.Equal(t, Sign("secret", "2026-01-02T03:04:05.006Z", "GET", "/api/v5/asset/balances?ccy=USDC", ""), got)
	assert.NotEqual(t, Sign("other", "2026-01-02T03:04:05.006Z", "GET", "/api/v5/asset/balances?ccy=USDC", ""), got)
}

func TestChainID(t *testing.T) {
	assert.Equal(t, "USDC-Solana", ChainID("usdc", "Solana"))
	assert.Equal(t, "USDC-Arbitrum One", ChainID("USDC", "USDC-Arbitrum One"))
}

func TestTransferAllSubToMain(t *testing.T) {
	f := &fakeOKX{}
	c := newTestClient(t, f)

	moved, err := c.TransferAllSubToMain(context.Background(), "USDC")
	require.NoError(t, err)
	assert.True(t, moved.Equal(decimal.RequireFromString("12.5")))

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.transfers, 1)
	assert.Equal(t, map[string]string{
		"ccy": "USDC", "amt": "12.5", "from": "6", "to": "6", "type": "2", "subAcct": "alpha",
	}, f.transfers[0])
}

func TestSubAccountBalance_APIError(t *testing.T) {
	c := newTestClient(t, &fakeOKX{})
	_, err := c.SubAccountBalance(context.Background(), "broken", "USDC")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "58110", apiErr.Code)
}

func TestWithdrawalFee(t *testing.T) {
	c := newTestClient(t, &fakeOKX{})
	fee, err := c.WithdrawalFee(context.Background(), "USDC", "Solana")
	require.NoError(t, err)
	assert.Equal(t, "0.5", fee.String())

	_, err = c.WithdrawalFee(context.Background(), "USDC", "Tron")
	assert.Error(t, err)
}

func TestFundingBalance(t *testing.T) {
	c := newTestClient(t, &fakeOKX{})
	bal, err := c.FundingBalance(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, "99.1", bal.String())
}

func TestWithdraw(t *testing.T) {
	f := &fakeOKX{}
	c := newTestClient(t, f)
	ctx := context.Background()

	id, err := c.Withdraw(ctx, WithdrawRequest{
		Ccy: "USDC", Amount: decimal.RequireFromString("25.678"), Chain: "Solana", ToAddr: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
	})
	require.NoError(t, err)
	assert.Equal(t, "w-1", id)

	_, err = c.Withdraw(ctx, WithdrawRequest{Ccy: "USDC", Amount: decimal.NewFromInt(1), Chain: "Solana"})
	assert.Error(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.withdraws, 1)
	assert.Equal(t, "25.67", f.withdraws[0]["amt"])
	assert.Equal(t, "USDC-Solana", f.withdraws[0]["chain"])
	assert.Equal(t, "4", f.withdraws[0]["dest"])
}
