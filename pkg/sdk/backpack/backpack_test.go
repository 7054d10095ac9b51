package backpack

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gopack/pkg/cache"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte(strings.Repeat("\x01", 32)))

type fakeExchange struct {
	mu        sync.Mutex
	orders    []map[string]any
	withdraws []map[string]any
	queries   []string

	depth     string
	balances  string
	positions string
	status    string
}

func (f *fakeExchange) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
	decode := func(r *http.Request) map[string]any {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		return body
	}

	mux.HandleFunc("/api/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		depth := f.depth
		f.mu.Unlock()
		reply(w, depth)
	})
	mux.HandleFunc("/api/v1/ticker", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `{"symbol":"`+r.URL.Query().Get("symbol")+`","lastPrice":"5"}`)
	})
	mux.HandleFunc("/api/v1/markets", func(w http.ResponseWriter, r *http.Request) {
		reply(w, `[{"symbol":"SOL_USDC","quoteSymbol":"USDC"},{"symbol":"SOL_USDC_PERP","quoteSymbol":"USDC"},
			{"symbol":"BTC_USDC","quoteSymbol":"USDC"},{"symbol":"SOL_BTC","quoteSymbol":"BTC"}]`)
	})
	mux.HandleFunc("/api/v1/capital", func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r, "balanceQuery", nil)
		reply(w, f.balances)
	})
	mux.HandleFunc("/api/v1/position", func(w http.ResponseWriter, r *http.Request) {
		reply(w, f.positions)
	})
	mux.HandleFunc("/api/v1/order", func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		verifySignature(t, r, "orderExecute", body)
		f.mu.Lock()
		f.orders = append(f.orders, body)
		status := f.status
		f.mu.Unlock()
		reply(w, `{"id":"1","status":"`+status+`","symbol":"`+body["symbol"].(string)+`","side":"`+body["side"].(string)+`"}`)
	})
	mux.HandleFunc("/wapi/v1/capital/withdrawals", func(w http.ResponseWriter, r *http.Request) {
		body := decode(r)
		verifySignature(t, r, "withdraw", body)
		f.mu.Lock()
		f.withdraws = append(f.withdraws, body)
		f.mu.Unlock()
		reply(w, `{"id":42,"status":"pending"}`)
	})
	mux.HandleFunc("/wapi/v1/capital/deposit/address", func(w http.ResponseWriter, r *http.Request) {
		chain := r.URL.Query().Get("blockchain")
		verifySignature(t, r, "depositAddressQuery", map[string]any{"blockchain": chain})
		f.mu.Lock()
		f.queries = append(f.queries, chain)
		f.mu.Unlock()
		reply(w, `{"address":"9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"}`)
	})
	return mux
}

func (f *fakeExchange) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeExchange) placed() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.orders...)
}

func (f *fakeExchange) withdrawals() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.withdraws...)
}

func verifySignature(t *testing.T, r *http.Request, instruction string, params map[string]any) {
	t.Helper()
	pub, err := base64.StdEncoding.DecodeString(r.Header.Get("X-API-KEY"))
	require.NoError(t, err)
	sig, err := base64.StdEncoding.DecodeString(r.Header.Get("X-SIGNATURE"))
	require.NoError(t, err)
	ts, err := strconv.ParseInt(r.Header.Get("X-TIMESTAMP"), 10, 64)
	require.NoError(t, err)
	window, err := strconv.ParseInt(r.Header.Get("X-WINDOW"), 10, 64)
	require.NoError(t, err)
	msg := SigningString(instruction, params, ts, window)
	assert.True(t, ed25519.Verify(pub, []byte(msg), sig), "bad signature for %s", msg)
}

func newTestAccount(t *testing.T, f *fakeExchange) (*Account, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	decimals := cache.NewInMemoryCache[string, int](time.Minute)
	t.Cleanup(decimals.Close)

	var sleeps []time.Duration
	acc, err := NewAccount(testSecret, Options{
		BaseURL:  srv.URL,
		Decimals: decimals,
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	})
	require.NoError(t, err)
	acc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return acc, &sleeps
}

func TestSigningString(t *testing.T) {
	got := SigningString("orderExecute", map[string]any{
		"symbol":     "SOL_USDC",
		"side":       Bid,
		"reduceOnly": false,
		"quantity":   "1.5",
	}, 1700000000000, DefaultWindow)
	assert.Equal(t, "instruction=orderExecute&quantity=1.5&reduceOnly=false&side=Bid&symbol=SOL_USDC&timestamp=1700000000000&window=60000", got)

	assert.Equal(t, "instruction=balanceQuery&timestamp=1&window=60000", SigningString("balanceQuery", nil, 1, DefaultWindow))
}

func TestNewSigner_Invalid(t *testing.T) {
	_, err := NewSigner("not base64!!")
	assert.ErrorIs(t, err, ErrBadSecret)

	_, err = NewSigner(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrBadSecret)

	s, err := NewSigner(testSecret)
	require.NoError(t, err)
	pub, err := base64.StdEncoding.DecodeString(s.PublicKey())
	require.NoError(t, err)
	assert.Len(t, pub, ed25519.PublicKeySize)
}

func TestPostLimitOrder_BidTakesBestAsk(t *testing.T) {
	f := &fakeExchange{depth: `{"asks":[["100.5","0.01"],["101","3.25"]],"bids":[["99","1"]]}`, status: StatusFilled}
	acc, _ := newTestAccount(t, f)

	order, err := acc.PostLimitOrder(context.Background(), "SOL_USDC", Bid, decimal.NewFromInt(50), decimal.Zero, FOK)
	require.NoError(t, err)
	assert.True(t, order.Placed())

	orders := f.placed()
	require.Len(t, orders, 1)
	body := orders[0]
	assert.Equal(t, "Limit", body["orderType"])
	assert.Equal(t, "100.5", body["price"])
	assert.Equal(t, "0.5", body["quantity"])
	assert.Equal(t, "FOK", body["timeInForce"])
}

func TestPostLimitOrder_AskTakesLastBid(t *testing.T) {
	f := &fakeExchange{depth: `{"asks":[["101","0.001"]],"bids":[["99","1"],["100","2"]]}`, status: StatusNew}
	acc, _ := newTestAccount(t, f)

	_, err := acc.PostLimitOrder(context.Background(), "SOL_USDC", Ask, decimal.Zero, decimal.RequireFromString("1.25"), FOK)
	require.NoError(t, err)
	orders := f.placed()
	require.Len(t, orders, 1)
	assert.Equal(t, "100", orders[0]["price"])
	assert.Equal(t, "1.25", orders[0]["quantity"])
	assert.Equal(t, "Ask", orders[0]["side"])
}

func TestPostLimitOrder_TooSmall(t *testing.T) {
	f := &fakeExchange{depth: `{"asks":[["100","0.01"]],"bids":[]}`}
	acc, _ := newTestAccount(t, f)

	_, err := acc.PostLimitOrder(context.Background(), "SOL_USDC", Bid, decimal.RequireFromString("0.001"), decimal.Zero, FOK)
	assert.ErrorIs(t, err, ErrAmountTooSmall)
	assert.Empty(t, f.placed())
}

func TestPostLimitOrder_EmptyBook(t *testing.T) {
	f := &fakeExchange{depth: `{"asks":[],"bids":[]}`}
	acc, _ := newTestAccount(t, f)

	_, err := acc.PostLimitOrder(context.Background(), "SOL_USDC", Ask, decimal.NewFromInt(1), decimal.Zero, FOK)
	assert.ErrorIs(t, err, ErrEmptyBook)
}

func TestOpenFuturesPosition(t *testing.T) {
	f := &fakeExchange{depth: `{"asks":[["20","1.5"]],"bids":[["19","1"]]}`, status: StatusFilled}
	acc, _ := newTestAccount(t, f)

	filled, err := acc.OpenFuturesPosition(context.Background(), "SOL_USDC_PERP", Bid, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.True(t, filled)

	body := f.placed()[0]
	assert.Equal(t, "Market", body["orderType"])
	assert.Equal(t, "1.5", body["quantity"])
	assert.Equal(t, false, body["reduceOnly"])
	assert.Equal(t, "GTC", body["timeInForce"])
	_, hasPrice := body["price"]
	assert.False(t, hasPrice)

	f.set(func() { f.status = "Cancelled" })
	filled, err = acc.OpenFuturesPosition(context.Background(), "SOL_USDC_PERP", Ask, decimal.NewFromInt(30))
	require.NoError(t, err)
	assert.False(t, filled)
}

func TestCloseAllPositions(t *testing.T) {
	f := &fakeExchange{
		positions: `{"positions":[{"symbol":"SOL_USDC_PERP","netQuantity":"2.5"},{"symbol":"BTC_USDC_PERP","netQuantity":"-0.01"}]}`,
		status:    StatusFilled,
	}
	acc, sleeps := newTestAccount(t, f)

	closed, err := acc.CloseAllPositions(context.Background())
	require.NoError(t, err)
	assert.True(t, closed)

	orders := f.placed()
	require.Len(t, orders, 2)
	assert.Equal(t, "Ask", orders[0]["side"])
	assert.Equal(t, "2.5", orders[0]["quantity"])
	assert.Equal(t, true, orders[0]["reduceOnly"])
	assert.Equal(t, "Bid", orders[1]["side"])
	assert.Equal(t, "0.01", orders[1]["quantity"])
	assert.Equal(t, []time.Duration{time.Second}, *sleeps)
}

func TestCloseAllPositions_None(t *testing.T) {
	f := &fakeExchange{positions: `[]`}
	acc, _ := newTestAccount(t, f)

	closed, err := acc.CloseAllPositions(context.Background())
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestDecodePositions(t *testing.T) {
	list, err := decodePositions(json.RawMessage(`[{"symbol":"A","netQuantity":"1"}]`))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Bid, list[0].Side())

	list, err = decodePositions(json.RawMessage(`{"positions":[{"symbol":"B","netQuantity":"-3"}]}`))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Ask, list[0].Side())

	list, err = decodePositions(nil)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBalances(t *testing.T) {
	f := &fakeExchange{balances: `{"USDC":{"available":"10","locked":"0","staked":"0"},
		"SOL":{"available":"2","locked":"0","staked":"0"},"ETH":{"available":"0","locked":"1","staked":"0"}}`}
	acc, sleeps := newTestAccount(t, f)
	ctx := context.Background()

	usdc, err := acc.GetBalance(ctx, "USDC")
	require.NoError(t, err)
	assert.True(t, usdc.Equal(decimal.NewFromInt(10)))

	missing, err := acc.GetBalance(ctx, "JUP")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())

	total, err := acc.GetOverallBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "20", total.String())
	assert.Len(t, *sleeps, 1)
}

func TestWithdraw(t *testing.T) {
	f := &fakeExchange{}
	acc, _ := newTestAccount(t, f)
	ctx := context.Background()

	_, err := acc.Withdraw(ctx, Withdrawal{Quantity: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNoAddress)

	_, err = acc.Withdraw(ctx, Withdrawal{Address: "0xabc", Quantity: decimal.RequireFromString("12.349")})
	require.NoError(t, err)
	sent := f.withdrawals()
	require.Len(t, sent, 1)
	assert.Equal(t, "12.34", sent[0]["quantity"])
	assert.Equal(t, "Solana", sent[0]["blockchain"])
	assert.Equal(t, "USDC", sent[0]["symbol"])

	_, err = acc.Withdraw(ctx, Withdrawal{Address: "0xabc", Quantity: decimal.RequireFromString("0.004")})
	assert.Error(t, err)
	assert.Len(t, f.withdrawals(), 1)
}

func TestGetDepositAddress(t *testing.T) {
	f := &fakeExchange{}
	acc, _ := newTestAccount(t, f)

	addr, err := acc.GetDepositAddress(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", addr)
	f.set(func() { assert.Equal(t, []string{"Solana"}, f.queries) })
}

func TestGetUSDCSymbols(t *testing.T) {
	f := &fakeExchange{}
	acc, _ := newTestAccount(t, f)

	spot, perp, err := acc.GetUSDCSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SOL_USDC", "BTC_USDC"}, spot)
	assert.Equal(t, []string{"SOL_USDC_PERP"}, perp)
}

func TestGetTokenDecimals_Cached(t *testing.T) {
	f := &fakeExchange{depth: `{"asks":[["1","12.345"]],"bids":[]}`}
	acc, _ := newTestAccount(t, f)
	ctx := context.Background()

	d, err := acc.GetTokenDecimals(ctx, "JUP_USDC")
	require.NoError(t, err)
	assert.Equal(t, 3, d)

	f.set(func() { f.depth = `{"asks":[["1","12"]],"bids":[]}` })
	d, err = acc.GetTokenDecimals(ctx, "JUP_USDC")
	require.NoError(t, err)
	assert.Equal(t, 3, d)
}
