package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gopack/pkg/ratelimit"
)

func TestClient_GetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ticker", r.URL.Path)
		assert.Equal(t, "SOL_USDC", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"lastPrice":"142.5"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", WithLimiter(ratelimit.NewTokenBucket(5, 5)))
	var out struct {
		LastPrice string `json:"lastPrice"`
	}
	require.NoError(t, c.Get(context.Background(), "/api/v1/ticker", map[string]any{"symbol": "SOL_USDC"}, &out))
	assert.Equal(t, "142.5", out.LastPrice)
}

func TestClient_PostBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "sig", r.Header.Get("X-SIGNATURE"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Bid", body["side"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"Filled"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	var out map[string]any
	_, err := c.Do(context.Background(), http.MethodPost, "/api/v1/order", &RequestOptions{
		Headers: map[string]string{"X-SIGNATURE": "sig"},
		Data:    map[string]any{"side": "Bid"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Filled", out["status"])
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"INVALID_ORDER","message":"Quantity too small"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetries(0))
	err := c.Get(context.Background(), "/x", nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Contains(t, err.Error(), "Quantity too small")
}

func TestClient_RetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithTimeout(5*time.Second))
	require.NoError(t, c.Get(context.Background(), "/x", nil, nil))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_UnsupportedMethod(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	_, err := c.Do(context.Background(), "PATCH", "/", nil, nil)
	assert.Error(t, err)
}
