package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/internal/store"
	"github.com/betbot/gopack/pkg/deltaneutral"
	"github.com/betbot/gopack/pkg/proxy"
	"github.com/betbot/gopack/pkg/sdk/backpack"
)

const secret = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func newTestServer(t *testing.T) (*store.Store, http.Handler) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	srv, err := New(st)
	require.NoError(t, err)
	return st, srv.Router()
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz", nil))
}

func TestWallets_NeverExposeKeys(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()
	id, err := st.AddWallet(ctx, domain.Wallet{
		PrivateKey: secret,
		Proxy:      &proxy.Proxy{Addr: "user:pass@10.0.0.1:8000"},
		Recipient:  "0xabc",
	})
	require.NoError(t, err)
	require.NoError(t, st.AddTask(ctx, secret, domain.TaskBackpackSpot))
	require.NoError(t, st.AddTask(ctx, secret, domain.TaskCloseAll))
	require.NoError(t, st.CompleteTask(ctx, secret, domain.TaskBackpackSpot))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallets", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), secret)
	assert.NotContains(t, rec.Body.String(), "user:pass")

	var list struct {
		Total     int          `json:"total"`
		Completed int          `json:"completed"`
		Wallets   []walletView `json:"wallets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Zero(t, list.Completed)
	require.Len(t, list.Wallets, 1)

	signer, err := backpack.NewSigner(secret)
	require.NoError(t, err)
	w := list.Wallets[0]
	assert.Equal(t, id, w.ID)
	assert.Equal(t, signer.PublicKey(), w.PublicKey)
	assert.Equal(t, "AAAA...AAA=", w.Masked)
	assert.Equal(t, "10.0.0.1:8000", w.Proxy)

	var detail struct {
		Wallet walletView      `json:"wallet"`
		Tasks  []store.TaskRow `json:"tasks"`
	}
	path := "/api/wallets/" + strconv.FormatInt(id, 10) + "/tasks"
	require.Equal(t, http.StatusOK, get(t, h, path, &detail))
	require.Len(t, detail.Tasks, 2)
	assert.Equal(t, domain.TaskBackpackSpot, detail.Tasks[0].Name)
	assert.Equal(t, domain.StatusCompleted, detail.Tasks[0].Status)
	assert.Equal(t, domain.StatusPending, detail.Tasks[1].Status)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/wallets/999/tasks", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/wallets/abc/tasks", nil))
}

func TestForks_MaskedLegs(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()
	groups := map[string]*deltaneutral.SymbolGroup{
		"SOL_USDC_PERP": {
			Accounts: []string{"long-account-1", "short-account-1", "short-account-2"},
			Long:     []deltaneutral.Leg{{Account: "long-account-1", BaseSize: 70, Leverage: 3, TotalSize: 210}},
			Short: []deltaneutral.Leg{
				{Account: "short-account-1", BaseSize: 50, Leverage: 2, TotalSize: 100},
				{Account: "short-account-2", BaseSize: 40, Leverage: 2.5, TotalSize: 100},
			},
		},
	}
	require.NoError(t, st.FillForks(ctx, "plan-1", groups))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/forks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, strings.Contains(rec.Body.String(), "long-account-1"))

	var forks []forkView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &forks))
	require.Len(t, forks, 1)
	f := forks[0]
	assert.Equal(t, "plan-1", f.PlanID)
	assert.Equal(t, "SOL_USDC_PERP", f.Symbol)
	assert.Equal(t, "long...nt-1", f.Long[0].Account)
	assert.InDelta(t, 210, f.Exposure.Long, 1e-9)
	assert.InDelta(t, 200, f.Exposure.Short, 1e-9)
	assert.InDelta(t, 10, f.Exposure.Delta, 1e-9)

	require.Equal(t, http.StatusOK, get(t, h, "/api/forks?status=completed", &forks))
	assert.Empty(t, forks)
}

func TestJobRuns(t *testing.T) {
	st, h := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id, err := st.InsertJobRunStart(ctx, "task:CLOSE_ALL", "wallet", "AAAA...AAA=", nil)
		require.NoError(t, err)
		require.NoError(t, st.FinishJobRun(ctx, id, i != 1, "", map[string]any{"completed": i != 1}))
	}

	var runs []domain.JobRun
	require.Equal(t, http.StatusOK, get(t, h, "/api/job_runs?limit=2", &runs))
	assert.Len(t, runs, 2)

	require.Equal(t, http.StatusOK, get(t, h, "/api/job_runs?limit=oops", &runs))
	assert.Len(t, runs, 3)

	var run domain.JobRun
	require.Equal(t, http.StatusOK, get(t, h, "/api/job_runs/2", &run))
	require.NotNil(t, run.OK)
	assert.False(t, *run.OK)
	assert.Equal(t, "task:CLOSE_ALL", run.JobName)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/job_runs/42", nil))
}
