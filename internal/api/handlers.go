package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/internal/store"
	"github.com/betbot/gopack/pkg/deltaneutral"
	"github.com/betbot/gopack/pkg/sdk/backpack"
)

const queryTimeout = 5 * time.Second

// walletView 不包含私钥
type walletView struct {
	ID        int64         `json:"id"`
	PublicKey string        `json:"public_key,omitempty"`
	Masked    string        `json:"masked_key"`
	Proxy     string        `json:"proxy,omitempty"`
	Recipient string        `json:"recipient,omitempty"`
	Status    domain.Status `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

func newWalletView(w domain.Wallet) walletView {
	v := walletView{
		ID:        w.ID,
		Masked:    w.Masked(),
		Proxy:     w.Proxy.Host(),
		Recipient: w.Recipient,
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
	}
	if signer, err := backpack.NewSigner(w.PrivateKey); err == nil {
		v.PublicKey = signer.PublicKey()
	}
	return v
}

type forkView struct {
	ID        int64                 `json:"id"`
	PlanID    string                `json:"plan_id"`
	Symbol    string                `json:"symbol"`
	Status    domain.Status         `json:"status"`
	Long      []deltaneutral.Leg    `json:"long"`
	Short     []deltaneutral.Leg    `json:"short"`
	Exposure  deltaneutral.Exposure `json:"exposure"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// legs 里的账户换成脱敏 key
func maskLegs(legs []deltaneutral.Leg) []deltaneutral.Leg {
	out := make([]deltaneutral.Leg, len(legs))
	for i, leg := range legs {
		leg.Account = domain.MaskKey(leg.Account)
		out[i] = leg
	}
	return out
}

func newForkView(f domain.Fork) forkView {
	var long, short float64
	for _, l := range f.Group.Long {
		long += l.TotalSize
	}
	for _, l := range f.Group.Short {
		short += l.TotalSize
	}
	return forkView{
		ID:        f.ID,
		PlanID:    f.PlanID,
		Symbol:    f.Symbol,
		Status:    f.Status,
		Long:      maskLegs(f.Group.Long),
		Short:     maskLegs(f.Group.Short),
		Exposure:  deltaneutral.Exposure{Long: long, Short: short, Delta: long - short},
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, fmt.Sprintf("db ping: %v", err))
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleWalletsList(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	list, err := s.store.ListWallets(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list wallets: %v", err))
		return
	}
	completed, err := s.store.CompletedWalletsCount(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db count wallets: %v", err))
		return
	}

	out := make([]walletView, 0, len(list))
	for _, w := range list {
		out = append(out, newWalletView(w))
	}
	writeJSON(c, http.StatusOK, gin.H{"total": len(list), "completed": completed, "wallets": out})
}

func (s *Server) handleWalletTasks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid wallet id")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	w, err := s.store.WalletByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "wallet not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db get wallet: %v", err))
		return
	}
	rows, err := s.store.WalletTasks(ctx, w.PrivateKey)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list tasks: %v", err))
		return
	}
	if rows == nil {
		rows = []store.TaskRow{}
	}
	writeJSON(c, http.StatusOK, gin.H{"wallet": newWalletView(*w), "tasks": rows})
}

func (s *Server) handleForksList(c *gin.Context) {
	limit := parseLimit(c, 100, 500)
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	forks, err := s.store.ListForks(ctx, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list forks: %v", err))
		return
	}
	status := strings.TrimSpace(c.Query("status"))
	out := make([]forkView, 0, len(forks))
	for _, f := range forks {
		if status != "" && string(f.Status) != status {
			continue
		}
		out = append(out, newForkView(f))
	}
	writeJSON(c, http.StatusOK, out)
}

func (s *Server) handleJobRunsList(c *gin.Context) {
	limit := parseLimit(c, 50, 200)
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	runs, err := s.store.ListJobRuns(ctx, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list job runs: %v", err))
		return
	}
	if runs == nil {
		runs = []domain.JobRun{}
	}
	writeJSON(c, http.StatusOK, runs)
}

func (s *Server) handleJobRunGet(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid run id")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	run, err := s.store.GetJobRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(c, http.StatusNotFound, "job run not found")
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db get job run: %v", err))
		return
	}
	writeJSON(c, http.StatusOK, run)
}

// parseLimit 非法或越界时用默认值
func parseLimit(c *gin.Context, def, maxLimit int) int {
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			return n
		}
	}
	return def
}
