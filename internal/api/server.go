// Package api 只读状态服务：钱包进度、fork 和执行记录。
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/betbot/gopack/internal/store"
)

// Server 状态服务，只读访问 SQLite
type Server struct {
	store *store.Store
}

// New 创建状态服务
func New(st *store.Store) (*Server, error) {
	if st == nil {
		return nil, errors.New("api: store is required")
	}
	return &Server{store: st}, nil
}

// Router gin 路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")

	wallets := api.Group("/wallets")
	wallets.GET("", s.handleWalletsList)
	wallets.GET("/:id/tasks", s.handleWalletTasks)

	api.GET("/forks", s.handleForksList)
	api.GET("/job_runs", s.handleJobRunsList)
	api.GET("/job_runs/:id", s.handleJobRunGet)

	return r
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
