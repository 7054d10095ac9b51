// Package store 本地 SQLite：钱包任务进度、fork 计划和工作流执行记录。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("store: not found")

// Store SQLite 存储
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开（必要时创建）数据库并执行迁移
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`
CREATE TABLE IF NOT EXISTS working_wallets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  private_key TEXT NOT NULL UNIQUE,
  proxy TEXT,
  recipient TEXT,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS wallets_tasks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  private_key TEXT NOT NULL,
  task_name TEXT NOT NULL,
  status TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE (private_key, task_name)
);`,
		`CREATE INDEX IF NOT EXISTS idx_wallets_tasks_key_status ON wallets_tasks(private_key, status);`,
		`
CREATE TABLE IF NOT EXISTS forks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  plan_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  forks_json TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_forks_status ON forks(status, id);`,
		`
CREATE TABLE IF NOT EXISTS job_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_name TEXT NOT NULL,
  scope TEXT NOT NULL, -- "batch" | "wallet" | "fork"
  account TEXT,        -- nullable when batch
  started_at TEXT NOT NULL,
  finished_at TEXT,
  ok INTEGER,
  error TEXT,
  meta_json TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_job_runs_started_at ON job_runs(started_at DESC);`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate exec failed: %w", err)
		}
	}

	// 兼容：早期版本的 forks 表没有 plan_id 列
	ok, err := hasColumn(ctx, s.db, "forks", "plan_id")
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE forks ADD COLUMN plan_id TEXT NOT NULL DEFAULT '';`); err != nil {
			return fmt.Errorf("alter forks add plan_id: %w", err)
		}
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table string, col string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	// PRAGMA table_info 返回：cid,name,type,notnull,dflt_value,pk
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == col {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
