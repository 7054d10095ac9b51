package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/pkg/proxy"
)

// ClearWallets 删除全部钱包和任务
func (s *Store) ClearWallets(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{`DELETE FROM wallets_tasks;`, `DELETE FROM working_wallets;`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return fmt.Errorf("clear wallets: %w", err)
			}
		}
		return nil
	})
}

// AddWallet 新增钱包，状态为 pending
func (s *Store) AddWallet(ctx context.Context, w domain.Wallet) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO working_wallets (private_key, proxy, recipient, status, created_at)
VALUES (?,?,?,?,?)
`, w.PrivateKey, nullString(w.Proxy.String()), nullString(w.Recipient), string(domain.StatusPending), s.timestamp())
	if err != nil {
		return 0, fmt.Errorf("insert wallet %s: %w", w.Masked(), err)
	}
	return res.LastInsertId()
}

// AddTask 为钱包新增一个 pending 任务
func (s *Store) AddTask(ctx context.Context, key string, task domain.TaskName) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO wallets_tasks (private_key, task_name, status, updated_at)
VALUES (?,?,?,?)
`, key, string(task), string(domain.StatusPending), s.timestamp())
	if err != nil {
		return fmt.Errorf("insert task %s for %s: %w", task, domain.MaskKey(key), err)
	}
	return nil
}

// CompleteTask 标记任务完成；钱包没有剩余 pending 任务时一并标记完成
func (s *Store) CompleteTask(ctx context.Context, key string, task domain.TaskName) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.timestamp()
		res, err := tx.ExecContext(ctx, `
UPDATE wallets_tasks SET status=?, updated_at=?
WHERE private_key=? AND task_name=?
`, string(domain.StatusCompleted), now, key, string(task))
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("task %s for %s: %w", task, domain.MaskKey(key), ErrNotFound)
		}

		var pending int
		if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM wallets_tasks WHERE private_key=? AND status=?
`, key, string(domain.StatusPending)).Scan(&pending); err != nil {
			return fmt.Errorf("count pending tasks: %w", err)
		}
		if pending > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE working_wallets SET status=? WHERE private_key=?
`, string(domain.StatusCompleted), key); err != nil {
			return fmt.Errorf("complete wallet: %w", err)
		}
		return nil
	})
}

// PendingRoutes pending 钱包及其 pending 任务，按插入顺序；keys 非空时只返回其中的钱包
func (s *Store) PendingRoutes(ctx context.Context, keys []string) ([]domain.Route, error) {
	wallets, err := s.listWallets(ctx, `WHERE status=?`, string(domain.StatusPending))
	if err != nil {
		return nil, err
	}

	var allow map[string]bool
	if len(keys) > 0 {
		allow = make(map[string]bool, len(keys))
		for _, k := range keys {
			allow[k] = true
		}
	}

	routes := make([]domain.Route, 0, len(wallets))
	for _, w := range wallets {
		if allow != nil && !allow[w.PrivateKey] {
			continue
		}
		_, pending, err := s.TasksInfo(ctx, w.PrivateKey)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			continue
		}
		routes = append(routes, domain.Route{Wallet: w, Tasks: pending})
	}
	return routes, nil
}

// TasksInfo 钱包已完成和未完成的任务名称
func (s *Store) TasksInfo(ctx context.Context, key string) (completed, pending []domain.TaskName, err error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task_name, status FROM wallets_tasks WHERE private_key=? ORDER BY id
`, key)
	if err != nil {
		return nil, nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, nil, err
		}
		if domain.Status(status) == domain.StatusCompleted {
			completed = append(completed, domain.TaskName(name))
		} else {
			pending = append(pending, domain.TaskName(name))
		}
	}
	return completed, pending, rows.Err()
}

// TaskRow 任务明细
type TaskRow struct {
	Name      domain.TaskName `json:"name"`
	Status    domain.Status   `json:"status"`
	UpdatedAt string          `json:"updated_at"`
}

// WalletTasks 钱包的全部任务明细
func (s *Store) WalletTasks(ctx context.Context, key string) ([]TaskRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT task_name, status, updated_at FROM wallets_tasks WHERE private_key=? ORDER BY id
`, key)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRow
	for rows.Next() {
		var r TaskRow
		if err := rows.Scan(&r.Name, &r.Status, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompletedWalletsCount 已完成的钱包数
func (s *Store) CompletedWalletsCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM working_wallets WHERE status=?`, string(domain.StatusCompleted)).Scan(&n)
	return n, err
}

// TotalWalletsCount 钱包总数
func (s *Store) TotalWalletsCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM working_wallets`).Scan(&n)
	return n, err
}

// ListWallets 全部钱包
func (s *Store) ListWallets(ctx context.Context) ([]domain.Wallet, error) {
	return s.listWallets(ctx, "")
}

// GetWallet 按 key 查询
func (s *Store) GetWallet(ctx context.Context, key string) (*domain.Wallet, error) {
	list, err := s.listWallets(ctx, `WHERE private_key=?`, key)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// WalletByID 按数据库 id 查询
func (s *Store) WalletByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	list, err := s.listWallets(ctx, `WHERE id=?`, id)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

func (s *Store) listWallets(ctx context.Context, where string, args ...any) ([]domain.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, private_key, proxy, recipient, status, created_at
FROM working_wallets `+where+`
ORDER BY id
`, args...)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var out []domain.Wallet
	for rows.Next() {
		var (
			w         domain.Wallet
			proxyStr  sql.NullString
			recipient sql.NullString
			status    string
			createdAt string
		)
		if err := rows.Scan(&w.ID, &w.PrivateKey, &proxyStr, &recipient, &status, &createdAt); err != nil {
			return nil, err
		}
		if proxyStr.Valid && proxyStr.String != "" {
			p, err := proxy.Parse(proxyStr.String, strings.Contains(proxyStr.String, "|"))
			if err != nil {
				return nil, fmt.Errorf("wallet %d proxy: %w", w.ID, err)
			}
			w.Proxy = p
		}
		w.Recipient = recipient.String
		w.Status = domain.Status(status)
		w.CreatedAt = parseTime(createdAt)
		out = append(out, w)
	}
	return out, rows.Err()
}
