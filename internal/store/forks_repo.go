package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/pkg/deltaneutral"
)

// FillForks 用新计划替换所有 pending fork，按标的名排序插入
func (s *Store) FillForks(ctx context.Context, planID string, groups map[string]*deltaneutral.SymbolGroup) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM forks WHERE status=?`, string(domain.StatusPending)); err != nil {
			return fmt.Errorf("clear pending forks: %w", err)
		}
		now := s.timestamp()
		for _, symbol := range deltaneutral.Symbols(groups) {
			raw, err := json.Marshal(groups[symbol])
			if err != nil {
				return fmt.Errorf("marshal fork %s: %w", symbol, err)
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO forks (plan_id, symbol, forks_json, status, created_at, updated_at)
VALUES (?,?,?,?,?,?)
`, planID, symbol, string(raw), string(domain.StatusPending), now, now); err != nil {
				return fmt.Errorf("insert fork %s: %w", symbol, err)
			}
		}
		return nil
	})
}

// PendingForks 未执行的 fork，按 id 顺序
func (s *Store) PendingForks(ctx context.Context) ([]domain.Fork, error) {
	return s.listForks(ctx, `WHERE status=? ORDER BY id`, string(domain.StatusPending))
}

// ListForks 最近的 fork，limit<=0 时返回全部
func (s *Store) ListForks(ctx context.Context, limit int) ([]domain.Fork, error) {
	if limit <= 0 {
		return s.listForks(ctx, `ORDER BY id DESC`)
	}
	return s.listForks(ctx, `ORDER BY id DESC LIMIT ?`, limit)
}

// CompleteFork 标记 fork 已执行
func (s *Store) CompleteFork(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE forks SET status=?, updated_at=? WHERE id=?`,
		string(domain.StatusCompleted), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("complete fork: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fork %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) listForks(ctx context.Context, tail string, args ...any) ([]domain.Fork, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, plan_id, symbol, forks_json, status, created_at, updated_at
FROM forks `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("query forks: %w", err)
	}
	defer rows.Close()

	var out []domain.Fork
	for rows.Next() {
		var (
			f                    domain.Fork
			raw, status          string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&f.ID, &f.PlanID, &f.Symbol, &raw, &status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &f.Group); err != nil {
			return nil, fmt.Errorf("decode fork %d: %w", f.ID, err)
		}
		f.Status = domain.Status(status)
		f.CreatedAt = parseTime(createdAt)
		f.UpdatedAt = parseTime(updatedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}
