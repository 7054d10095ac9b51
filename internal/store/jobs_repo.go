package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/betbot/gopack/internal/domain"
)

// InsertJobRunStart 记录一次执行开始，返回 run id
func (s *Store) InsertJobRunStart(ctx context.Context, jobName, scope, account string, meta map[string]any) (int64, error) {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO job_runs (job_name, scope, account, started_at, meta_json)
VALUES (?,?,?,?,?)
`, jobName, scope, nullString(account), s.timestamp(), metaJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishJobRun 记录执行结果；meta 为空时保留开始时写入的值
func (s *Store) FinishJobRun(ctx context.Context, runID int64, ok bool, errMsg string, meta map[string]any) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
UPDATE job_runs
SET finished_at=?, ok=?, error=?, meta_json=COALESCE(?, meta_json)
WHERE id=?
`, s.timestamp(), boolToInt(ok), nullString(errMsg), metaJSON, runID)
	return err
}

// ListJobRuns 最近的执行记录
func (s *Store) ListJobRuns(ctx context.Context, limit int) ([]domain.JobRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, job_name, scope, account, started_at, finished_at, ok, error, meta_json
FROM job_runs
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.JobRun
	for rows.Next() {
		j, err := scanJobRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// GetJobRun 按 id 查询
func (s *Store) GetJobRun(ctx context.Context, runID int64) (*domain.JobRun, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, job_name, scope, account, started_at, finished_at, ok, error, meta_json
FROM job_runs
WHERE id=?
`, runID)
	j, err := scanJobRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJobRun(sc scanner) (*domain.JobRun, error) {
	var (
		j          domain.JobRun
		account    sql.NullString
		startedAt  string
		finishedAt sql.NullString
		okVal      sql.NullInt64
		errStr     sql.NullString
		meta       sql.NullString
	)
	if err := sc.Scan(&j.ID, &j.JobName, &j.Scope, &account, &startedAt, &finishedAt, &okVal, &errStr, &meta); err != nil {
		return nil, err
	}
	j.Account = account.String
	j.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			j.FinishedAt = &t
		}
	}
	if okVal.Valid {
		v := okVal.Int64 != 0
		j.OK = &v
	}
	j.Error = errStr.String
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &j.Meta); err != nil {
			return nil, fmt.Errorf("decode job meta %d: %w", j.ID, err)
		}
	}
	return &j, nil
}

func encodeMeta(meta map[string]any) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal job meta: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
