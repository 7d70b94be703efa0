package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/TEENet-io/inscription-bridge/database"
	"github.com/TEENet-io/inscription-bridge/errs"
)

var (
	taskTable = `CREATE TABLE IF NOT EXISTS task (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind VARCHAR(24) NOT NULL,
		payload BLOB NOT NULL,
		status VARCHAR(16) NOT NULL,
		failures INTEGER NOT NULL DEFAULT 0,
		infinite BOOLEAN NOT NULL,
		max_retries INTEGER NOT NULL,
		backoff_exp BOOLEAN NOT NULL,
		backoff_secs INTEGER NOT NULL,
		backoff_mult INTEGER NOT NULL,
		scheduled_at INTEGER NOT NULL,
		last_error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_task_due ON task (status, scheduled_at, id);`

	taskColumns = " id, kind, payload, status, failures, infinite, max_retries, backoff_exp, backoff_secs, backoff_mult, scheduled_at, last_error "
)

// TaskSQLiteStorage persists tasks in the sqlite `task` table. Scheduled
// times are unix milliseconds.
type TaskSQLiteStorage struct {
	stmtCache *database.StmtCache
}

func NewTaskSQLiteStorage(db *sql.DB) (*TaskSQLiteStorage, error) {
	if _, err := db.Exec(taskTable); err != nil {
		return nil, errors.Wrap(err, "failed to create task table")
	}
	return &TaskSQLiteStorage{stmtCache: database.NewStmtCache(db)}, nil
}

func (s *TaskSQLiteStorage) Close() {
	s.stmtCache.Clear()
}

// Insert stores the tasks in one transaction and fills in their ids.
func (s *TaskSQLiteStorage) Insert(ctx context.Context, tasks []*Task) ([]uint32, error) {
	ids := make([]uint32, 0, len(tasks))
	err := s.stmtCache.WithTx(ctx, func(tx *database.Tx) error {
		for _, t := range tasks {
			if err := t.Payload.Validate(); err != nil {
				return err
			}
			payload, err := json.Marshal(t.Payload)
			if err != nil {
				return errors.WithStack(err)
			}
			res, err := tx.Exec(`INSERT INTO task (kind, payload, status, failures, infinite, max_retries, backoff_exp, backoff_secs, backoff_mult, scheduled_at, last_error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.Payload.Kind, payload, Pending, t.Failures,
				t.Retry.Infinite, t.Retry.MaxRetries,
				t.Backoff.Exponential, t.Backoff.Secs, t.Backoff.Multiplier,
				t.ScheduledAt.UnixMilli(), t.LastError)
			if err != nil {
				return errors.Wrap(err, "failed to insert task")
			}
			id, err := res.LastInsertId()
			if err != nil {
				return errors.WithStack(err)
			}
			if id <= 0 || id > math.MaxUint32 {
				return errors.Newf("task id space exhausted: %d", id)
			}
			ids = append(ids, uint32(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, t := range tasks {
		t.ID = ids[i]
		t.Status = Pending
	}
	return ids, nil
}

// Due returns the pending tasks scheduled at or before now, by ascending id.
// Records that cannot be decoded are skipped and reported as CorruptRecord
// next to the decoded tasks.
func (s *TaskSQLiteStorage) Due(ctx context.Context, now time.Time) ([]*Task, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT` + taskColumns + `FROM task WHERE status = ? AND scheduled_at <= ? ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, stmt, Pending, now.UnixMilli())
}

// Unfinished returns the pending and running tasks by ascending id.
func (s *TaskSQLiteStorage) Unfinished(ctx context.Context) ([]*Task, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT` + taskColumns + `FROM task WHERE status IN (?, ?) ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, stmt, Pending, Running)
}

func (s *TaskSQLiteStorage) Get(ctx context.Context, id uint32) (*Task, bool, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT` + taskColumns + `FROM task WHERE id = ?`)
	if err != nil {
		return nil, false, err
	}
	t, err := scanTask(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

// CountUnfinished counts pending or running tasks of kind.
func (s *TaskSQLiteStorage) CountUnfinished(ctx context.Context, kind Kind) (int, error) {
	stmt, err := s.stmtCache.Prepare(`SELECT COUNT(*) FROM task WHERE kind = ? AND status IN (?, ?)`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := stmt.QueryRowContext(ctx, kind, Pending, Running).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count tasks")
	}
	return n, nil
}

func (s *TaskSQLiteStorage) Update(ctx context.Context, t *Task) error {
	stmt, err := s.stmtCache.Prepare(`UPDATE task SET status = ?, failures = ?, scheduled_at = ?, last_error = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, t.Status, t.Failures, t.ScheduledAt.UnixMilli(), t.LastError, t.ID)
	return errors.Wrapf(err, "failed to update task #%d", t.ID)
}

func (s *TaskSQLiteStorage) Delete(ctx context.Context, id uint32) error {
	stmt, err := s.stmtCache.Prepare(`DELETE FROM task WHERE id = ?`)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, id)
	return errors.Wrapf(err, "failed to delete task #%d", id)
}

// ResetRunning puts tasks left running by a crashed process back to pending.
func (s *TaskSQLiteStorage) ResetRunning(ctx context.Context) (int64, error) {
	stmt, err := s.stmtCache.Prepare(`UPDATE task SET status = ? WHERE status = ?`)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, Pending, Running)
	if err != nil {
		return 0, errors.Wrap(err, "failed to reset running tasks")
	}
	return res.RowsAffected()
}

func (s *TaskSQLiteStorage) query(ctx context.Context, stmt *sql.Stmt, args ...any) ([]*Task, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tasks")
	}
	defer rows.Close()

	var (
		out     []*Task
		corrupt error
	)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			if errors.Is(err, errs.CorruptRecord) {
				corrupt = errors.CombineErrors(corrupt, err)
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, corrupt
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*Task, error) {
	var (
		t           Task
		kind        string
		payload     []byte
		status      string
		scheduledAt int64
	)
	err := sc.Scan(&t.ID, &kind, &payload, &status, &t.Failures,
		&t.Retry.Infinite, &t.Retry.MaxRetries,
		&t.Backoff.Exponential, &t.Backoff.Secs, &t.Backoff.Multiplier,
		&scheduledAt, &t.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan task")
	}

	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "task #%d payload", t.ID), errs.CorruptRecord)
	}
	if err := t.Payload.Validate(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "task #%d payload", t.ID), errs.CorruptRecord)
	}
	if string(t.Payload.Kind) != kind {
		return nil, errors.Mark(errors.Newf("task #%d kind column %q does not match payload %q", t.ID, kind, t.Payload.Kind), errs.CorruptRecord)
	}
	switch Status(status) {
	case Pending, Running, Completed, Failed, TimeoutOrPanic:
		t.Status = Status(status)
	default:
		return nil, errors.Mark(errors.Newf("task #%d has unknown status %q", t.ID, status), errs.CorruptRecord)
	}
	t.ScheduledAt = time.UnixMilli(scheduledAt)
	return &t, nil
}
