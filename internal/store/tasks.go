package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskrota/internal/core"
)

const taskCols = `id, group_id, schedule_id, title, description, reward, requires_approval,
	requires_image, tags, assigned_member_id, assigned_by, due_at, completed_at,
	deleted_at, created_at`

// MaterializeOccurrence atomically commits one occurrence: the success
// record, the materialized task rows, and (optionally) the soft-deletion of
// the schedule's previous incomplete tasks.
//
// The success record is inserted first so a concurrent pass fails fast on
// the unique index; in that case nothing else is written and
// core.ErrAlreadyExecuted is returned.
func (s *Store) MaterializeOccurrence(ctx context.Context, rec *core.ExecutionRecord, tasks []*core.Task, deleteIncompletePrevious bool) error {
	if len(tasks) == 0 {
		return errors.New("materialize: no tasks to create")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rec.Status = core.ExecutionSuccess
		if err := appendExecutionTx(ctx, tx, rec); err != nil {
			return err
		}
		if deleteIncompletePrevious {
			if _, err := softDeleteIncompleteTx(ctx, tx, rec.ScheduleID, time.Now().UTC()); err != nil {
				return err
			}
		}
		for _, t := range tasks {
			if err := insertTaskTx(ctx, tx, t); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateTask inserts a single task outside of an occurrence (ad hoc use and
// fixtures).
func (s *Store) CreateTask(ctx context.Context, t *core.Task) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertTaskTx(ctx, tx, t)
	})
}

func insertTaskTx(ctx context.Context, tx *sql.Tx, t *core.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.GroupID, nullStr(t.ScheduleID), t.Title, t.Description, t.Reward,
		boolInt(t.RequiresApproval), boolInt(t.RequiresImage), encodeStrings(t.Tags),
		t.AssignedMemberID, t.AssignedBy, nullTime(t.DueAt), nullTime(t.CompletedAt),
		nullTime(t.DeletedAt), fmtTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// softDeleteIncompleteTx soft-deletes every still-open task of a schedule.
// The WHERE clause is self-guarding: completed or already-deleted tasks are
// left untouched.
func softDeleteIncompleteTx(ctx context.Context, tx *sql.Tx, scheduleID string, at time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET deleted_at=?
		 WHERE schedule_id=? AND completed_at IS NULL AND deleted_at IS NULL`,
		fmtTime(at), scheduleID)
	if err != nil {
		return 0, fmt.Errorf("soft delete incomplete: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) GetTask(ctx context.Context, id string) (*core.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrTaskNotFound
	}
	return t, err
}

// CompleteTask marks a task finished at the given instant.
func (s *Store) CompleteTask(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed_at=? WHERE id=? AND deleted_at IS NULL`,
		fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return requireRow(res, core.ErrTaskNotFound)
}

// TasksBySchedule returns a schedule's materialized tasks, newest first,
// including soft-deleted ones.
func (s *Store) TasksBySchedule(ctx context.Context, scheduleID string) ([]core.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE schedule_id=? ORDER BY created_at DESC, id`,
		scheduleID)
	if err != nil {
		return nil, fmt.Errorf("tasks by schedule: %w", err)
	}
	defer rows.Close()

	var out []core.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (*core.Task, error) {
	var (
		t                         core.Task
		scheduleID                sql.NullString
		approval, image           int
		tags                      string
		dueAt, doneAt, deletedAt  sql.NullString
		createdAt                 string
	)
	err := row.Scan(&t.ID, &t.GroupID, &scheduleID, &t.Title, &t.Description, &t.Reward,
		&approval, &image, &tags, &t.AssignedMemberID, &t.AssignedBy,
		&dueAt, &doneAt, &deletedAt, &createdAt)
	if err != nil {
		return nil, err
	}
	t.ScheduleID = scheduleID.String
	t.RequiresApproval = approval != 0
	t.RequiresImage = image != 0
	if t.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("task %s tags: %w", t.ID, err)
	}
	if t.DueAt, err = scanNullTime(dueAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = scanNullTime(doneAt); err != nil {
		return nil, err
	}
	if t.DeletedAt, err = scanNullTime(deletedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
