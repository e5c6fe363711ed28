package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskrota/internal/core"
)

const executionCols = `id, schedule_id, occurrence_date, status, created_task_id,
	assigned_member_id, note, error, created_at`

// HasSucceeded reports whether a success record already exists for the
// (schedule, occurrence date) pair. This is the read side of the idempotency
// gate; the write side is the unique index hit in AppendExecution.
func (s *Store) HasSucceeded(ctx context.Context, scheduleID string, d core.Date) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM executions WHERE schedule_id=? AND occurrence_date=? AND status=? LIMIT 1`,
		scheduleID, d.String(), string(core.ExecutionSuccess)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has succeeded: %w", err)
	}
	return true, nil
}

// AppendExecution appends one evaluation outcome. Records are never mutated
// afterwards. A success record that collides with an existing one for the
// same occurrence returns core.ErrAlreadyExecuted.
func (s *Store) AppendExecution(ctx context.Context, rec *core.ExecutionRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return appendExecutionTx(ctx, tx, rec)
	})
}

func appendExecutionTx(ctx context.Context, tx *sql.Tx, rec *core.ExecutionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO executions (schedule_id, occurrence_date, status, created_task_id,
			assigned_member_id, note, error, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		rec.ScheduleID, rec.OccurrenceDate.String(), string(rec.Status),
		nullStr(rec.CreatedTaskID), nullStr(rec.AssignedMemberID),
		nullStr(rec.Note), nullStr(rec.Error), fmtTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrAlreadyExecuted
		}
		return fmt.Errorf("append execution: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// History returns a schedule's execution records, most recent first. A limit
// of 0 means no limit.
func (s *Store) History(ctx context.Context, scheduleID string, limit int) ([]core.ExecutionRecord, error) {
	q := `SELECT ` + executionCols + ` FROM executions WHERE schedule_id=? ORDER BY id DESC`
	args := []any{scheduleID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []core.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// LastSuccessful returns the most recent success record that created a task,
// or nil when there is none.
func (s *Store) LastSuccessful(ctx context.Context, scheduleID string) (*core.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionCols+` FROM executions
		 WHERE schedule_id=? AND status=? AND created_task_id IS NOT NULL
		 ORDER BY id DESC LIMIT 1`,
		scheduleID, string(core.ExecutionSuccess))
	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last successful: %w", err)
	}
	return rec, nil
}

func scanExecution(row rowScanner) (*core.ExecutionRecord, error) {
	var (
		rec                           core.ExecutionRecord
		occ, createdAt                string
		status                        string
		taskID, memberID, note, errMsg sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.ScheduleID, &occ, &status, &taskID, &memberID, &note, &errMsg, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.Status = core.ExecutionStatus(status)
	rec.CreatedTaskID = taskID.String
	rec.AssignedMemberID = memberID.String
	rec.Note = note.String
	rec.Error = errMsg.String
	if rec.OccurrenceDate, err = core.ParseDate(occ); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
