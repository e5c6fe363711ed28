package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskrota/internal/core"
)

const scheduleCols = `id, group_id, title, description, reward, requires_approval, requires_image,
	tags, rules, is_active, start_date, end_date, assignment_mode, fixed_members,
	excluded_members, skip_holidays, delete_incomplete_previous, due_in, created_by,
	created_at, updated_at`

// CreateSchedule validates and inserts a schedule template. Fixed-mode member
// lists are checked against the group's membership; violations are a
// configuration error, they never reach the orchestrator.
func (s *Store) CreateSchedule(ctx context.Context, st *core.ScheduledTask) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := s.checkMembership(ctx, st); err != nil {
		return err
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	rules, err := core.EncodeRules(st.Rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleCols+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		st.ID, st.GroupID, st.Title, st.Description, st.Reward,
		boolInt(st.RequiresApproval), boolInt(st.RequiresImage),
		encodeStrings(st.Tags), string(rules), boolInt(st.IsActive),
		st.StartDate.String(), nullDate(st.EndDate), string(st.AssignmentMode),
		encodeStrings(st.FixedMembers), encodeStrings(st.ExcludedMembers),
		boolInt(st.SkipHolidays), boolInt(st.DeleteIncompletePrevious),
		encodeDuration(st.DueIn), st.CreatedBy, fmtTime(st.CreatedAt), fmtTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// UpdateSchedule replaces the stored template with st (matched by ID).
func (s *Store) UpdateSchedule(ctx context.Context, st *core.ScheduledTask) error {
	if err := st.Validate(); err != nil {
		return err
	}
	if err := s.checkMembership(ctx, st); err != nil {
		return err
	}
	st.UpdatedAt = time.Now().UTC()

	rules, err := core.EncodeRules(st.Rules)
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET
			title=?, description=?, reward=?, requires_approval=?, requires_image=?,
			tags=?, rules=?, is_active=?, start_date=?, end_date=?, assignment_mode=?,
			fixed_members=?, excluded_members=?, skip_holidays=?,
			delete_incomplete_previous=?, due_in=?, updated_at=?
		 WHERE id=?`,
		st.Title, st.Description, st.Reward,
		boolInt(st.RequiresApproval), boolInt(st.RequiresImage),
		encodeStrings(st.Tags), string(rules), boolInt(st.IsActive),
		st.StartDate.String(), nullDate(st.EndDate), string(st.AssignmentMode),
		encodeStrings(st.FixedMembers), encodeStrings(st.ExcludedMembers),
		boolInt(st.SkipHolidays), boolInt(st.DeleteIncompletePrevious),
		encodeDuration(st.DueIn), fmtTime(st.UpdatedAt), st.ID,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return requireRow(res, core.ErrScheduleNotFound)
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return requireRow(res, core.ErrScheduleNotFound)
}

// PauseSchedule deactivates a schedule without touching its definition.
func (s *Store) PauseSchedule(ctx context.Context, id string) error {
	return s.setActive(ctx, id, false)
}

// ResumeSchedule reactivates a paused schedule.
func (s *Store) ResumeSchedule(ctx context.Context, id string) error {
	return s.setActive(ctx, id, true)
}

func (s *Store) setActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET is_active=?, updated_at=? WHERE id=?`,
		boolInt(active), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set schedule active: %w", err)
	}
	return requireRow(res, core.ErrScheduleNotFound)
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*core.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id=?`, id)
	st, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrScheduleNotFound
	}
	return st, err
}

// ListRunnable returns the active schedules whose [start_date, end_date]
// window contains d. This is the batch pass's working set; the window and
// activity checks for single runs happen in the engine.
func (s *Store) ListRunnable(ctx context.Context, d core.Date) ([]core.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE is_active=1 AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY created_at, id`,
		d.String(), d.String())
	if err != nil {
		return nil, fmt.Errorf("list runnable: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListSchedulesByGroup returns all of a group's schedules, newest first.
func (s *Store) ListSchedulesByGroup(ctx context.Context, groupID string) ([]core.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules WHERE group_id=? ORDER BY created_at DESC, id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// checkMembership verifies fixed/excluded member ids belong to the group.
func (s *Store) checkMembership(ctx context.Context, st *core.ScheduledTask) error {
	ids := append(append([]string(nil), st.FixedMembers...), st.ExcludedMembers...)
	if len(ids) == 0 {
		return nil
	}
	members, err := s.ActiveMembers(ctx, st.GroupID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(members))
	for _, m := range members {
		known[m.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("%w: member %s does not belong to group %s", core.ErrInvalidSchedule, id, st.GroupID)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*core.ScheduledTask, error) {
	var (
		st                           core.ScheduledTask
		approval, image              int
		tags, rules, fixed, excluded string
		active, skipHol, delPrev     int
		startDate                    string
		endDate                      sql.NullString
		mode, dueIn                  string
		createdAt, updatedAt         string
	)
	err := row.Scan(
		&st.ID, &st.GroupID, &st.Title, &st.Description, &st.Reward, &approval, &image,
		&tags, &rules, &active, &startDate, &endDate, &mode, &fixed,
		&excluded, &skipHol, &delPrev, &dueIn, &st.CreatedBy,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.RequiresApproval = approval != 0
	st.RequiresImage = image != 0
	st.IsActive = active != 0
	st.SkipHolidays = skipHol != 0
	st.DeleteIncompletePrevious = delPrev != 0
	st.AssignmentMode = core.AssignmentMode(mode)

	if st.Tags, err = decodeStrings(tags); err != nil {
		return nil, fmt.Errorf("schedule %s tags: %w", st.ID, err)
	}
	if st.FixedMembers, err = decodeStrings(fixed); err != nil {
		return nil, fmt.Errorf("schedule %s fixed members: %w", st.ID, err)
	}
	if st.ExcludedMembers, err = decodeStrings(excluded); err != nil {
		return nil, fmt.Errorf("schedule %s excluded members: %w", st.ID, err)
	}
	if st.Rules, err = core.ParseRules([]byte(rules)); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", st.ID, err)
	}
	if st.StartDate, err = core.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("schedule %s start date: %w", st.ID, err)
	}
	if st.EndDate, err = scanNullDate(endDate); err != nil {
		return nil, fmt.Errorf("schedule %s end date: %w", st.ID, err)
	}
	if st.DueIn, err = decodeDuration(dueIn); err != nil {
		return nil, fmt.Errorf("schedule %s due offset: %w", st.ID, err)
	}
	if st.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

func collectSchedules(rows *sql.Rows) ([]core.ScheduledTask, error) {
	var out []core.ScheduledTask
	for rows.Next() {
		st, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

func decodeDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return time.ParseDuration(raw)
}
