package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskrota/internal/core"
)

func (s *Store) CreateGroup(ctx context.Context, g *core.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_at) VALUES (?,?,?)`,
		g.ID, g.Name, fmtTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*core.Group, error) {
	var (
		g         core.Group
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id=?`, id).
		Scan(&g.ID, &g.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) CreateMember(ctx context.Context, m *core.Member) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, group_id, display_name, is_active, created_at)
		 VALUES (?,?,?,?,?)`,
		m.ID, m.GroupID, m.DisplayName, boolInt(m.IsActive), fmtTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// SetMemberActive toggles membership without deleting history.
func (s *Store) SetMemberActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE members SET is_active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("set member active: %w", err)
	}
	return requireRow(res, errors.New("member not found"))
}

// ActiveMembers returns a group's current active members; the assignment
// resolver's candidate pool.
func (s *Store) ActiveMembers(ctx context.Context, groupID string) ([]core.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, display_name, is_active, created_at
		 FROM members WHERE group_id=? AND is_active=1 ORDER BY created_at, id`,
		groupID)
	if err != nil {
		return nil, fmt.Errorf("active members: %w", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		var (
			m         core.Member
			active    int
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.GroupID, &m.DisplayName, &active, &createdAt); err != nil {
			return nil, err
		}
		m.IsActive = active != 0
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
