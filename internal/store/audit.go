package store

import (
	"context"
	"time"
)

// AuditEntry records an operator action (manual runs, schedule mutations).
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time
	Actor  string
	Action string
	Target string
	Detail string
}

func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (at, actor, action, target, detail) VALUES (?,?,?,?,?)`,
		fmtTime(e.At), e.Actor, e.Action, e.Target, nullStr(e.Detail),
	)
	return err
}
