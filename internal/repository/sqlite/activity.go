package sqlite

import (
	"context"
	"fmt"
	"strings"

	"go.trai.ch/zerr"

	"userprofile/internal/domain"
	"userprofile/internal/repository"
)

func (s *Store) RecordOrder(ctx context.Context, a repository.Activity) error {
	a.Kind = repository.ActivityOrder
	return s.recordActivity(ctx, a)
}

func (s *Store) RecordNotification(ctx context.Context, a repository.Activity) error {
	a.Kind = repository.ActivityNotification
	return s.recordActivity(ctx, a)
}

func (s *Store) recordActivity(ctx context.Context, a repository.Activity) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(a.Ref) == "" || strings.TrimSpace(a.UserID) == "" {
		return zerr.With(zerr.Wrap(domain.ErrInvalidEvent, "activity needs ref and user id"), "kind", string(a.Kind))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_activity (kind, ref, user_id, status, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(a.Kind), a.Ref, a.UserID, a.Status, a.Detail, toMillis(a.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", a.Kind, err)
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, r repository.AuditRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO audit_log (event_id, actor, action, subject, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Actor, r.Action, r.Subject, r.Detail, toMillis(r.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// Activity returns a user's history, oldest first.
func (s *Store) Activity(ctx context.Context, userID string) ([]repository.Activity, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, ref, user_id, status, detail, occurred_at FROM user_activity
		 WHERE user_id = ? ORDER BY occurred_at, kind, ref`, userID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []repository.Activity
	for rows.Next() {
		var (
			a    repository.Activity
			kind string
			at   int64
		)
		if err := rows.Scan(&kind, &a.Ref, &a.UserID, &a.Status, &a.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Kind, a.OccurredAt = repository.ActivityKind(kind), fromMillis(at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AuditLog returns the newest limit entries, newest first; limit <= 0 means all.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]repository.AuditRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, actor, action, subject, detail, occurred_at FROM audit_log
		 ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []repository.AuditRecord
	for rows.Next() {
		var (
			r  repository.AuditRecord
			at int64
		)
		if err := rows.Scan(&r.ID, &r.Actor, &r.Action, &r.Subject, &r.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.OccurredAt = fromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
