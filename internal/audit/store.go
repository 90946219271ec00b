package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/servicedeck/servicedeck/pkg/models"
	"github.com/servicedeck/servicedeck/pkg/plugin"
)

// Filter narrows a List query. Zero values mean "no constraint".
type Filter struct {
	EventType models.AuditEventType
	SubjectID string
	Since     time.Time
	Until     time.Time
}

// entryStore wraps the shared store with audit-specific queries.
type entryStore struct {
	store plugin.Store
}

func (s *entryStore) insert(ctx context.Context, e models.AuditEntry) error {
	_, err := s.store.DB().ExecContext(ctx, `
		INSERT INTO audit_entries (id, timestamp, event_type, operation, subject_id, success, error, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.EventType), e.Operation, e.SubjectID,
		boolToInt(e.Success), e.Error, e.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// list returns entries newest first.
func (s *entryStore) list(ctx context.Context, f Filter, limit, offset int) ([]models.AuditEntry, error) {
	var conds []string
	var args []any
	if f.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, string(f.EventType))
	}
	if f.SubjectID != "" {
		conds = append(conds, "subject_id = ?")
		args = append(args, f.SubjectID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.Until.UTC())
	}

	query := "SELECT id, timestamp, event_type, operation, subject_id, success, error, details FROM audit_entries"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var eventType string
		var success int
		if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &e.Operation,
			&e.SubjectID, &success, &e.Error, &e.Details); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EventType = models.AuditEventType(eventType)
		e.Success = success != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// deleteOlderThan removes entries past the retention horizon and returns
// how many were deleted.
func (s *entryStore) deleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.store.DB().ExecContext(ctx,
		"DELETE FROM audit_entries WHERE timestamp < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}
	return res.RowsAffected()
}

func (s *entryStore) count(ctx context.Context) (int, error) {
	var n int
	err := s.store.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries").Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
