package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// timelineStore implements driven.TimelineStore.
type timelineStore struct {
	store *Store
}

var _ driven.TimelineStore = (*timelineStore)(nil)

// Add stores entries in one transaction, replacing any with the same ID.
func (s *timelineStore) Add(ctx context.Context, entries []domain.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO timeline_entries (id, user_id, document_id, date, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing timeline insert: %w", err)
		}
		defer stmt.Close()
		for i := range entries {
			e := &entries[i]
			if _, err := stmt.ExecContext(ctx, e.ID, e.UserID, e.DocumentID, formatTime(e.Date),
				e.Description, formatTime(e.CreatedAt)); err != nil {
				return fmt.Errorf("saving timeline entry: %w", err)
			}
		}
		return nil
	})
}

// List returns a user's entries ordered by date.
func (s *timelineStore) List(ctx context.Context, userID string) ([]domain.TimelineEntry, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, document_id, date, description, created_at
		FROM timeline_entries WHERE user_id = ? ORDER BY date, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying timeline: %w", err)
	}
	defer rows.Close()

	var out []domain.TimelineEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.TimelineEntry
		var date, createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.DocumentID, &date, &e.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning timeline entry: %w", err)
		}
		e.Date = parseTime(date)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timeline: %w", err)
	}
	return out, nil
}

// DeleteByDocument removes a document's entries.
func (s *timelineStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM timeline_entries WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting timeline entries: %w", err)
	}
	return nil
}

// violationStore implements driven.ViolationStore.
type violationStore struct {
	store *Store
}

var _ driven.ViolationStore = (*violationStore)(nil)

// Add stores findings in one transaction, replacing any with the same ID.
func (s *violationStore) Add(ctx context.Context, violations []domain.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO violations (id, user_id, document_id, rule, severity, detail, found_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing violation insert: %w", err)
		}
		defer stmt.Close()
		for i := range violations {
			v := &violations[i]
			if _, err := stmt.ExecContext(ctx, v.ID, v.UserID, v.DocumentID, v.Rule, v.Severity,
				v.Detail, formatTime(v.FoundAt)); err != nil {
				return fmt.Errorf("saving violation: %w", err)
			}
		}
		return nil
	})
}

// List returns a user's findings, newest first.
func (s *violationStore) List(ctx context.Context, userID string) ([]domain.Violation, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, user_id, document_id, rule, severity, detail, found_at
		FROM violations WHERE user_id = ? ORDER BY found_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying violations: %w", err)
	}
	defer rows.Close()

	var out []domain.Violation //nolint:prealloc // size unknown from query
	for rows.Next() {
		var v domain.Violation
		var foundAt string
		if err := rows.Scan(&v.ID, &v.UserID, &v.DocumentID, &v.Rule, &v.Severity, &v.Detail, &foundAt); err != nil {
			return nil, fmt.Errorf("scanning violation: %w", err)
		}
		v.FoundAt = parseTime(foundAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating violations: %w", err)
	}
	return out, nil
}

// DeleteByDocument removes a document's findings.
func (s *violationStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM violations WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting violations: %w", err)
	}
	return nil
}
