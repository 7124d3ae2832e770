package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// defaultFailureLimit caps List when no limit is given.
const defaultFailureLimit = 100

// failureStore implements driven.DeliveryFailureStore.
type failureStore struct {
	store *Store
}

var _ driven.DeliveryFailureStore = (*failureStore)(nil)

const failureColumns = `id, event_type, subscriber, pack_id, envelope, error, failed_at`

// Record stores a failure.
func (s *failureStore) Record(ctx context.Context, f *domain.DeliveryFailure) error {
	if f == nil || f.ID == "" {
		return domain.ErrInvalidInput
	}
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO delivery_failures (`+failureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, string(f.EventType), f.Subscriber, f.PackID, f.Envelope, f.Error, formatTime(f.FailedAt))
	if err != nil {
		return fmt.Errorf("recording delivery failure: %w", err)
	}
	return nil
}

// Get retrieves a failure by ID.
func (s *failureStore) Get(ctx context.Context, id string) (*domain.DeliveryFailure, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+failureColumns+` FROM delivery_failures WHERE id = ?`, id)
	return scanFailure(row)
}

// List returns the most recent failures, newest first.
func (s *failureStore) List(ctx context.Context, limit int) ([]domain.DeliveryFailure, error) {
	if limit <= 0 {
		limit = defaultFailureLimit
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+failureColumns+` FROM delivery_failures ORDER BY failed_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying delivery failures: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryFailure //nolint:prealloc // size unknown from query
	for rows.Next() {
		f, err := scanFailure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery failures: %w", err)
	}
	return out, nil
}

// Delete removes a failure.
func (s *failureStore) Delete(ctx context.Context, id string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM delivery_failures WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting delivery failure: %w", err)
	}
	return nil
}

func scanFailure(row rowScanner) (*domain.DeliveryFailure, error) {
	var f domain.DeliveryFailure
	var eventType, failedAt string
	if err := row.Scan(&f.ID, &eventType, &f.Subscriber, &f.PackID, &f.Envelope, &f.Error, &failedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning delivery failure: %w", err)
	}
	f.EventType = domain.EventType(eventType)
	f.FailedAt = parseTime(failedAt)
	return &f, nil
}
