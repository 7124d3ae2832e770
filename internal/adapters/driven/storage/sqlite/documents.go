package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, owner_id, name, mime_type, stage, storage_ref, provider_file_id, fields,
	classification, retry_count, extraction_path, paused_reason, failure_reason, created_at, updated_at`

// Save stores or updates a record.
func (s *documentStore) Save(ctx context.Context, rec *domain.DocumentRecord) error {
	if rec == nil || rec.ID == "" {
		return domain.ErrInvalidInput
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}
	classification, err := json.Marshal(rec.Classification)
	if err != nil {
		return fmt.Errorf("marshalling classification: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mime_type = excluded.mime_type,
			stage = excluded.stage,
			storage_ref = excluded.storage_ref,
			provider_file_id = excluded.provider_file_id,
			fields = excluded.fields,
			classification = excluded.classification,
			retry_count = excluded.retry_count,
			extraction_path = excluded.extraction_path,
			paused_reason = excluded.paused_reason,
			failure_reason = excluded.failure_reason,
			updated_at = excluded.updated_at
	`, rec.ID, rec.OwnerID, rec.Name, rec.MIMEType, string(rec.Stage), rec.StorageRef, rec.ProviderFileID,
		string(fields), string(classification), rec.RetryCount, string(rec.ExtractionPath),
		rec.PausedReason, rec.FailureReason, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *documentStore) Get(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// List returns an owner's records oldest first; an empty owner lists all.
func (s *documentStore) List(ctx context.Context, ownerID string) ([]domain.DocumentRecord, error) {
	if ownerID == "" {
		return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at, id`)
	}
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

// ListByStage returns records in any of the given stages.
func (s *documentStore) ListByStage(ctx context.Context, stages ...domain.Stage) ([]domain.DocumentRecord, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	args := make([]any, len(stages))
	for i, stage := range stages {
		args[i] = string(stage)
	}
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents WHERE stage IN (`+placeholders(len(stages))+`)
		ORDER BY updated_at, id`, args...)
}

// Delete removes a record.
func (s *documentStore) Delete(ctx context.Context, id string) error {
	if _, err := s.store.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

func (s *documentStore) query(ctx context.Context, q string, args ...any) ([]domain.DocumentRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func scanDocument(row rowScanner) (*domain.DocumentRecord, error) {
	var rec domain.DocumentRecord
	var stage, path, createdAt, updatedAt string
	var fields, classification sql.NullString
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Name, &rec.MIMEType, &stage, &rec.StorageRef,
		&rec.ProviderFileID, &fields, &classification, &rec.RetryCount, &path,
		&rec.PausedReason, &rec.FailureReason, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	rec.Stage = domain.Stage(stage)
	rec.ExtractionPath = domain.ExtractionPath(path)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)

	if fields.Valid && fields.String != jsonNull {
		if err := json.Unmarshal([]byte(fields.String), &rec.Fields); err != nil {
			return nil, fmt.Errorf("unmarshalling fields: %w", err)
		}
	}
	if classification.Valid && classification.String != jsonNull {
		var c domain.Classification
		if err := json.Unmarshal([]byte(classification.String), &c); err != nil {
			return nil, fmt.Errorf("unmarshalling classification: %w", err)
		}
		rec.Classification = &c
	}
	return &rec, nil
}
