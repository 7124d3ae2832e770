// Package gcs stores raw artifacts as objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/custodia-labs/caseflow/internal/adapters/driven/artifacts"
	"github.com/custodia-labs/caseflow/internal/core/domain"
	"github.com/custodia-labs/caseflow/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// Config selects the bucket and optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Store writes each artifact to its own object. Objects are created with a
// does-not-exist precondition so a reference is never overwritten.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// New creates a store using application default credentials unless opts
// override them.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket is required", domain.ErrInvalidInput)
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Store{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Close releases the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) objectName(ref string) string {
	if s.prefix == "" {
		return ref
	}
	return s.prefix + "/" + ref
}

// Put uploads data to a new object and returns its reference.
func (s *Store) Put(ctx context.Context, ownerID, name string, data []byte) (string, error) {
	ref, err := artifacts.NewRef(ownerID, name)
	if err != nil {
		return "", err
	}
	w := s.bucket.Object(s.objectName(ref)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", classify("writing artifact", err)
	}
	if err := w.Close(); err != nil {
		return "", classify("finalising artifact", err)
	}
	return ref, nil
}

// Get downloads the object behind ref.
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := artifacts.CheckRef(ref); err != nil {
		return nil, err
	}
	r, err := s.bucket.Object(s.objectName(ref)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify("opening artifact", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, classify("reading artifact", err)
	}
	return data, nil
}

// Delete removes the object. A missing object is not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := artifacts.CheckRef(ref); err != nil {
		return err
	}
	err := s.bucket.Object(s.objectName(ref)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return classify("deleting artifact", err)
	}
	return nil
}

// classify marks storage failures as transient so the pipeline retries them.
func classify(op string, err error) error {
	return domain.WrapError(domain.KindTransientProvider, err, op)
}
