// Package artifacts holds helpers shared by the raw-artifact stores.
//
// Subpackages:
//   - fs: artifacts under a local directory (default ~/.caseflow/artifacts)
//   - gcs: artifacts in a Google Cloud Storage bucket
package artifacts

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/caseflow/internal/core/domain"
)

// NewRef builds the reference "<owner>/<uuid>/<name>" for a new artifact.
// The name is reduced to its base and stripped of separators.
func NewRef(ownerID, name string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, `/\`) || strings.Contains(ownerID, "..") {
		return "", fmt.Errorf("%w: artifact owner %q", domain.ErrInvalidInput, ownerID)
	}
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		base = "artifact"
	}
	return ownerID + "/" + uuid.NewString() + "/" + base, nil
}

// CheckRef rejects references that could escape the store's root.
func CheckRef(ref string) error {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, `\`) {
		return fmt.Errorf("%w: artifact ref %q", domain.ErrInvalidInput, ref)
	}
	for _, part := range strings.Split(ref, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: artifact ref %q", domain.ErrInvalidInput, ref)
		}
	}
	return nil
}
