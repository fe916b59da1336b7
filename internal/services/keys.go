package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Lllllllleong/idpflow/internal/apperr"
)

// DefaultUploadPrefix is where uploads land; object-created events outside it are ignored.
const DefaultUploadPrefix = "documents/"

// ObjectKey builds the storage key for an upload: {prefix}{documentId}/{fileName}.
// The ID gets its own path segment so it can be recovered without guessing
// where it ends.
func ObjectKey(prefix, documentID, fileName string) string {
	return prefix + documentID + "/" + fileName
}

// ParseObjectKey recovers the document ID from a key built by ObjectKey.
func ParseObjectKey(prefix, key string) (string, error) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", fmt.Errorf("%w: object %q is outside prefix %q", apperr.ErrFatalParse, key, prefix)
	}
	id, fileName, ok := strings.Cut(rest, "/")
	if !ok || fileName == "" {
		return "", fmt.Errorf("%w: object %q has no document segment", apperr.ErrFatalParse, key)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: object %q: %v", apperr.ErrFatalParse, key, err)
	}
	return parsed.String(), nil
}

// validateFileName rejects names that would break the key layout.
func validateFileName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return apperr.Validation("fileName is required")
	case len(name) > 255:
		return apperr.Validation("fileName is too long")
	case strings.ContainsAny(name, "/\\"), trimmed == ".", trimmed == "..":
		return apperr.Validation("fileName must not contain path separators")
	}
	return nil
}
