package image

import (
	"fmt"
	"strings"

	"github.com/imgvault/imgvault/pkg/types/errs"
)

const keyPrefix = "images"

// SanitizeName reduces a requested image name to a conservative
// storage-safe alphabet. Names that survive sanitization map one-to-one
// onto storage keys, so two distinct live names can never share a key.
func SanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: image name must not be empty", errs.ErrInvalidInput)
	}

	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z',
			ch >= 'A' && ch <= 'Z',
			ch >= '0' && ch <= '9',
			ch == '-', ch == '_':
			b.WriteRune(ch)
		}
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("%w: image name contains no allowed characters", errs.ErrInvalidInput)
	}

	return b.String(), nil
}

// NormalizeExtension lowercases the extension and strips the leading dot.
func NormalizeExtension(ext string) (string, error) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: file extension is required", errs.ErrInvalidInput)
	}

	return ext, nil
}

// DeriveKey maps a sanitized name and normalized extension to the blob
// storage key. Pure and deterministic; both inputs come from the
// sanitizers above, so keys for distinct (name, extension) pairs never
// collide.
func DeriveKey(name, extension string) string {
	return fmt.Sprintf("%s/%s.%s", keyPrefix, name, extension)
}
