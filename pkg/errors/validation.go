package errors

import (
	"strings"
	"unicode"
)

// ValidateTreeID rejects ids the backend can never hold.
func ValidateTreeID(id int64) error {
	if id <= 0 {
		return New(ErrCodeInvalidInput, "tree id must be positive, got %d", id)
	}
	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}
	return nil
}

// ValidatePhotoPath checks a profile photo reference before it is joined to
// a base URL. Absolute URLs and rooted paths are allowed; traversal is not.
func ValidatePhotoPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidInput, "photo path cannot be empty")
	}
	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidInput, "photo path too long (max %d characters)", maxPathLength)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "photo path contains invalid characters")
		}
	}
	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidInput, "photo path cannot contain path traversal sequences (..)")
	}
	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidInput, "photo path cannot contain backslashes")
	}
	return nil
}

// ValidateFilename validates an output filename. It must be a simple
// basename without path components.
func ValidateFilename(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "filename cannot be empty")
	}
	if len(name) > 255 {
		return New(ErrCodeInvalidInput, "filename too long (max 255 characters)")
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return New(ErrCodeInvalidInput, "filename cannot contain path separators")
	}
	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidInput, "filename cannot be a hidden file")
	}
	return nil
}
