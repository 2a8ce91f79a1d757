package errors

import (
	"strings"
	"unicode"
)

// maxModelIDLength bounds model ids accepted from request paths.
const maxModelIDLength = 512

// ValidateModelID checks a model id taken from user input (URL paths,
// command arguments). Metadata exports use ids such as
// "model.jaffle_shop.orders" or plain integers, so only obviously broken
// values are rejected:
//   - empty or whitespace-only ids
//   - the literal "NaN" and "undefined" sent by broken clients
//   - control characters
//   - ids longer than 512 bytes
func ValidateModelID(id string) error {
	if strings.TrimSpace(id) == "" {
		return New(ErrCodeInvalidModelID, "model id cannot be empty")
	}
	if id == "NaN" || id == "undefined" {
		return New(ErrCodeInvalidModelID, "invalid model id %q", id)
	}
	if len(id) > maxModelIDLength {
		return New(ErrCodeInvalidModelID, "model id too long (max %d characters)", maxModelIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidModelID, "model id contains invalid control characters")
		}
	}
	return nil
}

// ValidateColumnName checks a column name used in a related-columns query.
func ValidateColumnName(name string) error {
	if strings.TrimSpace(name) == "" {
		return New(ErrCodeInvalidInput, "column name cannot be empty")
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "column name contains invalid control characters")
		}
	}
	return nil
}

// ValidatePath validates a local file path given on the command line or in
// the config file.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
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

// ValidateOneOf checks that value is one of allowed, returning code on
// failure.
func ValidateOneOf(code Code, field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return New(code, "invalid %s: %q (must be one of: %s)", field, value, strings.Join(allowed, ", "))
}
