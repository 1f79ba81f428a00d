package kb

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	slugPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)
	unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

const (
	minQueryLength  = 3
	maxQueryLength  = 1000
	maxFilenameSize = 100
)

// ValidateIdentifiers checks tenant and customer ID formats. An empty
// customerID means the customer scope is absent and is not an error.
func ValidateIdentifiers(tenantID, customerID string) error {
	if !slugPattern.MatchString(tenantID) {
		return &ValidationError{
			Kind:    InvalidTenantFormat,
			Message: "tenant ID must match ^[A-Za-z0-9_-]{1,20}$",
		}
	}
	if customerID != "" && !slugPattern.MatchString(customerID) {
		return &ValidationError{
			Kind:    InvalidCustomerFormat,
			Message: "customer ID must match ^[A-Za-z0-9_-]{1,20}$",
		}
	}
	return nil
}

// SanitizeQuery trims and bounds the query text, then HTML-escapes it. The
// escaped form is the only form that may reach prompts, logs or the
// isolation filter.
func SanitizeQuery(query string) (string, error) {
	trimmed := strings.TrimSpace(query)
	// Bounds are in characters, not bytes
	length := utf8.RuneCountInString(trimmed)
	if length < minQueryLength {
		return "", &ValidationError{
			Kind:    QueryTooShort,
			Message: fmt.Sprintf("query must be at least %d characters", minQueryLength),
		}
	}
	if length > maxQueryLength {
		return "", &ValidationError{
			Kind:    QueryTooLong,
			Message: fmt.Sprintf("query too long (max %d characters)", maxQueryLength),
		}
	}
	return html.EscapeString(trimmed), nil
}

// SanitizeFilename replaces unsafe characters and bounds the length so the
// name can be embedded in an object storage key.
func SanitizeFilename(name string) string {
	safe := unsafeFileChars.ReplaceAllString(name, "_")
	if len(safe) > maxFilenameSize {
		safe = safe[:maxFilenameSize]
	}
	return safe
}
