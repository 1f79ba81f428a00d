package kb

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable indicates the embedding service failed after retries
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
	// ErrStoreUnavailable indicates a transient vector store failure
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrTenantNotConfigured indicates no partition or storage exists for the tenant
	ErrTenantNotConfigured = errors.New("tenant not configured")
	// ErrDimensionMismatch indicates an embedding does not match the configured dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrSchemaMismatch indicates a malformed vector partition
	ErrSchemaMismatch = errors.New("vector partition schema mismatch")
)

// ValidationKind identifies which validation rule a request violated
type ValidationKind string

const (
	InvalidTenantFormat   ValidationKind = "INVALID_TENANT_FORMAT"
	InvalidCustomerFormat ValidationKind = "INVALID_CUSTOMER_FORMAT"
	QueryTooShort         ValidationKind = "QUERY_TOO_SHORT"
	QueryTooLong          ValidationKind = "QUERY_TOO_LONG"
)

// ValidationError is always the caller's fault and is never retried
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// AsValidationError returns the wrapped ValidationError, if any
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
