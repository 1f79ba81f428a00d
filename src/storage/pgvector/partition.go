package pgvector

import (
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	"cloudkb/src/core/kb"
)

var tenantSlug = regexp.MustCompile(`^[A-Za-z0-9_-]{1,20}$`)

// partitionName maps a validated tenant slug to its vector table name. This
// is the only place in the repository where a tenant identity becomes a SQL
// identifier; the slug check guards the interpolation done by callers.
func partitionName(tenantID string) (string, error) {
	if !tenantSlug.MatchString(tenantID) {
		return "", fmt.Errorf("%w: invalid tenant slug %q", kb.ErrTenantNotConfigured, tenantID)
	}
	return "kb_vectors_" + tenantID, nil
}

// partitionTable returns the tenant's table as a quoted identifier ready for
// statement interpolation. Quoting keeps slugs containing `-` legal SQL.
func partitionTable(tenantID string) (string, error) {
	name, err := partitionName(tenantID)
	if err != nil {
		return "", err
	}
	return pgx.Identifier{name}.Sanitize(), nil
}
