package kb

import (
	"fmt"
	"strings"
)

// blockedConfidence is the static score attached to isolation responses so
// they remain auditable without looking like retrieval output.
const blockedConfidence = 0.99

// IsolationVerdict is the outcome of the cross-tenant filter
type IsolationVerdict struct {
	Blocked     bool
	OtherTenant string
}

// CheckIsolation inspects a sanitized query for lexical references to other
// known tenants. This is defense in depth on top of partition scoping: a
// blocked verdict means retrieval must be skipped entirely.
func CheckIsolation(tenantID, sanitizedQuery string, knownTenants []string) IsolationVerdict {
	lowered := strings.ToLower(sanitizedQuery)
	self := strings.ToLower(tenantID)

	for _, other := range knownTenants {
		candidate := strings.ToLower(other)
		if candidate == self {
			continue
		}
		if strings.Contains(lowered, candidate) {
			return IsolationVerdict{Blocked: true, OtherTenant: other}
		}
	}
	return IsolationVerdict{}
}

// BlockedAnswer is the templated privacy-preserving response returned instead
// of performing a search.
func BlockedAnswer(tenantID string) Answer {
	return Answer{
		Answer: fmt.Sprintf(
			"Information about other organizations is not available. This knowledge base only contains information about %s.",
			tenantID,
		),
		SourcesCount:     0,
		ConfidenceScores: []float32{blockedConfidence},
	}
}
