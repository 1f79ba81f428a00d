package kb

import "fmt"

// TenantRegistry holds the deploy-time tenant allow-list and is the single
// place where a tenant identity becomes a storage bucket reference.
type TenantRegistry struct {
	tenants        []string
	bucketTemplate string
}

// NewTenantRegistry creates a registry from the configured allow-list and a
// bucket name template containing one %s placeholder for the tenant slug.
func NewTenantRegistry(tenants []string, bucketTemplate string) *TenantRegistry {
	return &TenantRegistry{
		tenants:        tenants,
		bucketTemplate: bucketTemplate,
	}
}

// Known returns the allow-listed tenant slugs
func (r *TenantRegistry) Known() []string {
	return r.tenants
}

// IsKnown reports whether the tenant is on the allow-list
func (r *TenantRegistry) IsKnown(tenantID string) bool {
	for _, t := range r.tenants {
		if t == tenantID {
			return true
		}
	}
	return false
}

// Bucket resolves the object storage bucket for a tenant. The tenant must
// have passed format validation and be on the allow-list.
func (r *TenantRegistry) Bucket(tenantID string) (string, error) {
	if !r.IsKnown(tenantID) {
		return "", fmt.Errorf("%w: %s", ErrTenantNotConfigured, tenantID)
	}
	return fmt.Sprintf(r.bucketTemplate, tenantID), nil
}
