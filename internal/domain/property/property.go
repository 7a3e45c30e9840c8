// Package property holds the minimal slice of the property catalog the
// ledger core depends on: existence checks for recompute validation and
// enumeration of active properties for scheduled sweeps. Full property
// management lives in the product CRUD service.
package property

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stayops/backend/internal/domain/shared"
)

// Property is one operated unit (hotel, hostel, guest house) of a tenant
type Property struct {
	shared.TenantAggregateRoot
	Name   string
	Code   string
	Active bool
}

// NewProperty creates an active property
func NewProperty(tenantID uuid.UUID, name, code string) (*Property, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Property name cannot be empty")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.NewDomainError("INVALID_CODE", "Property code cannot be empty")
	}
	return &Property{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		Code:                code,
		Active:              true,
	}, nil
}

// Deactivate removes the property from scheduled sweeps and new bookings
func (p *Property) Deactivate() {
	p.Active = false
	p.UpdatedAt = time.Now()
}

// Repository defines persistence for properties
type Repository interface {
	// FindByIDForTenant finds a property by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Property, error)

	// ExistsForTenant reports whether an active property exists
	ExistsForTenant(ctx context.Context, tenantID, id uuid.UUID) (bool, error)

	// ListActive returns every active property across all tenants, for
	// maintenance sweeps
	ListActive(ctx context.Context) ([]Property, error)

	// Save creates or updates a property
	Save(ctx context.Context, p *Property) error
}
