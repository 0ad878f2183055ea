package repository

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
)

// TenantRepository implements domain.TenantRepository over the JSON store
type TenantRepository struct {
	store  *jsonstore.Store
	logger *slog.Logger
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(store *jsonstore.Store, logger *slog.Logger) *TenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantRepository{store: store, logger: logger}
}

// Create inserts a tenant, assigning its ID. Login names are unique.
func (r *TenantRepository) Create(tenant *domain.Tenant) error {
	return mutate(r.store, r.logger, collectionTenants, func(tenants []domain.Tenant) ([]domain.Tenant, error) {
		ids := make([]int64, 0, len(tenants))
		for _, t := range tenants {
			if t.Username == tenant.Username {
				return nil, fmt.Errorf("%w: username %q already taken", domain.ErrInvalidInput, tenant.Username)
			}
			ids = append(ids, t.ID)
		}
		tenant.ID = nextID(ids)
		return append(tenants, *tenant), nil
	})
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(id int64) (*domain.Tenant, error) {
	tenants, err := load[domain.Tenant](r.store, r.logger, collectionTenants)
	if err != nil {
		return nil, err
	}
	for i := range tenants {
		if tenants[i].ID == id {
			return &tenants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: tenant %d", domain.ErrNotFound, id)
}

// GetByUsername retrieves a tenant by login name
func (r *TenantRepository) GetByUsername(username string) (*domain.Tenant, error) {
	tenants, err := load[domain.Tenant](r.store, r.logger, collectionTenants)
	if err != nil {
		return nil, err
	}
	for i := range tenants {
		if tenants[i].Username == username {
			return &tenants[i], nil
		}
	}
	return nil, fmt.Errorf("%w: tenant %q", domain.ErrNotFound, username)
}

// Update replaces the stored record matching the tenant's ID
func (r *TenantRepository) Update(tenant *domain.Tenant) error {
	return mutate(r.store, r.logger, collectionTenants, func(tenants []domain.Tenant) ([]domain.Tenant, error) {
		for i := range tenants {
			if tenants[i].ID == tenant.ID {
				tenants[i] = *tenant
				return tenants, nil
			}
		}
		return nil, fmt.Errorf("%w: tenant %d", domain.ErrNotFound, tenant.ID)
	})
}

// Delete removes a tenant record
func (r *TenantRepository) Delete(id int64) error {
	return mutate(r.store, r.logger, collectionTenants, func(tenants []domain.Tenant) ([]domain.Tenant, error) {
		out := tenants[:0]
		found := false
		for _, t := range tenants {
			if t.ID == id {
				found = true
				continue
			}
			out = append(out, t)
		}
		if !found {
			return nil, fmt.Errorf("%w: tenant %d", domain.ErrNotFound, id)
		}
		return out, nil
	})
}

// List returns all tenants
func (r *TenantRepository) List() ([]*domain.Tenant, error) {
	tenants, err := load[domain.Tenant](r.store, r.logger, collectionTenants)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Tenant, len(tenants))
	for i := range tenants {
		out[i] = &tenants[i]
	}
	return out, nil
}
