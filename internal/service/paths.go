package service

import (
	"fmt"
	"path/filepath"

	"github.com/yourorg/botfleet/internal/domain"
)

// tenantDir is the on-disk root for one tenant's provisioned material.
// The id keeps the path stable across username collisions with deleted
// tenants; the username keeps it greppable.
func tenantDir(storageRoot string, t *domain.Tenant) string {
	return filepath.Join(storageRoot, fmt.Sprintf("user_%d_%s", t.ID, t.Username))
}

// botInstanceDir is the working directory a bot process runs in
func botInstanceDir(storageRoot string, t *domain.Tenant, uid string) string {
	return filepath.Join(tenantDir(storageRoot, t), "bots", uid)
}
