package security

import (
	"fmt"
	"log/slog"
)

// Role represents a tenant role
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleTenant Role = "tenant"
)

// Permission represents an action permission
type Permission string

const (
	PermCreateBot     Permission = "create_bot"
	PermControlBot    Permission = "control_bot"
	PermDeleteBot     Permission = "delete_bot"
	PermListBots      Permission = "list_bots"
	PermManageRoster  Permission = "manage_roster"
	PermManageTenants Permission = "manage_tenants"
	PermManageLinks   Permission = "manage_links"
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermCreateBot,
		PermControlBot,
		PermDeleteBot,
		PermListBots,
		PermManageRoster,
		PermManageTenants,
		PermManageLinks,
	},
	RoleTenant: {
		PermCreateBot,
		PermControlBot,
		PermDeleteBot,
		PermListBots,
		PermManageRoster,
	},
}

// RoleFor maps the admin flag carried in token claims to a role
func RoleFor(isAdmin bool) Role {
	if isAdmin {
		return RoleAdmin
	}
	return RoleTenant
}

// AuthorizationService handles authorization checks
type AuthorizationService struct {
	logger *slog.Logger
}

// NewAuthorizationService creates a new authorization service
func NewAuthorizationService(logger *slog.Logger) *AuthorizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthorizationService{
		logger: logger,
	}
}

// HasPermission checks if a role has a specific permission
func (as *AuthorizationService) HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// ValidatePermission validates that a role has a specific permission
func (as *AuthorizationService) ValidatePermission(role Role, permission Permission) error {
	if !as.HasPermission(role, permission) {
		as.logger.Warn("permission denied",
			slog.String("role", string(role)),
			slog.String("permission", string(permission)),
		)
		return fmt.Errorf("permission denied: %s role cannot %s", role, permission)
	}
	return nil
}
