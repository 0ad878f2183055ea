package domain

import "time"

// Tenant represents an account holder who owns bots, subject to a quota
type Tenant struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"` // Unique login name
	PasswordHash string    `json:"password"` // Bcrypt digest (never returned in API)
	MaxBots      int       `json:"max_bots"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expiry_date"`
	IsAdmin      bool      `json:"is_admin"`
	Telegram     string    `json:"telegram,omitempty"` // Operator contact
}

// Expired reports whether the tenant's account has lapsed. Admin tenants
// never expire.
func (t *Tenant) Expired(now time.Time) bool {
	if t.IsAdmin {
		return false
	}
	return now.After(t.ExpiresAt)
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	Create(tenant *Tenant) error
	GetByID(id int64) (*Tenant, error)
	GetByUsername(username string) (*Tenant, error)
	Update(tenant *Tenant) error
	Delete(id int64) error
	List() ([]*Tenant, error)
}
