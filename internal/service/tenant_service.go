package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yourorg/botfleet/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// adminAccountYears is how far in the future bootstrap admin accounts
// expire. Admins never actually expire, the date just keeps the record
// shaped like every other tenant.
const adminAccountYears = 100

// TenantService manages tenant accounts and their cascade teardown
type TenantService struct {
	tenants     domain.TenantRepository
	bots        domain.BotRepository
	players     domain.PlayerRepository
	supervisor  domain.ProcessSupervisor
	provisioner domain.TemplateProvisioner
	storageRoot string
	logger      *slog.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	tenants domain.TenantRepository,
	bots domain.BotRepository,
	players domain.PlayerRepository,
	supervisor domain.ProcessSupervisor,
	provisioner domain.TemplateProvisioner,
	storageRoot string,
	logger *slog.Logger,
) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}

	return &TenantService{
		tenants:     tenants,
		bots:        bots,
		players:     players,
		supervisor:  supervisor,
		provisioner: provisioner,
		storageRoot: storageRoot,
		logger:      logger,
	}
}

// CreateTenantParams carries the fields an admin supplies for a new tenant
type CreateTenantParams struct {
	Username string
	Password string
	MaxBots  int
	Days     int
	Telegram string
}

// Create registers a new tenant account valid for params.Days days
func (s *TenantService) Create(params CreateTenantParams) (*domain.Tenant, error) {
	if params.Username == "" || params.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	if params.MaxBots < 0 {
		return nil, fmt.Errorf("%w: max_bots must not be negative", domain.ErrInvalidInput)
	}
	if params.Days < 1 {
		return nil, fmt.Errorf("%w: days must be at least 1", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to create tenant")
	}

	now := time.Now()
	tenant := &domain.Tenant{
		Username:     params.Username,
		PasswordHash: string(hash),
		MaxBots:      params.MaxBots,
		Telegram:     params.Telegram,
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Duration(params.Days) * 24 * time.Hour),
	}

	if err := s.tenants.Create(tenant); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(tenantDir(s.storageRoot, tenant), 0o755); err != nil {
		s.logger.Warn("failed to create tenant directory",
			slog.Int64("tenant_id", tenant.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("tenant created",
		slog.Int64("tenant_id", tenant.ID),
		slog.String("username", tenant.Username),
		slog.Int("max_bots", tenant.MaxBots),
		slog.Time("expires_at", tenant.ExpiresAt),
	)
	return tenant, nil
}

// Get returns one tenant by id
func (s *TenantService) Get(id int64) (*domain.Tenant, error) {
	return s.tenants.GetByID(id)
}

// List returns all tenants
func (s *TenantService) List() ([]*domain.Tenant, error) {
	return s.tenants.List()
}

// UpdateTenantParams carries optional tenant mutations. Nil fields are
// left untouched.
type UpdateTenantParams struct {
	Password *string
	MaxBots  *int
	Days     *int
	Telegram *string
}

// Update applies the non-nil fields of params to a tenant. Days extends
// the expiry from now, not from the current expiry.
func (s *TenantService) Update(id int64, params UpdateTenantParams) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetByID(id)
	if err != nil {
		return nil, err
	}

	if params.Password != nil {
		if *params.Password == "" {
			return nil, fmt.Errorf("%w: password must not be empty", domain.ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*params.Password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("failed to hash password", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to update tenant")
		}
		tenant.PasswordHash = string(hash)
	}
	if params.MaxBots != nil {
		if *params.MaxBots < 0 {
			return nil, fmt.Errorf("%w: max_bots must not be negative", domain.ErrInvalidInput)
		}
		tenant.MaxBots = *params.MaxBots
	}
	if params.Days != nil {
		if *params.Days < 1 {
			return nil, fmt.Errorf("%w: days must be at least 1", domain.ErrInvalidInput)
		}
		tenant.ExpiresAt = time.Now().Add(time.Duration(*params.Days) * 24 * time.Hour)
	}
	if params.Telegram != nil {
		tenant.Telegram = *params.Telegram
	}

	if err := s.tenants.Update(tenant); err != nil {
		return nil, err
	}

	s.logger.Info("tenant updated", slog.Int64("tenant_id", tenant.ID))
	return tenant, nil
}

// Delete removes a tenant and everything it owns: each bot is stopped
// best-effort, its instance directory and roster are destroyed, then the
// bot and tenant records go. Admin accounts cannot be deleted.
func (s *TenantService) Delete(ctx context.Context, id int64) error {
	tenant, err := s.tenants.GetByID(id)
	if err != nil {
		return err
	}
	if tenant.IsAdmin {
		return fmt.Errorf("%w: admin accounts cannot be deleted", domain.ErrInvalidInput)
	}

	bots, err := s.bots.ListByTenant(tenant.ID)
	if err != nil {
		return err
	}

	for _, bot := range bots {
		if err := s.supervisor.Stop(ctx, bot.Handle()); err != nil {
			s.logger.Warn("failed to stop bot during tenant delete",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.provisioner.Destroy(botInstanceDir(s.storageRoot, tenant, bot.UID)); err != nil {
			s.logger.Warn("failed to destroy bot instance during tenant delete",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.players.DeleteByBotUID(bot.UID); err != nil {
			s.logger.Warn("failed to delete bot roster during tenant delete",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bots.Delete(bot.ID); err != nil {
			s.logger.Warn("failed to delete bot record during tenant delete",
				slog.Int64("bot_id", bot.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := os.RemoveAll(tenantDir(s.storageRoot, tenant)); err != nil {
		s.logger.Warn("failed to remove tenant directory",
			slog.Int64("tenant_id", tenant.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.tenants.Delete(tenant.ID); err != nil {
		return err
	}

	s.logger.Info("tenant deleted",
		slog.Int64("tenant_id", tenant.ID),
		slog.String("username", tenant.Username),
		slog.Int("bots_removed", len(bots)),
	)
	return nil
}

// EnsureAdmin creates the bootstrap admin account if no tenant with the
// given username exists yet. An existing account is left untouched.
func (s *TenantService) EnsureAdmin(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: admin username and password are required", domain.ErrInvalidInput)
	}

	if existing, err := s.tenants.GetByUsername(username); err == nil && existing != nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	admin := &domain.Tenant{
		Username:     username,
		PasswordHash: string(hash),
		MaxBots:      0,
		IsAdmin:      true,
		CreatedAt:    now,
		ExpiresAt:    now.AddDate(adminAccountYears, 0, 0),
	}
	if err := s.tenants.Create(admin); err != nil {
		return fmt.Errorf("create admin account: %w", err)
	}

	s.logger.Info("bootstrap admin created", slog.String("username", username))
	return nil
}
