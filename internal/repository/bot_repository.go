package repository

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
)

// BotRepository implements domain.BotRepository over the JSON store
type BotRepository struct {
	store  *jsonstore.Store
	logger *slog.Logger
}

// NewBotRepository creates a new bot repository
func NewBotRepository(store *jsonstore.Store, logger *slog.Logger) *BotRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotRepository{store: store, logger: logger}
}

// Create inserts a bot. The quota check runs inside the collection-exclusive
// section, so concurrent creates for the same tenant cannot both pass.
func (r *BotRepository) Create(bot *domain.Bot, maxBots int) error {
	return mutate(r.store, r.logger, collectionBots, func(bots []domain.Bot) ([]domain.Bot, error) {
		owned := 0
		ids := make([]int64, 0, len(bots))
		for _, b := range bots {
			if b.UID == bot.UID {
				return nil, fmt.Errorf("%w: account uid %q already in use", domain.ErrInvalidInput, bot.UID)
			}
			if b.TenantID == bot.TenantID {
				owned++
			}
			ids = append(ids, b.ID)
		}
		if owned >= maxBots {
			return nil, fmt.Errorf("%w: %d of %d bots in use", domain.ErrQuotaExceeded, owned, maxBots)
		}
		bot.ID = nextID(ids)
		return append(bots, *bot), nil
	})
}

// ClearProcess marks a bot stopped only if it still tracks the given pid,
// pid 0 matching a record with no pid. A record that was meanwhile
// restarted, stopped, or deleted is left alone and reported as not cleared.
func (r *BotRepository) ClearProcess(id int64, pid int32) (bool, error) {
	cleared := false
	err := mutate(r.store, r.logger, collectionBots, func(bots []domain.Bot) ([]domain.Bot, error) {
		for i := range bots {
			if bots[i].ID != id {
				continue
			}
			if bots[i].Status != domain.BotStatusRunning {
				return bots, nil
			}
			if pid == 0 {
				if bots[i].PID != nil {
					return bots, nil
				}
			} else if bots[i].PID == nil || *bots[i].PID != pid {
				return bots, nil
			}
			bots[i].SetStopped()
			cleared = true
			return bots, nil
		}
		return bots, nil
	})
	return cleared, err
}

// GetByID retrieves a bot by ID
func (r *BotRepository) GetByID(id int64) (*domain.Bot, error) {
	bots, err := load[domain.Bot](r.store, r.logger, collectionBots)
	if err != nil {
		return nil, err
	}
	for i := range bots {
		if bots[i].ID == id {
			return &bots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: bot %d", domain.ErrNotFound, id)
}

// GetByUID retrieves a bot by its external account uid
func (r *BotRepository) GetByUID(uid string) (*domain.Bot, error) {
	bots, err := load[domain.Bot](r.store, r.logger, collectionBots)
	if err != nil {
		return nil, err
	}
	for i := range bots {
		if bots[i].UID == uid {
			return &bots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: bot uid %q", domain.ErrNotFound, uid)
}

// Update replaces the stored record matching the bot's ID
func (r *BotRepository) Update(bot *domain.Bot) error {
	return mutate(r.store, r.logger, collectionBots, func(bots []domain.Bot) ([]domain.Bot, error) {
		for i := range bots {
			if bots[i].ID == bot.ID {
				bots[i] = *bot
				return bots, nil
			}
		}
		return nil, fmt.Errorf("%w: bot %d", domain.ErrNotFound, bot.ID)
	})
}

// Delete removes a bot record
func (r *BotRepository) Delete(id int64) error {
	return mutate(r.store, r.logger, collectionBots, func(bots []domain.Bot) ([]domain.Bot, error) {
		out := bots[:0]
		found := false
		for _, b := range bots {
			if b.ID == id {
				found = true
				continue
			}
			out = append(out, b)
		}
		if !found {
			return nil, fmt.Errorf("%w: bot %d", domain.ErrNotFound, id)
		}
		return out, nil
	})
}

// List returns all bots
func (r *BotRepository) List() ([]*domain.Bot, error) {
	bots, err := load[domain.Bot](r.store, r.logger, collectionBots)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Bot, len(bots))
	for i := range bots {
		out[i] = &bots[i]
	}
	return out, nil
}

// ListByTenant returns the bots owned by a tenant
func (r *BotRepository) ListByTenant(tenantID int64) ([]*domain.Bot, error) {
	bots, err := load[domain.Bot](r.store, r.logger, collectionBots)
	if err != nil {
		return nil, err
	}
	var out []*domain.Bot
	for i := range bots {
		if bots[i].TenantID == tenantID {
			out = append(out, &bots[i])
		}
	}
	return out, nil
}

// CountByTenant returns the number of bots a tenant currently owns
func (r *BotRepository) CountByTenant(tenantID int64) (int, error) {
	bots, err := load[domain.Bot](r.store, r.logger, collectionBots)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, b := range bots {
		if b.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}
