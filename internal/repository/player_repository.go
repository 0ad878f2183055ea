package repository

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
)

// PlayerRepository implements domain.PlayerRepository over the JSON store
type PlayerRepository struct {
	store  *jsonstore.Store
	logger *slog.Logger
}

// NewPlayerRepository creates a new roster repository
func NewPlayerRepository(store *jsonstore.Store, logger *slog.Logger) *PlayerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlayerRepository{store: store, logger: logger}
}

// Create inserts a roster entry, assigning its ID
func (r *PlayerRepository) Create(player *domain.Player) error {
	return mutate(r.store, r.logger, collectionPlayers, func(players []domain.Player) ([]domain.Player, error) {
		ids := make([]int64, 0, len(players))
		for _, p := range players {
			ids = append(ids, p.ID)
		}
		player.ID = nextID(ids)
		return append(players, *player), nil
	})
}

// GetByID retrieves a roster entry by ID
func (r *PlayerRepository) GetByID(id int64) (*domain.Player, error) {
	players, err := load[domain.Player](r.store, r.logger, collectionPlayers)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if players[i].ID == id {
			return &players[i], nil
		}
	}
	return nil, fmt.Errorf("%w: player %d", domain.ErrNotFound, id)
}

// Delete removes a roster entry
func (r *PlayerRepository) Delete(id int64) error {
	return mutate(r.store, r.logger, collectionPlayers, func(players []domain.Player) ([]domain.Player, error) {
		out := players[:0]
		found := false
		for _, p := range players {
			if p.ID == id {
				found = true
				continue
			}
			out = append(out, p)
		}
		if !found {
			return nil, fmt.Errorf("%w: player %d", domain.ErrNotFound, id)
		}
		return out, nil
	})
}

// List returns all roster entries
func (r *PlayerRepository) List() ([]*domain.Player, error) {
	players, err := load[domain.Player](r.store, r.logger, collectionPlayers)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Player, len(players))
	for i := range players {
		out[i] = &players[i]
	}
	return out, nil
}

// ListByBotUID returns the roster of one bot account
func (r *PlayerRepository) ListByBotUID(botUID string) ([]*domain.Player, error) {
	players, err := load[domain.Player](r.store, r.logger, collectionPlayers)
	if err != nil {
		return nil, err
	}
	var out []*domain.Player
	for i := range players {
		if players[i].BotUID == botUID {
			out = append(out, &players[i])
		}
	}
	return out, nil
}

// GetByBotAndUID looks up a roster entry by (bot account, target account)
func (r *PlayerRepository) GetByBotAndUID(botUID, playerUID string) (*domain.Player, error) {
	players, err := load[domain.Player](r.store, r.logger, collectionPlayers)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if players[i].BotUID == botUID && players[i].UID == playerUID {
			return &players[i], nil
		}
	}
	return nil, fmt.Errorf("%w: player %s on bot %s", domain.ErrNotFound, playerUID, botUID)
}

// DeleteByBotUID removes every roster entry belonging to a bot account.
// Used on bot and tenant delete cascades; deleting nothing is fine.
func (r *PlayerRepository) DeleteByBotUID(botUID string) error {
	return mutate(r.store, r.logger, collectionPlayers, func(players []domain.Player) ([]domain.Player, error) {
		out := players[:0]
		for _, p := range players {
			if p.BotUID == botUID {
				continue
			}
			out = append(out, p)
		}
		return out, nil
	})
}
