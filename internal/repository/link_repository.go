package repository

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/botfleet/internal/domain"
	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
)

// LinkRepository implements domain.LinkRepository over the JSON store
type LinkRepository struct {
	store  *jsonstore.Store
	logger *slog.Logger
}

// NewLinkRepository creates a new link repository
func NewLinkRepository(store *jsonstore.Store, logger *slog.Logger) *LinkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkRepository{store: store, logger: logger}
}

// Create inserts a link, assigning its ID
func (r *LinkRepository) Create(link *domain.Link) error {
	return mutate(r.store, r.logger, collectionLinks, func(links []domain.Link) ([]domain.Link, error) {
		ids := make([]int64, 0, len(links))
		for _, l := range links {
			ids = append(ids, l.ID)
		}
		link.ID = nextID(ids)
		return append(links, *link), nil
	})
}

// Delete removes a link
func (r *LinkRepository) Delete(id int64) error {
	return mutate(r.store, r.logger, collectionLinks, func(links []domain.Link) ([]domain.Link, error) {
		out := links[:0]
		found := false
		for _, l := range links {
			if l.ID == id {
				found = true
				continue
			}
			out = append(out, l)
		}
		if !found {
			return nil, fmt.Errorf("%w: link %d", domain.ErrNotFound, id)
		}
		return out, nil
	})
}

// List returns all links
func (r *LinkRepository) List() ([]*domain.Link, error) {
	links, err := load[domain.Link](r.store, r.logger, collectionLinks)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Link, len(links))
	for i := range links {
		out[i] = &links[i]
	}
	return out, nil
}
