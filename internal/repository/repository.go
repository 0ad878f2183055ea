package repository

import (
	"errors"
	"log/slog"

	"github.com/yourorg/botfleet/internal/infrastructure/jsonstore"
)

// Collection names. Each maps to one JSON file in the database directory.
const (
	collectionTenants = "users"
	collectionBots    = "bots"
	collectionPlayers = "players"
	collectionLinks   = "links"
)

// load reads a collection, degrading a corrupt file to an empty collection
// after logging it, so store corruption never fails the caller.
func load[T any](s *jsonstore.Store, log *slog.Logger, collection string) ([]T, error) {
	records, err := jsonstore.Load[T](s, collection)
	if err != nil {
		var corrupt *jsonstore.CorruptDataError
		if errors.As(err, &corrupt) {
			log.Warn("collection unreadable, serving as empty",
				slog.String("collection", corrupt.Collection),
				slog.String("path", corrupt.Path),
				slog.String("error", corrupt.Err.Error()),
			)
			return records, nil
		}
		return nil, err
	}
	return records, nil
}

// mutate runs fn over a collection under its exclusive lock and persists the
// result atomically. fn receives the loaded records and returns the full
// replacement set.
func mutate[T any](s *jsonstore.Store, log *slog.Logger, collection string, fn func([]T) ([]T, error)) error {
	unlock := s.Lock(collection)
	defer unlock()

	records, err := load[T](s, log, collection)
	if err != nil {
		return err
	}
	out, err := fn(records)
	if err != nil {
		return err
	}
	return jsonstore.Replace(s, collection, out)
}

// nextID returns max(id)+1 so identifiers stay monotonically increasing even
// after deletions.
func nextID(ids []int64) int64 {
	var max int64
	for _, id := range ids {
		if id > max {
			max = id
		}
	}
	return max + 1
}
