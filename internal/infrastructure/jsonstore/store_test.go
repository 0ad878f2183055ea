package jsonstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type record struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	records, err := Load[record](s, "bots")
	if err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty collection, got %d records", len(records))
	}
}

func TestReplaceThenLoad(t *testing.T) {
	s := newTestStore(t)
	in := []record{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	if err := Replace(s, "bots", in); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	out, err := Load[record](s, "bots")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(out) != 2 || out[0].ID != 1 || out[1].Name != "b" {
		t.Fatalf("unexpected records: %+v", out)
	}
}

func TestCorruptFileServedAsEmptyWithError(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(filepath.Join(s.dir, "bots.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	records, err := Load[record](s, "bots")
	if len(records) != 0 {
		t.Fatalf("expected empty collection for corrupt file, got %d records", len(records))
	}
	var corrupt *CorruptDataError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptDataError, got %v", err)
	}
	if corrupt.Collection != "bots" {
		t.Fatalf("expected collection bots, got %q", corrupt.Collection)
	}

	// A subsequent replace recovers the collection
	if err := Replace(s, "bots", []record{{ID: 1}}); err != nil {
		t.Fatalf("replace after corruption failed: %v", err)
	}
	records, err = Load[record](s, "bots")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected recovered collection, got %v records err=%v", len(records), err)
	}
}

func TestReplaceLeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)
	if err := Replace(s, "bots", []record{{ID: 1}}); err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatalf("readdir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "bots.json" {
		t.Fatalf("expected only bots.json, got %v", entries)
	}
}

func TestConcurrentLockedMutations(t *testing.T) {
	s := newTestStore(t)
	const writers = 20

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("bots")
			defer unlock()
			records, err := Load[record](s, "bots")
			if err != nil {
				t.Errorf("load failed: %v", err)
				return
			}
			records = append(records, record{ID: int64(len(records) + 1)})
			if err := Replace(s, "bots", records); err != nil {
				t.Errorf("replace failed: %v", err)
			}
		}()
	}
	wg.Wait()

	records, err := Load[record](s, "bots")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(records) != writers {
		t.Fatalf("expected %d records after locked mutations, got %d", writers, len(records))
	}
}
