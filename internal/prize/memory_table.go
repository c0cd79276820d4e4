package prize

import (
	"context"
	"sort"
	"sync"
)

type memoryTable struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryTable returns an in-memory prize table seeded with entries.
func NewMemoryTable(entries ...Entry) Table {
	t := &memoryTable{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		t.entries[e.ID] = e
	}
	return t
}

func (t *memoryTable) List(_ context.Context) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *memoryTable) Upsert(_ context.Context, e Entry) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[e.ID] = e
	return e, nil
}

func (t *memoryTable) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; !ok {
		return ErrPrizeNotFound
	}
	delete(t.entries, id)
	return nil
}
