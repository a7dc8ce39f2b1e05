package operation

import (
	"sort"
	"sync"
	"time"
)

// Registry хранит операции по id, чтобы клиент мог опрашивать их статус
type Registry struct {
	mu        sync.RWMutex
	items     map[string]entry
	retention time.Duration
}

type entry struct {
	op      Tracked
	addedAt time.Time
}

// NewRegistry создает реестр. Завершенные операции старше retention
// удаляются при Prune.
func NewRegistry(retention time.Duration) *Registry {
	return &Registry{
		items:     make(map[string]entry),
		retention: retention,
	}
}

// Add регистрирует операцию
func (r *Registry) Add(op Tracked) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[op.ID()] = entry{op: op, addedAt: time.Now()}
}

// Get возвращает операцию по id
func (r *Registry) Get(id string) (Tracked, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.items[id]
	if !ok {
		return nil, false
	}
	return e.op, true
}

// ListByOwner снимки операций владельца, новые первыми
func (r *Registry) ListByOwner(owner string) []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Snapshot
	for _, e := range r.items {
		if e.op.Owner() == owner {
			out = append(out, e.op.Snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len количество операций
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Prune удаляет завершенные операции старше retention
func (r *Registry) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.items {
		if now.Sub(e.addedAt) < r.retention {
			continue
		}
		if e.op.Snapshot().Phase == Pending.String() {
			continue
		}
		delete(r.items, id)
		removed++
	}
	return removed
}
