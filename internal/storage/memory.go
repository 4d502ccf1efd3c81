package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Safe for concurrent use.
//
// Fail, when set, is returned by every mutating call. Tests use it to
// simulate an unavailable backend.
type Memory struct {
	mu     sync.Mutex
	seq    int64
	items  map[int64]Item
	closed bool

	Now  func() time.Time
	Fail error
}

func NewMemory() *Memory {
	return &Memory{items: map[int64]Item{}, Now: time.Now}
}

func (m *Memory) Create(_ context.Context, in NewItem) (int64, error) {
	if !in.Kind.Valid() {
		return 0, fmt.Errorf("unknown item kind %q", in.Kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(true); err != nil {
		return 0, err
	}
	in = normalizeNew(in)
	m.seq++
	m.items[m.seq] = Item{
		ID:               m.seq,
		OwnerID:          in.OwnerID,
		Title:            in.Title,
		CreatedAt:        m.now().UTC(),
		Kind:             in.Kind,
		ReminderInterval: in.ReminderInterval,
		DeadlineAt:       in.DeadlineAt,
	}
	return m.seq, nil
}

func (m *Memory) Get(_ context.Context, id int64) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(false); err != nil {
		return Item{}, err
	}
	it, ok := m.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return presented(it), nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerID int64) ([]Item, error) {
	return m.filter(func(it Item) bool { return it.OwnerID == ownerID })
}

func (m *Memory) ListActive(_ context.Context) ([]Item, error) {
	return m.filter(func(it Item) bool { return !it.Done })
}

func (m *Memory) SetDone(_ context.Context, id int64, done bool) error {
	return m.update(id, func(it *Item) { it.Done = done })
}

func (m *Memory) SetInterval(_ context.Context, id int64, every time.Duration) error {
	return m.update(id, func(it *Item) { it.ReminderInterval = every })
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(true); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) update(id int64, fn func(it *Item)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(true); err != nil {
		return err
	}
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	fn(&it)
	m.items[id] = it
	return nil
}

func (m *Memory) filter(keep func(Item) bool) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(false); err != nil {
		return nil, err
	}
	var out []Item
	for _, it := range m.items {
		if keep(it) {
			out = append(out, presented(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) checkLocked(write bool) error {
	if m.closed {
		return ErrClosed
	}
	if write && m.Fail != nil {
		return m.Fail
	}
	return nil
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
