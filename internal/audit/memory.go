package audit

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and the in-memory dev mode.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory creates an empty audit store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(ctx context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	if len(e.Details) > 0 {
		cp.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *Memory) List(ctx context.Context, f Filter) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*Entry
	// Newest first, same ordering as the SQL store.
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && e.ResourceType != f.ResourceType {
			continue
		}
		if f.ResourceID != "" && e.ResourceID != f.ResourceID {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
			continue
		}
		matched = append(matched, e)
	}

	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*Entry, 0, len(matched))
	for _, e := range matched {
		cp := *e
		if len(e.Details) > 0 {
			cp.Details = make(map[string]string, len(e.Details))
			for k, v := range e.Details {
				cp.Details[k] = v
			}
		}
		out = append(out, &cp)
	}
	return out, nil
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
