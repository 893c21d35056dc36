package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is the in-process Client used by the server and by tests. Writes are
// last-writer-wins whole-document merges; subscribers are notified after the
// mutation commits, outside the lock, in registration order.
type Memory struct {
	mu          sync.Mutex
	nextSub     int
	collections map[string]map[string]Record
	subscribers map[string]map[int]func(Event)
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]Record),
		subscribers: make(map[string]map[int]func(Event)),
	}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.collections[collection][id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (m *Memory) Create(_ context.Context, collection string, fields map[string]any) (Record, error) {
	now := time.Now().UTC()
	record := Record{
		ID:      NewRecordID(),
		Created: now,
		Updated: now,
		Fields:  cloneFields(fields),
	}
	m.mu.Lock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]Record)
	}
	m.collections[collection][record.ID] = record
	listeners := m.listeners(collection)
	m.mu.Unlock()

	notify(listeners, Event{Action: ActionCreate, Record: cloneRecord(record)})
	return cloneRecord(record), nil
}

func (m *Memory) Update(_ context.Context, collection, id string, fields map[string]any) (Record, error) {
	m.mu.Lock()
	record, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return Record{}, ErrNotFound
	}
	merged := cloneRecord(record)
	for key, value := range fields {
		merged.Fields[key] = value
	}
	merged.Updated = time.Now().UTC()
	m.collections[collection][id] = merged
	listeners := m.listeners(collection)
	m.mu.Unlock()

	notify(listeners, Event{Action: ActionUpdate, Record: cloneRecord(merged)})
	return cloneRecord(merged), nil
}

func (m *Memory) List(_ context.Context, collection string, conds ...Cond) ([]Record, error) {
	m.mu.Lock()
	records := make([]Record, 0, len(m.collections[collection]))
	for _, record := range m.collections[collection] {
		if matches(record, conds) {
			records = append(records, cloneRecord(record))
		}
	}
	m.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Created.Equal(records[j].Created) {
			return records[i].Created.Before(records[j].Created)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	record, ok := m.collections[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.collections[collection], id)
	listeners := m.listeners(collection)
	m.mu.Unlock()

	notify(listeners, Event{Action: ActionDelete, Record: cloneRecord(record)})
	return nil
}

func (m *Memory) Subscribe(collection string, fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribers[collection] == nil {
		m.subscribers[collection] = make(map[int]func(Event))
	}
	id := m.nextSub
	m.nextSub++
	m.subscribers[collection][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers[collection], id)
	}
}

func (m *Memory) listeners(collection string) []func(Event) {
	keys := make([]int, 0, len(m.subscribers[collection]))
	for key := range m.subscribers[collection] {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	listeners := make([]func(Event), 0, len(keys))
	for _, key := range keys {
		listeners = append(listeners, m.subscribers[collection][key])
	}
	return listeners
}

func notify(listeners []func(Event), event Event) {
	for _, listener := range listeners {
		listener(event)
	}
}

func matches(record Record, conds []Cond) bool {
	for _, cond := range conds {
		value := record.Fields[cond.field]
		switch cond.op {
		case opEq:
			if !equalValues(value, cond.value) {
				return false
			}
		case opGt:
			want, ok := cond.value.(int)
			if !ok || record.Int(cond.field) <= want {
				return false
			}
		case opNotEmpty:
			text, ok := value.(string)
			if !ok || text == "" {
				return false
			}
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if ai, ok := toInt(a); ok {
		if bi, ok := toInt(b); ok {
			return ai == bi
		}
		return false
	}
	return a == b
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func cloneRecord(record Record) Record {
	record.Fields = cloneFields(record.Fields)
	return record
}

func cloneFields(fields map[string]any) map[string]any {
	cloned := make(map[string]any, len(fields))
	for key, value := range fields {
		cloned[key] = value
	}
	return cloned
}
