package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
)

// NewMemory returns an in-process store. It is the default backend for local
// races where every racer shares one process.
func NewMemory() *Store {
	return newStore(&memoryBackend{
		docs:     map[string]map[string]json.RawMessage{},
		watchers: map[string]map[chan struct{}]struct{}{},
	}, "memory")
}

type memoryBackend struct {
	mu       sync.Mutex
	closed   bool
	docs     map[string]map[string]json.RawMessage
	watchers map[string]map[chan struct{}]struct{}
}

func (m *memoryBackend) load(_ context.Context, doc string) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]json.RawMessage, len(m.docs[doc]))
	for k, v := range m.docs[doc] {
		out[k] = v
	}
	return out, nil
}

func (m *memoryBackend) apply(_ context.Context, doc string, w write) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if w.cond != nil && !bytes.Equal(m.docs[doc][w.cond.field], w.cond.value) {
		return false, nil
	}
	fields, ok := m.docs[doc]
	if !ok {
		fields = map[string]json.RawMessage{}
		m.docs[doc] = fields
	}
	for k := range fields {
		for _, p := range w.prefixes {
			if overlaps(k, p) {
				delete(fields, k)
				break
			}
		}
	}
	for k, v := range w.fields {
		fields[k] = v
	}
	if len(fields) == 0 {
		delete(m.docs, doc)
	}
	for ch := range m.watchers[doc] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return true, nil
}

func (m *memoryBackend) watch(_ context.Context, doc string) (<-chan struct{}, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrClosed
	}
	ch := make(chan struct{}, 1)
	if m.watchers[doc] == nil {
		m.watchers[doc] = map[chan struct{}]struct{}{}
	}
	m.watchers[doc][ch] = struct{}{}
	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[doc], ch)
		if len(m.watchers[doc]) == 0 {
			delete(m.watchers, doc)
		}
	}
	return ch, stop, nil
}

func (m *memoryBackend) close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
