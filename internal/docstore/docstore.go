// Package docstore is a shared mutable document store with push
// notifications.
//
// Documents live at two-segment paths such as "rooms/abc". Deeper path
// segments address fields inside a document. Values are kept as flattened
// JSON leaves, so Update touches only the leaves it names and concurrent
// writers of disjoint fields never overwrite each other.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned by Get when nothing is stored at a path.
	ErrNotFound = errors.New("docstore: not found")
	// ErrInvalidPath is returned for malformed paths or keys.
	ErrInvalidPath = errors.New("docstore: invalid path")
	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("docstore: closed")
)

// write replaces every field at or below each prefix with the given leaves.
// When cond is set the write applies only if the document holds exactly that
// leaf value.
type write struct {
	prefixes []string
	fields   map[string]json.RawMessage
	cond     *condition
}

type condition struct {
	field string
	value json.RawMessage
}

// backend is the storage primitive behind a Store.
type backend interface {
	load(ctx context.Context, doc string) (map[string]json.RawMessage, error)
	// apply performs w atomically and reports false when its condition
	// did not hold.
	apply(ctx context.Context, doc string, w write) (bool, error)
	// watch returns a channel receiving a value after each change to doc and
	// a stop function that releases the listener.
	watch(ctx context.Context, doc string) (<-chan struct{}, func(), error)
	close() error
}

// Store is a document store over a backend.
type Store struct {
	b   backend
	log *logrus.Entry
}

func newStore(b backend, kind string) *Store {
	return &Store{b: b, log: logrus.WithField("docstore", kind)}
}

// Get decodes the value stored at path into dst.
func (s *Store) Get(ctx context.Context, path string, dst any) error {
	doc, field, err := splitPath(path)
	if err != nil {
		return err
	}
	fields, err := s.b.load(ctx, doc)
	if err != nil {
		return fmt.Errorf("load %s: %w", doc, err)
	}
	raw, ok, err := unflatten(fields, field)
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", path, err)
	}
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Set replaces the whole subtree at path with value.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	_, err := s.set(ctx, path, value, nil)
	return err
}

// SetIf is Set guarded by a comparison: the write happens only if the leaf
// at condPath, which must be in the same document, currently equals want.
// The check and the write are one atomic step.
func (s *Store) SetIf(ctx context.Context, path string, value any, condPath string, want any) (bool, error) {
	cond, err := newCondition(path, condPath, want)
	if err != nil {
		return false, err
	}
	return s.set(ctx, path, value, cond)
}

func (s *Store) set(ctx context.Context, path string, value any, cond *condition) (bool, error) {
	doc, field, err := splitPath(path)
	if err != nil {
		return false, err
	}
	leaves, err := flatten(field, value)
	if err != nil {
		return false, err
	}
	ok, err := s.b.apply(ctx, doc, write{prefixes: []string{field}, fields: leaves, cond: cond})
	if err != nil {
		s.log.Errorf("set %s failed: %v", path, err)
		return false, fmt.Errorf("set %s: %w", path, err)
	}
	if !ok {
		s.log.Debugf("set %s skipped: %s changed", path, cond.field)
		return false, nil
	}
	s.log.Debugf("set %s (%d fields)", path, len(leaves))
	return true, nil
}

// Update replaces only the named children of path, leaving siblings intact.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	_, err := s.update(ctx, path, fields, nil)
	return err
}

// UpdateIf is Update guarded the same way as SetIf.
func (s *Store) UpdateIf(ctx context.Context, path string, fields map[string]any, condPath string, want any) (bool, error) {
	cond, err := newCondition(path, condPath, want)
	if err != nil {
		return false, err
	}
	return s.update(ctx, path, fields, cond)
}

func (s *Store) update(ctx context.Context, path string, fields map[string]any, cond *condition) (bool, error) {
	doc, base, err := splitPath(path)
	if err != nil {
		return false, err
	}
	w := write{fields: map[string]json.RawMessage{}, cond: cond}
	for k, v := range fields {
		if k == "" || strings.Contains(k, "/") {
			return false, fmt.Errorf("%w: key %q", ErrInvalidPath, k)
		}
		prefix := joinField(base, k)
		leaves, err := flatten(prefix, v)
		if err != nil {
			return false, err
		}
		w.prefixes = append(w.prefixes, prefix)
		for lk, lv := range leaves {
			w.fields[lk] = lv
		}
	}
	if len(w.prefixes) == 0 {
		return true, nil
	}
	ok, err := s.b.apply(ctx, doc, w)
	if err != nil {
		s.log.Errorf("update %s failed: %v", path, err)
		return false, fmt.Errorf("update %s: %w", path, err)
	}
	if !ok {
		s.log.Debugf("update %s skipped: %s changed", path, cond.field)
		return false, nil
	}
	s.log.Debugf("updated %s (%d fields)", path, len(w.fields))
	return true, nil
}

// newCondition encodes want as the single leaf expected at condPath.
func newCondition(path, condPath string, want any) (*condition, error) {
	doc, _, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	condDoc, field, err := splitPath(condPath)
	if err != nil {
		return nil, err
	}
	if condDoc != doc || field == "" {
		return nil, fmt.Errorf("%w: condition %q must name a field of %s", ErrInvalidPath, condPath, doc)
	}
	leaves, err := flatten(field, want)
	if err != nil {
		return nil, err
	}
	value, ok := leaves[field]
	if !ok || len(leaves) != 1 {
		return nil, fmt.Errorf("%w: condition on %q must be a scalar", ErrInvalidPath, condPath)
	}
	return &condition{field: field, value: value}, nil
}

// Subscribe starts watching the document containing path. The subscription
// signals once immediately and then after every change; signals coalesce.
func (s *Store) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	doc, _, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	changes, stop, err := s.b.watch(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", doc, err)
	}
	sub := &Subscription{
		c:    make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
		stop: stop,
	}
	sub.c <- struct{}{}
	go sub.forward(changes)
	return sub, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.b.close()
}

// Subscription delivers change signals for one document.
type Subscription struct {
	c    chan struct{}
	quit chan struct{}
	done chan struct{}
	stop func()
	once sync.Once
}

// C returns the signal channel. It is closed once the subscription ends.
func (s *Subscription) C() <-chan struct{} { return s.c }

// Close stops the subscription. It is idempotent and returns only after the
// backend listener has been released.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.quit)
		s.stop()
		<-s.done
	})
}

func (s *Subscription) forward(changes <-chan struct{}) {
	defer close(s.done)
	defer close(s.c)
	for {
		select {
		case <-s.quit:
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			select {
			case s.c <- struct{}{}:
			default:
			}
		}
	}
}

// overlaps reports whether an existing field must be removed when writing at
// prefix: fields below it, and leaves at its ancestors.
func overlaps(field, prefix string) bool {
	return under(field, prefix) || strings.HasPrefix(prefix, field+"/")
}
