package room

import (
	"context"
	"errors"
	"sync"

	"github.com/verte-zerg/typerace/internal/docstore"
	"github.com/verte-zerg/typerace/internal/model"
)

// Subscription delivers room snapshots. A nil snapshot means the room does
// not exist (yet, or any longer).
type Subscription struct {
	updates chan *model.Room
	cancel  context.CancelFunc
	sub     *docstore.Subscription
	done    chan struct{}
	once    sync.Once
}

// Subscribe delivers the current snapshot of the room and then a fresh
// snapshot after every change. Intermediate states may be skipped, but the
// latest state is always delivered.
func (s *Service) Subscribe(ctx context.Context, roomID string) (*Subscription, error) {
	if err := validID(roomID); err != nil {
		return nil, err
	}
	sub, err := s.docs.Subscribe(ctx, roomPath(roomID))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	rs := &Subscription{
		updates: make(chan *model.Room),
		cancel:  cancel,
		sub:     sub,
		done:    make(chan struct{}),
	}
	go rs.run(ctx, s, roomID)
	return rs, nil
}

// Updates returns the snapshot channel. It is closed once the subscription
// ends.
func (r *Subscription) Updates() <-chan *model.Room { return r.updates }

// Close stops delivery. No snapshot is delivered after Close returns.
func (r *Subscription) Close() {
	r.once.Do(func() {
		r.cancel()
		<-r.done
		r.sub.Close()
	})
}

func (r *Subscription) run(ctx context.Context, s *Service, roomID string) {
	defer close(r.done)
	defer close(r.updates)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-r.sub.C():
			if !ok {
				return
			}
		}
		room, err := s.Room(ctx, roomID)
		switch {
		case errors.Is(err, ErrRoomNotFound):
			room = nil
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			s.log.WithField("room", roomID).Errorf("reload failed: %v", err)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case r.updates <- room:
		}
	}
}
