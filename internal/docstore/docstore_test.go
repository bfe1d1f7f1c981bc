package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type testPlayer struct {
	Name     string  `json:"name"`
	Progress int     `json:"progress"`
	WPM      float64 `json:"wpm"`
}

type testRoom struct {
	ID      string                `json:"id"`
	Status  string                `json:"status"`
	Players map[string]testPlayer `json:"players"`
}

// setupRedisStore creates a store backed by a miniredis instance.
func setupRedisStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := NewRedis(client, "")
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func backends(t *testing.T) map[string]func(t *testing.T) *Store {
	return map[string]func(t *testing.T) *Store{
		"memory": func(t *testing.T) *Store {
			st := NewMemory()
			t.Cleanup(func() { _ = st.Close() })
			return st
		},
		"redis": setupRedisStore,
	}
}

func waitSignal(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case _, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for change signal")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			room := testRoom{ID: "r1", Status: "waiting", Players: map[string]testPlayer{
				"u1": {Name: "Alice"},
			}}
			if err := st.Set(ctx, "rooms/r1", room); err != nil {
				t.Fatalf("set: %v", err)
			}
			var got testRoom
			if err := st.Get(ctx, "rooms/r1", &got); err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.ID != "r1" || got.Players["u1"].Name != "Alice" {
				t.Fatalf("unexpected room %+v", got)
			}
			var p testPlayer
			if err := st.Get(ctx, "rooms/r1/players/u1", &p); err != nil {
				t.Fatalf("get player: %v", err)
			}
			if p.Name != "Alice" {
				t.Fatalf("unexpected player %+v", p)
			}
			var status string
			if err := st.Get(ctx, "rooms/r1/status", &status); err != nil || status != "waiting" {
				t.Fatalf("get leaf: %q, %v", status, err)
			}
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			var got testRoom
			if err := st.Get(context.Background(), "rooms/nope", &got); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestInvalidPath(t *testing.T) {
	st := NewMemory()
	if err := st.Set(context.Background(), "rooms", map[string]any{"a": 1}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := st.Update(context.Background(), "rooms/r1", map[string]any{"a/b": 1}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestUpdateKeepsSiblings(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			if err := st.Set(ctx, "rooms/r1/players/u1", testPlayer{Name: "Alice"}); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := st.Update(ctx, "rooms/r1/players/u1", map[string]any{"progress": 40, "wpm": 55.5}); err != nil {
				t.Fatalf("update: %v", err)
			}
			var p testPlayer
			if err := st.Get(ctx, "rooms/r1/players/u1", &p); err != nil {
				t.Fatalf("get: %v", err)
			}
			if p.Name != "Alice" || p.Progress != 40 || p.WPM != 55.5 {
				t.Fatalf("unexpected player %+v", p)
			}
		})
	}
}

func TestSetReplacesSubtree(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			if err := st.Set(ctx, "rooms/r1", map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 3}); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := st.Set(ctx, "rooms/r1/a", map[string]any{"z": 9}); err != nil {
				t.Fatalf("set subtree: %v", err)
			}
			var got map[string]any
			if err := st.Get(ctx, "rooms/r1", &got); err != nil {
				t.Fatalf("get: %v", err)
			}
			a := got["a"].(map[string]any)
			if len(a) != 1 || a["z"] != float64(9) || got["b"] != float64(3) {
				t.Fatalf("unexpected document %v", got)
			}
		})
	}
}

func TestConcurrentUpdatesOfDisjointFields(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			users := []string{"u1", "u2", "u3", "u4"}
			var wg sync.WaitGroup
			for i, u := range users {
				wg.Add(1)
				go func(u string, progress int) {
					defer wg.Done()
					if err := st.Update(ctx, "rooms/r1/players/"+u, map[string]any{"progress": progress}); err != nil {
						t.Errorf("update %s: %v", u, err)
					}
				}(u, (i+1)*10)
			}
			wg.Wait()
			var room testRoom
			if err := st.Get(ctx, "rooms/r1", &room); err != nil {
				t.Fatalf("get: %v", err)
			}
			for i, u := range users {
				if room.Players[u].Progress != (i+1)*10 {
					t.Fatalf("lost update for %s: %+v", u, room.Players)
				}
			}
		})
	}
}

func TestConcurrentSetsOfDisjointSubtrees(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			const writers = 30
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					u := fmt.Sprintf("u%d", i)
					if err := st.Set(ctx, "rooms/r1/players/"+u, testPlayer{Name: u}); err != nil {
						t.Errorf("set %s: %v", u, err)
					}
				}(i)
			}
			wg.Wait()
			var room testRoom
			if err := st.Get(ctx, "rooms/r1", &room); err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(room.Players) != writers {
				t.Fatalf("expected %d players, got %d", writers, len(room.Players))
			}
		})
	}
}

func TestSetIf(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			ok, err := st.SetIf(ctx, "rooms/r1/players/u1", testPlayer{Name: "Alice"}, "rooms/r1/status", "waiting")
			if err != nil || ok {
				t.Fatalf("missing document should not match: ok=%v err=%v", ok, err)
			}
			if err := st.Set(ctx, "rooms/r1", testRoom{ID: "r1", Status: "waiting"}); err != nil {
				t.Fatalf("set: %v", err)
			}
			ok, err = st.SetIf(ctx, "rooms/r1/players/u1", testPlayer{Name: "Alice"}, "rooms/r1/status", "waiting")
			if err != nil || !ok {
				t.Fatalf("expected write to apply: ok=%v err=%v", ok, err)
			}
			if err := st.Update(ctx, "rooms/r1", map[string]any{"status": "starting"}); err != nil {
				t.Fatalf("update: %v", err)
			}
			ok, err = st.SetIf(ctx, "rooms/r1/players/u2", testPlayer{Name: "Bob"}, "rooms/r1/status", "waiting")
			if err != nil || ok {
				t.Fatalf("expected write to be skipped: ok=%v err=%v", ok, err)
			}
			var room testRoom
			if err := st.Get(ctx, "rooms/r1", &room); err != nil {
				t.Fatalf("get: %v", err)
			}
			if len(room.Players) != 1 || room.Players["u1"].Name != "Alice" {
				t.Fatalf("unexpected players %+v", room.Players)
			}
		})
	}
}

func TestUpdateIf(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			if err := st.Set(ctx, "rooms/r1", testRoom{ID: "r1", Status: "starting"}); err != nil {
				t.Fatalf("set: %v", err)
			}
			ok, err := st.UpdateIf(ctx, "rooms/r1", map[string]any{"status": "playing"}, "rooms/r1/status", "waiting")
			if err != nil || ok {
				t.Fatalf("stale condition should skip: ok=%v err=%v", ok, err)
			}
			ok, err = st.UpdateIf(ctx, "rooms/r1", map[string]any{"status": "playing"}, "rooms/r1/status", "starting")
			if err != nil || !ok {
				t.Fatalf("expected update to apply: ok=%v err=%v", ok, err)
			}
			var status string
			if err := st.Get(ctx, "rooms/r1/status", &status); err != nil || status != "playing" {
				t.Fatalf("unexpected status %q, %v", status, err)
			}
		})
	}
}

func TestConditionMustNameLeafOfSameDocument(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()
	if _, err := st.SetIf(ctx, "rooms/r1/players/u1", testPlayer{}, "rooms/r2/status", "waiting"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for foreign document, got %v", err)
	}
	if _, err := st.SetIf(ctx, "rooms/r1/players/u1", testPlayer{}, "rooms/r1", "waiting"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for document root, got %v", err)
	}
	if _, err := st.SetIf(ctx, "rooms/r1/players/u1", testPlayer{}, "rooms/r1/players", testPlayer{Name: "x"}); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath for object condition, got %v", err)
	}
}

func TestSubscribeSignalsChanges(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			sub, err := st.Subscribe(ctx, "rooms/r1")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			defer sub.Close()
			waitSignal(t, sub)

			if err := st.Update(ctx, "rooms/r1", map[string]any{"status": "playing"}); err != nil {
				t.Fatalf("update: %v", err)
			}
			waitSignal(t, sub)
		})
	}
}

func TestSubscriptionCloseIsTerminal(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			ctx := context.Background()
			sub, err := st.Subscribe(ctx, "rooms/r1")
			if err != nil {
				t.Fatalf("subscribe: %v", err)
			}
			waitSignal(t, sub)
			sub.Close()
			sub.Close()

			if err := st.Update(ctx, "rooms/r1", map[string]any{"status": "playing"}); err != nil {
				t.Fatalf("update: %v", err)
			}
			select {
			case _, ok := <-sub.C():
				if ok {
					t.Fatalf("signal delivered after close")
				}
			case <-time.After(time.Second):
				t.Fatalf("channel not closed after close")
			}
		})
	}
}
