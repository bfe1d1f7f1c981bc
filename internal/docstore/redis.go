package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/go-redis/redis/v8"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "typerace:doc:"

// applyScript performs one write inside Redis so the condition check, the
// removal of replaced fields, the new leaves and the change notice are a
// single atomic step.
//
// KEYS[1] is the document hash. ARGV holds the channel, the document name,
// the condition field ("" for none) and value, the prefix count, the
// prefixes, then field/value pairs.
var applyScript = redis.NewScript(`
local key = KEYS[1]
if ARGV[3] ~= "" and redis.call("HGET", key, ARGV[3]) ~= ARGV[4] then
  return 0
end
local n = tonumber(ARGV[5])
local first = 6 + n
local replaced = {}
for i = first, #ARGV, 2 do
  replaced[ARGV[i]] = true
end
local function overlaps(k, p)
  if p == "" or k == p then
    return true
  end
  if string.sub(k, 1, #p + 1) == p .. "/" then
    return true
  end
  return string.sub(p, 1, #k + 1) == k .. "/"
end
local stale = {}
if n > 0 then
  for _, k in ipairs(redis.call("HKEYS", key)) do
    if not replaced[k] then
      for i = 6, 5 + n do
        if overlaps(k, ARGV[i]) then
          table.insert(stale, k)
          break
        end
      end
    end
  end
end
if #stale > 0 then
  redis.call("HDEL", key, unpack(stale))
end
if first <= #ARGV then
  redis.call("HSET", key, unpack(ARGV, first))
end
redis.call("PUBLISH", ARGV[1], ARGV[2])
return 1
`)

// NewRedis returns a store keeping each document in one Redis hash and
// announcing changes on a pub/sub channel per document.
func NewRedis(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return newStore(&redisBackend{client: client, prefix: keyPrefix}, "redis")
}

type redisBackend struct {
	client *redis.Client
	prefix string
}

func (r *redisBackend) key(doc string) string {
	return r.prefix + doc
}

func (r *redisBackend) channel(doc string) string {
	return r.prefix + doc + ":changed"
}

func (r *redisBackend) load(ctx context.Context, doc string) (map[string]json.RawMessage, error) {
	values, err := r.client.HGetAll(ctx, r.key(doc)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

func (r *redisBackend) apply(ctx context.Context, doc string, w write) (bool, error) {
	condField, condValue := "", ""
	if w.cond != nil {
		condField, condValue = w.cond.field, string(w.cond.value)
	}
	args := make([]interface{}, 0, 5+len(w.prefixes)+2*len(w.fields))
	args = append(args, r.channel(doc), doc, condField, condValue, len(w.prefixes))
	for _, p := range w.prefixes {
		args = append(args, p)
	}
	for k, v := range w.fields {
		args = append(args, k, string(v))
	}
	applied, err := applyScript.Run(ctx, r.client, []string{r.key(doc)}, args...).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

func (r *redisBackend) watch(ctx context.Context, doc string) (<-chan struct{}, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel(doc))
	// Wait for the subscription to be confirmed so no later publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}
	msgs := pubsub.Channel()
	out := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for range msgs {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = pubsub.Close()
			wg.Wait()
		})
	}
	return out, stop, nil
}

func (r *redisBackend) close() error {
	return r.client.Close()
}
