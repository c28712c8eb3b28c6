package repository

import (
	"context"
	"fmt"
	"time"

	"officehours/internal/common/cache"
	"officehours/internal/queue/model"
)

// transitionScript moves one status field and adjusts the Order list in the
// same step. KEYS[1] is the status hash, KEYS[2] the Order list.
// ARGV: requestId, expected, next ('' deletes), order op ('append', 'remove' or '').
// It returns {1, HGETALL, LRANGE, changed} on success and {0, observed} on mismatch.
// A missing field compares as ''.
const transitionScript = `
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then cur = '' end
if cur ~= ARGV[2] then
  return {0, cur}
end
if ARGV[3] == '' then
  redis.call('HDEL', KEYS[1], ARGV[1])
else
  redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
end
local changed = 0
if ARGV[4] == 'append' then
  local found = false
  for _, v in ipairs(redis.call('LRANGE', KEYS[2], 0, -1)) do
    if v == ARGV[1] then
      found = true
      break
    end
  end
  if not found then
    redis.call('RPUSH', KEYS[2], ARGV[1])
    changed = 1
  end
elseif ARGV[4] == 'remove' then
  if redis.call('LREM', KEYS[2], 0, ARGV[1]) > 0 then
    changed = 1
  end
end
return {1, redis.call('HGETALL', KEYS[1]), redis.call('LRANGE', KEYS[2], 0, -1), changed}
`

// OrderOp is the Order change applied together with a status write.
type OrderOp string

const (
	OrderKeep   OrderOp = ""
	OrderAppend OrderOp = "append"
	OrderRemove OrderOp = "remove"
)

// Transition describes one status write.
type Transition struct {
	CourseID  string
	RequestID string
	Expected  model.Status
	Next      model.Status
	Order     OrderOp
}

// TransitionResult is the course state right after a Transition committed.
type TransitionResult struct {
	Statuses     map[string]model.Status
	Order        []string
	OrderChanged bool
}

// StatusRepository is the per-course requestId -> Status map.
type StatusRepository interface {
	// Get returns the stored status; absence reads as CREATED.
	Get(ctx context.Context, courseID, requestID string) (model.Status, error)
	// All returns every stored status of the course.
	All(ctx context.Context, courseID string) (map[string]model.Status, error)
	// Apply moves the request from Expected to Next and applies the Order op
	// atomically. CREATED and CLOSED are both stored as absence, so Next CLOSED
	// deletes the entry. Expected equal to Next only reapplies the Order op.
	// A mismatch yields ErrStatusConflict and changes nothing.
	Apply(ctx context.Context, transition Transition) (*TransitionResult, error)
}

// RedisStatusRepository keeps the status map in a Redis hash next to the Order list.
type RedisStatusRepository struct {
	cache   cache.Cache
	timeout time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, timeout time.Duration) *RedisStatusRepository {
	return &RedisStatusRepository{cache: cacheClient, timeout: timeout}
}

func statusKey(courseID string) string {
	return "queue:status:{" + courseID + "}"
}

// Get returns the status of one request.
func (r *RedisStatusRepository) Get(ctx context.Context, courseID, requestID string) (model.Status, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.cache.HGet(ctx, statusKey(courseID), requestID)
	if err != nil {
		return "", err
	}
	return model.FromStored(v), nil
}

// All returns the status map of a course.
func (r *RedisStatusRepository) All(ctx context.Context, courseID string) (map[string]model.Status, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.cache.HGetAll(ctx, statusKey(courseID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Status, len(raw))
	for id, v := range raw {
		out[id] = model.FromStored(v)
	}
	return out, nil
}

// Apply runs the transition script.
func (r *RedisStatusRepository) Apply(ctx context.Context, t Transition) (*TransitionResult, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	keys := []string{statusKey(t.CourseID), orderKey(t.CourseID)}
	res, err := r.cache.Eval(ctx, transitionScript, keys, t.RequestID, t.Expected.Stored(), t.Next.Stored(), string(t.Order))
	if err != nil {
		return nil, err
	}
	reply, ok := res.([]interface{})
	if !ok || len(reply) < 2 {
		return nil, fmt.Errorf("unexpected status script reply %T", res)
	}
	if applied, _ := reply[0].(int64); applied != 1 {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrStatusConflict, t.Expected, model.FromStored(toString(reply[1])))
	}
	if len(reply) != 4 {
		return nil, fmt.Errorf("unexpected status script reply length %d", len(reply))
	}

	flat := toStrings(reply[1])
	statuses := make(map[string]model.Status, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		statuses[flat[i]] = model.FromStored(flat[i+1])
	}
	changed, _ := reply[3].(int64)
	return &TransitionResult{
		Statuses:     statuses,
		Order:        toStrings(reply[2]),
		OrderChanged: changed == 1,
	}, nil
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func toStrings(v interface{}) []string {
	items, _ := v.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, toString(item))
	}
	return out
}
