package realtime

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPresence mirrors room occupancy into Redis so other processes (and
// the /online endpoint) can see who is connected. Each room is a hash
// room:<groupID>:presence mapping connection id to "<lastSeenMs>:<userID>".
// Entries older than the TTL are ignored by Online and removed, so a
// connection nobody refreshes disappears even while other processes keep
// the room key alive.
//
// Join and Leave enqueue and return immediately; a single worker applies
// the updates. When the queue is full the update is dropped and counted.
type RedisPresence struct {
	rdb     redis.Cmdable
	ops     chan presenceOp
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger

	now      func() time.Time
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type presenceOp struct {
	join    bool
	groupID string
	connID  string
	userID  string
}

// NewRedisPresence starts the update worker. An entry counts as present
// for ttl after it was last written; the room hash itself also expires ttl
// after its last write.
func NewRedisPresence(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisPresence {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	p := &RedisPresence{
		rdb:     rdb,
		ops:     make(chan presenceOp, 1024),
		ttl:     ttl,
		timeout: 2 * time.Second,
		log:     logger,
		now:     time.Now,
	}
	p.wg.Add(1)
	go p.worker()
	return p
}

func presenceKey(groupID string) string {
	return "room:" + groupID + ":presence"
}

func presenceValue(seen time.Time, userID string) string {
	return strconv.FormatInt(seen.UnixMilli(), 10) + ":" + userID
}

// parsePresence splits a hash value into its last-seen time and user id.
// Values that do not carry a timestamp are reported as not ok.
func parsePresence(v string) (time.Time, string, bool) {
	ms, userID, found := strings.Cut(v, ":")
	if !found {
		return time.Time{}, "", false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, "", false
	}
	return time.UnixMilli(n), userID, true
}

// livePresence returns the sorted distinct non-empty user ids among fields
// seen within ttl of now, and the connection ids whose entries are stale or
// unreadable.
func livePresence(fields map[string]string, now time.Time, ttl time.Duration) ([]string, []string) {
	seen := make(map[string]struct{}, len(fields))
	users := []string{}
	var stale []string
	for connID, v := range fields {
		at, userID, ok := parsePresence(v)
		if !ok || now.Sub(at) > ttl {
			stale = append(stale, connID)
			continue
		}
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		users = append(users, userID)
	}
	sort.Strings(users)
	sort.Strings(stale)
	return users, stale
}

func (p *RedisPresence) Join(groupID, connID, userID string) {
	p.enqueue(presenceOp{join: true, groupID: groupID, connID: connID, userID: userID})
}

func (p *RedisPresence) Leave(groupID, connID string) {
	p.enqueue(presenceOp{groupID: groupID, connID: connID})
}

func (p *RedisPresence) enqueue(op presenceOp) {
	select {
	case p.ops <- op:
	default:
		presenceDropped.Inc()
	}
}

func (p *RedisPresence) worker() {
	defer p.wg.Done()
	for op := range p.ops {
		p.apply(op)
	}
}

func (p *RedisPresence) apply(op presenceOp) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	key := presenceKey(op.groupID)
	var err error
	if op.join {
		_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, op.connID, presenceValue(p.now(), op.userID))
			pipe.Expire(ctx, key, p.ttl)
			return nil
		})
	} else {
		err = p.rdb.HDel(ctx, key, op.connID).Err()
	}
	if err != nil {
		p.log.Warn("presence update failed",
			zap.String("group_id", op.groupID),
			zap.String("conn_id", op.connID),
			zap.Bool("join", op.join),
			zap.Error(err))
	}
}

// Refresh rewrites the given occupancy (group id to connection id to user
// id) with the current time and renews each room's expiry. Entries for
// other connections are left alone and age out unless their own process
// refreshes them. It runs synchronously.
func (p *RedisPresence) Refresh(ctx context.Context, rooms map[string]map[string]string) error {
	if len(rooms) == 0 {
		return nil
	}
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for groupID, conns := range rooms {
			if len(conns) == 0 {
				continue
			}
			key := presenceKey(groupID)
			now := p.now()
			fields := make([]any, 0, 2*len(conns))
			for connID, userID := range conns {
				fields = append(fields, connID, presenceValue(now, userID))
			}
			pipe.HSet(ctx, key, fields...)
			pipe.Expire(ctx, key, p.ttl)
		}
		return nil
	})
	return err
}

// Online returns the distinct non-empty user ids present in a room, sorted.
// Stale entries are skipped and deleted.
func (p *RedisPresence) Online(ctx context.Context, groupID string) ([]string, error) {
	key := presenceKey(groupID)
	fields, err := p.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	users, stale := livePresence(fields, p.now(), p.ttl)
	if len(stale) > 0 {
		if err := p.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			p.log.Warn("presence prune failed", zap.String("group_id", groupID), zap.Error(err))
		}
	}
	return users, nil
}

// Close drains queued updates and stops the worker. Join and Leave must not
// be called afterwards; stop the router first.
func (p *RedisPresence) Close() {
	p.stopOnce.Do(func() { close(p.ops) })
	p.wg.Wait()
}
