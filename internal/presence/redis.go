package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineUsersKey = "users:online"

func presenceKey(userID string) string   { return "user:" + userID + ":presence" }
func connectionsKey(userID string) string { return "user:" + userID + ":connections" }
func typingKey(chatID string) string      { return "chat:" + chatID + ":typing" }

// Redis stores presence in redis.
//
//	user:<id>:presence     hash  status, connectionId, lastSeenAt
//	user:<id>:connections  set   live connection ids
//	users:online           set   users with at least one connection
//	chat:<id>:typing       zset  member userId, score = expiry in unix ms
//
// The typing key itself carries a PEXPIRE so an idle chat drops out of redis.
// The transition scripts touch users:online together with per-user keys, so
// they need a single-node (or sentinel) deployment, not redis cluster.
type Redis struct {
	client redis.UniversalClient
	opts   options
}

// NewRedis wraps an existing client. Close closes the client.
func NewRedis(client redis.UniversalClient, opts ...Option) *Redis {
	return &Redis{client: client, opts: buildOptions(opts)}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedis(client, opts...), nil
}

// Each transition runs as one script so the connection set, the presence
// hash and users:online never disagree, even when a reconnect races the
// previous connection's disconnect.
//
// KEYS: connections, presence hash, users:online
// ARGV: connId, lastSeenAt, userId
var (
	setOnlineScript = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
local size = redis.call('SCARD', KEYS[1])
redis.call('HSET', KEYS[2], 'status', 'online', 'connectionId', ARGV[1], 'lastSeenAt', ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
if added == 1 and size == 1 then
	return 1
end
return 0
`)

	setOfflineScript = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
if redis.call('SCARD', KEYS[1]) > 0 then
	return 0
end
redis.call('HSET', KEYS[2], 'status', 'offline', 'connectionId', '', 'lastSeenAt', ARGV[2])
redis.call('SREM', KEYS[3], ARGV[3])
return 1
`)
)

func (r *Redis) transition(ctx context.Context, script *redis.Script, userID, connID string) (bool, error) {
	keys := []string{connectionsKey(userID), presenceKey(userID), onlineUsersKey}
	now := r.opts.now().UTC().Format(time.RFC3339Nano)
	n, err := script.Run(ctx, r.client, keys, connID, now, userID).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) SetOnline(ctx context.Context, userID, connID string) (bool, error) {
	became, err := r.transition(ctx, setOnlineScript, userID, connID)
	if err != nil {
		return false, fmt.Errorf("set online: %w", err)
	}
	return became, nil
}

func (r *Redis) SetOffline(ctx context.Context, userID, connID string) (bool, error) {
	went, err := r.transition(ctx, setOfflineScript, userID, connID)
	if err != nil {
		return false, fmt.Errorf("set offline: %w", err)
	}
	return went, nil
}

// IsOnline reads the connection set itself, the source of truth.
func (r *Redis) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, connectionsKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("is online: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Get(ctx context.Context, userID string) (Record, error) {
	var fields *redis.MapStringStringCmd
	var size *redis.IntCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fields = pipe.HGetAll(ctx, presenceKey(userID))
		size = pipe.SCard(ctx, connectionsKey(userID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, fmt.Errorf("get presence: %w", err)
	}

	rec := Record{UserID: userID, Status: StatusOffline, Connections: int(size.Val())}
	values := fields.Val()
	if rec.Connections > 0 {
		rec.Status = StatusOnline
		rec.ConnectionID = values["connectionId"]
	}
	if ts := values["lastSeenAt"]; ts != "" {
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			rec.LastSeenAt = parsed
		}
	}
	return rec, nil
}

func (r *Redis) OnlineUsers(ctx context.Context) ([]string, error) {
	users, err := r.client.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("online users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

func (r *Redis) AddTyping(ctx context.Context, chatID, userID string) error {
	key := typingKey(chatID)
	expiry := r.opts.now().Add(r.opts.typingTTL).UnixMilli()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(expiry), Member: userID})
		pipe.PExpire(ctx, key, r.opts.typingTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add typing: %w", err)
	}
	return nil
}

func (r *Redis) RemoveTyping(ctx context.Context, chatID, userID string) error {
	if err := r.client.ZRem(ctx, typingKey(chatID), userID).Err(); err != nil {
		return fmt.Errorf("remove typing: %w", err)
	}
	return nil
}

func (r *Redis) ListTyping(ctx context.Context, chatID string) ([]string, error) {
	key := typingKey(chatID)
	now := strconv.FormatInt(r.opts.now().UnixMilli(), 10)

	var members *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", now)
		members = pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "(" + now, Max: "+inf"})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}
	users := members.Val()
	sort.Strings(users)
	return users, nil
}

func (r *Redis) TypingTTL() time.Duration { return r.opts.typingTTL }

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
