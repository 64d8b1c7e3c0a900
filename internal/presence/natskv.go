package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSConfig describes the JetStream connection and bucket naming.
type NATSConfig struct {
	URL          string
	User         string
	Password     string
	BucketPrefix string
}

// NATS keeps presence in JetStream key-value buckets:
//
//	<prefix>_PRESENCE       key userId            value JSON Record
//	<prefix>_PRESENCE_CONN  key userId.connId     value connect time
//	<prefix>_TYPING         key chatId.userId     bucket TTL = typing TTL
//
// Typing expiry is left to the bucket's max age. Connection transitions are
// serialized in-process so first/last detection stays exact for this server.
type NATS struct {
	nc     *nats.Conn
	status nats.KeyValue
	conns  nats.KeyValue
	typing nats.KeyValue
	opts   options
	log    *zerolog.Logger

	mu sync.Mutex
}

// DialNATS connects to NATS and binds (or creates) the presence buckets.
func DialNATS(cfg NATSConfig, logger *zerolog.Logger, opts ...Option) (*NATS, error) {
	o := buildOptions(opts)
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	connectOpts := []nats.Option{
		nats.Name("flowchat-presence"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	if cfg.User != "" {
		connectOpts = append(connectOpts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	prefix := cfg.BucketPrefix
	if prefix == "" {
		prefix = "FLOWCHAT"
	}

	s := &NATS{nc: nc, opts: o, log: logger}
	if s.status, err = bindBucket(js, &nats.KeyValueConfig{
		Bucket:  prefix + "_PRESENCE",
		History: 1,
		Storage: nats.MemoryStorage,
	}); err != nil {
		nc.Close()
		return nil, err
	}
	if s.conns, err = bindBucket(js, &nats.KeyValueConfig{
		Bucket:  prefix + "_PRESENCE_CONN",
		History: 1,
		Storage: nats.MemoryStorage,
	}); err != nil {
		nc.Close()
		return nil, err
	}
	if s.typing, err = bindBucket(js, &nats.KeyValueConfig{
		Bucket:  prefix + "_TYPING",
		History: 1,
		TTL:     o.typingTTL,
		Storage: nats.MemoryStorage,
	}); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info().Str("url", cfg.URL).Str("prefix", prefix).Msg("nats presence buckets ready")
	return s, nil
}

// bindBucket creates the bucket or falls back to the existing one when
// another process created it with a different configuration.
func bindBucket(js nats.JetStreamContext, cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	kv, err := js.CreateKeyValue(cfg)
	if err == nil {
		return kv, nil
	}
	if existing, bindErr := js.KeyValue(cfg.Bucket); bindErr == nil {
		return existing, nil
	}
	return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
}

func subjectKey(parts ...string) string { return strings.Join(parts, ".") }

// keysUnder lists the last token of every live key matching prefix.*.
func keysUnder(ctx context.Context, kv nats.KeyValue, prefix string) ([]string, error) {
	watcher, err := kv.Watch(prefix+".*", nats.IgnoreDeletes(), nats.Context(ctx))
	if err != nil {
		return nil, err
	}
	defer watcher.Stop()

	var out []string
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-watcher.Updates():
			if !ok || entry == nil {
				sort.Strings(out)
				return out, nil
			}
			out = append(out, strings.TrimPrefix(entry.Key(), prefix+"."))
		}
	}
}

func (s *NATS) countConnections(ctx context.Context, userID string) (int, error) {
	conns, err := keysUnder(ctx, s.conns, userID)
	if err != nil {
		return 0, fmt.Errorf("list connections: %w", err)
	}
	return len(conns), nil
}

func (s *NATS) putRecord(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.status.Put(rec.UserID, data); err != nil {
		return fmt.Errorf("put presence: %w", err)
	}
	return nil
}

func (s *NATS) SetOnline(ctx context.Context, userID, connID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.countConnections(ctx, userID)
	if err != nil {
		return false, err
	}
	now := s.opts.now().UTC()
	if _, err := s.conns.Put(subjectKey(userID, connID), []byte(now.Format(time.RFC3339Nano))); err != nil {
		return false, fmt.Errorf("put connection: %w", err)
	}

	rec := Record{
		UserID:       userID,
		Status:       StatusOnline,
		ConnectionID: connID,
		Connections:  before + 1,
		LastSeenAt:   now,
	}
	if err := s.putRecord(rec); err != nil {
		return false, err
	}
	return before == 0, nil
}

func (s *NATS) SetOffline(ctx context.Context, userID, connID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := subjectKey(userID, connID)
	if _, err := s.conns.Get(key); err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get connection: %w", err)
	}
	if err := s.conns.Delete(key); err != nil {
		return false, fmt.Errorf("delete connection: %w", err)
	}

	remaining, err := s.countConnections(ctx, userID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}

	rec := Record{UserID: userID, Status: StatusOffline, LastSeenAt: s.opts.now().UTC()}
	if err := s.putRecord(rec); err != nil {
		return false, err
	}
	return true, nil
}

func (s *NATS) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := s.countConnections(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *NATS) Get(ctx context.Context, userID string) (Record, error) {
	rec := Record{UserID: userID, Status: StatusOffline}
	entry, err := s.status.Get(userID)
	switch {
	case errors.Is(err, nats.ErrKeyNotFound):
		return rec, nil
	case err != nil:
		return rec, fmt.Errorf("get presence: %w", err)
	}
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return rec, fmt.Errorf("decode presence: %w", err)
	}

	n, err := s.countConnections(ctx, userID)
	if err != nil {
		return rec, err
	}
	rec.Connections = n
	if n == 0 {
		rec.Status = StatusOffline
		rec.ConnectionID = ""
	}
	return rec, nil
}

func (s *NATS) OnlineUsers(ctx context.Context) ([]string, error) {
	watcher, err := s.conns.WatchAll(nats.IgnoreDeletes(), nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("watch connections: %w", err)
	}
	defer watcher.Stop()

	seen := make(map[string]struct{})
	for entry := range watcher.Updates() {
		if entry == nil {
			break
		}
		key := entry.Key()
		if idx := strings.Index(key, "."); idx > 0 {
			seen[key[:idx]] = struct{}{}
		}
	}

	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

func (s *NATS) AddTyping(_ context.Context, chatID, userID string) error {
	if _, err := s.typing.Put(subjectKey(chatID, userID), []byte("1")); err != nil {
		return fmt.Errorf("add typing: %w", err)
	}
	return nil
}

func (s *NATS) RemoveTyping(_ context.Context, chatID, userID string) error {
	err := s.typing.Delete(subjectKey(chatID, userID))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("remove typing: %w", err)
	}
	return nil
}

func (s *NATS) ListTyping(ctx context.Context, chatID string) ([]string, error) {
	users, err := keysUnder(ctx, s.typing, chatID)
	if err != nil {
		return nil, fmt.Errorf("list typing: %w", err)
	}
	return users, nil
}

func (s *NATS) TypingTTL() time.Duration { return s.opts.typingTTL }

func (s *NATS) Close() error {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}

var _ Store = (*NATS)(nil)
