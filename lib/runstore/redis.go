// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/umlaut/lib/anomaly"
	"github.com/bureau-foundation/umlaut/lib/clock"
	"github.com/bureau-foundation/umlaut/lib/codec"
	"github.com/bureau-foundation/umlaut/lib/schema/telemetry"
)

// DefaultRedisPrefix namespaces every key the Redis backend writes.
const DefaultRedisPrefix = "umlaut:"

// uniqueAttempts bounds optimistic retries of ResolveUniqueSession
// when another writer changes the name index mid-transaction.
const uniqueAttempts = 16

// resolveScript returns the id registered for a name, creating the
// session when the name is new. KEYS: names hash, session index.
// ARGV: name, candidate id, now (ns), session key prefix, now (ms).
var resolveScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[1], ARGV[1])
if not id then
	id = ARGV[2]
	redis.call('HSET', KEYS[1], ARGV[1], id)
	redis.call('HSET', ARGV[4] .. id, 'name', ARGV[1], 'created_at', ARGV[3], 'modified_at', ARGV[3])
else
	redis.call('HSET', ARGV[4] .. id, 'modified_at', ARGV[3])
end
redis.call('ZADD', KEYS[2], ARGV[5], id)
return id
`)

// RedisConfig configures OpenRedis.
type RedisConfig struct {
	// URL is a redis:// or rediss:// URL.
	URL string

	// Prefix defaults to DefaultRedisPrefix.
	Prefix string

	// Clock is required.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// RedisStore keeps sessions in Redis so several umlaut-server
// replicas can share one store.
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  clock.Clock
	logger *slog.Logger
}

var _ Store = (*RedisStore)(nil)

// pointRecord is one element of a session's point list.
type pointRecord struct {
	Plot   string  `cbor:"p"`
	Series string  `cbor:"s"`
	Epoch  int     `cbor:"e"`
	Value  float64 `cbor:"v"`
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	if config.Clock == nil {
		return nil, fmt.Errorf("runstore: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("runstore: Logger is required")
	}
	options, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("runstore: parsing redis URL: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("runstore: connecting to redis at %s: %w", options.Addr, err)
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	config.Logger.Info("redis run store connected", "addr", options.Addr, "prefix", prefix)
	return &RedisStore{client: client, prefix: prefix, clock: config.Clock, logger: config.Logger}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) namesKey() string            { return s.prefix + "names" }
func (s *RedisStore) indexKey() string            { return s.prefix + "sessions" }
func (s *RedisStore) sessionPrefix() string       { return s.prefix + "session:" }
func (s *RedisStore) sessionKey(id string) string { return s.sessionPrefix() + id }
func (s *RedisStore) pointsKey(id string) string  { return s.prefix + "points:" + id }
func (s *RedisStore) kindsKey(id string) string   { return s.prefix + "kinds:" + id }

func (s *RedisStore) anomalyKey(id string, kind anomaly.Kind) string {
	return s.prefix + "anomaly:" + id + ":" + string(kind)
}

func (s *RedisStore) epochsKey(id string, kind anomaly.Kind) string {
	return s.prefix + "epochs:" + id + ":" + string(kind)
}

// ResolveSession implements Store.
func (s *RedisStore) ResolveSession(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	now := s.clock.Now()
	id, err := resolveScript.Run(ctx, s.client,
		[]string{s.namesKey(), s.indexKey()},
		name, NewID(), now.UnixNano(), s.sessionPrefix(), now.UnixMilli(),
	).Text()
	if err != nil {
		return "", fmt.Errorf("runstore: resolving session %q: %w", name, err)
	}
	return id, nil
}

// ResolveUniqueSession implements Store. The name index is watched so
// a concurrent creation forces a retry instead of a duplicate name.
func (s *RedisStore) ResolveUniqueSession(ctx context.Context, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	id := NewID()
	for range uniqueAttempts {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			names, err := tx.HKeys(ctx, s.namesKey()).Result()
			if err != nil {
				return err
			}
			unique := UniqueName(name, names)
			if err := validateName(unique); err != nil {
				return err
			}
			now := s.clock.Now()
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, s.namesKey(), unique, id)
				pipe.HSet(ctx, s.sessionKey(id),
					"name", unique,
					"created_at", now.UnixNano(),
					"modified_at", now.UnixNano())
				pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
				return nil
			})
			return err
		}, s.namesKey())
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.DebugContext(ctx, "unique session name raced, retrying", "name", name)
			continue
		}
		if err != nil {
			if errors.Is(err, ErrInvalidName) {
				return "", err
			}
			return "", fmt.Errorf("runstore: creating unique session %q: %w", name, err)
		}
		return id, nil
	}
	return "", fmt.Errorf("runstore: creating unique session %q: gave up after %d conflicting attempts", name, uniqueAttempts)
}

func (s *RedisStore) requireSession(ctx context.Context, id string) error {
	count, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("runstore: looking up session %s: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// touch queues a modification-time bump onto pipe.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, id string) {
	now := s.clock.Now()
	pipe.HSet(ctx, s.sessionKey(id), "modified_at", now.UnixNano())
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(now.UnixMilli()), Member: id})
}

// Session implements Store.
func (s *RedisStore) Session(ctx context.Context, id string) (telemetry.Session, error) {
	canonical, err := ParseID(id)
	if err != nil {
		return telemetry.Session{}, err
	}
	fields, err := s.client.HGetAll(ctx, s.sessionKey(canonical)).Result()
	if err != nil {
		return telemetry.Session{}, fmt.Errorf("runstore: reading session %s: %w", canonical, err)
	}
	if len(fields) == 0 {
		return telemetry.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, canonical)
	}
	return sessionFromHash(canonical, fields)
}

func sessionFromHash(id string, fields map[string]string) (telemetry.Session, error) {
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return telemetry.Session{}, fmt.Errorf("runstore: session %s has bad created_at: %w", id, err)
	}
	modified, err := strconv.ParseInt(fields["modified_at"], 10, 64)
	if err != nil {
		return telemetry.Session{}, fmt.Errorf("runstore: session %s has bad modified_at: %w", id, err)
	}
	return telemetry.Session{
		ID:         id,
		Name:       fields["name"],
		CreatedAt:  time.Unix(0, created).UTC(),
		ModifiedAt: time.Unix(0, modified).UTC(),
	}, nil
}

// Sessions implements Store.
func (s *RedisStore) Sessions(ctx context.Context) ([]telemetry.Session, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("runstore: listing sessions: %w", err)
	}
	commands := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			commands[i] = pipe.HGetAll(ctx, s.sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runstore: reading sessions: %w", err)
	}

	sessions := make([]telemetry.Session, 0, len(ids))
	for i, id := range ids {
		fields := commands[i].Val()
		if len(fields) == 0 {
			continue
		}
		session, err := sessionFromHash(id, fields)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	slices.SortStableFunc(sessions, func(a, b telemetry.Session) int {
		if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return sessions, nil
}

// AppendPoints implements Store.
func (s *RedisStore) AppendPoints(ctx context.Context, id string, update telemetry.PlotUpdate) error {
	canonical, err := ParseID(id)
	if err != nil {
		return err
	}
	if err := s.requireSession(ctx, canonical); err != nil {
		return err
	}

	points := update.Points()
	records := make([]any, 0, len(points))
	for _, entry := range points {
		data, err := codec.Marshal(pointRecord{
			Plot:   entry.Plot,
			Series: entry.Series,
			Epoch:  entry.Point.Epoch,
			Value:  entry.Point.Value,
		})
		if err != nil {
			return fmt.Errorf("runstore: encoding %s.%s: %w", entry.Plot, entry.Series, err)
		}
		records = append(records, data)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(records) > 0 {
			pipe.RPush(ctx, s.pointsKey(canonical), records...)
		}
		s.touch(ctx, pipe, canonical)
		return nil
	})
	if err != nil {
		return fmt.Errorf("runstore: appending points to %s: %w", canonical, err)
	}
	return nil
}

// Plots implements Store.
func (s *RedisStore) Plots(ctx context.Context, id string) (telemetry.Plots, error) {
	canonical, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.requireSession(ctx, canonical); err != nil {
		return nil, err
	}
	raw, err := s.client.LRange(ctx, s.pointsKey(canonical), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("runstore: reading points of %s: %w", canonical, err)
	}
	plots := telemetry.Plots{}
	for _, item := range raw {
		var record pointRecord
		if err := codec.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("runstore: decoding point of %s: %w", canonical, err)
		}
		plots.Add(record.Plot, record.Series, telemetry.Point{Epoch: record.Epoch, Value: record.Value})
	}
	return plots, nil
}

// MergeAnomalies implements Store. The whole batch runs in one
// MULTI/EXEC so readers never see half of it.
func (s *RedisStore) MergeAnomalies(ctx context.Context, id string, anomalies []anomaly.Anomaly) error {
	canonical, err := ParseID(id)
	if err != nil {
		return err
	}
	if err := s.requireSession(ctx, canonical); err != nil {
		return err
	}

	references := make([]string, len(anomalies))
	for i, item := range anomalies {
		if item.Reference == nil {
			continue
		}
		data, err := json.Marshal(item.Reference)
		if err != nil {
			return fmt.Errorf("runstore: encoding reference: %w", err)
		}
		references[i] = string(data)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, item := range anomalies {
			pipe.SAdd(ctx, s.kindsKey(canonical), string(item.Kind))
			key := s.anomalyKey(canonical, item.Kind)
			if item.IsStatic() {
				pipe.HSet(ctx, key, "static", "1")
			} else {
				pipe.HSetNX(ctx, key, "static", "0")
			}
			if item.Remarks != "" {
				pipe.HSet(ctx, key, "remarks", item.Remarks)
			}
			if references[i] != "" {
				pipe.HSet(ctx, key, "reference", references[i])
			}
			if len(item.Epochs) > 0 {
				members := make([]any, len(item.Epochs))
				for j, epoch := range item.Epochs {
					members[j] = epoch
				}
				pipe.SAdd(ctx, s.epochsKey(canonical, item.Kind), members...)
			}
		}
		s.touch(ctx, pipe, canonical)
		return nil
	})
	if err != nil {
		return fmt.Errorf("runstore: merging anomalies into %s: %w", canonical, err)
	}
	return nil
}

// Anomalies implements Store.
func (s *RedisStore) Anomalies(ctx context.Context, id string) ([]anomaly.Anomaly, error) {
	canonical, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	if err := s.requireSession(ctx, canonical); err != nil {
		return nil, err
	}
	kinds, err := s.client.SMembers(ctx, s.kindsKey(canonical)).Result()
	if err != nil {
		return nil, fmt.Errorf("runstore: reading anomaly kinds of %s: %w", canonical, err)
	}
	slices.Sort(kinds)

	hashes := make([]*redis.MapStringStringCmd, len(kinds))
	epochs := make([]*redis.StringSliceCmd, len(kinds))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, kind := range kinds {
			hashes[i] = pipe.HGetAll(ctx, s.anomalyKey(canonical, anomaly.Kind(kind)))
			epochs[i] = pipe.SMembers(ctx, s.epochsKey(canonical, anomaly.Kind(kind)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("runstore: reading anomalies of %s: %w", canonical, err)
	}

	result := make([]anomaly.Anomaly, 0, len(kinds))
	for i, kind := range kinds {
		fields := hashes[i].Val()
		item := anomaly.Anomaly{Kind: anomaly.Kind(kind), Remarks: fields["remarks"]}
		if reference := fields["reference"]; reference != "" {
			var location anomaly.Location
			if err := json.Unmarshal([]byte(reference), &location); err != nil {
				return nil, fmt.Errorf("runstore: decoding reference for %s: %w", kind, err)
			}
			item.Reference = &location
		}
		if fields["static"] != "1" {
			values := make([]int, 0, len(epochs[i].Val()))
			for _, member := range epochs[i].Val() {
				epoch, err := strconv.Atoi(member)
				if err != nil {
					return nil, fmt.Errorf("runstore: %s has bad epoch %q: %w", kind, member, err)
				}
				values = append(values, epoch)
			}
			item.Epochs = anomaly.Epochs(values...)
		}
		result = append(result, item)
	}
	return result, nil
}
