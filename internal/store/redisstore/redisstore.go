// Package redisstore persists drafts in Redis: one string value per draft and
// a set indexing the stored keys.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/store"
)

var redisLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	redisLogger = l
}

const DefaultPrefix = "coursesync"

type Persister struct {
	client *redis.Client
	prefix string
}

var _ store.Persister = (*Persister)(nil)

func New(client *redis.Client, prefix string) *Persister {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Persister{client: client, prefix: prefix}
}

func (p *Persister) draftKey(key string) string {
	return fmt.Sprintf("%s:draft:%s", p.prefix, key)
}

func (p *Persister) indexKey() string {
	return p.prefix + ":drafts"
}

func (p *Persister) Save(ctx context.Context, rec store.Record) error {
	data, err := store.EncodeRecord(rec)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.draftKey(rec.Draft.Key), string(data), 0)
	pipe.SAdd(ctx, p.indexKey(), rec.Draft.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save draft %s in Redis: %w", rec.Draft.Key, err)
	}
	return nil
}

func (p *Persister) Delete(ctx context.Context, key string) error {
	pipe := p.client.Pipeline()
	pipe.Del(ctx, p.draftKey(key))
	pipe.SRem(ctx, p.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete draft %s from Redis: %w", key, err)
	}
	return nil
}

func (p *Persister) LoadAll(ctx context.Context) ([]store.Record, error) {
	keys, err := p.client.SMembers(ctx, p.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts in Redis: %w", err)
	}
	sort.Strings(keys)

	recs := make([]store.Record, 0, len(keys))
	for _, key := range keys {
		data, err := p.client.Get(ctx, p.draftKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			redisLogger.Warn().Str("draft_key", key).Msg("Indexed draft is missing")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get draft %s from Redis: %w", key, err)
		}

		rec, err := store.DecodeRecord(data)
		if err != nil {
			redisLogger.Error().Err(err).Str("draft_key", key).Msg("Skipping undecodable draft")
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
