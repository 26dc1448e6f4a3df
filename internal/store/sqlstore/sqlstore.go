// Package sqlstore persists drafts in the SQLite database, compressed.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/db"
	"github.com/debemdeboas/coursesync/internal/store"
	"github.com/debemdeboas/coursesync/internal/util"
	"github.com/debemdeboas/coursesync/internal/util/compression"
)

var sqlLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	sqlLogger = l
}

const upsertDraft = `
INSERT INTO drafts (key, entity_id, data, content_hash, processing, needs_submission, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    entity_id = excluded.entity_id,
    data = excluded.data,
    content_hash = excluded.content_hash,
    processing = excluded.processing,
    needs_submission = excluded.needs_submission,
    updated_at = excluded.updated_at`

// Persister implements store.Persister on top of db.DB.
type Persister struct {
	db         db.DB
	compressor compression.Compressor
}

var _ store.Persister = (*Persister)(nil)

func New(database db.DB, compressor compression.Compressor) *Persister {
	if compressor == nil {
		compressor = compression.ZstdCompressor{}
	}
	return &Persister{db: database, compressor: compressor}
}

func (p *Persister) Save(ctx context.Context, rec store.Record) error {
	data, err := store.EncodeRecord(rec)
	if err != nil {
		return err
	}
	compressed, err := p.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("compress draft %s with %s: %w", rec.Draft.Key, p.compressor.Name(), err)
	}

	var entityID sql.NullInt64
	if rec.Draft.EntityID != nil {
		entityID = sql.NullInt64{Int64: *rec.Draft.EntityID, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, upsertDraft,
		rec.Draft.Key,
		entityID,
		compressed,
		util.ContentHash(data),
		rec.Processing,
		rec.Draft.NeedsSubmission,
		rec.Draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save draft %s: %w", rec.Draft.Key, err)
	}
	return nil
}

func (p *Persister) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	return nil
}

// LoadAll skips rows whose blob fails its content hash, logging them.
func (p *Persister) LoadAll(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, data, content_hash FROM drafts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var recs []store.Record
	for rows.Next() {
		var key, hash string
		var compressed []byte
		if err := rows.Scan(&key, &compressed, &hash); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}

		data, err := p.compressor.Decompress(compressed)
		if err != nil {
			sqlLogger.Error().Err(err).Str("draft_key", key).Str("compression", p.compressor.Name()).Msg("Skipping draft that failed to decompress")
			continue
		}
		if util.ContentHash(data) != hash {
			sqlLogger.Error().Str("draft_key", key).Msg("Skipping draft with mismatched content hash")
			continue
		}

		rec, err := store.DecodeRecord(data)
		if err != nil {
			sqlLogger.Error().Err(err).Str("draft_key", key).Msg("Skipping undecodable draft")
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return recs, nil
}
