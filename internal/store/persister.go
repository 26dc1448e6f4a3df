package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/debemdeboas/coursesync/internal/model"
)

// Record is the persisted form of one key. File binaries are never part of it.
type Record struct {
	Draft      *model.Draft `json:"draft"`
	Processing bool         `json:"processing"`
}

// Persister durably stores records, one per key.
type Persister interface {
	Save(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key string) error
	LoadAll(ctx context.Context) ([]Record, error)
}

func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode draft %s: %w", rec.Draft.Key, err)
	}
	return data, nil
}

func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode draft: %w", err)
	}
	if rec.Draft == nil {
		return Record{}, fmt.Errorf("decode draft: record has no draft")
	}
	return rec, nil
}

// MemoryPersister keeps encoded records in memory. Records go through the
// same JSON encoding as the durable persisters.
type MemoryPersister struct {
	mu      sync.Mutex
	records map[string][]byte

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{records: make(map[string][]byte)}
}

func (m *MemoryPersister) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	m.records[rec.Draft.Key] = data
	return nil
}

func (m *MemoryPersister) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.records, key)
	return nil
}

func (m *MemoryPersister) LoadAll(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	recs := make([]Record, 0, len(keys))
	for _, k := range keys {
		rec, err := DecodeRecord(m.records[k])
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Len returns the number of stored records.
func (m *MemoryPersister) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
