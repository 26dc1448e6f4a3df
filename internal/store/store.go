// Package store holds course drafts keyed by entity, the per-key processing
// flag and the in-memory side table of file binaries waiting to be uploaded.
//
// Every mutation is written through a Persister before subscribers are
// notified. Binaries are never persisted: a draft restored by Load keeps its
// file placeholders and reports them through MissingFiles until they are
// attached again.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/model"
)

var storeLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	storeLogger = l
}

var ErrNotFound = errors.New("draft not found")

type Op string

const (
	OpCommit     Op = "commit"
	OpClear      Op = "clear"
	OpProcessing Op = "processing"
	OpLoad       Op = "load"
)

// Change describes one mutation. Key is empty for OpLoad.
type Change struct {
	Key string
	Op  Op
}

type CommitOptions struct {
	Submit bool
	// Files attaches binaries by slot. Slots already holding a binary keep it
	// unless replaced here.
	Files map[string]model.File
}

// Snapshot is a consistent copy of one key taken under the store lock.
type Snapshot struct {
	Draft      *model.Draft
	Processing bool
	Revision   uint64
	Files      map[string]model.File
}

// Entry summarizes one key for listings.
type Entry struct {
	Draft      *model.Draft
	Processing bool
	Revision   uint64
	Missing    []model.FileRef
}

type entry struct {
	draft    *model.Draft
	revision uint64
}

type Store struct {
	mu         sync.Mutex
	drafts     map[string]*entry
	processing map[string]bool
	files      map[string]map[string]model.File
	revision   uint64

	persister Persister

	subMu  sync.RWMutex
	subs   map[uint64]func(Change)
	nextID uint64

	now func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(persister Persister, opts ...Option) *Store {
	if persister == nil {
		persister = NewMemoryPersister()
	}
	s := &Store{
		drafts:     make(map[string]*entry),
		processing: make(map[string]bool),
		files:      make(map[string]map[string]model.File),
		persister:  persister,
		subs:       make(map[uint64]func(Change)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores every persisted draft. Processing flags are reset since no
// run survives a restart.
func (s *Store) Load(ctx context.Context) error {
	recs, err := s.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load drafts: %w", err)
	}

	s.mu.Lock()
	for _, rec := range recs {
		d := rec.Draft
		if d.Key == "" {
			d.Key = d.DerivedKey()
		}
		s.revision++
		s.drafts[d.Key] = &entry{draft: d, revision: s.revision}
		s.processing[d.Key] = false

		if refs := d.FileRefs(); len(refs) > 0 {
			names := make([]string, len(refs))
			for i, r := range refs {
				names[i] = r.Name
			}
			storeLogger.Warn().
				Str("draft_key", d.Key).
				Strs("files", names).
				Bool("needs_submission", d.NeedsSubmission).
				Msg("Draft restored without its file binaries; re-attach them before submitting")
		}
	}
	s.mu.Unlock()

	storeLogger.Info().Int("drafts", len(recs)).Msg("Drafts loaded")
	s.notify(Change{Op: OpLoad})
	return nil
}

// Commit stores draft under its derived key, replacing whatever was there.
// NeedsSubmission is set from opts.Submit and the processing flag is reset.
func (s *Store) Commit(ctx context.Context, draft *model.Draft, opts CommitOptions) error {
	d := draft.Clone()
	d.Key = d.DerivedKey()
	d.NeedsSubmission = opts.Submit
	d.UpdatedAt = s.now().UTC()

	for slot, f := range opts.Files {
		if err := d.AttachFile(slot, f.Ref(slot)); err != nil {
			return fmt.Errorf("commit %s: %w", d.Key, err)
		}
	}

	s.mu.Lock()
	rev, err := s.put(ctx, d, opts.Files)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	storeLogger.Debug().Str("draft_key", d.Key).Bool("submit", opts.Submit).Uint64("revision", rev).Msg("Draft committed")
	s.notify(Change{Key: d.Key, Op: OpCommit})
	return nil
}

// Attach adds files by slot to the draft currently stored under key, as one
// new revision. A nil submit keeps the draft's submission flag.
func (s *Store) Attach(ctx context.Context, key string, files map[string]model.File, submit *bool) error {
	s.mu.Lock()
	e, ok := s.drafts[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("attach to %s: %w", key, ErrNotFound)
	}
	d := e.draft.Clone()
	if submit != nil {
		d.NeedsSubmission = *submit
	}
	d.UpdatedAt = s.now().UTC()
	for slot, f := range files {
		if err := d.AttachFile(slot, f.Ref(slot)); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("attach to %s: %w", key, err)
		}
	}
	rev, err := s.put(ctx, d, files)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	storeLogger.Debug().Str("draft_key", key).Int("files", len(files)).Uint64("revision", rev).Msg("Files attached")
	s.notify(Change{Key: key, Op: OpCommit})
	return nil
}

// put persists d as the next revision of its key. Caller holds s.mu.
func (s *Store) put(ctx context.Context, d *model.Draft, files map[string]model.File) (uint64, error) {
	if err := s.persister.Save(ctx, Record{Draft: d, Processing: false}); err != nil {
		return 0, fmt.Errorf("persist draft %s: %w", d.Key, err)
	}
	s.revision++
	s.drafts[d.Key] = &entry{draft: d, revision: s.revision}
	s.processing[d.Key] = false
	s.syncFiles(d, files)
	return s.revision, nil
}

// syncFiles keeps binaries for slots d still references and adds the new
// ones. Caller holds s.mu.
func (s *Store) syncFiles(d *model.Draft, added map[string]model.File) {
	old := s.files[d.Key]
	next := make(map[string]model.File)
	for _, ref := range d.FileRefs() {
		if f, ok := added[ref.Slot]; ok {
			next[ref.Slot] = f
			continue
		}
		if f, ok := old[ref.Slot]; ok && f.Name == ref.Name && f.Size == ref.Size {
			next[ref.Slot] = f
		}
	}
	for slot, f := range old {
		if kept, ok := next[slot]; !ok || !kept.Same(f) {
			releaseFile(d.Key, slot, f)
		}
	}
	if len(next) == 0 {
		delete(s.files, d.Key)
		return
	}
	s.files[d.Key] = next
}

func releaseFile(key, slot string, f model.File) {
	if err := f.Release(); err != nil {
		storeLogger.Warn().Err(err).Str("draft_key", key).Str("slot", slot).Msg("Failed to release file")
	}
}

func (s *Store) Get(key string) (*model.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drafts[key]
	if !ok {
		return nil, false
	}
	return e.draft.Clone(), true
}

// Clear removes the draft, its processing flag and its binaries.
func (s *Store) Clear(ctx context.Context, entityID *int64) error {
	_, err := s.clear(ctx, model.KeyFor(entityID), 0)
	return err
}

// ClearRevision clears key only while it is still at revision rev. It reports
// whether the draft was removed.
func (s *Store) ClearRevision(ctx context.Context, key string, rev uint64) (bool, error) {
	return s.clear(ctx, key, rev)
}

func (s *Store) clear(ctx context.Context, key string, rev uint64) (bool, error) {
	s.mu.Lock()
	e, ok := s.drafts[key]
	if ok && rev != 0 && e.revision != rev {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.persister.Delete(ctx, key); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("delete draft %s: %w", key, err)
	}
	delete(s.drafts, key)
	delete(s.processing, key)
	for slot, f := range s.files[key] {
		releaseFile(key, slot, f)
	}
	delete(s.files, key)
	s.mu.Unlock()

	storeLogger.Debug().Str("draft_key", key).Msg("Draft cleared")
	s.notify(Change{Key: key, Op: OpClear})
	return ok, nil
}

// SetProcessing toggles the processing flag of the entity's key.
func (s *Store) SetProcessing(ctx context.Context, entityID *int64, processing bool) error {
	key := model.KeyFor(entityID)

	s.mu.Lock()
	if e, ok := s.drafts[key]; ok {
		if err := s.persister.Save(ctx, Record{Draft: e.draft, Processing: processing}); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist processing flag %s: %w", key, err)
		}
	}
	s.processing[key] = processing
	s.mu.Unlock()

	s.notify(Change{Key: key, Op: OpProcessing})
	return nil
}

// MarkProcessing sets the processing flag of key only while it is still at
// revision rev. It reports whether the flag was set.
func (s *Store) MarkProcessing(ctx context.Context, key string, rev uint64) (bool, error) {
	s.mu.Lock()
	e, ok := s.drafts[key]
	if !ok || e.revision != rev {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.persister.Save(ctx, Record{Draft: e.draft, Processing: true}); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("persist processing flag %s: %w", key, err)
	}
	s.processing[key] = true
	s.mu.Unlock()

	s.notify(Change{Key: key, Op: OpProcessing})
	return true, nil
}

func (s *Store) IsProcessing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing[key]
}

// Revision returns the commit revision of key, zero when absent.
func (s *Store) Revision(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.drafts[key]; ok {
		return e.revision
	}
	return 0
}

func (s *Store) Snapshot(key string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drafts[key]
	if !ok {
		return Snapshot{}, false
	}
	files := make(map[string]model.File, len(s.files[key]))
	for slot, f := range s.files[key] {
		files[slot] = f
	}
	return Snapshot{
		Draft:      e.draft.Clone(),
		Processing: s.processing[key],
		Revision:   e.revision,
		Files:      files,
	}, true
}

// File returns the binary attached to slot of key.
func (s *Store) File(key, slot string) (model.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[key][slot]
	return f, ok
}

// MissingFiles lists placeholders of key that have no binary attached.
func (s *Store) MissingFiles(key string) []model.FileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missing(key)
}

func (s *Store) missing(key string) []model.FileRef {
	e, ok := s.drafts[key]
	if !ok {
		return nil
	}
	var out []model.FileRef
	for _, ref := range e.draft.FileRefs() {
		if _, ok := s.files[key][ref.Slot]; !ok {
			out = append(out, ref)
		}
	}
	return out
}

// Ready returns, in sorted order, the keys flagged for submission whose
// processing flag is clear.
func (s *Store) Ready() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, e := range s.drafts {
		if e.draft.NeedsSubmission && !s.processing[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Keys returns all draft keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.drafts))
	for k := range s.drafts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.drafts))
	for k := range s.drafts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e := s.drafts[k]
		out = append(out, Entry{
			Draft:      e.draft.Clone(),
			Processing: s.processing[k],
			Revision:   e.revision,
			Missing:    s.missing(k),
		})
	}
	return out
}

// Subscribe registers fn for every change. Notifications are delivered on the
// mutating goroutine, after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.RLock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
