// Package orchestrator watches the draft store and drives every draft that is
// ready for submission through upload, assembly and submission, at most once
// at a time per key.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/payload"
	"github.com/debemdeboas/coursesync/internal/store"
	"github.com/debemdeboas/coursesync/internal/telemetry"
	"github.com/debemdeboas/coursesync/internal/transfer"
)

var orchLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	orchLogger = l
}

// State is the pipeline position of one key.
type State string

const (
	StateIdle       State = "IDLE"
	StateStarted    State = "STARTED"
	StateUploading  State = "UPLOADING"
	StateSubmitting State = "SUBMITTING"
)

var (
	ErrBusy     = errors.New("draft is being processed")
	ErrNotFound = errors.New("draft not found")
)

type DraftStore interface {
	Subscribe(fn func(store.Change)) func()
	Ready() []string
	Snapshot(key string) (store.Snapshot, bool)
	SetProcessing(ctx context.Context, entityID *int64, processing bool) error
	MarkProcessing(ctx context.Context, key string, rev uint64) (bool, error)
	ClearRevision(ctx context.Context, key string, rev uint64) (bool, error)
	Attach(ctx context.Context, key string, files map[string]model.File, submit *bool) error
}

type Uploader interface {
	Upload(ctx context.Context, file model.File, purpose model.Purpose, courseSlug string, onProgress transfer.ProgressFunc) (string, error)
	Pause(ctx context.Context) error
}

type Courses interface {
	CreateCourse(ctx context.Context, body *payload.Course) (*model.Course, error)
	UpdateCourse(ctx context.Context, slug string, body *payload.Course) (*model.Course, error)
}

// Listings is any cached listing of courses that must be refetched after a
// successful submission.
type Listings interface {
	Invalidate()
}

type Config struct {
	Store    DraftStore
	Transfer Uploader
	Courses  Courses
	Bus      *events.Bus

	Listings Listings
	Tracer   trace.Tracer
}

type Orchestrator struct {
	store    DraftStore
	transfer Uploader
	courses  Courses
	bus      *events.Bus
	listings Listings
	tracer   trace.Tracer

	mu          sync.Mutex
	started     bool
	locks       map[string]State
	failed      map[string]uint64
	unsubscribe func()
	baseCtx     context.Context
	wg          sync.WaitGroup
}

func New(cfg Config) *Orchestrator {
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Noop()
	}
	return &Orchestrator{
		store:    cfg.Store,
		transfer: cfg.Transfer,
		courses:  cfg.Courses,
		bus:      cfg.Bus,
		listings: cfg.Listings,
		tracer:   cfg.Tracer,
		locks:    make(map[string]State),
		failed:   make(map[string]uint64),
	}
}

func (o *Orchestrator) Bus() *events.Bus {
	return o.bus
}

// Start subscribes to the store and picks up drafts that are already ready.
// Calling it again is a no-op. Runs are not canceled with ctx.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.baseCtx = context.WithoutCancel(ctx)
	o.mu.Unlock()

	unsubscribe := o.store.Subscribe(o.onChange)

	o.mu.Lock()
	o.unsubscribe = unsubscribe
	o.mu.Unlock()

	orchLogger.Info().Msg("Orchestrator started")
	o.evaluate()
}

// Stop unsubscribes from the store and waits for in-flight runs to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	o.wg.Wait()
	orchLogger.Info().Msg("Orchestrator stopped")
}

// Wait blocks until no run is in flight.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// State returns where key is in the pipeline.
func (o *Orchestrator) State(key string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.locks[key]; ok {
		return s
	}
	return StateIdle
}

// Retry re-commits the stored draft of key for submission, attaching files
// when given. Binaries still attached are kept.
func (o *Orchestrator) Retry(ctx context.Context, key string, files map[string]model.File) error {
	if o.State(key) != StateIdle {
		return fmt.Errorf("retry %s: %w", key, ErrBusy)
	}
	orchLogger.Info().Str("draft_key", key).Int("files", len(files)).Msg("Retrying draft")
	submit := true
	if err := o.store.Attach(ctx, key, files, &submit); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("retry %s: %w", key, ErrNotFound)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) onChange(store.Change) {
	o.evaluate()
}

// evaluate starts a run for every ready key that is not locked. It never
// blocks on a run.
func (o *Orchestrator) evaluate() {
	for _, key := range o.store.Ready() {
		o.tryStart(key)
	}
}

func (o *Orchestrator) tryStart(key string) {
	snap, ok := o.store.Snapshot(key)
	if !ok || !snap.Draft.NeedsSubmission || snap.Processing {
		return
	}

	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	if _, busy := o.locks[key]; busy {
		o.mu.Unlock()
		return
	}
	if rev, ok := o.failed[key]; ok && rev == snap.Revision {
		o.mu.Unlock()
		return
	}
	delete(o.failed, key)
	o.locks[key] = StateStarted
	o.wg.Add(1)
	ctx := o.baseCtx
	o.mu.Unlock()

	go o.run(ctx, key, snap)
}

func (o *Orchestrator) setState(key string, s State) {
	o.mu.Lock()
	o.locks[key] = s
	o.mu.Unlock()
	orchLogger.Debug().Str("draft_key", key).Str("state", string(s)).Msg("State changed")
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	delete(o.locks, key)
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, key string, snap store.Snapshot) {
	defer o.wg.Done()

	ctx, span := o.tracer.Start(ctx, "orchestrator.process", trace.WithAttributes(
		attribute.String(telemetry.DraftKeyKey, key),
		attribute.Int64(telemetry.RevisionKey, int64(snap.Revision)),
	))
	defer span.End()

	log := orchLogger.With().Str("draft_key", key).Uint64("revision", snap.Revision).Logger()

	superseded := false
	resp, err := func() (resp *model.Course, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = apperr.Newf(apperr.KindUnknown, "processing %s panicked: %v", key, r)
			}
		}()

		marked, err := o.store.MarkProcessing(ctx, key, snap.Revision)
		if err != nil {
			return nil, err
		}
		if !marked {
			superseded = true
			return nil, nil
		}
		log.Info().Msg("Processing draft")
		o.bus.Publish(events.StartEvent{Key: key})

		return o.process(ctx, key, snap)
	}()

	switch {
	case err != nil:
		o.fail(ctx, span, log, key, snap, err)
	case superseded:
		log.Debug().Msg("Draft was committed again before the run started; dropping the stale snapshot")
		o.release(key)
	default:
		o.succeed(ctx, log, key, snap, resp)
	}

	o.tryStart(key)
}

func (o *Orchestrator) process(ctx context.Context, key string, snap store.Snapshot) (*model.Course, error) {
	draft := snap.Draft

	if err := payload.Validate(payload.Build(draft)); err != nil {
		return nil, err
	}

	o.setState(key, StateUploading)
	if err := o.uploadFiles(ctx, key, draft, snap.Files); err != nil {
		return nil, err
	}

	o.setState(key, StateSubmitting)
	body := payload.Build(draft)
	if err := payload.Validate(body); err != nil {
		return nil, err
	}

	o.bus.Publish(events.ProcessingEvent{Key: key})
	if draft.EntityID != nil {
		return o.courses.UpdateCourse(ctx, payload.UpdateSlug(draft), body)
	}
	return o.courses.CreateCourse(ctx, body)
}

// uploadFiles sends thumbnail, intro video and lesson videos in that order,
// writing each URL back into draft.
func (o *Orchestrator) uploadFiles(ctx context.Context, key string, draft *model.Draft, files map[string]model.File) error {
	refs := draft.FileRefs()
	courseSlug := payload.UpdateSlug(draft)

	for i, ref := range refs {
		file, ok := files[ref.Slot]
		if !ok {
			return apperr.Newf(apperr.KindUpload, "%s has no file attached; re-attach %s and submit again", ref.Name, ref.Name).
				WithMeta("slot", ref.Slot)
		}

		_, span := o.tracer.Start(ctx, "orchestrator.upload", trace.WithAttributes(
			attribute.String(telemetry.FileNameKey, ref.Name),
			attribute.String(telemetry.FilePurpose, string(model.PurposeOf(ref.Slot))),
		))
		url, err := o.transfer.Upload(ctx, file, model.PurposeOf(ref.Slot), courseSlug, func(p transfer.Progress) {
			o.bus.Publish(events.ProgressEvent{
				Key:        key,
				File:       ref.Name,
				FileIndex:  i,
				TotalFiles: len(refs),
				Completed:  p.Completed,
				Total:      p.Total,
			})
		})
		if err != nil {
			telemetry.SetError(span, err)
			span.End()
			return err
		}
		span.End()

		if err := draft.ResolveFile(ref.Slot, url); err != nil {
			return apperr.Wrap(err, apperr.KindUnknown, "write back "+ref.Name)
		}
		if err := o.transfer.Pause(ctx); err != nil {
			return apperr.Wrap(err, apperr.KindUnknown, "pause after "+ref.Name)
		}
	}
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, log zerolog.Logger, key string, snap store.Snapshot, resp *model.Course) {
	log.Info().Msg("Draft submitted")
	o.bus.Publish(events.SuccessEvent{Key: key, Response: resp})

	cleared, err := o.store.ClearRevision(ctx, key, snap.Revision)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("Failed to clear submitted draft")
		if err := o.store.SetProcessing(ctx, snap.Draft.EntityID, false); err != nil {
			log.Error().Err(err).Msg("Failed to reset processing flag")
		}
	case !cleared:
		log.Info().Msg("Draft was committed again during submission; keeping the newer revision")
	}

	if o.listings != nil {
		o.listings.Invalidate()
	}
	o.release(key)
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, log zerolog.Logger, key string, snap store.Snapshot, err error) {
	kind := apperr.Classify(err)
	msg := apperr.Message(err)

	log.Error().Err(err).Str("error_type", string(kind)).Msg("Draft submission failed")
	telemetry.SetError(span, err, attribute.String(telemetry.ErrorKindKey, string(kind)))

	o.mu.Lock()
	o.failed[key] = snap.Revision
	o.mu.Unlock()

	o.bus.Publish(events.ErrorEvent{Key: key, Message: msg, ErrorType: kind})

	if err := o.store.SetProcessing(ctx, snap.Draft.EntityID, false); err != nil {
		log.Error().Err(err).Msg("Failed to reset processing flag")
	}
	o.release(key)
}
