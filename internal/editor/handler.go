// Package editor is the local HTTP surface of the daemon: it commits drafts
// into the store, attaches binaries, previews drafts and streams pipeline
// events.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/config"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/orchestrator"
	"github.com/debemdeboas/coursesync/internal/render"
	"github.com/debemdeboas/coursesync/internal/routes"
	"github.com/debemdeboas/coursesync/internal/sse"
	"github.com/debemdeboas/coursesync/internal/store"
	"github.com/debemdeboas/coursesync/internal/theme"
	"github.com/debemdeboas/coursesync/internal/util"
)

var editorLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	editorLogger = l
}

// DefaultMaxUpload bounds a single attached file when no limit is configured.
const DefaultMaxUpload int64 = 4 << 30

// Courses is the cached remote listing.
type Courses interface {
	List(ctx context.Context) ([]model.Course, error)
}

type Options struct {
	SyntaxTheme string
	MaxUpload   int64
	// SpoolDir holds attached binaries until they are submitted. Empty means
	// os.TempDir.
	SpoolDir string
}

type Handler struct {
	store   *store.Store
	orch    *orchestrator.Orchestrator
	courses Courses
	clients *sse.Clients

	syntaxTheme string
	maxUpload   int64
	spoolDir    string
}

func NewHandler(s *store.Store, orch *orchestrator.Orchestrator, courses Courses, clients *sse.Clients, opts Options) *Handler {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}
	return &Handler{
		store:       s,
		orch:        orch,
		courses:     courses,
		clients:     clients,
		syntaxTheme: opts.SyntaxTheme,
		maxUpload:   opts.MaxUpload,
		spoolDir:    opts.SpoolDir,
	}
}

// Routes returns the daemon mux wrapped in the common headers.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(routes.Health, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc(routes.Drafts, h.ListDrafts)
	mux.HandleFunc(routes.Draft, h.GetDraft)
	mux.HandleFunc(routes.CommitDraft, h.CommitDraft)
	mux.HandleFunc(routes.DiscardDraft, h.DiscardDraft)
	mux.HandleFunc(routes.AttachFile, h.AttachFile)
	mux.HandleFunc(routes.RetryDraft, h.RetryDraft)
	mux.HandleFunc(routes.PreviewDraft, h.PreviewDraft)
	mux.HandleFunc(routes.Courses, h.ListCourses)
	mux.HandleFunc(routes.SyntaxTheme, serveSyntaxTheme)
	if h.clients != nil {
		mux.Handle(routes.SSEPath, sse.Handler(h.clients))
	}
	return noCache(secureHeaders(mux))
}

// DraftView is the JSON representation of one stored draft.
type DraftView struct {
	Key          string             `json:"key"`
	Draft        *model.Draft       `json:"draft"`
	Processing   bool               `json:"processing"`
	Revision     uint64             `json:"revision"`
	State        orchestrator.State `json:"state"`
	MissingFiles []model.FileRef    `json:"missing_files,omitempty"`
	Attached     []string           `json:"attached_files,omitempty"`
}

// CommitRequest is the body of a draft commit.
type CommitRequest struct {
	Draft  *model.Draft `json:"draft"`
	Submit bool         `json:"submit"`
}

func (h *Handler) view(key string) (DraftView, bool) {
	snap, ok := h.store.Snapshot(key)
	if !ok {
		return DraftView{}, false
	}
	v := DraftView{
		Key:          key,
		Draft:        snap.Draft,
		Processing:   snap.Processing,
		Revision:     snap.Revision,
		State:        orchestrator.StateIdle,
		MissingFiles: h.store.MissingFiles(key),
	}
	if h.orch != nil {
		v.State = h.orch.State(key)
	}
	for _, ref := range snap.Draft.FileRefs() {
		if _, ok := snap.Files[ref.Slot]; ok {
			v.Attached = append(v.Attached, ref.Slot)
		}
	}
	return v, true
}

func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	views := []DraftView{}
	for _, key := range h.store.Keys() {
		if v, ok := h.view(key); ok {
			views = append(views, v)
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, config.HTTPErrDraftNotFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) CommitDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if _, err := model.EntityIDFromKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req CommitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid draft: "+err.Error())
		return
	}
	if req.Draft == nil {
		writeError(w, http.StatusBadRequest, "draft is required")
		return
	}
	if got := req.Draft.DerivedKey(); got != key {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("draft belongs to key %q, not %q", got, key))
		return
	}

	if err := h.store.Commit(r.Context(), req.Draft, store.CommitOptions{Submit: req.Submit}); err != nil {
		editorLogger.Error().Err(err).Str("draft_key", key).Msg("Commit failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondDraft(w, key, http.StatusAccepted)
}

func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	entityID, err := model.EntityIDFromKey(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.orch != nil && h.orch.State(key) != orchestrator.StateIdle {
		writeError(w, http.StatusConflict, orchestrator.ErrBusy.Error())
		return
	}
	if err := h.store.Clear(r.Context(), entityID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachFile stores the multipart "file" in slot and keeps the draft's
// submission flag unless ?submit= overrides it.
func (h *Handler) AttachFile(w http.ResponseWriter, r *http.Request) {
	key, slot := r.PathValue("key"), r.PathValue("slot")
	if _, ok := h.store.Get(key); !ok {
		writeError(w, http.StatusNotFound, config.HTTPErrDraftNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	src, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer src.Close()

	file, err := model.SpoolFile(h.spoolDir, header.Filename, src)
	if err != nil {
		editorLogger.Error().Err(err).Str("draft_key", key).Msg("Failed to spool upload")
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	var submit *bool
	switch r.URL.Query().Get("submit") {
	case "true":
		submit = ptr(true)
	case "false":
		submit = ptr(false)
	}

	if err := h.store.Attach(r.Context(), key, map[string]model.File{slot: file}, submit); err != nil {
		if rerr := file.Release(); rerr != nil {
			editorLogger.Warn().Err(rerr).Msg("Failed to release spooled file")
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, config.HTTPErrDraftNotFound)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	editorLogger.Info().Str("draft_key", key).Str("slot", slot).Str("file", file.Name).Int64("size", file.Size).Msg("File attached")
	h.respondDraft(w, key, http.StatusAccepted)
}

func ptr[T any](v T) *T {
	return &v
}

func (h *Handler) RetryDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	err := h.orch.Retry(r.Context(), key, nil)
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, config.HTTPErrDraftNotFound)
		return
	case errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondDraft(w, key, http.StatusAccepted)
}

func (h *Handler) PreviewDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := h.store.Get(r.PathValue("key"))
	if !ok {
		http.Error(w, config.HTTPErrDraftNotFound, http.StatusNotFound)
		return
	}

	out, err := render.Preview(d, theme.SyntaxThemeFromRequest(r, h.syntaxTheme))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set(config.HCType, config.CTypeHTML)
	w.Header().Set(config.HETag, util.ContentHash(out))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.List(r.Context())
	if err != nil {
		editorLogger.Warn().Err(err).Msg("Failed to list courses")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func serveSyntaxTheme(w http.ResponseWriter, r *http.Request) {
	themeStyle := []byte(theme.GenerateSyntaxCSS(r.PathValue("theme")))
	w.Header().Set(config.HCType, config.CTypeCSS)
	w.Header().Set(config.HETag, util.ContentHash(themeStyle))
	w.WriteHeader(http.StatusOK)
	w.Write(themeStyle)
}

func (h *Handler) respondDraft(w http.ResponseWriter, key string, status int) {
	v, ok := h.view(key)
	if !ok {
		// Cleared by a run that finished in between.
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(config.HCType, config.CTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		editorLogger.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func noCache(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(config.HCacheControl, "no-cache")
		h.ServeHTTP(w, r)
	})
}

func secureHeaders(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-Content-Type-Options", "nosniff")

		h.ServeHTTP(w, r)
	})
}
