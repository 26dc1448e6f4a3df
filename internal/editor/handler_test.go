package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debemdeboas/coursesync/internal/api"
	"github.com/debemdeboas/coursesync/internal/fakeapi"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/orchestrator"
	"github.com/debemdeboas/coursesync/internal/repository"
	"github.com/debemdeboas/coursesync/internal/routes"
	"github.com/debemdeboas/coursesync/internal/sse"
	"github.com/debemdeboas/coursesync/internal/store"
	"github.com/debemdeboas/coursesync/internal/transfer"
)

type testEnv struct {
	fake  *fakeapi.Server
	store *store.Store
	orch  *orchestrator.Orchestrator
	srv   *httptest.Server
	spool string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := fakeapi.New()
	remote := fakeapi.NewTestServer(fake)
	t.Cleanup(remote.Close)

	client := api.New(remote.URL, api.WithTimeout(5*time.Second))
	s := store.New(nil)
	orch := orchestrator.New(orchestrator.Config{
		Store: s,
		Transfer: transfer.New(client, transfer.Options{
			Sleep: func(context.Context, time.Duration) error { return nil },
		}),
		Courses: client,
	})
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	spool := t.TempDir()
	h := NewHandler(s, orch, repository.NewCourseRepository(client), sse.NewClients(), Options{
		SyntaxTheme: "github",
		SpoolDir:    spool,
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testEnv{fake: fake, store: s, orch: orch, srv: srv, spool: spool}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func (e *testEnv) commit(t *testing.T, key string, d *model.Draft, submit bool) *http.Response {
	t.Helper()
	body, err := json.Marshal(CommitRequest{Draft: d, Submit: submit})
	require.NoError(t, err)
	return e.do(t, http.MethodPut, routes.DraftPath(key), bytes.NewReader(body), "application/json")
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func draft() *model.Draft {
	return &model.Draft{
		Form: model.FormValues{Title: "Go Basics", Description: "Learn *Go*"},
		Modules: []model.Module{{
			Title:   "One",
			Lessons: []model.Lesson{{Title: "Hello", ContentType: model.ContentText, LessonText: "hi"}},
		}},
	}
}

func TestCommitAndRead(t *testing.T) {
	env := newTestEnv(t)

	res := env.commit(t, model.NewDraftKey, draft(), false)
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	v := decode[DraftView](t, res)
	assert.Equal(t, model.NewDraftKey, v.Key)
	assert.Equal(t, "Go Basics", v.Draft.Form.Title)
	assert.False(t, v.Draft.NeedsSubmission)
	assert.Equal(t, orchestrator.StateIdle, v.State)

	res = env.do(t, http.MethodGet, "/drafts", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "no-cache", res.Header.Get("Cache-Control"))
	list := decode[[]DraftView](t, res)
	require.Len(t, list, 1)
	assert.Equal(t, model.NewDraftKey, list[0].Key)

	res = env.do(t, http.MethodGet, routes.DraftPath("7"), nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCommitRejectsMismatchedKey(t *testing.T) {
	env := newTestEnv(t)

	d := draft()
	d.EntityID = model.Int64(5)
	res := env.commit(t, "6", d, false)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = env.commit(t, "not-a-key", d, false)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = env.do(t, http.MethodPut, routes.DraftPath("5"), bytes.NewReader([]byte("{")), "application/json")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func attach(t *testing.T, env *testEnv, key, slot, name string, data []byte, query string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return env.do(t, http.MethodPost, routes.DraftPath(key, "files", slot)+query, &buf, mw.FormDataContentType())
}

func TestAttachFile(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.commit(t, model.NewDraftKey, draft(), false).StatusCode)

	res := attach(t, env, model.NewDraftKey, model.SlotIntroVideo, "intro.mp4", []byte("video"), "")
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	v := decode[DraftView](t, res)
	assert.Equal(t, []string{model.SlotIntroVideo}, v.Attached)
	require.NotNil(t, v.Draft.IntroVideoFile)
	assert.Equal(t, "intro.mp4", v.Draft.IntroVideoFile.Name)
	assert.Empty(t, v.MissingFiles)

	f, ok := env.store.File(model.NewDraftKey, model.SlotIntroVideo)
	require.True(t, ok)
	assert.Equal(t, int64(5), f.Size)

	res = attach(t, env, model.NewDraftKey, "lesson_video/3/0", "x.mp4", []byte("x"), "")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = attach(t, env, "99", model.SlotThumbnail, "t.png", []byte("x"), "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func spooled(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out = append(out, string(data))
	}
	return out
}

func TestAttachSpoolsToDiskUntilReleased(t *testing.T) {
	env := newTestEnv(t)
	d := draft()
	d.EntityID = model.Int64(8)
	require.Equal(t, http.StatusAccepted, env.commit(t, "8", d, false).StatusCode)

	res := attach(t, env, "8", model.SlotIntroVideo, "intro.mp4", []byte("first"), "")
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, []string{"first"}, spooled(t, env.spool))

	f, ok := env.store.File("8", model.SlotIntroVideo)
	require.True(t, ok)
	buf := make([]byte, f.Size)
	_, err := f.Data.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", string(buf))

	res = attach(t, env, "8", model.SlotIntroVideo, "intro.mp4", []byte("second"), "")
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	assert.Equal(t, []string{"second"}, spooled(t, env.spool), "replaced binary is removed")

	res = attach(t, env, "8", "lesson_video/3/0", "x.mp4", []byte("x"), "")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, []string{"second"}, spooled(t, env.spool), "rejected upload is removed")

	res = env.do(t, http.MethodDelete, routes.DraftPath("8"), nil, "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Empty(t, spooled(t, env.spool))
}

func TestSubmitThroughAttach(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.commit(t, model.NewDraftKey, draft(), false).StatusCode)

	res := attach(t, env, model.NewDraftKey, model.SlotThumbnail, "thumb.png", []byte("png"), "?submit=true")
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	env.orch.Wait()

	assert.Equal(t, 1, env.fake.Count(fakeapi.RouteCreate))
	res = env.do(t, http.MethodGet, routes.DraftPath(model.NewDraftKey), nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestRetryAndDiscard(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, routes.DraftPath("99", "retry"), nil, "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	env.fake.Fail(fakeapi.RouteCreate, fakeapi.Failure{Status: http.StatusInternalServerError, Times: 1})
	require.Equal(t, http.StatusAccepted, env.commit(t, model.NewDraftKey, draft(), true).StatusCode)
	env.orch.Wait()

	v := decode[DraftView](t, env.do(t, http.MethodGet, routes.DraftPath(model.NewDraftKey), nil, ""))
	assert.True(t, v.Draft.NeedsSubmission)
	assert.False(t, v.Processing)

	res = env.do(t, http.MethodPost, routes.DraftPath(model.NewDraftKey, "retry"), nil, "")
	require.Equal(t, http.StatusAccepted, res.StatusCode)
	env.orch.Wait()
	assert.Equal(t, 2, env.fake.Count(fakeapi.RouteCreate))

	require.Equal(t, http.StatusAccepted, env.commit(t, "8", func() *model.Draft {
		d := draft()
		d.EntityID = model.Int64(8)
		return d
	}(), false).StatusCode)
	res = env.do(t, http.MethodDelete, routes.DraftPath("8"), nil, "")
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	_, ok := env.store.Get("8")
	assert.False(t, ok)
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusAccepted, env.commit(t, model.NewDraftKey, draft(), false).StatusCode)

	res := env.do(t, http.MethodGet, routes.DraftPath(model.NewDraftKey, "preview")+"?theme=monokai", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/html")
	assert.NotEmpty(t, res.Header.Get("ETag"))
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<em>Go</em>")
}

func TestListCourses(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Seed(model.Course{ID: 3, Slug: "b", Title: "Beta"})
	env.fake.Seed(model.Course{ID: 4, Slug: "a", Title: "Alpha"})

	res := env.do(t, http.MethodGet, "/courses", nil, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	courses := decode[[]model.Course](t, res)
	require.Len(t, courses, 2)
	assert.Equal(t, "Alpha", courses[0].Title)
}

func TestHealthAndSyntaxTheme(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "deny", res.Header.Get("X-Frame-Options"))

	res = env.do(t, http.MethodGet, "/syntax-theme/monokai", nil, "")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/css", res.Header.Get("Content-Type"))
}
