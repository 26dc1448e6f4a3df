package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"

	"github.com/debemdeboas/coursesync/internal/api"
	"github.com/debemdeboas/coursesync/internal/editor"
	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/fakeapi"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/orchestrator"
	"github.com/debemdeboas/coursesync/internal/repository"
	"github.com/debemdeboas/coursesync/internal/sse"
	"github.com/debemdeboas/coursesync/internal/store"
	"github.com/debemdeboas/coursesync/internal/transfer"
)

const draftFile = `%%%
title = "CLI Course"

[[modules]]
title = "Only"

  [[modules.lessons]]
  title = "Read me"
  type = "text"
  text = "hello"
%%%

Submitted from the command line.
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newCommand()
	cmd.Writer = &out
	cmd.ErrWriter = &out
	cmd.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := cmd.Run(context.Background(), append([]string{"coursectl", "--log-level", "error"}, args...))
	return out.String(), err
}

func writeConfig(t *testing.T, apiURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coursesync.yaml")
	cfg := "version: \"1\"\n" +
		"api:\n  base_url: " + apiURL + "\n" +
		"transfer:\n  retry_delay: 1ms\n  file_pause: 0s\n" +
		"storage:\n  driver: memory\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestSubmitCommand(t *testing.T) {
	fake := fakeapi.New()
	remote := fakeapi.NewTestServer(fake)
	defer remote.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "course.md")
	require.NoError(t, os.WriteFile(path, []byte(draftFile), 0o644))

	out, err := runCLI(t, "--config", writeConfig(t, remote.URL), "submit", path)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.Count(fakeapi.RouteCreate))
	assert.Contains(t, out, "submitting")
	assert.Contains(t, out, "saved as cli-course")
}

func TestSubmitCommandReportsFailure(t *testing.T) {
	fake := fakeapi.New()
	remote := fakeapi.NewTestServer(fake)
	defer remote.Close()
	fake.Fail(fakeapi.RouteCreate, fakeapi.Failure{Status: http.StatusUnprocessableEntity, Body: `{"message":"title taken"}`})

	path := filepath.Join(t.TempDir(), "course.md")
	require.NoError(t, os.WriteFile(path, []byte(draftFile), 0o644))

	out, err := runCLI(t, "--config", writeConfig(t, remote.URL), "submit", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title taken")
	assert.Contains(t, out, "title taken")
}

func TestSubmitCommandRequiresPath(t *testing.T) {
	_, err := runCLI(t, "submit")
	assert.Error(t, err)
}

type daemonEnv struct {
	fake  *fakeapi.Server
	store *store.Store
	orch  *orchestrator.Orchestrator
	url   string
}

func newDaemon(t *testing.T) *daemonEnv {
	t.Helper()
	fake := fakeapi.New()
	remote := fakeapi.NewTestServer(fake)
	t.Cleanup(remote.Close)

	client := api.New(remote.URL)
	s := store.New(nil)
	bus := events.NewBus()
	clients := sse.NewClients()
	bus.SubscribeAll(func(e events.Event) {
		msg, err := events.NewMessage(e)
		if err != nil {
			return
		}
		clients.Broadcast(e.DraftKey(), sse.Message{Event: string(e.Kind()), Data: msg.Payload})
	})
	orch := orchestrator.New(orchestrator.Config{
		Store:    s,
		Transfer: transfer.New(client, transfer.Options{Sleep: func(context.Context, time.Duration) error { return nil }}),
		Courses:  client,
		Bus:      bus,
	})
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	h := editor.NewHandler(s, orch, repository.NewCourseRepository(client), clients, editor.Options{})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return &daemonEnv{fake: fake, store: s, orch: orch, url: srv.URL}
}

func sampleDraft(id int64) *model.Draft {
	return &model.Draft{
		EntityID: model.Int64(id),
		Slug:     fmt.Sprintf("course-%d", id),
		Form:     model.FormValues{Title: "Course", Description: "d"},
		Modules: []model.Module{{
			Title:   "M",
			Lessons: []model.Lesson{{Title: "L", ContentType: model.ContentText, LessonText: "x"}},
		}},
	}
}

func TestDraftsCommands(t *testing.T) {
	env := newDaemon(t)
	ctx := context.Background()

	out, err := runCLI(t, "--daemon", env.url, "drafts", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "No drafts")

	d := sampleDraft(3)
	d.IntroVideoFile = &model.FileRef{Slot: model.SlotIntroVideo, Name: "intro.mp4", Size: 10}
	require.NoError(t, env.store.Commit(ctx, d, store.CommitOptions{}))

	out, err = runCLI(t, "--daemon", env.url, "drafts", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "Course")
	assert.Contains(t, out, "intro.mp4")

	out, err = runCLI(t, "--daemon", env.url, "drafts", "show", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"key": "3"`)

	_, err = runCLI(t, "--daemon", env.url, "drafts", "show", "9")
	var de *daemonError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusNotFound, de.Status)

	out, err = runCLI(t, "--daemon", env.url, "drafts", "discard", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Discarded draft 3")
	_, ok := env.store.Get("3")
	assert.False(t, ok)
}

func TestRetryCommandAttachesAndFollows(t *testing.T) {
	env := newDaemon(t)
	ctx := context.Background()
	env.fake.Seed(model.Course{ID: 4, Slug: "course-4", Title: "Course"})

	d := sampleDraft(4)
	d.ThumbnailFile = &model.FileRef{Slot: model.SlotThumbnail, Name: "thumb.png", Size: 3}
	require.NoError(t, env.store.Commit(ctx, d, store.CommitOptions{}))

	thumb := filepath.Join(t.TempDir(), "thumb.png")
	require.NoError(t, os.WriteFile(thumb, []byte("png"), 0o644))

	out, err := runCLI(t, "--daemon", env.url, "retry", "--follow", "--attach", model.SlotThumbnail+"="+thumb, "4")
	require.NoError(t, err)
	assert.Contains(t, out, "saved")
	assert.Equal(t, 1, env.fake.Count(fakeapi.RouteUpdate))
	assert.Equal(t, 1, env.fake.Count(fakeapi.RouteComplete))
}

func TestParseAttachments(t *testing.T) {
	got, err := parseAttachments([]string{"thumbnail=a.png", "lesson_video/0/1=/tmp/v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, []attachment{
		{slot: "thumbnail", path: "a.png"},
		{slot: "lesson_video/0/1", path: "/tmp/v.mp4"},
	}, got)

	for _, bad := range []string{"thumbnail", "=a.png", "thumbnail="} {
		_, err := parseAttachments([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestReadStream(t *testing.T) {
	progress, err := events.NewMessage(events.ProgressEvent{Key: "new", File: "a.mp4", TotalFiles: 1, Completed: 1, Total: 2})
	require.NoError(t, err)
	success, err := events.NewMessage(events.SuccessEvent{Key: "new"})
	require.NoError(t, err)

	stream := "event: connected\ndata: SSE connection established\n\n" +
		"event: course_changed\ndata: go-basics\n\n" +
		"event: progress\ndata: " + string(progress.Payload) + "\n\n" +
		"event: success\ndata: " + string(success.Payload) + "\n\n" +
		"event: start\ndata: {\"type\":\"start\",\"key\":\"new\",\"data\":{}}\n\n"

	connected := 0
	var got []events.Kind
	err = readStream(strings.NewReader(stream), func() { connected++ }, func(e events.Event) bool {
		got = append(got, e.Kind())
		return e.Kind() != events.KindSuccess
	})
	require.NoError(t, err)
	assert.Equal(t, 1, connected)
	assert.Equal(t, []events.Kind{events.KindProgress, events.KindSuccess}, got)
}

func TestPreviewCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "course.md")
	require.NoError(t, os.WriteFile(path, []byte(draftFile), 0o644))

	out, err := runCLI(t, "preview", path)
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>CLI Course</h1>")

	target := filepath.Join(dir, "preview.html")
	_, err = runCLI(t, "preview", "--out", target, path)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Submitted from the command line.")
}
