package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debemdeboas/coursesync/internal/api"
	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/fakeapi"
	"github.com/debemdeboas/coursesync/internal/model"
	"github.com/debemdeboas/coursesync/internal/payload"
	"github.com/debemdeboas/coursesync/internal/transfer"
)

func newClient(t *testing.T) (*api.Client, *fakeapi.Server) {
	t.Helper()
	fake := fakeapi.New()
	ts := fakeapi.NewTestServer(fake)
	t.Cleanup(ts.Close)
	return api.New(ts.URL, api.WithToken("secret")), fake
}

func TestClient_UploadProtocol(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	id, err := client.Initiate(ctx, transfer.InitiateRequest{FileName: "a.mp4", TotalChunks: 2, Purpose: model.PurposeIntroVideo})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, client.SendChunk(ctx, id, 0, []byte("hello ")))
	require.NoError(t, client.SendChunk(ctx, id, 1, []byte("world")))

	url, err := client.Complete(ctx, id)
	require.NoError(t, err)

	data, ok := fake.File(url)
	require.True(t, ok)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, []int{0, 1}, fake.ChunkIndices(id))
}

func TestClient_OutOfOrderChunkIsResponseError(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	id, err := client.Initiate(ctx, transfer.InitiateRequest{FileName: "a.mp4", TotalChunks: 2, Purpose: model.PurposeIntroVideo})
	require.NoError(t, err)

	err = client.SendChunk(ctx, id, 1, []byte("x"))
	require.Error(t, err)

	var respErr *api.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusConflict, respErr.StatusCode())
	assert.Contains(t, respErr.Message, "expected chunk 0")
	assert.Equal(t, apperr.KindNetwork, apperr.Classify(err))
}

func TestClient_CreateAndUpdateCourse(t *testing.T) {
	client, fake := newClient(t)
	ctx := context.Background()

	body := payload.Build(&model.Draft{EntityID: model.Int64(99), Form: model.FormValues{Title: "Go Basics"}})
	created, err := client.CreateCourse(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, "go-basics", created.Slug)
	assert.NotZero(t, created.ID)
	assert.NotEmpty(t, created.Raw)
	require.NotNil(t, body.CourseID, "create must not mutate the caller's body")

	body.Title = "Go Basics, Revised"
	updated, err := client.UpdateCourse(ctx, "go-basics", body)
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Go Basics, Revised", updated.Title)

	raw, ok := fake.Course("go-basics")
	require.True(t, ok)
	var stored map[string]any
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "Go Basics, Revised", stored["title"])

	list, err := client.ListCourses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestClient_UpdateMissingCourse(t *testing.T) {
	client, _ := newClient(t)
	_, err := client.UpdateCourse(context.Background(), "nope", payload.Build(&model.Draft{Form: model.FormValues{Title: "x"}}))
	var respErr *api.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusNotFound, respErr.Status)
	assert.Equal(t, "/courses/nope", respErr.Path)
}

func TestClient_DroppedConnectionIsNetwork(t *testing.T) {
	client, fake := newClient(t)
	fake.Fail(fakeapi.RouteCreate, fakeapi.Failure{})

	_, err := client.CreateCourse(context.Background(), payload.Build(&model.Draft{Form: model.FormValues{Title: "x"}}))
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.Classify(err))
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := api.New(srv.URL, api.WithTimeout(20*time.Millisecond))
	_, err := client.ListCourses(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.Classify(err))
}

func TestClient_MalformedResponseIsServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := api.New(srv.URL).Initiate(context.Background(), transfer.InitiateRequest{FileName: "a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindServer, apperr.Classify(err))
}

func TestClient_SendsHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := api.New(srv.URL+"/", api.WithToken("tok"), api.WithUserAgent("coursectl/test")).ListCourses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "coursectl/test", got.Get("User-Agent"))
}

func TestClient_CompleteWithoutURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := api.New(srv.URL).Complete(context.Background(), "id")
	assert.Equal(t, apperr.KindServer, apperr.Classify(err))
}
