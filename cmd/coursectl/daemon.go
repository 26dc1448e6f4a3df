package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/debemdeboas/coursesync/internal/editor"
	"github.com/debemdeboas/coursesync/internal/events"
	"github.com/debemdeboas/coursesync/internal/routes"
	"github.com/debemdeboas/coursesync/internal/sse"
)

// daemonClient talks to the local API of a running coursesync daemon.
type daemonClient struct {
	base string
	hc   *http.Client
}

func newDaemonClient(base string) *daemonClient {
	return &daemonClient{base: strings.TrimSuffix(base, "/"), hc: http.DefaultClient}
}

type daemonError struct {
	Status  int
	Message string
}

func (e *daemonError) Error() string {
	return fmt.Sprintf("daemon responded %d: %s", e.Status, e.Message)
}

func (c *daemonClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running at %s? %w", c.base, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var msg struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(res.Body)
		if json.Unmarshal(data, &msg) != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(data))
		}
		return &daemonError{Status: res.StatusCode, Message: msg.Message}
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *daemonClient) List(ctx context.Context) ([]editor.DraftView, error) {
	var views []editor.DraftView
	err := c.do(ctx, http.MethodGet, "/drafts", nil, "", &views)
	return views, err
}

func (c *daemonClient) Get(ctx context.Context, key string) (*editor.DraftView, error) {
	var v editor.DraftView
	if err := c.do(ctx, http.MethodGet, routes.DraftPath(key), nil, "", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *daemonClient) Discard(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, routes.DraftPath(key), nil, "", nil)
}

func (c *daemonClient) Retry(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, routes.DraftPath(key, "retry"), nil, "", nil)
}

// Attach uploads the local file at path into slot without changing the
// draft's submission flag.
func (c *daemonClient) Attach(ctx context.Context, key, slot, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, routes.DraftPath(key, "files", slot)+"?submit=false", &buf, mw.FormDataContentType(), nil)
}

// Watch streams events for key (every draft when empty) to fn until ctx is
// done, the stream ends or fn returns false. connected, when set, is called
// once the daemon has registered the stream.
func (c *daemonClient) Watch(ctx context.Context, key string, connected func(), fn func(events.Event) bool) error {
	u := c.base + routes.SSEPath
	if key != "" {
		u += "?" + url.Values{sse.QueryDraft: {key}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running at %s? %w", c.base, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return &daemonError{Status: res.StatusCode, Message: res.Status}
	}
	return readStream(res.Body, connected, fn)
}

// readStream parses SSE frames from r and hands decoded pipeline events to fn.
// Frames that are not pipeline events are skipped.
func readStream(r io.Reader, connected func(), fn func(events.Event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)

	var name string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == "connected" {
				if connected != nil {
					connected()
					connected = nil
				}
			} else if len(data) > 0 {
				env := events.Envelope{}
				if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &env); err == nil {
					if e, err := env.Event(); err == nil && !fn(e) {
						return nil
					}
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
