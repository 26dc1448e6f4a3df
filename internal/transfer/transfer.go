// Package transfer uploads local binaries to the remote service in fixed-size
// chunks through a three-step initiate, chunk, complete protocol.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/model"
)

const (
	ChunkSize  = 5 << 20
	MaxRetries = 3

	DefaultRetryDelay = 1500 * time.Millisecond
	DefaultPause      = 500 * time.Millisecond
)

var transferLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	transferLogger = l
}

// InitiateRequest is the body of the initiate step.
type InitiateRequest struct {
	FileName    string        `json:"fileName"`
	TotalChunks int           `json:"totalChunks"`
	Purpose     model.Purpose `json:"purpose"`
	CourseSlug  string        `json:"courseSlug,omitempty"`
}

// Backend speaks the three-step protocol to one remote store.
type Backend interface {
	Initiate(ctx context.Context, req InitiateRequest) (uploadID string, err error)
	SendChunk(ctx context.Context, uploadID string, index int, chunk []byte) error
	Complete(ctx context.Context, uploadID string) (url string, err error)
}

// Aborter is implemented by backends that can discard a partial upload.
type Aborter interface {
	Abort(ctx context.Context, uploadID string) error
}

// InitiationError is returned when initiate succeeds without an upload id.
type InitiationError struct {
	File string
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("initiate upload of %s: no upload id returned", e.File)
}

// Progress is reported after every acknowledged chunk.
type Progress struct {
	Completed int
	Total     int
}

type ProgressFunc func(Progress)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	Pause      time.Duration

	// MaxFileSize rejects larger files before any request is made. Zero
	// disables the check.
	MaxFileSize int64
	// CheckTypes sniffs file contents against the upload purpose.
	CheckTypes bool

	Sleep SleepFunc
}

func DefaultOptions() Options {
	return Options{
		MaxRetries: MaxRetries,
		RetryDelay: DefaultRetryDelay,
		Pause:      DefaultPause,
		CheckTypes: true,
	}
}

type Client struct {
	backend Backend
	opts    Options
}

func New(backend Backend, opts Options) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = MaxRetries
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	return &Client{backend: backend, opts: opts}
}

// TotalChunks returns ceil(size / ChunkSize).
func TotalChunks(size int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

// Upload sends file and returns the URL the remote assigned to it. The whole
// file is retried on any failure; once every attempt is spent the returned
// error has kind UPLOAD and names the file.
func (c *Client) Upload(ctx context.Context, file model.File, purpose model.Purpose, courseSlug string, onProgress ProgressFunc) (string, error) {
	if err := c.preflight(file, purpose); err != nil {
		return "", err
	}

	log := transferLogger.With().Str("file", file.Name).Str("purpose", string(purpose)).Logger()

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		url, err := c.attempt(ctx, file, purpose, courseSlug, onProgress)
		if err == nil {
			log.Info().Int("attempt", attempt).Str("url", url).Msg("Upload complete")
			return url, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.opts.MaxRetries).Msg("Upload attempt failed")

		if attempt == c.opts.MaxRetries {
			break
		}
		if err := c.opts.Sleep(ctx, c.opts.RetryDelay*time.Duration(attempt)); err != nil {
			lastErr = err
			break
		}
	}

	return "", apperr.Wrap(lastErr, apperr.KindUpload, fmt.Sprintf("failed to upload %s", file.Name)).
		WithMeta("file", file.Name)
}

func (c *Client) attempt(ctx context.Context, file model.File, purpose model.Purpose, courseSlug string, onProgress ProgressFunc) (string, error) {
	total := TotalChunks(file.Size)

	req := InitiateRequest{
		FileName:    file.Name,
		TotalChunks: total,
		Purpose:     purpose,
	}
	if purpose == model.PurposeLessonVideo {
		req.CourseSlug = courseSlug
	}

	uploadID, err := c.backend.Initiate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("initiate: %w", err)
	}
	if uploadID == "" {
		return "", &InitiationError{File: file.Name}
	}

	buf := make([]byte, ChunkSize)
	for index := 0; index < total; index++ {
		chunk, err := readChunk(file, index, buf)
		if err != nil {
			c.abort(ctx, uploadID)
			return "", err
		}
		if err := c.backend.SendChunk(ctx, uploadID, index, chunk); err != nil {
			c.abort(ctx, uploadID)
			return "", fmt.Errorf("chunk %d/%d: %w", index+1, total, err)
		}
		if onProgress != nil {
			onProgress(Progress{Completed: index + 1, Total: total})
		}
	}

	url, err := c.backend.Complete(ctx, uploadID)
	if err != nil {
		c.abort(ctx, uploadID)
		return "", fmt.Errorf("complete: %w", err)
	}
	return url, nil
}

func (c *Client) abort(ctx context.Context, uploadID string) {
	a, ok := c.backend.(Aborter)
	if !ok {
		return
	}
	if err := a.Abort(ctx, uploadID); err != nil {
		transferLogger.Debug().Err(err).Str("upload_id", uploadID).Msg("Abort failed")
	}
}

// Pause waits the configured inter-file delay.
func (c *Client) Pause(ctx context.Context) error {
	if c.opts.Pause <= 0 {
		return nil
	}
	return c.opts.Sleep(ctx, c.opts.Pause)
}

func readChunk(file model.File, index int, buf []byte) ([]byte, error) {
	start := int64(index) * ChunkSize
	end := min(file.Size, start+ChunkSize)
	chunk := buf[:end-start]

	n, err := file.Data.ReadAt(chunk, start)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(chunk)) {
		return nil, fmt.Errorf("read chunk %d of %s: %w", index, file.Name, err)
	}
	return chunk, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
