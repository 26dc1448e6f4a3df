package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	apperr "github.com/debemdeboas/coursesync/internal/errors"
	"github.com/debemdeboas/coursesync/internal/transfer"
)

const (
	PathInitiate = "/uploads/initiate"
	PathChunk    = "/uploads/chunk"
	PathComplete = "/uploads/complete"
)

var _ transfer.Backend = (*Client)(nil)

type initiateResponse struct {
	UploadID string `json:"uploadId"`
}

type completeRequest struct {
	UploadID string `json:"uploadId"`
}

type completeResponse struct {
	URL string `json:"url"`
}

func (c *Client) Initiate(ctx context.Context, req transfer.InitiateRequest) (string, error) {
	var out initiateResponse
	if err := c.doJSON(ctx, http.MethodPost, PathInitiate, req, &out); err != nil {
		return "", err
	}
	return out.UploadID, nil
}

// SendChunk posts one chunk as multipart/form-data.
func (c *Client) SendChunk(ctx context.Context, uploadID string, index int, chunk []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("chunk", fmt.Sprintf("chunk-%d", index))
	if err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build chunk form")
	}
	if _, err := part.Write(chunk); err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build chunk form")
	}
	if err := w.WriteField("uploadId", uploadID); err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build chunk form")
	}
	if err := w.WriteField("chunkIndex", strconv.Itoa(index)); err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build chunk form")
	}
	if err := w.Close(); err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build chunk form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+PathChunk, &buf)
	if err != nil {
		return apperr.Wrap(err, apperr.KindUnknown, "build request")
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, nil)
}

func (c *Client) Complete(ctx context.Context, uploadID string) (string, error) {
	var out completeResponse
	if err := c.doJSON(ctx, http.MethodPost, PathComplete, completeRequest{UploadID: uploadID}, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", apperr.Newf(apperr.KindServer, "upload %s completed without a url", uploadID)
	}
	return out.URL, nil
}
