// Package s3backend stores uploads directly in an S3-compatible bucket using
// multipart uploads, one part per chunk.
package s3backend

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/coursesync/internal/transfer"
)

var s3Logger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	s3Logger = l
}

// API is the subset of the S3 client used by Backend.
type API interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

type Config struct {
	Bucket    string
	Prefix    string
	PublicURL string
}

type pending struct {
	key   string
	parts []awstypes.CompletedPart
}

// Backend implements transfer.Backend and transfer.Aborter.
type Backend struct {
	client API
	cfg    Config

	mu      sync.Mutex
	uploads map[string]*pending
}

var (
	_ transfer.Backend = (*Backend)(nil)
	_ transfer.Aborter = (*Backend)(nil)
)

func New(client API, cfg Config) *Backend {
	return &Backend{
		client:  client,
		cfg:     cfg,
		uploads: make(map[string]*pending),
	}
}

// NewClient builds an S3 client with static credentials against endpoint.
func NewClient(ctx context.Context, accessKeyID, accessKeySecret, endpoint, region string) (*s3.Client, error) {
	if region == "" {
		region = "auto"
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, accessKeySecret, "")),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey places uploads under prefix/purpose[/course]/id-name.
func (b *Backend) ObjectKey(req transfer.InitiateRequest) string {
	parts := []string{b.cfg.Prefix, string(req.Purpose)}
	if req.CourseSlug != "" {
		parts = append(parts, req.CourseSlug)
	}
	parts = append(parts, uuid.NewString()+"-"+path.Base(req.FileName))
	return strings.TrimPrefix(path.Join(parts...), "/")
}

func (b *Backend) Initiate(ctx context.Context, req transfer.InitiateRequest) (string, error) {
	key := b.ObjectKey(req)
	out, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("create multipart upload %s: %w", key, err)
	}

	uploadID := aws.ToString(out.UploadId)
	if uploadID == "" {
		return "", nil
	}

	b.mu.Lock()
	b.uploads[uploadID] = &pending{key: key}
	b.mu.Unlock()

	s3Logger.Debug().Str("key", key).Str("upload_id", uploadID).Int("parts", req.TotalChunks).Msg("Multipart upload created")
	return uploadID, nil
}

func (b *Backend) SendChunk(ctx context.Context, uploadID string, index int, chunk []byte) error {
	p, err := b.pending(uploadID)
	if err != nil {
		return err
	}

	partNumber := int32(index + 1)
	out, err := b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(b.cfg.Bucket),
		Key:        aws.String(p.key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
		Body:       bytes.NewReader(chunk),
	})
	if err != nil {
		return fmt.Errorf("upload part %d: %w", partNumber, err)
	}

	b.mu.Lock()
	p.parts = append(p.parts, awstypes.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(partNumber),
	})
	b.mu.Unlock()
	return nil
}

func (b *Backend) Complete(ctx context.Context, uploadID string) (string, error) {
	p, err := b.pending(uploadID)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	parts := append([]awstypes.CompletedPart(nil), p.parts...)
	b.mu.Unlock()

	_, err = b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.cfg.Bucket),
		Key:             aws.String(p.key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload %s: %w", p.key, err)
	}

	b.forget(uploadID)
	return b.URL(p.key), nil
}

func (b *Backend) Abort(ctx context.Context, uploadID string) error {
	p, err := b.pending(uploadID)
	if err != nil {
		return err
	}
	defer b.forget(uploadID)

	_, err = b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(b.cfg.Bucket),
		Key:      aws.String(p.key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload %s: %w", p.key, err)
	}
	return nil
}

// URL returns the public address of an object key.
func (b *Backend) URL(key string) string {
	base := strings.TrimSuffix(b.cfg.PublicURL, "/")
	escaped := (&url.URL{Path: key}).EscapedPath()
	if base == "" {
		return fmt.Sprintf("s3://%s/%s", b.cfg.Bucket, escaped)
	}
	return base + "/" + escaped
}

func (b *Backend) pending(uploadID string) (*pending, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.uploads[uploadID]
	if !ok {
		return nil, fmt.Errorf("unknown upload %q", uploadID)
	}
	return p, nil
}

func (b *Backend) forget(uploadID string) {
	b.mu.Lock()
	delete(b.uploads, uploadID)
	b.mu.Unlock()
}
