// Package mediastore stores customer media and conversation exports in
// Cloudflare R2 object storage. It wraps the AWS S3 SDK with the
// R2-specific settings (path style, auto region) and compresses
// exports with zstd.
package mediastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("mediastore: object not found")

// Config holds R2 connection settings.
type Config struct {
	Endpoint    string
	AccessKeyID string
	SecretKey   string
	Bucket      string
}

// Enabled reports whether all connection settings are present.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.AccessKeyID != "" && c.SecretKey != "" && c.Bucket != ""
}

// Store persists media objects and conversation exports. A nil Store
// is a disabled store: every method is a safe no-op.
type Store struct {
	s3     *s3.Client
	bucket string
	db     *storage.DB
	log    *logger.Logger
	now    func() time.Time
}

// New creates a media store. Returns (nil, nil) when cfg is incomplete
// so callers can wire it unconditionally.
func New(ctx context.Context, cfg Config, db *storage.DB, log *logger.Logger) (*Store, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("mediastore: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // Required for R2
	})

	return &Store{
		s3:     s3Client,
		bucket: cfg.Bucket,
		db:     db,
		log:    log.WithModule("mediastore"),
		now:    time.Now,
	}, nil
}

// Enabled reports whether the store can accept objects.
func (s *Store) Enabled() bool { return s != nil }

// SaveMedia uploads a piece of customer media (payment slip, product
// photo) and returns the object key. Keys are grouped by user and day
// so staff can browse a conversation's attachments.
func (s *Store) SaveMedia(ctx context.Context, userID string, body io.Reader, contentType string) (string, error) {
	if s == nil {
		return "", nil
	}

	ext := extensionFor(contentType)
	key := fmt.Sprintf("media/%s/%s/%s%s", userID, s.now().UTC().Format("2006-01-02"), uuid.NewString(), ext)

	if err := s.upload(ctx, key, body, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// Fetch downloads an object. Caller must close the body.
func (s *Store) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil {
		return nil, ErrNotFound
	}

	result, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mediastore: fetch %q: %w", key, err)
	}
	return result.Body, nil
}

// ExportConversations writes every message created at or after since
// as a zstd-compressed JSON Lines object and returns the object key.
func (s *Store) ExportConversations(ctx context.Context, since time.Time) (string, error) {
	if s == nil {
		return "", nil
	}

	messages, err := s.db.MessagesSince(ctx, since)
	if err != nil {
		return "", fmt.Errorf("mediastore: load messages: %w", err)
	}
	if len(messages) == 0 {
		return "", nil
	}

	payload, err := encodeExport(messages)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("exports/conversations-%s.jsonl.zst", s.now().UTC().Format("20060102-150405"))
	if err := s.upload(ctx, key, bytes.NewReader(payload), "application/zstd"); err != nil {
		return "", err
	}

	s.log.WithFields(map[string]any{
		"key":      key,
		"messages": len(messages),
	}).Infof("conversation export uploaded")
	return key, nil
}

func (s *Store) upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.s3.PutObject(ctx, input); err != nil {
		return fmt.Errorf("mediastore: upload %q: %w", key, err)
	}
	return nil
}

// exportRecord is one line of a conversation export.
type exportRecord struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// encodeExport serializes messages as zstd-compressed JSON Lines.
func encodeExport(messages []*storage.Message) ([]byte, error) {
	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("mediastore: create encoder: %w", err)
	}

	enc := json.NewEncoder(encoder)
	for _, m := range messages {
		rec := exportRecord{
			ID:        m.ID,
			UserID:    m.UserID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := enc.Encode(rec); err != nil {
			_ = encoder.Close()
			return nil, fmt.Errorf("mediastore: encode record: %w", err)
		}
	}

	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("mediastore: close encoder: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeExport reverses encodeExport. Used by the export tooling and
// tests to verify round trips.
func decodeExport(data []byte) ([]exportRecord, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mediastore: create decoder: %w", err)
	}
	defer decoder.Close()

	var records []exportRecord
	dec := json.NewDecoder(decoder)
	for {
		var rec exportRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("mediastore: decode record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "mp4"):
		return ".mp4"
	default:
		return ".bin"
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}
