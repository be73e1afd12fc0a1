// Package uploads stores user supplied files (payment screenshots, documents)
// in S3 and hands back a public path for them.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"licensedesk/pkg/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type Category string

const (
	CategoryPayment  Category = "payment"
	CategoryDocument Category = "document"
	CategoryImage    Category = "image"
)

var (
	ErrUnknownCategory    = errors.New("unknown upload category")
	ErrUnsupportedType    = errors.New("unsupported file type")
	ErrEmptyFile          = errors.New("empty file")
	ErrStorageUnavailable = errors.New("upload storage not configured")
)

// extensions is the content type allowlist.
var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryPayment, CategoryDocument, CategoryImage:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type Store struct {
	client        S3API
	bucket        string
	region        string
	publicBaseURL string
	log           *logger.Logger
}

// NewStore returns a Store. With a nil client or empty bucket every Put fails
// with ErrStorageUnavailable.
func NewStore(client S3API, bucket, region, publicBaseURL string, log *logger.Logger) *Store {
	return &Store{
		client:        client,
		bucket:        bucket,
		region:        region,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           log,
	}
}

func (s *Store) Enabled() bool {
	return s != nil && s.client != nil && s.bucket != ""
}

// Put writes data under <category>/<userID>/<uuid><ext>. The content type is
// sniffed from the bytes, not taken from the client.
func (s *Store) Put(ctx context.Context, category Category, userID string, data []byte) (*Object, error) {
	if !s.Enabled() {
		return nil, ErrStorageUnavailable
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	contentType := DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	key := fmt.Sprintf("%s/%s/%s%s", category, userID, uuid.NewString(), ext)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploads: s3 put %s: %w", key, err)
	}

	s.log.Info("upload stored", "key", key, "category", category, "user_id", userID, "size", len(data))
	return &Object{
		Path:        key,
		URL:         s.URL(key),
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// URL is the public address of key: the configured base URL when set,
// otherwise the virtual-hosted S3 address.
func (s *Store) URL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// DetectContentType sniffs data and strips parameters such as charset.
func DetectContentType(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}
