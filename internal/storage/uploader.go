package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Omdevsinh-Zala/chat-session/internal/models"
)

// UploadError means an attachment upload failed. The message send is aborted
// and the caller surfaces the failure; there is no automatic retry.
type UploadError struct {
	Name string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// File is one selected file ready for upload. Data is already compressed
// where the compressor applies.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Uploader is the upload collaborator the session consumes.
type Uploader interface {
	Upload(ctx context.Context, scopePath string, files []File) ([]models.Attachment, error)
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	BaseURL   string
	UseSSL    bool
}

func LoadS3ConfigFromEnv() (S3Config, error) {
	cfg := S3Config{
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:    strings.TrimSpace(os.Getenv("S3_REGION")),
		Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		BaseURL:   strings.TrimSpace(os.Getenv("S3_BASE_URL")),
	}
	if useSSL := strings.TrimSpace(os.Getenv("S3_USE_SSL")); useSSL != "" {
		b, err := strconv.ParseBool(useSSL)
		if err != nil {
			return S3Config{}, fmt.Errorf("invalid S3_USE_SSL: %w", err)
		}
		cfg.UseSSL = b
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return S3Config{}, errors.New("missing required S3 env: S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY")
	}
	return cfg, nil
}

// S3Uploader stores attachments in an S3-compatible bucket and returns the
// resolved attachment records.
type S3Uploader struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &S3Uploader{client: cl, bucket: cfg.Bucket, baseURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

func (u *S3Uploader) Upload(ctx context.Context, scopePath string, files []File) ([]models.Attachment, error) {
	attachments := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		key, err := safeObjectKey(scopePath, f.Name)
		if err != nil {
			return nil, &UploadError{Name: f.Name, Err: err}
		}
		_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(f.Data), int64(len(f.Data)), minio.PutObjectOptions{
			ContentType: f.MimeType,
		})
		if err != nil {
			return nil, &UploadError{Name: f.Name, Err: err}
		}
		attachments = append(attachments, models.Attachment{
			FileType: FileTypeFor(f.MimeType),
			URL:      u.baseURL + "/" + key,
			Name:     f.Name,
			Size:     int64(len(f.Data)),
			MimeType: f.MimeType,
		})
	}
	return attachments, nil
}

// safeObjectKey builds a collision-free object key under the conversation's
// path, refusing traversal attempts.
func safeObjectKey(scopePath, name string) (string, error) {
	name = path.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "", errors.New("invalid file name")
	}
	scopePath = strings.Trim(scopePath, "/")
	if strings.Contains(scopePath, "..") || strings.ContainsAny(scopePath, "\\") {
		return "", errors.New("invalid scope path")
	}
	key := uuid.NewString() + "-" + name
	if scopePath != "" {
		key = scopePath + "/" + key
	}
	return key, nil
}

// FileTypeFor maps a MIME type to the attachment file type the timeline
// renders by.
func FileTypeFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	case mimeType == "application/pdf":
		return "pdf"
	default:
		return "file"
	}
}
