// Package images uploads local image files referenced as "@path" in post
// forms to S3-compatible storage and returns their public URLs.
package images

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/gophblog/internal/client/config"
	"github.com/dmitrijs2005/gophblog/internal/common"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/google/uuid"
)

// FilePrefix marks an image field value as a local file to upload.
const FilePrefix = "@"

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// ErrUnsupported is returned for files that are not a known image type.
var ErrUnsupported = errors.New("unsupported image type")

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader puts images into one bucket. A nil *Uploader is valid and rejects
// uploads.
type Uploader struct {
	api     putObjectAPI
	bucket  string
	baseURL string
	log     logging.Logger
	now     func() time.Time
	newID   func() string
}

// NewUploader returns nil when cfg has no bucket.
func NewUploader(ctx context.Context, cfg config.S3Config, log logging.Logger) (*Uploader, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return newUploader(client, cfg, log), nil
}

func newUploader(api putObjectAPI, cfg config.S3Config, log logging.Logger) *Uploader {
	return &Uploader{
		api:     api,
		bucket:  cfg.Bucket,
		baseURL: publicBaseURL(cfg),
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// publicBaseURL is where uploaded keys are served from: the configured
// public URL, the custom endpoint in path style, or the AWS virtual host.
func publicBaseURL(cfg config.S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.BaseEndpoint != "":
		return strings.TrimRight(cfg.BaseEndpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

func objectKey(t time.Time, id, ext string) string {
	return fmt.Sprintf("posts/%04d/%02d/%02d/%s%s", t.Year(), t.Month(), t.Day(), id, ext)
}

// Resolve turns an image field into a URL. Values starting with FilePrefix
// are uploaded; anything else is returned unchanged.
func (u *Uploader) Resolve(ctx context.Context, value string) (string, error) {
	path, ok := strings.CutPrefix(strings.TrimSpace(value), FilePrefix)
	if !ok {
		return value, nil
	}
	if u == nil {
		return "", fmt.Errorf("%w: image uploads are not configured, give an image URL instead", common.ErrValidation)
	}
	return u.Upload(ctx, path)
}

// Upload stores the file at path and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}

	key := objectKey(u.now().UTC(), u.newID(), ext)
	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(mime.TypeByExtension(ext)),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	u.log.Info(ctx, "image uploaded", "key", key, "bytes", info.Size())
	return u.baseURL + "/" + key, nil
}
