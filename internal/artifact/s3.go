package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/config"
)

const noSuchKey = "NoSuchKey"

// S3Store keeps artifacts as objects under a prefix of one bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Store connects to the bucket, creating it when missing.
func NewS3Store(ctx context.Context, cfg config.S3Config, log zerolog.Logger) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	found, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !found {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("created artifact bucket")
	}

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Location returns an s3:// URI for name.
func (s *S3Store) Location(name string) string {
	return "s3://" + s.bucket + "/" + s.key(name)
}

// Load downloads the object, or returns ErrNotFound.
func (s *S3Store) Load(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(name, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(name, err)
	}
	return data, nil
}

// Save uploads data in a single PUT.
func (s *S3Store) Save(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.Location(name), err)
	}
	return nil
}

// Exists reports whether the object is present.
func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == noSuchKey {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", s.Location(name), err)
}

func (s *S3Store) mapErr(name string, err error) error {
	if minio.ToErrorResponse(err).Code == noSuchKey {
		return ErrNotFound
	}
	return fmt.Errorf("get %s: %w", s.Location(name), err)
}
