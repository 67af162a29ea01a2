package settings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Store держит документ одним объектом в S3-совместимом бакете.
type S3Store struct {
	client *minio.Client
	bucket string
	key    string
	host   string
}

// NewS3StoreFromEnv читает S3_ENDPOINT / S3_ACCESS_KEY / S3_SECRET_KEY /
// S3_REGION и SETTINGS_S3_BUCKET / SETTINGS_S3_KEY.
func NewS3StoreFromEnv(ctx context.Context) (*S3Store, error) {
	endpoint := os.Getenv("S3_ENDPOINT")
	accessKey := os.Getenv("S3_ACCESS_KEY")
	secretKey := os.Getenv("S3_SECRET_KEY")
	region := os.Getenv("S3_REGION")
	bucket := os.Getenv("SETTINGS_S3_BUCKET")
	key := os.Getenv("SETTINGS_S3_KEY")
	if key == "" {
		key = "echolite/echolite.models.json"
	}
	secure := os.Getenv("S3_INSECURE") != "true"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	// проверим, что бакет существует
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", bucket)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		key:    key,
		host:   endpoint,
	}, nil
}

func (s *S3Store) Location() string {
	return fmt.Sprintf("s3://%s/%s/%s", s.host, s.bucket, strings.TrimLeft(s.key, "/"))
}

func (s *S3Store) Read(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return b, nil
}

func (s *S3Store) Write(ctx context.Context, doc []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key, bytes.NewReader(doc), int64(len(doc)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"uploaded-at": time.Now().Format(time.RFC3339)},
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}

func (s *S3Store) mapErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("s3 get %s: %w", s.key, err)
}
