package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound is returned when a requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

var _ ObjectStore = (*MinioStore)(nil)

// MinioStore implements ObjectStore over two buckets of a MinIO (or any
// S3-compatible) backend: a private raw bucket written only through presigned
// URLs, and a public-read thumbnail bucket served directly to browsers.
type MinioStore struct {
	client      *minio.Client
	rawBucket   string
	thumbBucket string
	publicBase  string
}

// NewMinioStore creates a MinIO client and ensures both buckets exist. The
// thumbnail bucket gets an anonymous-GET policy; the raw bucket stays private
// so originals are reachable only through single-key presigned credentials.
func NewMinioStore(endpoint, accessKey, secretKey, rawBucket, thumbBucket, publicBase string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	for _, bucket := range []string{rawBucket, thumbBucket} {
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket existence: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
			}
			log.Printf("storage: created bucket %q", bucket)
		}
	}

	if err := client.SetBucketPolicy(ctx, thumbBucket, publicReadPolicy(thumbBucket)); err != nil {
		return nil, fmt.Errorf("set thumbnail bucket policy: %w", err)
	}

	return &MinioStore{
		client:      client,
		rawBucket:   rawBucket,
		thumbBucket: thumbBucket,
		publicBase:  strings.TrimRight(publicBase, "/"),
	}, nil
}

// PresignedPut returns a time-bounded PUT URL for exactly one key in the raw
// bucket. The signature covers bucket and key, so the credential cannot be
// redeemed against any other object.
func (s *MinioStore) PresignedPut(ctx context.Context, fileKey string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.rawBucket, fileKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put %q: %w", fileKey, err)
	}
	return u.String(), nil
}

// GetRaw opens the original object for fileKey.
func (s *MinioStore) GetRaw(ctx context.Context, fileKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.rawBucket, fileKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", fileKey, err)
	}
	// GetObject is lazy; surface not-found now instead of at first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, wrapMinioErr(fileKey, err)
	}
	return obj, nil
}

// PutThumbnail writes thumbnail bytes under fileKey in the thumbnail bucket.
func (s *MinioStore) PutThumbnail(ctx context.Context, fileKey string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.thumbBucket, fileKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put thumbnail %q: %w", fileKey, err)
	}
	return nil
}

// OpenThumbnail opens a thumbnail object for streaming.
func (s *MinioStore) OpenThumbnail(ctx context.Context, fileKey string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.thumbBucket, fileKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, fmt.Errorf("get thumbnail %q: %w", fileKey, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, wrapMinioErr(fileKey, err)
	}
	return obj, ObjectInfo{ContentType: stat.ContentType, Size: stat.Size}, nil
}

// ThumbnailURL returns the browser-accessible URL for the given key.
// For local MinIO: "http://localhost:9000/photoshare-thumbnails/u1/cat.jpg".
func (s *MinioStore) ThumbnailURL(fileKey string) string {
	return s.publicBase + "/" + fileKey
}

func wrapMinioErr(fileKey string, err error) error {
	if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
		return fmt.Errorf("object %q: %w", fileKey, ErrObjectNotFound)
	}
	return fmt.Errorf("stat object %q: %w", fileKey, err)
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET
// on all objects in the bucket.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
