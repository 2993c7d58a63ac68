// Package storage keeps uploaded documents in S3/MinIO.
//
// Uploads land under the staging prefix while they are evaluated. Admitted
// uploads are promoted to the corpus prefix; discarded ones are deleted.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object prefixes inside the bucket.
const (
	StagingPrefix = "staging"
	CorpusPrefix  = "corpus"
	SeedsPrefix   = "seeds"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "patent-novelty"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for upload staging and corpus archival.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// StagingKey is the object name of an upload awaiting a verdict.
func StagingKey(token, filename string) string {
	return path.Join(StagingPrefix, token, objectName(filename))
}

// CorpusKey is the object name of an admitted upload.
func CorpusKey(token, filename string) string {
	return path.Join(CorpusPrefix, token, objectName(filename))
}

// objectName keeps the base name only, so uploads cannot escape their prefix.
func objectName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}

// Stage writes an upload under the staging prefix and returns its object name.
func (c *Client) Stage(ctx context.Context, token, filename, contentType string, data []byte) (string, error) {
	key := StagingKey(token, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.minioClient.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to stage upload: %w", err)
	}
	return key, nil
}

// Promote moves a staged upload to the corpus prefix.
func (c *Client) Promote(ctx context.Context, token, filename string) error {
	src := StagingKey(token, filename)
	dst := CorpusKey(token, filename)

	_, err := c.minioClient.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: c.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: c.bucket, Object: src},
	)
	if err != nil {
		return fmt.Errorf("failed to promote upload: %w", err)
	}
	return c.remove(ctx, src)
}

// Discard deletes a staged upload.
func (c *Client) Discard(ctx context.Context, token, filename string) error {
	return c.remove(ctx, StagingKey(token, filename))
}

func (c *Client) remove(ctx context.Context, key string) error {
	if err := c.minioClient.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Object describes a stored document.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// List returns the objects under prefix, skipping manifests.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var objects []Object
	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") || path.Base(object.Key) == manifestName {
			continue
		}
		objects = append(objects, Object{Key: object.Key, Size: object.Size, ContentType: object.ContentType})
	}
	return objects, nil
}

// Get reads an object and its content type.
func (c *Client) Get(ctx context.Context, key string) ([]byte, string, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat %s: %w", key, err)
	}

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, info.ContentType, nil
}

// Put writes a document object.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := c.minioClient.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

const manifestName = "manifest.json"

// SeedManifest records what a seeding run pulled in.
type SeedManifest struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Admitted  []string  `json:"admitted"`
	Failed    []string  `json:"failed,omitempty"`
}

// PutManifest writes the manifest JSON under prefix.
func (c *Client) PutManifest(ctx context.Context, prefix string, manifest SeedManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return c.Put(ctx, path.Join(prefix, manifestName), "application/json", data)
}

// GetManifest reads the manifest stored under prefix.
func (c *Client) GetManifest(ctx context.Context, prefix string) (*SeedManifest, error) {
	data, _, err := c.Get(ctx, path.Join(prefix, manifestName))
	if err != nil {
		return nil, err
	}

	var manifest SeedManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}
