package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vellum-stream/pipeline/internal/domain/repository"
)

// publishConcurrency bounds how many objects PublishTree uploads at once.
// Kept well under the 20 the pack's heaviest uploader allows; a worker only
// ever publishes one job's tree at a time, so the modest pool keeps the
// embedded KV store's row-lock contention (progress updates between
// batches) predictable.
const publishConcurrency = 5

// interBatchPause is slept between batches so a large publish doesn't starve
// the S3-compatible endpoint's connection pool.
const interBatchPause = 100 * time.Millisecond

// putObjectAPI is the subset of *s3.Client this package depends on, narrowed
// to an interface so tests can substitute a fake instead of a live endpoint.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ClientConfig holds configuration for the S3-compatible client.
type ClientConfig struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	UsePathStyle bool
}

// Client wraps an S3-compatible object store and implements
// repository.ObjectStorage.
type Client struct {
	client   putObjectAPI
	bucket   string
	endpoint string
}

// NewClient creates a Client against an S3-compatible endpoint (OCI, MinIO's
// S3 API, or AWS S3 itself). It verifies the bucket exists during
// initialization to fail fast on misconfiguration.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid S3 endpoint: %w", err)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return newClientWithAPI(ctx, s3Client, cfg.Bucket, cfg.Endpoint)
}

// newClientWithAPI builds a Client against a given putObjectAPI. Used
// directly in tests to inject a fake.
func newClientWithAPI(ctx context.Context, api putObjectAPI, bucket, endpoint string) (*Client, error) {
	if _, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrBucketNotFound, bucket, err)
	}
	return &Client{client: api, bucket: bucket, endpoint: endpoint}, nil
}

// Upload stores a single object, public-read, with the given content type.
func (c *Client) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          reader,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// PublishTree recursively walks localDir and uploads every regular file
// under keyPrefix, publishConcurrency at a time, pausing interBatchPause
// between batches. onProgress is invoked after every completed file.
func (c *Client) PublishTree(ctx context.Context, localDir, keyPrefix string, onProgress func(repository.PublishProgress)) error {
	files, err := collectFiles(localDir)
	if err != nil {
		return fmt.Errorf("walk %s: %w", localDir, err)
	}

	total := len(files)
	var done int
	var mu sync.Mutex

	for batchStart := 0; batchStart < total; batchStart += publishConcurrency {
		batchEnd := batchStart + publishConcurrency
		if batchEnd > total {
			batchEnd = total
		}
		batch := files[batchStart:batchEnd]

		var wg sync.WaitGroup
		errCh := make(chan error, len(batch))

		for _, relPath := range batch {
			wg.Add(1)
			go func(relPath string) {
				defer wg.Done()
				if err := c.uploadFile(ctx, localDir, keyPrefix, relPath); err != nil {
					errCh <- err
					return
				}
				mu.Lock()
				done++
				current := done
				mu.Unlock()
				if onProgress != nil {
					onProgress(repository.PublishProgress{FilesDone: current, FilesTotal: total})
				}
			}(relPath)
		}

		wg.Wait()
		close(errCh)
		for err := range errCh {
			if err != nil {
				return err
			}
		}

		if batchEnd < total {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interBatchPause):
			}
		}
	}

	return nil
}

func (c *Client) uploadFile(ctx context.Context, localDir, keyPrefix, relPath string) error {
	f, err := os.Open(filepath.Join(localDir, relPath))
	if err != nil {
		return fmt.Errorf("open %s: %w", relPath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", relPath, err)
	}

	key := strings.TrimPrefix(filepath.ToSlash(filepath.Join(keyPrefix, relPath)), "/")
	return c.Upload(ctx, key, f, stat.Size(), contentTypeFor(relPath))
}

// collectFiles returns every regular file under dir, relative to dir.
func collectFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

// contentTypeFor maps a published artifact's extension to its content type.
func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".m4s":
		return "video/iso.segment"
	case ".mp4":
		return "video/mp4"
	case ".mpd":
		return "application/dash+xml"
	case ".vtt":
		return "text/vtt"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

// Delete removes an object from the storage.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Endpoint returns the configured endpoint host, used to build public URLs.
func (c *Client) Endpoint() string { return c.endpoint }
