package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/usbforge/usbforge/pkg/errors"
)

// Client downloads installer ISO images from an S3 bucket.
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient creates an S3 client for anonymous read access to an ISO bucket.
func NewClient(ctx context.Context, bucket, region string) (*Client, error) {
	slog.Info("s3_client_init", "bucket", bucket, "region", region)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &Client{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
	}, nil
}

// FetchResult contains metadata about a downloaded ISO.
type FetchResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Fetch streams an ISO object to localPath, computing its SHA256 on the way
// down so the caller can record or verify it.
func (c *Client) Fetch(ctx context.Context, key, localPath string) (*FetchResult, error) {
	slog.Info("iso_fetch_start", "bucket", c.bucket, "key", key)

	obj, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("iso_get_object_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer obj.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		slog.Error("iso_local_create_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), obj.Body)
	if err != nil {
		slog.Error("iso_fetch_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to download ISO")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))

	slog.Info("iso_fetch_complete",
		"key", key,
		"size_mb", size/1024/1024,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &FetchResult{
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}

// ListISOs lists objects in the bucket under a prefix.
func (c *Client) ListISOs(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("iso_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("iso_list_complete", "prefix", prefix, "count", len(keys))
	return keys, nil
}
