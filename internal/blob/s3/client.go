// Package s3blob archives ledger snapshots to S3 or any S3-compatible store
// (MinIO, R2) using AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ClientConfig holds the configuration for connecting to an S3-compatible
// object store.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint, e.g. "http://minio:9000".
	Endpoint string

	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// Prefix namespaces every object key, so several ledgers can share a
	// bucket. Paths passed to Reader and Writer are relative to it.
	Prefix string

	// UseSSL picks the scheme for an Endpoint given without one.
	UseSSL bool

	// ForcePathStyle puts the bucket in the path. MinIO needs it.
	ForcePathStyle bool
}

// Client is an S3 SDK client bound to one bucket and key prefix.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// New creates an S3 client for cfg.Bucket.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3blob: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	// Without static keys the default chain (env, profile, IMDS) applies.
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return newClient(client, cfg.Bucket, cfg.Prefix), nil
}

func newClient(c *s3.Client, bucket, prefix string) *Client {
	return &Client{s3: c, bucket: bucket, prefix: cleanPrefix(prefix)}
}

// Health verifies the bucket is reachable with a HeadBucket.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: bucket %s unreachable: %w", c.bucket, err)
	}
	return nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// key maps a relative path to its full object key.
func (c *Client) key(p string) *string {
	if c.prefix == "" {
		return aws.String(p)
	}
	return aws.String(c.prefix + p)
}

// relative strips the prefix from an object key returned by S3.
func (c *Client) relative(key string) string {
	return strings.TrimPrefix(key, c.prefix)
}

// cleanPrefix normalises "a/b", "/a/b/" and "a//b" to "a/b/". An empty
// prefix stays empty.
func cleanPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/ ")
	if prefix == "" {
		return ""
	}
	return path.Clean(prefix) + "/"
}

// normaliseEndpoint adds a scheme to a bare host:port endpoint.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// isNotFound matches NoSuchKey, the untyped NotFound that HeadObject
// returns, and bare 404s from S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var status interface{ HTTPStatusCode() int }
	switch {
	case errors.As(err, &nsk), errors.As(err, &nf):
		return true
	case errors.As(err, &status):
		return status.HTTPStatusCode() == 404
	}
	return false
}
