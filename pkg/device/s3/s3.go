// Package s3 provides a device backend over an S3 bucket.
//
// The device is split into fixed-size chunk objects under
// "<prefix>chunk-<index>". Missing chunks read as zeros. Partial writes
// read-modify-write the affected chunk.
//
// Endpoint format: "<bucket>" or "<bucket>/<prefix>".
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dittorelay/internal/logger"
	"github.com/marmos91/dittorelay/pkg/device"
)

// DefaultChunkSize is used when Config.ChunkSize is zero.
const DefaultChunkSize = 1024 * 1024

// Client is the subset of *s3.Client the backend uses.
type Client interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config holds configuration for the S3 backend.
type Config struct {
	// Size is the device capacity in bytes.
	Size int64

	// ChunkSize is the object granularity. Defaults to DefaultChunkSize.
	ChunkSize int64

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// ForcePathStyle forces path-style addressing (required for MinIO/Localstack).
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey set static credentials when both are non-empty.
	AccessKeyID     string
	SecretAccessKey string
}

// Provider attaches bucket prefixes as devices.
type Provider struct {
	client Client
	cfg    Config
}

// New creates a provider with an existing client.
func New(client Client, cfg Config) (*Provider, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Size <= 0 || cfg.ChunkSize < 0 {
		return nil, fmt.Errorf("s3 device: size and chunk size must be positive")
	}
	return &Provider{client: client, cfg: cfg}, nil
}

// NewFromConfig creates a provider, building the S3 client from cfg.
func NewFromConfig(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(client, cfg)
}

// Acquire checks that the bucket is reachable and returns a device over it.
func (p *Provider) Acquire(ctx context.Context, endpoint string) (device.Device, error) {
	bucket, prefix := splitEndpoint(endpoint)
	if bucket == "" {
		return nil, fmt.Errorf("s3 endpoint %q: missing bucket: %w", endpoint, device.ErrNotFound)
	}

	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("s3 bucket %q: %w", bucket, device.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 head bucket %q: %w", bucket, err)
	}

	logger.Debug("S3 device attached", logger.KeyBucket, bucket, logger.KeyKey, prefix)
	return &Device{
		client: p.client,
		bucket: bucket,
		prefix: prefix,
		size:   p.cfg.Size,
		chunk:  p.cfg.ChunkSize,
	}, nil
}

func splitEndpoint(endpoint string) (bucket, prefix string) {
	endpoint = strings.TrimPrefix(endpoint, "s3://")
	bucket, prefix, _ = strings.Cut(endpoint, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return bucket, prefix
}

// isNotFoundError checks if an error is an S3 not found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NoSuchBucket") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

// Device is an attached bucket prefix.
type Device struct {
	client Client
	bucket string
	prefix string
	size   int64
	chunk  int64

	// chunkMu serializes read-modify-write cycles.
	chunkMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func (d *Device) Name() string { return "s3:" + d.bucket + "/" + d.prefix }
func (d *Device) Size() int64  { return d.size }

func (d *Device) key(idx int64) string {
	return fmt.Sprintf("%schunk-%08d", d.prefix, idx)
}

func (d *Device) getChunk(ctx context.Context, idx int64) ([]byte, error) {
	buf := make([]byte, d.chunk)
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(idx)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return buf, nil
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.ReadFull(resp.Body, buf); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("s3 read body: %w", err)
	}
	return buf, nil
}

func (d *Device) putChunk(ctx context.Context, idx int64, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(idx)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (d *Device) span(off, length int64, fn func(idx, cOff, cEnd, bOff int64) error) error {
	for pos := off; pos < off+length; {
		idx := pos / d.chunk
		cOff := pos % d.chunk
		n := min(d.chunk-cOff, off+length-pos)
		if err := fn(idx, cOff, cOff+n, pos-off); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

func (d *Device) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, int64(len(p))); err != nil {
		return 0, err
	}
	err := d.span(off, int64(len(p)), func(idx, cOff, cEnd, bOff int64) error {
		data, err := d.getChunk(ctx, idx)
		if err != nil {
			return err
		}
		copy(p[bOff:], data[cOff:cEnd])
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *Device) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, int64(len(p))); err != nil {
		return 0, err
	}

	d.chunkMu.Lock()
	defer d.chunkMu.Unlock()

	err := d.span(off, int64(len(p)), func(idx, cOff, cEnd, bOff int64) error {
		var data []byte
		if cOff == 0 && cEnd == d.chunk {
			data = p[bOff : bOff+d.chunk]
		} else {
			var err error
			if data, err = d.getChunk(ctx, idx); err != nil {
				return err
			}
			copy(data[cOff:cEnd], p[bOff:])
		}
		return d.putChunk(ctx, idx, data)
	})
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush is a no-op: every write is durable once PutObject returns.
func (d *Device) Flush(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.check(ctx, 0, 0)
}

func (d *Device) Discard(ctx context.Context, off, length int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.check(ctx, off, length); err != nil {
		return err
	}

	d.chunkMu.Lock()
	defer d.chunkMu.Unlock()

	return d.span(off, length, func(idx, cOff, cEnd, _ int64) error {
		if cOff == 0 && cEnd == d.chunk {
			_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(d.bucket),
				Key:    aws.String(d.key(idx)),
			})
			if err != nil && !isNotFoundError(err) {
				return fmt.Errorf("s3 delete object: %w", err)
			}
			return nil
		}
		data, err := d.getChunk(ctx, idx)
		if err != nil {
			return err
		}
		clear(data[cOff:cEnd])
		return d.putChunk(ctx, idx, data)
	})
}

// Close marks the handle closed. The shared client stays usable.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return device.ErrClosed
	}
	d.closed = true
	return nil
}

func (d *Device) check(ctx context.Context, off, length int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.closed {
		return device.ErrClosed
	}
	return device.CheckRange(d.size, off, length)
}

var _ device.Provider = (*Provider)(nil)
var _ device.Device = (*Device)(nil)
var _ Client = (*s3.Client)(nil)
