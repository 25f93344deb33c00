//go:build integration

package s3

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/dittorelay/pkg/device"
)

// localstackEndpoint starts a Localstack container, or uses
// LOCALSTACK_ENDPOINT when set, and returns its S3 endpoint URL.
func localstackEndpoint(t *testing.T) string {
	t.Helper()
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "localstack/localstack:3.0",
			ExposedPorts: []string{"4566/tcp"},
			Env: map[string]string{
				"SERVICES":              "s3",
				"DEFAULT_REGION":        "us-east-1",
				"EAGER_SERVICE_LOADING": "1",
			},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4566/tcp"),
				wait.ForHTTP("/_localstack/health").
					WithPort("4566/tcp").
					WithStartupTimeout(60*time.Second),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start localstack container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4566")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func newLocalstackProvider(t *testing.T) (*Provider, string) {
	t.Helper()
	ctx := context.Background()

	p, err := NewFromConfig(ctx, Config{
		Size:            4096,
		ChunkSize:       1024,
		Region:          "us-east-1",
		Endpoint:        localstackEndpoint(t),
		ForcePathStyle:  true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	bucket := fmt.Sprintf("relay-%d", time.Now().UnixNano())
	_, err = p.client.(*s3.Client).CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)
	return p, bucket
}

func TestLocalstack_Acquire(t *testing.T) {
	p, bucket := newLocalstackProvider(t)
	ctx := context.Background()

	dev, err := p.Acquire(ctx, bucket+"/disk0")
	require.NoError(t, err)
	assert.Equal(t, "s3:"+bucket+"/disk0/", dev.Name())
	assert.Equal(t, int64(4096), dev.Size())
	require.NoError(t, dev.Close())

	_, err = p.Acquire(ctx, "missing-bucket/disk0")
	assert.ErrorIs(t, err, device.ErrNotFound)
}

func TestLocalstack_IO(t *testing.T) {
	p, bucket := newLocalstackProvider(t)
	ctx := context.Background()

	dev, err := p.Acquire(ctx, bucket+"/disk0")
	require.NoError(t, err)

	// Spans a partial, a full and a partial chunk.
	payload := bytes.Repeat([]byte{0xA5}, 2048)
	_, err = dev.WriteAt(ctx, payload, 512)
	require.NoError(t, err)

	got := make([]byte, 2048)
	_, err = dev.ReadAt(ctx, got, 512)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, dev.Discard(ctx, 1024, 1024))
	mid := make([]byte, 1024)
	_, err = dev.ReadAt(ctx, mid, 1024)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 1024), mid)

	require.NoError(t, dev.Flush(ctx))
	require.NoError(t, dev.Close())

	// A reattached device sees the stored chunks.
	dev, err = p.Acquire(ctx, bucket+"/disk0")
	require.NoError(t, err)
	defer dev.Close()

	head := make([]byte, 512)
	_, err = dev.ReadAt(ctx, head, 512)
	require.NoError(t, err)
	assert.Equal(t, payload[:512], head)
}
