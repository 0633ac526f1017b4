package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/docqa/pkg/options/redis"
)

func TestNewAgainstLocalRedis(t *testing.T) {
	opts := options.NewOptions()
	opts.Database = 15
	opts.DialTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := New(ctx, opts)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer func() { _ = client.Close() }()

	assert.Equal(t, "redis", client.Name())
	require.NoError(t, client.Ping(ctx))
	assert.Equal(t, 15, client.Client().Options().DB)
}

func TestNewUnreachable(t *testing.T) {
	opts := options.NewOptions()
	opts.Port = 1
	opts.MaxRetries = -1
	opts.DialTimeout = 200 * time.Millisecond

	_, err := New(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestOptionsStringRedactsPassword(t *testing.T) {
	opts := options.NewOptions()
	opts.Password = "supersecret"
	assert.NotContains(t, opts.String(), "supersecret")
	assert.Contains(t, opts.String(), "[REDACTED]")
}
