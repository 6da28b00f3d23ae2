package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"table-occupancy/internal/config"
)

func TestOptions(t *testing.T) {
	opts := Options(config.RedisConfig{Addr: "cache:6379", Password: "secret", DB: 3})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, pingTTL, opts.DialTimeout)
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	// port 1 on loopback refuses connections
	_, err := Connect(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
