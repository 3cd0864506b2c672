package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 50000, cfg.MaxRecords)
	assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second, 90 * time.Second}, cfg.Backoff)
	assert.Equal(t, []int{502, 503, 504}, cfg.RetryableStatuses)
	assert.Equal(t, int64(1), cfg.PriceScale)
	assert.Equal(t, 30*time.Minute, cfg.StaleRunAfter)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SYNC_PAGE_SIZE", "25")
	t.Setenv("SYNC_PAGE_DELAY", "250ms")
	t.Setenv("SYNC_BACKOFF", "1s, 2s,4s")
	t.Setenv("SYNC_RETRYABLE_STATUSES", "503")
	t.Setenv("PRICE_SCALE", "100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.PageDelay)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.Backoff)
	assert.Equal(t, []int{503}, cfg.RetryableStatuses)
	assert.Equal(t, int64(100), cfg.PriceScale)
}

func TestMalformedListsFallBack(t *testing.T) {
	t.Setenv("SYNC_BACKOFF", "1s,soon")
	t.Setenv("SYNC_PAGE_RETRIES", "many")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Len(t, cfg.Backoff, 4)
	assert.Equal(t, 5, cfg.PageRetries)
}

func TestCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example, ,https://admin.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.CORSAllowedOrigins)

	t.Setenv("CORS_ALLOWED_ORIGINS", " , ")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}
