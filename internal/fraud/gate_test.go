package fraud

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/pkg/apperr"
)

func testGateConfig() Config {
	return Config{
		IPWindow:   24 * time.Hour,
		IPLimit:    10,
		UserWindow: time.Hour,
		UserLimit:  5,
	}
}

func TestGate_IPLimit(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	gate := NewGate(store, testGateConfig())
	ctx := context.Background()

	// 10 attempts from one IP, different users so the user window stays clear
	for i := 0; i < 10; i++ {
		err := gate.CheckAndRecord(ctx, "10.0.0.1", uint64(100+i))
		require.NoError(t, err, "attempt %d should pass", i+1)
	}

	err := gate.CheckAndRecord(ctx, "10.0.0.1", 999)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRateExceeded))
	assert.Equal(t, "ip", apperr.Detail(err)["scope"])

	// A different IP is unaffected
	assert.NoError(t, gate.CheckAndRecord(ctx, "10.0.0.2", 998))
}

func TestGate_UserLimit(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	gate := NewGate(store, testGateConfig())
	ctx := context.Background()

	// 5 attempts for one user from different IPs
	for i := 0; i < 5; i++ {
		err := gate.CheckAndRecord(ctx, fmt.Sprintf("10.0.1.%d", i), 42)
		require.NoError(t, err, "attempt %d should pass", i+1)
	}

	err := gate.CheckAndRecord(ctx, "10.0.1.200", 42)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRateExceeded))
	assert.Equal(t, "user", apperr.Detail(err)["scope"])

	// Another user from the same IP still passes
	assert.NoError(t, gate.CheckAndRecord(ctx, "10.0.1.200", 43))
}

func TestGate_RejectedAttemptsNotRecorded(t *testing.T) {
	store := NewMemoryStore(24 * time.Hour)
	gate := NewGate(store, testGateConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, gate.CheckAndRecord(ctx, fmt.Sprintf("10.0.2.%d", i), 7))
	}

	// Rejections must not inflate the window
	for i := 0; i < 20; i++ {
		err := gate.CheckAndRecord(ctx, "10.0.2.99", 7)
		require.Error(t, err)
	}

	count, err := store.Count(ctx, "user:7", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestGate_WindowExpiry(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(24 * time.Hour)
	store.now = func() time.Time { return now }
	gate := NewGate(store, testGateConfig())
	ctx := context.Background()

	// Fill the IP window with attempts stamped 25 hours in the past
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Record(ctx, "ip:10.0.3.1", now.Add(-25*time.Hour)))
	}

	// Old attempts fall outside the 24h window; a fresh one passes
	assert.NoError(t, gate.CheckAndRecord(ctx, "10.0.3.1", 500))
}

func TestMemoryStore_CountWindows(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(24 * time.Hour)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "k", now.Add(-30*time.Minute)))
	require.NoError(t, store.Record(ctx, "k", now.Add(-2*time.Hour)))
	require.NoError(t, store.Record(ctx, "k", now.Add(-23*time.Hour)))

	hourly, err := store.Count(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, hourly)

	daily, err := store.Count(ctx, "k", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, daily)
}

func TestMemoryStore_Pruning(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(time.Hour)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "k", now.Add(-2*time.Hour)))
	require.NoError(t, store.Record(ctx, "k", now.Add(-10*time.Minute)))

	count, err := store.Count(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, store.events["k"], 1)
}
