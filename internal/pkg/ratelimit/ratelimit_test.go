package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStoreCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	n, err := store.Count(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for i := int64(1); i <= 3; i++ {
		n, err = store.Incr(ctx, "k", time.Hour)
		assert.NoError(t, err)
		assert.Equal(t, i, n)
	}

	n, err = store.Count(ctx, "k")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestMemoryStoreWindowExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStoreWithClock(func() time.Time { return now })

	_, err := store.Incr(ctx, "mail:a@b.de", time.Hour)
	assert.NoError(t, err)
	_, err = store.Incr(ctx, "mail:a@b.de", time.Hour)
	assert.NoError(t, err)

	// Still inside the rolling window
	now = now.Add(59 * time.Minute)
	n, err := store.Count(ctx, "mail:a@b.de")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Window elapsed: counter resets and the TTL starts over
	now = now.Add(2 * time.Minute)
	n, err = store.Count(ctx, "mail:a@b.de")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = store.Incr(ctx, "mail:a@b.de", time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
