package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidde/stattest/internal/storage/memory"
	"github.com/fidde/stattest/pkg/models"
)

var errStore = errors.New("store unavailable")

// flakyStore fails StoreValue for one key.
type flakyStore struct {
	*memory.Store
	failKey string
}

func (f *flakyStore) StoreValue(ctx context.Context, key string, value models.Value) error {
	if key == f.failKey {
		return errStore
	}
	return f.Store.StoreValue(ctx, key, value)
}

func TestKey(t *testing.T) {
	key, err := Key("KS_exp", 10, 0.05)
	require.NoError(t, err)
	assert.Equal(t, "KS_exp;10;0.05", key)

	_, err = Key("a_very_long_test_code_name", 1000, 0.05)
	assert.ErrorIs(t, err, models.ErrInvalidKey)
}

func TestPutFlushGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := New(store, store, nil)

	_, ok, err := c.GetWithLevel(ctx, "KS_exp", 10, 0.05)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutWithLevel(ctx, "KS_exp", 10, 0.05, 0.41))

	// Visible before flush, but not yet persisted
	v, ok, err := c.GetWithLevel(ctx, "KS_exp", 10, 0.05)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.41, v)

	_, ok, err = store.GetFloatValue(ctx, "KS_exp;10;0.05")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Flush(ctx))
	assert.Zero(t, c.Pending())

	v, ok, err = store.GetFloatValue(ctx, "KS_exp;10;0.05")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.41, v)

	// A fresh cache over the same store sees the persisted value
	v, ok, err = New(store, store, nil).GetWithLevel(ctx, "KS_exp", 10, 0.05)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.41, v)
}

func TestFlushKeepsFailedValues(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New(), failKey: "CM_exp;10;0.05"}
	c := New(store, store, nil)

	require.NoError(t, c.PutWithLevel(ctx, "AD_exp", 10, 0.05, 1.1))
	require.NoError(t, c.PutWithLevel(ctx, "CM_exp", 10, 0.05, 2.2))
	require.NoError(t, c.PutWithLevel(ctx, "KS_exp", 10, 0.05, 3.3))

	err := c.Flush(ctx)
	assert.ErrorIs(t, err, errStore)

	// Keys flush in order; AD_exp made it, CM_exp and KS_exp did not
	assert.Equal(t, 2, c.Pending())
	_, ok, _ := store.GetFloatValue(ctx, "AD_exp;10;0.05")
	assert.True(t, ok)

	store.failKey = ""
	require.NoError(t, c.Flush(ctx))
	assert.Zero(t, c.Pending())
	v, ok, _ := store.GetFloatValue(ctx, "KS_exp;10;0.05")
	assert.True(t, ok)
	assert.Equal(t, 3.3, v)
}

func TestNonFloatEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.StoreValue(ctx, "KS_exp;10;0.05", models.StringValue("oops")))

	_, ok, err := New(store, store, nil).GetWithLevel(ctx, "KS_exp", 10, 0.05)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDistribution(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := New(store, store, nil)

	_, ok, err := c.GetDistribution(ctx, "KS_exp", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutDistribution(ctx, "KS_exp", 10, []float64{0.1, 0.2, 0.3}))
	require.NoError(t, c.PutDistribution(ctx, "KS_exp", 10, []float64{0.4, 0.5}))

	dist, ok, err := c.GetDistribution(ctx, "KS_exp", 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{0.4, 0.5}, dist)

	// Stored under its own code so it never mixes with generated samples
	n, err := store.GetSampleCount(ctx, "dist_KS_exp", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, c.PutDistribution(ctx, "KS_exp", 10, nil), ErrEmptyDistribution)
}
