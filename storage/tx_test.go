package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainStore hides the Batcher implementation of Memory.
type plainStore struct{ *Memory }

func (p plainStore) SetMany() {}

func TestTx_StagesUntilCommit(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	require.NoError(t, base.Set(ctx, "a", []byte("1")))

	tx := Begin(base)
	require.NoError(t, tx.Set(ctx, "a", []byte("2")))
	require.NoError(t, tx.Set(ctx, "b", []byte("3")))

	v, ok, err := tx.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", string(v))

	v, _, _ = base.Get(ctx, "a")
	assert.Equal(t, "1", string(v))
	_, ok, _ = base.Get(ctx, "b")
	assert.False(t, ok)

	require.NoError(t, tx.Commit(ctx))
	v, _, _ = base.Get(ctx, "a")
	assert.Equal(t, "2", string(v))
	v, _, _ = base.Get(ctx, "b")
	assert.Equal(t, "3", string(v))

	assert.ErrorIs(t, tx.Commit(ctx), ErrTxClosed)
	assert.ErrorIs(t, tx.Set(ctx, "c", nil), ErrTxClosed)
}

func TestTx_DiscardLeavesBaseUntouched(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()

	tx := Begin(base)
	require.NoError(t, tx.Set(ctx, "a", []byte("1")))
	assert.Len(t, tx.Entries(), 1)

	_, ok, err := base.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTx_SequentialFallback(t *testing.T) {
	ctx := context.Background()
	base := plainStore{NewMemory()}
	var _ Store = base

	tx := Begin(base)
	require.NoError(t, tx.Set(ctx, "x", []byte("1")))
	require.NoError(t, tx.Set(ctx, "y", []byte("2")))
	require.NoError(t, tx.Set(ctx, "x", []byte("3")))
	assert.Equal(t, []Entry{{Key: "x", Value: []byte("3")}, {Key: "y", Value: []byte("2")}}, tx.Entries())

	require.NoError(t, tx.Commit(ctx))
	v, _, _ := base.Get(ctx, "x")
	assert.Equal(t, "3", string(v))
}
