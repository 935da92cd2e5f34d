package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "campaign:1", []byte("a")))
	v, err := s.Get(ctx, "campaign:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	// returned slices are copies
	v[0] = 'z'
	again, _ := s.Get(ctx, "campaign:1")
	assert.Equal(t, []byte("a"), again)
}

func TestMemoryStoreSetNX(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.SetNX(ctx, "settlement:1", []byte("first"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "settlement:1", []byte("second"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, _ := s.Get(ctx, "settlement:1")
	assert.Equal(t, []byte("first"), v)
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"campaign:2", "campaign:1", "claim:9", "pending:9"} {
		require.NoError(t, s.Set(ctx, k, []byte("x")))
	}

	tests := []struct {
		pattern string
		want    []string
	}{
		{"campaign:*", []string{"campaign:1", "campaign:2"}},
		{"claim:*", []string{"claim:9"}},
		{"transaction:*", nil},
		{"*", []string{"campaign:1", "campaign:2", "claim:9", "pending:9"}},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := s.Keys(ctx, tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.Keys(ctx, "[")
	assert.Error(t, err)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))

	require.NoError(t, s.Delete(ctx, "a", "b", "absent"))
	keys, _ := s.Keys(ctx, "*")
	assert.Empty(t, keys)
}
