package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_PutGet(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "cache.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.PutEmbeddings(ctx, map[string][]float32{
		"hello": {0.1, -0.2, 3},
		"你好":    {1, 2, 3},
	}))

	got, err := store.GetEmbeddings(ctx, []string{"hello", "missing", "你好"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, -0.2, 3}, got["hello"])
	assert.Equal(t, []float32{1, 2, 3}, got["你好"])

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// replace keeps one row per sentence
	require.NoError(t, store.PutEmbeddings(ctx, map[string][]float32{"hello": {9}}))
	got, err = store.GetEmbeddings(ctx, []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, got["hello"])
	n, _ = store.Count(ctx)
	assert.Equal(t, int64(2), n)

	require.NoError(t, store.Clear(ctx))
	n, _ = store.Count(ctx)
	assert.Zero(t, n)

	size, err := store.DiskUsage()
	require.NoError(t, err)
	assert.Positive(t, size)
}

func TestSQLiteStore_ManySentences(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	batch := make(map[string][]float32)
	sentences := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		s := fmt.Sprintf("sentence %d", i)
		batch[s] = []float32{float32(i)}
		sentences = append(sentences, s)
	}
	require.NoError(t, store.PutEmbeddings(ctx, batch))

	got, err := store.GetEmbeddings(ctx, sentences)
	require.NoError(t, err)
	assert.Len(t, got, 1200)
	assert.Equal(t, []float32{1199}, got["sentence 1199"])

	empty, err := store.GetEmbeddings(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSentenceKey(t *testing.T) {
	assert.Equal(t, SentenceKey("a"), SentenceKey("a"))
	assert.NotEqual(t, SentenceKey("a"), SentenceKey("b"))
	assert.Len(t, SentenceKey(""), len("sent:")+64)
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{0, -1.5, 3.25e-7}
	got, err := decodeVector(encodeVector(vec), 3)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3}, 1)
	assert.Error(t, err)
}
