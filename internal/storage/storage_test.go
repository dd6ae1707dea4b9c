package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStoragePutGet(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, []string{"sessions", "s1"}, doc{Name: "a", Count: 2}))

	var got doc
	require.NoError(t, st.Get(ctx, []string{"sessions", "s1"}, &got))
	assert.Equal(t, doc{Name: "a", Count: 2}, got)
}

func TestStorageGetNotFound(t *testing.T) {
	st := New(t.TempDir())
	var got doc
	err := st.Get(context.Background(), []string{"missing"}, &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorageDelete(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, []string{"s1"}, doc{Name: "a"}))
	require.NoError(t, st.Delete(ctx, []string{"s1"}))

	var got doc
	assert.ErrorIs(t, st.Get(ctx, []string{"s1"}, &got), ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, st.Delete(ctx, []string{"s1"}))
}

func TestStorageList(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, []string{"sessions", "s1"}, doc{}))
	require.NoError(t, st.Put(ctx, []string{"sessions", "s2"}, doc{}))

	items, err := st.List(ctx, []string{"sessions"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, items)

	empty, err := st.List(ctx, []string{"nothing"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStorageWriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, []string{"s1"}, doc{Name: "a"}))

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s1.json", entries[0].Name())
	assert.Equal(t, filepath.Ext(entries[0].Name()), ".json")
}

func TestStorageConcurrentPuts(t *testing.T) {
	st := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, st.Put(ctx, []string{"shared"}, doc{Count: n}))
		}(i)
	}
	wg.Wait()

	var got doc
	require.NoError(t, st.Get(ctx, []string{"shared"}, &got))
	assert.Less(t, got.Count, 20)
}
