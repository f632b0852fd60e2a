package pagestore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formruntime/internal/pagestore"
	"github.com/goliatone/go-formruntime/pkg/layout"
)

func openStore(t *testing.T, path string) *pagestore.Store {
	t.Helper()
	store, err := pagestore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "pages.db"))

	_, ok, err := store.LastPage(ctx, "1337/abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveLastPage(ctx, "1337/abc", "intro"))
	require.NoError(t, store.SaveLastPage(ctx, "1337/abc", "details"))
	require.NoError(t, store.SaveLastPage(ctx, "acme/quote", "form"))

	page, ok, err := store.LastPage(ctx, "1337/abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "details", page)

	require.NoError(t, store.Forget(ctx, "1337/abc"))
	_, ok, err = store.LastPage(ctx, "1337/abc")
	require.NoError(t, err)
	assert.False(t, ok)

	page, ok, err = store.LastPage(ctx, "acme/quote")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "form", page)
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pages.db")

	first, err := pagestore.Open(path)
	require.NoError(t, err)
	require.NoError(t, first.SaveLastPage(ctx, "1337/abc", "summary"))
	require.NoError(t, first.Close())

	second := openStore(t, path)
	page, ok, err := second.LastPage(ctx, "1337/abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "summary", page)
}

func TestResolverUsesStoredPage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "pages.db"))
	require.NoError(t, store.SaveLastPage(ctx, "1337/abc", "b"))

	bundle := layout.Bundle{Pages: map[string]*layout.Page{"a": {ID: "a"}, "b": {ID: "b"}}}
	resolver := layout.NewResolver(layout.WithPageStore(store))
	resolved, err := resolver.Load(ctx, layout.AppMetadata{ID: "acme/app"}, &layout.Instance{ID: "1337/abc"}, nil, bundle, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", resolved.CurrentPage)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := pagestore.Open(" ")
	assert.Error(t, err)
}
