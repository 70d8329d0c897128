package artifact

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/db"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	logging.Disable()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return NewStore(database)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	store := setupStore(t)

	art, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, art, "missing artifact loads as nil, not an error")
}

func TestUpsertAndLoad(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Artifact{
		TargetID:       "page-pricing",
		Title:          "Pricing",
		Classification: "landing_page",
		Status:         StatusDraft,
		HTML:           "<html>v1</html>",
	}))

	art, err := store.Load(ctx, "page-pricing")
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "Pricing", art.Title)
	assert.Equal(t, StatusDraft, art.Status)

	// Upsert on the same target replaces the record
	require.NoError(t, store.Upsert(ctx, &Artifact{
		TargetID:  "page-pricing",
		Title:     "Pricing v2",
		Status:    StatusPublished,
		HTML:      "<html>v2</html>",
		PublicURL: "https://x/pricing",
	}))

	art, err = store.Load(ctx, "page-pricing")
	require.NoError(t, err)
	assert.Equal(t, "Pricing v2", art.Title)
	assert.Equal(t, "<html>v2</html>", art.HTML)
	assert.Equal(t, "https://x/pricing", art.PublicURL)
}

func TestUpsertStatus(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Artifact{TargetID: "page-1", Status: StatusGenerating}))
	require.NoError(t, store.UpsertStatus(ctx, "page-1", StatusFailed))

	art, err := store.Load(ctx, "page-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, art.Status)
}

func TestListPublishedBefore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &Artifact{TargetID: "old", Status: StatusPublished}))
	require.NoError(t, store.Upsert(ctx, &Artifact{TargetID: "draft", Status: StatusDraft}))

	// Everything published so far is older than a future cutoff
	stale, err := store.ListPublishedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].TargetID)

	// Nothing is older than a cutoff in the past
	stale, err = store.ListPublishedBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}
