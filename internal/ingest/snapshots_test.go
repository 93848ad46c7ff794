package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nekomatic-tf/nekopricer/internal/infra"
	"github.com/nekomatic-tf/nekopricer/internal/listing"
	"github.com/nekomatic-tf/nekopricer/internal/storage"

	"github.com/stretchr/testify/require"
)

type fakeTracked []string

func (f fakeTracked) TrackedItems() []string { return f }

func newTestCrawler(t *testing.T, url string, tracked fakeTracked) (*Crawler, *storage.ListingStore) {
	t.Helper()
	store, err := storage.NewListingStore(filepath.Join(t.TempDir(), "listings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := NewCrawler(url, "token", store, tracked, infra.NewRateLimiter(10, 100))
	return c, store
}

func TestNextBatchPrefersMissingThenStalest(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCrawler(t, "http://unused", fakeTracked{"A", "B", "C"})
	c.perCycle = 2

	require.NoError(t, store.SetSnapshotTime(ctx, "A", 100))
	require.NoError(t, store.SetSnapshotTime(ctx, "B", 50))

	// C has never been snapshotted and comes first; it counts toward the
	// batch, so only the stalest known item fills the remaining slot.
	batch, err := c.nextBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"C", "B"}, batch)
}

func TestNextBatchIncludesAllMissing(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCrawler(t, "http://unused", fakeTracked{"A", "B", "C", "D"})
	c.perCycle = 1

	require.NoError(t, store.SetSnapshotTime(ctx, "A", 100))

	// Missing items are never capped by the cycle size, but they leave no
	// room for known ones once the batch is full.
	batch, err := c.nextBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "D"}, batch)
}

func TestRefreshReplacesListings(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token", r.URL.Query().Get("token"))
		require.Equal(t, "Team Captain", r.URL.Query().Get("sku"))
		require.Equal(t, "440", r.URL.Query().Get("appid"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"createdAt": 1700000000,
			"listings": [
				{"steamid": "9", "intent": "sell", "currencies": {"metal": 2.0}, "timestamp": 1, "bump": 2, "item": {"name": "Team Captain"}},
				{"intent": "sell"}
			]
		}`))
	}))
	defer server.Close()

	c, store := newTestCrawler(t, server.URL, fakeTracked{"Team Captain"})

	// Pre-existing listing for the item gets swapped out by the snapshot.
	stale := listing.Listing{SteamID: "1", Intent: listing.IntentSell, Item: listing.Item{Name: "Team Captain"}}
	require.NoError(t, store.UpsertBatch(ctx, []storage.Upsert{
		{Identity: stale.Identity("Team Captain"), Listing: stale},
	}, nil))

	require.NoError(t, c.refresh(ctx, "Team Captain"))

	sell, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentSell)
	require.NoError(t, err)
	require.Len(t, sell, 1)
	require.Equal(t, "9", sell[0].SteamID)

	times, err := store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), times["Team Captain"])
}

func TestRefreshSkipsEmptySnapshot(t *testing.T) {
	ctx := context.Background()

	// A 200 response with no listings or no createdAt carries nothing worth
	// replacing the stored book with.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, store := newTestCrawler(t, server.URL, fakeTracked{"Team Captain"})

	kept := listing.Listing{SteamID: "1", Intent: listing.IntentSell, Item: listing.Item{Name: "Team Captain"}}
	require.NoError(t, store.UpsertBatch(ctx, []storage.Upsert{
		{Identity: kept.Identity("Team Captain"), Listing: kept},
	}, nil))

	require.NoError(t, c.refresh(ctx, "Team Captain"))

	sell, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentSell)
	require.NoError(t, err)
	require.Len(t, sell, 1)

	times, err := store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.Empty(t, times)
}

func TestRefreshSkipsFailedSnapshot(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, store := newTestCrawler(t, server.URL, fakeTracked{"Team Captain"})

	// A failed snapshot is skipped without touching stored state.
	require.NoError(t, c.refresh(ctx, "Team Captain"))

	times, err := store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.Empty(t, times)
}
