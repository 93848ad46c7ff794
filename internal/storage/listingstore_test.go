package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/listing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ListingStore {
	t.Helper()
	store, err := NewListingStore(filepath.Join(t.TempDir(), "listings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func upsert(item, intent, steamid string, metal float64) Upsert {
	l := listing.Listing{
		SteamID:    steamid,
		Intent:     intent,
		Currencies: listing.Currencies{Metal: metal},
		Item:       listing.Item{Name: item},
	}
	return Upsert{Identity: l.Identity(item), Listing: l}
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []Upsert{
		upsert("Team Captain", listing.IntentBuy, "1", 10),
		upsert("Team Captain", listing.IntentSell, "2", 12),
	}
	require.NoError(t, store.UpsertBatch(ctx, batch, nil))
	require.NoError(t, store.UpsertBatch(ctx, batch, nil))

	buy, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentBuy)
	require.NoError(t, err)
	require.Len(t, buy, 1)
	require.Equal(t, 10.0, buy[0].Currencies.Metal)

	sell, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentSell)
	require.NoError(t, err)
	require.Len(t, sell, 1)
}

func TestUpsertBatchReplacesByIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []Upsert{upsert("Team Captain", listing.IntentBuy, "1", 10)}, nil))
	require.NoError(t, store.UpsertBatch(ctx, []Upsert{upsert("Team Captain", listing.IntentBuy, "1", 11)}, nil))

	buy, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentBuy)
	require.NoError(t, err)
	require.Len(t, buy, 1)
	require.Equal(t, 11.0, buy[0].Currencies.Metal)
}

func TestUpsertBatchDeletes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ins := upsert("Team Captain", listing.IntentBuy, "1", 10)
	require.NoError(t, store.UpsertBatch(ctx, []Upsert{ins}, nil))
	require.NoError(t, store.UpsertBatch(ctx, nil, []listing.Identity{ins.Identity}))

	buy, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentBuy)
	require.NoError(t, err)
	require.Empty(t, buy)

	// Deleting an absent identity is a no-op, not an error.
	require.NoError(t, store.UpsertBatch(ctx, nil, []listing.Identity{ins.Identity}))
}

func TestReplaceItemSwapsListingsWholesale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []Upsert{
		upsert("Team Captain", listing.IntentBuy, "1", 10),
		upsert("Team Captain", listing.IntentBuy, "2", 9),
		upsert("Rocket Launcher", listing.IntentBuy, "3", 1),
	}, nil))

	require.NoError(t, store.ReplaceItem(ctx, "Team Captain", []Upsert{
		upsert("Team Captain", listing.IntentBuy, "4", 8),
	}, 1700000000))

	buy, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentBuy)
	require.NoError(t, err)
	require.Len(t, buy, 1)
	require.Equal(t, "4", buy[0].SteamID)

	// Other items are untouched.
	other, err := store.ListingsByIntent(ctx, "Rocket Launcher", listing.IntentBuy)
	require.NoError(t, err)
	require.Len(t, other, 1)

	times, err := store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), times["Team Captain"])
}

func TestSnapshotTimes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	times, err := store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.Empty(t, times)

	require.NoError(t, store.SetSnapshotTime(ctx, "Team Captain", 100))
	require.NoError(t, store.SetSnapshotTime(ctx, "Team Captain", 200))
	require.NoError(t, store.SetSnapshotTime(ctx, "Rocket Launcher", 50))

	times, err = store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{
		"Team Captain":    200,
		"Rocket Launcher": 50,
	}, times)
}

func TestPurgeOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []Upsert{upsert("Team Captain", listing.IntentBuy, "1", 10)}, nil))

	// Nothing is older than two days ago.
	purged, err := store.PurgeOlderThan(ctx, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	require.Zero(t, purged)

	// Everything is older than the future.
	purged, err = store.PurgeOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}

func TestDropItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []Upsert{upsert("Team Captain", listing.IntentBuy, "1", 10)}, nil))
	require.NoError(t, store.SetSnapshotTime(ctx, "Team Captain", 100))

	require.NoError(t, store.DropItem(ctx, "Team Captain"))

	buy, err := store.ListingsByIntent(ctx, "Team Captain", listing.IntentBuy)
	require.NoError(t, err)
	require.Empty(t, buy)

	times, err := store.AllSnapshotTimes(ctx)
	require.NoError(t, err)
	require.NotContains(t, times, "Team Captain")
}
