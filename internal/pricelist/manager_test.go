package pricelist

import (
	"context"
	"testing"

	"github.com/nekomatic-tf/nekopricer/internal/currency"
	"github.com/nekomatic-tf/nekopricer/internal/domain"
	"github.com/nekomatic-tf/nekopricer/internal/storage"
)

func newLoadedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(storage.NewMemoryStore())
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return m
}

func record(sku string, buyMetal, sellMetal float64, ts int64) *domain.PriceRecord {
	return &domain.PriceRecord{
		Name:   sku,
		SKU:    sku,
		Source: domain.SourceOwn,
		Time:   ts,
		Buy:    currency.Currencies{Metal: buyMetal},
		Sell:   currency.Currencies{Metal: sellMetal},
	}
}

func TestUpdatePriceSkipsUnchanged(t *testing.T) {
	m := newLoadedManager(t)

	if !m.UpdatePrice(record("30;6", 1.0, 2.0, 100)) {
		t.Fatal("first update should apply")
	}

	// Same quote, newer timestamp: structurally unchanged, skipped.
	if m.UpdatePrice(record("30;6", 1.0, 2.0, 200)) {
		t.Error("unchanged price should be skipped")
	}
	if got := m.GetPrice("30;6"); got.Time != 100 {
		t.Errorf("skipped update overwrote the stored record: time=%d", got.Time)
	}

	// Moved quote replaces the record.
	if !m.UpdatePrice(record("30;6", 1.0, 2.11, 300)) {
		t.Error("changed price should apply")
	}
	if got := m.GetPrice("30;6"); got.Sell.Metal != 2.11 {
		t.Errorf("changed price not stored: %+v", got)
	}
}

func TestGetPriceReturnsCopy(t *testing.T) {
	m := newLoadedManager(t)
	m.UpdatePrice(record("30;6", 1.0, 2.0, 100))

	got := m.GetPrice("30;6")
	got.Buy.Metal = 9.99

	if m.GetPrice("30;6").Buy.Metal != 1.0 {
		t.Error("mutating a returned record leaked into the manager")
	}

	if m.GetPrice("unknown") != nil {
		t.Error("unknown sku should return nil")
	}
}

func TestPricelistPersistsAcrossManagers(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	m := NewManager(store)
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	m.UpdatePrice(record("30;6", 1.0, 2.0, 100))
	if err := m.WritePricelist(ctx); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManager(store)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.GetPrice("30;6"); got == nil || got.Sell.Metal != 2.0 {
		t.Errorf("pricelist did not survive a reload: %+v", got)
	}
}

func TestTrackedItems(t *testing.T) {
	m := newLoadedManager(t)
	ctx := context.Background()

	added, err := m.AddItem(ctx, "Team Captain")
	if err != nil || !added {
		t.Fatalf("add failed: added=%v err=%v", added, err)
	}
	added, err = m.AddItem(ctx, "Team Captain")
	if err != nil || added {
		t.Fatalf("duplicate add should be a no-op: added=%v err=%v", added, err)
	}
	if _, err := m.AddItem(ctx, "Rocket Launcher"); err != nil {
		t.Fatal(err)
	}

	if items := m.TrackedItems(); len(items) != 2 || items[0] != "Team Captain" {
		t.Errorf("unexpected tracked items: %v", items)
	}
	if _, ok := m.TrackedSet()["Rocket Launcher"]; !ok {
		t.Error("tracked set missing an added item")
	}

	removed, err := m.RemoveItem(ctx, "Team Captain")
	if err != nil || !removed {
		t.Fatalf("remove failed: removed=%v err=%v", removed, err)
	}
	removed, err = m.RemoveItem(ctx, "Team Captain")
	if err != nil || removed {
		t.Fatalf("removing an untracked item should be a no-op: removed=%v err=%v", removed, err)
	}
	if items := m.TrackedItems(); len(items) != 1 || items[0] != "Rocket Launcher" {
		t.Errorf("unexpected tracked items after removal: %v", items)
	}
}

func TestChangedSince(t *testing.T) {
	m := newLoadedManager(t)

	m.UpdatePrice(record("30;6", 1.0, 2.0, 100))
	m.UpdatePrice(record("31;6", 1.0, 2.0, 100))
	m.Freeze()

	m.UpdatePrice(record("30;6", 1.0, 2.11, 200)) // moved
	m.UpdatePrice(record("32;6", 1.0, 2.0, 200))  // new

	updated, skipped := m.ChangedSince()
	if updated != 2 || skipped != 1 {
		t.Errorf("got updated=%d skipped=%d, want 2/1", updated, skipped)
	}
}

func TestKeyPrice(t *testing.T) {
	m := newLoadedManager(t)

	if m.KeyPrice() != nil || m.KeyRateMetal() != 0 {
		t.Fatal("key price should be empty before the first refresh")
	}

	rec := record(domain.KeySKU, 60.11, 60.55, 100)
	m.SetKeyPrice(rec)

	if got := m.KeyRateMetal(); got != 60.11 {
		t.Errorf("key rate = %v, want 60.11", got)
	}

	got := m.KeyPrice()
	got.Buy.Metal = 1
	if m.KeyRateMetal() != 60.11 {
		t.Error("mutating the returned key record leaked into the manager")
	}
}
