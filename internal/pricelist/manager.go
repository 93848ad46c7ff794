// Package pricelist owns the shared price list, the tracked item set and
// the current key rate. Each structure has exactly one writer; readers take
// the RWMutex-guarded accessors.
package pricelist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nekomatic-tf/nekopricer/internal/domain"
	"github.com/nekomatic-tf/nekopricer/internal/storage"
)

const (
	pricelistObject = "pricelist.json"
	itemListObject  = "item-list.json"
)

type pricelistDocument struct {
	Items []domain.PriceRecord `json:"items"`
}

type itemListDocument struct {
	Items []trackedItem `json:"items"`
}

type trackedItem struct {
	Name string `json:"name"`
}

// Statistics summarizes one pricing pass.
type Statistics struct {
	Total    int
	Custom   int
	Fallback int
	Failed   int
}

// Manager holds the price list and tracked item set, persisting both as
// JSON documents in the object store.
type Manager struct {
	store storage.ObjectStore

	mu        sync.RWMutex
	prices    []domain.PriceRecord
	oldPrices []domain.PriceRecord
	items     []trackedItem

	keyMu    sync.RWMutex
	keyPrice *domain.PriceRecord
}

func NewManager(store storage.ObjectStore) *Manager {
	return &Manager{store: store}
}

// Load reads the pricelist and item list from the object store, creating
// empty documents when missing.
func (m *Manager) Load(ctx context.Context) error {
	if err := m.loadDocument(ctx, pricelistObject, &pricelistDocument{}, func(data []byte) error {
		var doc pricelistDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		m.mu.Lock()
		m.prices = doc.Items
		m.mu.Unlock()
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load pricelist: %w", err)
	}
	slog.Info("Read pricelist", "items", len(m.prices))

	if err := m.loadDocument(ctx, itemListObject, &itemListDocument{}, func(data []byte) error {
		var doc itemListDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		m.mu.Lock()
		m.items = doc.Items
		m.mu.Unlock()
		return nil
	}); err != nil {
		return fmt.Errorf("failed to load item list: %w", err)
	}
	slog.Info("Read item list", "items", len(m.items))

	return nil
}

func (m *Manager) loadDocument(ctx context.Context, name string, empty any, apply func([]byte) error) error {
	exists, err := m.store.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		slog.Debug("Creating new object", "name", name)
		data, err := json.Marshal(empty)
		if err != nil {
			return err
		}
		if err := m.store.Write(ctx, name, data); err != nil {
			return err
		}
	}

	data, err := m.store.Read(ctx, name)
	if err != nil {
		return err
	}
	return apply(data)
}

// WritePricelist persists the current price list.
func (m *Manager) WritePricelist(ctx context.Context) error {
	m.mu.RLock()
	data, err := json.Marshal(pricelistDocument{Items: m.prices})
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal pricelist: %w", err)
	}
	if err := m.store.Write(ctx, pricelistObject, data); err != nil {
		return fmt.Errorf("failed to write pricelist: %w", err)
	}
	slog.Debug("Wrote pricelist")
	return nil
}

func (m *Manager) writeItemList(ctx context.Context) error {
	m.mu.RLock()
	data, err := json.Marshal(itemListDocument{Items: m.items})
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal item list: %w", err)
	}
	if err := m.store.Write(ctx, itemListObject, data); err != nil {
		return fmt.Errorf("failed to write item list: %w", err)
	}
	slog.Debug("Wrote item list")
	return nil
}

// UpdatePrice stores a new record for its SKU, replacing any existing one.
// Returns false when the stored price is structurally identical and was
// left untouched.
func (m *Manager) UpdatePrice(record *domain.PriceRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.prices {
		if m.prices[i].SKU == record.SKU {
			if record.Unchanged(&m.prices[i]) {
				slog.Debug("Price has not changed", "sku", record.SKU)
				return false
			}
			m.prices[i] = *record
			return true
		}
	}
	m.prices = append(m.prices, *record)
	return true
}

// GetPrice returns the stored record for a SKU, or nil.
func (m *Manager) GetPrice(sku string) *domain.PriceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.prices {
		if m.prices[i].SKU == sku {
			rec := m.prices[i]
			return &rec
		}
	}
	return nil
}

// Prices returns a copy of the full price list.
func (m *Manager) Prices() []domain.PriceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.PriceRecord(nil), m.prices...)
}

// Freeze snapshots the current price list so the next pass can report what
// changed.
func (m *Manager) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oldPrices = append([]domain.PriceRecord(nil), m.prices...)
	slog.Debug("Froze pricelist")
}

// ChangedSince reports how many records changed (or appeared) since the
// last Freeze.
func (m *Manager) ChangedSince() (updated, skipped int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	old := make(map[string]int64, len(m.oldPrices))
	for i := range m.oldPrices {
		old[m.oldPrices[i].SKU] = m.oldPrices[i].Time
	}
	for i := range m.prices {
		if t, ok := old[m.prices[i].SKU]; ok && t == m.prices[i].Time {
			skipped++
		} else {
			updated++
		}
	}
	return updated, skipped
}

// TrackedItems returns the tracked item names in list order.
func (m *Manager) TrackedItems() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.items))
	for i, item := range m.items {
		names[i] = item.Name
	}
	return names
}

// TrackedSet returns the tracked item names as a set for membership checks.
func (m *Manager) TrackedSet() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set := make(map[string]struct{}, len(m.items))
	for _, item := range m.items {
		set[item.Name] = struct{}{}
	}
	return set
}

// AddItem adds a name to the tracked item set. Returns false when it is
// already tracked.
func (m *Manager) AddItem(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	for _, item := range m.items {
		if item.Name == name {
			m.mu.Unlock()
			slog.Warn("Item is already tracked", "item", name)
			return false, nil
		}
	}
	m.items = append(m.items, trackedItem{Name: name})
	m.mu.Unlock()

	slog.Info("Added item to the item list", "item", name)
	return true, m.writeItemList(ctx)
}

// RemoveItem removes a name from the tracked item set.
func (m *Manager) RemoveItem(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	found := false
	for i, item := range m.items {
		if item.Name == name {
			m.items = append(m.items[:i], m.items[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		slog.Error("Item is not tracked", "item", name)
		return false, nil
	}
	slog.Info("Removed item from the item list", "item", name)
	return true, m.writeItemList(ctx)
}

// KeyPrice returns the current key rate record, or nil before the first
// refresh.
func (m *Manager) KeyPrice() *domain.PriceRecord {
	m.keyMu.RLock()
	defer m.keyMu.RUnlock()
	if m.keyPrice == nil {
		return nil
	}
	rec := *m.keyPrice
	return &rec
}

// KeyRateMetal returns the key buy rate in refined metal, the unit of
// account for every other item's pricing math. Zero before the first
// refresh.
func (m *Manager) KeyRateMetal() float64 {
	m.keyMu.RLock()
	defer m.keyMu.RUnlock()
	if m.keyPrice == nil {
		return 0
	}
	return m.keyPrice.Buy.Metal
}

// SetKeyPrice replaces the key rate record.
func (m *Manager) SetKeyPrice(record *domain.PriceRecord) {
	m.keyMu.Lock()
	defer m.keyMu.Unlock()
	rec := *record
	m.keyPrice = &rec
}
