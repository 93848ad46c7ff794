// Package fallback provides the external price source: a bulk price table
// fetched from autobot.tf, backed by prices.tf per-item quotes when an item
// is missing from the table. It is both the primary source for the key and
// the last resort for every other item.
package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/domain"
	"github.com/nekomatic-tf/nekopricer/internal/storage"

	"github.com/go-resty/resty/v2"
)

const cacheObjectName = "external-pricelist.json"

// Source serves external price records.
type Source struct {
	client   *resty.Client
	pricesTF *PricesTFClient
	store    storage.ObjectStore

	mu    sync.RWMutex
	table map[string]domain.PriceRecord // keyed by SKU
}

func NewSource(autobotURL string, pricesTF *PricesTFClient, store storage.ObjectStore) *Source {
	client := resty.New().
		SetBaseURL(autobotURL).
		SetTimeout(60 * time.Second)
	return &Source{
		client:   client,
		pricesTF: pricesTF,
		store:    store,
		table:    make(map[string]domain.PriceRecord),
	}
}

type pricelistResponse struct {
	Items []domain.PriceRecord `json:"items"`
}

// Refresh fetches the bulk price table. On success the table is cached to
// the object store; on failure the cached copy is loaded instead so the
// source keeps serving through upstream outages.
func (s *Source) Refresh(ctx context.Context) error {
	var out pricelistResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/json/pricelist-array")
	if err == nil && resp.StatusCode() != 200 {
		err = fmt.Errorf("status %d", resp.StatusCode())
	}
	if err == nil && len(out.Items) == 0 {
		err = fmt.Errorf("no items in external pricelist")
	}
	if err != nil {
		slog.Error("Failed to fetch external pricelist", "error", err)
		return s.loadCache(ctx)
	}

	table := make(map[string]domain.PriceRecord, len(out.Items))
	for _, rec := range out.Items {
		table[rec.SKU] = rec
	}

	s.mu.Lock()
	s.table = table
	s.mu.Unlock()

	slog.Info("Fetched external pricelist", "items", len(out.Items))
	s.writeCache(ctx, out.Items)
	return nil
}

func (s *Source) writeCache(ctx context.Context, items []domain.PriceRecord) {
	data, err := json.Marshal(pricelistResponse{Items: items})
	if err != nil {
		slog.Error("Failed to marshal external pricelist cache", "error", err)
		return
	}
	if err := s.store.Write(ctx, cacheObjectName, data); err != nil {
		slog.Error("Failed to save external pricelist cache", "error", err)
		return
	}
	slog.Debug("Saved external pricelist cache")
}

func (s *Source) loadCache(ctx context.Context) error {
	exists, err := s.store.Exists(ctx, cacheObjectName)
	if err != nil || !exists {
		return fmt.Errorf("no cached external pricelist available")
	}

	data, err := s.store.Read(ctx, cacheObjectName)
	if err != nil {
		return fmt.Errorf("failed to read external pricelist cache: %w", err)
	}

	var out pricelistResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to parse external pricelist cache: %w", err)
	}

	table := make(map[string]domain.PriceRecord, len(out.Items))
	for _, rec := range out.Items {
		table[rec.SKU] = rec
	}

	s.mu.Lock()
	s.table = table
	s.mu.Unlock()

	slog.Info("Loaded external pricelist from cache", "items", len(out.Items))
	return nil
}

// GetPrice returns the external price for an item: from the bulk table for
// regular items, from prices.tf for the key or anything the table lacks.
func (s *Source) GetPrice(ctx context.Context, item domain.Item) (*domain.PriceRecord, error) {
	if item.SKU != domain.KeySKU {
		s.mu.RLock()
		rec, ok := s.table[item.SKU]
		s.mu.RUnlock()
		if ok {
			rec.Name = item.Name
			slog.Debug("Got external price from pricelist", "sku", item.SKU)
			return &rec, nil
		}
	}

	slog.Debug("Falling back to prices.tf", "sku", item.SKU)
	rec, err := s.pricesTF.GetPrice(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to get external price for %s: %w", item.SKU, err)
	}
	return rec, nil
}
