package options

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nekomatic-tf/nekopricer/internal/storage"
)

const objectName = "options.json"

// Manager owns the mutable options document. Writers (the operator API)
// and readers (periodic tasks) are decoupled: Snapshot returns a deep copy,
// so a running pass never sees a mid-pass mutation.
type Manager struct {
	store storage.ObjectStore

	mu   sync.RWMutex
	opts Options
}

func NewManager(store storage.ObjectStore) *Manager {
	return &Manager{store: store, opts: Defaults()}
}

// Load reads options.json from the object store, creating it from defaults
// when missing. Invalid documents are rejected and the current options kept.
func (m *Manager) Load(ctx context.Context) error {
	exists, err := m.store.Exists(ctx, objectName)
	if err != nil {
		return fmt.Errorf("failed to check options object: %w", err)
	}
	if !exists {
		slog.Debug("Creating new options.json from defaults")
		return m.Save(ctx)
	}

	data, err := m.store.Read(ctx, objectName)
	if err != nil {
		return fmt.Errorf("failed to read options: %w", err)
	}

	opts := Defaults()
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("failed to parse options: %w", err)
	}
	if err := validate(opts); err != nil {
		return fmt.Errorf("invalid options document: %w", err)
	}

	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()

	slog.Info("Loaded options")
	return nil
}

// Save writes the current options document back to the object store.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.opts, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	if err := m.store.Write(ctx, objectName, data); err != nil {
		return fmt.Errorf("failed to write options: %w", err)
	}
	slog.Info("Saved options")
	return nil
}

// Snapshot returns a deep copy of the current options for one pass.
func (m *Manager) Snapshot() Options {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts := m.opts
	opts.ExcludedSteamIDs = append([]string(nil), m.opts.ExcludedSteamIDs...)
	opts.TrustedSteamIDs = append([]string(nil), m.opts.TrustedSteamIDs...)
	opts.ExcludedListingDescriptions = append([]string(nil), m.opts.ExcludedListingDescriptions...)
	opts.BlockedAttributes = append([]BlockedAttribute(nil), m.opts.BlockedAttributes...)
	opts.Paints = append([]string(nil), m.opts.Paints...)
	return opts
}

// Update replaces the options document and persists it. Takes effect on the
// next pass, never mid-pass.
func (m *Manager) Update(ctx context.Context, opts Options) error {
	if err := validate(opts); err != nil {
		return err
	}

	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()

	return m.Save(ctx)
}

func validate(opts Options) error {
	if opts.PricingOptions.BuyLimit <= 0 {
		return fmt.Errorf("buy limit must be positive")
	}
	if opts.PricingOptions.SellLimit <= 0 {
		return fmt.Errorf("sell limit must be positive")
	}
	if opts.Intervals.Price <= 0 || opts.Intervals.Key <= 0 || opts.Intervals.Pricelist <= 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if opts.MaxPercentageDifferences.Buy < 0 {
		return fmt.Errorf("max buy percentage difference must not be negative")
	}
	if opts.MaxPercentageDifferences.Sell > 0 {
		return fmt.Errorf("max sell percentage difference must not be positive")
	}
	return nil
}
