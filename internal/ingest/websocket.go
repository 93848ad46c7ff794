// Package ingest keeps the listing store current: a websocket consumer for
// the live event stream and a crawler that refreshes full per-item snapshots
// when they go stale.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/listing"
	"github.com/nekomatic-tf/nekopricer/internal/storage"

	"github.com/gorilla/websocket"
)

const (
	eventListingUpdate = "listing-update"
	eventListingDelete = "listing-delete"

	reconnectDelay = 3 * time.Second
	listingTTL     = 48 * time.Hour
)

// TrackedSet answers whether an item is currently tracked.
type TrackedSet interface {
	TrackedSet() map[string]struct{}
}

// EventIngestor consumes the live listing event stream and applies updates
// and deletes for tracked items to the listing store.
type EventIngestor struct {
	url     string
	store   *storage.ListingStore
	tracked TrackedSet
}

func NewEventIngestor(url string, store *storage.ListingStore, tracked TrackedSet) *EventIngestor {
	return &EventIngestor{url: url, store: store, tracked: tracked}
}

type event struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Run connects to the event stream and reconnects on any failure until the
// context is cancelled. Before the first connection the store is prepared:
// indexes are ensured and listings older than the TTL are purged.
func (e *EventIngestor) Run(ctx context.Context) {
	if err := e.store.EnsureIndexes(ctx); err != nil {
		slog.Error("Failed to ensure listing indexes", "error", err)
	}
	purged, err := e.store.PurgeOlderThan(ctx, time.Now().Add(-listingTTL))
	if err != nil {
		slog.Error("Failed to purge old listings", "error", err)
	} else if purged > 0 {
		slog.Info("Purged old listings", "count", purged)
	}

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		if err := e.consume(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Event stream failed, reconnecting", "error", err, "delay", reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// consume runs one websocket session until it errors or the context ends.
func (e *EventIngestor) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	slog.Info("Connected to the event stream", "url", e.url)

	// Unblock ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		e.handleMessage(ctx, message)
	}
}

// handleMessage decodes one frame and dispatches the resulting batch in the
// background so a slow write never stalls the read loop.
func (e *EventIngestor) handleMessage(ctx context.Context, message []byte) {
	inserts, deletes := decodeBatch(message, e.tracked.TrackedSet())
	if len(inserts) == 0 && len(deletes) == 0 {
		return
	}

	go func() {
		if err := e.store.UpsertBatch(ctx, inserts, deletes); err != nil {
			slog.Error("Failed to apply listing batch", "inserts", len(inserts), "deletes", len(deletes), "error", err)
			return
		}
		slog.Debug("Applied listing batch", "inserts", len(inserts), "deletes", len(deletes))
	}()
}

// decodeBatch turns one frame, which carries either a single event or an
// array of them, into store operations. Events for untracked items, unusable
// payloads and unknown intents are dropped.
func decodeBatch(message []byte, tracked map[string]struct{}) ([]storage.Upsert, []listing.Identity) {
	var events []event
	if len(message) > 0 && message[0] == '[' {
		if err := json.Unmarshal(message, &events); err != nil {
			slog.Warn("Dropping malformed event batch", "error", err)
			return nil, nil
		}
	} else {
		var single event
		if err := json.Unmarshal(message, &single); err != nil {
			slog.Warn("Dropping malformed event", "error", err)
			return nil, nil
		}
		events = []event{single}
	}

	var inserts []storage.Upsert
	var deletes []listing.Identity
	for _, ev := range events {
		l, ok := listing.Normalize(ev.Payload)
		if !ok {
			continue
		}
		if _, ok := tracked[l.Item.Name]; !ok {
			continue
		}
		if l.Intent != listing.IntentBuy && l.Intent != listing.IntentSell {
			continue
		}

		identity := l.Identity(l.Item.Name)
		switch ev.Event {
		case eventListingUpdate:
			inserts = append(inserts, storage.Upsert{Identity: identity, Listing: l})
		case eventListingDelete:
			deletes = append(deletes, identity)
		}
	}
	return inserts, deletes
}
