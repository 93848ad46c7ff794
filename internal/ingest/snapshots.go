package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/infra"
	"github.com/nekomatic-tf/nekopricer/internal/listing"
	"github.com/nekomatic-tf/nekopricer/internal/storage"

	"github.com/go-resty/resty/v2"
)

const (
	stalePerCycle   = 10
	rateLimitedWait = 5 * time.Second
	snapshotAppID   = "440"
)

// ItemLister returns the tracked item names in list order.
type ItemLister interface {
	TrackedItems() []string
}

// Limiter paces requests against the snapshot API.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Crawler refreshes per-item listing snapshots. The event stream only
// delivers changes, so snapshots are the source of truth for items whose
// listings predate the stream or went unobserved.
type Crawler struct {
	client   *resty.Client
	token    string
	store    *storage.ListingStore
	tracked  ItemLister
	limiter  Limiter
	perCycle int
}

func NewCrawler(snapshotURL, token string, store *storage.ListingStore, tracked ItemLister, limiter Limiter) *Crawler {
	client := resty.New().
		SetBaseURL(snapshotURL).
		SetTimeout(30 * time.Second)
	return &Crawler{
		client:   client,
		token:    token,
		store:    store,
		tracked:  tracked,
		limiter:  limiter,
		perCycle: stalePerCycle,
	}
}

type snapshotResponse struct {
	Listings  []json.RawMessage `json:"listings"`
	CreatedAt int64             `json:"createdAt"`
}

// Run sweeps every tracked item once, then keeps refreshing the stalest
// ones until the context is cancelled.
func (c *Crawler) Run(ctx context.Context) {
	slog.Info("Starting snapshot sweep", "items", len(c.tracked.TrackedItems()))
	for _, name := range c.tracked.TrackedItems() {
		if err := c.refresh(ctx, name); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Failed to snapshot item", "item", name, "error", err)
		}
	}
	slog.Info("Finished snapshot sweep")

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		batch, err := c.nextBatch(ctx)
		if err != nil {
			delay := infra.CalculateBackoff(failures)
			failures++
			slog.Error("Failed to select snapshot batch", "error", err, "delay", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		for _, name := range batch {
			if err := c.refresh(ctx, name); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("Failed to snapshot item", "item", name, "error", err)
			}
		}
	}
}

// nextBatch picks the items to refresh this cycle: every tracked item with
// no snapshot at all comes first, then the oldest known ones fill whatever
// room the batch size leaves.
func (c *Crawler) nextBatch(ctx context.Context) ([]string, error) {
	times, err := c.store.AllSnapshotTimes(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	var known []string
	for _, name := range c.tracked.TrackedItems() {
		if _, ok := times[name]; ok {
			known = append(known, name)
		} else {
			missing = append(missing, name)
		}
	}

	sort.SliceStable(known, func(i, j int) bool {
		return times[known[i]] < times[known[j]]
	})
	room := c.perCycle - len(missing)
	if room < 0 {
		room = 0
	}
	if len(known) > room {
		known = known[:room]
	}
	return append(missing, known...), nil
}

// refresh fetches one item's snapshot and replaces its listings wholesale.
// A rate-limited response pauses and retries the same item; any other
// failure skips it until a later cycle.
func (c *Crawler) refresh(ctx context.Context, name string) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var out snapshotResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"token": c.token,
				"sku":   name,
				"appid": snapshotAppID,
			}).
			SetResult(&out).
			Get("")
		if err != nil {
			return err
		}

		if resp.StatusCode() == 429 {
			slog.Debug("Snapshot API rate limited, pausing", "item", name, "wait", rateLimitedWait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rateLimitedWait):
			}
			continue
		}
		if resp.StatusCode() != 200 {
			slog.Warn("Skipping snapshot", "item", name, "status", resp.StatusCode())
			return nil
		}

		// A malformed snapshot must not touch stored state: replacing with
		// it would wipe the item's book and hide it from the staleness
		// selector behind a fresh timestamp.
		if len(out.Listings) == 0 || out.CreatedAt == 0 {
			slog.Warn("Skipping malformed snapshot", "item", name)
			return nil
		}

		var inserts []storage.Upsert
		for _, raw := range out.Listings {
			l, ok := listing.Normalize(raw)
			if !ok {
				continue
			}
			if l.Intent != listing.IntentBuy && l.Intent != listing.IntentSell {
				continue
			}
			inserts = append(inserts, storage.Upsert{Identity: l.Identity(name), Listing: l})
		}

		if err := c.store.ReplaceItem(ctx, name, inserts, out.CreatedAt); err != nil {
			return err
		}
		slog.Debug("Refreshed snapshot", "item", name, "listings", len(inserts))
		return nil
	}
}
