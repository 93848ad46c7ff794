package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nekomatic-tf/nekopricer/internal/listing"

	_ "github.com/glebarez/go-sqlite"
)

// Upsert is one insert operation in a batch: the normalized listing plus
// the identity it replaces.
type Upsert struct {
	Identity listing.Identity
	Listing  listing.Listing
}

// ListingStore persists listings grouped by item in SQLite. Batches are
// applied inside a single transaction, so a reader never observes a
// partially-applied batch.
type ListingStore struct {
	db *sql.DB
}

// NewListingStore opens (or creates) the listings database with WAL mode
// enabled.
func NewListingStore(dbPath string) (*ListingStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &ListingStore{db: db}
	if err := store.EnsureIndexes(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

// EnsureIndexes creates the tables and indexes if they do not exist.
// Called again by the ingestor before the stream is opened.
func (s *ListingStore) EnsureIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			name TEXT NOT NULL,
			intent TEXT NOT NULL,
			steamid TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (name, intent, steamid)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_listings_name ON listings(name);`,
		`CREATE TABLE IF NOT EXISTS snapshot_times (
			name TEXT PRIMARY KEY,
			snapshot_time INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// UpsertBatch applies deletes then inserts in one transaction. Inserts
// replace any existing listing with the same identity, so the batch is
// idempotent under retry.
func (s *ListingStore) UpsertBatch(ctx context.Context, inserts []Upsert, deletes []listing.Identity) error {
	if len(inserts) == 0 && len(deletes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, del := range deletes {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM listings WHERE name = ? AND intent = ? AND steamid = ?",
			del.Item, del.Intent, del.SteamID,
		); err != nil {
			return fmt.Errorf("failed to delete listing: %w", err)
		}
	}

	now := time.Now().Unix()
	for _, ins := range inserts {
		payload, err := json.Marshal(ins.Listing)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO listings (name, intent, steamid, payload, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name, intent, steamid) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
			ins.Identity.Item, ins.Identity.Intent, ins.Identity.SteamID, payload, now,
		); err != nil {
			return fmt.Errorf("failed to upsert listing: %w", err)
		}
	}

	return tx.Commit()
}

// ListingsByIntent returns all listings for one item and intent.
func (s *ListingStore) ListingsByIntent(ctx context.Context, item, intent string) ([]listing.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM listings WHERE name = ? AND intent = ?",
		item, intent,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []listing.Listing
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		var l listing.Listing
		if err := json.Unmarshal(payload, &l); err != nil {
			return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// AllSnapshotTimes returns the last snapshot timestamp per item. Items that
// were never snapshotted are absent from the map.
func (s *ListingStore) AllSnapshotTimes(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, snapshot_time FROM snapshot_times")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot times: %w", err)
	}
	defer rows.Close()

	times := make(map[string]int64)
	for rows.Next() {
		var name string
		var ts int64
		if err := rows.Scan(&name, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot time: %w", err)
		}
		times[name] = ts
	}
	return times, rows.Err()
}

// SetSnapshotTime records when an item's snapshot was last refreshed.
func (s *ListingStore) SetSnapshotTime(ctx context.Context, item string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshot_times (name, snapshot_time) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET snapshot_time=excluded.snapshot_time`,
		item, ts,
	)
	return err
}

// PurgeOlderThan removes listings last written before the cutoff.
func (s *ListingStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM listings WHERE updated_at < ?", cutoff.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge listings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReplaceItem atomically swaps out every listing for one item with the given
// batch and records the snapshot time. Used by the snapshot crawler; unlike
// the ingestor's incremental upserts, a snapshot is the full truth for its
// item.
func (s *ListingStore) ReplaceItem(ctx context.Context, item string, inserts []Upsert, snapshotTime int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE name = ?", item); err != nil {
		return fmt.Errorf("failed to clear listings: %w", err)
	}

	now := time.Now().Unix()
	for _, ins := range inserts {
		payload, err := json.Marshal(ins.Listing)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO listings (name, intent, steamid, payload, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(name, intent, steamid) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
			ins.Identity.Item, ins.Identity.Intent, ins.Identity.SteamID, payload, now,
		); err != nil {
			return fmt.Errorf("failed to insert listing: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_times (name, snapshot_time) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET snapshot_time=excluded.snapshot_time`,
		item, snapshotTime,
	); err != nil {
		return fmt.Errorf("failed to set snapshot time: %w", err)
	}

	return tx.Commit()
}

// DropItem removes every listing and the snapshot time for one item.
func (s *ListingStore) DropItem(ctx context.Context, item string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM listings WHERE name = ?", item); err != nil {
		return fmt.Errorf("failed to drop listings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshot_times WHERE name = ?", item); err != nil {
		return fmt.Errorf("failed to drop snapshot time: %w", err)
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *ListingStore) Close() error {
	return s.db.Close()
}
