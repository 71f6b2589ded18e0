package market

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SourceAdapter is the port for fetching listings from one platform
// ---------------------------------------------------------------------------

// FetchBatch is the result of one adapter call. ParseErrors lists items the
// adapter could not read; they are skipped rather than failing the batch.
type FetchBatch struct {
	Items       []RawItem
	ParseErrors []ItemError
}

// ItemError is a per-item failure inside a batch
type ItemError struct {
	SourceID string
	Err      error
}

// SourceAdapter fetches best-selling listings from one platform.
//
// Implementations return at most limit items, handle pagination internally
// and have no side effects beyond network calls, so a call may be retried.
// Failures wrap ErrAuth, ErrRateLimited, ErrNetwork or ErrParse.
type SourceAdapter interface {
	// Platform returns the platform the adapter serves
	Platform() Platform

	// Fetch returns up to limit listings for the category
	Fetch(ctx context.Context, category string, limit int) (*FetchBatch, error)
}

// ---------------------------------------------------------------------------
// SnapshotRepository is the port for the time-series product store
// ---------------------------------------------------------------------------

// LatestFilter restricts Latest queries. Zero values mean no restriction.
type LatestFilter struct {
	Platform Platform
	Category string
	Since    time.Time
}

// Stats summarises the store contents
type Stats struct {
	ProductCount   int64              `json:"product_count"`
	SnapshotCount  int64              `json:"snapshot_count"`
	CategoryCount  int64              `json:"category_count"`
	PlatformCounts map[Platform]int64 `json:"platform_counts"`
	LastUpdate     *time.Time         `json:"last_update,omitempty"`
}

// SnapshotRepository persists product snapshots.
//
// Upsert is idempotent on (platform, platform_product_id, collected_at) and
// writes the product row and the snapshot row atomically. Implementations
// must be safe for concurrent use.
type SnapshotRepository interface {
	// Upsert stores the record, returning false when the snapshot already existed
	Upsert(ctx context.Context, runID uuid.UUID, record ProductRecord) (bool, error)

	// Latest returns the most recent snapshot per product, by score descending
	Latest(ctx context.Context, filter LatestFilter) ([]ProductRecord, error)

	// History returns the snapshots of one product in [from, to], oldest first
	History(ctx context.Context, platform Platform, productID string, from, to time.Time) ([]Snapshot, error)

	// HistoryFor returns snapshots in [from, to] for all products matching filter, oldest first
	HistoryFor(ctx context.Context, filter LatestFilter, from, to time.Time) ([]Snapshot, error)

	// Categories returns the distinct categories, optionally for one platform
	Categories(ctx context.Context, platform Platform) ([]string, error)

	// Stats returns store-wide counters
	Stats(ctx context.Context) (*Stats, error)
}

// RunRepository persists finalized collection runs
type RunRepository interface {
	Save(ctx context.Context, run *CollectionRun) error
	FindByID(ctx context.Context, id uuid.UUID) (*CollectionRun, error)
	FindRecent(ctx context.Context, limit int) ([]CollectionRun, error)
}
