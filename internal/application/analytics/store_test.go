package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bestseller/tracker/internal/domain/market"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore serves reads from an in-memory snapshot list
type fakeStore struct {
	market.SnapshotRepository
	snapshots  []market.Snapshot
	err        error
	lastFilter market.LatestFilter
}

func (s *fakeStore) add(records ...market.ProductRecord) *fakeStore {
	for _, r := range records {
		s.snapshots = append(s.snapshots, market.Snapshot{ID: int64(len(s.snapshots) + 1), ProductRecord: r})
	}
	return s
}

func (s *fakeStore) matches(f market.LatestFilter, r market.ProductRecord) bool {
	if f.Platform != "" && r.Platform != f.Platform {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	return true
}

func (s *fakeStore) Latest(_ context.Context, f market.LatestFilter) ([]market.ProductRecord, error) {
	s.lastFilter = f
	if s.err != nil {
		return nil, s.err
	}
	latest := make(map[market.SnapshotKey]market.ProductRecord)
	var keys []market.SnapshotKey
	for _, snap := range s.snapshots {
		k := market.SnapshotKey{Platform: snap.Platform, PlatformProductID: snap.PlatformProductID}
		cur, ok := latest[k]
		if !ok {
			keys = append(keys, k)
		}
		if !ok || snap.CollectedAt.After(cur.CollectedAt) {
			latest[k] = snap.ProductRecord
		}
	}
	var out []market.ProductRecord
	for _, k := range keys {
		r := latest[k]
		if !s.matches(f, r) || (!f.Since.IsZero() && r.CollectedAt.Before(f.Since)) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) History(_ context.Context, p market.Platform, id string, from, to time.Time) ([]market.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []market.Snapshot
	for _, snap := range s.snapshots {
		if snap.Platform == p && snap.PlatformProductID == id && inRange(snap.CollectedAt, from, to) {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CollectedAt.Before(out[j].CollectedAt) })
	return out, nil
}

func (s *fakeStore) HistoryFor(_ context.Context, f market.LatestFilter, from, to time.Time) ([]market.Snapshot, error) {
	s.lastFilter = f
	if s.err != nil {
		return nil, s.err
	}
	var out []market.Snapshot
	for _, snap := range s.snapshots {
		if s.matches(f, snap.ProductRecord) && inRange(snap.CollectedAt, from, to) {
			out = append(out, snap)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CollectedAt.Before(out[j].CollectedAt) })
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	return (from.IsZero() || !t.Before(from)) && (to.IsZero() || !t.After(to))
}

func record(p market.Platform, id, title, category string, score float64, sales int64, price string, at time.Time) market.ProductRecord {
	return market.ProductRecord{
		Platform:          p,
		PlatformProductID: id,
		Title:             title,
		Category:          category,
		Price:             decimal.RequireFromString(price),
		Currency:          p.DefaultCurrency(),
		Rating:            4,
		RatingReported:    true,
		SalesCount:        sales,
		PopularityScore:   score,
		CollectedAt:       at,
	}
}

func fixedNow() time.Time {
	return baseTime
}
