// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Tables:
//   - products: one row per (platform, platform_product_id) holding the latest attributes
//   - product_snapshots: append-only time series keyed by (platform, platform_product_id, collected_at)
//   - collection_runs: finalized run reports with per-platform results stored as JSON
//
// The column types are chosen to work unchanged on SQLite, PostgreSQL and MySQL.
package models
