// Package market contains the Market bounded context.
// This context tracks best-selling products across e-commerce platforms.
//
// Key concepts:
//   - ProductRecord: canonical product schema every platform is normalized into
//   - Snapshot: immutable capture of a product's metrics at collection time
//   - CollectionRun: aggregate recording one collection cycle across platforms
//   - SourceAdapter: port for fetching raw listings from a platform
//   - SnapshotRepository: port for the time-series snapshot store
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package market
