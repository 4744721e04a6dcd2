// Package cal implements the calibration state engine for the reduction
// pipeline: a registry that tracks, per visibility dataset, which calibration
// tables apply to which multi-dimensional data subset, keeps that registry
// consistent as stages add calibrations, and exports it without losing or
// double-applying anything.
//
// # Reading Guide
//
// Start with these three files to understand the engine:
//   - selector.go: selection predicates ("*" vs explicit id sets) and their
//     canonical span form
//   - tree.go: the interval tree — disjoint hyper-rect cells over
//     (antenna, spw, field) carrying ordered application payloads
//   - calstate.go: the per-run registry with add/query/merge/trim/export
//
// # Architecture
//
// Stages register CalApplications (calapp.go): a CalTo data-subset descriptor
// (calto.go) bound to a CalFrom table reference (calfrom.go). Selection
// arithmetic (span.go, arith.go) reduces every predicate to canonical closed
// integer spans before it touches a tree. CalLibrary (callibrary.go) pairs an
// active and an applied CalState and round-trips through the YAML checkpoint
// in serialize.go.
//
// Sub-packages:
//   - cal/casa/: the record syntax consumed by the external application tool
//   - cal/checkpoint/: SQLite-backed storage for saved run checkpoints
//
// The engine is single-writer: no operation here blocks or suspends, and
// cross-worker results merge through CalState.Merged on deserialized copies,
// never through concurrent mutation.
package cal
