// Package engine reconciles a normalized container workbook against the
// records backend.
//
// A run has two passes over the input, always in this order:
//
//  1. Containers: every container row is skipped (already created by an
//     earlier run), rejected by validation, created remotely, or fails
//     remotely. Successful creations feed the temp id resolver; every kind
//     of failure poisons the temp id.
//  2. Records: instance rows are grouped by parent record, parents are
//     fetched in chunks, resolvable rows are appended as instances and each
//     changed parent is posted back once.
//
// Every outcome is written to the event log. Per-row and per-parent errors
// never stop the run; only a failed batch fetch does, and then the log has
// no end_ingest event.
//
// The engine is single-threaded. Resolver, validator and counters are owned
// by one run and mutated strictly in row order.
package engine
