// Package store provides a SQLite mirror of the JSON-lines event log.
//
// The mirror is optional. When enabled, every line written to the event
// log file is also inserted here, so a run can be resumed or reported on
// from the database when the log file has been rotated away.
//
// # Ordering
//
// All reads are ORDER BY seq ASC. seq is assigned on insert and is the only
// ordering used; timestamps are informational.
//
// # Opening
//
// Open is for the writer: it creates the file, switches it to WAL with
// synchronous=NORMAL and migrates the schema. OpenReadOnly is for resume
// and report; it refuses files that are missing or carry an older
// user_version, and its Append returns ErrReadOnly. Both wait up to five
// seconds on a busy lock.
//
// The stored line is byte-identical to the file line (minus the trailing
// newline), so events read back decode exactly as they do from the file.
package store
