// Package eventlog writes and reads the append-only ingest log.
//
// Every attempted mutation produces exactly one JSON object per line with an
// "event" kind and a "timestamp". The log is the audit trail a human reads
// through the report command, and the single source of truth a later run
// replays to skip completed work. Lines are never rewritten or removed.
package eventlog

// Kind names an event. The strings are stable: old logs are replayed by
// newer runs.
type Kind string

const (
	StartIngest Kind = "start_ingest"
	EndIngest   Kind = "end_ingest"

	CreateContainer            Kind = "create_container"
	SkipContainer              Kind = "skip_container"
	FailedValidateContainerRow Kind = "FAILED validate_container_row"
	FailedCreateContainer      Kind = "FAILED create_container"

	UpdateAO                       Kind = "update_ao"
	SkipAO                         Kind = "skip_ao"
	FailedUpdateAO                 Kind = "FAILED update_ao"
	FailedMissingAO                Kind = "FAILED missing_ao"
	FailedValidateSubContainerRow  Kind = "FAILED validate_sub_container_row"
	OmittedValidateSubContainerRow Kind = "OMITTED validate_sub_container_row"

	// Aliases written by the generic record variant of the importer.
	UpdateRecord       Kind = "update_record"
	SkipRecord         Kind = "skip_record"
	FailedUpdateRecord Kind = "FAILED update_record"

	UpdateContainer       Kind = "update_container"
	FailedUpdateContainer Kind = "FAILED update_container"
	DeleteRecord          Kind = "delete_record"
	FailedDeleteRecord    Kind = "FAILED delete_record"
)

// IsParentDone reports whether an event marks a parent record as fully
// handled, so a resumed run must not touch it again.
func (k Kind) IsParentDone() bool {
	switch k {
	case UpdateAO, UpdateRecord, SkipAO, SkipRecord:
		return true
	}
	return false
}

// IsContainerMapping reports whether an event carries a temp id to
// backend id mapping.
func (k Kind) IsContainerMapping() bool {
	return k == CreateContainer || k == SkipContainer
}
