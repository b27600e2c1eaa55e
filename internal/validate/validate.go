// Package validate gates spreadsheet rows before any remote work is done.
//
// Validation is stateful: uniqueness is judged against every row seen so far
// in the run, and instance rows are checked against the temp ids whose
// containers failed. Rows must therefore be validated in sheet order.
package validate

import (
	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/resolve"
	"github.com/roach88/containersync/internal/sheet"
)

// Failure lists why a row was rejected. The zero Failure is a pass.
type Failure struct {
	EmptyFields     []string
	DuplicateFields []string

	// Omitted is set when an instance row depends on a container that
	// failed to be created.
	Omitted bool
}

// OK reports whether the row passed.
func (f Failure) OK() bool {
	return len(f.EmptyFields) == 0 && len(f.DuplicateFields) == 0 && !f.Omitted
}

// Validator checks container and instance rows for one run.
type Validator struct {
	layout   sheet.Layout
	log      *eventlog.Log
	resolver *resolve.Resolver

	// seen counts occurrences per unique header, per value.
	seen map[string]map[string]int
}

// New returns a Validator with empty uniqueness counters.
func New(layout sheet.Layout, log *eventlog.Log, resolver *resolve.Resolver) *Validator {
	return &Validator{
		layout:   layout,
		log:      log,
		resolver: resolver,
		seen:     make(map[string]map[string]int),
	}
}

// CheckContainer evaluates a container row and updates the uniqueness
// counters. It does not log.
func (v *Validator) CheckContainer(row sheet.Row) Failure {
	var f Failure
	for _, field := range v.layout.ContainerRequired() {
		if !row.Get(field).Present() {
			f.EmptyFields = append(f.EmptyFields, field)
		}
	}
	for _, field := range v.layout.ContainerUnique() {
		if v.countOccurrence(field, row.Get(field)) > 1 {
			f.DuplicateFields = append(f.DuplicateFields, field)
		}
	}
	return f
}

// Observe counts a container row toward the uniqueness counters without
// judging it. Rows skipped on resume go through here so later duplicates
// of them are still rejected.
func (v *Validator) Observe(row sheet.Row) {
	for _, field := range v.layout.ContainerUnique() {
		v.countOccurrence(field, row.Get(field))
	}
}

// ContainerRow validates a container row, emitting one
// FAILED validate_container_row event when it is rejected.
func (v *Validator) ContainerRow(row sheet.Row) bool {
	f := v.CheckContainer(row)
	if f.OK() {
		return true
	}
	fields := []eventlog.Field{eventlog.TempID(row.Get(v.layout.TempID).String())}
	if len(f.EmptyFields) > 0 {
		fields = append(fields, eventlog.EmptyFields(f.EmptyFields))
	}
	if len(f.DuplicateFields) > 0 {
		fields = append(fields, eventlog.DuplicateFields(f.DuplicateFields))
	}
	v.log.Error(eventlog.FailedValidateContainerRow, fields...)
	return false
}

// CheckSubContainer evaluates an instance row. A row whose temp id is
// poisoned is omitted without checking required fields.
func (v *Validator) CheckSubContainer(row sheet.Row) Failure {
	if v.resolver.Poisoned(row.Get(v.layout.TempID).String()) {
		return Failure{Omitted: true}
	}
	var f Failure
	for _, field := range v.layout.InstanceRequired() {
		if !row.Get(field).Present() {
			f.EmptyFields = append(f.EmptyFields, field)
		}
	}
	return f
}

// SubContainerRow validates an instance row, emitting
// OMITTED validate_sub_container_row or FAILED validate_sub_container_row
// when it is rejected.
func (v *Validator) SubContainerRow(row sheet.Row) bool {
	f := v.CheckSubContainer(row)
	if f.OK() {
		return true
	}
	fields := []eventlog.Field{
		eventlog.TempID(row.Get(v.layout.TempID).String()),
		eventlog.Value("ao_id", row.Get(v.layout.ParentID)),
	}
	if f.Omitted {
		v.log.Error(eventlog.OmittedValidateSubContainerRow, fields...)
		return false
	}
	fields = append(fields, eventlog.EmptyFields(f.EmptyFields))
	v.log.Error(eventlog.FailedValidateSubContainerRow, fields...)
	return false
}

func (v *Validator) countOccurrence(field string, val sheet.Value) int {
	if !val.Present() {
		return 0
	}
	counts, ok := v.seen[field]
	if !ok {
		counts = make(map[string]int)
		v.seen[field] = counts
	}
	counts[val.String()]++
	return counts[val.String()]
}
