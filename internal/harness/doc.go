// Package harness runs end-to-end import scenarios described in YAML.
//
// A scenario seeds an in-memory backend, feeds container and instance rows
// through one or more import runs and checks the resulting event log.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario checks"
//	chunk_size: 2
//	backend:
//	  next_id: 42
//	  archival_objects:
//	    - { repo: 2, id: 100 }
//	runs:
//	  - containers:
//	      - { TempContainerRecord: T1, Container Type: box, Container Indicator: "1" }
//	    instances:
//	      - { Object Record ID: 100, TempContainerRecord: T1, Instance Type: mixed materials }
//	  - resume: true
//	    containers: [ ... ]
//	assertions:
//	  - type: trace_contains
//	    event: create_container
//	    fields: { temp_id: T1, id: 42 }
//	  - type: final_state
//	    record: /repositories/2/archival_objects/100
//	    instances: [ /repositories/2/top_containers/42 ]
//
// # Assertion Types
//
//   - trace_contains: an event of the kind exists whose fields include the given subset
//   - trace_order: the first occurrences of the kinds appear in the given order
//   - trace_count: the kind appears exactly count times
//   - final_state: a stored record links exactly the given top containers, or the
//     backend saw the given number of mutating calls
//
// # Deterministic Testing
//
// Every scenario gets a fresh backend, a stepping clock starting at
// 2026-03-01T12:00:00Z and a fixed run id, so its log can be compared
// against a golden file.
package harness
