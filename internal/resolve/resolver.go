// Package resolve maps spreadsheet-local temporary container ids to the ids
// the backend assigned when the containers were created.
//
// A Resolver only grows during a run. Once a temp id is mapped or poisoned it
// is never processed again, which is what makes a resumed run idempotent.
package resolve

import (
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/payload"
)

// Resolver holds the temp id mapping, the poisoned temp ids and the set of
// parent records finished by an earlier run.
//
// Not safe for concurrent use; a run owns exactly one Resolver.
type Resolver struct {
	ids       map[string]int
	seeded    map[string]struct{}
	poisoned  map[string]struct{}
	processed map[int]struct{}
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{
		ids:       make(map[string]int),
		seeded:    make(map[string]struct{}),
		poisoned:  make(map[string]struct{}),
		processed: make(map[int]struct{}),
	}
}

// Resolve returns the backend id for tempID.
func (r *Resolver) Resolve(tempID string) (int, bool) {
	id, ok := r.ids[tempID]
	return id, ok
}

// Register records the backend id for tempID. Registering the same pair
// twice is a no-op; a different id or a poisoned temp id is an error.
func (r *Resolver) Register(tempID string, id int) error {
	if tempID == "" {
		return errors.New("register: empty temp id")
	}
	if _, bad := r.poisoned[tempID]; bad {
		return errors.Newf("register: temp id %q is poisoned", tempID)
	}
	if prev, ok := r.ids[tempID]; ok && prev != id {
		return errors.Newf("register: temp id %q already maps to %d, not %d", tempID, prev, id)
	}
	r.ids[tempID] = id
	return nil
}

// Poison marks tempID as permanently unresolvable for this run. It returns
// false, and changes nothing, when tempID already resolves.
func (r *Resolver) Poison(tempID string) bool {
	if tempID == "" {
		return false
	}
	if _, ok := r.ids[tempID]; ok {
		return false
	}
	r.poisoned[tempID] = struct{}{}
	return true
}

// Poisoned reports whether tempID's container failed to be created.
func (r *Resolver) Poisoned(tempID string) bool {
	_, ok := r.poisoned[tempID]
	return ok
}

// Seeded reports whether tempID's mapping came from a prior run's log.
func (r *Resolver) Seeded(tempID string) bool {
	_, ok := r.seeded[tempID]
	return ok
}

// MarkProcessed records a parent record as fully handled.
func (r *Resolver) MarkProcessed(parentID int) {
	r.processed[parentID] = struct{}{}
}

// ParentProcessed reports whether parentID was handled by a prior run.
func (r *Resolver) ParentProcessed(parentID int) bool {
	_, ok := r.processed[parentID]
	return ok
}

// ProcessedParents returns the processed parent ids in ascending order.
func (r *Resolver) ProcessedParents() []int {
	out := make([]int, 0, len(r.processed))
	for id := range r.processed {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of mapped temp ids.
func (r *Resolver) Len() int {
	return len(r.ids)
}

// SeedFromLog replays a prior event stream in order. Container creations and
// skips re-register their mapping; parent updates and skips mark the parent
// processed. Events of other kinds are ignored.
func (r *Resolver) SeedFromLog(events []eventlog.Event) error {
	for _, e := range events {
		switch {
		case e.Kind.IsContainerMapping():
			tempID, _ := e.String("temp_id")
			id, ok := e.Int("id")
			if tempID == "" || !ok {
				return errors.Newf("seed: line %d: %s without temp_id/id", e.Line, e.Kind)
			}
			if err := r.Register(tempID, id); err != nil {
				return errors.Wrapf(err, "seed: line %d", e.Line)
			}
			r.seeded[tempID] = struct{}{}
		case e.Kind.IsParentDone():
			id, ok := parentID(e)
			if !ok {
				return errors.Newf("seed: line %d: %s without a parent id", e.Line, e.Kind)
			}
			r.MarkProcessed(id)
		}
	}
	return nil
}

// parentID prefers ao_id, then the record URI, then the legacy id field.
func parentID(e eventlog.Event) (int, bool) {
	if id, ok := e.Int("ao_id"); ok {
		return id, true
	}
	if uri, ok := e.String("record_uri"); ok {
		if id, err := payload.IDFromURI(uri); err == nil {
			return id, true
		}
	}
	return e.Int("id")
}
