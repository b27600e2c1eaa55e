package payload

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Record is a full backend record (archival object or top container)
// fetched for modification. Fields the importer does not touch are kept
// verbatim so that posting the record back does not drop data.
type Record struct {
	fields map[string]any
}

// DecodeRecord parses a record body. The record must carry a "uri".
func DecodeRecord(data []byte) (*Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	if fields == nil {
		return nil, errors.New("decode record: not an object")
	}
	if uri, _ := fields["uri"].(string); uri == "" {
		return nil, errors.New("decode record: missing uri")
	}
	return &Record{fields: fields}, nil
}

// URI returns the record's URI.
func (r *Record) URI() string {
	uri, _ := r.fields["uri"].(string)
	return uri
}

// ID returns the numeric id at the end of the record's URI.
func (r *Record) ID() (int, error) {
	return IDFromURI(r.URI())
}

// Drop removes a top-level field. Backend reads include computed fields
// (such as "position") that it rejects on write.
func (r *Record) Drop(key string) {
	delete(r.fields, key)
}

// Set replaces a top-level field with the JSON form of value.
func (r *Record) Set(key string, value any) error {
	generic, err := toGeneric(value)
	if err != nil {
		return errors.Wrapf(err, "set %s", key)
	}
	r.fields[key] = generic
	return nil
}

// Get returns a top-level field in its decoded generic form.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// InstanceCount returns the number of entries in "instances".
func (r *Record) InstanceCount() int {
	return len(r.list("instances"))
}

// AppendInstance appends inst to the record's instances.
func (r *Record) AppendInstance(inst Instance) error {
	return r.appendTo("instances", inst)
}

// AppendContainerLocation appends loc to the record's container locations.
func (r *Record) AppendContainerLocation(loc ContainerLocation) error {
	return r.appendTo("container_locations", loc)
}

// InstanceContainerIDs returns, per instance, the top container id its
// sub container points at, or 0 when it has none.
func (r *Record) InstanceContainerIDs() []int {
	instances := r.list("instances")
	out := make([]int, len(instances))
	for i, inst := range instances {
		if ref, ok := topContainerRef(inst); ok {
			if id, err := IDFromURI(ref); err == nil {
				out[i] = id
			}
		}
	}
	return out
}

// RepointInstance rewrites the first instance whose top container is
// fromID so it references toID instead. It reports whether one was found.
func (r *Record) RepointInstance(fromID, toID int) bool {
	for _, inst := range r.list("instances") {
		ref, ok := topContainerRef(inst)
		if !ok {
			continue
		}
		id, err := IDFromURI(ref)
		if err != nil || id != fromID {
			continue
		}
		obj := inst.(map[string]any)["sub_container"].(map[string]any)["top_container"].(map[string]any)
		obj["ref"] = ref[:strings.LastIndex(ref, "/")+1] + strconv.Itoa(toID)
		return true
	}
	return false
}

// MarshalJSON encodes the record with all preserved fields.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

func (r *Record) list(key string) []any {
	l, _ := r.fields[key].([]any)
	return l
}

func (r *Record) appendTo(key string, value any) error {
	generic, err := toGeneric(value)
	if err != nil {
		return errors.Wrapf(err, "append %s", key)
	}
	r.fields[key] = append(r.list(key), generic)
	return nil
}

func topContainerRef(inst any) (string, bool) {
	m, ok := inst.(map[string]any)
	if !ok {
		return "", false
	}
	sc, ok := m["sub_container"].(map[string]any)
	if !ok {
		return "", false
	}
	tc, ok := sc["top_container"].(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := tc["ref"].(string)
	return ref, ok
}

func toGeneric(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// IDFromURI returns the integer after the last "/" of a record URI.
func IDFromURI(uri string) (int, error) {
	idx := strings.LastIndex(uri, "/")
	id, err := strconv.Atoi(uri[idx+1:])
	if err != nil {
		return 0, errors.Newf("uri %q has no numeric id", uri)
	}
	return id, nil
}
