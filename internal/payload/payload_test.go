package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTopContainer_Minimal(t *testing.T) {
	tc, err := NewTopContainer(ContainerSpec{Type: "box", Indicator: "1"})
	require.NoError(t, err)

	data, err := json.Marshal(tc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonmodel_type":"top_container","indicator":"1","type":"box"}`, string(data))
}

func TestNewTopContainer_Full(t *testing.T) {
	tc, err := NewTopContainer(ContainerSpec{
		Type:              "box",
		Indicator:         "12",
		Barcode:           "39002",
		ProfileID:         5,
		LocationID:        77,
		LocationStartDate: "2019-06-25",
	})
	require.NoError(t, err)

	data, err := json.Marshal(tc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonmodel_type": "top_container",
		"indicator": "12",
		"type": "box",
		"barcode": "39002",
		"container_profile": {"ref": "/container_profiles/5"},
		"container_locations": [
			{"jsonmodel_type": "container_location", "status": "current", "ref": "/locations/77", "start_date": "2019-06-25"}
		]
	}`, string(data))
}

func TestNewTopContainer_Required(t *testing.T) {
	_, err := NewTopContainer(ContainerSpec{Indicator: "1"})
	assert.ErrorContains(t, err, "type is required")

	_, err = NewTopContainer(ContainerSpec{Type: "box"})
	assert.ErrorContains(t, err, "indicator is required")
}

func TestNewInstance(t *testing.T) {
	inst, err := NewInstance(InstanceSpec{RepoID: 2, ContainerID: 42, InstanceType: "mixed materials", ChildType: "folder", ChildIndicator: "3"})
	require.NoError(t, err)

	data, err := json.Marshal(inst)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"jsonmodel_type": "instance",
		"instance_type": "mixed materials",
		"sub_container": {
			"jsonmodel_type": "sub_container",
			"top_container": {"ref": "/repositories/2/top_containers/42"},
			"type_2": "folder",
			"indicator_2": "3"
		}
	}`, string(data))
}

func TestNewInstance_Invalid(t *testing.T) {
	_, err := NewInstance(InstanceSpec{RepoID: 2, ContainerID: 42})
	assert.ErrorContains(t, err, "instance type is required")

	_, err = NewInstance(InstanceSpec{RepoID: 2, InstanceType: "text"})
	assert.ErrorContains(t, err, "invalid container reference")
}

func TestDecodeRecord(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"uri":"/repositories/2/archival_objects/100","lock_version":3,"position":7,"title":"Letters"}`))
	require.NoError(t, err)

	id, err := r.ID()
	require.NoError(t, err)
	assert.Equal(t, 100, id)
	assert.Equal(t, 0, r.InstanceCount())

	r.Drop("position")
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uri":"/repositories/2/archival_objects/100","lock_version":3,"title":"Letters"}`, string(data))
}

func TestDecodeRecord_Invalid(t *testing.T) {
	_, err := DecodeRecord([]byte(`[]`))
	assert.Error(t, err)

	_, err = DecodeRecord([]byte(`{"title":"x"}`))
	assert.ErrorContains(t, err, "missing uri")

	_, err = DecodeRecord([]byte(`null`))
	assert.ErrorContains(t, err, "not an object")
}

func TestRecord_AppendInstancePreservesOrder(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"uri":"/repositories/2/archival_objects/100","instances":[{"instance_type":"text","sub_container":{"top_container":{"ref":"/repositories/2/top_containers/9"}}}]}`))
	require.NoError(t, err)

	for _, id := range []int{42, 43} {
		inst, err := NewInstance(InstanceSpec{RepoID: 2, ContainerID: id, InstanceType: "mixed materials"})
		require.NoError(t, err)
		require.NoError(t, r.AppendInstance(inst))
	}

	assert.Equal(t, 3, r.InstanceCount())
	assert.Equal(t, []int{9, 42, 43}, r.InstanceContainerIDs())
}

func TestRecord_RepointInstance(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"uri":"/repositories/17/archival_objects/5","instances":[
		{"instance_type":"digital_object","digital_object":{"ref":"/repositories/17/digital_objects/1"}},
		{"instance_type":"mixed_materials","sub_container":{"top_container":{"ref":"/repositories/17/top_containers/300"}}},
		{"instance_type":"mixed_materials","sub_container":{"top_container":{"ref":"/repositories/17/top_containers/300"}}}
	]}`))
	require.NoError(t, err)

	assert.True(t, r.RepointInstance(300, 301))
	assert.Equal(t, []int{0, 301, 300}, r.InstanceContainerIDs())
	assert.False(t, r.RepointInstance(999, 1))
}

func TestRecord_SetAndLocations(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"uri":"/repositories/14/top_containers/8","barcode":"old"}`))
	require.NoError(t, err)

	require.NoError(t, r.Set("barcode", "new"))
	require.NoError(t, r.AppendContainerLocation(NewCurrentLocation(3, "2020-01-01")))

	v, ok := r.Get("barcode")
	require.True(t, ok)
	assert.Equal(t, "new", v)

	locs, ok := r.Get("container_locations")
	require.True(t, ok)
	assert.Len(t, locs, 1)
}

func TestIDFromURI(t *testing.T) {
	id, err := IDFromURI("/repositories/2/archival_objects/100")
	require.NoError(t, err)
	assert.Equal(t, 100, id)

	_, err = IDFromURI("/repositories/2/archival_objects/")
	assert.Error(t, err)
}
