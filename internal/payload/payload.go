// Package payload builds the JSON bodies sent to the records backend.
//
// Builders take already-normalized values and validate at construction,
// so a value of one of these types is always safe to submit.
package payload

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Ref is a JSONModel reference to another record.
type Ref struct {
	Ref string `json:"ref"`
}

// ContainerLocation places a top container at a location.
type ContainerLocation struct {
	JSONModelType string `json:"jsonmodel_type"`
	Status        string `json:"status"`
	Ref           string `json:"ref"`
	StartDate     string `json:"start_date,omitempty"`
}

// TopContainer is the creation payload for a physical container.
type TopContainer struct {
	JSONModelType      string              `json:"jsonmodel_type"`
	Indicator          string              `json:"indicator"`
	Type               string              `json:"type"`
	Barcode            string              `json:"barcode,omitempty"`
	ContainerProfile   *Ref                `json:"container_profile,omitempty"`
	ContainerLocations []ContainerLocation `json:"container_locations,omitempty"`
}

// SubContainer links an instance to its top container.
type SubContainer struct {
	JSONModelType string `json:"jsonmodel_type"`
	TopContainer  Ref    `json:"top_container"`
	Type2         string `json:"type_2,omitempty"`
	Indicator2    string `json:"indicator_2,omitempty"`
}

// Instance attaches a container to a parent record.
type Instance struct {
	JSONModelType string       `json:"jsonmodel_type"`
	InstanceType  string       `json:"instance_type"`
	SubContainer  SubContainer `json:"sub_container"`
}

// ContainerSpec holds the fields a top container is built from.
type ContainerSpec struct {
	Type      string
	Indicator string
	Barcode   string

	// ProfileID and LocationID are backend ids; zero means absent.
	ProfileID         int
	LocationID        int
	LocationStartDate string
}

// NewTopContainer validates spec and returns the creation payload.
func NewTopContainer(spec ContainerSpec) (TopContainer, error) {
	if spec.Type == "" {
		return TopContainer{}, errors.New("top container: type is required")
	}
	if spec.Indicator == "" {
		return TopContainer{}, errors.New("top container: indicator is required")
	}
	tc := TopContainer{
		JSONModelType: "top_container",
		Indicator:     spec.Indicator,
		Type:          spec.Type,
		Barcode:       spec.Barcode,
	}
	if spec.ProfileID != 0 {
		tc.ContainerProfile = &Ref{Ref: fmt.Sprintf("/container_profiles/%d", spec.ProfileID)}
	}
	if spec.LocationID != 0 {
		tc.ContainerLocations = []ContainerLocation{NewCurrentLocation(spec.LocationID, spec.LocationStartDate)}
	}
	return tc, nil
}

// NewCurrentLocation returns a "current" container location entry.
func NewCurrentLocation(locationID int, startDate string) ContainerLocation {
	return ContainerLocation{
		JSONModelType: "container_location",
		Status:        "current",
		Ref:           fmt.Sprintf("/locations/%d", locationID),
		StartDate:     startDate,
	}
}

// InstanceSpec holds the fields an instance is built from.
type InstanceSpec struct {
	RepoID         int
	ContainerID    int
	InstanceType   string
	ChildType      string
	ChildIndicator string
}

// NewInstance validates spec and returns an instance referencing the top
// container by URI.
func NewInstance(spec InstanceSpec) (Instance, error) {
	if spec.InstanceType == "" {
		return Instance{}, errors.New("instance: instance type is required")
	}
	if spec.RepoID <= 0 || spec.ContainerID <= 0 {
		return Instance{}, errors.Newf("instance: invalid container reference repo=%d id=%d", spec.RepoID, spec.ContainerID)
	}
	return Instance{
		JSONModelType: "instance",
		InstanceType:  spec.InstanceType,
		SubContainer: SubContainer{
			JSONModelType: "sub_container",
			TopContainer:  Ref{Ref: ContainerURI(spec.RepoID, spec.ContainerID)},
			Type2:         spec.ChildType,
			Indicator2:    spec.ChildIndicator,
		},
	}, nil
}

// ContainerURI returns the URI of a top container.
func ContainerURI(repoID, containerID int) string {
	return fmt.Sprintf("/repositories/%d/top_containers/%d", repoID, containerID)
}
