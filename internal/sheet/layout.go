package sheet

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Layout names the spreadsheet headers the importer reads.
//
// Workbooks prepared by different archivists drift in their column names,
// so every header can be overridden from a YAML layout file.
type Layout struct {
	TempID            string `yaml:"temp_id"`
	ContainerType     string `yaml:"container_type"`
	Indicator         string `yaml:"container_indicator"`
	Barcode           string `yaml:"barcode"`
	Profile           string `yaml:"container_profile"`
	Location          string `yaml:"location"`
	LocationStartDate string `yaml:"location_start_date"`

	ParentID       string `yaml:"parent_id"`
	InstanceType   string `yaml:"instance_type"`
	ChildType      string `yaml:"child_type"`
	ChildIndicator string `yaml:"child_indicator"`

	// IntegerFields lists headers coerced to integers.
	IntegerFields []string `yaml:"integer_fields"`
}

// DefaultLayout returns the header names used by the container import
// workbook template.
func DefaultLayout() Layout {
	return Layout{
		TempID:            "TempContainerRecord",
		ContainerType:     "Container Type",
		Indicator:         "Container Indicator",
		Barcode:           "Barcode",
		Profile:           "Container Profile",
		Location:          "Location",
		LocationStartDate: "Location Start Date",
		ParentID:          "Object Record ID",
		InstanceType:      "Instance Type",
		ChildType:         "Child Container Type",
		ChildIndicator:    "Child Container Indicator",
		IntegerFields:     []string{"Object Record ID", "Location", "Container Profile"},
	}
}

// LoadLayout reads a YAML layout file over the defaults. Unknown keys are
// rejected so that a misspelled key does not silently fall back.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()
	if path == "" {
		return layout, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, errors.Wrap(err, "failed to read layout file")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil {
		return Layout{}, errors.Wrapf(err, "failed to parse layout file %s", path)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, errors.Wrapf(err, "invalid layout file %s", path)
	}
	return layout, nil
}

// Validate checks that every required header is named.
func (l Layout) Validate() error {
	required := map[string]string{
		"temp_id":             l.TempID,
		"container_type":      l.ContainerType,
		"container_indicator": l.Indicator,
		"parent_id":           l.ParentID,
		"instance_type":       l.InstanceType,
	}
	for key, v := range required {
		if v == "" {
			return errors.Newf("%s must not be empty", key)
		}
	}
	return nil
}

// Rules returns the coercion rules for this layout.
func (l Layout) Rules() Rules {
	return NewRules(l.IntegerFields...)
}

// ContainerRequired lists headers a container row must fill.
func (l Layout) ContainerRequired() []string {
	return []string{l.TempID, l.ContainerType, l.Indicator}
}

// ContainerUnique lists headers whose non-empty values must be unique
// across the whole container sheet.
func (l Layout) ContainerUnique() []string {
	return []string{l.TempID, l.Barcode}
}

// InstanceRequired lists headers an instance row must fill.
func (l Layout) InstanceRequired() []string {
	return []string{l.TempID, l.ParentID, l.InstanceType}
}

// Classify tells whether a table holds container rows or instance rows,
// judged by its header row.
func (l Layout) Classify(t Table) SheetKind {
	if len(t.Rows) == 0 {
		return SheetUnknown
	}
	var hasParent, hasIndicator bool
	for _, h := range Headers(t.Rows[0]) {
		switch h {
		case l.ParentID:
			hasParent = true
		case l.Indicator:
			hasIndicator = true
		}
	}
	switch {
	case hasParent:
		return SheetInstances
	case hasIndicator:
		return SheetContainers
	default:
		return SheetUnknown
	}
}

// SheetKind identifies the role of a worksheet.
type SheetKind string

const (
	SheetUnknown    SheetKind = "unknown"
	SheetContainers SheetKind = "containers"
	SheetInstances  SheetKind = "instances"
)
