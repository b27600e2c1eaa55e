package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/containersync/internal/eventlog"
)

// WriteText prints s in the layout operators read after a run.
func WriteText(w io.Writer, s *Summary) error {
	p := &printer{w: w}

	p.linef("Run started:  %s", s.StartedAt.UTC().Format(time.RFC3339))
	p.linef("Run finished: %s", s.EndedAt.UTC().Format(time.RFC3339))
	p.linef("Elapsed: %s", s.Elapsed)
	if s.Runs > 1 {
		p.linef("Runs in log: %d", s.Runs)
	}
	p.blank()

	p.linef("Containers created: %d", s.Count(eventlog.CreateContainer))
	p.linef("Containers skipped (already created): %d", s.Count(eventlog.SkipContainer))
	p.linef("AOs successfully updated: %d", s.Count(eventlog.UpdateAO)+s.Count(eventlog.UpdateRecord))
	p.linef("AOs skipped (already updated): %d", s.Count(eventlog.SkipAO)+s.Count(eventlog.SkipRecord))
	p.blank()

	p.linef("Containers that failed validation: %d", len(s.ContainerValidation))
	for _, f := range s.ContainerValidation {
		if len(f.EmptyFields) > 0 {
			p.linef("\ttemp_id=%s had empty fields: %s", f.TempID, list(f.EmptyFields))
		}
		if len(f.DuplicateFields) > 0 {
			p.linef("\ttemp_id=%s had duplicate fields: %s", f.TempID, list(f.DuplicateFields))
		}
	}
	p.blank()

	p.linef("Containers passed validation but couldn't be created: %d", len(s.CreateFailures))
	for _, f := range s.CreateFailures {
		p.linef("\ttemp_id=%s failed with the following error: %s", f.TempID, resultText(f.Result))
	}
	p.blank()

	p.linef("Instances that failed validation: %d", len(s.InstanceValidation))
	for _, f := range s.InstanceValidation {
		p.linef("\ttemp_id=%s and archival_object_id=%s had empty fields: %s", f.TempID, f.AOID, list(f.EmptyFields))
	}
	p.blank()

	p.linef("Instances that were omitted because of failed container creation: %d", len(s.Omitted))
	for _, f := range s.Omitted {
		p.linef("\tao_id=%s temp_id=%s omitted", f.AOID, f.TempID)
	}
	p.blank()

	p.linef("AO updates that failed: %d", len(s.UpdateFailures))
	for _, f := range s.UpdateFailures {
		if f.TempID != "" {
			p.linef("\tao_id=%s temp_id=%s failed with the following error: %s", f.AOID, f.TempID, resultText(f.Result))
		} else {
			p.linef("\tao_id=%s failed with the following error: %s", f.AOID, resultText(f.Result))
		}
	}
	p.blank()

	p.linef("AOs missing from the backend: %d", len(s.MissingParents))
	for _, id := range s.MissingParents {
		p.linef("\tao_id=%s", id)
	}

	return p.err
}

func list(fields []string) string {
	return "[" + strings.Join(fields, ", ") + "]"
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) linef(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) blank() {
	p.linef("")
}
