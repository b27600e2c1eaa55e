package aspace

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

// APIError is a non-success HTTP response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	const maxBody = 512
	body := string(e.Body)
	if len(body) > maxBody {
		body = body[:maxBody] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

// Payload returns the response body as raw JSON when it parses, otherwise
// as a string. It is what event logs echo as "result".
func (e *APIError) Payload() any {
	if json.Valid(e.Body) {
		return json.RawMessage(e.Body)
	}
	return string(e.Body)
}

// ErrorPayload returns what an event log should record for err: the
// backend's body for an *APIError, the message otherwise.
func ErrorPayload(err error) any {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Payload()
	}
	return err.Error()
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
