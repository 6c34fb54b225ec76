package intent

import (
	"errors"
	"fmt"
)

// ErrEmptyText is returned when asked to detect an intent for blank input.
var ErrEmptyText = errors.New("intent: empty query text")

// APIError is a non-2xx answer from the NLU service.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dialogflow %s: status %d: %s", e.Op, e.Status, e.Body)
}
