package azdo

import (
	"errors"
	"fmt"
)

// ErrFetchFailed marks a failure on the first request of an operation. Later
// pages are governed by the pagination policy instead.
var ErrFetchFailed = errors.New("fetch failed")

// RequestError carries the REST context of a failed call.
type RequestError struct {
	Method string
	Path   string
	Status int
	Body   string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		if len(e.Body) > 0 {
			return fmt.Sprintf("%s %q: status %d: %s", e.Method, e.Path, e.Status, e.Body)
		}
		return fmt.Sprintf("%s %q: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %q: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ResolutionError reports a subtree whose membership could not be fetched
// after the retry budget was exhausted. The caller decides whether the
// subtree is skipped or the whole resolution aborts.
type ResolutionError struct {
	Descriptor string
	Attempts   int
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q failed after %d attempts: %v", e.Descriptor, e.Attempts, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
