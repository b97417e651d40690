package researcher

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrUnknownAction is returned for messages whose action the agent does not handle.
var ErrUnknownAction = errors.New("unknown action")

// UnknownActionError carries the action text as received.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownAction, e.Action)
}

func (e *UnknownActionError) Unwrap() error { return ErrUnknownAction }

// FolderError is one failed folder of a reindex pass.
type FolderError struct {
	Folder string
	Err    error
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Folder, e.Err)
}

func (e *FolderError) Unwrap() error { return e.Err }

// ReindexError reports every folder that failed during one reindex pass.
// The other folders were still indexed.
type ReindexError struct {
	Indexed int
	err     error
}

// Failures returns the per-folder errors in visiting order.
func (e *ReindexError) Failures() []*FolderError {
	var out []*FolderError
	for _, err := range multierr.Errors(e.err) {
		var fe *FolderError
		if errors.As(err, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

func (e *ReindexError) Error() string {
	failures := e.Failures()
	folders := make([]string, len(failures))
	for i, f := range failures {
		folders[i] = f.Folder
	}
	return fmt.Sprintf("reindex: %d of %d folders failed (%s): %v",
		len(failures), len(failures)+e.Indexed, strings.Join(folders, ", "), e.err)
}

// Unwrap exposes each folder error to errors.Is and errors.As.
func (e *ReindexError) Unwrap() []error {
	return multierr.Errors(e.err)
}
