package discoeval

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a selection that cannot be resolved: an unknown
	// task or split name.
	ErrConfiguration = errors.New("configuration error")
	ErrUnknownTask   = fmt.Errorf("%w: unknown task", ErrConfiguration)
	ErrUnknownSplit  = fmt.Errorf("%w: unknown split", ErrConfiguration)

	// ErrSourceNotFound is returned when a declared split file does not exist.
	ErrSourceNotFound = errors.New("source not found")

	// ErrMalformedRecord is returned for lines with too few columns, label
	// tokens outside the vocabulary and pickles of the wrong shape.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEncoding is returned for text splits that are not valid UTF-8.
	ErrEncoding = errors.New("invalid utf-8")
)

// RecordError locates a read failure inside a split file. Line is the
// zero-based line number for text splits and the list position for pickles;
// it is -1 when the failure is not tied to one record.
type RecordError struct {
	Path string
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
