package discoeval

import "fmt"

// Split names one partition of a task's data.
type Split string

const (
	Train      Split = "train"
	Validation Split = "validation"
	Test       Split = "test"
)

// Splits lists the partitions in their canonical order.
var Splits = []Split{Train, Validation, Test}

// ParseSplit accepts the canonical names plus the "valid" and "dev" aliases
// used by the source releases.
func ParseSplit(s string) (Split, error) {
	switch s {
	case "train":
		return Train, nil
	case "validation", "valid", "dev":
		return Validation, nil
	case "test":
		return Test, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSplit, s)
}

// SplitFiles holds the file name of each split inside a task's data directory.
type SplitFiles struct {
	Train      string
	Validation string
	Test       string
}

// Name returns the file name for a split.
func (f SplitFiles) Name(s Split) (string, error) {
	switch s {
	case Train:
		return f.Train, nil
	case Validation:
		return f.Validation, nil
	case Test:
		return f.Test, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSplit, string(s))
}

var (
	textFiles = SplitFiles{Train: "train.txt", Validation: "valid.txt", Test: "test.txt"}
	rstFiles  = SplitFiles{Train: "RST_TRAIN.pkl", Validation: "RST_DEV.pkl", Test: "RST_TEST.pkl"}
)
