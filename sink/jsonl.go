package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/goldfish-inc/discoeval"
)

// JSONL writes one JSON object per example:
//
//	{"key":0,"sentence_1":"...","label":"1"}
//
// Splits loaded concurrently are written one after another, never
// interleaved.
type JSONL struct {
	mu    sync.Mutex
	w     *bufio.Writer
	limit int
}

// NewJSONL writes to w. A positive limit caps the examples written per split.
func NewJSONL(w io.Writer, limit int) *JSONL {
	return &JSONL{w: bufio.NewWriter(w), limit: limit}
}

func (j *JSONL) Load(_ context.Context, r *discoeval.Reader, _ discoeval.Split) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	enc := json.NewEncoder(j.w)
	enc.SetEscapeHTML(false)
	n := 0
	for (j.limit <= 0 || n < j.limit) && r.Next() {
		if err := enc.Encode(r.Example()); err != nil {
			return n, fmt.Errorf("failed to encode example %d: %w", r.Example().Key, err)
		}
		n++
	}
	if err := j.w.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush: %w", err)
	}
	return n, r.Err()
}
