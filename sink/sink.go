// Package sink writes parsed DiscoEval splits to JSONL streams, Excel
// workbooks and Postgres.
package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goldfish-inc/discoeval"
)

// Loader consumes every example of one split. Implementations return the
// number of examples written and r.Err() if iteration failed.
type Loader interface {
	Load(ctx context.Context, r *discoeval.Reader, split discoeval.Split) (int, error)
}

// OpenObserver is implemented by loaders that want to hear about splits that
// could not be opened and so never reach Load.
type OpenObserver interface {
	OpenFailed(task *discoeval.Task, split discoeval.Split, err error)
}

// LoadSplits opens each split of task and hands it to l. Up to parallel
// splits are read at once; parallel <= 0 reads all of them concurrently.
// The first failure cancels the remaining splits.
func LoadSplits(ctx context.Context, src discoeval.Source, task *discoeval.Task, splits []discoeval.Split, l Loader, parallel int, opts ...discoeval.Option) (map[discoeval.Split]int, error) {
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	var mu sync.Mutex
	counts := make(map[discoeval.Split]int, len(splits))
	for _, split := range splits {
		g.Go(func() error {
			r, err := discoeval.Open(gctx, src, task, split, opts...)
			if err != nil {
				if o, ok := l.(OpenObserver); ok {
					o.OpenFailed(task, split, err)
				}
				return err
			}
			defer r.Close()

			n, err := l.Load(gctx, r, split)
			if err != nil {
				return fmt.Errorf("load %s/%s: %w", task.Name, split, err)
			}
			mu.Lock()
			counts[split] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return counts, err
	}
	return counts, nil
}

// cellText renders a field for flat outputs; sequence items are joined by
// newlines.
func cellText(f discoeval.Field) string {
	if f.IsSequence() {
		return strings.Join(f.Sequence, "\n")
	}
	return f.Text
}
