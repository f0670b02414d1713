package discoeval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLineBytes bounds a single line of a text split.
const DefaultMaxLineBytes = 16 * 1024 * 1024

// Source opens split files by their task-relative path, e.g.
// "data/SP/wiki/train.txt". Implementations report missing files with an
// error wrapping ErrSourceNotFound.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

type options struct {
	logger    *zap.Logger
	normalize bool
	maxLine   int
}

// Option configures a Reader.
type Option func(*options)

// WithLogger sets the logger used for per-read diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithNFC normalizes every text field to Unicode NFC.
func WithNFC(enabled bool) Option {
	return func(o *options) { o.normalize = enabled }
}

// WithMaxLineBytes overrides DefaultMaxLineBytes.
func WithMaxLineBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLine = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), maxLine: DefaultMaxLineBytes}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) text(s string) string {
	if o.normalize {
		return norm.NFC.String(s)
	}
	return s
}

// decoder produces the next example or io.EOF.
type decoder interface {
	next() (Example, error)
}

// Reader yields the examples of one split in source order. It is not safe
// for concurrent use; open one Reader per split.
//
//	r, err := discoeval.Open(ctx, src, task, discoeval.Train)
//	...
//	defer r.Close()
//	for r.Next() {
//		ex := r.Example()
//	}
//	if err := r.Err(); err != nil { ... }
type Reader struct {
	ctx    context.Context
	task   *Task
	path   string
	closer io.Closer
	dec    decoder
	log    *zap.Logger

	cur   Example
	count int
	err   error
	done  bool
	start time.Time
}

// NewReader parses r as a split of task. path is used in errors and logs
// only. The caller keeps ownership of r.
func NewReader(ctx context.Context, r io.Reader, task *Task, path string, opts ...Option) *Reader {
	return newReader(ctx, r, nil, task, path, buildOptions(opts))
}

// Open resolves the split's path, opens it through src and returns a Reader
// that closes the underlying handle once iteration ends.
func Open(ctx context.Context, src Source, task *Task, split Split, opts ...Option) (*Reader, error) {
	p, err := task.Path(split)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	rc, err := src.Open(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("open %s split of %s: %w", split, task.Name, err)
	}
	o.logger.Debug("split opened",
		zap.String("task", task.Name),
		zap.String("split", string(split)),
		zap.String("path", p))
	return newReader(ctx, rc, rc, task, p, o), nil
}

func newReader(ctx context.Context, r io.Reader, closer io.Closer, task *Task, path string, o options) *Reader {
	rd := &Reader{
		ctx:    ctx,
		task:   task,
		path:   path,
		closer: closer,
		log:    o.logger.With(zap.String("task", task.Name), zap.String("path", path)),
		start:  time.Now(),
	}
	switch task.Format {
	case FormatPickle:
		rd.dec = &pickleDecoder{r: r, task: task, path: path, opts: o}
	default:
		rd.dec = newTextDecoder(r, task, path, o)
	}
	return rd
}

// Next advances to the next example. It returns false at the end of the
// split or on the first error; check Err afterwards.
func (r *Reader) Next() bool {
	if r.done {
		return false
	}
	if err := r.ctx.Err(); err != nil {
		r.finish(err)
		return false
	}
	ex, err := r.dec.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		r.finish(err)
		return false
	}
	r.cur = ex
	r.count++
	return true
}

// Example returns the example produced by the last successful Next.
func (r *Reader) Example() Example { return r.cur }

// Err returns the error that stopped iteration, if any.
func (r *Reader) Err() error { return r.err }

// Count is the number of examples produced so far.
func (r *Reader) Count() int { return r.count }

// Task returns the descriptor the reader parses against.
func (r *Reader) Task() *Task { return r.task }

// Path returns the split path being read.
func (r *Reader) Path() string { return r.path }

// Close releases the underlying handle. It is safe to call at any point and
// more than once.
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.log.Debug("split read stopped early", zap.Int("records", r.count))
	r.done = true
	return r.release()
}

func (r *Reader) finish(err error) {
	r.done = true
	r.err = err
	if cerr := r.release(); cerr != nil && r.err == nil {
		r.err = cerr
	}
	fields := []zap.Field{
		zap.Int("records", r.count),
		zap.Duration("elapsed", time.Since(r.start)),
	}
	if r.err != nil {
		r.log.Warn("split read failed", append(fields, zap.Error(r.err))...)
		return
	}
	r.log.Info("split read", fields...)
}

func (r *Reader) release() error {
	if r.closer == nil {
		return nil
	}
	c := r.closer
	r.closer = nil
	return c.Close()
}

// ReadAll opens one split and collects every example.
func ReadAll(ctx context.Context, src Source, task *Task, split Split, opts ...Option) ([]Example, error) {
	r, err := Open(ctx, src, task, split, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Example
	for r.Next() {
		out = append(out, r.Example())
	}
	return out, r.Err()
}
