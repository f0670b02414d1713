package discoeval

import (
	"fmt"
	"io"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
)

// pickleDecoder reads a pickled list of [label, text_1, ..., text_n]
// elements. The whole object is unpickled on the first call; examples are
// then produced one list element at a time.
type pickleDecoder struct {
	r     io.Reader
	task  *Task
	path  string
	opts  options
	items []any
	pos   int
	ready bool
}

func (d *pickleDecoder) next() (Example, error) {
	if !d.ready {
		if err := d.load(); err != nil {
			return Example{}, &RecordError{Path: d.path, Line: -1, Err: err}
		}
		d.ready = true
	}
	if d.pos >= len(d.items) {
		return Example{}, io.EOF
	}
	pos := d.pos
	d.pos++

	ex, err := d.element(d.items[pos])
	if err != nil {
		return Example{}, &RecordError{Path: d.path, Line: pos, Err: err}
	}
	ex.Key = pos
	return ex, nil
}

func (d *pickleDecoder) load() error {
	u := pickle.NewUnpickler(d.r)
	obj, err := u.Load()
	if err != nil {
		return fmt.Errorf("%w: unpickle: %v", ErrMalformedRecord, err)
	}
	items, ok := sequence(obj)
	if !ok {
		return fmt.Errorf("%w: top-level object is %T, want list", ErrMalformedRecord, obj)
	}
	d.items = items
	return nil
}

func (d *pickleDecoder) element(obj any) (Example, error) {
	parts, ok := sequence(obj)
	if !ok {
		return Example{}, fmt.Errorf("%w: element is %T, want list or tuple", ErrMalformedRecord, obj)
	}
	arity := d.task.Arity()
	if len(parts)-1 < arity {
		return Example{}, fmt.Errorf("%w: %d text fields, want %d", ErrMalformedRecord, len(parts)-1, arity)
	}
	raw, ok := str(parts[0])
	if !ok {
		return Example{}, fmt.Errorf("%w: label is %T, want string", ErrMalformedRecord, parts[0])
	}
	label, id, err := d.task.Labels.Resolve(raw)
	if err != nil {
		return Example{}, err
	}

	fields := make([]Field, arity)
	for i := range fields {
		f, err := d.field(parts[i+1])
		if err != nil {
			return Example{}, fmt.Errorf("%s: %w", d.task.Fields[i], err)
		}
		fields[i] = f
	}
	return Example{Names: d.task.Fields, Fields: fields, Label: label, LabelID: id}, nil
}

// field accepts a string or a list of strings.
func (d *pickleDecoder) field(obj any) (Field, error) {
	if s, ok := str(obj); ok {
		return Field{Text: d.opts.text(s)}, nil
	}
	items, ok := sequence(obj)
	if !ok {
		return Field{}, fmt.Errorf("%w: text field is %T", ErrMalformedRecord, obj)
	}
	seq := make([]string, len(items))
	for i, it := range items {
		s, ok := str(it)
		if !ok {
			return Field{}, fmt.Errorf("%w: sequence item %d is %T", ErrMalformedRecord, i, it)
		}
		seq[i] = d.opts.text(s)
	}
	return Field{Sequence: seq}, nil
}

func sequence(obj any) ([]any, bool) {
	switch v := obj.(type) {
	case *types.List:
		return listItems(v), true
	case *types.Tuple:
		return tupleItems(v), true
	case []any:
		return v, true
	}
	return nil, false
}

func listItems(l *types.List) []any {
	out := make([]any, l.Len())
	for i := range out {
		out[i] = l.Get(i)
	}
	return out
}

func tupleItems(t *types.Tuple) []any {
	out := make([]any, t.Len())
	for i := range out {
		out[i] = t.Get(i)
	}
	return out
}

func str(obj any) (string, bool) {
	switch v := obj.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
