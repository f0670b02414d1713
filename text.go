package discoeval

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

type textDecoder struct {
	sc   *bufio.Scanner
	task *Task
	path string
	opts options
	line int
}

func newTextDecoder(r io.Reader, task *Task, path string, o options) *textDecoder {
	sc := bufio.NewScanner(r)
	// The scanner's limit is the larger of max and the initial capacity, and
	// it has to hold the line terminator too.
	limit := o.maxLine + 1
	sc.Buffer(make([]byte, 0, min(64*1024, limit)), limit)
	return &textDecoder{sc: sc, task: task, path: path, opts: o}
}

func (d *textDecoder) next() (Example, error) {
	if !d.sc.Scan() {
		err := d.sc.Err()
		if err == nil {
			return Example{}, io.EOF
		}
		if errors.Is(err, bufio.ErrTooLong) {
			err = fmt.Errorf("%w: line longer than %d bytes", ErrMalformedRecord, d.opts.maxLine)
		}
		return Example{}, &RecordError{Path: d.path, Line: d.line, Err: err}
	}
	line := d.line
	d.line++

	raw := d.sc.Bytes()
	if !utf8.Valid(raw) {
		return Example{}, &RecordError{Path: d.path, Line: line, Err: ErrEncoding}
	}
	ex, err := parseLine(d.task, strings.TrimRightFunc(string(raw), unicode.IsSpace), d.opts)
	if err != nil {
		return Example{}, &RecordError{Path: d.path, Line: line, Err: err}
	}
	ex.Key = line
	return ex, nil
}

// parseLine splits "<label>\t<text_1>\t...\t<text_n>" and keeps the first
// Arity text columns.
func parseLine(task *Task, line string, o options) (Example, error) {
	cols := strings.Split(line, "\t")
	arity := task.Arity()
	if got := len(cols) - 1; got < arity {
		return Example{}, fmt.Errorf("%w: %d text columns, want %d", ErrMalformedRecord, got, arity)
	}
	label, id, err := task.Labels.Resolve(cols[0])
	if err != nil {
		return Example{}, err
	}
	fields := make([]Field, arity)
	for i := range fields {
		fields[i] = Field{Text: o.text(cols[i+1])}
	}
	return Example{Names: task.Fields, Fields: fields, Label: label, LabelID: id}, nil
}
