// Package discoeval exposes the DiscoEval benchmark suite as typed task
// descriptors and lazily parsed, labeled examples.
package discoeval

import (
	"fmt"
	"path"
	"sort"
)

// Version is the builder version reported for every task configuration.
const Version = "1.1.0"

// Homepage of the benchmark release the task table mirrors.
const Homepage = "https://github.com/ZeweiChu/DiscoEval"

// LabelField is the fixed key under which every example carries its label.
const LabelField = "label"

// Family groups tasks that share arity, vocabulary and file layout.
type Family int

const (
	FamilySP Family = iota + 1
	FamilyBSO
	FamilyDC
	FamilyRST
	FamilyPDTB
	FamilySSP
)

func (f Family) String() string {
	switch f {
	case FamilySP:
		return "SP"
	case FamilyBSO:
		return "BSO"
	case FamilyDC:
		return "DC"
	case FamilyRST:
		return "RST"
	case FamilyPDTB:
		return "PDTB"
	case FamilySSP:
		return "SSP"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Format is the storage format of a task's split files.
type Format int

const (
	FormatTSV Format = iota + 1
	FormatPickle
)

func (f Format) String() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatPickle:
		return "pickle"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FieldKind describes the value shape of a text field.
type FieldKind int

const (
	KindString FieldKind = iota + 1
	KindSequence
)

func (k FieldKind) String() string {
	if k == KindSequence {
		return "sequence<string>"
	}
	return "string"
}

// Task names. These are the only accepted configuration identifiers.
const (
	SParxiv     = "SParxiv"
	SProcstory  = "SProcstory"
	SPwiki      = "SPwiki"
	DCchat      = "DCchat"
	DCwiki      = "DCwiki"
	RST         = "RST"
	PDTBE       = "PDTB-E"
	PDTBI       = "PDTB-I"
	SSPabs      = "SSPabs"
	BSOarxiv    = "BSOarxiv"
	BSOwiki     = "BSOwiki"
	BSOrocstory = "BSOrocstory"
)

// Task is the immutable descriptor of one task configuration.
type Task struct {
	Name        string
	Family      Family
	Description string
	Fields      []string
	Kind        FieldKind
	Labels      LabelSet
	DataDir     string
	Files       SplitFiles
	Format      Format
}

// Arity is the number of text fields the task's records carry.
func (t *Task) Arity() int { return len(t.Fields) }

// Feature is one column of a task's record schema.
type Feature struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Labels []string `json:"labels,omitempty"`
}

// Features returns the record schema in column order, label last.
func (t *Task) Features() []Feature {
	out := make([]Feature, 0, len(t.Fields)+1)
	for _, name := range t.Fields {
		out = append(out, Feature{Name: name, Kind: t.Kind.String()})
	}
	return append(out, Feature{Name: LabelField, Kind: "class_label", Labels: t.Labels.Names()})
}

// Paths joins the task's data directory with its split file names. No
// existence check is made.
func (t *Task) Paths() map[Split]string {
	return map[Split]string{
		Train:      path.Join(t.DataDir, t.Files.Train),
		Validation: path.Join(t.DataDir, t.Files.Validation),
		Test:       path.Join(t.DataDir, t.Files.Test),
	}
}

// Path returns the source path of one split.
func (t *Task) Path(s Split) (string, error) {
	name, err := t.Files.Name(s)
	if err != nil {
		return "", err
	}
	return path.Join(t.DataDir, name), nil
}

// familyLayout carries what every task of a family shares.
type familyLayout struct {
	fields int
	kind   FieldKind
	labels LabelSet
	root   string
	files  SplitFiles
	format Format
}

var layouts = map[Family]familyLayout{
	FamilySP:   {fields: 5, kind: KindString, labels: spLabels, root: "data/SP", files: textFiles, format: FormatTSV},
	FamilyBSO:  {fields: 2, kind: KindString, labels: bsoLabels, root: "data/BSO", files: textFiles, format: FormatTSV},
	FamilyDC:   {fields: 6, kind: KindString, labels: dcLabels, root: "data/DC", files: textFiles, format: FormatTSV},
	FamilyRST:  {fields: 2, kind: KindSequence, labels: rstLabels, root: "data/RST", files: rstFiles, format: FormatPickle},
	FamilyPDTB: {fields: 2, kind: KindString, root: "data/PDTB", files: textFiles, format: FormatTSV},
	FamilySSP:  {fields: 1, kind: KindString, labels: sspLabels, root: "data/SSP/abs", files: textFiles, format: FormatTSV},
}

type taskEntry struct {
	name        string
	family      Family
	subdir      string
	description string
	labels      *LabelSet
}

var entries = []taskEntry{
	{SParxiv, FamilySP, "arxiv", "Sentence positioning dataset from arXiv", nil},
	{SProcstory, FamilySP, "rocstory", "Sentence positioning dataset from ROCStory", nil},
	{SPwiki, FamilySP, "wiki", "Sentence positioning dataset from Wikipedia", nil},
	{DCchat, FamilyDC, "chat", "Discourse Coherence dataset from chat", nil},
	{DCwiki, FamilyDC, "wiki", "Discourse Coherence dataset from Wikipedia", nil},
	{RST, FamilyRST, "", "The RST Discourse Treebank dataset", nil},
	{PDTBE, FamilyPDTB, "Explicit", "The Penn Discourse Treebank - Explicit dataset", &pdtbExplicitLabels},
	{PDTBI, FamilyPDTB, "Implicit", "The Penn Discourse Treebank - Implicit dataset", &pdtbImplicitLabels},
	{SSPabs, FamilySSP, "", "The SSP dataset", nil},
	{BSOarxiv, FamilyBSO, "arxiv", "The BSO Task with the arxiv dataset", nil},
	{BSOwiki, FamilyBSO, "wiki", "The BSO Task with the wiki dataset", nil},
	{BSOrocstory, FamilyBSO, "rocstory", "The BSO Task with the rocstory dataset", nil},
}

var registry = buildRegistry()

func buildRegistry() map[string]*Task {
	tasks := make(map[string]*Task, len(entries))
	for _, e := range entries {
		l := layouts[e.family]
		labels := l.labels
		if e.labels != nil {
			labels = *e.labels
		}
		tasks[e.name] = &Task{
			Name:        e.name,
			Family:      e.family,
			Description: e.description,
			Fields:      sentenceFields(l.fields),
			Kind:        l.kind,
			Labels:      labels,
			DataDir:     path.Join(l.root, e.subdir),
			Files:       l.files,
			Format:      l.format,
		}
	}
	return tasks
}

func sentenceFields(n int) []string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = fmt.Sprintf("sentence_%d", i+1)
	}
	return fields
}

// Lookup returns the descriptor for a task name. Unknown names fail with
// ErrUnknownTask before any I/O.
func Lookup(name string) (*Task, error) {
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	return t, nil
}

// Names lists every task name in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns every descriptor ordered by name.
func Tasks() []*Task {
	names := Names()
	out := make([]*Task, len(names))
	for i, name := range names {
		out[i] = registry[name]
	}
	return out
}
