package discoeval

import "fmt"

// LabelPolicy says how a raw label token becomes a vocabulary entry.
type LabelPolicy int

const (
	// PolicyDirect uses the raw token verbatim.
	PolicyDirect LabelPolicy = iota + 1
	// PolicyLookup translates the raw token through a family table.
	PolicyLookup
)

func (p LabelPolicy) String() string {
	switch p {
	case PolicyDirect:
		return "direct"
	case PolicyLookup:
		return "lookup"
	default:
		return fmt.Sprintf("LabelPolicy(%d)", int(p))
	}
}

// LabelSet is an ordered class-label vocabulary plus the policy used to map
// raw source tokens onto it.
type LabelSet struct {
	names  []string
	index  map[string]int
	policy LabelPolicy
	lookup map[string]string
}

func newLabelSet(policy LabelPolicy, names []string, lookup map[string]string) LabelSet {
	index := make(map[string]int, len(names))
	for i, n := range names {
		if _, dup := index[n]; dup {
			panic("discoeval: duplicate label " + n)
		}
		index[n] = i
	}
	for token, name := range lookup {
		if _, ok := index[name]; !ok {
			panic(fmt.Sprintf("discoeval: lookup token %q maps to unknown label %q", token, name))
		}
	}
	return LabelSet{names: names, index: index, policy: policy, lookup: lookup}
}

// Names returns a copy of the vocabulary in class-index order.
func (s LabelSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Len is the vocabulary size.
func (s LabelSet) Len() int { return len(s.names) }

// Policy reports how raw tokens are resolved.
func (s LabelSet) Policy() LabelPolicy { return s.policy }

// Index returns the class index of a vocabulary entry.
func (s LabelSet) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Resolve maps a raw source token to its vocabulary entry and class index.
func (s LabelSet) Resolve(token string) (string, int, error) {
	name := token
	if s.policy == PolicyLookup {
		mapped, ok := s.lookup[token]
		if !ok {
			return "", 0, fmt.Errorf("%w: label token %q has no mapping", ErrMalformedRecord, token)
		}
		name = mapped
	}
	id, ok := s.index[name]
	if !ok {
		return "", 0, fmt.Errorf("%w: label %q not in vocabulary", ErrMalformedRecord, name)
	}
	return name, id, nil
}

// binaryTokens covers the encodings seen across releases of the binary tasks.
var binaryTokens = map[string]string{
	"0": "0", "1": "1",
	"no": "0", "yes": "1",
	"false": "0", "true": "1",
	"False": "0", "True": "1",
}

var (
	spLabels  = newLabelSet(PolicyDirect, []string{"0", "1", "2", "3", "4"}, nil)
	bsoLabels = newLabelSet(PolicyLookup, []string{"0", "1"}, binaryTokens)
	dcLabels  = newLabelSet(PolicyLookup, []string{"0", "1"}, binaryTokens)
	sspLabels = newLabelSet(PolicyLookup, []string{"0", "1"}, binaryTokens)

	pdtbExplicitLabels = newLabelSet(PolicyDirect, []string{
		"Comparison.Concession",
		"Comparison.Contrast",
		"Contingency.Cause",
		"Contingency.Condition",
		"Contingency.Pragmatic condition",
		"Expansion.Alternative",
		"Expansion.Conjunction",
		"Expansion.Instantiation",
		"Expansion.List",
		"Expansion.Restatement",
		"Temporal.Asynchronous",
		"Temporal.Synchrony",
	}, nil)

	pdtbImplicitLabels = newLabelSet(PolicyDirect, []string{
		"Comparison.Concession",
		"Comparison.Contrast",
		"Contingency.Cause",
		"Contingency.Pragmatic cause",
		"Expansion.Alternative",
		"Expansion.Conjunction",
		"Expansion.Instantiation",
		"Expansion.List",
		"Expansion.Restatement",
		"Temporal.Asynchronous",
		"Temporal.Synchrony",
	}, nil)

	rstLabels = newLabelSet(PolicyDirect, []string{
		"NS-Explanation",
		"NS-Evaluation",
		"NN-Condition",
		"NS-Summary",
		"SN-Cause",
		"SN-Background",
		"NS-Background",
		"SN-Summary",
		"NS-Topic-Change",
		"NN-Explanation",
		"SN-Topic-Comment",
		"NS-Elaboration",
		"SN-Attribution",
		"SN-Manner-Means",
		"NN-Evaluation",
		"NS-Comparison",
		"NS-Contrast",
		"SN-Condition",
		"NS-Temporal",
		"NS-Enablement",
		"SN-Evaluation",
		"NN-Topic-Comment",
		"NN-Temporal",
		"NN-Textual-organization",
		"NN-Same-unit",
		"NN-Comparison",
		"NN-Topic-Change",
		"SN-Temporal",
		"NN-Joint",
		"SN-Enablement",
		"SN-Explanation",
		"NN-Contrast",
		"NN-Cause",
		"SN-Contrast",
		"NS-Attribution",
		"NS-Topic-Comment",
		"SN-Elaboration",
		"SN-Comparison",
		"NS-Cause",
		"NS-Condition",
		"NS-Manner-Means",
	}, nil)
)
