package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/goldfish-inc/discoeval"
	"github.com/goldfish-inc/discoeval/fetch"
)

func writeTree(t *testing.T, files map[string]string) fetch.Dir {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return fetch.Dir{Root: root}
}

func bsoTree(t *testing.T) fetch.Dir {
	return writeTree(t, map[string]string{
		"data/BSO/wiki/train.txt": "0\ta\tb\n1\tc\td\n0\te\tf\n",
		"data/BSO/wiki/valid.txt": "1\tg\th\n",
		"data/BSO/wiki/test.txt":  "0\ti\tj\n1\tk\tl\n",
	})
}

func TestLoadSplitsJSONL(t *testing.T) {
	src := bsoTree(t)
	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	var out bytes.Buffer
	counts, err := LoadSplits(context.Background(), src, task, discoeval.Splits, NewJSONL(&out, 0), 0)
	require.NoError(t, err)
	assert.Equal(t, map[discoeval.Split]int{
		discoeval.Train:      3,
		discoeval.Validation: 1,
		discoeval.Test:       2,
	}, counts)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	for _, line := range lines {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		assert.Len(t, m, 4) // key, sentence_1, sentence_2, label
	}
}

func TestJSONLLimit(t *testing.T) {
	src := bsoTree(t)
	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	var out bytes.Buffer
	counts, err := LoadSplits(context.Background(), src, task, []discoeval.Split{discoeval.Train}, NewJSONL(&out, 2), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[discoeval.Train])
	assert.Equal(t, `{"key":0,"label":"0","sentence_1":"a","sentence_2":"b"}`+"\n"+
		`{"key":1,"label":"1","sentence_1":"c","sentence_2":"d"}`+"\n", out.String())
}

func TestLoadSplitsStopsOnMalformedSplit(t *testing.T) {
	src := writeTree(t, map[string]string{
		"data/BSO/wiki/train.txt": "0\ta\tb\n",
		"data/BSO/wiki/valid.txt": "1\tonly one column\n",
		"data/BSO/wiki/test.txt":  "0\ti\tj\n",
	})
	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = LoadSplits(context.Background(), src, task, discoeval.Splits, NewJSONL(&out, 0), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, discoeval.ErrMalformedRecord)
	assert.Contains(t, err.Error(), "BSOwiki/validation")
}

func TestLoadSplitsMissingFile(t *testing.T) {
	src := writeTree(t, map[string]string{"data/BSO/wiki/train.txt": "0\ta\tb\n"})
	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	_, err = LoadSplits(context.Background(), src, task, discoeval.Splits, NewJSONL(&bytes.Buffer{}, 0), 0)
	assert.ErrorIs(t, err, discoeval.ErrSourceNotFound)
}

type openRecorder struct {
	*JSONL
	mu     sync.Mutex
	failed map[discoeval.Split]error
}

func (o *openRecorder) OpenFailed(_ *discoeval.Task, split discoeval.Split, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[split] = err
}

func TestLoadSplitsReportsOpenFailures(t *testing.T) {
	src := writeTree(t, map[string]string{"data/BSO/wiki/train.txt": "0\ta\tb\n"})
	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	rec := &openRecorder{JSONL: NewJSONL(&bytes.Buffer{}, 0), failed: map[discoeval.Split]error{}}
	_, err = LoadSplits(context.Background(), src, task, []discoeval.Split{discoeval.Test}, rec, 1)
	require.ErrorIs(t, err, discoeval.ErrSourceNotFound)

	require.Contains(t, rec.failed, discoeval.Test)
	assert.ErrorIs(t, rec.failed[discoeval.Test], discoeval.ErrSourceNotFound)
}

func TestWorkbook(t *testing.T) {
	src := bsoTree(t)
	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	wb := NewWorkbook()
	defer wb.Close()
	_, err = LoadSplits(context.Background(), src, task, discoeval.Splits, wb, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = wb.WriteTo(&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"train", "validation", "test"}, f.GetSheetList())

	rows, err := f.GetRows("train")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"key", "sentence_1", "sentence_2", "label", "label_id"}, rows[0])
	assert.Equal(t, []string{"1", "c", "d", "1", "1"}, rows[2])
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "plain", cellText(discoeval.Field{Text: "plain"}))
	assert.Equal(t, "a\nb", cellText(discoeval.Field{Sequence: []string{"a", "b"}}))
}

func TestExampleRow(t *testing.T) {
	run := uuid.MustParse("6f1c2d8e-6f38-4b8e-9a55-0f3c7d0c9a11")
	ex := discoeval.Example{
		Key:     7,
		Names:   []string{"sentence_1", "sentence_2"},
		Fields:  []discoeval.Field{{Sequence: []string{"x", "y"}}, {Text: "z"}},
		Label:   "NN-Joint",
		LabelID: 28,
	}

	row, err := exampleRow(run, discoeval.RST, discoeval.Test, ex)
	require.NoError(t, err)
	require.Len(t, row, 7)
	assert.Equal(t, run.String(), row[0])
	assert.Equal(t, "RST", row[1])
	assert.Equal(t, "test", row[2])
	assert.Equal(t, 7, row[3])
	assert.JSONEq(t, `{"sentence_1":["x","y"],"sentence_2":"z"}`, row[4].(string))
	assert.Equal(t, "NN-Joint", row[5])
	assert.Equal(t, 28, row[6])
}

// TestPostgresLoad needs a scratch database; it runs only when
// DISCOEVAL_TEST_DATABASE_URL is set.
func TestPostgresLoad(t *testing.T) {
	dsn := os.Getenv("DISCOEVAL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DISCOEVAL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	db, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()

	pg := NewPostgres(db, uuid.New(), nil)
	require.NoError(t, pg.EnsureSchema(ctx))

	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)
	counts, err := LoadSplits(ctx, bsoTree(t), task, discoeval.Splits, pg, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[discoeval.Train])

	var stored int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM discoeval.examples WHERE run_id = $1`, pg.RunID().String(),
	).Scan(&stored))
	assert.Equal(t, 6, stored)
}
