package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldfish-inc/discoeval"
)

func TestDirOpen(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "data", "SSP", "abs")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.txt"), []byte("1\tabstract sentence\n"), 0o644))

	src, err := New(context.Background(), root, Options{})
	require.NoError(t, err)
	require.IsType(t, Dir{}, src)

	task, err := discoeval.Lookup(discoeval.SSPabs)
	require.NoError(t, err)

	got, err := discoeval.ReadAll(context.Background(), src, task, discoeval.Train)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abstract sentence", got[0].Fields[0].Text)

	_, err = discoeval.ReadAll(context.Background(), src, task, discoeval.Test)
	assert.ErrorIs(t, err, discoeval.ErrSourceNotFound)
}

func TestHTTPOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf_secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/mirror/data/BSO/wiki/valid.txt":
			_, _ = io.WriteString(w, "0\tone\ttwo\n1\tthree\tfour\n")
		case "/mirror/data/BSO/wiki/test.txt":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := New(context.Background(), srv.URL+"/mirror/", Options{Token: "hf_secret"})
	require.NoError(t, err)
	require.IsType(t, &HTTP{}, src)

	task, err := discoeval.Lookup(discoeval.BSOwiki)
	require.NoError(t, err)

	got, err := discoeval.ReadAll(context.Background(), src, task, discoeval.Validation)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = discoeval.ReadAll(context.Background(), src, task, discoeval.Train)
	assert.ErrorIs(t, err, discoeval.ErrSourceNotFound)

	_, err = discoeval.ReadAll(context.Background(), src, task, discoeval.Test)
	require.Error(t, err)
	assert.False(t, errors.Is(err, discoeval.ErrSourceNotFound))
	assert.Contains(t, err.Error(), "status 500")
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://bench", "bench", "", true},
		{"s3://bench/discoeval/v1/", "bench", "discoeval/v1", true},
		{"s3:///nobucket", "", "", false},
		{"https://bench/discoeval", "", "", false},
	}
	for _, tt := range tests {
		bucket, prefix, err := ParseS3URL(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.bucket, bucket)
		assert.Equal(t, tt.prefix, prefix)
	}
}

type fakeS3 struct {
	objects map[string]string
	puts    map[string][]byte
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts[*in.Bucket+"/"+*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3OpenAndPut(t *testing.T) {
	api := &fakeS3{
		objects: map[string]string{
			"bench/discoeval/data/PDTB/Explicit/train.txt": "Expansion.List\tfirst arg\tsecond arg\n",
		},
		puts: map[string][]byte{},
	}
	src := &S3{Client: api, Bucket: "bench", Prefix: "discoeval"}

	task, err := discoeval.Lookup(discoeval.PDTBE)
	require.NoError(t, err)

	got, err := discoeval.ReadAll(context.Background(), src, task, discoeval.Train)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Expansion.List", got[0].Label)

	_, err = discoeval.ReadAll(context.Background(), src, task, discoeval.Validation)
	assert.ErrorIs(t, err, discoeval.ErrSourceNotFound)

	key, err := src.Put(context.Background(), "exports/PDTB-E.xlsx", bytes.NewReader([]byte("xlsx")), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "discoeval/exports/PDTB-E.xlsx", key)
	assert.Equal(t, []byte("xlsx"), api.puts["bench/discoeval/exports/PDTB-E.xlsx"])
}
