// Package fetch opens DiscoEval split files from a local directory, an
// HTTP(S) mirror or an S3 bucket.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goldfish-inc/discoeval"
)

// Options configures the sources built by New.
type Options struct {
	// S3Region and S3Endpoint apply to s3:// roots. A non-empty endpoint
	// switches to path-style addressing (MinIO).
	S3Region   string
	S3Endpoint string
	// Token is sent as a bearer token to HTTP(S) roots.
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// New picks a source for root by scheme: "s3://bucket/prefix",
// "http(s)://host/path" or a local directory.
func New(ctx context.Context, root string, opts Options) (discoeval.Source, error) {
	switch {
	case strings.HasPrefix(root, "s3://"):
		bucket, prefix, err := ParseS3URL(root)
		if err != nil {
			return nil, err
		}
		return NewS3(ctx, bucket, prefix, opts)
	case strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://"):
		return NewHTTP(root, opts), nil
	default:
		return Dir{Root: root}, nil
	}
}

// Dir serves split files from a local directory tree.
type Dir struct {
	Root string
}

func (d Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p := filepath.Join(d.Root, filepath.FromSlash(name))
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", discoeval.ErrSourceNotFound, p)
		}
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return f, nil
}

// HTTP serves split files from a mirror of the data tree, e.g. a dataset
// repository's raw file endpoint.
type HTTP struct {
	BaseURL string
	Token   string
	Client  *http.Client
	log     *zap.Logger
}

// NewHTTP returns an HTTP source rooted at baseURL.
func NewHTTP(baseURL string, opts Options) *HTTP {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   opts.Token,
		Client:  client,
		log:     orNop(opts.Logger),
	}
}

// Open streams one file. The response body is returned unread; the caller
// closes it.
func (h *HTTP) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	url := h.BaseURL + "/" + strings.TrimLeft(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", discoeval.ErrSourceNotFound, url)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("download of %s failed with status %d", url, resp.StatusCode)
	}

	orNop(h.log).Debug("downloading split", zap.String("url", url), zap.Int64("content_length", resp.ContentLength))
	return resp.Body, nil
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
