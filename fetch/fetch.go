package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/imgfetch/fetch/dedup"
	"github.com/adamwoolhether/imgfetch/fetch/throttle"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "imgfetch/1.0 (+https://github.com/adamwoolhether/imgfetch)"

	// maxDrainSize caps how much of a rejected response body is drained
	// for connection reuse before closing.
	maxDrainSize = 64 << 10 // 64KB
)

// Fetcher wraps the std-lib *http.Client with the download pipeline.
// It sets a default *http.Client and *http.Transport, which
// can be customized via optional funcs.
type Fetcher struct {
	c       *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
	maxSize int64
}

// Build creates a Fetcher from the given options. Defaults: a 10s
// per-request timeout, an identifying User-Agent, the [MaxImageSize]
// ceiling, [slog.Default], and a noop tracer.
func Build(optFns ...Option) (*Fetcher, error) {
	f := &Fetcher{
		c:       &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
		tracer:  noop.NewTracerProvider().Tracer("no-op tracer"),
		maxSize: MaxImageSize,
	}

	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying fetcher option: %w", err)
		}
	}

	if opts.client != nil {
		f.c = opts.client
	}

	if opts.logger != nil {
		f.logger = opts.logger
	}

	if opts.tracer != nil {
		f.tracer = opts.tracer
	}

	if opts.maxSize != nil {
		f.maxSize = *opts.maxSize
	}

	if opts.timeout != nil {
		f.c.Timeout = *opts.timeout
	}

	if opts.noFollowRedirects {
		f.c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}

	ua := defaultUserAgent
	if opts.userAgent != "" {
		ua = opts.userAgent
	}
	transport = userAgent{value: ua, base: transport}

	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(opts.throttle.RPS, opts.throttle.Burst, func() *slog.Logger { return f.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	f.c.Transport = transport

	return f, nil
}

// Run processes urls strictly in order against a single shared index;
// each URL's index mutation is visible to the next. A failed URL is
// recorded and the batch continues — no failure aborts the run.
func (f *Fetcher) Run(ctx context.Context, urls []string, dir string, index *dedup.Index) Summary {
	s := Summary{BatchID: uuid.New().String()}

	logger := f.logger.With("batch", s.BatchID)
	logger.Info("starting batch", "urls", len(urls), "dir", dir, "known", index.Len())

	for _, rawURL := range urls {
		r := f.Fetch(ctx, rawURL, dir, index)

		s.Results = append(s.Results, r)
		if r.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}

	logger.Info("batch complete", "succeeded", s.Succeeded, "failed", s.Failed)

	return s
}

// Fetch downloads a single image URL into dir, consulting and updating
// index. The body streams to `<final>.tmp` and is renamed to its final
// name only after the content hash clears the index; every failure path
// removes the staged file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string, index *dedup.Index) Result {
	ctx, span := f.tracer.Start(ctx, "fetch.image")
	span.SetAttributes(attribute.String("url", rawURL))
	defer span.End()

	filename, err := f.fetch(ctx, rawURL, dir, index)
	if err != nil {
		span.SetAttributes(attribute.String("outcome", "failure"))
		f.logger.Warn("fetch failed", "url", rawURL, "error", err)

		return Result{URL: rawURL, Err: err}
	}

	span.SetAttributes(attribute.String("outcome", "success"), attribute.String("file", filename))
	f.logger.Info("image saved", "url", rawURL, "file", filename)

	return Result{URL: rawURL, Filename: filename}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL, dir string, index *dedup.Index) (string, error) {
	if err := AdmitURL(rawURL); err != nil {
		return "", err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", failure(ErrInvalidURL, "%v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", failure(ErrInvalidURL, "instantiating request: %v", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.c.Do(req)
	if err != nil {
		return "", failure(ErrNetwork, "%v", err)
	}
	defer f.closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", failure(ErrNetwork, "unexpected status %d", resp.StatusCode)
	}

	mt := mediaType(resp.Header.Get("Content-Type"))
	if err := admit(mt, resp.ContentLength, f.maxSize); err != nil {
		return "", err
	}

	finalPath := uniquePath(dir, finalName(u, mt, time.Now()))
	tmpPath := finalPath + ".tmp"

	if err := f.stage(resp.Body, tmpPath); err != nil {
		return "", err
	}

	digest, err := dedup.HashFile(tmpPath)
	if err != nil {
		return "", f.discard(tmpPath, failure(ErrProcessing, "hashing staged file: %v", err))
	}

	if index.Contains(digest) {
		return "", f.discard(tmpPath, failure(ErrDuplicate, "content matches an already stored image"))
	}

	// Single rename; no observer ever sees a half-promoted file.
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", f.discard(tmpPath, failure(ErrProcessing, "promoting staged file: %v", err))
	}

	index.Add(digest)

	return filepath.Base(finalPath), nil
}

// stage streams body into tmpPath, enforcing the size ceiling on the
// actual bytes received, not just the declared length. The file is
// fsynced and closed on success and removed on any failure.
func (f *Fetcher) stage(body io.Reader, tmpPath string) error {
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return failure(ErrProcessing, "creating staged file: %v", err)
	}

	var successful bool
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			f.logger.Error("defer closing staged file", "error", err)
		}
		if !successful {
			if err := os.Remove(tmpPath); err != nil {
				f.logger.Error("failed to remove staged file", "error", err)
			}
		}
	}()

	n, err := io.Copy(file, io.LimitReader(body, f.maxSize+1))
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return failure(ErrProcessing, "writing staged file: %v", err)
		}

		return failure(ErrNetwork, "reading response body: %v", err)
	}

	if n > f.maxSize {
		return failure(ErrFileTooLarge, "body exceeds %d bytes", f.maxSize)
	}

	if err := file.Sync(); err != nil {
		return failure(ErrProcessing, "syncing staged file: %v", err)
	}
	if err := file.Close(); err != nil {
		return failure(ErrProcessing, "closing staged file: %v", err)
	}

	successful = true

	return nil
}

// discard removes a staged file after a rejected or failed download.
// A removal failure is surfaced in the error detail but never replaces
// the original cause.
func (f *Fetcher) discard(tmpPath string, cause *Error) error {
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		f.logger.Error("failed to remove staged file", "path", tmpPath, "error", err)
		cause.Detail = fmt.Sprintf("%s (cleanup failed: %v)", cause.Detail, err)
	}

	return cause
}

// closeBody drains at most maxDrainSize of an unused body before
// closing, keeping the connection reusable without an unbounded read.
func (f *Fetcher) closeBody(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, io.LimitReader(body, maxDrainSize)); err != nil {
		f.logger.Error("failed to discard unused body", "error", err)
	}
	if err := body.Close(); err != nil {
		f.logger.Error("failed to close response body", "error", err)
	}
}
