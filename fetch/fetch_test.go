package fetch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/imgfetch/fetch"
	"github.com/adamwoolhether/imgfetch/fetch/dedup"
)

func newFetcher(t *testing.T, opts ...fetch.Option) *fetch.Fetcher {
	t.Helper()

	opts = append(opts, fetch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	f, err := fetch.Build(opts...)
	if err != nil {
		t.Fatalf("failed to build fetcher: %v", err)
	}

	return f
}

func imageServer(t *testing.T, contentType string, body []byte) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(body)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func assertNoStagedFiles(t *testing.T, dir string) {
	t.Helper()

	staged, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("globbing staged files: %v", err)
	}
	if len(staged) != 0 {
		t.Errorf("staged files left behind: %v", staged)
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}

	return len(entries)
}

func TestFetch_Success(t *testing.T) {
	body := bytes.Repeat([]byte("p"), 2000)
	ts := imageServer(t, "image/png", body)
	dir := t.TempDir()
	index := dedup.New()

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/cat.png", dir, index)
	if !r.OK() {
		t.Fatalf("expected success, got: %v", r.Err)
	}
	if r.Filename != "cat.png" {
		t.Errorf("Filename = %q, want %q", r.Filename, "cat.png")
	}

	saved, err := os.ReadFile(filepath.Join(dir, "cat.png"))
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if diff := cmp.Diff(body, saved); diff != "" {
		t.Errorf("saved content mismatch (-want +got):\n%s", diff)
	}

	if index.Len() != 1 {
		t.Errorf("index.Len() = %d, want 1", index.Len())
	}
	assertNoStagedFiles(t, dir)
}

func TestFetch_DuplicateSameURL(t *testing.T) {
	ts := imageServer(t, "image/png", []byte("identical bytes"))
	dir := t.TempDir()
	index := dedup.New()

	f := newFetcher(t)

	if r := f.Fetch(context.Background(), ts.URL+"/cat.png", dir, index); !r.OK() {
		t.Fatalf("first fetch failed: %v", r.Err)
	}

	r := f.Fetch(context.Background(), ts.URL+"/cat.png", dir, index)
	if r.OK() {
		t.Fatal("second fetch should have been rejected")
	}
	if !errors.Is(r.Err, fetch.ErrDuplicate) {
		t.Errorf("exp ErrDuplicate, got: %v", r.Err)
	}

	if got := countFiles(t, dir); got != 1 {
		t.Errorf("file count = %d, want 1", got)
	}
	if index.Len() != 1 {
		t.Errorf("index.Len() = %d, want 1", index.Len())
	}
	assertNoStagedFiles(t, dir)
}

func TestFetch_DuplicateContentUnderDifferentName(t *testing.T) {
	ts := imageServer(t, "image/png", []byte("same content everywhere"))
	dir := t.TempDir()
	index := dedup.New()

	f := newFetcher(t)

	if r := f.Fetch(context.Background(), ts.URL+"/a.png", dir, index); !r.OK() {
		t.Fatalf("first fetch failed: %v", r.Err)
	}

	r := f.Fetch(context.Background(), ts.URL+"/b.png", dir, index)
	if !errors.Is(r.Err, fetch.ErrDuplicate) {
		t.Errorf("exp ErrDuplicate, got: %v", r.Err)
	}

	if got := countFiles(t, dir); got != 1 {
		t.Errorf("file count = %d, want 1", got)
	}
}

func TestFetch_InvalidContentType(t *testing.T) {
	ts := imageServer(t, "text/html", []byte("<html>not an image</html>"))
	dir := t.TempDir()

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/cat.png", dir, dedup.New())
	if !errors.Is(r.Err, fetch.ErrInvalidContentType) {
		t.Errorf("exp ErrInvalidContentType, got: %v", r.Err)
	}

	if got := countFiles(t, dir); got != 0 {
		t.Errorf("file count = %d, want 0", got)
	}
	assertNoStagedFiles(t, dir)
}

func TestFetch_DeclaredTooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "20000000")
	}))
	t.Cleanup(ts.Close)
	dir := t.TempDir()

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/big.jpg", dir, dedup.New())
	if !errors.Is(r.Err, fetch.ErrFileTooLarge) {
		t.Errorf("exp ErrFileTooLarge, got: %v", r.Err)
	}

	if got := countFiles(t, dir); got != 0 {
		t.Errorf("file count = %d, want 0", got)
	}
}

func TestFetch_StreamedBodyTooLarge(t *testing.T) {
	// Chunked response with no declared length, so the header check
	// passes and the ceiling has to be enforced mid-stream.
	chunk := bytes.Repeat([]byte("a"), 600)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		fl := w.(http.Flusher)
		w.Write(chunk)
		fl.Flush()
		w.Write(chunk)
		fl.Flush()
	}))
	t.Cleanup(ts.Close)
	dir := t.TempDir()

	f := newFetcher(t, fetch.WithMaxSize(1024))

	r := f.Fetch(context.Background(), ts.URL+"/sneaky.png", dir, dedup.New())
	if !errors.Is(r.Err, fetch.ErrFileTooLarge) {
		t.Errorf("exp ErrFileTooLarge, got: %v", r.Err)
	}

	if got := countFiles(t, dir); got != 0 {
		t.Errorf("file count = %d, want 0", got)
	}
	assertNoStagedFiles(t, dir)
}

func TestFetch_SynthesizedFilename(t *testing.T) {
	ts := imageServer(t, "image/jpeg", []byte("jpeg bytes"))
	dir := t.TempDir()

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/", dir, dedup.New())
	if !r.OK() {
		t.Fatalf("expected success, got: %v", r.Err)
	}

	want := regexp.MustCompile(`^image_\d{8}_\d{6}\.jpg$`)
	if !want.MatchString(r.Filename) {
		t.Errorf("Filename = %q, want match for %s", r.Filename, want)
	}
}

func TestFetch_NameCollision(t *testing.T) {
	ts := imageServer(t, "image/png", []byte("new cat"))
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "cat.png"), []byte("old cat"), 0o644); err != nil {
		t.Fatalf("writing existing file: %v", err)
	}

	index, err := dedup.Seed(dir)
	if err != nil {
		t.Fatalf("seeding index: %v", err)
	}

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/cat.png", dir, index)
	if !r.OK() {
		t.Fatalf("expected success, got: %v", r.Err)
	}
	if r.Filename != "cat_1.png" {
		t.Errorf("Filename = %q, want %q", r.Filename, "cat_1.png")
	}

	old, err := os.ReadFile(filepath.Join(dir, "cat.png"))
	if err != nil {
		t.Fatalf("reading original file: %v", err)
	}
	if !bytes.Equal(old, []byte("old cat")) {
		t.Error("original file was overwritten")
	}
}

func TestFetch_SeededIndexRejectsKnownContent(t *testing.T) {
	body := []byte("seen in an earlier run")
	ts := imageServer(t, "image/png", body)
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "previous.png"), body, 0o644); err != nil {
		t.Fatalf("writing existing file: %v", err)
	}

	index, err := dedup.Seed(dir)
	if err != nil {
		t.Fatalf("seeding index: %v", err)
	}

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/fresh.png", dir, index)
	if !errors.Is(r.Err, fetch.ErrDuplicate) {
		t.Errorf("exp ErrDuplicate, got: %v", r.Err)
	}

	if got := countFiles(t, dir); got != 1 {
		t.Errorf("file count = %d, want 1", got)
	}
	assertNoStagedFiles(t, dir)
}

func TestFetch_Non2xxStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(ts.Close)
	dir := t.TempDir()

	f := newFetcher(t)

	r := f.Fetch(context.Background(), ts.URL+"/gone.png", dir, dedup.New())
	if !errors.Is(r.Err, fetch.ErrNetwork) {
		t.Errorf("exp ErrNetwork, got: %v", r.Err)
	}
}

func TestFetch_TransportError(t *testing.T) {
	ts := imageServer(t, "image/png", []byte("unreachable"))
	rawURL := ts.URL + "/cat.png"
	ts.Close()

	f := newFetcher(t)

	r := f.Fetch(context.Background(), rawURL, t.TempDir(), dedup.New())
	if !errors.Is(r.Err, fetch.ErrNetwork) {
		t.Errorf("exp ErrNetwork, got: %v", r.Err)
	}
}

func TestFetch_RejectsNonHTTPScheme(t *testing.T) {
	f := newFetcher(t)

	r := f.Fetch(context.Background(), "ftp://example.com/cat.png", t.TempDir(), dedup.New())
	if !errors.Is(r.Err, fetch.ErrInvalidURL) {
		t.Errorf("exp ErrInvalidURL, got: %v", r.Err)
	}
}

func TestRun_SummaryOrderAndCounts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.png", "/dup.png":
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "shared bytes")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	dir := t.TempDir()

	f := newFetcher(t)

	urls := []string{
		ts.URL + "/a.png",
		ts.URL + "/dup.png",
		"ftp://example.com/nope.png",
		ts.URL + "/missing.png",
	}

	summary := f.Run(context.Background(), urls, dir, dedup.New())

	if summary.BatchID == "" {
		t.Error("expected a batch ID")
	}

	got := make([]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		if r.OK() {
			got = append(got, "ok:"+r.Filename)
			continue
		}
		got = append(got, "err:"+reasonOf(r.Err))
	}

	want := []string{
		"ok:a.png",
		"err:duplicate image detected",
		"err:invalid URL format",
		"err:network error",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	if summary.Succeeded != 1 || summary.Failed != 3 {
		t.Errorf("counts = %d/%d, want 1/3", summary.Succeeded, summary.Failed)
	}
	assertNoStagedFiles(t, dir)
}

// reasonOf maps an error back to its sentinel reason string.
func reasonOf(err error) string {
	for _, sentinel := range []error{
		fetch.ErrInvalidURL,
		fetch.ErrNetwork,
		fetch.ErrInvalidContentType,
		fetch.ErrFileTooLarge,
		fetch.ErrDuplicate,
		fetch.ErrProcessing,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return err.Error()
}
