// Package dedup detects duplicate downloads by SHA-256 content digest.
//
// An [Index] is seeded from the files already present in the output
// directory, so content downloaded in an earlier run counts as seen.
// The fetch pipeline consults the index after staging a download and
// records the digest only when the file is promoted.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Digest is a SHA-256 content digest.
type Digest [sha256.Size]byte

// String returns the hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Index is an append-only set of content digests seen so far.
// It is not safe for concurrent use; the pipeline that owns it is
// strictly sequential.
type Index struct {
	seen map[Digest]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{seen: make(map[Digest]struct{})}
}

// Seed builds an Index from the regular files already present in dir.
func Seed(dir string) (*Index, error) {
	idx := New()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading output dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		d, err := HashFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("hashing existing file %s: %w", entry.Name(), err)
		}

		idx.Add(d)
	}

	return idx, nil
}

// Contains reports whether d has been seen.
func (i *Index) Contains(d Digest) bool {
	_, ok := i.seen[d]
	return ok
}

// Add records d as seen.
func (i *Index) Add(d Digest) {
	i.seen[d] = struct{}{}
}

// Len returns the number of distinct digests recorded.
func (i *Index) Len() int {
	return len(i.seen)
}

// hashBlockSize bounds memory use while hashing, independent of file size.
const hashBlockSize = 4096

// HashFile computes the SHA-256 digest of the file at path, reading it
// sequentially in fixed-size blocks.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Digest{}, fmt.Errorf("reading file: %w", err)
		}
	}

	return Digest(h.Sum(nil)), nil
}
