// Package imgfetch exposes the image fetcher builder.
package imgfetch

import (
	"github.com/adamwoolhether/imgfetch/fetch"
)

// New instantiates a new *fetch.Fetcher with the provided options.
// If not specified, defaults are a 10 second per-request timeout, an
// identifying User-Agent, and the 10MiB size ceiling.
func New(opts ...fetch.Option) (*fetch.Fetcher, error) {
	return fetch.Build(opts...)
}
