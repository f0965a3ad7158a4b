// Package fetch implements the image download pipeline: admission of
// candidate URLs, response-header validation, staged streaming to disk,
// content deduplication, and atomic promotion to the final filename.
//
// # Building a Fetcher
//
// Use [Build] to create a [Fetcher] with functional options:
//
//	f, err := fetch.Build(
//		fetch.WithTimeout(10*time.Second),
//		fetch.WithUserAgent("myapp/1.0"),
//		fetch.WithThrottle(2, 1),
//	)
//
// # Fetching
//
// Seed a duplicate index from the output directory, then run a batch:
//
//	index, err := dedup.Seed(dir)
//	summary := f.Run(ctx, urls, dir, index)
//
// Each URL resolves to a [Result]: the final filename on success, or an
// error wrapping one of the sentinel reasons ([ErrNetwork],
// [ErrInvalidContentType], [ErrFileTooLarge], [ErrDuplicate],
// [ErrProcessing]) on failure. A failed URL never aborts the batch.
//
// Downloads are staged to `<final>.tmp` in the output directory and only
// renamed to the final name after the content hash clears the duplicate
// index, so a partial or rejected download is never visible under its
// final name.
package fetch
