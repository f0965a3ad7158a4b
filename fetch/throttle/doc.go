// Package throttle provides an [http.RoundTripper] that rate-limits
// outbound HTTP requests using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// A batch of image fetches against the same host stays polite by
// wrapping the transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		2,   // requests per second
//		1,   // burst capacity
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//	httpClient := &http.Client{Transport: rt}
//
// When the rate limit is exceeded, outbound requests block until a
// token becomes available or the request context is cancelled. Most
// callers enable this through the fetch package's WithThrottle option.
package throttle
