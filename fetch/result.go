package fetch

// Result is the outcome of fetching one candidate URL.
type Result struct {
	URL      string
	Filename string // final name under the output directory, set on success
	Err      error  // nil on success; wraps one of the sentinel reasons
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Reason returns the failure reason string, or "" on success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}

	return r.Err.Error()
}

// Summary aggregates the per-URL outcomes of one batch run.
type Summary struct {
	BatchID   string
	Results   []Result // input order
	Succeeded int
	Failed    int
}
