package release

// FunctionResult records the outcome of one auxiliary function deploy.
type FunctionResult struct {
	Name     string
	Deployed bool
	Err      error
}

// Summary is the outcome of a completed (possibly partially failed) release.
type Summary struct {
	ServiceURL string
	Tag        string
	Verified   bool
	// Functions is sorted by function name regardless of deploy order.
	Functions []FunctionResult
}
