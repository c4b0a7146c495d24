package apitransform

// ValidationError reports that an inbound request body failed a codec-level
// shape requirement (missing model, empty messages) rather than any
// upstream or internal failure. Callers map it to a 400 rather than the
// generic internal-error path.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
