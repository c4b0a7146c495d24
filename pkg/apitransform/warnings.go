package apitransform

// Warning is one value a conversion could not carry over to the
// destination format. The codecs report only dropped Claude thinking blocks
// this way; other fields without a destination equivalent are dropped
// without a Warning.
type Warning struct {
	Field  string
	Reason string
}

// Warnings accumulates the Warning values produced during one conversion
// call. A nil *Warnings is valid everywhere it's passed and simply discards
// warnings, so call sites that don't need diagnostics can pass nil.
type Warnings []Warning

func (w *Warnings) add(field, reason string) {
	if w == nil {
		return
	}
	*w = append(*w, Warning{Field: field, Reason: reason})
}
