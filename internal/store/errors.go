package store

import "errors"

// Error kinds distinguishable with errors.Is. I/O, encoding, and
// compression failures are wrapped with context at the call site instead;
// only the two kinds below need to be matched programmatically, because
// they signal corruption of on-disk container bytes.
var (
	// ErrFormat reports container bytes that cannot be parsed: a header of
	// the wrong width, or fewer bytes than the header width available.
	ErrFormat = errors.New("malformed container")

	// ErrConsistency reports a disagreement between lengths a container
	// declares and the bytes actually present.
	ErrConsistency = errors.New("container size mismatch")
)
