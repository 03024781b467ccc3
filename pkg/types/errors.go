// Package types holds the primitives shared by every BOM codec package: the
// block descriptor, byte-order helpers, and the sentinel error kinds callers
// match against with errors.Is.
package types

import "errors"

// Sentinel error kinds. Decode failures wrap exactly one of these via
// fmt.Errorf("...: %w", ErrXxx) so callers can discriminate with errors.Is
// without parsing message text, matching the teacher's wrapped-fmt.Errorf
// idiom rather than a bespoke error type hierarchy.
var (
	ErrBadMagic          = errors.New("bad magic")
	ErrBadVersion        = errors.New("unsupported version")
	ErrBlockOutOfRange   = errors.New("block index out of range")
	ErrTreeInvariant     = errors.New("tree invariant violated")
	ErrMetadataInvariant = errors.New("metadata invariant violated")
	ErrPathInvariant     = errors.New("path invariant violated")
	ErrIO                = errors.New("io failure")
	ErrUnsupported       = errors.New("unsupported value")
)
