package cal

import "fmt"

// SelectionError reports malformed or invalid selection input: a span with
// lo > hi, an unparseable selection string, or a selection that references a
// vis with conflicting shape information. Recoverable — the calling stage
// decides whether to skip or abort.
type SelectionError struct {
	Msg string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selection error: %s", e.Msg)
}

func selectionErrorf(format string, args ...any) *SelectionError {
	return &SelectionError{Msg: fmt.Sprintf(format, args...)}
}

// IncompatibleSpwMapError reports conflicting per-spw channel maps during spw
// arithmetic. Recoverable — callers typically fall back to a coarser,
// non-channelized spw match.
type IncompatibleSpwMapError struct {
	Spw int
	Msg string
}

func (e *IncompatibleSpwMapError) Error() string {
	return fmt.Sprintf("incompatible channel map for spw %d: %s", e.Spw, e.Msg)
}

// TreeConsistencyError reports an internal invariant violation in an interval
// tree: overlapping cells, an empty payload, or a malformed extent. This is an
// engine bug, not a user error; a corrupted tree could silently mis-apply
// calibration, so callers must treat it as fatal for the affected vis.
type TreeConsistencyError struct {
	Vis string
	Msg string
}

func (e *TreeConsistencyError) Error() string {
	return fmt.Sprintf("interval tree for %q is inconsistent: %s", e.Vis, e.Msg)
}
