// Closed integer spans and span lists — the canonical form every selection is
// reduced to before interval-tree insertion or arithmetic.

package cal

import (
	"fmt"
	"sort"
	"strings"
)

// Span is a closed integer interval [Lo, Hi]. Both endpoints are included;
// a single id n is the span [n, n].
type Span struct {
	Lo int
	Hi int
}

// NewSpan builds a span, rejecting lo > hi with a SelectionError.
func NewSpan(lo, hi int) (Span, error) {
	if lo > hi {
		return Span{}, selectionErrorf("malformed span: lo %d > hi %d", lo, hi)
	}
	return Span{Lo: lo, Hi: hi}, nil
}

func (s Span) contains(id int) bool { return id >= s.Lo && id <= s.Hi }

// overlaps reports whether two spans share at least one id.
func (s Span) overlaps(o Span) bool { return s.Lo <= o.Hi && o.Lo <= s.Hi }

// adjoins reports whether two spans overlap or touch ([0,2] adjoins [3,5]).
func (s Span) adjoins(o Span) bool { return s.Lo <= o.Hi+1 && o.Lo <= s.Hi+1 }

func (s Span) intersect(o Span) (Span, bool) {
	lo, hi := max(s.Lo, o.Lo), min(s.Hi, o.Hi)
	if lo > hi {
		return Span{}, false
	}
	return Span{Lo: lo, Hi: hi}, true
}

func (s Span) String() string {
	if s.Lo == s.Hi {
		return fmt.Sprintf("%d", s.Lo)
	}
	return fmt.Sprintf("%d~%d", s.Lo, s.Hi)
}

// SpanToSet materializes a span into the explicit list of ids it covers.
// Reporting/debugging surface; arithmetic stays in span form.
func SpanToSet(s Span) []int {
	ids := make([]int, 0, s.Hi-s.Lo+1)
	for id := s.Lo; id <= s.Hi; id++ {
		ids = append(ids, id)
	}
	return ids
}

// SpanList is an ordered, duplicate-free, maximally-coalesced list of spans.
// The zero value is the empty selection ("no match"), which is valid input
// everywhere, not an error.
type SpanList []Span

// SequenceToSpans canonicalizes an arbitrary id collection into a SpanList:
// sorted, deduplicated, contiguous runs coalesced. The required step before
// any tree insertion so extents are minimal and comparable by equality.
func SequenceToSpans(ids []int) SpanList {
	if len(ids) == 0 {
		return nil
	}
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)

	var out SpanList
	cur := Span{Lo: sorted[0], Hi: sorted[0]}
	for _, id := range sorted[1:] {
		switch {
		case id <= cur.Hi: // duplicate
		case id == cur.Hi+1:
			cur.Hi = id
		default:
			out = append(out, cur)
			cur = Span{Lo: id, Hi: id}
		}
	}
	return append(out, cur)
}

// MergeContiguousSpans normalizes a span list that may be unordered,
// overlapping or fragmented into canonical form.
func MergeContiguousSpans(spans SpanList) SpanList {
	if len(spans) == 0 {
		return nil
	}
	sorted := make(SpanList, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Lo != sorted[j].Lo {
			return sorted[i].Lo < sorted[j].Lo
		}
		return sorted[i].Hi < sorted[j].Hi
	})

	out := SpanList{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if s.adjoins(*last) {
			if s.Hi > last.Hi {
				last.Hi = s.Hi
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// ExpandSpans materializes a span list into the explicit id set it covers.
func ExpandSpans(spans SpanList) []int {
	var ids []int
	for _, s := range spans {
		ids = append(ids, SpanToSet(s)...)
	}
	return ids
}

func validateSpans(spans SpanList) error {
	for _, s := range spans {
		if s.Lo > s.Hi {
			return selectionErrorf("malformed span: lo %d > hi %d", s.Lo, s.Hi)
		}
	}
	return nil
}

// spansUnion returns the canonical union of two span lists.
func spansUnion(a, b SpanList) SpanList {
	merged := make(SpanList, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return MergeContiguousSpans(merged)
}

// spansSub returns the canonical difference a \ b.
func spansSub(a, b SpanList) SpanList {
	a = MergeContiguousSpans(a)
	b = MergeContiguousSpans(b)
	var out SpanList
	for _, s := range a {
		pieces := SpanList{s}
		for _, cut := range b {
			var next SpanList
			for _, p := range pieces {
				if !p.overlaps(cut) {
					next = append(next, p)
					continue
				}
				if p.Lo < cut.Lo {
					next = append(next, Span{Lo: p.Lo, Hi: cut.Lo - 1})
				}
				if p.Hi > cut.Hi {
					next = append(next, Span{Lo: cut.Hi + 1, Hi: p.Hi})
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	if len(out) == 0 {
		return nil
	}
	return MergeContiguousSpans(out)
}

// spansIntersect returns the canonical intersection of two span lists.
func spansIntersect(a, b SpanList) SpanList {
	var out SpanList
	for _, sa := range a {
		for _, sb := range b {
			if ov, ok := sa.intersect(sb); ok {
				out = append(out, ov)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return MergeContiguousSpans(out)
}

func spansEqual(a, b SpanList) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func spansOverlap(a, b SpanList) bool {
	for _, sa := range a {
		for _, sb := range b {
			if sa.overlaps(sb) {
				return true
			}
		}
	}
	return false
}

func (spans SpanList) String() string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}
