// Per-axis selection arithmetic. Every operation takes canonical span lists
// (or builds them) and returns canonical span lists, so results feed straight
// into interval-tree insertion.

package cal

import "sort"

// AntAdd returns the canonical union of two antenna selections.
func AntAdd(a, b SpanList) (SpanList, error) { return addSpans(a, b) }

// AntSub returns the canonical difference a \ b of two antenna selections.
func AntSub(a, b SpanList) (SpanList, error) { return subSpans(a, b) }

// FieldAdd returns the canonical union of two field selections.
func FieldAdd(a, b SpanList) (SpanList, error) { return addSpans(a, b) }

// FieldSub returns the canonical difference a \ b of two field selections.
func FieldSub(a, b SpanList) (SpanList, error) { return subSpans(a, b) }

func addSpans(a, b SpanList) (SpanList, error) {
	if err := validateSpans(a); err != nil {
		return nil, err
	}
	if err := validateSpans(b); err != nil {
		return nil, err
	}
	return spansUnion(a, b), nil
}

func subSpans(a, b SpanList) (SpanList, error) {
	if err := validateSpans(a); err != nil {
		return nil, err
	}
	if err := validateSpans(b); err != nil {
		return nil, err
	}
	return spansSub(a, b), nil
}

// IntentAdd returns the sorted, deduplicated union of two intent sets.
func IntentAdd(a, b []string) []string {
	return normalizeIntents(append(append([]string{}, a...), b...))
}

// IntentSub returns the sorted difference a \ b of two intent sets.
func IntentSub(a, b []string) []string {
	drop := make(map[string]bool, len(b))
	for _, n := range b {
		drop[n] = true
	}
	var out []string
	for _, n := range normalizeIntents(a) {
		if !drop[n] {
			out = append(out, n)
		}
	}
	return out
}

// SpwSelection is a spectral-window selection together with an optional
// per-spw channel restriction. Channels appear when a spw has been virtually
// split; spw arithmetic must keep the channel maps of merged members
// compatible or fail, never silently widen or narrow them.
type SpwSelection struct {
	Spans    SpanList
	Channels map[int]SpanList
}

// SpwIDs builds a channel-free spw selection from explicit ids.
func SpwIDs(ids ...int) SpwSelection {
	return SpwSelection{Spans: SequenceToSpans(ids)}
}

// SpwAdd returns the union of two spw selections. For any spw carrying a
// channel restriction on both sides, the restrictions must be identical or
// one must cover the other; otherwise the add fails with
// IncompatibleSpwMapError and the caller falls back to a coarser match.
func SpwAdd(a, b SpwSelection) (SpwSelection, error) {
	spans, err := addSpans(a.Spans, b.Spans)
	if err != nil {
		return SpwSelection{}, err
	}
	channels, err := mergeChannelMaps(a.Channels, b.Channels)
	if err != nil {
		return SpwSelection{}, err
	}
	return SpwSelection{Spans: spans, Channels: channels}, nil
}

// SpwSub returns the difference a \ b of two spw selections. Channel
// restrictions survive only for spws that remain in the result.
func SpwSub(a, b SpwSelection) (SpwSelection, error) {
	spans, err := subSpans(a.Spans, b.Spans)
	if err != nil {
		return SpwSelection{}, err
	}
	var channels map[int]SpanList
	for spw, chans := range a.Channels {
		kept := false
		for _, s := range spans {
			if s.contains(spw) {
				kept = true
				break
			}
		}
		if kept {
			if channels == nil {
				channels = make(map[int]SpanList)
			}
			channels[spw] = chans
		}
	}
	return SpwSelection{Spans: spans, Channels: channels}, nil
}

// mergeChannelMaps unions two per-spw channel maps. Where both sides restrict
// the same spw the lists must be equal or one must contain the other, in
// which case the wider list wins.
func mergeChannelMaps(a, b map[int]SpanList) (map[int]SpanList, error) {
	if len(a) == 0 && len(b) == 0 {
		return nil, nil
	}
	out := make(map[int]SpanList, len(a)+len(b))
	for spw, chans := range a {
		out[spw] = chans
	}

	spws := make([]int, 0, len(b))
	for spw := range b {
		spws = append(spws, spw)
	}
	sort.Ints(spws)

	for _, spw := range spws {
		chans := b[spw]
		existing, ok := out[spw]
		if !ok {
			out[spw] = chans
			continue
		}
		switch {
		case spansEqual(existing, chans):
		case spansContain(existing, chans):
		case spansContain(chans, existing):
			out[spw] = chans
		default:
			return nil, &IncompatibleSpwMapError{
				Spw: spw,
				Msg: "channel lists " + existing.String() + " and " + chans.String() + " are neither equal nor nested",
			}
		}
	}
	return out, nil
}

// spansContain reports whether outer covers every id in inner.
func spansContain(outer, inner SpanList) bool {
	return len(spansSub(inner, outer)) == 0
}
