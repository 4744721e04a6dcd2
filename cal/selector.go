// Selection predicates for the discrete measurement axes. A Selector is a
// tagged variant: the zero value selects the whole axis ("*" in the external
// tool's syntax), or it carries an explicit canonical span list.

package cal

import "sort"

// openSpanHi bounds a full-axis selector when the vis shape is unknown.
// Large enough that every real id set sits strictly inside it.
const openSpanHi = 1<<31 - 1

// Selector selects ids along one axis (antenna, spw or field).
// The zero value selects everything.
type Selector struct {
	explicit bool
	spans    SpanList
}

// AllIDs returns the full-axis selector.
func AllIDs() Selector { return Selector{} }

// IDList builds a selector from explicit ids. Duplicates and ordering are
// irrelevant; the result is canonical.
func IDList(ids ...int) Selector {
	return Selector{explicit: true, spans: SequenceToSpans(ids)}
}

// SpanSel builds a selector from spans, normalizing them. Malformed spans
// fail with a SelectionError.
func SpanSel(spans ...Span) (Selector, error) {
	if err := validateSpans(spans); err != nil {
		return Selector{}, err
	}
	return Selector{explicit: true, spans: MergeContiguousSpans(spans)}, nil
}

// IsAll reports whether the selector covers the entire axis.
func (s Selector) IsAll() bool { return !s.explicit }

// Normalize converts the selector to canonical span form. domain is the axis
// size from the vis shape; a full-axis selector with domain n normalizes to
// [0, n-1], which compares equal to an explicit full-range id set. With
// domain <= 0 (shape unknown) the full-axis selector normalizes to the open
// span, and explicit selections pass through unchanged.
func (s Selector) Normalize(domain int) SpanList {
	if !s.explicit {
		if domain > 0 {
			return SpanList{{Lo: 0, Hi: domain - 1}}
		}
		return SpanList{{Lo: 0, Hi: openSpanHi}}
	}
	return s.spans
}

func (s Selector) String() string {
	if !s.explicit {
		return "*"
	}
	return s.spans.String()
}

// IntentSelector selects observing intents by name. The zero value selects
// every intent. Intents stay as set predicates on the payload rather than a
// tree axis unless the tree was built with a dedicated intent dimension.
type IntentSelector struct {
	explicit bool
	intents  []string // sorted, deduped
}

// AllIntents returns the full intent selector.
func AllIntents() IntentSelector { return IntentSelector{} }

// Intents builds an explicit intent selector.
func Intents(names ...string) IntentSelector {
	return IntentSelector{explicit: true, intents: normalizeIntents(names)}
}

func normalizeIntents(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	out := sorted[:1]
	for _, n := range sorted[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

// IsAll reports whether the selector covers every intent.
func (s IntentSelector) IsAll() bool { return !s.explicit }

// Names returns the explicit intent names (nil when IsAll).
func (s IntentSelector) Names() []string { return s.intents }

// Matches reports whether the two intent predicates share at least one
// intent. A full selector matches everything, including the empty one.
func (s IntentSelector) Matches(o IntentSelector) bool {
	if !s.explicit || !o.explicit {
		return true
	}
	i, j := 0, 0
	for i < len(s.intents) && j < len(o.intents) {
		switch {
		case s.intents[i] == o.intents[j]:
			return true
		case s.intents[i] < o.intents[j]:
			i++
		default:
			j++
		}
	}
	return false
}

func (s IntentSelector) equal(o IntentSelector) bool {
	if s.explicit != o.explicit || len(s.intents) != len(o.intents) {
		return false
	}
	for i := range s.intents {
		if s.intents[i] != o.intents[i] {
			return false
		}
	}
	return true
}

func (s IntentSelector) String() string {
	if !s.explicit {
		return "*"
	}
	out := ""
	for i, n := range s.intents {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

// VisShape describes the domain extents of one visibility dataset: how many
// antennas, spectral windows and fields it holds and which intents it was
// observed with. Registered with a CalState so full-axis selectors expand to
// concrete, comparable id ranges.
type VisShape struct {
	Vis       string   `yaml:"vis"`
	NAntennas int      `yaml:"nantennas"`
	NSpws     int      `yaml:"nspws"`
	NFields   int      `yaml:"nfields"`
	Intents   []string `yaml:"intents,omitempty"`
}

func (s VisShape) isZero() bool {
	return s.Vis == "" && s.NAntennas == 0 && s.NSpws == 0 && s.NFields == 0 && len(s.Intents) == 0
}

// Selection is a per-axis predicate without a vis binding, used as the
// valid-data envelope for trim operations.
type Selection struct {
	Antenna Selector
	Spw     Selector
	Field   Selector
	Intent  IntentSelector
}
