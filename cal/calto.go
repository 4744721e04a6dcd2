package cal

import "fmt"

// CalTo describes the data subset a calibration applies to: one visibility
// dataset narrowed by antenna, spectral window, field and intent predicates.
// Zero-valued selectors cover their whole axis, so CalTo{Vis: "ms1"} selects
// every row of ms1. Immutable once handed to the engine.
type CalTo struct {
	Vis     string
	Antenna Selector
	Spw     Selector
	Field   Selector
	Intent  IntentSelector

	// SpwChannels optionally restricts selected spws to channel ranges when a
	// spw has been virtually split. Channels are not a tree axis; they ride
	// with the application and reappear in exported selections.
	SpwChannels map[int]SpanList
}

func (t CalTo) String() string {
	return fmt.Sprintf("vis=%s antenna=%s spw=%s field=%s intent=%s",
		t.Vis, t.Antenna, t.Spw, t.Field, t.Intent)
}

// equalNormalized compares two CalTo values after expanding full-axis
// selectors against the same shape, so "*" and an explicit full-range set
// compare equal.
func (t CalTo) equalNormalized(o CalTo, shape VisShape) bool {
	if t.Vis != o.Vis || !t.Intent.equal(o.Intent) {
		return false
	}
	return spansEqual(t.Antenna.Normalize(shape.NAntennas), o.Antenna.Normalize(shape.NAntennas)) &&
		spansEqual(t.Spw.Normalize(shape.NSpws), o.Spw.Normalize(shape.NSpws)) &&
		spansEqual(t.Field.Normalize(shape.NFields), o.Field.Normalize(shape.NFields))
}
