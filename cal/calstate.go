// CalState is the per-run calibration registry: one interval tree per
// visibility dataset, with add/query/merge/trim/export on top.

package cal

import (
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/pipecal/pipecal/cal/casa"
)

// CalState tracks every registered calibration application across all
// visibility datasets of a run. Trees are created lazily on first Add for a
// vis and removed only by Clear. Single-writer: workers own their own state
// and cross-worker results come back through Merged on deserialized copies.
type CalState struct {
	trees       map[string]*IntervalTree
	shapes      map[string]VisShape
	foldIntents bool
	nextSeq     int64
}

// NewCalState builds an empty registry using three-axis trees; intent
// predicates are resolved at query time.
func NewCalState() *CalState {
	return &CalState{
		trees:  make(map[string]*IntervalTree),
		shapes: make(map[string]VisShape),
	}
}

// NewCalStateND builds a registry whose trees carry a dedicated intent axis,
// for runs where applications collide on antenna/spw/field alone.
func NewCalStateND() *CalState {
	s := NewCalState()
	s.foldIntents = true
	return s
}

// RegisterShape records the domain extents of a dataset so full-axis
// selectors expand to concrete ranges. Must happen before the first Add for
// that vis; re-registering an identical shape is a no-op.
func (s *CalState) RegisterShape(shape VisShape) error {
	if shape.Vis == "" {
		return selectionErrorf("shape without vis id")
	}
	if existing, ok := s.shapes[shape.Vis]; ok {
		if existing.NAntennas != shape.NAntennas || existing.NSpws != shape.NSpws || existing.NFields != shape.NFields {
			return selectionErrorf("conflicting shape for %q: already registered %d/%d/%d antennas/spws/fields",
				shape.Vis, existing.NAntennas, existing.NSpws, existing.NFields)
		}
		return nil
	}
	s.shapes[shape.Vis] = shape
	return nil
}

func (s *CalState) treeFor(vis string) *IntervalTree {
	if t, ok := s.trees[vis]; ok {
		return t
	}
	shape := s.shapes[vis]
	if shape.Vis == "" {
		shape.Vis = vis
	}
	var t *IntervalTree
	if s.foldIntents {
		t = NewIntervalTreeND(shape)
	} else {
		t = NewIntervalTreeForShape(shape)
	}
	s.trees[vis] = t
	return t
}

// Add canonicalizes and registers one application. Defragmentation is
// deferred to the next Merged/Trimmed/Export. The application value is copied
// in; the CalFrom stays shared by reference.
func (s *CalState) Add(app CalApplication) error {
	if app.To.Vis == "" {
		return selectionErrorf("application without vis id")
	}
	if app.From == nil {
		return selectionErrorf("application without calibration table reference")
	}
	s.nextSeq++
	app.seq = s.nextSeq
	s.treeFor(app.To.Vis).Insert(&app)
	return nil
}

// Get returns the applications covering any part of the queried subset,
// oldest first. ignore (optional) excludes matching applications as a
// post-filter; the tree itself is untouched. Querying an unregistered vis
// returns an empty result, not an error.
func (s *CalState) Get(to CalTo, ignore Matcher) []*CalApplication {
	t, ok := s.trees[to.Vis]
	if !ok {
		return nil
	}
	apps := t.Query(to)
	if ignore == nil {
		return apps
	}
	out := apps[:0:0]
	for _, app := range apps {
		if !ignore(app) {
			out = append(out, app)
		}
	}
	return out
}

// VisIDs returns the registered dataset ids, sorted.
func (s *CalState) VisIDs() []string {
	out := make([]string, 0, len(s.trees))
	for vis := range s.trees {
		out = append(out, vis)
	}
	sort.Strings(out)
	return out
}

// Tree exposes the interval tree for one vis (nil if none registered).
func (s *CalState) Tree(vis string) *IntervalTree { return s.trees[vis] }

// IsEmpty reports whether no applications are registered.
func (s *CalState) IsEmpty() bool {
	for _, t := range s.trees {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}

// Clear drops every tree and shape registration.
func (s *CalState) Clear() {
	s.trees = make(map[string]*IntervalTree)
	s.shapes = make(map[string]VisShape)
}

func (s *CalState) clone() *CalState {
	out := &CalState{
		trees:       make(map[string]*IntervalTree, len(s.trees)),
		shapes:      make(map[string]VisShape, len(s.shapes)),
		foldIntents: s.foldIntents,
		nextSeq:     s.nextSeq,
	}
	for vis, t := range s.trees {
		out.trees[vis] = t.clone()
	}
	for vis, sh := range s.shapes {
		out.shapes[vis] = sh
	}
	return out
}

// Merged returns a new CalState combining both registries: trees for the
// union of vis ids, merged pairwise where both sides have one. Commutative on
// payload content; payload order is the stable timestamp order either way.
func (s *CalState) Merged(other *CalState) (*CalState, error) {
	out := s.clone()
	for vis, sh := range other.shapes {
		if _, ok := out.shapes[vis]; !ok {
			out.shapes[vis] = sh
		}
	}
	for vis, bt := range other.trees {
		at, ok := out.trees[vis]
		if !ok {
			t := bt.clone()
			t.Defrag()
			out.trees[vis] = t
			continue
		}
		merged, err := MergeIntervalTrees(at, bt)
		if err != nil {
			return nil, err
		}
		out.trees[vis] = merged
	}
	for _, t := range out.trees {
		if t.dirty {
			t.Defrag()
		}
	}
	if other.nextSeq > out.nextSeq {
		out.nextSeq = other.nextSeq
	}
	return out, nil
}

// Trimmed returns a new CalState restricted to the valid-data envelope.
// Datasets absent from valid are dropped entirely; surviving trees are
// clipped, defragmented and consistency-checked.
func (s *CalState) Trimmed(valid map[string]Selection) (*CalState, error) {
	out := &CalState{
		trees:       make(map[string]*IntervalTree),
		shapes:      make(map[string]VisShape),
		foldIntents: s.foldIntents,
		nextSeq:     s.nextSeq,
	}
	for vis, sel := range valid {
		t, ok := s.trees[vis]
		if !ok {
			continue
		}
		ct := t.clone()
		ct.Trim(sel)
		if err := ct.CheckConsistency(); err != nil {
			return nil, err
		}
		out.trees[vis] = ct
		if sh, ok := s.shapes[vis]; ok {
			out.shapes[vis] = sh
		}
	}
	return out, nil
}

// Export flattens every tree into the linear, ordered record list the
// external application tool consumes. Records appear in registration order
// (oldest first) within each vis, so later records take precedence for
// overlapping selections of the same calibration type. One record per
// application: coverage stays a product of per-axis ranges, so a single
// record captures an application's exact effective extent.
func (s *CalState) Export() ([]casa.Record, error) {
	var records []casa.Record
	for _, vis := range s.VisIDs() {
		t := s.trees[vis]
		t.Defrag()
		if err := t.CheckConsistency(); err != nil {
			return nil, err
		}
		shape := s.shapes[vis]
		for _, app := range t.Apps() {
			records = append(records, s.recordFor(vis, shape, t, app))
		}
	}
	logrus.Debugf("calstate: exported %d records for %d datasets", len(records), len(s.trees))
	return records, nil
}

func (s *CalState) recordFor(vis string, shape VisShape, t *IntervalTree, app *CalApplication) casa.Record {
	cov := t.coverage(app)
	rec := casa.Record{
		Vis:       vis,
		Caltable:  app.From.Table,
		CalType:   string(app.From.CalType),
		TInterp:   app.From.Interp.Time,
		FInterp:   app.From.Interp.Freq,
		SpwMap:    app.From.DenseSpwMap(),
		CalWt:     app.From.CalWt,
		GainField: app.From.GainField,
		Antenna:   selectionString(cov[axisAntenna], shape.NAntennas),
		Spw:       spwSelectionString(cov[axisSpw], shape.NSpws, app.To.SpwChannels),
		Field:     selectionString(cov[axisField], shape.NFields),
	}
	switch {
	case app.To.Intent.IsAll():
		// "" selects every intent
	case t.naxes > numBaseAxes:
		// effective intent coverage after any intent-axis trim
		var names []string
		if n := len(t.intents.names); n > 0 {
			for _, id := range ExpandSpans(spansIntersect(cov[axisIntent], SpanList{{Lo: 0, Hi: n - 1}})) {
				names = append(names, t.intents.names[id])
			}
		}
		rec.Intent = Intents(names...).String()
	default:
		rec.Intent = app.To.Intent.String()
	}
	return rec
}

// selectionString renders coverage in the external selection syntax, using
// "" (select all) when the coverage spans the whole axis.
func selectionString(spans SpanList, domain int) string {
	if coversAxis(spans, domain) {
		return ""
	}
	out := make([]casa.Span, len(spans))
	for i, s := range spans {
		out[i] = casa.Span{Lo: s.Lo, Hi: s.Hi}
	}
	return casa.SelectionString(out)
}

func coversAxis(spans SpanList, domain int) bool {
	if len(spans) != 1 || spans[0].Lo != 0 {
		return false
	}
	if domain > 0 {
		return spans[0].Hi >= domain-1
	}
	return spans[0].Hi == openSpanHi
}

// spwSelectionString renders spw coverage, attaching per-spw channel ranges
// ("1:4~60") for every channel-restricted spw inside the coverage. Spans are
// never walked id by id: the channel-free remainder renders as subtracted
// spans, so open coverage on an unshaped dataset stays cheap.
func spwSelectionString(spans SpanList, domain int, channels map[int]SpanList) string {
	if len(channels) == 0 {
		return selectionString(spans, domain)
	}
	var parts []string
	for _, s := range spans {
		keyed := make([]int, 0, len(channels))
		for spw := range channels {
			if s.contains(spw) {
				keyed = append(keyed, spw)
			}
		}
		if len(keyed) == 0 {
			parts = append(parts, s.String())
			continue
		}
		sort.Ints(keyed)
		plain := spansSub(SpanList{s}, SequenceToSpans(keyed))
		pi, ki := 0, 0
		for pi < len(plain) || ki < len(keyed) {
			if ki == len(keyed) || (pi < len(plain) && plain[pi].Lo < keyed[ki]) {
				parts = append(parts, plain[pi].String())
				pi++
			} else {
				parts = append(parts, strconv.Itoa(keyed[ki])+":"+channelSuffix(channels[keyed[ki]]))
				ki++
			}
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func channelSuffix(chans SpanList) string {
	out := ""
	for i, c := range chans {
		if i > 0 {
			out += ";"
		}
		out += c.String()
	}
	return out
}

// remove strips matching applications from every tree, returning them in
// stable order. Used by the library for unregistration and promotion.
func (s *CalState) remove(m Matcher) []*CalApplication {
	var removed []*CalApplication
	for _, vis := range s.VisIDs() {
		removed = append(removed, s.trees[vis].Remove(m)...)
	}
	return removed
}

// CheckConsistency validates every tree. First error wins; any error means
// state corruption and must abort processing for the affected vis.
func (s *CalState) CheckConsistency() error {
	for _, vis := range s.VisIDs() {
		if err := s.trees[vis].CheckConsistency(); err != nil {
			return err
		}
	}
	return nil
}
