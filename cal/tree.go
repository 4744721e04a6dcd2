// The interval tree engine. A tree tracks, for one visibility dataset, which
// calibration applications cover which hyper-rectangle of the discrete
// (antenna, spw, field) space. Cells are kept pairwise disjoint: inserting an
// application splits any cell it partially overlaps, so every distinguishable
// region carries exactly one ordered payload list. Defragmentation coalesces
// cells back to the minimal canonical form.

package cal

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Fixed outer axis ordering. Merge and defrag walk axes in this order, which
// keeps both operations deterministic.
const (
	axisAntenna = 0
	axisSpw     = 1
	axisField   = 2
	numBaseAxes = 3
	axisIntent  = 3 // only present on trees built with NewIntervalTreeND
)

// Box is a hyper-rectangle: one closed span per tree axis.
type Box []Span

func cloneBox(b Box) Box {
	out := make(Box, len(b))
	copy(out, b)
	return out
}

func intersectBox(a, b Box) (Box, bool) {
	out := make(Box, len(a))
	for i := range a {
		ov, ok := a[i].intersect(b[i])
		if !ok {
			return nil, false
		}
		out[i] = ov
	}
	return out, true
}

// subtractBox returns the parts of a outside b as disjoint boxes, carving
// axis by axis in the fixed axis order.
func subtractBox(a, b Box) []Box {
	ov, ok := intersectBox(a, b)
	if !ok {
		return []Box{a}
	}
	var out []Box
	cur := cloneBox(a)
	for i := range cur {
		if cur[i].Lo < ov[i].Lo {
			piece := cloneBox(cur)
			piece[i] = Span{Lo: cur[i].Lo, Hi: ov[i].Lo - 1}
			out = append(out, piece)
		}
		if cur[i].Hi > ov[i].Hi {
			piece := cloneBox(cur)
			piece[i] = Span{Lo: ov[i].Hi + 1, Hi: cur[i].Hi}
			out = append(out, piece)
		}
		cur[i] = ov[i]
	}
	return out
}

// unionBox coalesces two boxes that agree on every axis except one where
// their spans overlap or touch. Reports false when no such axis exists.
func unionBox(a, b Box) (Box, bool) {
	diff := -1
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		if diff >= 0 {
			return nil, false
		}
		diff = i
	}
	if diff < 0 {
		return cloneBox(a), true
	}
	if !a[diff].adjoins(b[diff]) {
		return nil, false
	}
	out := cloneBox(a)
	out[diff] = Span{Lo: min(a[diff].Lo, b[diff].Lo), Hi: max(a[diff].Hi, b[diff].Hi)}
	return out, true
}

func lessBox(a, b Box) bool {
	for i := range a {
		if a[i].Lo != b[i].Lo {
			return a[i].Lo < b[i].Lo
		}
		if a[i].Hi != b[i].Hi {
			return a[i].Hi < b[i].Hi
		}
	}
	return false
}

// Cell is one disjoint region of the tree with the ordered list of
// applications whose CalTo fully covers it.
type Cell struct {
	Box  Box
	Apps []*CalApplication
}

// intentDict interns intent names to small integer ids so an intent axis can
// be expressed in span form.
type intentDict struct {
	ids   map[string]int
	names []string
}

func newIntentDict() *intentDict {
	return &intentDict{ids: make(map[string]int)}
}

func (d *intentDict) intern(name string) int {
	if id, ok := d.ids[name]; ok {
		return id
	}
	id := len(d.names)
	d.ids[name] = id
	d.names = append(d.names, name)
	return id
}

func (d *intentDict) spansFor(sel IntentSelector) SpanList {
	if sel.IsAll() {
		return SpanList{{Lo: 0, Hi: openSpanHi}}
	}
	ids := make([]int, 0, len(sel.Names()))
	for _, n := range sel.Names() {
		ids = append(ids, d.intern(n))
	}
	return SequenceToSpans(ids)
}

// IntervalTree holds the calibration coverage of one visibility dataset.
// Not safe for concurrent mutation; each pipeline worker owns its own state.
type IntervalTree struct {
	Vis   string
	shape VisShape

	naxes   int
	intents *intentDict // non-nil only when an intent axis is present
	cells   []Cell
	dirty   bool // true between an Insert and the next Defrag
}

// NewIntervalTree builds an empty three-axis tree (antenna → spw → field)
// with no shape information: full-axis selectors stay open-ended.
func NewIntervalTree(vis string) *IntervalTree {
	return &IntervalTree{Vis: vis, naxes: numBaseAxes}
}

// NewIntervalTreeForShape builds an empty three-axis tree whose full-axis
// selectors expand against the dataset's real extents.
func NewIntervalTreeForShape(shape VisShape) *IntervalTree {
	return &IntervalTree{Vis: shape.Vis, shape: shape, naxes: numBaseAxes}
}

// NewIntervalTreeND builds a tree with a fourth, interned intent axis.
// Use it when applications that agree on antenna/spw/field must still be
// distinguished by intent; on the default tree intent stays a payload-level
// predicate applied at query time.
func NewIntervalTreeND(shape VisShape) *IntervalTree {
	return &IntervalTree{
		Vis:     shape.Vis,
		shape:   shape,
		naxes:   numBaseAxes + 1,
		intents: newIntentDict(),
	}
}

func (t *IntervalTree) clone() *IntervalTree {
	out := &IntervalTree{Vis: t.Vis, shape: t.shape, naxes: t.naxes, dirty: t.dirty}
	if t.intents != nil {
		out.intents = newIntentDict()
		for _, n := range t.intents.names {
			out.intents.intern(n)
		}
	}
	out.cells = make([]Cell, len(t.cells))
	for i, c := range t.cells {
		out.cells[i] = Cell{Box: cloneBox(c.Box), Apps: append([]*CalApplication{}, c.Apps...)}
	}
	return out
}

// NumCells returns the current cell count (minimal only after Defrag).
func (t *IntervalTree) NumCells() int { return len(t.cells) }

// IsEmpty reports whether the tree carries no applications.
func (t *IntervalTree) IsEmpty() bool { return len(t.cells) == 0 }

// boxesFor expands a CalTo into the disjoint boxes its canonical per-axis
// ranges span. An empty selection on any axis yields no boxes.
func (t *IntervalTree) boxesFor(to CalTo) []Box {
	axes := make([]SpanList, 0, t.naxes)
	axes = append(axes,
		to.Antenna.Normalize(t.shape.NAntennas),
		to.Spw.Normalize(t.shape.NSpws),
		to.Field.Normalize(t.shape.NFields))
	if t.naxes > numBaseAxes {
		axes = append(axes, t.intents.spansFor(to.Intent))
	}
	return cartesianBoxes(axes)
}

func (t *IntervalTree) boxesForSelection(sel Selection) []Box {
	axes := make([]SpanList, 0, t.naxes)
	axes = append(axes,
		sel.Antenna.Normalize(t.shape.NAntennas),
		sel.Spw.Normalize(t.shape.NSpws),
		sel.Field.Normalize(t.shape.NFields))
	if t.naxes > numBaseAxes {
		axes = append(axes, t.intents.spansFor(sel.Intent))
	}
	return cartesianBoxes(axes)
}

func cartesianBoxes(axes []SpanList) []Box {
	boxes := []Box{{}}
	for _, spans := range axes {
		if len(spans) == 0 {
			return nil
		}
		next := make([]Box, 0, len(boxes)*len(spans))
		for _, b := range boxes {
			for _, s := range spans {
				nb := make(Box, len(b), len(b)+1)
				copy(nb, b)
				next = append(next, append(nb, s))
			}
		}
		boxes = next
	}
	return boxes
}

// Insert registers an application: its CalTo expands to canonical boxes and
// every cell those boxes intersect gets the application appended, splitting
// partially-covered cells. Payload order is insertion order. Defragmentation
// is deferred to the next Defrag/Merge/Trim for amortized cost.
func (t *IntervalTree) Insert(app *CalApplication) {
	before := len(t.cells)
	for _, box := range t.boxesFor(app.To) {
		t.insertPayload(box, []*CalApplication{app})
	}
	t.dirty = true
	logrus.Debugf("tree %s: insert %s, cells %d -> %d", t.Vis, app.From.Table, before, len(t.cells))
}

// insertPayload overlays one box carrying apps onto the disjoint cell set.
func (t *IntervalTree) insertPayload(box Box, apps []*CalApplication) {
	pending := []Box{box}
	next := make([]Cell, 0, len(t.cells)+1)

	for _, c := range t.cells {
		if len(pending) == 0 {
			next = append(next, c)
			continue
		}
		var rest []Box
		var overlaps []Box
		cellRemainder := []Box{c.Box}
		for _, p := range pending {
			ov, ok := intersectBox(c.Box, p)
			if !ok {
				rest = append(rest, p)
				continue
			}
			overlaps = append(overlaps, ov)
			rest = append(rest, subtractBox(p, ov)...)
			var rem []Box
			for _, r := range cellRemainder {
				rem = append(rem, subtractBox(r, ov)...)
			}
			cellRemainder = rem
		}
		pending = rest
		if len(overlaps) == 0 {
			next = append(next, c)
			continue
		}
		for _, r := range cellRemainder {
			next = append(next, Cell{Box: r, Apps: append([]*CalApplication{}, c.Apps...)})
		}
		for _, ov := range overlaps {
			merged := make([]*CalApplication, 0, len(c.Apps)+len(apps))
			merged = append(merged, c.Apps...)
			merged = append(merged, apps...)
			next = append(next, Cell{Box: ov, Apps: merged})
		}
	}
	for _, p := range pending {
		next = append(next, Cell{Box: p, Apps: append([]*CalApplication{}, apps...)})
	}
	t.cells = next
}

// Query collects every application whose coverage intersects the given CalTo,
// ordered oldest first so callers can apply last-write-wins per type. A query
// that matches nothing returns an empty slice, never an error.
func (t *IntervalTree) Query(to CalTo) []*CalApplication {
	boxes := t.boxesFor(to)
	seen := make(map[*CalApplication]bool)
	var out []*CalApplication
	for _, c := range t.cells {
		if !anyBoxOverlap(c.Box, boxes) {
			continue
		}
		for _, app := range c.Apps {
			if seen[app] {
				continue
			}
			// On three-axis trees intent is a payload predicate.
			if t.naxes == numBaseAxes && !app.To.Intent.Matches(to.Intent) {
				continue
			}
			seen[app] = true
			out = append(out, app)
		}
	}
	sortApps(out)
	return out
}

func anyBoxOverlap(b Box, boxes []Box) bool {
	for _, o := range boxes {
		if _, ok := intersectBox(b, o); ok {
			return true
		}
	}
	return false
}

func sortApps(apps []*CalApplication) {
	sort.SliceStable(apps, func(i, j int) bool { return apps[i].before(apps[j]) })
}

// MergeIntervalTrees overlays two trees for the same vis: the result's cells
// are the pairwise intersections with concatenated payloads, restored to a
// stable timestamp order and defragmented. Commutative on payload content.
func MergeIntervalTrees(a, b *IntervalTree) (*IntervalTree, error) {
	if a.Vis != b.Vis {
		return nil, selectionErrorf("cannot merge trees for %q and %q", a.Vis, b.Vis)
	}
	if a.naxes != b.naxes {
		return nil, selectionErrorf("cannot merge %d-axis tree with %d-axis tree for %q", a.naxes, b.naxes, a.Vis)
	}
	out := a.clone()
	if out.shape.isZero() {
		out.shape = b.shape
	}
	for _, c := range b.cells {
		if out.naxes > numBaseAxes {
			// b's intent-axis ids were interned against b's dictionary and
			// mean nothing in out's id space until re-mapped.
			for _, span := range remapIntentSpans(out.intents, b.intents, c.Box[axisIntent]) {
				box := cloneBox(c.Box)
				box[axisIntent] = span
				out.insertPayload(box, c.Apps)
			}
			continue
		}
		out.insertPayload(cloneBox(c.Box), c.Apps)
	}
	out.normalizePayloads()
	out.Defrag()
	return out, nil
}

// remapIntentSpans translates an intent-axis span interned against src into
// dst's id space, interning names into dst as needed. The open span (every
// intent) passes through unchanged.
func remapIntentSpans(dst, src *intentDict, s Span) SpanList {
	if s.Lo == 0 && s.Hi == openSpanHi {
		return SpanList{s}
	}
	var ids []int
	for id := s.Lo; id <= s.Hi && id < len(src.names); id++ {
		ids = append(ids, dst.intern(src.names[id]))
	}
	if len(ids) == 0 {
		return SpanList{s}
	}
	return SequenceToSpans(ids)
}

// normalizePayloads deduplicates payload pointers and restores the stable
// timestamp order inside every cell. Always allocates fresh payload slices:
// split cells may share backing arrays.
func (t *IntervalTree) normalizePayloads() {
	for i, c := range t.cells {
		apps := make([]*CalApplication, 0, len(c.Apps))
		seen := make(map[*CalApplication]bool, len(c.Apps))
		for _, app := range c.Apps {
			if !seen[app] {
				seen[app] = true
				apps = append(apps, app)
			}
		}
		sortApps(apps)
		t.cells[i].Apps = apps
	}
}

// Defrag coalesces adjacent or overlapping cells with identical payloads
// (application identity, not deep value) into single cells with the union
// extent, then sorts cells canonically. Idempotent; without it repeated
// merges grow the cell count without bound.
func (t *IntervalTree) Defrag() {
	t.normalizePayloads()
	before := len(t.cells)
	for {
		t.sortCells()
		if !t.coalesceOnce() {
			break
		}
	}
	t.sortCells()
	t.dirty = false
	if before != len(t.cells) {
		logrus.Debugf("tree %s: defrag %d -> %d cells", t.Vis, before, len(t.cells))
	}
}

func (t *IntervalTree) coalesceOnce() bool {
	for i := 0; i < len(t.cells); i++ {
		for j := i + 1; j < len(t.cells); j++ {
			if !samePayload(t.cells[i].Apps, t.cells[j].Apps) {
				continue
			}
			ub, ok := unionBox(t.cells[i].Box, t.cells[j].Box)
			if !ok {
				continue
			}
			t.cells[i].Box = ub
			t.cells = append(t.cells[:j], t.cells[j+1:]...)
			return true
		}
	}
	return false
}

func samePayload(a, b []*CalApplication) bool {
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

func (t *IntervalTree) sortCells() {
	sort.Slice(t.cells, func(i, j int) bool { return lessBox(t.cells[i].Box, t.cells[j].Box) })
}

// Trim restricts the tree to a known-good selection: clips partially-valid
// cells, drops cells entirely outside, and lets applications with zero
// surviving extent vanish rather than linger empty. Works on any axis count.
func (t *IntervalTree) Trim(valid Selection) {
	validBoxes := t.boxesForSelection(valid)
	var next []Cell
	for _, c := range t.cells {
		for _, v := range validBoxes {
			if ov, ok := intersectBox(c.Box, v); ok {
				next = append(next, Cell{Box: ov, Apps: append([]*CalApplication{}, c.Apps...)})
			}
		}
	}
	dropped := len(t.cells) - len(next)
	t.cells = next

	// Without an intent axis the intent envelope filters payloads directly.
	if t.naxes == numBaseAxes && !valid.Intent.IsAll() {
		var kept []Cell
		for _, c := range t.cells {
			var apps []*CalApplication
			for _, app := range c.Apps {
				if app.To.Intent.Matches(valid.Intent) {
					apps = append(apps, app)
				}
			}
			if len(apps) > 0 {
				kept = append(kept, Cell{Box: c.Box, Apps: apps})
			}
		}
		t.cells = kept
	}
	t.Defrag()
	if dropped > 0 {
		logrus.Debugf("tree %s: trim dropped or clipped %d cells", t.Vis, dropped)
	}
}

// Remove strips every application matched by m from all payloads, dropping
// cells that end up empty. Returns the removed applications in stable order.
func (t *IntervalTree) Remove(m Matcher) []*CalApplication {
	removedSet := make(map[*CalApplication]bool)
	var next []Cell
	for _, c := range t.cells {
		var apps []*CalApplication
		for _, app := range c.Apps {
			if m(app) {
				removedSet[app] = true
				continue
			}
			apps = append(apps, app)
		}
		if len(apps) > 0 {
			next = append(next, Cell{Box: c.Box, Apps: apps})
		}
	}
	t.cells = next
	t.Defrag()

	removed := make([]*CalApplication, 0, len(removedSet))
	for app := range removedSet {
		removed = append(removed, app)
	}
	sortApps(removed)
	return removed
}

// Apps returns the distinct applications in the tree, oldest first.
func (t *IntervalTree) Apps() []*CalApplication {
	seen := make(map[*CalApplication]bool)
	var out []*CalApplication
	for _, c := range t.cells {
		for _, app := range c.Apps {
			if !seen[app] {
				seen[app] = true
				out = append(out, app)
			}
		}
	}
	sortApps(out)
	return out
}

// coverage returns the per-axis union of the cells carrying app. Coverage
// stays a product of per-axis ranges under insertion, merge and trim, so the
// per-axis union is the application's exact effective extent.
func (t *IntervalTree) coverage(app *CalApplication) []SpanList {
	out := make([]SpanList, t.naxes)
	for _, c := range t.cells {
		for _, a := range c.Apps {
			if a != app {
				continue
			}
			for i, s := range c.Box {
				out[i] = append(out[i], s)
			}
			break
		}
	}
	for i := range out {
		out[i] = MergeContiguousSpans(out[i])
	}
	return out
}

// CheckConsistency validates the structural invariants: correct axis count,
// well-formed spans, non-empty payloads and pairwise-disjoint cells. A
// violation means engine-level state corruption and returns a
// TreeConsistencyError, which callers must treat as fatal for this vis.
func (t *IntervalTree) CheckConsistency() error {
	for i, c := range t.cells {
		if len(c.Box) != t.naxes {
			return &TreeConsistencyError{Vis: t.Vis, Msg: "cell extent has wrong axis count"}
		}
		for _, s := range c.Box {
			if s.Lo > s.Hi {
				return &TreeConsistencyError{Vis: t.Vis, Msg: "cell extent has inverted span " + s.String()}
			}
		}
		if len(c.Apps) == 0 {
			return &TreeConsistencyError{Vis: t.Vis, Msg: "cell with empty payload"}
		}
		for j := i + 1; j < len(t.cells); j++ {
			if _, ok := intersectBox(c.Box, t.cells[j].Box); ok {
				return &TreeConsistencyError{Vis: t.Vis, Msg: "overlapping cells " + c.Box.String() + " and " + t.cells[j].Box.String()}
			}
		}
	}
	return nil
}

func (b Box) String() string {
	out := "("
	for i, s := range b {
		if i > 0 {
			out += ";"
		}
		out += s.String()
	}
	return out + ")"
}

// axisDomain is the exclusive id bound used when materializing an axis: the
// registered extent when known, otherwise one past the highest id seen in any
// cell on that axis.
func (t *IntervalTree) axisDomain(axis, extent int) int {
	if extent > 0 {
		return extent
	}
	seen := -1
	for _, c := range t.cells {
		hi := c.Box[axis].Hi
		if hi == openSpanHi {
			hi = c.Box[axis].Lo
		}
		if hi > seen {
			seen = hi
		}
	}
	return seen + 1
}

// clampSpan caps a span at the domain bound.
func clampSpan(s Span, domain int) Span {
	if domain > 0 && s.Hi >= domain {
		s.Hi = domain - 1
	}
	if s.Lo > s.Hi {
		s.Hi = s.Lo
	}
	return s
}

// ExpandedCell is the materialized form of one cell: explicit id sets per
// axis plus the payload tables. Reporting and debugging surface only.
type ExpandedCell struct {
	Antennas []int
	Spws     []int
	Fields   []int
	Intents  []string
	Tables   []string
}

// Expand materializes every cell's extent into explicit id sets. Open-ended
// spans ("*" with no registered shape) are clamped to the highest id seen on
// the axis, so expansion never materializes the open sentinel range.
func (t *IntervalTree) Expand() []ExpandedCell {
	domains := make([]int, t.naxes)
	domains[axisAntenna] = t.axisDomain(axisAntenna, t.shape.NAntennas)
	domains[axisSpw] = t.axisDomain(axisSpw, t.shape.NSpws)
	domains[axisField] = t.axisDomain(axisField, t.shape.NFields)
	if t.naxes > numBaseAxes {
		domains[axisIntent] = t.axisDomain(axisIntent, len(t.intents.names))
	}
	out := make([]ExpandedCell, 0, len(t.cells))
	for _, c := range t.cells {
		ec := ExpandedCell{
			Antennas: SpanToSet(clampSpan(c.Box[axisAntenna], domains[axisAntenna])),
			Spws:     SpanToSet(clampSpan(c.Box[axisSpw], domains[axisSpw])),
			Fields:   SpanToSet(clampSpan(c.Box[axisField], domains[axisField])),
		}
		if t.naxes > numBaseAxes {
			for _, id := range SpanToSet(clampSpan(c.Box[axisIntent], domains[axisIntent])) {
				if id < len(t.intents.names) {
					ec.Intents = append(ec.Intents, t.intents.names[id])
				}
			}
		}
		for _, app := range c.Apps {
			ec.Tables = append(ec.Tables, app.From.Table)
		}
		out = append(out, ec)
	}
	return out
}
