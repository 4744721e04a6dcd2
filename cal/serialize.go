// Checkpoint serialization. The full CalLibrary round-trips through a YAML
// record list so a run can resume from a saved checkpoint: import(export(L))
// yields the same query results for every CalTo, though not necessarily a
// byte-identical tree structure.

package cal

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pipecal/pipecal/cal/casa"
)

const stateDocVersion = 1

type stateDoc struct {
	Version int         `yaml:"version"`
	Shapes  []VisShape  `yaml:"shapes,omitempty"`
	Active  []appRecord `yaml:"active"`
	Applied []appRecord `yaml:"applied"`
}

// appRecord is one serialized application with its effective coverage.
// Selections use the external syntax; "*" covers the whole axis.
type appRecord struct {
	Vis         string         `yaml:"vis"`
	Caltable    string         `yaml:"caltable"`
	CalType     string         `yaml:"caltype"`
	TInterp     string         `yaml:"tinterp,omitempty"`
	FInterp     string         `yaml:"finterp,omitempty"`
	SpwMap      map[int]int    `yaml:"spwmap,omitempty"`
	CalWt       bool           `yaml:"calwt"`
	GainField   string         `yaml:"gainfield,omitempty"`
	Antenna     string         `yaml:"antenna"`
	Spw         string         `yaml:"spw"`
	SpwChannels map[int]string `yaml:"spw_channels,omitempty"`
	Field       string         `yaml:"field"`
	Intent      string         `yaml:"intent"`
	Origin      Origin         `yaml:"origin"`
}

// Export serializes the full library (active + applied) to the checkpoint
// document.
func (l *CalLibrary) Export() ([]byte, error) {
	active, err := l.Active.appRecords()
	if err != nil {
		return nil, err
	}
	applied, err := l.Applied.appRecords()
	if err != nil {
		return nil, err
	}
	doc := stateDoc{
		Version: stateDocVersion,
		Shapes:  mergeShapes(l.Active, l.Applied),
		Active:  active,
		Applied: applied,
	}
	return yaml.Marshal(&doc)
}

// ImportCalLibrary rebuilds a library from a checkpoint document.
func ImportCalLibrary(data []byte) (*CalLibrary, error) {
	var doc stateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing calibration checkpoint: %w", err)
	}
	if doc.Version != stateDocVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", doc.Version)
	}
	lib := NewCalLibrary()
	for _, sh := range doc.Shapes {
		if err := lib.RegisterShape(sh); err != nil {
			return nil, err
		}
	}
	froms := make(map[string]*CalFrom)
	if err := lib.Active.addRecords(doc.Active, froms); err != nil {
		return nil, err
	}
	if err := lib.Applied.addRecords(doc.Applied, froms); err != nil {
		return nil, err
	}
	return lib, nil
}

func mergeShapes(states ...*CalState) []VisShape {
	byVis := make(map[string]VisShape)
	for _, s := range states {
		for vis, sh := range s.shapes {
			if _, ok := byVis[vis]; !ok {
				byVis[vis] = sh
			}
		}
	}
	vises := make([]string, 0, len(byVis))
	for vis := range byVis {
		vises = append(vises, vis)
	}
	sort.Strings(vises)
	out := make([]VisShape, 0, len(vises))
	for _, vis := range vises {
		out = append(out, byVis[vis])
	}
	return out
}

// appRecords flattens the state into serializable records, one per
// application, in stable order.
func (s *CalState) appRecords() ([]appRecord, error) {
	var out []appRecord
	for _, vis := range s.VisIDs() {
		t := s.trees[vis]
		t.Defrag()
		if err := t.CheckConsistency(); err != nil {
			return nil, err
		}
		shape := s.shapes[vis]
		for _, app := range t.Apps() {
			cov := t.coverage(app)
			rec := appRecord{
				Vis:       vis,
				Caltable:  app.From.Table,
				CalType:   string(app.From.CalType),
				TInterp:   app.From.Interp.Time,
				FInterp:   app.From.Interp.Freq,
				SpwMap:    app.From.SpwMap,
				CalWt:     app.From.CalWt,
				GainField: app.From.GainField,
				Antenna:   coverageString(cov[axisAntenna], shape.NAntennas),
				Spw:       coverageString(cov[axisSpw], shape.NSpws),
				Field:     coverageString(cov[axisField], shape.NFields),
				Intent:    app.To.Intent.String(),
				Origin:    app.Origin,
			}
			for spw, chans := range app.To.SpwChannels {
				if rec.SpwChannels == nil {
					rec.SpwChannels = make(map[int]string)
				}
				rec.SpwChannels[spw] = chans.String()
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *CalState) addRecords(records []appRecord, froms map[string]*CalFrom) error {
	for _, rec := range records {
		to, err := rec.calTo()
		if err != nil {
			return err
		}
		app := CalApplication{To: to, From: rec.calFrom(froms), Origin: rec.Origin}
		if err := s.Add(app); err != nil {
			return err
		}
	}
	return nil
}

// calFrom reconstructs the table reference, restoring shared-by-reference
// CalFroms: records with identical table descriptors map to one instance.
func (rec appRecord) calFrom(froms map[string]*CalFrom) *CalFrom {
	from := &CalFrom{
		Table:     rec.Caltable,
		CalType:   CalType(rec.CalType),
		Interp:    Interp{Time: rec.TInterp, Freq: rec.FInterp},
		SpwMap:    rec.SpwMap,
		CalWt:     rec.CalWt,
		GainField: rec.GainField,
	}
	key := fmt.Sprintf("%s|%s|%s|%s|%v|%s|%v", from.Table, from.CalType, from.Interp.Time, from.Interp.Freq, from.CalWt, from.GainField, from.DenseSpwMap())
	if existing, ok := froms[key]; ok {
		return existing
	}
	froms[key] = from
	return from
}

func (rec appRecord) calTo() (CalTo, error) {
	ant, err := selectorFromString(rec.Antenna)
	if err != nil {
		return CalTo{}, err
	}
	spw, err := selectorFromString(rec.Spw)
	if err != nil {
		return CalTo{}, err
	}
	field, err := selectorFromString(rec.Field)
	if err != nil {
		return CalTo{}, err
	}
	to := CalTo{
		Vis:     rec.Vis,
		Antenna: ant,
		Spw:     spw,
		Field:   field,
		Intent:  intentSelectorFromString(rec.Intent),
	}
	for spwID, chanStr := range rec.SpwChannels {
		chans, err := spansFromString(chanStr)
		if err != nil {
			return CalTo{}, err
		}
		if to.SpwChannels == nil {
			to.SpwChannels = make(map[int]SpanList)
		}
		to.SpwChannels[spwID] = chans
	}
	return to, nil
}

// coverageString renders coverage for the checkpoint; "*" for the full axis.
func coverageString(spans SpanList, domain int) string {
	if coversAxis(spans, domain) {
		return "*"
	}
	return spans.String()
}

func selectorFromString(sel string) (Selector, error) {
	if sel == "*" || sel == "" {
		return AllIDs(), nil
	}
	spans, err := spansFromString(sel)
	if err != nil {
		return Selector{}, err
	}
	return SpanSel(spans...)
}

func spansFromString(sel string) (SpanList, error) {
	parsed, err := casa.ParseSelection(sel)
	if err != nil {
		return nil, selectionErrorf("%v", err)
	}
	out := make(SpanList, len(parsed))
	for i, s := range parsed {
		out[i] = Span{Lo: s.Lo, Hi: s.Hi}
	}
	return out, nil
}

func intentSelectorFromString(sel string) IntentSelector {
	if sel == "*" || sel == "" {
		return AllIntents()
	}
	return Intents(strings.Split(sel, ",")...)
}
