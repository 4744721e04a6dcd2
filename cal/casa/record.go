// Package casa renders and parses the cal-library record syntax consumed by
// the external calibration-application tool. It holds pure data types and
// string handling only — no dependency on the engine packages.
//
// One record per line, key=value pairs:
//
//	caltable='bp.tbl' caltype='bandpass' calwt=True tinterp='linear'
//	finterp='nearest' spwmap=[0,0,1] field='0~2,5' spw='0:0~63,1'
//	antenna='' intent='CALIBRATE_BANDPASS#ON_SOURCE' gainfield=''
//
// Record order matters to the consumer: later records override earlier ones
// where selections of the same calibration type overlap.
package casa

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Record is one cal-library line. Selection fields use the external syntax
// (comma lists and lo~hi ranges); the empty string selects everything.
type Record struct {
	Vis       string
	Caltable  string
	CalType   string
	Field     string
	Spw       string
	Antenna   string
	Intent    string
	TInterp   string
	FInterp   string
	SpwMap    []int
	CalWt     bool
	GainField string
}

// Span is a closed id range used when building selection strings.
type Span struct {
	Lo int
	Hi int
}

// SelectionString renders spans in the external selection syntax:
// "0~2,5". An empty list renders as "", which selects everything, so callers
// must not pass an empty list for an empty (no-match) selection.
func SelectionString(spans []Span) string {
	parts := make([]string, len(spans))
	for i, s := range spans {
		if s.Lo == s.Hi {
			parts[i] = strconv.Itoa(s.Lo)
		} else {
			parts[i] = fmt.Sprintf("%d~%d", s.Lo, s.Hi)
		}
	}
	return strings.Join(parts, ",")
}

// ParseSelection parses the external selection syntax back into spans.
// "" yields nil (select everything).
func ParseSelection(sel string) ([]Span, error) {
	if sel == "" {
		return nil, nil
	}
	var out []Span
	for _, part := range strings.Split(sel, ",") {
		lo, hi, ok := splitRange(part)
		if !ok {
			return nil, fmt.Errorf("invalid selection %q", sel)
		}
		out = append(out, Span{Lo: lo, Hi: hi})
	}
	return out, nil
}

func splitRange(part string) (int, int, bool) {
	if lo, hi, found := strings.Cut(part, "~"); found {
		l, err1 := strconv.Atoi(strings.TrimSpace(lo))
		h, err2 := strconv.Atoi(strings.TrimSpace(hi))
		return l, h, err1 == nil && err2 == nil && l <= h
	}
	v, err := strconv.Atoi(strings.TrimSpace(part))
	return v, v, err == nil
}

// Format renders records one per line, preserving order. Records for
// different vis are separated by comment headers naming the dataset.
func Format(records []Record) string {
	var sb strings.Builder
	lastVis := ""
	for _, r := range records {
		if r.Vis != lastVis {
			if lastVis != "" {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "# vis: %s\n", r.Vis)
			lastVis = r.Vis
		}
		sb.WriteString(formatRecord(r))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatRecord(r Record) string {
	fields := []string{
		kv("caltable", r.Caltable),
		kv("caltype", r.CalType),
		kvBool("calwt", r.CalWt),
		kv("tinterp", r.TInterp),
		kv("finterp", r.FInterp),
	}
	if len(r.SpwMap) > 0 {
		fields = append(fields, "spwmap="+intList(r.SpwMap))
	}
	fields = append(fields,
		kv("field", r.Field),
		kv("spw", r.Spw),
		kv("antenna", r.Antenna),
		kv("intent", r.Intent),
	)
	if r.GainField != "" {
		fields = append(fields, kv("gainfield", r.GainField))
	}
	return strings.Join(fields, " ")
}

func kv(key, val string) string { return key + "='" + val + "'" }

func kvBool(key string, v bool) string {
	if v {
		return key + "=True"
	}
	return key + "=False"
}

func intList(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Parse reads records back from the Format output. Blank lines are skipped;
// "# vis:" headers bind the following records to that dataset.
func Parse(text string) ([]Record, error) {
	var out []Record
	vis := ""
	for lineNo, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if rest, found := strings.CutPrefix(line, "# vis:"); found {
				vis = strings.TrimSpace(rest)
			}
			continue
		}
		r, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		r.Vis = vis
		out = append(out, r)
	}
	return out, nil
}

func parseRecord(line string) (Record, error) {
	var r Record
	for _, tok := range strings.Fields(line) {
		key, val, found := strings.Cut(tok, "=")
		if !found {
			return Record{}, fmt.Errorf("malformed token %q", tok)
		}
		if err := assignField(&r, key, val); err != nil {
			return Record{}, err
		}
	}
	if r.Caltable == "" {
		return Record{}, fmt.Errorf("record without caltable: %q", line)
	}
	return r, nil
}

func assignField(r *Record, key, val string) error {
	unquote := func(v string) string { return strings.Trim(v, "'") }
	switch key {
	case "caltable":
		r.Caltable = unquote(val)
	case "caltype":
		r.CalType = unquote(val)
	case "field":
		r.Field = unquote(val)
	case "spw":
		r.Spw = unquote(val)
	case "antenna":
		r.Antenna = unquote(val)
	case "intent":
		r.Intent = unquote(val)
	case "tinterp":
		r.TInterp = unquote(val)
	case "finterp":
		r.FInterp = unquote(val)
	case "gainfield":
		r.GainField = unquote(val)
	case "calwt":
		r.CalWt = val == "True" || val == "true"
	case "spwmap":
		vals, err := parseIntList(val)
		if err != nil {
			return fmt.Errorf("invalid spwmap %q: %w", val, err)
		}
		r.SpwMap = vals
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func parseIntList(val string) ([]int, error) {
	val = strings.TrimPrefix(val, "[")
	val = strings.TrimSuffix(val, "]")
	if val == "" {
		return nil, nil
	}
	parts := strings.Split(val, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SortStable orders records by vis only, keeping the caller's relative order
// inside each dataset. Precedence between overlapping records of one type is
// positional, so the intra-vis order must never be disturbed.
func SortStable(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Vis < records[j].Vis })
}
