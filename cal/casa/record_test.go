package casa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionString(t *testing.T) {
	assert.Equal(t, "", SelectionString(nil))
	assert.Equal(t, "3", SelectionString([]Span{{3, 3}}))
	assert.Equal(t, "0~2,5", SelectionString([]Span{{0, 2}, {5, 5}}))
}

func TestParseSelection(t *testing.T) {
	spans, err := ParseSelection("0~2,5")
	require.NoError(t, err)
	assert.Equal(t, []Span{{0, 2}, {5, 5}}, spans)

	spans, err = ParseSelection("")
	require.NoError(t, err)
	assert.Nil(t, spans)

	_, err = ParseSelection("5~2")
	assert.Error(t, err, "inverted range must fail")

	_, err = ParseSelection("a,b")
	assert.Error(t, err)
}

func TestFormat_OrderAndSyntax(t *testing.T) {
	records := []Record{
		{
			Vis: "ms1", Caltable: "bp.tbl", CalType: "bandpass",
			TInterp: "linear", FInterp: "nearest", CalWt: true,
			Field: "0~2", Spw: "0:0~63,1", Intent: "CALIBRATE_BANDPASS#ON_SOURCE",
			SpwMap: []int{0, 0, 1},
		},
		{
			Vis: "ms1", Caltable: "gain.tbl", CalType: "gaincal",
			TInterp: "linear", FInterp: "linear", Antenna: "0~3",
		},
	}
	text := Format(records)

	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "# vis: ms1", lines[0])
	assert.Contains(t, lines[1], "caltable='bp.tbl'")
	assert.Contains(t, lines[1], "calwt=True")
	assert.Contains(t, lines[1], "spwmap=[0,0,1]")
	assert.Contains(t, lines[1], "spw='0:0~63,1'")
	assert.Contains(t, lines[2], "caltable='gain.tbl'")
	assert.Contains(t, lines[2], "calwt=False")
	assert.NotContains(t, lines[2], "spwmap", "identity spw map is omitted")
}

func TestFormatParse_RoundTrip(t *testing.T) {
	records := []Record{
		{
			Vis: "ms1", Caltable: "bp.tbl", CalType: "bandpass",
			TInterp: "linear", FInterp: "nearest", CalWt: true,
			Field: "0~2,5", Spw: "0,1", Antenna: "", Intent: "CALIBRATE_BANDPASS",
			SpwMap: []int{0, 1, 1}, GainField: "3",
		},
		{
			Vis: "ms2", Caltable: "tsys.tbl", CalType: "tsys",
			TInterp: "nearest", FInterp: "linear", Antenna: "0~7",
		},
	}

	parsed, err := Parse(Format(records))
	require.NoError(t, err)
	assert.Equal(t, records, parsed)
}

func TestSortStable_GroupsByVisKeepingIntraVisOrder(t *testing.T) {
	records := []Record{
		{Vis: "ms2", Caltable: "a.tbl"},
		{Vis: "ms1", Caltable: "b.tbl"},
		{Vis: "ms2", Caltable: "c.tbl"},
		{Vis: "ms1", Caltable: "d.tbl"},
	}
	SortStable(records)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.Vis + "/" + r.Caltable
	}
	assert.Equal(t, []string{"ms1/b.tbl", "ms1/d.tbl", "ms2/a.tbl", "ms2/c.tbl"}, got,
		"precedence is positional, so intra-vis order must survive the grouping")
}

func TestParse_RejectsMalformedInput(t *testing.T) {
	_, err := Parse("caltable='x.tbl' bogus")
	assert.Error(t, err)

	_, err = Parse("field='0'")
	assert.Error(t, err, "record without caltable")

	_, err = Parse("caltable='x.tbl' unknownkey='v'")
	assert.Error(t, err)
}
