package cal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An un-expanded "*" and an explicit full-range set must compare equal after
// normalization against the dataset shape.
func TestSelector_AllEqualsExplicitFullRange(t *testing.T) {
	full := IDList(0, 1, 2, 3)
	assert.Equal(t, full.Normalize(4), AllIDs().Normalize(4))
	assert.NotEqual(t, full.Normalize(5), AllIDs().Normalize(5))
}

func TestSelector_NormalizeWithoutShapeIsOpen(t *testing.T) {
	spans := AllIDs().Normalize(0)
	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Lo)
	assert.Equal(t, openSpanHi, spans[0].Hi)
}

func TestSelector_ZeroValueSelectsAll(t *testing.T) {
	var s Selector
	assert.True(t, s.IsAll())
	assert.Equal(t, "*", s.String())
}

func TestSpanSel_RejectsMalformedSpan(t *testing.T) {
	_, err := SpanSel(Span{Lo: 9, Hi: 1})
	assert.Error(t, err)
}

func TestIntentSelector_Matches(t *testing.T) {
	bp := Intents("CALIBRATE_BANDPASS#ON_SOURCE")
	ph := Intents("CALIBRATE_PHASE#ON_SOURCE")
	both := Intents("CALIBRATE_BANDPASS#ON_SOURCE", "CALIBRATE_PHASE#ON_SOURCE")

	assert.True(t, AllIntents().Matches(bp))
	assert.True(t, bp.Matches(AllIntents()))
	assert.True(t, both.Matches(ph))
	assert.False(t, bp.Matches(ph))
}

func TestIntents_SortedDeduped(t *testing.T) {
	s := Intents("B", "A", "B")
	assert.Equal(t, []string{"A", "B"}, s.Names())
}
