package cal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpan_Malformed_ReturnsSelectionError(t *testing.T) {
	_, err := NewSpan(5, 2)
	var selErr *SelectionError
	require.Error(t, err)
	assert.True(t, errors.As(err, &selErr), "expected SelectionError, got %T", err)
}

func TestSequenceToSpans_CoalescesRuns(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		want SpanList
	}{
		{"empty", nil, nil},
		{"single", []int{3}, SpanList{{3, 3}}},
		{"contiguous", []int{0, 1, 2}, SpanList{{0, 2}}},
		{"unordered with duplicates", []int{4, 0, 1, 4, 2}, SpanList{{0, 2}, {4, 4}}},
		{"two runs", []int{0, 1, 5, 6, 7}, SpanList{{0, 1}, {5, 7}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SequenceToSpans(tc.ids))
		})
	}
}

func TestMergeContiguousSpans_NormalizesOverlapAndTouch(t *testing.T) {
	got := MergeContiguousSpans(SpanList{{5, 9}, {0, 3}, {4, 4}, {8, 12}})
	assert.Equal(t, SpanList{{0, 12}}, got)

	got = MergeContiguousSpans(SpanList{{0, 1}, {3, 4}})
	assert.Equal(t, SpanList{{0, 1}, {3, 4}}, got, "gap must stay split")
}

func TestExpandSpans_MaterializesIDs(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2, 5}, ExpandSpans(SpanList{{0, 2}, {5, 5}}))
	assert.Nil(t, ExpandSpans(nil))
}

func TestSpansSub_SplitsAroundCut(t *testing.T) {
	got := spansSub(SpanList{{0, 10}}, SpanList{{3, 5}})
	assert.Equal(t, SpanList{{0, 2}, {6, 10}}, got)

	got = spansSub(SpanList{{0, 2}}, SpanList{{0, 2}})
	assert.Nil(t, got, "full subtraction yields the empty selection")
}

func TestSpansIntersect(t *testing.T) {
	got := spansIntersect(SpanList{{0, 5}, {10, 15}}, SpanList{{4, 11}})
	assert.Equal(t, SpanList{{4, 5}, {10, 11}}, got)

	assert.Nil(t, spansIntersect(SpanList{{0, 2}}, SpanList{{5, 7}}))
}
