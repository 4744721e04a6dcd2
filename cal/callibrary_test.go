package cal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario: unregistering gain1.tbl removes only that entry; the same subset
// then yields gain2.tbl alone.
func TestCalLibrary_UnregisterRemovesOnlyMatching(t *testing.T) {
	lib := NewCalLibrary()
	to := CalTo{Vis: "ms1", Field: IDList(0)}
	require.NoError(t, lib.Add(stateApp("gain1.tbl", CalTypeGaincal, to, 1)))
	require.NoError(t, lib.Add(stateApp("gain2.tbl", CalTypeGaincal, to, 2)))

	removed := lib.Unregister(MatchTable("gain1.tbl"))
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"gain2.tbl"}, tables(lib.Active.Get(to, nil)))
}

func TestCalLibrary_MarkAsApplied_MovesEntries(t *testing.T) {
	// GIVEN an active bandpass and gain application
	lib := NewCalLibrary()
	require.NoError(t, lib.Add(stateApp("bp.tbl", CalTypeBandpass, CalTo{Vis: "ms1"}, 1)))
	require.NoError(t, lib.Add(stateApp("gain.tbl", CalTypeGaincal, CalTo{Vis: "ms1"}, 2)))

	// WHEN the bandpass is marked applied
	moved, err := lib.MarkAsApplied(MatchCalType(CalTypeBandpass))
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	// THEN it leaves active and enters applied with origin intact
	assert.Equal(t, []string{"gain.tbl"}, tables(lib.Active.Get(CalTo{Vis: "ms1"}, nil)))
	applied := lib.Applied.Get(CalTo{Vis: "ms1"}, nil)
	require.Len(t, applied, 1)
	assert.Equal(t, "bp.tbl", applied[0].From.Table)
	assert.Equal(t, 1, applied[0].Origin.StageID)
}

func TestCalLibrary_ClearPreservesAppliedHistory(t *testing.T) {
	lib := NewCalLibrary()
	require.NoError(t, lib.Add(stateApp("bp.tbl", CalTypeBandpass, CalTo{Vis: "ms1"}, 1)))
	_, err := lib.MarkAsApplied(MatchTable("bp.tbl"))
	require.NoError(t, err)
	require.NoError(t, lib.Add(stateApp("gain.tbl", CalTypeGaincal, CalTo{Vis: "ms1"}, 2)))

	lib.Clear()

	assert.True(t, lib.Active.IsEmpty())
	assert.Equal(t, []string{"bp.tbl"}, tables(lib.Applied.Get(CalTo{Vis: "ms1"}, nil)),
		"apply history must survive a clear for idempotence checks")
}

// import(export(L)) must yield the same query results for every CalTo.
func TestCalLibrary_ExportImportRoundTrip(t *testing.T) {
	lib := NewCalLibrary()
	require.NoError(t, lib.RegisterShape(testShape("ms1")))
	require.NoError(t, lib.Add(stateApp("bp.tbl", CalTypeBandpass,
		CalTo{Vis: "ms1", Spw: IDList(0, 1), Intent: Intents("CALIBRATE_BANDPASS")}, 1)))
	require.NoError(t, lib.Add(stateApp("gain.tbl", CalTypeGaincal,
		CalTo{Vis: "ms1", Antenna: IDList(0, 2, 3), Field: IDList(1)}, 2)))
	require.NoError(t, lib.Add(stateApp("tsys.tbl", CalTypeTsys, CalTo{Vis: "ms2"}, 3)))
	_, err := lib.MarkAsApplied(MatchTable("bp.tbl"))
	require.NoError(t, err)

	data, err := lib.Export()
	require.NoError(t, err)

	restored, err := ImportCalLibrary(data)
	require.NoError(t, err)

	queries := []CalTo{
		{Vis: "ms1"},
		{Vis: "ms1", Antenna: IDList(0), Field: IDList(1)},
		{Vis: "ms1", Antenna: IDList(1)},
		{Vis: "ms1", Spw: IDList(0), Intent: Intents("CALIBRATE_BANDPASS")},
		{Vis: "ms2"},
		{Vis: "ms3"},
	}
	for _, q := range queries {
		assert.Equal(t, tables(lib.Active.Get(q, nil)), tables(restored.Active.Get(q, nil)), "active query %s", q)
		assert.Equal(t, tables(lib.Applied.Get(q, nil)), tables(restored.Applied.Get(q, nil)), "applied query %s", q)
	}
}

func TestCalLibrary_RoundTripPreservesTrimmedCoverage(t *testing.T) {
	// GIVEN an active state trimmed to a valid-data envelope
	lib := NewCalLibrary()
	require.NoError(t, lib.RegisterShape(VisShape{Vis: "ms1", NAntennas: 8, NSpws: 4, NFields: 2}))
	require.NoError(t, lib.Add(stateApp("gain.tbl", CalTypeGaincal, CalTo{Vis: "ms1", Antenna: IDList(0, 1, 2)}, 1)))

	trimmed, err := lib.Active.Trimmed(map[string]Selection{"ms1": {Antenna: IDList(0, 1)}})
	require.NoError(t, err)
	lib.Active = trimmed

	// WHEN round-tripping through the checkpoint
	data, err := lib.Export()
	require.NoError(t, err)
	restored, err := ImportCalLibrary(data)
	require.NoError(t, err)

	// THEN the clipped coverage is preserved, not the original CalTo
	assert.Empty(t, restored.Active.Get(CalTo{Vis: "ms1", Antenna: IDList(2)}, nil))
	assert.Equal(t, []string{"gain.tbl"}, tables(restored.Active.Get(CalTo{Vis: "ms1", Antenna: IDList(1)}, nil)))
}

func TestCalLibrary_RoundTripFromIntentAxisState(t *testing.T) {
	// GIVEN a library whose active state carries a dedicated intent axis
	lib := NewCalLibrary()
	lib.Active = NewCalStateND()
	require.NoError(t, lib.RegisterShape(testShape("ms1")))
	require.NoError(t, lib.Add(stateApp("bp.tbl", CalTypeBandpass,
		CalTo{Vis: "ms1", Intent: Intents("CALIBRATE_BANDPASS")}, 1)))
	require.NoError(t, lib.Add(stateApp("ph.tbl", CalTypeGaincal,
		CalTo{Vis: "ms1", Intent: Intents("CALIBRATE_PHASE")}, 2)))

	// WHEN round-tripping through the checkpoint (import rebuilds three-axis
	// states; intents become query-time payload predicates)
	data, err := lib.Export()
	require.NoError(t, err)
	restored, err := ImportCalLibrary(data)
	require.NoError(t, err)

	// THEN both intent representations answer every query identically
	queries := []CalTo{
		{Vis: "ms1"},
		{Vis: "ms1", Intent: Intents("CALIBRATE_BANDPASS")},
		{Vis: "ms1", Intent: Intents("CALIBRATE_PHASE")},
		{Vis: "ms1", Intent: Intents("CALIBRATE_POINTING")},
	}
	for _, q := range queries {
		assert.Equal(t, tables(lib.Active.Get(q, nil)), tables(restored.Active.Get(q, nil)), "query %s", q)
	}
}

func TestImportCalLibrary_RejectsUnknownVersion(t *testing.T) {
	_, err := ImportCalLibrary([]byte("version: 99\nactive: []\napplied: []\n"))
	assert.Error(t, err)
}

func TestImportCalLibrary_RestoresSharedCalFrom(t *testing.T) {
	// Two applications of one table re-import as one shared CalFrom.
	lib := NewCalLibrary()
	from := &CalFrom{Table: "antpos.tbl", CalType: CalTypeAntpos}
	require.NoError(t, lib.Add(CalApplication{To: CalTo{Vis: "ms1", Field: IDList(0)}, From: from,
		Origin: Origin{StageID: 1, Task: "hifa_antpos", Time: testEpoch}}))
	require.NoError(t, lib.Add(CalApplication{To: CalTo{Vis: "ms1", Field: IDList(1)}, From: from,
		Origin: Origin{StageID: 1, Task: "hifa_antpos", Time: testEpoch}}))

	data, err := lib.Export()
	require.NoError(t, err)
	restored, err := ImportCalLibrary(data)
	require.NoError(t, err)

	apps := restored.Active.Get(CalTo{Vis: "ms1"}, nil)
	require.Len(t, apps, 2)
	assert.Same(t, apps[0].From, apps[1].From)
}
