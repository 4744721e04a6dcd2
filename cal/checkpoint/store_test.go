package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipecal/pipecal/cal"
)

func testLibrary(t *testing.T) *cal.CalLibrary {
	t.Helper()
	lib := cal.NewCalLibrary()
	require.NoError(t, lib.RegisterShape(cal.VisShape{Vis: "ms1", NAntennas: 4, NSpws: 4, NFields: 2}))
	app := cal.CalApplication{
		To:     cal.CalTo{Vis: "ms1", Field: cal.IDList(0)},
		From:   &cal.CalFrom{Table: "bp.tbl", CalType: cal.CalTypeBandpass, Interp: cal.Interp{Time: "linear", Freq: "nearest"}},
		Origin: cal.Origin{StageID: 3, Task: "hifa_bandpass", Time: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, lib.Add(app))
	return lib
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pipecal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndLoadLatest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	runID, err := store.NewRun(ctx, "", "nightly reduction")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	lib := testLibrary(t)
	seq, err := store.Save(ctx, runID, lib)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	restored, err := store.LoadLatest(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, restored)

	query := cal.CalTo{Vis: "ms1", Field: cal.IDList(0)}
	got := restored.Active.Get(query, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "bp.tbl", got[0].From.Table)
	assert.Equal(t, 3, got[0].Origin.StageID)
}

func TestStore_LoadLatestReturnsNewestCheckpoint(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	runID, err := store.NewRun(ctx, "run-1", "")
	require.NoError(t, err)

	lib := testLibrary(t)
	_, err = store.Save(ctx, runID, lib)
	require.NoError(t, err)

	require.NoError(t, lib.Add(cal.CalApplication{
		To:     cal.CalTo{Vis: "ms1"},
		From:   &cal.CalFrom{Table: "gain.tbl", CalType: cal.CalTypeGaincal},
		Origin: cal.Origin{StageID: 4, Task: "hifa_timegaincal", Time: time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)},
	}))
	seq, err := store.Save(ctx, runID, lib)
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	restored, err := store.LoadLatest(ctx, runID)
	require.NoError(t, err)
	got := restored.Active.Get(cal.CalTo{Vis: "ms1"}, nil)
	assert.Len(t, got, 2, "latest checkpoint carries both applications")
}

func TestStore_LoadLatestOnEmptyRun(t *testing.T) {
	store := openTestStore(t)
	lib, err := store.LoadLatest(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, lib)
}

func TestStore_ListRuns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, err := store.NewRun(ctx, "run-a", "first")
	require.NoError(t, err)
	_, err = store.NewRun(ctx, "run-b", "second")
	require.NoError(t, err)
	_, err = store.Save(ctx, a, testLibrary(t))
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := make(map[string]RunInfo)
	for _, r := range runs {
		byID[r.RunID] = r
	}
	assert.Equal(t, int64(1), byID["run-a"].Checkpoints)
	assert.Equal(t, int64(0), byID["run-b"].Checkpoints)
	assert.Equal(t, "first", byID["run-a"].Label)
}
