package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackerStartsIdle(t *testing.T) {
	tr := NewTracker(false)

	st := tr.Current()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Zero(t, st.Progress)
	assert.Empty(t, st.CurrentAsset)
	assert.Empty(t, st.Err)
	assert.False(t, st.Simulated)

	assert.True(t, NewTracker(true).Current().Simulated)
}

func TestUpdateMergesOnlyPatchedFields(t *testing.T) {
	tr := NewTracker(false)
	tr.Downloading("main", 42)

	progress := 55
	tr.Update(Patch{Progress: &progress})

	st := tr.Current()
	assert.Equal(t, PhaseDownloading, st.Phase)
	assert.Equal(t, 55, st.Progress)
	assert.Equal(t, "main", st.CurrentAsset)
}

func TestSubscribeAccumulatesObservers(t *testing.T) {
	tr := NewTracker(false)

	var first, second []Status
	tr.Subscribe(func(s Status) { first = append(first, s) })
	tr.Subscribe(func(s Status) { second = append(second, s) })

	tr.Downloading("main", 10)
	tr.Ready()

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, PhaseDownloading, first[0].Phase)
	assert.Equal(t, PhaseReady, first[1].Phase)
}

func TestObserverMayReadCurrentWithoutDeadlock(t *testing.T) {
	tr := NewTracker(false)

	var seen Status
	tr.Subscribe(func(s Status) {
		seen = tr.Current()
	})

	tr.Downloading("projector", 30)
	assert.Equal(t, PhaseDownloading, seen.Phase)
}

func TestPhaseHelpers(t *testing.T) {
	tr := NewTracker(true)

	tr.Downloading("main", 25)
	st := tr.Current()
	assert.Equal(t, PhaseDownloading, st.Phase)
	assert.Equal(t, 25, st.Progress)
	assert.Equal(t, "main", st.CurrentAsset)

	tr.Initializing("projector", 60)
	st = tr.Current()
	assert.Equal(t, PhaseInitializing, st.Phase)
	assert.Equal(t, "projector", st.CurrentAsset)

	tr.Ready()
	st = tr.Current()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Equal(t, 100, st.Progress)
	assert.Empty(t, st.CurrentAsset)
	assert.Empty(t, st.Err)
	assert.True(t, st.Simulated, "simulated flag survives phase transitions")

	tr.Fail("transfer interrupted")
	st = tr.Current()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, "transfer interrupted", st.Err)
	assert.Zero(t, st.Progress)

	tr.Idle()
	st = tr.Current()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.Err)
}

func TestReadyClearsEarlierError(t *testing.T) {
	tr := NewTracker(false)
	tr.Fail("boom")
	tr.Ready()

	st := tr.Current()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Empty(t, st.Err)
}
