package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTrackerTransitions(t *testing.T) {
	s := NewStatusTracker()
	key := RecordKey("widget", "abc123")

	_, ok := s.Get(key)
	assert.False(t, ok)

	s.Set(key, StatePending, nil)
	s.Set(key, StateUploading, nil)
	s.Set(key, StateRetryWait, errTransient)
	s.Set(key, StateUploading, nil)
	s.Set(key, StateRetryWait, errTransient)
	s.Set(key, StateUploaded, nil)

	status, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, StateUploaded, status.State)
	assert.Equal(t, 2, status.Retries)
	assert.NoError(t, status.Error)
	assert.False(t, status.LastUpdated.IsZero())

	// a new push of the same record starts over
	s.Set(key, StatePending, nil)
	status, _ = s.Get(key)
	assert.Zero(t, status.Retries)
}

func TestStatusTrackerEvents(t *testing.T) {
	s := NewStatusTracker()
	events := s.Subscribe()

	s.Set("widget/abc123", StateBuilding, nil)
	s.Set("widget/abc123", StateBuildFailed, assert.AnError)

	ev := <-events
	assert.Equal(t, "widget/abc123", ev.Key)
	assert.Equal(t, StateBuilding, ev.Status.State)

	ev = <-events
	assert.Equal(t, StateBuildFailed, ev.Status.State)
	assert.ErrorIs(t, ev.Status.Error, assert.AnError)

	s.Unsubscribe(events)
	_, open := <-events
	assert.False(t, open)

	// no subscribers left, must not block
	s.Set("widget/abc123", StatePending, nil)
}

func TestStatusTrackerCounts(t *testing.T) {
	s := NewStatusTracker()
	s.Set("a", StateUploaded, nil)
	s.Set("b", StateUploaded, nil)
	s.Set("c", StateConflicted, nil)

	assert.Equal(t, map[RecordState]int{StateUploaded: 2, StateConflicted: 1}, s.Counts())
}

func TestStatusTrackerNil(t *testing.T) {
	var s *StatusTracker
	assert.NotPanics(t, func() { s.Set("a", StatePending, nil) })
}

func TestRecordStateTerminal(t *testing.T) {
	for _, st := range []RecordState{StateBuildFailed, StateConflicted, StateFailed, StateUploaded} {
		assert.True(t, st.Terminal(), st)
	}
	for _, st := range []RecordState{StatePending, StateBuilding, StateBuilt, StateConflictChecking, StateConflictClear, StateUploading, StateRetryWait} {
		assert.False(t, st.Terminal(), st)
	}
}
