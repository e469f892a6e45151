package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionFor(t *testing.T) {
	tests := []struct {
		from    State
		event   Event
		to      State
		effects Effect
		ok      bool
	}{
		{StateIdle, EvAttach, StateLoading, 0, true},
		{StateLoading, EvMetadata, StateReady, EffectStartPending, true},
		{StateReady, EvPlay, StatePlaying, EffectArmCheckpoint, true},
		{StatePaused, EvPlay, StatePlaying, EffectArmCheckpoint, true},
		{StateEnded, EvPlay, StatePlaying, EffectArmCheckpoint, true},
		{StatePlaying, EvPause, StatePaused, EffectDisarmCheckpoint, true},
		{StatePlaying, EvEnded, StateEnded, EffectDisarmCheckpoint | EffectFinalCheckpoint, true},
		{StateReady, EvFault, StateError, EffectDisarmCheckpoint | EffectReportError, true},
		{StateError, EvDetach, StateIdle, EffectDisarmCheckpoint, true},

		{StateIdle, EvPlay, 0, 0, false},
		{StateLoading, EvPlay, 0, 0, false},
		{StateReady, EvPause, 0, 0, false},
		{StatePlaying, EvPlay, 0, 0, false},
		{StateError, EvPlay, 0, 0, false},
		{StateError, EvFault, 0, 0, false},
		{StateIdle, EvFault, 0, 0, false},
		{StateReady, EvMetadata, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			tr, ok := TransitionFor(tt.from, tt.event)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.effects, tr.Effects)
		})
	}
}

func TestEveryStateCanDetach(t *testing.T) {
	for _, s := range []State{StateIdle, StateLoading, StateReady, StatePlaying, StatePaused, StateEnded, StateError} {
		tr, ok := TransitionFor(s, EvDetach)
		require.True(t, ok, s.String())
		assert.Equal(t, StateIdle, tr.To)
	}
}

func TestMachineIllegalTransitionLeavesState(t *testing.T) {
	var m Machine
	_, err := m.Fire(EvPlay)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateIdle, m.State())

	_, err = m.Fire(EvAttach)
	require.NoError(t, err)
	_, err = m.Fire(EvPause)
	require.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, StateLoading, m.State())
}

func TestMachineSeekOverlay(t *testing.T) {
	var m Machine
	require.ErrorIs(t, m.BeginSeek(), ErrIllegalTransition)

	for _, ev := range []Event{EvAttach, EvMetadata, EvPlay} {
		_, err := m.Fire(ev)
		require.NoError(t, err)
	}

	require.NoError(t, m.BeginSeek())
	assert.True(t, m.Seeking())
	assert.Equal(t, StatePlaying, m.State())

	_, err := m.Fire(EvPause)
	require.NoError(t, err)
	assert.True(t, m.Seeking(), "pausing mid-seek keeps the overlay")
	m.EndSeek()
	assert.False(t, m.Seeking())
	assert.Equal(t, StatePaused, m.State())

	require.NoError(t, m.BeginSeek())
	_, err = m.Fire(EvFault)
	require.NoError(t, err)
	assert.False(t, m.Seeking())
	assert.False(t, m.Can(EvPlay))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.Equal(t, "metadata", EvMetadata.String())
	assert.Equal(t, "event(9)", Event(9).String())
	assert.True(t, (EffectDisarmCheckpoint | EffectFinalCheckpoint).Has(EffectFinalCheckpoint))
	assert.False(t, EffectArmCheckpoint.Has(EffectArmCheckpoint|EffectReportError))
}
