package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midirec/sdk/contracts"
)

func TestAccumulatorAppendAndDrain(t *testing.T) {
	acc := NewAccumulator(480, 120)
	assert.Equal(t, 0, acc.Len())

	acc.Append(contracts.TrackEvent{Kind: contracts.KindNoteOn, Data1: 60, Data2: 100})
	acc.Append(contracts.TrackEvent{Kind: contracts.KindNoteOff, Data1: 60, TickDelta: 480})
	require.Equal(t, 2, acc.Len())

	track := acc.Drain()
	assert.Equal(t, uint16(480), track.TicksPerBeat)
	assert.Equal(t, 120.0, track.TempoBPM)
	require.Len(t, track.Events, 2)
	assert.Equal(t, contracts.KindNoteOn, track.Events[0].Kind)
	assert.Equal(t, uint32(480), track.Events[1].TickDelta)

	// Drained accumulator is empty and ready for a new session.
	assert.Equal(t, 0, acc.Len())
	assert.Empty(t, acc.Drain().Events)
}

func TestAccumulatorDrainHandsOffEvents(t *testing.T) {
	acc := NewAccumulator(480, 120)
	acc.Append(contracts.TrackEvent{Kind: contracts.KindControlChange, Data1: 64, Data2: 127})
	track := acc.Drain()

	acc.Append(contracts.TrackEvent{Kind: contracts.KindNoteOn, Data1: 61})
	require.Len(t, track.Events, 1)
	assert.Equal(t, contracts.KindControlChange, track.Events[0].Kind)
}
