package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuantizerHalfSecondAt120BPM(t *testing.T) {
	q := NewQuantizer(480, 120)
	q.Advance(0.5)
	assert.Equal(t, uint32(480), q.Ticks())
}

func TestQuantizerRoundsToNearest(t *testing.T) {
	q := NewQuantizer(480, 120)

	// 480 ticks/beat at 120 BPM is 960 ticks/second.
	q.Advance(0.007) // 6.72 ticks
	assert.Equal(t, uint32(7), q.Ticks())

	q.Reset()
	q.Advance(0.0065) // 6.24 ticks
	assert.Equal(t, uint32(6), q.Ticks())
}

func TestQuantizerRoundsHalfAwayFromZero(t *testing.T) {
	q := NewQuantizer(480, 120)
	// 1/128 s is exactly 7.5 ticks at 960 ticks/second.
	q.Advance(0.0078125)
	assert.Equal(t, uint32(8), q.Ticks())
}

func TestQuantizerAccumulatesAcrossEvents(t *testing.T) {
	q := NewQuantizer(480, 120)
	q.Advance(0.1)
	q.Advance(0.15)
	q.Advance(0.25)
	assert.Equal(t, uint32(480), q.Ticks())
	assert.InDelta(t, 0.5, q.AccumulatedSeconds(), 1e-9)
}

func TestQuantizerReset(t *testing.T) {
	q := NewQuantizer(480, 120)
	q.Advance(1.0)
	q.Reset()
	assert.Equal(t, uint32(0), q.Ticks())

	q.Advance(0.5)
	assert.Equal(t, uint32(480), q.Ticks())
}

func TestQuantizerIgnoresNegativeDeltas(t *testing.T) {
	q := NewQuantizer(480, 120)
	q.Advance(0.5)
	q.Advance(-1.0)
	assert.Equal(t, uint32(480), q.Ticks())
}

func TestQuantizerOtherResolutions(t *testing.T) {
	q := NewQuantizer(96, 100)
	// 96 ticks/beat at 100 BPM is 160 ticks/second.
	q.Advance(1.0)
	assert.Equal(t, uint32(160), q.Ticks())
}
