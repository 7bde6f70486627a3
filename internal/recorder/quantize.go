package recorder

import "math"

// Quantizer converts accumulated wall-clock time into integer tick deltas for
// a fixed tempo and resolution.
//
// Every raw event advances the accumulator by its reported delta seconds,
// including events that never reach the track. The accumulator resets only
// after a NoteOn or NoteOff is recorded, so note-to-note timing stays exact
// while dense controller bursts cannot drift the grid.
type Quantizer struct {
	ticksPerBeat uint16
	tempoBPM     float64
	accumulated  float64
}

// NewQuantizer returns a Quantizer with an empty accumulator.
func NewQuantizer(ticksPerBeat uint16, tempoBPM float64) *Quantizer {
	return &Quantizer{ticksPerBeat: ticksPerBeat, tempoBPM: tempoBPM}
}

// Advance adds the reported gap since the previous raw event. Negative gaps
// are treated as zero; the gateway contract excludes them.
func (q *Quantizer) Advance(deltaSeconds float64) {
	if deltaSeconds > 0 {
		q.accumulated += deltaSeconds
	}
}

// Ticks quantizes the accumulated time: round(seconds * ticksPerBeat * bpm / 60),
// rounding half away from zero.
func (q *Quantizer) Ticks() uint32 {
	return uint32(math.Round(q.accumulated * float64(q.ticksPerBeat) * q.tempoBPM / 60.0))
}

// Reset clears the accumulator. Called after recording a NoteOn or NoteOff.
func (q *Quantizer) Reset() {
	q.accumulated = 0
}

// AccumulatedSeconds exposes the running accumulation for debug logging.
func (q *Quantizer) AccumulatedSeconds() float64 {
	return q.accumulated
}
