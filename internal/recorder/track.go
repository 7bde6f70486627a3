package recorder

import "midirec/sdk/contracts"

// Accumulator is the append-only ordered store for one session's events.
type Accumulator struct {
	ticksPerBeat uint16
	tempoBPM     float64
	events       []contracts.TrackEvent
}

// NewAccumulator returns an empty Accumulator for the given resolution and tempo.
func NewAccumulator(ticksPerBeat uint16, tempoBPM float64) *Accumulator {
	return &Accumulator{ticksPerBeat: ticksPerBeat, tempoBPM: tempoBPM}
}

// Append adds one event. O(1) amortized.
func (a *Accumulator) Append(event contracts.TrackEvent) {
	a.events = append(a.events, event)
}

// Len returns the number of accumulated events.
func (a *Accumulator) Len() int {
	return len(a.events)
}

// Drain consumes all accumulated events into a Track, leaving the accumulator
// empty and ready for a new session. The returned Track owns its event slice.
func (a *Accumulator) Drain() contracts.Track {
	track := contracts.Track{
		TicksPerBeat: a.ticksPerBeat,
		TempoBPM:     a.tempoBPM,
		Events:       a.events,
	}
	a.events = nil
	return track
}
