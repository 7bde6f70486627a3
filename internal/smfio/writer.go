// Package smfio persists recorded tracks as Format-0 Standard MIDI Files.
package smfio

import (
	"errors"
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"midirec/sdk/contracts"
)

// ErrWrite wraps failures while creating or writing the output file.
var ErrWrite = errors.New("error writing MIDI file")

// Writer implements contracts.TrackWriter. Serialization is deterministic:
// the same Track always produces byte-identical files.
type Writer struct{}

// NewWriter returns a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Write persists the track to path as a Format-0 single-track file. The file
// header carries the track's resolution and the track opens with a tempo meta
// event. An empty track still produces a valid file.
func (w *Writer) Write(track contracts.Track, path string) error {
	mf := smf.New()
	mf.TimeFormat = smf.MetricTicks(track.TicksPerBeat)

	tr := smf.Track{}
	tr.Add(0, smf.MetaTempo(track.TempoBPM))
	for _, ev := range track.Events {
		if msg := message(ev); msg != nil {
			tr.Add(ev.TickDelta, msg)
		}
	}
	tr.Close(0)
	mf.Add(tr)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if _, err := mf.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// message encodes one recorded event as a channel-voice message.
func message(ev contracts.TrackEvent) midi.Message {
	switch ev.Kind {
	case contracts.KindNoteOff:
		return midi.NoteOffVelocity(ev.Channel, ev.Data1, ev.Data2)
	case contracts.KindNoteOn:
		return midi.NoteOn(ev.Channel, ev.Data1, ev.Data2)
	case contracts.KindPolyAftertouch:
		return midi.PolyAfterTouch(ev.Channel, ev.Data1, ev.Data2)
	case contracts.KindControlChange:
		return midi.ControlChange(ev.Channel, ev.Data1, ev.Data2)
	case contracts.KindProgramChange:
		return midi.ProgramChange(ev.Channel, ev.Data1)
	case contracts.KindChannelAftertouch:
		return midi.AfterTouch(ev.Channel, ev.Data1)
	case contracts.KindPitchBend:
		return midi.Pitchbend(ev.Channel, pitchBendValue(ev.Data1, ev.Data2))
	default:
		// Unknown kinds never reach the accumulator.
		return nil
	}
}

// pitchBendValue reassembles the 14-bit bend from its data bytes and centers
// it on 0 (-8192..8191).
func pitchBendValue(lsb, msb byte) int16 {
	return int16(uint16(msb&0x7F)<<7|uint16(lsb&0x7F)) - 8192
}
