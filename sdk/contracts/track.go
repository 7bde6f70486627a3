package contracts

// ChannelVoiceKind identifies the type of a channel-voice message, derived
// from the high nibble of the status byte.
type ChannelVoiceKind byte

const (
	// KindUnknown marks a status whose high nibble matches no channel-voice type.
	KindUnknown ChannelVoiceKind = iota
	KindNoteOff
	KindNoteOn
	KindPolyAftertouch
	KindControlChange
	KindProgramChange
	KindChannelAftertouch
	KindPitchBend
)

var kindNames = map[ChannelVoiceKind]string{
	KindUnknown:           "Unknown",
	KindNoteOff:           "NoteOff",
	KindNoteOn:            "NoteOn",
	KindPolyAftertouch:    "PolyAftertouch",
	KindControlChange:     "ControlChange",
	KindProgramChange:     "ProgramChange",
	KindChannelAftertouch: "ChannelAftertouch",
	KindPitchBend:         "PitchBend",
}

func (k ChannelVoiceKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// IsNote reports whether the kind anchors musical rhythm, i.e. whether the
// timing accumulator resets after recording it.
func (k ChannelVoiceKind) IsNote() bool {
	return k == KindNoteOn || k == KindNoteOff
}

// TrackEvent is one decoded and quantized event.
// TickDelta is the quantized time elapsed since the previous recorded event;
// the shared accumulator resets only after NoteOn/NoteOff, so consecutive
// controller events carry the running accumulation instead.
type TrackEvent struct {
	Kind      ChannelVoiceKind
	Channel   byte // 0-15.
	Data1     byte
	Data2     byte
	TickDelta uint32
}

// Track is an ordered sequence of recorded events with a fixed resolution and
// tempo. A Track is handed to a TrackWriter by value on flush and not reused.
type Track struct {
	TicksPerBeat uint16
	TempoBPM     float64
	Events       []TrackEvent
}

// TrackWriter persists a Track as a Format-0 single-track MIDI file.
//
// Writing is deterministic: persisting the same Track twice yields
// byte-identical files. A failed write does not consume the Track, so the
// caller may retry with another path.
type TrackWriter interface {
	Write(track Track, path string) error
}
