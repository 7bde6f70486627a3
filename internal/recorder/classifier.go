package recorder

import "midirec/sdk/contracts"

// Classify decodes a status byte into its channel-voice kind and channel.
// The kind comes from the high nibble, the channel from the low nibble.
// System statuses (>= 0xF0) and anything below the channel-voice range decode
// to KindUnknown; the caller drops those without error, after folding their
// delta time into the timing accumulator.
func Classify(status byte) (contracts.ChannelVoiceKind, byte) {
	channel := status & 0x0F
	switch status & 0xF0 {
	case 0x80:
		return contracts.KindNoteOff, channel
	case 0x90:
		return contracts.KindNoteOn, channel
	case 0xA0:
		return contracts.KindPolyAftertouch, channel
	case 0xB0:
		return contracts.KindControlChange, channel
	case 0xC0:
		return contracts.KindProgramChange, channel
	case 0xD0:
		return contracts.KindChannelAftertouch, channel
	case 0xE0:
		return contracts.KindPitchBend, channel
	default:
		return contracts.KindUnknown, channel
	}
}
