package recorder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"midirec/sdk/contracts"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  byte
		kind    contracts.ChannelVoiceKind
		channel byte
	}{
		{"note on channel 0", 0x90, contracts.KindNoteOn, 0},
		{"note on channel 15", 0x9F, contracts.KindNoteOn, 15},
		{"note off", 0x80, contracts.KindNoteOff, 0},
		{"note off channel 3", 0x83, contracts.KindNoteOff, 3},
		{"poly aftertouch", 0xA5, contracts.KindPolyAftertouch, 5},
		{"control change", 0xB1, contracts.KindControlChange, 1},
		{"program change", 0xC2, contracts.KindProgramChange, 2},
		{"channel aftertouch", 0xD7, contracts.KindChannelAftertouch, 7},
		{"pitch bend", 0xE4, contracts.KindPitchBend, 4},
		{"below channel-voice range", 0x70, contracts.KindUnknown, 0},
		{"system exclusive", 0xF0, contracts.KindUnknown, 0},
		{"active sensing", 0xFE, contracts.KindUnknown, 14},
		{"zero", 0x00, contracts.KindUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, channel := Classify(tt.status)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.channel, channel)
		})
	}
}

func TestKindIsNote(t *testing.T) {
	assert.True(t, contracts.KindNoteOn.IsNote())
	assert.True(t, contracts.KindNoteOff.IsNote())
	assert.False(t, contracts.KindControlChange.IsNote())
	assert.False(t, contracts.KindPitchBend.IsNote())
	assert.False(t, contracts.KindUnknown.IsNote())
}
