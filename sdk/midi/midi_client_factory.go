package midi

import (
	"errors"
	"fmt"
	"runtime"

	"midirec/internal/midi/mididarwin"
	"midirec/internal/midi/midirtmidi"
	"midirec/internal/midi/midiwindows"
	"midirec/sdk/contracts"
)

// ErrUnsupportedOS is returned when the operating system is not supported by the MIDI client.
var ErrUnsupportedOS = errors.New("unsupported operating system")

// clientInitializers maps OS names to corresponding MIDI gateway initializers.
var clientInitializers = map[string]func(*contracts.ClientOptions) (contracts.ClientMIDI, error){
	"darwin":  mididarwin.NewMIDIClient,  // macOS (Darwin) CoreMIDI gateway.
	"windows": midiwindows.NewMIDIClient, // Windows winmm gateway.
	"linux":   midirtmidi.NewMIDIClient,  // Linux rtmidi (ALSA) gateway.
}

// NewClient initializes a MIDI gateway based on the current operating system.
// It supports macOS (Darwin), Windows and Linux, returning ErrUnsupportedOS if
// the OS is unsupported.
//
// opts *contracts.ClientOptions: Configuration options for the MIDI client.
//
// Returns:
//   - contracts.ClientMIDI: An instance of the MIDI gateway client.
//   - error: An error if the operating system is unsupported or if initialization fails.
func NewClient(opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	if initializer, exists := clientInitializers[runtime.GOOS]; exists {
		return initializer(opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, runtime.GOOS)
}
