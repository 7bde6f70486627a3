package contracts

// MIDICommand represents the types of MIDI commands for event filtering.
type MIDICommand byte

const (
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80
)

// MIDIEventFilter restricts capture to the given commands (status high nibble
// plus channel 0 form). When nil, every channel-voice message is delivered.
type MIDIEventFilter struct {
	Commands []MIDICommand
}

// ClientConfig holds gateway-wide configuration.
type ClientConfig struct {
	ClientName string // Name under which the gateway registers with the OS MIDI service.
	BufferSize int    // Capacity hint for gateway-internal buffering.
}

// ClientOptions defines the configuration options for the MIDI gateway client.
type ClientOptions struct {
	Logger          Logger           // Logger for logging events and errors.
	LogLevel        LogLevel         // Level of logging to use.
	LogFilePath     string           // File path for logging if file logging is enabled.
	MIDIEventFilter *MIDIEventFilter // Optional filter for MIDI events to capture.
	ClientConfig    *ClientConfig    // Gateway-wide configuration.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the MIDI client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the MIDI client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithMIDIEventFilter sets the MIDI event filter for the MIDI client.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *ClientOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithClientConfig sets the gateway-wide configuration for the MIDI client.
func WithClientConfig(config ClientConfig) Option {
	return func(opts *ClientOptions) {
		opts.ClientConfig = &config
	}
}
