package contracts

// RawEvent is one raw message as delivered by a gateway.
// DeltaSeconds is the wall-clock gap since the previous delivered event; it is
// never negative and the first event of a connection carries 0.
type RawEvent struct {
	Status       byte    // Status byte including the channel nibble.
	Data1        byte    // First data byte (note, controller, program...).
	Data2        byte    // Second data byte (velocity, value); 0 for two-byte messages.
	DeltaSeconds float64 // Seconds elapsed since the previous event.
}

// ClientMIDI defines an interface for MIDI gateway operations.
//
// Gateways pre-filter system-exclusive, timing-clock and active-sensing bytes,
// so a RawEvent with Status >= 0xF0 is never delivered. A gateway signals an
// unrecoverable failure by closing the capture channel.
type ClientMIDI interface {
	Stop() error                             // Stops the gateway and releases resources.
	ListDevices() ([]DeviceInfo, error)      // Lists all available MIDI input devices.
	SelectDevice(deviceID int) error         // Opens a device by index; reselecting closes and reopens it.
	StartCapture(eventChannel chan RawEvent) // Starts delivering RawEvents to the channel.
}
