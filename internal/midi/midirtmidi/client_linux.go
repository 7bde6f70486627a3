//go:build linux && cgo
// +build linux,cgo

package midirtmidi

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midirec/sdk/contracts"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrNoMIDIDevices     = errors.New("no MIDI devices found")
	ErrInvalidMIDIDevice = errors.New("invalid MIDI device")
	ErrOpenInputPort     = errors.New("error opening input port")
)

// ClientMid manages MIDI capture on Linux through the rtmidi (ALSA) driver.
// Inter-event gaps come from the listener's millisecond timestamps. The
// listener is configured without sysex, timing-clock or active-sense
// passthrough, so only channel-voice messages are delivered.
type ClientMid struct {
	logger          contracts.Logger
	eventChannel    atomic.Value
	driver          *rtmididrv.Driver
	inPort          drivers.In
	stopFn          func()
	midiEventFilter *contracts.MIDIEventFilter
	clientConfig    *contracts.ClientConfig
	mu              sync.Mutex
	failed          bool

	timeMu  sync.Mutex
	lastMS  int32
	hasLast bool
}

// NewMIDIClient initializes a new ClientMid backed by rtmidi.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("error creating rtmidi driver: %w", err)
	}
	options.Logger.Info("MIDI client successfully created")

	return &ClientMid{
		logger:          options.Logger,
		driver:          driver,
		midiEventFilter: options.MIDIEventFilter,
		clientConfig:    options.ClientConfig,
	}, nil
}

// ListDevices retrieves and returns available MIDI input ports.
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	ins, err := m.driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI inputs: %w", err)
	}
	if len(ins) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, len(ins))
	for i, in := range ins {
		devices[i] = contracts.DeviceInfo{
			Name:         in.String(),
			EntityName:   in.String(),
			Manufacturer: "rtmidi",
		}
	}
	return devices, nil
}

// SelectDevice opens a MIDI input port by index. If a port is already open it
// is closed first, so reselecting the same index closes and reopens the port
// with a fresh driver buffer; capture resumes automatically when a capture
// channel is already registered.
func (m *ClientMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closePortLocked()

	ins, err := m.driver.Ins()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI inputs: %w", err)
	}
	if deviceID < 0 || deviceID >= len(ins) {
		m.logger.Error(ErrInvalidMIDIDevice.Error())
		return ErrInvalidMIDIDevice
	}

	in := ins[deviceID]
	if err := in.Open(); err != nil {
		m.logger.Error(ErrOpenInputPort.Error())
		return fmt.Errorf("%w: %v", ErrOpenInputPort, err)
	}
	m.inPort = in

	m.timeMu.Lock()
	m.hasLast = false
	m.timeMu.Unlock()

	m.logger.Info("MIDI device selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", in.String()))

	if _, ok := m.eventChannel.Load().(chan contracts.RawEvent); ok {
		if err := m.listenLocked(); err != nil {
			return err
		}
	}

	m.logger.Info("MIDI device successfully connected")
	return nil
}

// StartCapture registers the capture channel and starts listening on the
// currently open port.
func (m *ClientMid) StartCapture(eventChannel chan contracts.RawEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventChannel == nil {
		m.logger.Error("StartCapture called with nil eventChannel")
		return
	}
	if m.inPort == nil {
		m.logger.Error("Cannot start capture: No MIDI device selected")
		return
	}

	m.eventChannel.Store(eventChannel)

	if err := m.listenLocked(); err != nil {
		m.logger.Error("Failed to start MIDI listener", m.logger.Field().Error("error", err))
		return
	}
	m.logger.Info("MIDI capture started")
}

// listenLocked installs the listener on the open port. Callers hold m.mu.
func (m *ClientMid) listenLocked() error {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}

	stop, err := gomidi.ListenTo(m.inPort, m.handleMessage, gomidi.HandleError(m.handleListenError))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpenInputPort, err)
	}
	m.stopFn = stop
	return nil
}

// deltaSeconds converts the listener timestamp into the gap since the
// previous event. The first event after (re)opening reports 0.
func (m *ClientMid) deltaSeconds(currentMS int32) float64 {
	m.timeMu.Lock()
	defer m.timeMu.Unlock()

	var delta float64
	if m.hasLast && currentMS > m.lastMS {
		delta = float64(currentMS-m.lastMS) / 1000.0
	}
	m.lastMS = currentMS
	m.hasLast = true
	return delta
}

// handleMessage converts an incoming message into a RawEvent and delivers it
// to the capture channel. The listener already withholds sysex, timing-clock
// and active-sense traffic; remaining system bytes are dropped here.
func (m *ClientMid) handleMessage(msg gomidi.Message, timestampms int32) {
	eventChannel, _ := m.eventChannel.Load().(chan contracts.RawEvent)
	if eventChannel == nil {
		return
	}

	raw := msg.Bytes()
	if len(raw) < 2 {
		return
	}
	status := raw[0]
	if status >= 0xF0 {
		return
	}
	if m.midiEventFilter != nil && !isCommandAllowed(status&0xF0, m.midiEventFilter.Commands) {
		return
	}

	event := contracts.RawEvent{
		Status:       status,
		Data1:        raw[1],
		DeltaSeconds: m.deltaSeconds(timestampms),
	}
	if len(raw) >= 3 {
		event.Data2 = raw[2]
	}

	select {
	case eventChannel <- event:
	default:
		m.logger.Warn("Event buffer full; dropping MIDI event")
	}
}

// handleListenError reports an unrecoverable listener failure by closing the
// capture channel, which the consumer treats as a fatal gateway error.
func (m *ClientMid) handleListenError(err error) {
	m.logger.Error("MIDI listener error; device likely disconnected",
		m.logger.Field().Error("error", err))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return
	}
	m.failed = true
	if ch, ok := m.eventChannel.Load().(chan contracts.RawEvent); ok && ch != nil {
		close(ch)
	}
}

// isCommandAllowed verifies if a MIDI command is allowed based on the event filter configuration.
func isCommandAllowed(command byte, allowedCommands []contracts.MIDICommand) bool {
	for _, allowedCommand := range allowedCommands {
		if command == byte(allowedCommand) {
			return true
		}
	}
	return false
}

// closePortLocked stops the listener and closes the port. Callers hold m.mu.
func (m *ClientMid) closePortLocked() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	if m.inPort != nil {
		_ = m.inPort.Close()
		m.inPort = nil
	}
}

// Stop halts MIDI event capturing and releases the driver.
func (m *ClientMid) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Stopping MIDI capture")
	m.closePortLocked()

	// Store a dummy channel so late callbacks cannot write into the
	// caller's channel after Stop returns.
	dummyChannel := make(chan contracts.RawEvent)
	m.eventChannel.Store(dummyChannel)

	if m.driver != nil {
		_ = m.driver.Close()
	}
	m.logger.Info("MIDI capture stopped")
	return nil
}
