//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/youpy/go-coremidi"

	"midirec/sdk/contracts"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrNoMIDIDevices        = errors.New("no MIDI devices found")
	ErrInvalidMIDIDevice    = errors.New("invalid MIDI device")
	ErrMIDIConnectionError  = errors.New("error connecting to MIDI device")
	ErrCreateInputPort      = errors.New("error creating input port")
	ErrIncompleteMIDIPacket = errors.New("incomplete MIDI packet")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// ClientMid manages MIDI capture on Darwin (macOS) systems. It connects to a
// source, timestamps incoming packets and delivers RawEvents with the elapsed
// gap since the previous event. Realtime and system-exclusive bytes are
// filtered before delivery.
type ClientMid struct {
	logger          contracts.Logger
	eventChannel    atomic.Value // Atomic storage for the event channel to ensure thread safety.
	client          coremidi.Client
	inputPort       coremidi.InputPort
	portConn        internalPortConnection
	midiEventFilter *contracts.MIDIEventFilter
	clientConfig    *contracts.ClientConfig
	mu              sync.Mutex // Guards connection state.
	capturing       bool
	wg              sync.WaitGroup

	timeMu    sync.Mutex // Guards the inter-event clock.
	lastEvent time.Time
}

// NewMIDIClient initializes a new ClientMid for capturing MIDI events on macOS.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	client, err := coremidi.NewClient(options.ClientConfig.ClientName)
	if err != nil {
		return nil, err
	}
	options.Logger.Info("MIDI client successfully created")

	return &ClientMid{
		logger:          options.Logger,
		client:          client,
		midiEventFilter: options.MIDIEventFilter,
		clientConfig:    options.ClientConfig,
	}, nil
}

// ListDevices retrieves and returns available MIDI sources.
// If no sources are found, an error is logged and returned.
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}
	if len(sources) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, len(sources))
	for i, source := range sources {
		sourceEntity := source.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         source.Name(),
			EntityName:   sourceEntity.Name(),
			Manufacturer: sourceEntity.Manufacturer(),
		}
	}
	return devices, nil
}

// SelectDevice connects to a MIDI source by index. If a source is already
// connected it disconnects first, so reselecting the same index closes and
// reopens the port; the inter-event clock restarts from the reconnection.
func (m *ClientMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI sources: %w", err)
	}
	if deviceID < 0 || deviceID >= len(sources) {
		m.logger.Error(ErrInvalidMIDIDevice.Error())
		return ErrInvalidMIDIDevice
	}

	if m.portConn != nil {
		m.portConn.Disconnect()
		m.portConn = nil
	}

	source := sources[deviceID]
	m.logger.Info("MIDI device selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", source.Name()))

	m.inputPort, err = coremidi.NewInputPort(m.client, "Input Port", m.handleMIDIMessage)
	if err != nil {
		m.logger.Error(ErrCreateInputPort.Error())
		return fmt.Errorf("%w: %v", ErrCreateInputPort, err)
	}

	m.portConn, err = m.inputPort.Connect(source)
	if err != nil {
		m.logger.Error(ErrMIDIConnectionError.Error())
		return fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}

	m.timeMu.Lock()
	m.lastEvent = time.Time{}
	m.timeMu.Unlock()

	m.logger.Info("MIDI device successfully connected")
	return nil
}

// deltaSeconds returns the gap since the previous delivered event and advances
// the clock. The first event after a (re)connection reports 0.
func (m *ClientMid) deltaSeconds(now time.Time) float64 {
	m.timeMu.Lock()
	defer m.timeMu.Unlock()

	var delta float64
	if !m.lastEvent.IsZero() {
		delta = now.Sub(m.lastEvent).Seconds()
		if delta < 0 {
			delta = 0
		}
	}
	m.lastEvent = now
	return delta
}

// handleMIDIMessage converts an incoming packet into a RawEvent and delivers
// it to the capture channel. System messages (status >= 0xF0, including
// active sensing and timing clock) are dropped before delivery.
func (m *ClientMid) handleMIDIMessage(source coremidi.Source, packet coremidi.Packet) {
	m.wg.Add(1)
	defer m.wg.Done()

	eventChannel, _ := m.eventChannel.Load().(chan contracts.RawEvent)
	if eventChannel == nil {
		m.logger.Warn("eventChannel not initialized or of invalid type")
		return
	}

	if len(packet.Data) < 2 {
		m.logger.Warn(ErrIncompleteMIDIPacket.Error())
		return
	}

	status := packet.Data[0]
	if status >= 0xF0 {
		return
	}
	if m.midiEventFilter != nil && !isCommandAllowed(status&0xF0, m.midiEventFilter.Commands) {
		return
	}

	event := contracts.RawEvent{
		Status:       status,
		Data1:        packet.Data[1],
		DeltaSeconds: m.deltaSeconds(time.Now()),
	}
	if len(packet.Data) >= 3 {
		event.Data2 = packet.Data[2]
	}

	select {
	case eventChannel <- event:
	default:
		m.logger.Warn("Event buffer full; dropping MIDI event")
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

// StartCapture begins capturing MIDI events by storing the event channel and
// marking capturing as active.
func (m *ClientMid) StartCapture(eventChannel chan contracts.RawEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventChannel == nil {
		m.logger.Error("StartCapture called with nil eventChannel")
		return
	}

	m.logger.Info("Starting MIDI event capture")
	m.eventChannel.Store(eventChannel)
	m.capturing = true
}

// Stop halts MIDI event capturing, disconnects from the device, and waits for
// ongoing packet handling to complete. Safe to call more than once.
func (m *ClientMid) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.capturing && m.portConn == nil {
		return nil
	}

	m.logger.Info("Stopping MIDI capture")
	m.capturing = false

	if m.portConn != nil {
		m.portConn.Disconnect()
		m.portConn = nil
	}

	// Store a dummy channel so late callbacks cannot write into the
	// caller's channel after Stop returns.
	dummyChannel := make(chan contracts.RawEvent)
	m.eventChannel.Store(dummyChannel)

	m.logger.Info("MIDI capture stopped")
	m.wg.Wait()
	return nil
}
