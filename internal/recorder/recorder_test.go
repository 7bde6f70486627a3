package recorder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"midirec/sdk/contracts"
)

// nopField implements contracts.Field for tests.
type nopField struct{}

func (nopField) Bool(string, bool) contracts.Field          { return nopField{} }
func (nopField) Int(string, int) contracts.Field            { return nopField{} }
func (nopField) Float64(string, float64) contracts.Field    { return nopField{} }
func (nopField) String(string, string) contracts.Field      { return nopField{} }
func (nopField) Time(string, time.Time) contracts.Field     { return nopField{} }
func (nopField) Int64(string, int64) contracts.Field        { return nopField{} }
func (nopField) Error(string, error) contracts.Field        { return nopField{} }
func (nopField) Uint64(string, uint64) contracts.Field      { return nopField{} }
func (nopField) Uint8(string, uint8) contracts.Field        { return nopField{} }
func (nopField) Uint32(string, uint32) contracts.Field      { return nopField{} }

// nopLogger implements contracts.Logger for tests.
type nopLogger struct{}

func (nopLogger) Info(string, ...contracts.Field)                       {}
func (nopLogger) Error(string, ...contracts.Field)                      {}
func (nopLogger) Debug(string, ...contracts.Field)                      {}
func (nopLogger) Warn(string, ...contracts.Field)                       {}
func (nopLogger) Fatal(string, ...contracts.Field)                      {}
func (nopLogger) Field() contracts.Field                                { return nopField{} }
func (nopLogger) SetLevel(contracts.LogLevel)                           {}
func (nopLogger) SetDestination(contracts.LogDestination, ...string)    {}

// fakeGateway implements contracts.ClientMIDI for tests. Events are fed by
// the test through the channel handed to StartCapture.
type fakeGateway struct {
	mu        sync.Mutex
	events    chan contracts.RawEvent
	selects   int
	stops     int
	selectErr error
}

func (g *fakeGateway) ListDevices() ([]contracts.DeviceInfo, error) {
	return []contracts.DeviceInfo{{Name: "fake input"}}, nil
}

func (g *fakeGateway) SelectDevice(deviceID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selects++
	return g.selectErr
}

func (g *fakeGateway) StartCapture(eventChannel chan contracts.RawEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = eventChannel
}

func (g *fakeGateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stops++
	return nil
}

func (g *fakeGateway) selectCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selects
}

// send feeds one event, waiting for the capture channel to be registered.
func (g *fakeGateway) send(t *testing.T, ev contracts.RawEvent) {
	t.Helper()
	g.channel(t) <- ev
}

func (g *fakeGateway) channel(t *testing.T) chan contracts.RawEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		ch := g.events
		g.mu.Unlock()
		if ch != nil {
			return ch
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("capture channel was never registered")
	return nil
}

// captureWriter implements contracts.TrackWriter, recording every flush.
type captureWriter struct {
	mu     sync.Mutex
	tracks []contracts.Track
	paths  []string
	err    error
}

func (w *captureWriter) Write(track contracts.Track, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.tracks = append(w.tracks, track)
	w.paths = append(w.paths, path)
	return nil
}

func (w *captureWriter) snapshot() ([]contracts.Track, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]contracts.Track(nil), w.tracks...), append([]string(nil), w.paths...)
}

// waitWrites blocks until the writer has seen n flushes.
func (w *captureWriter) waitWrites(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		got := len(w.tracks)
		w.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("writer never saw %d flushes", n)
}

func testConfig() Config {
	return Config{
		BaseName:     "take",
		TicksPerBeat: 480,
		TempoBPM:     120,
		PollInterval: 2 * time.Millisecond,
		BufferSize:   64,
	}
}

func runRecorder(ctx context.Context, r *Recorder) chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
		return nil
	}
}

func TestRunFlushesFirstEventExactlyOnce(t *testing.T) {
	gw := &fakeGateway{}
	w := &captureWriter{}
	r := New(testConfig(), gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runRecorder(ctx, r)

	gw.send(t, contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100})
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	tracks, paths := w.snapshot()
	require.Len(t, tracks, 1)
	require.Len(t, tracks[0].Events, 1)
	ev := tracks[0].Events[0]
	assert.Equal(t, contracts.KindNoteOn, ev.Kind)
	assert.Equal(t, byte(0), ev.Channel)
	assert.Equal(t, byte(60), ev.Data1)
	assert.Equal(t, byte(100), ev.Data2)
	assert.Equal(t, uint32(0), ev.TickDelta)
	assert.Equal(t, []string{"take.mid"}, paths)
}

func TestWaitFirstEventSkipsActiveSenseAndZeroStatus(t *testing.T) {
	gw := &fakeGateway{}
	w := &captureWriter{}
	r := New(testConfig(), gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runRecorder(ctx, r)

	gw.send(t, contracts.RawEvent{Status: 0xFE})
	gw.send(t, contracts.RawEvent{Status: 0x00})
	gw.send(t, contracts.RawEvent{Status: 0x90, Data1: 64, Data2: 80})
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	tracks, _ := w.snapshot()
	require.Len(t, tracks, 1)
	require.Len(t, tracks[0].Events, 1)
	assert.Equal(t, byte(64), tracks[0].Events[0].Data1)
}

func TestUnknownStatusesYieldEmptyTrackAndValidFlush(t *testing.T) {
	gw := &fakeGateway{}
	w := &captureWriter{}
	r := New(testConfig(), gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runRecorder(ctx, r)

	// Non-zero statuses below the channel-voice range start the session but
	// never emit events.
	gw.send(t, contracts.RawEvent{Status: 0x75, Data1: 1, Data2: 2})
	gw.send(t, contracts.RawEvent{Status: 0x71, DeltaSeconds: 0.1})
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	tracks, _ := w.snapshot()
	require.Len(t, tracks, 1)
	assert.Empty(t, tracks[0].Events)
	assert.Equal(t, uint16(480), tracks[0].TicksPerBeat)
}

func TestInterruptBeforeFirstEventWritesNothing(t *testing.T) {
	gw := &fakeGateway{}
	w := &captureWriter{}
	r := New(testConfig(), gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runRecorder(ctx, r)

	gw.channel(t) // capture registered, but nothing played
	cancel()
	require.NoError(t, waitDone(t, done))

	tracks, _ := w.snapshot()
	assert.Empty(t, tracks)
}

func TestAutoRotationProducesTwoFilesWithFreshAccumulator(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 60 * time.Millisecond
	gw := &fakeGateway{}
	w := &captureWriter{}
	r := New(cfg, gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runRecorder(ctx, r)

	gw.send(t, contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100})
	gw.send(t, contracts.RawEvent{Status: 0x80, Data1: 60, DeltaSeconds: 0.5})

	// Silence past the idle timeout rotates the session into its own file.
	w.waitWrites(t, 1)

	// The next event opens a second session whose timing starts from a
	// fresh accumulator.
	gw.send(t, contracts.RawEvent{Status: 0x90, Data1: 62, Data2: 90, DeltaSeconds: 0.25})
	time.Sleep(30 * time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	tracks, paths := w.snapshot()
	require.Len(t, tracks, 2)
	require.Len(t, paths, 2)
	for _, p := range paths {
		assert.True(t, strings.HasPrefix(p, "take_"), "path %q should embed the session start time", p)
		assert.True(t, strings.HasSuffix(p, ".mid"), "path %q should be a .mid file", p)
	}

	require.Len(t, tracks[0].Events, 2)
	assert.Equal(t, uint32(0), tracks[0].Events[0].TickDelta)
	assert.Equal(t, uint32(480), tracks[0].Events[1].TickDelta)

	require.Len(t, tracks[1].Events, 1)
	assert.Equal(t, byte(62), tracks[1].Events[0].Data1)
	assert.Equal(t, uint32(240), tracks[1].Events[0].TickDelta,
		"second session must quantize from zero, not carry the first session's accumulator")

	// Initial open plus one reopen during rotation.
	assert.Equal(t, 2, gw.selectCount())
}

func TestGatewayFailureFlushesBeforeReporting(t *testing.T) {
	gw := &fakeGateway{}
	w := &captureWriter{}
	r := New(testConfig(), gw, w, nopLogger{})

	ctx := context.Background()
	done := runRecorder(ctx, r)

	ch := gw.channel(t)
	ch <- contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100}
	time.Sleep(50 * time.Millisecond)
	close(ch)

	err := waitDone(t, done)
	require.ErrorIs(t, err, ErrGatewayClosed)

	tracks, _ := w.snapshot()
	require.Len(t, tracks, 1)
	require.Len(t, tracks[0].Events, 1)
}

func TestStartupDeviceErrorIsFatal(t *testing.T) {
	gw := &fakeGateway{selectErr: errors.New("no midi port for '9'")}
	w := &captureWriter{}
	r := New(testConfig(), gw, w, nopLogger{})

	err := r.Run(context.Background())
	require.Error(t, err)

	tracks, _ := w.snapshot()
	assert.Empty(t, tracks)
}

func TestProcessNoteToNoteDeltaSums(t *testing.T) {
	r := New(testConfig(), &fakeGateway{}, &captureWriter{}, nopLogger{})
	r.beginSession(time.Now())

	r.process(contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100})
	r.process(contracts.RawEvent{Status: 0xB0, Data1: 64, Data2: 127, DeltaSeconds: 0.1})
	r.process(contracts.RawEvent{Status: 0xB0, Data1: 64, Data2: 0, DeltaSeconds: 0.15})
	r.process(contracts.RawEvent{Status: 0x80, Data1: 60, DeltaSeconds: 0.25})
	r.process(contracts.RawEvent{Status: 0x90, Data1: 62, Data2: 90, DeltaSeconds: 0.5})

	r.mu.Lock()
	track := r.session.acc.Drain()
	r.mu.Unlock()

	require.Len(t, track.Events, 5)
	deltas := make([]uint32, len(track.Events))
	for i, ev := range track.Events {
		deltas[i] = ev.TickDelta
	}
	// Controllers carry the running accumulation; the closing note's delta
	// quantizes the full 0.5s span, and the accumulator resets after it.
	assert.Equal(t, []uint32{0, 96, 240, 480, 480}, deltas)
}

func TestFinalFlushWriteErrorIsReturned(t *testing.T) {
	errDisk := errors.New("disk full")
	gw := &fakeGateway{}
	w := &captureWriter{err: errDisk}
	r := New(testConfig(), gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runRecorder(ctx, r)

	gw.send(t, contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100})
	time.Sleep(50 * time.Millisecond)
	cancel()

	err := waitDone(t, done)
	require.ErrorIs(t, err, errDisk)

	// The failed write must not consume the recorded events.
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotNil(t, r.session)
	assert.Equal(t, 1, r.session.acc.Len())
}

func TestRotationFlushWriteErrorIsFatal(t *testing.T) {
	errDisk := errors.New("disk full")
	cfg := testConfig()
	cfg.IdleTimeout = 40 * time.Millisecond
	gw := &fakeGateway{}
	w := &captureWriter{err: errDisk}
	r := New(cfg, gw, w, nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runRecorder(ctx, r)

	gw.send(t, contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100})

	// Silence triggers the rotation, whose flush fails and ends the run
	// without reopening the device.
	err := waitDone(t, done)
	require.ErrorIs(t, err, errDisk)
	assert.Equal(t, 1, gw.selectCount())
}

func TestGatewayClosedWinsOverFinalFlushError(t *testing.T) {
	gw := &fakeGateway{}
	w := &captureWriter{err: errors.New("disk full")}
	r := New(testConfig(), gw, w, nopLogger{})

	done := runRecorder(context.Background(), r)

	ch := gw.channel(t)
	ch <- contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100}
	time.Sleep(50 * time.Millisecond)
	close(ch)

	// The device failure caused the shutdown; the flush failure is only
	// logged so it cannot mask the root cause.
	err := waitDone(t, done)
	require.ErrorIs(t, err, ErrGatewayClosed)
}

func TestProcessConsumesSystemBytesWithoutEmitting(t *testing.T) {
	r := New(testConfig(), &fakeGateway{}, &captureWriter{}, nopLogger{})
	r.beginSession(time.Now())

	r.process(contracts.RawEvent{Status: 0x90, Data1: 60, Data2: 100})
	r.process(contracts.RawEvent{Status: 0xFE, DeltaSeconds: 0.25})
	r.process(contracts.RawEvent{Status: 0x80, Data1: 60, DeltaSeconds: 0.25})

	r.mu.Lock()
	track := r.session.acc.Drain()
	r.mu.Unlock()

	// The active-sense delta still counts toward the note-off gap.
	require.Len(t, track.Events, 2)
	assert.Equal(t, uint32(480), track.Events[1].TickDelta)
}
