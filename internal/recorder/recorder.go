package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"midirec/sdk/contracts"
)

// ErrGatewayClosed reports that the gateway closed the event channel, which
// signals an unrecoverable device failure mid-session.
var ErrGatewayClosed = errors.New("midi gateway closed unexpectedly")

// Config holds the recording parameters.
type Config struct {
	DeviceID     int           // Input device index.
	BaseName     string        // Output path prefix; files get a ".mid" extension.
	IdleTimeout  time.Duration // Silence duration that rotates the session; 0 disables auto-segmentation.
	TicksPerBeat uint16        // Resolution of the output files.
	TempoBPM     float64       // Fixed tempo of the output files.
	PollInterval time.Duration // Watchdog granularity; a latency/CPU trade-off, not a deadline.
	BufferSize   int           // Capacity of the gateway event channel.
	Debug        bool          // Enables per-event debug logging.
}

func (c Config) withDefaults() Config {
	if c.BaseName == "" {
		c.BaseName = "track"
	}
	if c.TicksPerBeat == 0 {
		c.TicksPerBeat = 480
	}
	if c.TempoBPM == 0 {
		c.TempoBPM = 120
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
	return c
}

// session is one continuous recording interval: it owns the track accumulator
// and the timing state between a first event and the next rotation or exit.
type session struct {
	acc         *Accumulator
	quant       *Quantizer
	startedAt   time.Time
	lastEventAt time.Time
}

// Recorder drives the capture loop: it decodes raw events, quantizes their
// timing into the current session's track and rotates the session into a file
// after the configured silence timeout.
type Recorder struct {
	cfg     Config
	gateway contracts.ClientMIDI
	writer  contracts.TrackWriter
	logger  contracts.Logger

	mu      sync.Mutex // Guards the live session against concurrent event/rotation access.
	session *session
}

// New builds a Recorder around the given collaborators.
func New(cfg Config, gateway contracts.ClientMIDI, writer contracts.TrackWriter, logger contracts.Logger) *Recorder {
	return &Recorder{
		cfg:     cfg.withDefaults(),
		gateway: gateway,
		writer:  writer,
		logger:  logger,
	}
}

// Run opens the device and records until the context is cancelled or the
// gateway fails. The loop moves through three states: awaiting the first
// event, recording, and (in auto mode) rotating after the idle timeout.
//
// Cancellation is a graceful shutdown: the open session is flushed and Run
// returns nil. Any other exit also flushes the open session first.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.gateway.SelectDevice(r.cfg.DeviceID); err != nil {
		return fmt.Errorf("opening device %d: %w", r.cfg.DeviceID, err)
	}
	defer r.gateway.Stop()

	events := make(chan contracts.RawEvent, r.cfg.BufferSize)
	r.gateway.StartCapture(events)

	r.logger.Info("Waiting for first event ...")
	first, ok, err := r.waitFirstEvent(ctx, events)
	if err != nil {
		return err
	}
	if !ok {
		// Cancelled before anything was played; nothing to flush.
		return nil
	}
	r.beginSession(time.Now())
	r.process(first)
	r.logger.Info("Recording started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.finalFlush(nil)

		case ev, open := <-events:
			if !open {
				return r.finalFlush(ErrGatewayClosed)
			}
			r.process(ev)

		case <-ticker.C:
			if r.cfg.IdleTimeout <= 0 || !r.idleExceeded() {
				continue
			}
			resumed, err := r.rotate(ctx, events)
			if err != nil {
				return err
			}
			if !resumed {
				return nil
			}
		}
	}
}

// waitFirstEvent blocks until a raw event with a non-zero, non-active-sense
// status arrives. The returned event is not discarded: the caller replays it
// through the classifier so it becomes the first recorded event.
// ok is false when the context was cancelled first.
func (r *Recorder) waitFirstEvent(ctx context.Context, events <-chan contracts.RawEvent) (contracts.RawEvent, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return contracts.RawEvent{}, false, nil
		case ev, open := <-events:
			if !open {
				return contracts.RawEvent{}, false, ErrGatewayClosed
			}
			if ev.Status == 0 || ev.Status == 0xFE {
				continue
			}
			return ev, true, nil
		}
	}
}

// beginSession installs a fresh session with an empty accumulator.
func (r *Recorder) beginSession(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = &session{
		acc:         NewAccumulator(r.cfg.TicksPerBeat, r.cfg.TempoBPM),
		quant:       NewQuantizer(r.cfg.TicksPerBeat, r.cfg.TempoBPM),
		startedAt:   now,
		lastEventAt: now,
	}
}

// process classifies and quantizes one raw event into the current session.
// Every event advances the timing accumulator; only recognized channel-voice
// kinds are appended to the track, and the accumulator resets after notes.
func (r *Recorder) process(ev contracts.RawEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	if s == nil {
		return
	}
	s.lastEventAt = time.Now()
	s.quant.Advance(ev.DeltaSeconds)

	if ev.Status >= 0xF0 {
		// The gateway filters these; if one slips through it is a no-op
		// whose delta time stays in the accumulator.
		if r.cfg.Debug {
			r.logger.Debug("system status ignored",
				r.logger.Field().Uint8("status", ev.Status))
		}
		return
	}

	kind, channel := Classify(ev.Status)
	if r.cfg.Debug {
		r.logger.Debug("event",
			r.logger.Field().String("kind", kind.String()),
			r.logger.Field().Uint8("status", ev.Status),
			r.logger.Field().Uint8("data1", ev.Data1),
			r.logger.Field().Uint8("data2", ev.Data2),
			r.logger.Field().Float64("deltaSeconds", ev.DeltaSeconds),
			r.logger.Field().Float64("accumulatedSeconds", s.quant.AccumulatedSeconds()))
	}
	if kind == contracts.KindUnknown {
		if r.cfg.Debug {
			r.logger.Debug("unknown status skipped",
				r.logger.Field().Uint8("status", ev.Status))
		}
		return
	}

	s.acc.Append(contracts.TrackEvent{
		Kind:      kind,
		Channel:   channel,
		Data1:     ev.Data1,
		Data2:     ev.Data2,
		TickDelta: s.quant.Ticks(),
	})
	if kind.IsNote() {
		s.quant.Reset()
	}
}

// idleExceeded reports whether the current session has been silent longer
// than the idle timeout.
func (r *Recorder) idleExceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil && time.Since(r.session.lastEventAt) > r.cfg.IdleTimeout
}

// rotate flushes the current session, reopens the gateway and waits for the
// next musical phrase. Events arriving while the port is being reopened are
// lost; the gateway is disconnected during that window and nothing buffers
// them. resumed is false when the context was cancelled while waiting.
func (r *Recorder) rotate(ctx context.Context, events <-chan contracts.RawEvent) (bool, error) {
	r.logger.Info("Timeout exceeded, starting a new track")
	if err := r.flush(); err != nil {
		return false, err
	}

	if err := r.gateway.SelectDevice(r.cfg.DeviceID); err != nil {
		return false, fmt.Errorf("reopening device %d: %w", r.cfg.DeviceID, err)
	}

	r.logger.Info("Waiting for first event ...")
	first, ok, err := r.waitFirstEvent(ctx, events)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	r.beginSession(time.Now())
	r.process(first)
	r.logger.Info("Recording started")
	return true, nil
}

// flush drains the current session into a Track and persists it. A session
// that recorded no events still produces a valid empty-track file. The session
// is only discarded once the write succeeds; on failure the events are handed
// back so a retry is still possible.
func (r *Recorder) flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session
	if s == nil {
		return nil
	}

	track := s.acc.Drain()
	path := r.filename(s.startedAt)
	r.logger.Info("Save MIDI file",
		r.logger.Field().String("path", path),
		r.logger.Field().Int("events", len(track.Events)))
	if err := r.writer.Write(track, path); err != nil {
		s.acc.events = track.Events
		return fmt.Errorf("writing %s: %w", path, err)
	}
	r.session = nil
	return nil
}

// finalFlush flushes the open session on the way out. cause is the reason the
// run loop is exiting (nil for a graceful shutdown); it takes precedence over
// a flush failure, which is then only logged.
func (r *Recorder) finalFlush(cause error) error {
	if err := r.flush(); err != nil {
		if cause == nil {
			return err
		}
		r.logger.Error("final flush failed", r.logger.Field().Error("error", err))
	}
	return cause
}

// filename computes the output path. Auto-segmentation embeds the session
// start time so rotated files cannot collide within timestamp resolution; a
// fixed-name run overwrites the same file on every invocation.
func (r *Recorder) filename(startedAt time.Time) string {
	if r.cfg.IdleTimeout > 0 {
		return r.cfg.BaseName + "_" + startedAt.Format("20060102-150405") + ".mid"
	}
	return r.cfg.BaseName + ".mid"
}
