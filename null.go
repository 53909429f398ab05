package pcmio

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"
	"time"
)

// nullBackend discards playback frames and supplies silence to capture,
// completing every transfer immediately. It keeps a descriptor on the null
// device so the handle stays pollable.
type nullBackend struct {
	pcm    *PCM
	stream Stream
	file   *os.File

	state   State
	running atomic.Bool

	format     Format
	channels   int
	rate       int
	bufferSize int
	periodSize int

	appl     uint64
	hw       uint64
	boundary uint64

	handler  AsyncHandler
	stopTick chan struct{}

	triggerTime time.Time
}

func openNull(name string, stream Stream, mode Mode) (*PCM, error) {
	file, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}

	b := &nullBackend{stream: stream, file: file, state: StateOpen}
	p := New(name, TypeNull, stream, mode, b, b)
	p.SetPollDescriptor(int(file.Fd()), streamPollEvents(stream))
	b.pcm = p

	return p, nil
}

func openNullDef(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error) {
	for key := range def {
		switch key {
		case "type", "comment":
		default:
			return nil, fmt.Errorf("pcm %s: unknown field %s: %w", name, key, ErrInvalidArg)
		}
	}

	return openNull(name, stream, mode)
}

func (b *nullBackend) Close() error {
	if b.stopTick != nil {
		close(b.stopTick)
		b.stopTick = nil
	}

	return b.file.Close()
}

func (b *nullBackend) Info() (*Info, error) {
	return &Info{
		Card:            -1,
		ID:              "NULL",
		Name:            "Null",
		Subname:         "subdevice #0",
		SubdevicesCount: 1,
		SubdevicesAvail: 1,
	}, nil
}

func (b *nullBackend) HwParams(h *HWParams) error {
	switch b.state {
	case StateOpen, StateSetup, StatePrepared:
	default:
		return fmt.Errorf("hw_params in %s state: %w", b.state, ErrBadState)
	}

	b.format = h.Format
	b.channels = h.Channels
	b.rate = h.Rate
	b.bufferSize = h.BufferSize
	b.periodSize = h.PeriodSize
	b.appl, b.hw = 0, 0
	b.state = StateSetup

	return nil
}

func (b *nullBackend) HwFree() error {
	switch b.state {
	case StateSetup, StatePrepared:
	default:
		return fmt.Errorf("hw_free in %s state: %w", b.state, ErrBadState)
	}

	b.state = StateOpen
	b.bufferSize = 0
	b.periodSize = 0

	return nil
}

func (b *nullBackend) SwParams(s *SWParams) error {
	b.boundary = computeBoundary(uint64(b.bufferSize))
	s.Boundary = b.boundary

	return nil
}

// computeBoundary doubles the buffer size until one more doubling would
// leave no room below the signed 64-bit ceiling, yielding the wrap-around
// modulus for position arithmetic.
func computeBoundary(bufferSize uint64) uint64 {
	if bufferSize == 0 {
		return 0
	}

	boundary := bufferSize
	for boundary*2 <= uint64(math.MaxInt64)-bufferSize {
		boundary *= 2
	}

	return boundary
}

func (b *nullBackend) Nonblock(bool) error {
	return nil
}

func (b *nullBackend) Async(handler AsyncHandler) error {
	if b.stopTick != nil {
		close(b.stopTick)
		b.stopTick = nil
	}

	b.handler = handler
	if handler == nil {
		return nil
	}

	if b.rate == 0 || b.periodSize == 0 {
		return fmt.Errorf("async: no configuration installed: %w", ErrBadState)
	}

	period := time.Duration(b.periodSize) * time.Second / time.Duration(b.rate)
	stop := make(chan struct{})
	b.stopTick = stop

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if b.running.Load() {
					handler()
				}
			}
		}
	}()

	return nil
}

func (b *nullBackend) LinkDescriptor() (int, error) {
	return -1, fmt.Errorf("null: link: %w", ErrUnsupported)
}

func (b *nullBackend) Dump(w io.Writer) error {
	fmt.Fprintf(w, "Null PCM\nIts setup is:\n")

	return b.pcm.DumpSetup(w)
}

func (b *nullBackend) State() State {
	return b.state
}

func (b *nullBackend) Status() (*Status, error) {
	return &Status{
		State:       b.state,
		TriggerTime: b.triggerTime,
		Time:        time.Now(),
		Delay:       0,
		Avail:       b.bufferSize,
		AvailMax:    b.bufferSize,
	}, nil
}

func (b *nullBackend) Delay() (int, error) {
	return 0, nil
}

func (b *nullBackend) Prepare() error {
	switch b.state {
	case StateOpen:
		return fmt.Errorf("prepare in %s state: %w", b.state, ErrBadState)
	case StateRunning, StatePaused:
		return fmt.Errorf("prepare in %s state: %w", b.state, ErrBadState)
	}

	b.state = StatePrepared
	b.appl, b.hw = 0, 0
	b.running.Store(false)

	return nil
}

func (b *nullBackend) Reset() error {
	b.appl = b.hw

	return nil
}

func (b *nullBackend) Start() error {
	if b.state != StatePrepared {
		return fmt.Errorf("start in %s state: %w", b.state, ErrBadState)
	}

	b.state = StateRunning
	b.running.Store(true)
	b.triggerTime = time.Now()

	return nil
}

func (b *nullBackend) Drop() error {
	switch b.state {
	case StateOpen, StateSetup:
		return fmt.Errorf("drop in %s state: %w", b.state, ErrBadState)
	}

	b.state = StatePrepared
	b.running.Store(false)
	b.appl = b.hw

	return nil
}

func (b *nullBackend) Drain() error {
	// Nothing ever stays queued, so draining finishes immediately.
	return b.Drop()
}

func (b *nullBackend) Pause(enable bool) error {
	if enable {
		if b.state != StateRunning {
			return fmt.Errorf("pause in %s state: %w", b.state, ErrBadState)
		}

		b.state = StatePaused
		b.running.Store(false)

		return nil
	}

	if b.state != StatePaused {
		return fmt.Errorf("pause release in %s state: %w", b.state, ErrBadState)
	}

	b.state = StateRunning
	b.running.Store(true)

	return nil
}

func (b *nullBackend) Rewind(frames int) (int, error) {
	// There is nothing behind the position to replay over.
	return frames, nil
}

func (b *nullBackend) AvailUpdate() (int, error) {
	return b.bufferSize, nil
}

func (b *nullBackend) MmapForward(frames int) (int, error) {
	b.advance(frames)

	return frames, nil
}

func (b *nullBackend) WriteChunk(_ []Area, _, frames int) (int, error) {
	b.advance(frames)

	return frames, nil
}

func (b *nullBackend) ReadChunk(areas []Area, offset, frames int) (int, error) {
	if err := AreasSilence(areas, offset, frames, b.format); err != nil {
		return 0, err
	}

	b.advance(frames)

	return frames, nil
}

// advance moves both positions together: the device consumes or produces
// instantly.
func (b *nullBackend) advance(frames int) {
	if b.boundary > 0 {
		b.appl = (b.appl + uint64(frames)) % b.boundary
	}

	b.hw = b.appl
}
