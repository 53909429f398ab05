package pcmio

import (
	"errors"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

// PCM is a handle to one stream of a backend. A handle is not safe for
// concurrent use; callers serialize access or confine the handle to one
// goroutine.
type PCM struct {
	name   string
	typ    Type
	stream Stream
	mode   Mode

	ops     Ops
	fastOps FastOps

	pollFD     int
	pollEvents int16

	setup bool

	// Installed hardware configuration.
	access     Access
	format     Format
	subformat  Subformat
	channels   int
	rate       int
	rateNum    int
	rateDen    int
	msbits     int
	bufferSize int
	periodSize int
	periodTime int
	tickTime   int
	sampleBits int
	frameBits  int

	// Installed software configuration.
	startMode        StartMode
	xrunMode         XrunMode
	tstampMode       TstampMode
	periodStep       int
	sleepMin         int
	availMin         int
	xferAlign        int
	silenceThreshold int
	silenceSize      int
	boundary         uint64
}

// streamPollEvents returns the poll events a direction-driven descriptor
// reports: writability for playback, readability for capture.
func streamPollEvents(stream Stream) int16 {
	if stream == StreamCapture {
		return unix.POLLIN
	}

	return unix.POLLOUT
}

// New binds a backend to a fresh handle. Backends call this from their
// open functions; applications open handles through Open.
func New(name string, typ Type, stream Stream, mode Mode, ops Ops, fast FastOps) *PCM {
	events := streamPollEvents(stream)

	return &PCM{
		name:       name,
		typ:        typ,
		stream:     stream,
		mode:       mode,
		ops:        ops,
		fastOps:    fast,
		pollFD:     -1,
		pollEvents: events,
	}
}

// SetPollDescriptor installs the readiness descriptor of the handle and the
// poll events it signals readiness with.
func (p *PCM) SetPollDescriptor(fd int, events int16) {
	p.pollFD = fd
	p.pollEvents = events
}

// Name returns the identifier the handle was opened with.
func (p *PCM) Name() string {
	return p.name
}

// Type returns the backend kind behind the handle.
func (p *PCM) Type() Type {
	return p.typ
}

// Stream returns the transfer direction of the handle.
func (p *PCM) Stream() Stream {
	return p.stream
}

// Mode returns the current open flags of the handle.
func (p *PCM) Mode() Mode {
	return p.mode
}

// Rate returns the sample rate of the installed configuration. Returns 0
// before configuration.
func (p *PCM) Rate() int {
	return p.rate
}

// Channels returns the channel count of the installed configuration.
// Returns 0 before configuration.
func (p *PCM) Channels() int {
	return p.channels
}

// BufferSize returns the buffer size in frames of the installed
// configuration. Returns 0 before configuration.
func (p *PCM) BufferSize() int {
	return p.bufferSize
}

// PollDescriptor returns the readiness descriptor of the handle and the
// events to poll it with: write readiness for playback, read readiness for
// capture. Every handle has exactly one descriptor.
func (p *PCM) PollDescriptor() (int, int16) {
	return p.pollFD, p.pollEvents
}

// Close finishes pending playback frames unless the handle is nonblocking
// or capturing, releases the installed configuration and shuts the backend
// down. The handle is unusable afterwards.
func (p *PCM) Close() error {
	var firstErr error

	if p.setup {
		if p.mode&ModeNonblock != 0 || p.stream == StreamCapture {
			_ = p.fastOps.Drop()
		} else {
			_ = p.fastOps.Drain()
		}

		if err := p.HwFree(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := p.ops.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// Nonblock switches the handle between blocking and nonblocking transfers.
func (p *PCM) Nonblock(on bool) error {
	if err := p.ops.Nonblock(on); err != nil {
		return err
	}

	if on {
		p.mode |= ModeNonblock
	} else {
		p.mode &^= ModeNonblock
	}

	return nil
}

// Async installs a handler invoked on period elapsed notifications, or
// removes it when handler is nil.
func (p *PCM) Async(handler AsyncHandler) error {
	return p.ops.Async(handler)
}

// Info returns the static description of the device or route behind the
// handle.
func (p *PCM) Info() (*Info, error) {
	info, err := p.ops.Info()
	if err != nil {
		return nil, err
	}

	info.Stream = p.stream

	return info, nil
}

// HwParams negotiates and installs the hardware configuration, fills params
// with the configuration actually installed, installs default software
// parameters and prepares the stream. A nil params installs defaults.
func (p *PCM) HwParams(params *HWParams) error {
	if params == nil {
		params = &HWParams{}
	}

	applyHWDefaults(params)

	if params.Format.PhysicalWidth() == 0 {
		return fmt.Errorf("%w: format %s has no defined sample width", ErrInvalidArg, params.Format)
	}
	if params.Channels < 1 || params.Rate < 1 {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidArg, params.Channels, params.Rate)
	}
	if params.PeriodSize > params.BufferSize {
		return fmt.Errorf("%w: period_size %d exceeds buffer_size %d",
			ErrInvalidArg, params.PeriodSize, params.BufferSize)
	}

	if err := p.ops.HwParams(params); err != nil {
		return err
	}

	if params.RateNum == 0 {
		params.RateNum = params.Rate
		params.RateDen = 1
	}
	if params.Msbits == 0 {
		params.Msbits = params.Format.Width()
	}
	if params.PeriodTime == 0 && params.Rate > 0 {
		params.PeriodTime = int(int64(params.PeriodSize) * 1000000 / int64(params.Rate))
	}

	p.access = params.Access
	p.format = params.Format
	p.subformat = params.Subformat
	p.channels = params.Channels
	p.rate = params.Rate
	p.rateNum = params.RateNum
	p.rateDen = params.RateDen
	p.msbits = params.Msbits
	p.bufferSize = params.BufferSize
	p.periodSize = params.PeriodSize
	p.periodTime = params.PeriodTime
	p.tickTime = params.TickTime
	p.sampleBits = params.Format.PhysicalWidth()
	p.frameBits = p.sampleBits * p.channels
	p.setup = true

	if err := p.SwParams(nil); err != nil {
		p.setup = false

		return err
	}

	return p.fastOps.Prepare()
}

// applyHWDefaults fills zero fields with the stock configuration. The zero
// Access doubles as the RW_INTERLEAVED default; backends that support the
// mmap access modes negotiate them explicitly.
func applyHWDefaults(h *HWParams) {
	if h.Access == 0 {
		h.Access = AccessRWInterleaved
	}
	if h.Format == 0 {
		h.Format = FormatS16LE
	}
	if h.Channels == 0 {
		h.Channels = 2
	}
	if h.Rate == 0 {
		h.Rate = 48000
	}
	if h.PeriodSize == 0 {
		if h.BufferSize > 0 {
			h.PeriodSize = h.BufferSize / 4
		} else {
			h.PeriodSize = 1024
		}
	}
	if h.BufferSize == 0 {
		h.BufferSize = h.PeriodSize * 4
	}
}

// HwFree releases the installed hardware configuration. Legal only while
// the stream is stopped; a running stream keeps its configuration and the
// call fails.
func (p *PCM) HwFree() error {
	if !p.setup {
		return fmt.Errorf("hw_free: no configuration installed: %w", ErrBadState)
	}

	switch p.fastOps.State() {
	case StateSetup, StatePrepared:
	default:
		return fmt.Errorf("hw_free: stream is active: %w", ErrBadState)
	}

	if err := p.ops.HwFree(); err != nil {
		return err
	}

	p.setup = false

	return nil
}

// SwParams installs the software configuration and fills in the boundary
// chosen by the backend. A nil params installs defaults.
func (p *PCM) SwParams(params *SWParams) error {
	if !p.setup {
		return fmt.Errorf("sw_params: no configuration installed: %w", ErrBadState)
	}

	if params == nil {
		params = &SWParams{}
	}

	if params.PeriodStep == 0 {
		params.PeriodStep = 1
	}
	if params.AvailMin == 0 {
		params.AvailMin = p.periodSize
	}
	if params.XferAlign == 0 {
		params.XferAlign = 1
	}

	if err := p.ops.SwParams(params); err != nil {
		return err
	}

	p.startMode = params.StartMode
	p.xrunMode = params.XrunMode
	p.tstampMode = params.TstampMode
	p.periodStep = params.PeriodStep
	p.sleepMin = params.SleepMin
	p.availMin = params.AvailMin
	p.xferAlign = params.XferAlign
	p.silenceThreshold = params.SilenceThreshold
	p.silenceSize = params.SilenceSize
	p.boundary = params.Boundary

	return nil
}

// State returns the current lifecycle state of the stream.
func (p *PCM) State() State {
	return p.fastOps.State()
}

// Status returns a consistent snapshot of state, timestamps, delay and
// availability.
func (p *PCM) Status() (*Status, error) {
	return p.fastOps.Status()
}

// Delay returns the distance between the application position and the frame
// currently leaving or entering the device, in frames.
func (p *PCM) Delay() (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("delay: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Delay()
}

// Prepare readies the stream for transfer, resetting a broken position.
func (p *PCM) Prepare() error {
	if !p.setup {
		return fmt.Errorf("prepare: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Prepare()
}

// Reset moves the application position back onto the device position,
// forgetting queued frames without a state change.
func (p *PCM) Reset() error {
	if !p.setup {
		return fmt.Errorf("reset: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Reset()
}

// Start begins the transfer of a prepared stream.
func (p *PCM) Start() error {
	if !p.setup {
		return fmt.Errorf("start: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Start()
}

// Drop stops the stream immediately, discarding queued frames.
func (p *PCM) Drop() error {
	if !p.setup {
		return fmt.Errorf("drop: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Drop()
}

// Drain stops the stream after queued playback frames have played out.
// Capture streams stop immediately.
func (p *PCM) Drain() error {
	if !p.setup {
		return fmt.Errorf("drain: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Drain()
}

// Pause freezes a running stream or resumes a paused one.
func (p *PCM) Pause(enable bool) error {
	if !p.setup {
		return fmt.Errorf("pause: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.Pause(enable)
}

// Rewind moves the application position backwards by up to frames frames
// and returns the distance actually moved.
func (p *PCM) Rewind(frames int) (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("rewind: no configuration installed: %w", ErrBadState)
	}

	if frames < 0 {
		return 0, fmt.Errorf("rewind: negative frame count: %w", ErrInvalidArg)
	}
	if frames == 0 {
		return 0, nil
	}

	return p.fastOps.Rewind(frames)
}

// AvailUpdate refreshes the device position and returns the number of
// frames the application can transfer without blocking.
func (p *PCM) AvailUpdate() (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("avail_update: no configuration installed: %w", ErrBadState)
	}

	return p.fastOps.AvailUpdate()
}

// MmapForward advances the application position by frames frames after the
// caller has filled or consumed mapped storage directly.
func (p *PCM) MmapForward(frames int) (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("mmap_forward: no configuration installed: %w", ErrBadState)
	}

	if frames < 0 {
		return 0, fmt.Errorf("mmap_forward: negative frame count: %w", ErrInvalidArg)
	}
	if frames == 0 {
		return 0, nil
	}

	return p.fastOps.MmapForward(frames)
}

// Wait blocks until the stream is ready for transfer or the timeout in
// milliseconds elapses. A negative timeout waits indefinitely. Returns true
// when the stream is ready, false on timeout.
func (p *PCM) Wait(timeout int) (bool, error) {
	if p.pollFD < 0 {
		return false, fmt.Errorf("wait: no poll descriptor: %w", ErrUnsupported)
	}

	pfd := []unix.PollFd{{Fd: int32(p.pollFD), Events: p.pollEvents}}

	n, err := unix.Poll(pfd, timeout)
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			return false, fmt.Errorf("wait: %w", ErrInterrupted)
		}

		return false, fmt.Errorf("poll failed: %w", err)
	}

	if n == 0 {
		return false, nil
	}

	if pfd[0].Revents&(unix.POLLERR|unix.POLLNVAL|unix.POLLHUP) != 0 {
		return false, fmt.Errorf("wait: descriptor error: %w", ErrXrun)
	}

	return true, nil
}

// Link couples the start and stop of two streams. Both backends must expose
// a linkable descriptor.
func (p *PCM) Link(other *PCM) error {
	fd1, err := p.ops.LinkDescriptor()
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	fd2, err := other.ops.LinkDescriptor()
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	if err := ioctl(uintptr(fd1), SNDRV_PCM_IOCTL_LINK, uintptr(fd2)); err != nil {
		return fmt.Errorf("ioctl LINK failed: %w", err)
	}

	return nil
}

// Unlink removes the stream from its synchronization group.
func (p *PCM) Unlink() error {
	fd, err := p.ops.LinkDescriptor()
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}

	if err := ioctl(uintptr(fd), SNDRV_PCM_IOCTL_UNLINK, 0); err != nil {
		return fmt.Errorf("ioctl UNLINK failed: %w", err)
	}

	return nil
}

// BytesToFrames converts a byte count to frames using the installed frame
// width. Returns 0 before configuration.
func (p *PCM) BytesToFrames(bytes int) int {
	if p.frameBits == 0 {
		return 0
	}

	return bytes * 8 / p.frameBits
}

// FramesToBytes converts a frame count to bytes using the installed frame
// width.
func (p *PCM) FramesToBytes(frames int) int {
	return frames * p.frameBits / 8
}

// BytesToSamples converts a byte count to samples using the installed
// sample width. Returns 0 before configuration.
func (p *PCM) BytesToSamples(bytes int) int {
	if p.sampleBits == 0 {
		return 0
	}

	return bytes * 8 / p.sampleBits
}

// SamplesToBytes converts a sample count to bytes using the installed
// sample width.
func (p *PCM) SamplesToBytes(samples int) int {
	return samples * p.sampleBits / 8
}

// Dump writes a backend-specific description of the handle followed by its
// setup.
func (p *PCM) Dump(w io.Writer) error {
	return p.ops.Dump(w)
}

// DumpHwSetup writes the installed hardware configuration.
func (p *PCM) DumpHwSetup(w io.Writer) error {
	if !p.setup {
		fmt.Fprintf(w, "  setup: not installed\n")

		return nil
	}

	fmt.Fprintf(w, "  stream       : %s\n", p.stream)
	fmt.Fprintf(w, "  access       : %s\n", p.access)
	fmt.Fprintf(w, "  format       : %s\n", p.format)
	fmt.Fprintf(w, "  subformat    : %s\n", p.subformat)
	fmt.Fprintf(w, "  channels     : %d\n", p.channels)
	fmt.Fprintf(w, "  rate         : %d\n", p.rate)
	fmt.Fprintf(w, "  exact rate   : %g (%d/%d)\n", float64(p.rateNum)/float64(max(p.rateDen, 1)), p.rateNum, p.rateDen)
	fmt.Fprintf(w, "  msbits       : %d\n", p.msbits)
	fmt.Fprintf(w, "  buffer_size  : %d\n", p.bufferSize)
	fmt.Fprintf(w, "  period_size  : %d\n", p.periodSize)
	fmt.Fprintf(w, "  period_time  : %d\n", p.periodTime)
	fmt.Fprintf(w, "  tick_time    : %d\n", p.tickTime)

	return nil
}

// DumpSwSetup writes the installed software configuration.
func (p *PCM) DumpSwSetup(w io.Writer) error {
	if !p.setup {
		fmt.Fprintf(w, "  setup: not installed\n")

		return nil
	}

	fmt.Fprintf(w, "  start_mode   : %s\n", p.startMode)
	fmt.Fprintf(w, "  xrun_mode    : %s\n", p.xrunMode)
	fmt.Fprintf(w, "  tstamp_mode  : %s\n", p.tstampMode)
	fmt.Fprintf(w, "  period_step  : %d\n", p.periodStep)
	fmt.Fprintf(w, "  sleep_min    : %d\n", p.sleepMin)
	fmt.Fprintf(w, "  avail_min    : %d\n", p.availMin)
	fmt.Fprintf(w, "  xfer_align   : %d\n", p.xferAlign)
	fmt.Fprintf(w, "  silence_threshold: %d\n", p.silenceThreshold)
	fmt.Fprintf(w, "  silence_size : %d\n", p.silenceSize)
	fmt.Fprintf(w, "  boundary     : %d\n", p.boundary)

	return nil
}

// DumpSetup writes the full installed configuration.
func (p *PCM) DumpSetup(w io.Writer) error {
	if err := p.DumpHwSetup(w); err != nil {
		return err
	}

	return p.DumpSwSetup(w)
}
