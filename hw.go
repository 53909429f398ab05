package pcmio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// hwDevicePath returns the device node of one hardware substream.
func hwDevicePath(card, device int, stream Stream) string {
	streamChar := byte('p')
	if stream == StreamCapture {
		streamChar = 'c'
	}

	return fmt.Sprintf("/dev/snd/pcmC%dD%d%c", card, device, streamChar)
}

// hwBoundary mirrors the kernel's boundary computation: the largest
// doubling of the buffer size that still fits a signed frame counter.
func hwBoundary(bufferSize SndPcmUframesT) SndPcmUframesT {
	if bufferSize == 0 {
		return 0
	}

	longMax := ^SndPcmUframesT(0) >> 1

	boundary := bufferSize
	for boundary*2 <= longMax-bufferSize {
		boundary *= 2
	}

	return boundary
}

// hwError maps the errnos of the PCM ioctls onto the transfer error kinds.
func hwError(op string, err error) error {
	switch {
	case errors.Is(err, unix.EPIPE):
		return fmt.Errorf("%s: %w", op, ErrXrun)
	case errors.Is(err, unix.EAGAIN):
		return fmt.Errorf("%s: %w", op, ErrWouldBlock)
	case errors.Is(err, unix.EBADFD):
		return fmt.Errorf("%s: %w", op, ErrBadState)
	case errors.Is(err, unix.EINTR):
		return fmt.Errorf("%s: %w", op, ErrInterrupted)
	case errors.Is(err, unix.ESTRPIPE):
		return fmt.Errorf("%s: stream suspended: %w", op, ErrBadState)
	case errors.Is(err, unix.ENOSYS):
		return fmt.Errorf("%s: %w", op, ErrUnsupported)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// hwBackend drives one kernel PCM substream through its /dev/snd node.
// The descriptor stays nonblocking for its whole life; blocking behavior
// lives in the transfer engine above it.
type hwBackend struct {
	pcm    *PCM
	stream Stream

	card      int
	device    int
	subdevice int

	fd   int
	info sndPcmInfo

	// Pointer synchronization. When the kernel exports its status and
	// control pages they are mapped directly; otherwise every refresh
	// goes through the SYNC_PTR ioctl on a backing struct of our own.
	mmapStatus  *sndPcmMmapStatus
	mmapControl *sndPcmMmapControl
	statusBuf   []byte
	controlBuf  []byte
	syncPointer *sndPcmSyncPtr
	isMmapped   bool

	// Installed geometry, kept here so position arithmetic does not
	// depend on the handle cache being current.
	bufferSize int
	boundary   SndPcmUframesT

	stopAsync chan struct{}
}

// openHW opens one hardware substream. A nonnegative subdevice is
// requested through the card's control node, which stays open across the
// device open so the grant cannot be claimed away in between.
func openHW(name string, card, device, subdevice int, stream Stream, mode Mode) (*PCM, error) {
	if card < 0 || device < 0 {
		return nil, fmt.Errorf("hw card %d device %d: %w", card, device, ErrInvalidArg)
	}

	if subdevice >= 0 {
		ctlPath := fmt.Sprintf("/dev/snd/controlC%d", card)

		ctl, err := unix.Open(ctlPath, unix.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ctlPath, err)
		}
		defer unix.Close(ctl)

		sub := int32(subdevice)
		if err := ioctl(uintptr(ctl), SNDRV_CTL_IOCTL_PCM_PREFER_SUBDEVICE, uintptr(unsafe.Pointer(&sub))); err != nil {
			return nil, fmt.Errorf("ioctl PCM_PREFER_SUBDEVICE failed: %w", err)
		}
	}

	path := hwDevicePath(card, device, stream)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("no hw device %s: %w", path, ErrNotFound)
		}

		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	b := &hwBackend{
		stream:    stream,
		card:      card,
		device:    device,
		subdevice: subdevice,
		fd:        fd,
	}

	if err := ioctl(uintptr(fd), SNDRV_PCM_IOCTL_INFO, uintptr(unsafe.Pointer(&b.info))); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("ioctl INFO failed: %w", err)
	}

	if subdevice >= 0 && int(b.info.Subdevice) != subdevice {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("subdevice %d not granted: %w", subdevice, unix.EBUSY)
	}
	b.subdevice = int(b.info.Subdevice)

	// Monotonic timestamps when the kernel can choose; older kernels
	// simply refuse.
	tstamp := int32(SNDRV_PCM_TSTAMP_TYPE_MONOTONIC)
	_ = ioctl(uintptr(fd), SNDRV_PCM_IOCTL_TTSTAMP, uintptr(unsafe.Pointer(&tstamp)))

	b.mapStatusAndControl()

	p := New(name, TypeHW, stream, mode, b, b)
	p.SetPollDescriptor(fd, streamPollEvents(stream))
	b.pcm = p

	return p, nil
}

func openHWDef(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error) {
	card := -1
	device := 0
	subdevice := -1
	haveCard := false

	for key, val := range def {
		switch key {
		case "type", "comment":

		case "card":
			if s, ok := val.(string); ok {
				n, err := CardIndex(s)
				if err != nil {
					return nil, fmt.Errorf("pcm %s: %w", name, err)
				}

				card = n
			} else {
				n, ok := defInt(val)
				if !ok {
					return nil, fmt.Errorf("pcm %s: card is not an integer or string: %w", name, ErrInvalidArg)
				}

				card = n
			}
			haveCard = true

		case "device":
			n, ok := defInt(val)
			if !ok {
				return nil, fmt.Errorf("pcm %s: device is not an integer: %w", name, ErrInvalidArg)
			}

			device = n

		case "subdevice":
			n, ok := defInt(val)
			if !ok {
				return nil, fmt.Errorf("pcm %s: subdevice is not an integer: %w", name, ErrInvalidArg)
			}

			subdevice = n

		default:
			return nil, fmt.Errorf("pcm %s: unknown field %s: %w", name, key, ErrInvalidArg)
		}
	}

	if !haveCard {
		return nil, fmt.Errorf("pcm %s: card is not defined: %w", name, ErrInvalidArg)
	}

	return openHW(name, card, device, subdevice, stream, mode)
}

func defInt(val any) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	}

	return 0, false
}

// mapStatusAndControl maps the kernel's pointer pages. Kernels that do
// not export them leave the backend on the SYNC_PTR fallback.
func (b *hwBackend) mapStatusAndControl() {
	pageSize := unix.Getpagesize()

	sbuf, err := unix.Mmap(b.fd, SNDRV_PCM_MMAP_OFFSET_STATUS, pageSize, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		cbuf, cerr := unix.Mmap(b.fd, SNDRV_PCM_MMAP_OFFSET_CONTROL, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if cerr == nil {
			b.statusBuf = sbuf
			b.controlBuf = cbuf
			b.mmapStatus = (*sndPcmMmapStatus)(unsafe.Pointer(&sbuf[0]))
			b.mmapControl = (*sndPcmMmapControl)(unsafe.Pointer(&cbuf[0]))
			b.isMmapped = true

			return
		}

		_ = unix.Munmap(sbuf)
	}

	b.syncPointer = &sndPcmSyncPtr{}
	b.mmapStatus = &b.syncPointer.S.sndPcmMmapStatus
	b.mmapControl = &b.syncPointer.C.sndPcmMmapControl
	b.isMmapped = false
}

func (b *hwBackend) unmapStatusAndControl() {
	if b.statusBuf != nil {
		_ = unix.Munmap(b.statusBuf)
		b.statusBuf = nil
	}

	if b.controlBuf != nil {
		_ = unix.Munmap(b.controlBuf)
		b.controlBuf = nil
	}

	b.mmapStatus = nil
	b.mmapControl = nil
	b.syncPointer = nil
}

// syncPtr refreshes the pointer view. With mapped pages only an explicit
// hardware sync needs a syscall; the fallback path always goes through
// the SYNC_PTR ioctl. A clear flag bit makes the kernel adopt that field
// from us, so the appl and avail_min bits stay set on every call: those
// fields reach the kernel through the transfer ioctls and SW_PARAMS, and
// the copies here are read-only views.
func (b *hwBackend) syncPtr(flags uint32) error {
	if b.isMmapped {
		if flags&SNDRV_PCM_SYNC_PTR_HWSYNC == 0 {
			return nil
		}

		return ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_HWSYNC, 0)
	}

	b.syncPointer.Flags = flags | SNDRV_PCM_SYNC_PTR_APPL | SNDRV_PCM_SYNC_PTR_AVAIL_MIN

	return ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_SYNC_PTR, uintptr(unsafe.Pointer(b.syncPointer)))
}

func (b *hwBackend) hwPtr() SndPcmUframesT {
	return atomicLoadUframes(&b.mmapStatus.HwPtr)
}

func (b *hwBackend) applPtr() SndPcmUframesT {
	return atomicLoadUframes(&b.mmapControl.ApplPtr)
}

func (b *hwBackend) Close() error {
	if b.stopAsync != nil {
		close(b.stopAsync)
		b.stopAsync = nil
	}

	b.unmapStatusAndControl()

	if err := unix.Close(b.fd); err != nil {
		return fmt.Errorf("close hw device: %w", err)
	}

	return nil
}

func (b *hwBackend) Info() (*Info, error) {
	return &Info{
		Card:            int(b.info.Card),
		Device:          int(b.info.Device),
		Subdevice:       int(b.info.Subdevice),
		Stream:          b.stream,
		ID:              cstr(b.info.Id[:]),
		Name:            cstr(b.info.Name[:]),
		Subname:         cstr(b.info.Subname[:]),
		SubdevicesCount: int(b.info.SubdevicesCount),
		SubdevicesAvail: int(b.info.SubdevicesAvail),
	}, nil
}

func (b *hwBackend) HwParams(h *HWParams) error {
	switch h.Access {
	case AccessRWInterleaved, AccessRWNonInterleaved:
	default:
		return fmt.Errorf("hw access %s: %w", h.Access, ErrUnsupported)
	}

	params := &sndPcmHwParams{}
	paramInit(params)

	paramSetMask(params, SNDRV_PCM_HW_PARAM_ACCESS, uint32(h.Access))
	paramSetMask(params, SNDRV_PCM_HW_PARAM_FORMAT, uint32(h.Format))
	paramSetMask(params, SNDRV_PCM_HW_PARAM_SUBFORMAT, uint32(h.Subformat))
	paramSetInt(params, SNDRV_PCM_HW_PARAM_CHANNELS, uint32(h.Channels))
	paramSetInt(params, SNDRV_PCM_HW_PARAM_RATE, uint32(h.Rate))

	if h.PeriodSize > 0 {
		paramSetInt(params, SNDRV_PCM_HW_PARAM_PERIOD_SIZE, uint32(h.PeriodSize))
	}
	if h.BufferSize > 0 {
		paramSetInt(params, SNDRV_PCM_HW_PARAM_BUFFER_SIZE, uint32(h.BufferSize))
	}

	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_HW_PARAMS, uintptr(unsafe.Pointer(params))); err != nil {
		if errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("hw refuses %s %dch %dHz: %w", h.Format, h.Channels, h.Rate, ErrInvalidArg)
		}

		return hwError("hw_params", err)
	}

	h.Channels = int(paramGetInt(params, SNDRV_PCM_HW_PARAM_CHANNELS))
	h.Rate = int(paramGetInt(params, SNDRV_PCM_HW_PARAM_RATE))
	h.PeriodSize = int(paramGetInt(params, SNDRV_PCM_HW_PARAM_PERIOD_SIZE))
	h.BufferSize = int(paramGetInt(params, SNDRV_PCM_HW_PARAM_BUFFER_SIZE))
	h.PeriodTime = int(paramGetInt(params, SNDRV_PCM_HW_PARAM_PERIOD_TIME))
	h.TickTime = int(paramGetInt(params, SNDRV_PCM_HW_PARAM_TICK_TIME))
	h.Msbits = int(params.Msbits)
	h.RateNum = int(params.RateNum)
	h.RateDen = int(params.RateDen)

	b.bufferSize = h.BufferSize

	return nil
}

func (b *hwBackend) HwFree() error {
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_HW_FREE, 0); err != nil {
		return hwError("hw_free", err)
	}

	return nil
}

func (b *hwBackend) SwParams(s *SWParams) error {
	params := &sndPcmSwParams{
		TstampMode:       uint32(s.TstampMode),
		PeriodStep:       uint32(s.PeriodStep),
		SleepMin:         uint32(s.SleepMin),
		AvailMin:         SndPcmUframesT(s.AvailMin),
		XferAlign:        SndPcmUframesT(s.XferAlign),
		SilenceThreshold: SndPcmUframesT(s.SilenceThreshold),
		SilenceSize:      SndPcmUframesT(s.SilenceSize),
	}

	// The kernel must neither trigger nor stop the stream on its own;
	// both decisions belong to the transfer layer. Start stays out of
	// reach at the boundary, stop collapses to it when breakage is run
	// over instead of surfaced.
	boundary := hwBoundary(SndPcmUframesT(b.bufferSize))
	params.StartThreshold = boundary
	if s.XrunMode == XrunNone {
		params.StopThreshold = boundary
	} else {
		params.StopThreshold = SndPcmUframesT(b.bufferSize)
	}

	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_SW_PARAMS, uintptr(unsafe.Pointer(params))); err != nil {
		return hwError("sw_params", err)
	}

	s.Boundary = uint64(params.Boundary)
	b.boundary = params.Boundary

	return nil
}

// Nonblock is a no-op: the descriptor always stays nonblocking and the
// transfer engine supplies the blocking behavior.
func (b *hwBackend) Nonblock(bool) error {
	return nil
}

// Async emulates period notifications by polling the device descriptor
// from a goroutine. The kernel wakes the poll whenever at least avail_min
// frames can be moved, so a handler that does not transfer will be called
// again immediately.
func (b *hwBackend) Async(handler AsyncHandler) error {
	if b.stopAsync != nil {
		close(b.stopAsync)
		b.stopAsync = nil
	}

	if handler == nil {
		return nil
	}

	stop := make(chan struct{})
	b.stopAsync = stop

	fd := b.fd
	events := streamPollEvents(b.stream)

	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}

			fds := []unix.PollFd{{Fd: int32(fd), Events: events}}

			n, err := unix.Poll(fds, 100)
			if err != nil {
				if errors.Is(err, unix.EINTR) {
					continue
				}

				return
			}

			if n == 0 {
				continue
			}

			if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				return
			}

			handler()
		}
	}()

	return nil
}

func (b *hwBackend) LinkDescriptor() (int, error) {
	return b.fd, nil
}

func (b *hwBackend) Dump(w io.Writer) error {
	name, err := CardName(b.card)
	if err != nil {
		name = "???"
	}

	fmt.Fprintf(w, "Hardware PCM card %d '%s' device %d subdevice %d\n", b.card, name, b.device, b.subdevice)

	if b.pcm.setup {
		fmt.Fprintf(w, "Its setup is:\n")

		return b.pcm.DumpSetup(w)
	}

	return nil
}

func (b *hwBackend) State() State {
	if err := b.syncPtr(0); err != nil {
		var status sndPcmStatus
		if serr := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_STATUS, uintptr(unsafe.Pointer(&status))); serr == nil {
			return State(status.State)
		}

		return StateDisconnected
	}

	return State(atomic.LoadInt32(&b.mmapStatus.State))
}

func (b *hwBackend) Status() (*Status, error) {
	var status sndPcmStatus
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_STATUS, uintptr(unsafe.Pointer(&status))); err != nil {
		return nil, hwError("status", err)
	}

	return &Status{
		State:       State(status.State),
		TriggerTime: status.triggerTime(),
		Time:        status.tstampTime(),
		Delay:       int(status.Delay),
		Avail:       int(status.Avail),
		AvailMax:    int(status.AvailMax),
	}, nil
}

func (b *hwBackend) Delay() (int, error) {
	var delay SndPcmSframesT
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_DELAY, uintptr(unsafe.Pointer(&delay))); err != nil {
		return 0, hwError("delay", err)
	}

	return int(delay), nil
}

func (b *hwBackend) Prepare() error {
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_PREPARE, 0); err != nil {
		return hwError("prepare", err)
	}

	// Pull the zeroed pointers back into the fallback view.
	return b.syncPtr(0)
}

func (b *hwBackend) Reset() error {
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_RESET, 0); err != nil {
		return hwError("reset", err)
	}

	return b.syncPtr(0)
}

func (b *hwBackend) Start() error {
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_START, 0); err != nil {
		return hwError("start", err)
	}

	return nil
}

func (b *hwBackend) Drop() error {
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_DROP, 0); err != nil {
		return hwError("drop", err)
	}

	return nil
}

// Drain waits for queued playback frames to reach the hardware. The
// descriptor is switched to blocking for the duration of the ioctl, since
// a nonblocking drain only initiates and reports EAGAIN.
func (b *hwBackend) Drain() error {
	if b.pcm.mode&ModeNonblock == 0 {
		flags, err := unix.FcntlInt(uintptr(b.fd), unix.F_GETFL, 0)
		if err == nil {
			_, _ = unix.FcntlInt(uintptr(b.fd), unix.F_SETFL, flags&^unix.O_NONBLOCK)
			defer func() {
				_, _ = unix.FcntlInt(uintptr(b.fd), unix.F_SETFL, flags)
			}()
		}
	}

	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_DRAIN, 0); err != nil {
		return hwError("drain", err)
	}

	return nil
}

func (b *hwBackend) Pause(enable bool) error {
	arg := uintptr(0)
	if enable {
		arg = 1
	}

	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_PAUSE, arg); err != nil {
		return hwError("pause", err)
	}

	return nil
}

func (b *hwBackend) Rewind(frames int) (int, error) {
	u := SndPcmUframesT(frames)
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_REWIND, uintptr(unsafe.Pointer(&u))); err != nil {
		return 0, hwError("rewind", err)
	}

	return int(u), nil
}

func (b *hwBackend) MmapForward(frames int) (int, error) {
	u := SndPcmUframesT(frames)
	if err := ioctl(uintptr(b.fd), SNDRV_PCM_IOCTL_FORWARD, uintptr(unsafe.Pointer(&u))); err != nil {
		return 0, hwError("forward", err)
	}

	return int(u), nil
}

func (b *hwBackend) AvailUpdate() (int, error) {
	if err := b.syncPtr(SNDRV_PCM_SYNC_PTR_HWSYNC); err != nil {
		return 0, hwError("hwsync", err)
	}

	hw := b.hwPtr()
	appl := b.applPtr()

	var avail SndPcmSframesT
	if b.stream == StreamCapture {
		avail = SndPcmSframesT(hw - appl)
		if avail < 0 {
			avail += SndPcmSframesT(b.boundary)
		}
	} else {
		used := SndPcmSframesT(appl - hw)
		if used < 0 {
			used += SndPcmSframesT(b.boundary)
		}

		avail = SndPcmSframesT(b.bufferSize) - used
	}

	return int(avail), nil
}

func (b *hwBackend) WriteChunk(areas []Area, offset, frames int) (int, error) {
	if b.pcm.access == AccessRWNonInterleaved {
		return b.xfern(SNDRV_PCM_IOCTL_WRITEN_FRAMES, "writen", areas, offset, frames)
	}

	return b.xferi(SNDRV_PCM_IOCTL_WRITEI_FRAMES, "writei", areas, offset, frames)
}

func (b *hwBackend) ReadChunk(areas []Area, offset, frames int) (int, error) {
	if b.pcm.access == AccessRWNonInterleaved {
		return b.xfern(SNDRV_PCM_IOCTL_READN_FRAMES, "readn", areas, offset, frames)
	}

	return b.xferi(SNDRV_PCM_IOCTL_READI_FRAMES, "readi", areas, offset, frames)
}

// areaAddr returns the address of the first sample of a chunk inside an
// area. Transfers are byte aligned for every linear format.
func areaAddr(a *Area, offset int) unsafe.Pointer {
	byteOff := (int(a.First) + offset*int(a.Step)) / 8

	return unsafe.Pointer(&a.Buf[byteOff])
}

func (b *hwBackend) xferi(req uintptr, op string, areas []Area, offset, frames int) (int, error) {
	xfer := sndXferi{
		Buf:    uintptr(areaAddr(&areas[0], offset)),
		Frames: SndPcmUframesT(frames),
	}

	err := ioctl(uintptr(b.fd), req, uintptr(unsafe.Pointer(&xfer)))
	runtime.KeepAlive(areas)
	if err != nil {
		return 0, hwError(op, err)
	}

	return int(xfer.Result), nil
}

func (b *hwBackend) xfern(req uintptr, op string, areas []Area, offset, frames int) (int, error) {
	bufs := make([]uintptr, len(areas))
	for ch := range areas {
		bufs[ch] = uintptr(areaAddr(&areas[ch], offset))
	}

	xfer := sndXfern{
		Bufs:   uintptr(unsafe.Pointer(&bufs[0])),
		Frames: SndPcmUframesT(frames),
	}

	err := ioctl(uintptr(b.fd), req, uintptr(unsafe.Pointer(&xfer)))
	runtime.KeepAlive(bufs)
	runtime.KeepAlive(areas)
	if err != nil {
		return 0, hwError(op, err)
	}

	return int(xfer.Result), nil
}
