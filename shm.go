package pcmio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The shared segment starts with one control page followed by the data
// window. Chunk payloads cross in the window, always interleaved; commands
// cross in the control block, with one doorbell byte on the socket each way.
const (
	shmCtrlSize  = 4096
	shmDataSize  = 1 << 20
	shmTotalSize = shmCtrlSize + shmDataSize
)

const (
	shmByteCmd   = 'd'
	shmByteDone  = 'c'
	shmByteReady = 'r'
)

const (
	shmCmdClose int32 = iota + 1
	shmCmdInfo
	shmCmdHwParams
	shmCmdHwFree
	shmCmdSwParams
	shmCmdNonblock
	shmCmdState
	shmCmdStatus
	shmCmdDelay
	shmCmdPrepare
	shmCmdReset
	shmCmdStart
	shmCmdDrop
	shmCmdDrain
	shmCmdPause
	shmCmdRewind
	shmCmdForward
	shmCmdAvail
	shmCmdWrite
	shmCmdRead
)

const (
	shmErrNone int32 = iota
	shmErrInvalid
	shmErrNotFound
	shmErrBadState
	shmErrXrun
	shmErrWouldBlock
	shmErrInterrupted
	shmErrUnsupported
	shmErrIO
)

func shmEncodeErr(err error) int32 {
	switch {
	case err == nil:
		return shmErrNone
	case errors.Is(err, ErrInvalidArg):
		return shmErrInvalid
	case errors.Is(err, ErrNotFound):
		return shmErrNotFound
	case errors.Is(err, ErrBadState):
		return shmErrBadState
	case errors.Is(err, ErrXrun):
		return shmErrXrun
	case errors.Is(err, ErrWouldBlock):
		return shmErrWouldBlock
	case errors.Is(err, ErrInterrupted):
		return shmErrInterrupted
	case errors.Is(err, ErrUnsupported):
		return shmErrUnsupported
	}

	return shmErrIO
}

func shmDecodeErr(code int32, op string) error {
	var kind error

	switch code {
	case shmErrInvalid:
		kind = ErrInvalidArg
	case shmErrNotFound:
		kind = ErrNotFound
	case shmErrBadState:
		kind = ErrBadState
	case shmErrXrun:
		kind = ErrXrun
	case shmErrWouldBlock:
		kind = ErrWouldBlock
	case shmErrInterrupted:
		kind = ErrInterrupted
	case shmErrUnsupported:
		kind = ErrUnsupported
	default:
		kind = unix.EIO
	}

	return fmt.Errorf("shm %s: %w", op, kind)
}

// shmCtrl is the control block at the head of the shared segment. Both
// sides cast the mapping to this struct; the doorbell round trip orders
// access to it.
type shmCtrl struct {
	cmd     int32
	errKind int32
	result  int64

	access     int32
	format     int32
	subformat  int32
	channels   int32
	rate       int32
	rateNum    int32
	rateDen    int32
	msbits     int32
	periodTime int32
	tickTime   int32
	bufferSize int64
	periodSize int64

	startMode        int32
	xrunMode         int32
	tstampMode       int32
	periodStep       int32
	sleepMin         int32
	pad1             int32
	availMin         int64
	xferAlign        int64
	silenceThreshold int64
	silenceSize      int64
	boundary         uint64

	frames int64
	enable int32

	state       int32
	triggerSec  int64
	triggerNsec int64
	tstampSec   int64
	tstampNsec  int64
	delay       int64
	avail       int64
	availMax    int64

	card            int32
	device          int32
	subdevice       int32
	subdevicesCount int32
	subdevicesAvail int32
	pad2            int32
	id              [64]byte
	name            [80]byte
	subname         [32]byte
}

func (c *shmCtrl) storeHWParams(h *HWParams) {
	c.access = int32(h.Access)
	c.format = int32(h.Format)
	c.subformat = int32(h.Subformat)
	c.channels = int32(h.Channels)
	c.rate = int32(h.Rate)
	c.rateNum = int32(h.RateNum)
	c.rateDen = int32(h.RateDen)
	c.msbits = int32(h.Msbits)
	c.periodTime = int32(h.PeriodTime)
	c.tickTime = int32(h.TickTime)
	c.bufferSize = int64(h.BufferSize)
	c.periodSize = int64(h.PeriodSize)
}

func (c *shmCtrl) loadHWParams(h *HWParams) {
	h.Access = Access(c.access)
	h.Format = Format(c.format)
	h.Subformat = Subformat(c.subformat)
	h.Channels = int(c.channels)
	h.Rate = int(c.rate)
	h.RateNum = int(c.rateNum)
	h.RateDen = int(c.rateDen)
	h.Msbits = int(c.msbits)
	h.PeriodTime = int(c.periodTime)
	h.TickTime = int(c.tickTime)
	h.BufferSize = int(c.bufferSize)
	h.PeriodSize = int(c.periodSize)
}

func (c *shmCtrl) storeSWParams(s *SWParams) {
	c.startMode = int32(s.StartMode)
	c.xrunMode = int32(s.XrunMode)
	c.tstampMode = int32(s.TstampMode)
	c.periodStep = int32(s.PeriodStep)
	c.sleepMin = int32(s.SleepMin)
	c.availMin = int64(s.AvailMin)
	c.xferAlign = int64(s.XferAlign)
	c.silenceThreshold = int64(s.SilenceThreshold)
	c.silenceSize = int64(s.SilenceSize)
	c.boundary = s.Boundary
}

func (c *shmCtrl) loadSWParams(s *SWParams) {
	s.StartMode = StartMode(c.startMode)
	s.XrunMode = XrunMode(c.xrunMode)
	s.TstampMode = TstampMode(c.tstampMode)
	s.PeriodStep = int(c.periodStep)
	s.SleepMin = int(c.sleepMin)
	s.AvailMin = int(c.availMin)
	s.XferAlign = int(c.xferAlign)
	s.SilenceThreshold = int(c.silenceThreshold)
	s.SilenceSize = int(c.silenceSize)
	s.Boundary = c.boundary
}

func (c *shmCtrl) storeInfo(info *Info) {
	c.card = int32(info.Card)
	c.device = int32(info.Device)
	c.subdevice = int32(info.Subdevice)
	c.subdevicesCount = int32(info.SubdevicesCount)
	c.subdevicesAvail = int32(info.SubdevicesAvail)
	storeCStr(c.id[:], info.ID)
	storeCStr(c.name[:], info.Name)
	storeCStr(c.subname[:], info.Subname)
}

func (c *shmCtrl) loadInfo(info *Info) {
	info.Card = int(c.card)
	info.Device = int(c.device)
	info.Subdevice = int(c.subdevice)
	info.SubdevicesCount = int(c.subdevicesCount)
	info.SubdevicesAvail = int(c.subdevicesAvail)
	info.ID = cstr(c.id[:])
	info.Name = cstr(c.name[:])
	info.Subname = cstr(c.subname[:])
}

func (c *shmCtrl) storeStatus(st *Status) {
	c.state = int32(st.State)
	c.triggerSec = st.TriggerTime.Unix()
	c.triggerNsec = int64(st.TriggerTime.Nanosecond())
	c.tstampSec = st.Time.Unix()
	c.tstampNsec = int64(st.Time.Nanosecond())
	c.delay = int64(st.Delay)
	c.avail = int64(st.Avail)
	c.availMax = int64(st.AvailMax)
}

func (c *shmCtrl) loadStatus(st *Status) {
	st.State = State(c.state)
	st.TriggerTime = time.Unix(c.triggerSec, c.triggerNsec)
	st.Time = time.Unix(c.tstampSec, c.tstampNsec)
	st.Delay = int(c.delay)
	st.Avail = int(c.avail)
	st.AvailMax = int(c.availMax)
}

func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b)
}

func storeCStr(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func readFull(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Read(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}

		b = b[n:]
	}

	return nil
}

func writeFull(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}

		b = b[n:]
	}

	return nil
}

// shmBackend drives a slave handle owned by a server process. Commands
// travel through the control block, frames through the data window, and
// the socket carries doorbell and readiness bytes so the handle polls on
// the socket itself.
type shmBackend struct {
	pcm       *PCM
	stream    Stream
	socket    string
	slaveName string

	sock int
	mem  []byte
	ctrl *shmCtrl
	data []byte

	disconnected bool
}

func openShm(name, socket, slaveName string, stream Stream, mode Mode) (*PCM, error) {
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("shm socket: %w", err)
	}

	if err := unix.Connect(sock, &unix.SockaddrUnix{Name: socket}); err != nil {
		unix.Close(sock)

		return nil, fmt.Errorf("shm connect %s: %w", socket, err)
	}

	req := make([]byte, 12+len(slaveName))
	binary.LittleEndian.PutUint32(req[0:], uint32(len(slaveName)))
	binary.LittleEndian.PutUint32(req[4:], uint32(stream))
	binary.LittleEndian.PutUint32(req[8:], uint32(mode))
	copy(req[12:], slaveName)

	if err := writeFull(sock, req); err != nil {
		unix.Close(sock)

		return nil, fmt.Errorf("shm %s: send open: %w", socket, err)
	}

	reply := make([]byte, 8)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(sock, reply, oob, 0)
	if err != nil || n < len(reply) {
		unix.Close(sock)
		if err == nil {
			err = io.ErrUnexpectedEOF
		}

		return nil, fmt.Errorf("shm %s: open reply: %w", socket, err)
	}

	if code := int32(binary.LittleEndian.Uint32(reply[0:])); code != shmErrNone {
		unix.Close(sock)

		return nil, shmDecodeErr(code, "open "+slaveName)
	}

	memfd, err := shmReplyFd(oob[:oobn])
	if err != nil {
		unix.Close(sock)

		return nil, fmt.Errorf("shm %s: %w", socket, err)
	}

	mem, err := unix.Mmap(memfd, 0, shmTotalSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	unix.Close(memfd)
	if err != nil {
		unix.Close(sock)

		return nil, fmt.Errorf("shm %s: mmap: %w", socket, err)
	}

	b := &shmBackend{
		stream:    stream,
		socket:    socket,
		slaveName: slaveName,
		sock:      sock,
		mem:       mem,
		ctrl:      (*shmCtrl)(unsafe.Pointer(&mem[0])),
		data:      mem[shmCtrlSize:],
	}

	p := New(name, TypeShm, stream, mode, b, b)
	p.SetPollDescriptor(sock, unix.POLLIN)
	b.pcm = p

	return p, nil
}

func openShmDef(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error) {
	var (
		slaveDef any
		socket   string
	)

	for key, value := range def {
		switch key {
		case "type", "comment":
		case "slave":
			slaveDef = value
		case "socket":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("pcm %s: invalid socket field: %w", name, ErrInvalidArg)
			}

			socket = s
		default:
			return nil, fmt.Errorf("pcm %s: unknown field %s: %w", name, key, ErrInvalidArg)
		}
	}

	if socket == "" {
		return nil, fmt.Errorf("pcm %s: socket is not defined: %w", name, ErrInvalidArg)
	}

	if slaveDef == nil {
		return nil, fmt.Errorf("pcm %s: slave is not defined: %w", name, ErrInvalidArg)
	}

	slaveName, err := ParseSlaveDefinition(slaveDef)
	if err != nil {
		return nil, fmt.Errorf("pcm %s: %w", name, err)
	}

	return openShm(name, socket, slaveName, stream, mode)
}

func shmReplyFd(oob []byte) (int, error) {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, fmt.Errorf("open reply: %w", err)
	}

	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil || len(fds) == 0 {
			continue
		}

		return fds[0], nil
	}

	return -1, fmt.Errorf("open reply carried no descriptor: %w", ErrInvalidArg)
}

// command rings the doorbell and blocks until the server confirms. Stale
// readiness bytes are drained first so they cannot be mistaken for the
// completion of this command.
func (b *shmBackend) command(cmd int32, op string) error {
	if b.disconnected {
		return fmt.Errorf("shm %s: server gone: %w", op, ErrBadState)
	}

	var scratch [16]byte
	for {
		n, _, err := unix.Recvfrom(b.sock, scratch[:], unix.MSG_DONTWAIT)
		if err != nil || n == 0 {
			break
		}
	}

	b.ctrl.cmd = cmd

	if err := writeFull(b.sock, []byte{shmByteCmd}); err != nil {
		b.disconnected = true

		return fmt.Errorf("shm %s: %w", op, err)
	}

	var one [1]byte
	for {
		n, _, err := unix.Recvfrom(b.sock, one[:], 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			b.disconnected = true
			if err == nil {
				err = io.ErrUnexpectedEOF
			}

			return fmt.Errorf("shm %s: %w", op, err)
		}

		if one[0] == shmByteDone {
			break
		}
	}

	if b.ctrl.errKind != shmErrNone {
		return shmDecodeErr(b.ctrl.errKind, op)
	}

	return nil
}

func (b *shmBackend) Close() error {
	var first error

	if !b.disconnected {
		first = b.command(shmCmdClose, "close")
	}

	if err := unix.Munmap(b.mem); err != nil && first == nil {
		first = err
	}

	if err := unix.Close(b.sock); err != nil && first == nil {
		first = err
	}

	return first
}

func (b *shmBackend) Info() (*Info, error) {
	if err := b.command(shmCmdInfo, "info"); err != nil {
		return nil, err
	}

	info := &Info{}
	b.ctrl.loadInfo(info)

	return info, nil
}

// shmMaxFrames is the largest buffer the data window can carry for the
// negotiated frame layout.
func shmMaxFrames(h *HWParams) int {
	frameBits := h.Channels * h.Format.PhysicalWidth()
	if frameBits <= 0 {
		return 0
	}

	return shmDataSize * 8 / frameBits
}

func (b *shmBackend) HwParams(h *HWParams) error {
	if limit := shmMaxFrames(h); limit > 0 && h.BufferSize > limit {
		h.BufferSize = limit
		if h.PeriodSize > limit {
			h.PeriodSize = limit
		}
	}

	b.ctrl.storeHWParams(h)

	if err := b.command(shmCmdHwParams, "hw_params"); err != nil {
		return err
	}

	b.ctrl.loadHWParams(h)

	if limit := shmMaxFrames(h); h.BufferSize > limit {
		return fmt.Errorf("shm hw_params: buffer %d exceeds transport window: %w", h.BufferSize, ErrInvalidArg)
	}

	return nil
}

func (b *shmBackend) HwFree() error {
	return b.command(shmCmdHwFree, "hw_free")
}

func (b *shmBackend) SwParams(s *SWParams) error {
	b.ctrl.storeSWParams(s)

	if err := b.command(shmCmdSwParams, "sw_params"); err != nil {
		return err
	}

	// Only the boundary comes back; the local start mode keeps governing
	// this side's transfer engine.
	s.Boundary = b.ctrl.boundary

	return nil
}

func (b *shmBackend) Nonblock(nonblock bool) error {
	b.ctrl.enable = 0
	if nonblock {
		b.ctrl.enable = 1
	}

	return b.command(shmCmdNonblock, "nonblock")
}

func (b *shmBackend) Async(AsyncHandler) error {
	return fmt.Errorf("shm: async: %w", ErrUnsupported)
}

func (b *shmBackend) LinkDescriptor() (int, error) {
	return -1, fmt.Errorf("shm: link: %w", ErrUnsupported)
}

func (b *shmBackend) Dump(w io.Writer) error {
	fmt.Fprintf(w, "Shm PCM (socket=%s, pcm=%s)\n", b.socket, b.slaveName)

	if b.pcm.setup {
		fmt.Fprintf(w, "Its setup is:\n")

		return b.pcm.DumpSetup(w)
	}

	return nil
}

func (b *shmBackend) State() State {
	if err := b.command(shmCmdState, "state"); err != nil {
		return StateDisconnected
	}

	return State(b.ctrl.result)
}

func (b *shmBackend) Status() (*Status, error) {
	if err := b.command(shmCmdStatus, "status"); err != nil {
		return nil, err
	}

	st := &Status{}
	b.ctrl.loadStatus(st)

	return st, nil
}

func (b *shmBackend) Delay() (int, error) {
	if err := b.command(shmCmdDelay, "delay"); err != nil {
		return 0, err
	}

	return int(b.ctrl.result), nil
}

func (b *shmBackend) Prepare() error {
	return b.command(shmCmdPrepare, "prepare")
}

func (b *shmBackend) Reset() error {
	return b.command(shmCmdReset, "reset")
}

func (b *shmBackend) Start() error {
	return b.command(shmCmdStart, "start")
}

func (b *shmBackend) Drop() error {
	return b.command(shmCmdDrop, "drop")
}

func (b *shmBackend) Drain() error {
	return b.command(shmCmdDrain, "drain")
}

func (b *shmBackend) Pause(enable bool) error {
	b.ctrl.enable = 0
	if enable {
		b.ctrl.enable = 1
	}

	return b.command(shmCmdPause, "pause")
}

func (b *shmBackend) Rewind(frames int) (int, error) {
	b.ctrl.frames = int64(frames)

	if err := b.command(shmCmdRewind, "rewind"); err != nil {
		return 0, err
	}

	return int(b.ctrl.result), nil
}

func (b *shmBackend) AvailUpdate() (int, error) {
	if err := b.command(shmCmdAvail, "avail_update"); err != nil {
		return 0, err
	}

	return int(b.ctrl.result), nil
}

func (b *shmBackend) MmapForward(frames int) (int, error) {
	b.ctrl.frames = int64(frames)

	if err := b.command(shmCmdForward, "mmap_forward"); err != nil {
		return 0, err
	}

	return int(b.ctrl.result), nil
}

func (b *shmBackend) WriteChunk(areas []Area, offset, frames int) (int, error) {
	if err := AreasCopy(b.pcm.areasFromBuf(b.data), 0, areas, offset, frames, b.pcm.format); err != nil {
		return 0, err
	}

	b.ctrl.frames = int64(frames)

	if err := b.command(shmCmdWrite, "write"); err != nil {
		return 0, err
	}

	return int(b.ctrl.result), nil
}

func (b *shmBackend) ReadChunk(areas []Area, offset, frames int) (int, error) {
	b.ctrl.frames = int64(frames)

	if err := b.command(shmCmdRead, "read"); err != nil {
		return 0, err
	}

	n := int(b.ctrl.result)
	if n > 0 {
		if err := AreasCopy(areas, offset, b.pcm.areasFromBuf(b.data), 0, n, b.pcm.format); err != nil {
			return 0, err
		}
	}

	return n, nil
}
