package pcmio

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// ShmServer exports local devices to shm clients over a Unix socket. Each
// connection gets its own slave handle and shared segment; sessions run
// independently.
type ShmServer struct {
	Addr string
	Log  zerolog.Logger

	lfd    int
	closed atomic.Bool
}

// NewShmServer returns a server for the given socket path. Logging is off
// until Log is replaced.
func NewShmServer(addr string) *ShmServer {
	return &ShmServer{Addr: addr, Log: zerolog.Nop(), lfd: -1}
}

// Listen binds the socket, replacing a stale one from a previous run.
func (s *ShmServer) Listen() error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("listen socket: %w", err)
	}

	unix.Unlink(s.Addr)

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: s.Addr}); err != nil {
		unix.Close(fd)

		return fmt.Errorf("bind %s: %w", s.Addr, err)
	}

	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)

		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}

	s.lfd = fd

	return nil
}

// Serve accepts connections until Close. Listen must have succeeded.
func (s *ShmServer) Serve() error {
	s.Log.Info().Str("addr", s.Addr).Msg("serving")

	for {
		conn, _, err := unix.Accept(s.lfd)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if s.closed.Load() {
				return nil
			}

			return fmt.Errorf("accept: %w", err)
		}

		if s.closed.Load() {
			unix.Close(conn)

			return nil
		}

		go s.serveConn(conn)
	}
}

func (s *ShmServer) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}

	return s.Serve()
}

// Close stops the accept loop and removes the socket. Running sessions end
// when their clients disconnect.
func (s *ShmServer) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	// A blocked accept does not notice a closed descriptor; connecting to
	// ourselves wakes it.
	if fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0); err == nil {
		unix.Connect(fd, &unix.SockaddrUnix{Name: s.Addr})
		unix.Close(fd)
	}

	if s.lfd >= 0 {
		unix.Close(s.lfd)
		s.lfd = -1
	}

	unix.Unlink(s.Addr)

	return nil
}

func (s *ShmServer) serveConn(conn int) {
	defer unix.Close(conn)

	sess, err := s.handshake(conn)
	if err != nil {
		s.Log.Warn().Err(err).Msg("session rejected")

		return
	}

	defer sess.close()

	log := s.Log.With().Str("pcm", sess.name).Str("stream", sess.stream.String()).Logger()
	log.Info().Msg("session opened")

	if err := sess.loop(); err != nil {
		log.Warn().Err(err).Msg("session aborted")

		return
	}

	log.Info().Msg("session closed")
}

// handshake reads the open request, opens the requested device and hands
// the client the shared segment descriptor.
func (s *ShmServer) handshake(conn int) (*shmSession, error) {
	hdr := make([]byte, 12)
	if err := readFull(conn, hdr); err != nil {
		return nil, fmt.Errorf("read open request: %w", err)
	}

	nameLen := binary.LittleEndian.Uint32(hdr[0:])
	stream := Stream(binary.LittleEndian.Uint32(hdr[4:]))
	mode := Mode(binary.LittleEndian.Uint32(hdr[8:]))

	if nameLen == 0 || nameLen > 255 || (stream != StreamPlayback && stream != StreamCapture) {
		s.reject(conn, shmErrInvalid)

		return nil, fmt.Errorf("malformed open request: %w", ErrInvalidArg)
	}

	nameBuf := make([]byte, nameLen)
	if err := readFull(conn, nameBuf); err != nil {
		return nil, fmt.Errorf("read open request: %w", err)
	}

	name := string(nameBuf)

	slave, err := Open(name, stream, mode)
	if err != nil {
		s.reject(conn, shmEncodeErr(err))

		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	memfd, err := unix.MemfdCreate("pcmio-shm", unix.MFD_CLOEXEC)
	if err != nil {
		slave.Close()
		s.reject(conn, shmErrIO)

		return nil, fmt.Errorf("memfd: %w", err)
	}

	if err := unix.Ftruncate(memfd, shmTotalSize); err != nil {
		unix.Close(memfd)
		slave.Close()
		s.reject(conn, shmErrIO)

		return nil, fmt.Errorf("size segment: %w", err)
	}

	mem, err := unix.Mmap(memfd, 0, shmTotalSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(memfd)
		slave.Close()
		s.reject(conn, shmErrIO)

		return nil, fmt.Errorf("map segment: %w", err)
	}

	reply := make([]byte, 8)
	err = unix.Sendmsg(conn, reply, unix.UnixRights(memfd), nil, 0)
	unix.Close(memfd)
	if err != nil {
		unix.Munmap(mem)
		slave.Close()

		return nil, fmt.Errorf("send segment: %w", err)
	}

	return &shmSession{
		conn:   conn,
		slave:  slave,
		name:   name,
		stream: stream,
		mem:    mem,
		ctrl:   (*shmCtrl)(unsafe.Pointer(&mem[0])),
		data:   mem[shmCtrlSize:],
		armed:  true,
	}, nil
}

func (s *ShmServer) reject(conn int, code int32) {
	reply := make([]byte, 8)
	binary.LittleEndian.PutUint32(reply[0:], uint32(code))
	writeFull(conn, reply)
}

type shmSession struct {
	conn   int
	slave  *PCM
	name   string
	stream Stream
	mem    []byte
	ctrl   *shmCtrl
	data   []byte
	armed  bool
}

func (sess *shmSession) close() {
	unix.Munmap(sess.mem)

	if sess.slave != nil {
		sess.slave.Close()
		sess.slave = nil
	}
}

// loop multiplexes the client socket with the slave descriptor. A slave
// event turns into one readiness byte and the watch is parked until the
// next command, so a slow client is nudged once, not flooded.
func (sess *shmSession) loop() error {
	for {
		fds := make([]unix.PollFd, 1, 2)
		fds[0] = unix.PollFd{Fd: int32(sess.conn), Events: unix.POLLIN}

		if sess.armed && sess.slave != nil {
			if fd, events := sess.slave.PollDescriptor(); fd >= 0 {
				fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
			}
		}

		if _, err := unix.Poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}

			return fmt.Errorf("poll: %w", err)
		}

		if len(fds) > 1 && fds[1].Revents != 0 {
			sess.armed = false

			if err := writeFull(sess.conn, []byte{shmByteReady}); err != nil {
				return fmt.Errorf("notify: %w", err)
			}
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			var one [1]byte

			n, err := unix.Read(sess.conn, one[:])
			if err != nil || n == 0 {
				return nil
			}

			if one[0] != shmByteCmd {
				continue
			}

			last := sess.execute()

			if err := writeFull(sess.conn, []byte{shmByteDone}); err != nil {
				return fmt.Errorf("confirm: %w", err)
			}

			sess.armed = true

			if last {
				return nil
			}
		} else if fds[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			return nil
		}
	}
}

func (sess *shmSession) execute() bool {
	c := sess.ctrl
	c.errKind = shmErrNone
	c.result = 0

	if sess.slave == nil {
		if c.cmd == shmCmdClose {
			return true
		}

		c.errKind = shmErrBadState

		return false
	}

	var err error

	switch c.cmd {
	case shmCmdClose:
		err = sess.slave.Close()
		sess.slave = nil
		c.errKind = shmEncodeErr(err)

		return true

	case shmCmdInfo:
		var info *Info
		if info, err = sess.slave.Info(); err == nil {
			c.storeInfo(info)
		}

	case shmCmdHwParams:
		err = sess.hwParams()

	case shmCmdHwFree:
		err = sess.slave.HwFree()

	case shmCmdSwParams:
		sw := SWParams{}
		c.loadSWParams(&sw)
		sw.StartMode = StartExplicit
		if err = sess.slave.SwParams(&sw); err == nil {
			c.boundary = sw.Boundary
		}

	case shmCmdNonblock:
		err = sess.slave.Nonblock(c.enable != 0)

	case shmCmdState:
		c.result = int64(sess.slave.State())

	case shmCmdStatus:
		var st *Status
		if st, err = sess.slave.Status(); err == nil {
			c.storeStatus(st)
		}

	case shmCmdDelay:
		var n int
		if n, err = sess.slave.Delay(); err == nil {
			c.result = int64(n)
		}

	case shmCmdPrepare:
		err = sess.slave.Prepare()

	case shmCmdReset:
		err = sess.slave.Reset()

	case shmCmdStart:
		err = sess.slave.Start()

	case shmCmdDrop:
		err = sess.slave.Drop()

	case shmCmdDrain:
		err = sess.slave.Drain()

	case shmCmdPause:
		err = sess.slave.Pause(c.enable != 0)

	case shmCmdRewind:
		var n int
		if n, err = sess.slave.Rewind(int(c.frames)); err == nil {
			c.result = int64(n)
		}

	case shmCmdForward:
		var n int
		if n, err = sess.slave.MmapForward(int(c.frames)); err == nil {
			c.result = int64(n)
		}

	case shmCmdAvail:
		var n int
		if n, err = sess.slave.AvailUpdate(); err == nil {
			c.result = int64(n)
		}

	case shmCmdWrite:
		var n int
		n, err = sess.slave.WriteI(sess.data, int(c.frames))
		c.result = int64(n)
		if n > 0 {
			err = nil
		}

	case shmCmdRead:
		var n int
		n, err = sess.slave.ReadI(sess.data, int(c.frames))
		c.result = int64(n)
		if n > 0 {
			err = nil
		}

	default:
		err = fmt.Errorf("unknown command %d: %w", c.cmd, ErrInvalidArg)
	}

	c.errKind = shmEncodeErr(err)

	return false
}

// hwParams installs the client's configuration on the slave. The shared
// window always carries interleaved frames, and starting stays with the
// client's transfer engine.
func (sess *shmSession) hwParams() error {
	h := HWParams{}
	sess.ctrl.loadHWParams(&h)

	requested := h.Access
	h.Access = AccessRWInterleaved

	if err := sess.slave.HwParams(&h); err != nil {
		return err
	}

	if err := sess.slave.SwParams(&SWParams{StartMode: StartExplicit}); err != nil {
		return err
	}

	h.Access = requested
	sess.ctrl.storeHWParams(&h)

	return nil
}
