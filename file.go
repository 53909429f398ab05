package pcmio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	fileFormatRaw = "raw"
	fileFormatWav = "wav"
)

// fileBackend wraps a slave handle and appends every frame that crosses the
// data path to an output file, raw or as a WAV stream. Control operations go
// straight to the slave.
type fileBackend struct {
	pcm        *PCM
	slave      *PCM
	closeSlave bool

	path   string
	format string
	out    *os.File
	enc    *wav.Encoder

	staging []byte
	samples []int
	dumpErr error
}

func openFile(name, path, format string, slave *PCM, closeSlave bool, mode Mode) (*PCM, error) {
	switch format {
	case fileFormatRaw, fileFormatWav:
	default:
		return nil, fmt.Errorf("file %s: unknown format %s: %w", name, format, ErrInvalidArg)
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	b := &fileBackend{
		slave:      slave,
		closeSlave: closeSlave,
		path:       path,
		format:     format,
		out:        out,
	}

	p := New(name, TypeFile, slave.Stream(), mode, b, b)
	p.SetPollDescriptor(slave.pollFD, slave.pollEvents)
	b.pcm = p

	return p, nil
}

func openFileDef(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error) {
	var (
		slaveDef any
		path     string
	)

	format := fileFormatRaw

	for key, value := range def {
		switch key {
		case "type", "comment":
		case "slave":
			slaveDef = value
		case "file":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("pcm %s: invalid file field: %w", name, ErrInvalidArg)
			}

			path = s
		case "format":
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("pcm %s: invalid format field: %w", name, ErrInvalidArg)
			}

			format = s
		default:
			return nil, fmt.Errorf("pcm %s: unknown field %s: %w", name, key, ErrInvalidArg)
		}
	}

	if slaveDef == nil {
		return nil, fmt.Errorf("pcm %s: slave is not defined: %w", name, ErrInvalidArg)
	}

	if path == "" {
		return nil, fmt.Errorf("pcm %s: file is not defined: %w", name, ErrInvalidArg)
	}

	slaveName, err := ParseSlaveDefinition(slaveDef)
	if err != nil {
		return nil, fmt.Errorf("pcm %s: %w", name, err)
	}

	slave, err := Open(slaveName, stream, mode)
	if err != nil {
		return nil, err
	}

	p, err := openFile(name, path, format, slave, true, mode)
	if err != nil {
		slave.Close()

		return nil, err
	}

	return p, nil
}

func (b *fileBackend) Close() error {
	var first error

	if b.enc != nil {
		if err := b.enc.Close(); err != nil && first == nil {
			first = fmt.Errorf("finalize %s: %w", b.path, err)
		}

		b.enc = nil
	}

	if err := b.out.Close(); err != nil && first == nil {
		first = err
	}

	if b.closeSlave {
		if err := b.slave.Close(); err != nil && first == nil {
			first = err
		}
	}

	if first == nil {
		first = b.dumpErr
	}

	return first
}

func (b *fileBackend) Info() (*Info, error) {
	return b.slave.Info()
}

func (b *fileBackend) HwParams(h *HWParams) error {
	if err := b.slave.HwParams(h); err != nil {
		return err
	}

	if b.format != fileFormatWav {
		return nil
	}

	switch h.Format {
	case FormatU8, FormatS16LE, FormatS24LE, FormatS32LE:
	default:
		return fmt.Errorf("file %s: %s not representable in wav: %w", b.path, h.Format, ErrInvalidArg)
	}

	// The header is fixed on first negotiation; later renegotiation keeps
	// appending with the original layout.
	if b.enc == nil {
		b.enc = wav.NewEncoder(b.out, h.Rate, h.Format.Width(), h.Channels, 1)
	}

	return nil
}

func (b *fileBackend) HwFree() error {
	return b.slave.HwFree()
}

func (b *fileBackend) SwParams(s *SWParams) error {
	return b.slave.SwParams(s)
}

func (b *fileBackend) Nonblock(nonblock bool) error {
	return b.slave.Nonblock(nonblock)
}

func (b *fileBackend) Async(handler AsyncHandler) error {
	return b.slave.Async(handler)
}

func (b *fileBackend) LinkDescriptor() (int, error) {
	return b.slave.ops.LinkDescriptor()
}

func (b *fileBackend) Dump(w io.Writer) error {
	fmt.Fprintf(w, "File PCM (file=%s, format=%s)\n", b.path, b.format)
	fmt.Fprintf(w, "Slave: ")

	return b.slave.Dump(w)
}

func (b *fileBackend) State() State {
	return b.slave.fastOps.State()
}

func (b *fileBackend) Status() (*Status, error) {
	return b.slave.fastOps.Status()
}

func (b *fileBackend) Delay() (int, error) {
	return b.slave.fastOps.Delay()
}

func (b *fileBackend) Prepare() error {
	return b.slave.fastOps.Prepare()
}

func (b *fileBackend) Reset() error {
	return b.slave.fastOps.Reset()
}

func (b *fileBackend) Start() error {
	return b.slave.fastOps.Start()
}

func (b *fileBackend) Drop() error {
	return b.slave.fastOps.Drop()
}

func (b *fileBackend) Drain() error {
	return b.slave.fastOps.Drain()
}

func (b *fileBackend) Pause(enable bool) error {
	return b.slave.fastOps.Pause(enable)
}

func (b *fileBackend) Rewind(frames int) (int, error) {
	return b.slave.fastOps.Rewind(frames)
}

func (b *fileBackend) AvailUpdate() (int, error) {
	return b.slave.fastOps.AvailUpdate()
}

func (b *fileBackend) MmapForward(frames int) (int, error) {
	return b.slave.fastOps.MmapForward(frames)
}

func (b *fileBackend) WriteChunk(areas []Area, offset, frames int) (int, error) {
	if b.dumpErr != nil {
		return 0, b.dumpErr
	}

	n, err := b.slave.fastOps.WriteChunk(areas, offset, frames)
	if n > 0 {
		b.dumpErr = b.appendFrames(areas, offset, n)
	}

	return n, err
}

func (b *fileBackend) ReadChunk(areas []Area, offset, frames int) (int, error) {
	if b.dumpErr != nil {
		return 0, b.dumpErr
	}

	n, err := b.slave.fastOps.ReadChunk(areas, offset, frames)
	if n > 0 {
		b.dumpErr = b.appendFrames(areas, offset, n)
	}

	return n, err
}

// appendFrames serializes frames into the staging buffer in interleaved
// order and writes them out. A failure here is remembered and reported on
// the next transfer rather than breaking the count already confirmed.
func (b *fileBackend) appendFrames(areas []Area, offset, frames int) error {
	size := b.pcm.FramesToBytes(frames)
	if cap(b.staging) < size {
		b.staging = make([]byte, size)
	}

	buf := b.staging[:size]
	if err := AreasCopy(b.pcm.areasFromBuf(buf), 0, areas, offset, frames, b.pcm.format); err != nil {
		return err
	}

	if b.enc != nil {
		return b.encodeWav(buf, frames)
	}

	if _, err := b.out.Write(buf); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}

	return nil
}

func (b *fileBackend) encodeWav(buf []byte, frames int) error {
	count := frames * b.pcm.channels
	if cap(b.samples) < count {
		b.samples = make([]int, count)
	}

	samples := b.samples[:count]

	switch b.pcm.format {
	case FormatU8:
		for i := range samples {
			samples[i] = int(buf[i])
		}
	case FormatS16LE:
		for i := range samples {
			samples[i] = int(int16(binary.LittleEndian.Uint16(buf[2*i:])))
		}
	case FormatS24LE:
		for i := range samples {
			u := binary.LittleEndian.Uint32(buf[4*i:])
			samples[i] = int(int32(u<<8) >> 8)
		}
	case FormatS32LE:
		for i := range samples {
			samples[i] = int(int32(binary.LittleEndian.Uint32(buf[4*i:])))
		}
	}

	err := b.enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: b.pcm.channels, SampleRate: b.pcm.rate},
		SourceBitDepth: b.pcm.format.Width(),
		Data:           samples,
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}

	return nil
}
