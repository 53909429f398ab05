package pcmio

import (
	"fmt"
	"io"
	"time"
)

// HWParams holds the hardware configuration of a stream. Zero fields are
// filled with defaults during installation; the backend adjusts the struct
// to the configuration it actually installed.
type HWParams struct {
	Access    Access
	Format    Format
	Subformat Subformat
	Channels  int
	Rate      int

	// BufferSize and PeriodSize are in frames. When only one of them is
	// given the other is derived from it.
	BufferSize int
	PeriodSize int

	// Filled in by the backend.
	RateNum    int
	RateDen    int
	Msbits     int
	PeriodTime int // microseconds
	TickTime   int // microseconds
}

// SWParams holds the software configuration of a stream. Boundary is an
// output: the wrap-around modulus chosen by the backend.
type SWParams struct {
	StartMode        StartMode
	XrunMode         XrunMode
	TstampMode       TstampMode
	PeriodStep       int
	SleepMin         int
	AvailMin         int
	XferAlign        int
	SilenceThreshold int
	SilenceSize      int
	Boundary         uint64
}

// Info describes the device or route behind a handle.
type Info struct {
	Card            int
	Device          int
	Subdevice       int
	Stream          Stream
	ID              string
	Name            string
	Subname         string
	SubdevicesCount int
	SubdevicesAvail int
}

// Status is a consistent snapshot of the dynamic stream state.
type Status struct {
	State       State
	TriggerTime time.Time
	Time        time.Time
	Delay       int
	Avail       int
	AvailMax    int
}

// Dump writes a human-readable rendition of the snapshot.
func (s *Status) Dump(w io.Writer) error {
	fmt.Fprintf(w, "  state       : %s\n", s.State)
	fmt.Fprintf(w, "  trigger_time: %d.%06d\n", s.TriggerTime.Unix(), s.TriggerTime.Nanosecond()/1000)
	fmt.Fprintf(w, "  tstamp      : %d.%06d\n", s.Time.Unix(), s.Time.Nanosecond()/1000)
	fmt.Fprintf(w, "  delay       : %d\n", s.Delay)
	fmt.Fprintf(w, "  avail       : %d\n", s.Avail)
	fmt.Fprintf(w, "  avail_max   : %d\n", s.AvailMax)

	return nil
}

// AsyncHandler is invoked on period elapsed notifications.
type AsyncHandler func()

// Ops is the control-plane half of a backend: configuration and teardown.
// Handle methods validate lifecycle preconditions before dispatching here.
type Ops interface {
	Close() error
	Info() (*Info, error)
	HwParams(*HWParams) error
	HwFree() error
	SwParams(*SWParams) error
	Nonblock(bool) error
	Async(AsyncHandler) error
	LinkDescriptor() (int, error)
	Dump(io.Writer) error
}

// FastOps is the hot-path half of a backend: state, positions and chunk
// transfers. Chunk operations run only after the transfer engine has
// established availability; they move either the full count or nothing,
// reporting an error in the latter case.
type FastOps interface {
	State() State
	Status() (*Status, error)
	Delay() (int, error)
	Prepare() error
	Reset() error
	Start() error
	Drop() error
	Drain() error
	Pause(bool) error
	Rewind(int) (int, error)
	AvailUpdate() (int, error)
	MmapForward(int) (int, error)
	WriteChunk(areas []Area, offset, frames int) (int, error)
	ReadChunk(areas []Area, offset, frames int) (int, error)
}
