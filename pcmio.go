// Package pcmio provides a frame-oriented audio transport layer with
// interchangeable backends: hardware devices, a null sink, shared-memory
// proxies, file writers and pass-through routes, all behind one handle API.
package pcmio

// Stream selects the transfer direction of a handle.
type Stream int

const (
	// StreamPlayback writes frames towards a sink.
	StreamPlayback Stream = 0
	// StreamCapture reads frames from a source.
	StreamCapture Stream = 1
)

// String returns the direction name.
func (s Stream) String() string {
	switch s {
	case StreamPlayback:
		return "PLAYBACK"
	case StreamCapture:
		return "CAPTURE"
	}

	return "UNKNOWN"
}

// Mode holds the open flags of a handle.
type Mode int

const (
	// ModeNonblock makes transfers fail with ErrWouldBlock instead of waiting.
	ModeNonblock Mode = 1 << 0
	// ModeAsync requests period notifications via an async handler.
	ModeAsync Mode = 1 << 1
)

// Type identifies the backend kind behind a handle.
type Type int

const (
	TypeHW Type = iota
	TypeNull
	TypeShm
	TypeFile
	TypePlug
	TypeExternal
)

var typeNames = []string{"HW", "NULL", "SHM", "FILE", "PLUG", "EXTERNAL"}

// String returns the backend kind name.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "UNKNOWN"
	}

	return typeNames[t]
}

// State describes the lifecycle position of a stream.
// The values correspond to the SNDRV_PCM_STATE_* kernel constants.
type State int32

const (
	StateOpen         State = 0 // Handle exists, no configuration installed.
	StateSetup        State = 1 // Hardware parameters installed.
	StatePrepared     State = 2 // Ready to start.
	StateRunning      State = 3 // Transfer in progress.
	StateXrun         State = 4 // Position broken by an underrun or overrun.
	StateDraining     State = 5 // Playback finishing queued frames.
	StatePaused       State = 6 // Transfer frozen by pause.
	StateSuspended    State = 7 // Hardware power-managed away.
	StateDisconnected State = 8 // Hardware gone.
)

var stateNames = []string{
	"OPEN", "SETUP", "PREPARED", "RUNNING", "XRUN",
	"DRAINING", "PAUSED", "SUSPENDED", "DISCONNECTED",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}

	return stateNames[s]
}

// Access describes the frame layout used for transfers.
// The values correspond to the SNDRV_PCM_ACCESS_* kernel constants.
type Access int32

const (
	AccessMmapInterleaved    Access = 0
	AccessMmapNonInterleaved Access = 1
	AccessMmapComplex        Access = 2
	AccessRWInterleaved      Access = 3
	AccessRWNonInterleaved   Access = 4
)

var accessNames = []string{
	"MMAP_INTERLEAVED", "MMAP_NONINTERLEAVED", "MMAP_COMPLEX",
	"RW_INTERLEAVED", "RW_NONINTERLEAVED",
}

// String returns the access mode name.
func (a Access) String() string {
	if a < 0 || int(a) >= len(accessNames) {
		return "UNKNOWN"
	}

	return accessNames[a]
}

// Subformat refines a format. Only the standard subformat is defined.
type Subformat int32

const (
	SubformatStd Subformat = 0
)

// String returns the subformat name.
func (s Subformat) String() string {
	if s == SubformatStd {
		return "STD"
	}

	return "UNKNOWN"
}

// StartMode selects how a prepared stream begins running.
type StartMode int

const (
	// StartData starts the stream implicitly on the first transferred frame.
	StartData StartMode = 0
	// StartExplicit starts the stream only on an explicit Start call.
	StartExplicit StartMode = 1
)

// String returns the start mode name.
func (m StartMode) String() string {
	switch m {
	case StartData:
		return "DATA"
	case StartExplicit:
		return "EXPLICIT"
	}

	return "UNKNOWN"
}

// XrunMode selects how position breakage is handled.
type XrunMode int

const (
	// XrunStop moves the stream to the XRUN state when the position breaks.
	XrunStop XrunMode = 0
	// XrunNone lets the stream run over breakage without a state change.
	XrunNone XrunMode = 1
)

// String returns the xrun mode name.
func (m XrunMode) String() string {
	switch m {
	case XrunStop:
		return "STOP"
	case XrunNone:
		return "NONE"
	}

	return "UNKNOWN"
}

// TstampMode selects whether position updates carry timestamps.
type TstampMode int

const (
	TstampNone TstampMode = 0
	TstampMmap TstampMode = 1
)

// String returns the timestamp mode name.
func (m TstampMode) String() string {
	switch m {
	case TstampNone:
		return "NONE"
	case TstampMmap:
		return "MMAP"
	}

	return "UNKNOWN"
}
