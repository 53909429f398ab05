package pcmio

import (
	"fmt"
	"plugin"
	"strconv"
	"strings"
)

// TypeOpenFunc constructs a handle from a structured definition.
type TypeOpenFunc func(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error)

var builtinTypes map[string]TypeOpenFunc

func init() {
	builtinTypes = map[string]TypeOpenFunc{
		"hw":   openHWDef,
		"null": openNullDef,
		"plug": openPlugDef,
		"file": openFileDef,
		"shm":  openShmDef,
	}
}

var registeredTypes = map[string]TypeOpenFunc{}

// RegisterType makes a backend constructor available to structured
// definitions under the given type name. Registration happens at startup;
// the registry is not guarded against concurrent mutation.
func RegisterType(name string, fn TypeOpenFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register type: empty name or nil constructor: %w", ErrInvalidArg)
	}

	if _, ok := builtinTypes[name]; ok {
		return fmt.Errorf("register type %s: shadows a builtin: %w", name, ErrInvalidArg)
	}
	if _, ok := registeredTypes[name]; ok {
		return fmt.Errorf("register type %s: already registered: %w", name, ErrInvalidArg)
	}

	registeredTypes[name] = fn

	return nil
}

type refKind int

const (
	refNull refKind = iota
	refHW
	refPlugHW
	refPlugName
	refShm
	refFile
)

type devRef struct {
	Kind      refKind
	Card      int
	Device    int
	Subdevice int
	Socket    string
	Slave     string
	Path      string
	Format    string
}

// parseInts splits s on commas into integers, accepting between minN and
// maxN fields.
func parseInts(s string, minN, maxN int) ([]int, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < minN || len(parts) > maxN {
		return nil, false
	}

	nums := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, false
		}

		nums[i] = n
	}

	return nums, true
}

// parseRef matches an identifier against the textual grammar. Identifiers
// matching no pattern resolve to not-found, mirroring a failed lookup.
func parseRef(name string) (devRef, error) {
	switch {
	case name == "null":
		return devRef{Kind: refNull}, nil

	case strings.HasPrefix(name, "hw:"):
		nums, ok := parseInts(name[3:], 2, 3)
		if !ok {
			return devRef{}, fmt.Errorf("unknown pcm %s: %w", name, ErrNotFound)
		}

		ref := devRef{Kind: refHW, Card: nums[0], Device: nums[1], Subdevice: -1}
		if len(nums) == 3 {
			ref.Subdevice = nums[2]
		}

		return ref, nil

	case strings.HasPrefix(name, "plug:"):
		rest := name[5:]
		if nums, ok := parseInts(rest, 2, 3); ok {
			ref := devRef{Kind: refPlugHW, Card: nums[0], Device: nums[1], Subdevice: -1}
			if len(nums) == 3 {
				ref.Subdevice = nums[2]
			}

			return ref, nil
		}

		if rest == "" {
			return devRef{}, fmt.Errorf("unknown pcm %s: %w", name, ErrNotFound)
		}

		return devRef{Kind: refPlugName, Slave: rest}, nil

	case strings.HasPrefix(name, "shm:"):
		parts := strings.SplitN(name[4:], ",", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return devRef{}, fmt.Errorf("unknown pcm %s: %w", name, ErrNotFound)
		}

		return devRef{Kind: refShm, Socket: parts[0], Slave: parts[1]}, nil

	case strings.HasPrefix(name, "file:"):
		parts := strings.SplitN(name[5:], ",", 3)
		if parts[0] == "" {
			return devRef{}, fmt.Errorf("unknown pcm %s: %w", name, ErrNotFound)
		}

		ref := devRef{Kind: refFile, Path: parts[0], Format: "raw"}
		if len(parts) > 1 {
			ref.Format = parts[1]
		}
		if len(parts) > 2 {
			ref.Slave = parts[2]
		}

		return ref, nil
	}

	return devRef{}, fmt.Errorf("unknown pcm %s: %w", name, ErrNotFound)
}

// Open resolves an identifier to a backend and returns a handle bound to
// it. The identifier is first looked up in the definition store; a bare
// string definition re-enters the textual grammar once. The grammar:
//
//	hw:C,D[,S]      hardware card C, device D, optional subdevice S
//	plug:C,D[,S]    pass-through route to hardware
//	plug:NAME       pass-through route to any other identifier
//	shm:SOCKET,NAME shared-memory proxy to NAME served at SOCKET
//	file:PATH[,FORMAT[,NAME]]  write a copy of the stream to PATH
//	null            discard playback, supply silence to capture
func Open(name string, stream Stream, mode Mode) (*PCM, error) {
	if name == "" {
		return nil, fmt.Errorf("open: empty name: %w", ErrInvalidArg)
	}
	if stream != StreamPlayback && stream != StreamCapture {
		return nil, fmt.Errorf("open: bad stream %d: %w", int(stream), ErrInvalidArg)
	}

	return openName(name, stream, mode)
}

func openName(name string, stream Stream, mode Mode) (*PCM, error) {
	if def, ok := lookupPCMDef(name); ok {
		switch d := def.(type) {
		case string:
			// An alias resolves through the grammar, not the store.
			name = d
		case map[string]any:
			return OpenDefinition(name, d, stream, mode)
		default:
			return nil, fmt.Errorf("pcm %s: malformed definition: %w", name, ErrInvalidArg)
		}
	}

	ref, err := parseRef(name)
	if err != nil {
		return nil, err
	}

	switch ref.Kind {
	case refNull:
		return openNull(name, stream, mode)

	case refHW:
		return openHW(name, ref.Card, ref.Device, ref.Subdevice, stream, mode)

	case refPlugHW:
		slaveName := "hw:" + strings.TrimPrefix(name, "plug:")
		slave, err := openHW(slaveName, ref.Card, ref.Device, ref.Subdevice, stream, mode)
		if err != nil {
			return nil, err
		}

		return openPlug(name, slave, true, mode, nil)

	case refPlugName:
		slave, err := openName(ref.Slave, stream, mode)
		if err != nil {
			return nil, err
		}

		return openPlug(name, slave, true, mode, nil)

	case refShm:
		return openShm(name, ref.Socket, ref.Slave, stream, mode)

	case refFile:
		var slave *PCM
		if ref.Slave == "" {
			slave, err = openNull("null", stream, mode)
		} else {
			slave, err = openName(ref.Slave, stream, mode)
		}
		if err != nil {
			return nil, err
		}

		p, err := openFile(name, ref.Path, ref.Format, slave, true, mode)
		if err != nil {
			slave.Close()

			return nil, err
		}

		return p, nil
	}

	return nil, fmt.Errorf("unknown pcm %s: %w", name, ErrNotFound)
}

// OpenDefinition constructs a handle from a structured definition. The
// definition must carry a type field naming a builtin, registered or
// loadable backend type; everything else is interpreted by that type.
func OpenDefinition(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error) {
	tv, ok := def["type"]
	if !ok {
		return nil, fmt.Errorf("pcm %s: type is not defined: %w", name, ErrInvalidArg)
	}

	typeName, ok := tv.(string)
	if !ok {
		return nil, fmt.Errorf("pcm %s: type is not a string: %w", name, ErrInvalidArg)
	}

	if fn, ok := builtinTypes[typeName]; ok {
		return fn(name, def, stream, mode)
	}
	if fn, ok := registeredTypes[typeName]; ok {
		return fn(name, def, stream, mode)
	}

	fn, err := loadType(typeName)
	if err != nil {
		return nil, err
	}

	return fn(name, def, stream, mode)
}

// loadType resolves an unknown type name through the pcm_types store to a
// shared object and an open symbol within it.
func loadType(typeName string) (TypeOpenFunc, error) {
	td, ok := lookupTypeDef(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown pcm type %s: %w", typeName, ErrNotFound)
	}

	if td.Lib == "" {
		return nil, fmt.Errorf("pcm type %s: no lib defined: %w", typeName, ErrInvalidArg)
	}

	sym := td.Open
	if sym == "" {
		sym = "OpenPCM" + exportName(typeName)
	}

	plg, err := plugin.Open(td.Lib)
	if err != nil {
		return nil, fmt.Errorf("pcm type %s: cannot load module %s: %v: %w", typeName, td.Lib, err, ErrNotFound)
	}

	s, err := plg.Lookup(sym)
	if err != nil {
		return nil, fmt.Errorf("pcm type %s: symbol %s not found in %s: %w", typeName, sym, td.Lib, ErrNotFound)
	}

	fn, ok := s.(func(string, map[string]any, Stream, Mode) (*PCM, error))
	if !ok {
		return nil, fmt.Errorf("pcm type %s: symbol %s has the wrong signature: %w", typeName, sym, ErrInvalidArg)
	}

	return fn, nil
}

func exportName(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// SlaveField describes one overridable parameter a backend accepts in its
// slave definition. Exactly one destination pointer is set; Found reports
// whether the field was present.
type SlaveField struct {
	Name      string
	Mandatory bool
	Int       *int
	Format    *Format
	Found     bool
}

// ParseSlaveDefinition resolves a slave definition to the identifier of
// the slave stream and extracts override fields. def is either a string
// naming an entry in the pcm_slaves store or a map holding a pcm field
// plus overrides. Unknown fields and missing mandatory fields are
// rejected.
func ParseSlaveDefinition(def any, fields ...*SlaveField) (string, error) {
	var m map[string]any

	switch d := def.(type) {
	case string:
		sd, ok := lookupSlaveDef(d)
		if !ok {
			return "", fmt.Errorf("unknown pcm_slave %s: %w", d, ErrNotFound)
		}

		sm, ok := sd.(map[string]any)
		if !ok {
			return "", fmt.Errorf("pcm_slave %s: malformed definition: %w", d, ErrInvalidArg)
		}

		m = sm
	case map[string]any:
		m = d
	default:
		return "", fmt.Errorf("malformed slave definition: %w", ErrInvalidArg)
	}

	var pcmName string

	for key, val := range m {
		if key == "comment" {
			continue
		}

		if key == "pcm" {
			s, ok := val.(string)
			if !ok {
				return "", fmt.Errorf("slave pcm field is not a string: %w", ErrInvalidArg)
			}

			pcmName = s

			continue
		}

		var field *SlaveField
		for _, f := range fields {
			if f.Name == key {
				field = f

				break
			}
		}

		if field == nil {
			return "", fmt.Errorf("unknown slave field %s: %w", key, ErrInvalidArg)
		}

		if err := field.assign(val); err != nil {
			return "", err
		}
	}

	if pcmName == "" {
		return "", fmt.Errorf("slave definition has no pcm field: %w", ErrInvalidArg)
	}

	for _, f := range fields {
		if f.Mandatory && !f.Found {
			return "", fmt.Errorf("missing mandatory slave field %s: %w", f.Name, ErrInvalidArg)
		}
	}

	return pcmName, nil
}

func (f *SlaveField) assign(val any) error {
	switch {
	case f.Int != nil:
		switch v := val.(type) {
		case int:
			*f.Int = v
		case int64:
			*f.Int = int(v)
		default:
			return fmt.Errorf("slave field %s is not an integer: %w", f.Name, ErrInvalidArg)
		}
	case f.Format != nil:
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("slave field %s is not a string: %w", f.Name, ErrInvalidArg)
		}

		format := FormatValue(s)
		if format == FormatUnknown {
			return fmt.Errorf("slave field %s: unknown format %s: %w", f.Name, s, ErrInvalidArg)
		}

		*f.Format = format
	default:
		return fmt.Errorf("slave field %s has no destination: %w", f.Name, ErrInvalidArg)
	}

	f.Found = true

	return nil
}
