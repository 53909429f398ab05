package pcmio

import (
	"fmt"
	"io"
)

// plugOverrides pins hardware parameters from a definition before they
// reach the slave. A nil field leaves the application's request alone.
type plugOverrides struct {
	format   *Format
	channels *int
	rate     *int
}

// plugBackend adapts application parameter requests onto a slave handle.
// The data path needs no adaptation layer, so the handle's fast operations
// and poll descriptor are the slave's own.
type plugBackend struct {
	pcm        *PCM
	slave      *PCM
	closeSlave bool
	overrides  *plugOverrides
}

func openPlug(name string, slave *PCM, closeSlave bool, mode Mode, overrides *plugOverrides) (*PCM, error) {
	b := &plugBackend{slave: slave, closeSlave: closeSlave, overrides: overrides}
	p := New(name, TypePlug, slave.Stream(), mode, b, slave.fastOps)
	p.SetPollDescriptor(slave.pollFD, slave.pollEvents)
	b.pcm = p

	return p, nil
}

func openPlugDef(name string, def map[string]any, stream Stream, mode Mode) (*PCM, error) {
	slaveDef, ok := def["slave"]
	if !ok {
		return nil, fmt.Errorf("pcm %s: slave is not defined: %w", name, ErrInvalidArg)
	}

	for key := range def {
		switch key {
		case "type", "comment", "slave":
		default:
			return nil, fmt.Errorf("pcm %s: unknown field %s: %w", name, key, ErrInvalidArg)
		}
	}

	var (
		format   Format
		channels int
		rate     int
	)

	fields := []*SlaveField{
		{Name: "format", Format: &format},
		{Name: "channels", Int: &channels},
		{Name: "rate", Int: &rate},
	}

	slaveName, err := ParseSlaveDefinition(slaveDef, fields...)
	if err != nil {
		return nil, fmt.Errorf("pcm %s: %w", name, err)
	}

	slave, err := Open(slaveName, stream, mode)
	if err != nil {
		return nil, err
	}

	var overrides *plugOverrides
	if fields[0].Found || fields[1].Found || fields[2].Found {
		overrides = &plugOverrides{}
		if fields[0].Found {
			overrides.format = &format
		}
		if fields[1].Found {
			overrides.channels = &channels
		}
		if fields[2].Found {
			overrides.rate = &rate
		}
	}

	p, err := openPlug(name, slave, true, mode, overrides)
	if err != nil {
		slave.Close()

		return nil, err
	}

	return p, nil
}

func (b *plugBackend) Close() error {
	if !b.closeSlave {
		return nil
	}

	return b.slave.Close()
}

func (b *plugBackend) Info() (*Info, error) {
	return b.slave.Info()
}

func (b *plugBackend) HwParams(h *HWParams) error {
	if o := b.overrides; o != nil {
		if o.format != nil {
			h.Format = *o.format
		}

		if o.channels != nil {
			h.Channels = *o.channels
		}

		if o.rate != nil {
			h.Rate = *o.rate
		}
	}

	return b.slave.HwParams(h)
}

func (b *plugBackend) HwFree() error {
	return b.slave.HwFree()
}

func (b *plugBackend) SwParams(s *SWParams) error {
	return b.slave.SwParams(s)
}

func (b *plugBackend) Nonblock(nonblock bool) error {
	return b.slave.Nonblock(nonblock)
}

func (b *plugBackend) Async(handler AsyncHandler) error {
	return b.slave.Async(handler)
}

func (b *plugBackend) LinkDescriptor() (int, error) {
	return b.slave.ops.LinkDescriptor()
}

func (b *plugBackend) Dump(w io.Writer) error {
	fmt.Fprintf(w, "Plug PCM: ")

	return b.slave.Dump(w)
}
