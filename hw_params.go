package pcmio

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"
	"unsafe"
)

// paramInit opens every parameter of a sndPcmHwParams to its full range.
// The kernel narrows the struct from there.
func paramInit(p *sndPcmHwParams) {
	for n := range p.Masks {
		for i := range p.Masks[n].Bits {
			p.Masks[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Mres {
		for i := range p.Mres[n].Bits {
			p.Mres[n].Bits[i] = ^uint32(0)
		}
	}

	for n := range p.Intervals {
		p.Intervals[n].MinVal = 0
		p.Intervals[n].MaxVal = ^uint32(0)
		p.Intervals[n].Flags = 0
	}

	for n := range p.Ires {
		p.Ires[n].MinVal = 0
		p.Ires[n].MaxVal = ^uint32(0)
		p.Ires[n].Flags = 0
	}

	p.Rmask = ^uint32(0)
	p.Info = ^uint32(0)
}

// paramSetMask restricts a mask parameter to a single choice.
func paramSetMask(p *sndPcmHwParams, param int, bit uint32) {
	if param < SNDRV_PCM_HW_PARAM_ACCESS || param > SNDRV_PCM_HW_PARAM_SUBFORMAT {
		return
	}

	mask := &p.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]
	for i := range mask.Bits {
		mask.Bits[i] = 0
	}

	if bit >= 256 {
		return
	}

	mask.Bits[bit>>5] |= 1 << (bit & 31)
}

// paramSetInt pins an interval parameter to an exact integer value.
func paramSetInt(p *sndPcmHwParams, param int, val uint32) {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return
	}

	interval := &p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS]
	interval.MinVal = val
	interval.MaxVal = val
	interval.Flags = SNDRV_PCM_INTERVAL_INTEGER
}

// paramSetMin raises the lower end of an interval parameter.
func paramSetMin(p *sndPcmHwParams, param int, val uint32) {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return
	}

	p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MinVal = val
}

// paramGetInt reads the value the kernel settled on. After installation
// the interval is narrowed until MinVal carries the choice.
func paramGetInt(p *sndPcmHwParams, param int) uint32 {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return 0
	}

	return p.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MinVal
}

// HWCaps describes the configuration space of a hardware device: the
// formats, access layouts and numeric ranges it can be set up with.
type HWCaps struct {
	params *sndPcmHwParams
}

// QueryHWCaps asks the kernel for the refined configuration space of a
// hardware device. The device is opened nonblocking for the query only,
// so a busy device still answers.
func QueryHWCaps(card, device int, stream Stream) (*HWCaps, error) {
	path := hwDevicePath(card, device, stream)

	file, err := os.OpenFile(path, os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	params := &sndPcmHwParams{}
	paramInit(params)

	if err := ioctl(file.Fd(), SNDRV_PCM_IOCTL_HW_REFINE, uintptr(unsafe.Pointer(params))); err != nil {
		return nil, fmt.Errorf("ioctl HW_REFINE failed: %w", err)
	}

	return &HWCaps{params: params}, nil
}

func (c *HWCaps) maskTest(param int, bit uint) bool {
	if param < SNDRV_PCM_HW_PARAM_ACCESS || param > SNDRV_PCM_HW_PARAM_SUBFORMAT {
		return false
	}

	if bit >= 256 {
		return false
	}

	mask := &c.params.Masks[param-SNDRV_PCM_HW_PARAM_ACCESS]

	return mask.Bits[bit>>5]&(1<<(bit&31)) != 0
}

// RangeMin returns the lower end of an interval parameter.
func (c *HWCaps) RangeMin(param int) (uint32, error) {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return 0, fmt.Errorf("parameter %d is not an interval: %w", param, ErrInvalidArg)
	}

	return c.params.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MinVal, nil
}

// RangeMax returns the upper end of an interval parameter.
func (c *HWCaps) RangeMax(param int) (uint32, error) {
	if param < SNDRV_PCM_HW_PARAM_SAMPLE_BITS || param > SNDRV_PCM_HW_PARAM_TICK_TIME {
		return 0, fmt.Errorf("parameter %d is not an interval: %w", param, ErrInvalidArg)
	}

	return c.params.Intervals[param-SNDRV_PCM_HW_PARAM_SAMPLE_BITS].MaxVal, nil
}

// FormatSupported reports whether the device can be configured with f.
func (c *HWCaps) FormatSupported(f Format) bool {
	return c.maskTest(SNDRV_PCM_HW_PARAM_FORMAT, uint(f))
}

// AccessSupported reports whether the device can be configured with a.
func (c *HWCaps) AccessSupported(a Access) bool {
	return c.maskTest(SNDRV_PCM_HW_PARAM_ACCESS, uint(a))
}

// String returns a human-readable rendition of the configuration space.
func (c *HWCaps) String() string {
	if c == nil || c.params == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("Device capabilities:\n")

	var access []string
	for i, name := range accessNames {
		if c.maskTest(SNDRV_PCM_HW_PARAM_ACCESS, uint(i)) {
			access = append(access, name)
		}
	}
	if len(access) > 0 {
		fmt.Fprintf(&b, "%12s: %s\n", "Access", strings.Join(access, ", "))
	}

	var keys []int
	for f := range formatNames {
		keys = append(keys, int(f))
	}
	sort.Ints(keys)

	var formats []string
	for _, k := range keys {
		if c.FormatSupported(Format(k)) {
			formats = append(formats, formatNames[Format(k)])
		}
	}
	if len(formats) > 0 {
		fmt.Fprintf(&b, "%12s: %s\n", "Format", strings.Join(formats, ", "))
	}

	printInterval := func(name string, param int, unit string) {
		rangeMin, errMin := c.RangeMin(param)
		rangeMax, errMax := c.RangeMax(param)
		if errMin != nil || errMax != nil {
			return
		}

		// A max of zero or all-ones means the kernel left the range open.
		if rangeMax == 0 || rangeMax == ^uint32(0) {
			return
		}

		fmt.Fprintf(&b, "%12s: min=%-6d max=%-6d %s\n", name, rangeMin, rangeMax, unit)
	}

	printInterval("Rate", SNDRV_PCM_HW_PARAM_RATE, "Hz")
	printInterval("Channels", SNDRV_PCM_HW_PARAM_CHANNELS, "")
	printInterval("Sample bits", SNDRV_PCM_HW_PARAM_SAMPLE_BITS, "")
	printInterval("Period size", SNDRV_PCM_HW_PARAM_PERIOD_SIZE, "frames")
	printInterval("Periods", SNDRV_PCM_HW_PARAM_PERIODS, "")
	printInterval("Buffer size", SNDRV_PCM_HW_PARAM_BUFFER_SIZE, "frames")

	return b.String()
}
