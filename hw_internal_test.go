package pcmio

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

// The kernel rejects any ioctl whose encoded payload size disagrees with
// its own struct layout, so the Go shapes must match C byte-for-byte.
func TestKernelStructSizes(t *testing.T) {
	assert.Equal(t, uintptr(32), unsafe.Sizeof(sndMask{}))
	assert.Equal(t, uintptr(12), unsafe.Sizeof(sndInterval{}))
	assert.Equal(t, uintptr(288), unsafe.Sizeof(sndPcmInfo{}))
	assert.Equal(t, uintptr(376), unsafe.Sizeof(sndCtlCardInfo{}))

	if unsafe.Sizeof(SndPcmUframesT(0)) == 8 {
		assert.Equal(t, uintptr(56), unsafe.Sizeof(sndPcmMmapStatus{}))
		assert.Equal(t, uintptr(136), unsafe.Sizeof(sndPcmSyncPtr{}))
		assert.Equal(t, uintptr(136), unsafe.Sizeof(sndPcmSwParams{}))
		assert.Equal(t, uintptr(152), unsafe.Sizeof(sndPcmStatus{}))
		assert.Equal(t, uintptr(608), unsafe.Sizeof(sndPcmHwParams{}))
		assert.Equal(t, uintptr(24), unsafe.Sizeof(sndXferi{}))
		assert.Equal(t, uintptr(24), unsafe.Sizeof(sndXfern{}))
	} else {
		assert.Equal(t, uintptr(32), unsafe.Sizeof(sndPcmMmapStatus{}))
		assert.Equal(t, uintptr(132), unsafe.Sizeof(sndPcmSyncPtr{}))
		assert.Equal(t, uintptr(104), unsafe.Sizeof(sndPcmSwParams{}))
		assert.Equal(t, uintptr(108), unsafe.Sizeof(sndPcmStatus{}))
		assert.Equal(t, uintptr(604), unsafe.Sizeof(sndPcmHwParams{}))
		assert.Equal(t, uintptr(12), unsafe.Sizeof(sndXferi{}))
		assert.Equal(t, uintptr(12), unsafe.Sizeof(sndXfern{}))
	}
}

func TestIoctlCodes(t *testing.T) {
	if unsafe.Sizeof(SndPcmUframesT(0)) != 8 {
		t.Skip("reference codes are for the 64-bit ABI")
	}

	codes := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"PREPARE", SNDRV_PCM_IOCTL_PREPARE, 0x4140},
		{"START", SNDRV_PCM_IOCTL_START, 0x4142},
		{"DROP", SNDRV_PCM_IOCTL_DROP, 0x4143},
		{"DRAIN", SNDRV_PCM_IOCTL_DRAIN, 0x4144},
		{"HW_PARAMS", SNDRV_PCM_IOCTL_HW_PARAMS, 0xc2604111},
		{"SW_PARAMS", SNDRV_PCM_IOCTL_SW_PARAMS, 0xc0884113},
		{"STATUS", SNDRV_PCM_IOCTL_STATUS, 0x80984120},
		{"SYNC_PTR", SNDRV_PCM_IOCTL_SYNC_PTR, 0xc0884123},
		{"WRITEI_FRAMES", SNDRV_PCM_IOCTL_WRITEI_FRAMES, 0x40184150},
		{"READI_FRAMES", SNDRV_PCM_IOCTL_READI_FRAMES, 0x80184151},
		{"LINK", SNDRV_PCM_IOCTL_LINK, 0x40044160},
		{"UNLINK", SNDRV_PCM_IOCTL_UNLINK, 0x4161},
		{"CARD_INFO", SNDRV_CTL_IOCTL_CARD_INFO, 0x81785501},
		{"PREFER_SUBDEVICE", SNDRV_CTL_IOCTL_PCM_PREFER_SUBDEVICE, 0x40045532},
	}

	for _, c := range codes {
		assert.Equalf(t, c.want, c.got, "SNDRV ioctl %s", c.name)
	}
}

func TestHwBoundary(t *testing.T) {
	assert.Equal(t, SndPcmUframesT(0), hwBoundary(0))

	if unsafe.Sizeof(SndPcmUframesT(0)) == 8 {
		assert.Equal(t, SndPcmUframesT(1)<<62, hwBoundary(4096))
	} else {
		assert.Equal(t, SndPcmUframesT(1)<<30, hwBoundary(4096))
	}

	longMax := ^SndPcmUframesT(0) >> 1

	b := hwBoundary(1536)
	assert.Zero(t, b%1536)
	assert.LessOrEqual(t, b, longMax)
	assert.Greater(t, b*2, longMax-1536)
}

func TestHwDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/snd/pcmC0D0p", hwDevicePath(0, 0, StreamPlayback))
	assert.Equal(t, "/dev/snd/pcmC2D1c", hwDevicePath(2, 1, StreamCapture))
}

func TestHwErrorMapping(t *testing.T) {
	tests := []struct {
		errno unix.Errno
		want  error
	}{
		{unix.EPIPE, ErrXrun},
		{unix.EAGAIN, ErrWouldBlock},
		{unix.EBADFD, ErrBadState},
		{unix.EINTR, ErrInterrupted},
		{unix.ESTRPIPE, ErrBadState},
		{unix.ENOSYS, ErrUnsupported},
	}

	for _, tt := range tests {
		err := hwError("ioctl TEST failed", tt.errno)
		assert.ErrorIsf(t, err, tt.want, "errno %d", tt.errno)
	}

	// Unrecognized errnos pass through untouched.
	err := hwError("ioctl TEST failed", unix.ENODEV)
	assert.ErrorIs(t, err, unix.ENODEV)
}

func TestParamHelpers(t *testing.T) {
	p := &sndPcmHwParams{}
	paramInit(p)

	assert.Equal(t, ^uint32(0), p.Rmask)
	assert.Equal(t, ^uint32(0), p.Masks[0].Bits[7])
	assert.Equal(t, ^uint32(0), p.Intervals[0].MaxVal)

	paramSetInt(p, SNDRV_PCM_HW_PARAM_RATE, 48000)
	assert.Equal(t, uint32(48000), paramGetInt(p, SNDRV_PCM_HW_PARAM_RATE))

	iv := p.Intervals[SNDRV_PCM_HW_PARAM_RATE-SNDRV_PCM_HW_PARAM_SAMPLE_BITS]
	assert.Equal(t, uint32(48000), iv.MaxVal)
	assert.Equal(t, uint32(SNDRV_PCM_INTERVAL_INTEGER), iv.Flags)

	paramSetMin(p, SNDRV_PCM_HW_PARAM_BUFFER_SIZE, 1024)
	assert.Equal(t, uint32(1024), paramGetInt(p, SNDRV_PCM_HW_PARAM_BUFFER_SIZE))

	// Mask indices are not intervals.
	paramSetInt(p, SNDRV_PCM_HW_PARAM_ACCESS, 7)
	assert.Zero(t, paramGetInt(p, SNDRV_PCM_HW_PARAM_ACCESS))
}

func TestHWCapsMasks(t *testing.T) {
	p := &sndPcmHwParams{}
	paramInit(p)

	paramSetMask(p, SNDRV_PCM_HW_PARAM_FORMAT, uint32(FormatS16LE))
	paramSetMask(p, SNDRV_PCM_HW_PARAM_ACCESS, uint32(AccessRWInterleaved))
	paramSetInt(p, SNDRV_PCM_HW_PARAM_CHANNELS, 2)

	caps := &HWCaps{params: p}

	assert.True(t, caps.FormatSupported(FormatS16LE))
	assert.False(t, caps.FormatSupported(FormatS32LE))
	assert.True(t, caps.AccessSupported(AccessRWInterleaved))
	assert.False(t, caps.AccessSupported(AccessMmapInterleaved))

	minCh, err := caps.RangeMin(SNDRV_PCM_HW_PARAM_CHANNELS)
	require.NoError(t, err)
	maxCh, err := caps.RangeMax(SNDRV_PCM_HW_PARAM_CHANNELS)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), minCh)
	assert.Equal(t, uint32(2), maxCh)

	_, err = caps.RangeMin(SNDRV_PCM_HW_PARAM_FORMAT)
	assert.ErrorIs(t, err, ErrInvalidArg)

	assert.False(t, caps.maskTest(SNDRV_PCM_HW_PARAM_FORMAT, 300))

	out := caps.String()
	assert.Contains(t, out, "RW_INTERLEAVED")
	assert.Contains(t, out, "S16_LE")
}

func TestProcLineParsing(t *testing.T) {
	m := cardLineRe.FindStringSubmatch(" 0 [PCH            ]: HDA-Intel - HDA Intel PCH")
	require.Len(t, m, 4)
	assert.Equal(t, "0", m[1])
	assert.Equal(t, "PCH", m[2])
	assert.Equal(t, "HDA-Intel - HDA Intel PCH", m[3])

	m = pcmLineRe.FindStringSubmatch("00-00: ALC892 Analog : ALC892 Analog : playback 1 : capture 1")
	require.Len(t, m, 4)
	assert.Equal(t, "00", m[1])
	assert.Equal(t, "00", m[2])
	assert.Equal(t, "ALC892 Analog", m[3])

	assert.Nil(t, cardLineRe.FindStringSubmatch("no soundcards found"))
}

func TestCStrHelpers(t *testing.T) {
	buf := []byte{'N', 'U', 'L', 'L', 0, 'x', 'y'}
	assert.Equal(t, "NULL", cstr(buf))
	assert.Equal(t, "ab", cstr([]byte("ab")))

	dst := make([]byte, 4)
	storeCStr(dst, "hi")
	assert.Equal(t, []byte{'h', 'i', 0, 0}, dst)

	storeCStr(dst, "overflowing")
	assert.Equal(t, []byte("over"), dst)
}

func TestShmErrCodes(t *testing.T) {
	kinds := []error{
		ErrInvalidArg, ErrNotFound, ErrBadState, ErrXrun,
		ErrWouldBlock, ErrInterrupted, ErrUnsupported,
	}

	for _, kind := range kinds {
		code := shmEncodeErr(kind)
		assert.ErrorIs(t, shmDecodeErr(code, "op"), kind)
	}

	assert.Equal(t, shmErrNone, shmEncodeErr(nil))

	// Wrapped errors carry their kind across the wire too.
	code := shmEncodeErr(hwError("ioctl START failed", unix.EPIPE))
	assert.ErrorIs(t, shmDecodeErr(code, "start"), ErrXrun)

	// Anything unclassified degrades to an I/O failure.
	code = shmEncodeErr(unix.ECONNRESET)
	assert.ErrorIs(t, shmDecodeErr(code, "op"), unix.EIO)
}

func TestShmCtrlRoundTrip(t *testing.T) {
	c := &shmCtrl{}

	hw := &HWParams{
		Access:     AccessRWInterleaved,
		Format:     FormatS24LE,
		Channels:   4,
		Rate:       96000,
		RateNum:    96000,
		RateDen:    1,
		Msbits:     24,
		PeriodTime: 5333,
		BufferSize: 8192,
		PeriodSize: 2048,
	}
	c.storeHWParams(hw)

	hw2 := &HWParams{}
	c.loadHWParams(hw2)
	assert.Equal(t, hw, hw2)

	sw := &SWParams{
		StartMode:  StartExplicit,
		XrunMode:   XrunNone,
		PeriodStep: 1,
		AvailMin:   2048,
		XferAlign:  1,
		Boundary:   uint64(1) << 62,
	}
	c.storeSWParams(sw)

	sw2 := &SWParams{}
	c.loadSWParams(sw2)
	assert.Equal(t, sw, sw2)

	info := &Info{
		Card:            1,
		Device:          2,
		Subdevice:       0,
		SubdevicesCount: 1,
		SubdevicesAvail: 1,
		ID:              "NULL",
		Name:            "Null",
		Subname:         "subdevice #0",
	}
	c.storeInfo(info)

	info2 := &Info{}
	c.loadInfo(info2)
	assert.Equal(t, info.ID, info2.ID)
	assert.Equal(t, info.Name, info2.Name)
	assert.Equal(t, info.Subname, info2.Subname)
	assert.Equal(t, info.Card, info2.Card)

	st := &Status{
		State:       StateRunning,
		TriggerTime: time.Unix(5, 250),
		Time:        time.Unix(6, 500),
		Delay:       128,
		Avail:       1024,
		AvailMax:    4096,
	}
	c.storeStatus(st)

	st2 := &Status{}
	c.loadStatus(st2)
	assert.Equal(t, StateRunning, st2.State)
	assert.True(t, st2.TriggerTime.Equal(time.Unix(5, 250)))
	assert.True(t, st2.Time.Equal(time.Unix(6, 500)))
	assert.Equal(t, 128, st2.Delay)
	assert.Equal(t, 1024, st2.Avail)
	assert.Equal(t, 4096, st2.AvailMax)
}
