package pcmio

import (
	"sync/atomic"
	"unsafe"
)

// Hardware parameter indices inside sndPcmHwParams. The first three are
// bitmask choices, the rest are numeric intervals.
const (
	SNDRV_PCM_HW_PARAM_ACCESS    = 0
	SNDRV_PCM_HW_PARAM_FORMAT    = 1
	SNDRV_PCM_HW_PARAM_SUBFORMAT = 2

	SNDRV_PCM_HW_PARAM_SAMPLE_BITS  = 8
	SNDRV_PCM_HW_PARAM_FRAME_BITS   = 9
	SNDRV_PCM_HW_PARAM_CHANNELS     = 10
	SNDRV_PCM_HW_PARAM_RATE         = 11
	SNDRV_PCM_HW_PARAM_PERIOD_TIME  = 12
	SNDRV_PCM_HW_PARAM_PERIOD_SIZE  = 13
	SNDRV_PCM_HW_PARAM_PERIOD_BYTES = 14
	SNDRV_PCM_HW_PARAM_PERIODS      = 15
	SNDRV_PCM_HW_PARAM_BUFFER_TIME  = 16
	SNDRV_PCM_HW_PARAM_BUFFER_SIZE  = 17
	SNDRV_PCM_HW_PARAM_BUFFER_BYTES = 18
	SNDRV_PCM_HW_PARAM_TICK_TIME    = 19
)

const (
	// Interval flag: the value must be an integer, not a range.
	SNDRV_PCM_INTERVAL_INTEGER = 1 << 2

	// mmap offsets selecting the kernel status and control pages.
	SNDRV_PCM_MMAP_OFFSET_STATUS  = 0x80000000
	SNDRV_PCM_MMAP_OFFSET_CONTROL = 0x81000000

	// Flags for the SYNC_PTR ioctl.
	SNDRV_PCM_SYNC_PTR_HWSYNC    = 1 << 0
	SNDRV_PCM_SYNC_PTR_APPL      = 1 << 1
	SNDRV_PCM_SYNC_PTR_AVAIL_MIN = 1 << 2
)

// Access values as the kernel numbers them. Access mirrors this numbering,
// so conversions are direct casts.
const (
	SNDRV_PCM_ACCESS_MMAP_INTERLEAVED    = 0
	SNDRV_PCM_ACCESS_MMAP_NONINTERLEAVED = 1
	SNDRV_PCM_ACCESS_MMAP_COMPLEX        = 2
	SNDRV_PCM_ACCESS_RW_INTERLEAVED      = 3
	SNDRV_PCM_ACCESS_RW_NONINTERLEAVED   = 4
)

// Timestamping clock selected with the TTSTAMP ioctl.
const (
	SNDRV_PCM_TSTAMP_TYPE_GETTIMEOFDAY = 0
	SNDRV_PCM_TSTAMP_TYPE_MONOTONIC    = 1
)

// sndMask mirrors struct snd_mask: a 256-bit choice set.
type sndMask struct {
	Bits [8]uint32
}

// sndInterval mirrors struct snd_interval. The kernel narrows the range
// until MinVal carries the chosen value.
type sndInterval struct {
	MinVal uint32
	MaxVal uint32
	Flags  uint32
}

// sndPcmInfo mirrors struct snd_pcm_info.
type sndPcmInfo struct {
	Device          uint32
	Subdevice       uint32
	Stream          int32
	Card            int32
	Id              [64]byte
	Name            [80]byte
	Subname         [32]byte
	DevClass        int32
	DevSubclass     int32
	SubdevicesCount uint32
	SubdevicesAvail uint32
	Sync            [16]byte
	Reserved        [64]byte
}

// sndCtlCardInfo mirrors struct snd_ctl_card_info.
type sndCtlCardInfo struct {
	Card       int32
	Pad        int32
	Id         [16]byte
	Driver     [16]byte
	Name       [32]byte
	Longname   [80]byte
	Reserved_  [16]byte
	Mixername  [80]byte
	Components [128]byte
}

// sndPcmHwParams mirrors struct snd_pcm_hw_params. The mask and interval
// arrays cover the parameter indices above; Mres and Ires are reserved
// slots that still have to be initialized to the full range.
type sndPcmHwParams struct {
	Flags     uint32
	Masks     [3]sndMask
	Mres      [5]sndMask
	Intervals [12]sndInterval
	Ires      [9]sndInterval
	Rmask     uint32
	Cmask     uint32
	Info      uint32
	Msbits    uint32
	RateNum   uint32
	RateDen   uint32
	FifoSize  SndPcmUframesT
	Reserved  [64]byte
}

// sndPcmMmapControl mirrors struct snd_pcm_mmap_control: the half of the
// shared page the application writes.
type sndPcmMmapControl struct {
	ApplPtr  SndPcmUframesT
	AvailMin SndPcmUframesT
}

// sndXferi mirrors struct snd_xferi for the interleaved transfer ioctls.
type sndXferi struct {
	Result SndPcmSframesT
	Buf    uintptr
	Frames SndPcmUframesT
}

// sndXfern mirrors struct snd_xfern for the noninterleaved transfer
// ioctls. Bufs points at an array of per-channel buffer pointers.
type sndXfern struct {
	Result SndPcmSframesT
	Bufs   uintptr
	Frames SndPcmUframesT
}

// atomicLoadUframes reads a frame counter shared with the kernel. The dead
// branch keeps the same source building on 32-bit targets.
func atomicLoadUframes(p *SndPcmUframesT) SndPcmUframesT {
	if unsafe.Sizeof(SndPcmUframesT(0)) == 8 {
		return SndPcmUframesT(atomic.LoadUint64((*uint64)(unsafe.Pointer(p))))
	}

	return SndPcmUframesT(atomic.LoadUint32((*uint32)(unsafe.Pointer(p))))
}
