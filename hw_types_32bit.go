//go:build linux && (386 || arm)

package pcmio

import "time"

// SndPcmUframesT is the kernel's unsigned frame count, a C unsigned long.
type SndPcmUframesT = uint32

// SndPcmSframesT is the kernel's signed frame count, a C long.
type SndPcmSframesT = int32

// kernelTimespec is the classic 32-bit struct timespec the PCM ABI keeps
// using regardless of the C library's time_t width.
type kernelTimespec struct {
	Sec  int32
	Nsec int32
}

// sndPcmMmapStatus mirrors struct snd_pcm_mmap_status: the half of the
// shared pointer page the kernel writes. Everything is 4-aligned here, so
// no padding appears.
type sndPcmMmapStatus struct {
	State          int32
	Pad1           int32
	HwPtr          SndPcmUframesT
	Tstamp         kernelTimespec
	SuspendedState int32
	AudioTstamp    kernelTimespec
}

// sndPcmSyncPtr mirrors struct snd_pcm_sync_ptr. Both unions are padded
// to 64 bytes.
type sndPcmSyncPtr struct {
	Flags uint32
	S     struct {
		sndPcmMmapStatus
		_ [32]byte
	}
	C struct {
		sndPcmMmapControl
		_ [56]byte
	}
}

// sndPcmSwParams mirrors struct snd_pcm_sw_params.
type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	AvailMin         SndPcmUframesT
	XferAlign        SndPcmUframesT
	StartThreshold   SndPcmUframesT
	StopThreshold    SndPcmUframesT
	SilenceThreshold SndPcmUframesT
	SilenceSize      SndPcmUframesT
	Boundary         SndPcmUframesT
	Reserved         [64]byte
}

// sndPcmStatus mirrors struct snd_pcm_status.
type sndPcmStatus struct {
	State               int32
	TriggerTstamp       kernelTimespec
	Tstamp              kernelTimespec
	ApplPtr             SndPcmUframesT
	HwPtr               SndPcmUframesT
	Delay               SndPcmSframesT
	Avail               SndPcmUframesT
	AvailMax            SndPcmUframesT
	Overrange           SndPcmUframesT
	SuspendedState      int32
	AudioTstampData     uint32
	AudioTstamp         kernelTimespec
	DriverTstamp        kernelTimespec
	AudioTstampAccuracy uint32
	Reserved            [36]byte
}

func (s *sndPcmStatus) triggerTime() time.Time {
	return time.Unix(int64(s.TriggerTstamp.Sec), int64(s.TriggerTstamp.Nsec))
}

func (s *sndPcmStatus) tstampTime() time.Time {
	return time.Unix(int64(s.Tstamp.Sec), int64(s.Tstamp.Nsec))
}
