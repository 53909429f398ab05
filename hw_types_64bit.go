//go:build linux && (amd64 || arm64)

package pcmio

import (
	"time"

	"golang.org/x/sys/unix"
)

// SndPcmUframesT is the kernel's unsigned frame count, a C unsigned long.
type SndPcmUframesT = uint64

// SndPcmSframesT is the kernel's signed frame count, a C long.
type SndPcmSframesT = int64

// sndPcmMmapStatus mirrors struct snd_pcm_mmap_status: the half of the
// shared pointer page the kernel writes.
type sndPcmMmapStatus struct {
	State          int32
	Pad1           int32
	HwPtr          SndPcmUframesT
	Tstamp         unix.Timespec
	SuspendedState int32
	_              [4]byte
	AudioTstamp    unix.Timespec
}

// sndPcmSyncPtr mirrors struct snd_pcm_sync_ptr. Both unions are padded
// to 64 bytes.
type sndPcmSyncPtr struct {
	Flags uint32
	_     [4]byte
	S     struct {
		sndPcmMmapStatus
		_ [8]byte
	}
	C struct {
		sndPcmMmapControl
		_ [48]byte
	}
}

// sndPcmSwParams mirrors struct snd_pcm_sw_params. The uint64 fields force
// 4 bytes of padding after SleepMin.
type sndPcmSwParams struct {
	TstampMode       uint32
	PeriodStep       uint32
	SleepMin         uint32
	_                [4]byte
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
	_                   [4]byte
	TriggerTstamp       unix.Timespec
	Tstamp              unix.Timespec
	ApplPtr             SndPcmUframesT
	HwPtr               SndPcmUframesT
	Delay               SndPcmSframesT
	Avail               SndPcmUframesT
	AvailMax            SndPcmUframesT
	Overrange           SndPcmUframesT
	SuspendedState      int32
	AudioTstampData     uint32
	AudioTstamp         unix.Timespec
	DriverTstamp        unix.Timespec
	AudioTstampAccuracy uint32
	Reserved            [20]byte
}

func (s *sndPcmStatus) triggerTime() time.Time {
	return time.Unix(s.TriggerTstamp.Sec, s.TriggerTstamp.Nsec)
}

func (s *sndPcmStatus) tstampTime() time.Time {
	return time.Unix(s.Tstamp.Sec, s.Tstamp.Nsec)
}
