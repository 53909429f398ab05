package pcmio

import (
	"syscall"
	"unsafe"
)

// ioctl performs a generic ioctl syscall.
func ioctl(fd uintptr, req uintptr, arg uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, fd, req, arg)
	if errno != 0 {
		return errno
	}

	return nil
}

// Request codes follow the Linux layout: direction, payload size, magic
// character and command number packed into one word.
const (
	iocNrshift   = 0
	iocTypeshift = 8
	iocSizeshift = 16
	iocDirshift  = 30

	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

// ioNone builds an ioctl request code for a command with no data transfer.
func ioNone(typ, nr uintptr) uintptr {
	return (iocNone << iocDirshift) | (typ << iocTypeshift) | (nr << iocNrshift)
}

// iow builds a write-only ioctl request code.
func iow(typ, nr, size uintptr) uintptr {
	return (iocWrite << iocDirshift) | (typ << iocTypeshift) | (nr << iocNrshift) | (size << iocSizeshift)
}

// ior builds a read-only ioctl request code.
func ior(typ, nr, size uintptr) uintptr {
	return (iocRead << iocDirshift) | (typ << iocTypeshift) | (nr << iocNrshift) | (size << iocSizeshift)
}

// iowr builds a read-write ioctl request code.
func iowr(typ, nr, size uintptr) uintptr {
	return ((iocRead | iocWrite) << iocDirshift) | (typ << iocTypeshift) | (nr << iocNrshift) | (size << iocSizeshift)
}

var (
	// PCM IOCTLs
	SNDRV_PCM_IOCTL_INFO          uintptr
	SNDRV_PCM_IOCTL_TTSTAMP       uintptr
	SNDRV_PCM_IOCTL_HW_REFINE     uintptr
	SNDRV_PCM_IOCTL_HW_PARAMS     uintptr
	SNDRV_PCM_IOCTL_HW_FREE       uintptr
	SNDRV_PCM_IOCTL_SW_PARAMS     uintptr
	SNDRV_PCM_IOCTL_STATUS        uintptr
	SNDRV_PCM_IOCTL_DELAY         uintptr
	SNDRV_PCM_IOCTL_HWSYNC        uintptr
	SNDRV_PCM_IOCTL_SYNC_PTR      uintptr
	SNDRV_PCM_IOCTL_PREPARE       uintptr
	SNDRV_PCM_IOCTL_RESET         uintptr
	SNDRV_PCM_IOCTL_START         uintptr
	SNDRV_PCM_IOCTL_DROP          uintptr
	SNDRV_PCM_IOCTL_DRAIN         uintptr
	SNDRV_PCM_IOCTL_PAUSE         uintptr
	SNDRV_PCM_IOCTL_REWIND        uintptr
	SNDRV_PCM_IOCTL_RESUME        uintptr
	SNDRV_PCM_IOCTL_FORWARD       uintptr
	SNDRV_PCM_IOCTL_WRITEI_FRAMES uintptr
	SNDRV_PCM_IOCTL_READI_FRAMES  uintptr
	SNDRV_PCM_IOCTL_WRITEN_FRAMES uintptr
	SNDRV_PCM_IOCTL_READN_FRAMES  uintptr
	SNDRV_PCM_IOCTL_LINK          uintptr
	SNDRV_PCM_IOCTL_UNLINK        uintptr

	// Control IOCTLs
	SNDRV_CTL_IOCTL_CARD_INFO            uintptr
	SNDRV_CTL_IOCTL_PCM_PREFER_SUBDEVICE uintptr
)

func init() {
	// PCM IOCTLs ('A' for ALSA)
	SNDRV_PCM_IOCTL_INFO = ior('A', 0x01, unsafe.Sizeof(sndPcmInfo{}))
	SNDRV_PCM_IOCTL_TTSTAMP = iow('A', 0x03, unsafe.Sizeof(int32(0)))
	SNDRV_PCM_IOCTL_HW_REFINE = iowr('A', 0x10, unsafe.Sizeof(sndPcmHwParams{}))
	SNDRV_PCM_IOCTL_HW_PARAMS = iowr('A', 0x11, unsafe.Sizeof(sndPcmHwParams{}))
	SNDRV_PCM_IOCTL_HW_FREE = ioNone('A', 0x12)
	SNDRV_PCM_IOCTL_SW_PARAMS = iowr('A', 0x13, unsafe.Sizeof(sndPcmSwParams{}))

	// Synchronization IOCTLs
	SNDRV_PCM_IOCTL_STATUS = ior('A', 0x20, unsafe.Sizeof(sndPcmStatus{}))
	SNDRV_PCM_IOCTL_DELAY = ior('A', 0x21, unsafe.Sizeof(SndPcmSframesT(0)))
	SNDRV_PCM_IOCTL_HWSYNC = ioNone('A', 0x22)
	SNDRV_PCM_IOCTL_SYNC_PTR = iowr('A', 0x23, unsafe.Sizeof(sndPcmSyncPtr{}))

	// State change IOCTLs
	SNDRV_PCM_IOCTL_PREPARE = ioNone('A', 0x40)
	SNDRV_PCM_IOCTL_RESET = ioNone('A', 0x41)
	SNDRV_PCM_IOCTL_START = ioNone('A', 0x42)
	SNDRV_PCM_IOCTL_DROP = ioNone('A', 0x43)
	SNDRV_PCM_IOCTL_DRAIN = ioNone('A', 0x44)
	SNDRV_PCM_IOCTL_PAUSE = iow('A', 0x45, unsafe.Sizeof(int32(0)))
	SNDRV_PCM_IOCTL_REWIND = iow('A', 0x46, unsafe.Sizeof(SndPcmUframesT(0)))
	SNDRV_PCM_IOCTL_RESUME = ioNone('A', 0x47)
	SNDRV_PCM_IOCTL_FORWARD = iow('A', 0x49, unsafe.Sizeof(SndPcmUframesT(0)))

	// Frame transfer IOCTLs
	SNDRV_PCM_IOCTL_WRITEI_FRAMES = iow('A', 0x50, unsafe.Sizeof(sndXferi{}))
	SNDRV_PCM_IOCTL_READI_FRAMES = ior('A', 0x51, unsafe.Sizeof(sndXferi{}))
	SNDRV_PCM_IOCTL_WRITEN_FRAMES = iow('A', 0x52, unsafe.Sizeof(sndXfern{}))
	SNDRV_PCM_IOCTL_READN_FRAMES = ior('A', 0x53, unsafe.Sizeof(sndXfern{}))

	// Linking IOCTLs
	SNDRV_PCM_IOCTL_LINK = iow('A', 0x60, unsafe.Sizeof(int32(0)))
	SNDRV_PCM_IOCTL_UNLINK = ioNone('A', 0x61)

	// Control IOCTLs ('U' for user control)
	SNDRV_CTL_IOCTL_CARD_INFO = ior('U', 0x01, unsafe.Sizeof(sndCtlCardInfo{}))
	SNDRV_CTL_IOCTL_PCM_PREFER_SUBDEVICE = iow('U', 0x32, unsafe.Sizeof(int32(0)))
}
