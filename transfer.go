package pcmio

import (
	"fmt"
)

type xferDir int

const (
	xferRead xferDir = iota
	xferWrite
)

// chunkFunc moves up to the established availability between areas and the
// backend, returning the count actually moved.
type chunkFunc func(areas []Area, offset, frames int) (int, error)

// WriteI writes frames interleaved frames from buf to a playback stream
// and returns the count written. In blocking mode the call waits for room;
// in nonblocking mode it fails with ErrWouldBlock instead. A partial count
// is returned when the stream breaks after some frames moved.
func (p *PCM) WriteI(buf []byte, frames int) (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("writei: no configuration installed: %w", ErrBadState)
	}
	if p.stream != StreamPlayback {
		return 0, fmt.Errorf("writei: not a playback stream: %w", ErrInvalidArg)
	}
	if p.access != AccessRWInterleaved {
		return 0, fmt.Errorf("writei: access is %s: %w", p.access, ErrInvalidArg)
	}
	if frames < 0 || p.FramesToBytes(frames) > len(buf) {
		return 0, fmt.Errorf("writei: %d frames exceed the buffer: %w", frames, ErrInvalidArg)
	}

	return p.transfer(xferWrite, p.areasFromBuf(buf), 0, frames, p.fastOps.WriteChunk)
}

// WriteN writes frames frames from one buffer per channel to a playback
// stream and returns the count written.
func (p *PCM) WriteN(bufs [][]byte, frames int) (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("writen: no configuration installed: %w", ErrBadState)
	}
	if p.stream != StreamPlayback {
		return 0, fmt.Errorf("writen: not a playback stream: %w", ErrInvalidArg)
	}
	if p.access != AccessRWNonInterleaved {
		return 0, fmt.Errorf("writen: access is %s: %w", p.access, ErrInvalidArg)
	}
	if err := p.checkChannelBufs(bufs, frames); err != nil {
		return 0, err
	}

	return p.transfer(xferWrite, p.areasFromBufs(bufs), 0, frames, p.fastOps.WriteChunk)
}

// ReadI reads frames interleaved frames from a capture stream into buf and
// returns the count read. In blocking mode the call waits for data; in
// nonblocking mode it fails with ErrWouldBlock instead.
func (p *PCM) ReadI(buf []byte, frames int) (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("readi: no configuration installed: %w", ErrBadState)
	}
	if p.stream != StreamCapture {
		return 0, fmt.Errorf("readi: not a capture stream: %w", ErrInvalidArg)
	}
	if p.access != AccessRWInterleaved {
		return 0, fmt.Errorf("readi: access is %s: %w", p.access, ErrInvalidArg)
	}
	if frames < 0 || p.FramesToBytes(frames) > len(buf) {
		return 0, fmt.Errorf("readi: %d frames exceed the buffer: %w", frames, ErrInvalidArg)
	}

	return p.transfer(xferRead, p.areasFromBuf(buf), 0, frames, p.fastOps.ReadChunk)
}

// ReadN reads frames frames from a capture stream into one buffer per
// channel and returns the count read.
func (p *PCM) ReadN(bufs [][]byte, frames int) (int, error) {
	if !p.setup {
		return 0, fmt.Errorf("readn: no configuration installed: %w", ErrBadState)
	}
	if p.stream != StreamCapture {
		return 0, fmt.Errorf("readn: not a capture stream: %w", ErrInvalidArg)
	}
	if p.access != AccessRWNonInterleaved {
		return 0, fmt.Errorf("readn: access is %s: %w", p.access, ErrInvalidArg)
	}
	if err := p.checkChannelBufs(bufs, frames); err != nil {
		return 0, err
	}

	return p.transfer(xferRead, p.areasFromBufs(bufs), 0, frames, p.fastOps.ReadChunk)
}

func (p *PCM) checkChannelBufs(bufs [][]byte, frames int) error {
	if len(bufs) != p.channels {
		return fmt.Errorf("%d buffers for %d channels: %w", len(bufs), p.channels, ErrInvalidArg)
	}

	if frames < 0 {
		return fmt.Errorf("negative frame count: %w", ErrInvalidArg)
	}

	need := p.SamplesToBytes(frames)
	for ch, buf := range bufs {
		if need > len(buf) {
			return fmt.Errorf("channel %d buffer holds %d bytes, need %d: %w",
				ch, len(buf), need, ErrInvalidArg)
		}
	}

	return nil
}

// transfer drives chunk operations until the request completes or the
// stream refuses. It returns the partial count when any frames moved and
// an error only when none did.
func (p *PCM) transfer(dir xferDir, areas []Area, offset, size int, fn chunkFunc) (int, error) {
	if size == 0 {
		return 0, nil
	}

	// Requests above the alignment unit are trimmed down to a multiple
	// of it; smaller requests pass through whole.
	if size > p.xferAlign {
		size -= size % p.xferAlign
	}

	state := p.fastOps.State()

	switch state {
	case StatePrepared:
		// A capture stream must run before data can arrive.
		if dir == xferRead && p.startMode == StartData {
			if err := p.fastOps.Start(); err != nil {
				return 0, err
			}
		}
	case StateRunning:
	case StateDraining:
		if dir == xferWrite {
			return 0, fmt.Errorf("write while draining: %w", ErrBadState)
		}
	case StateXrun:
		return 0, fmt.Errorf("transfer: %w", ErrXrun)
	default:
		return 0, fmt.Errorf("transfer in %s state: %w", state, ErrBadState)
	}

	var err error
	xfer := 0

	for size > 0 {
		avail, aerr := p.fastOps.AvailUpdate()
		if aerr != nil {
			err = fmt.Errorf("avail update: %w", ErrXrun)
			break
		}

		// A draining capture stream with nothing left, or a playback
		// stream never started with no room, has reached its end.
		if (dir == xferRead && state == StateDraining) ||
			(dir == xferWrite && state == StatePrepared) {
			if avail == 0 {
				err = fmt.Errorf("transfer: %w", ErrXrun)
				break
			}
		} else if avail == 0 || (size >= p.xferAlign && avail < p.xferAlign) {
			if p.mode&ModeNonblock != 0 {
				err = fmt.Errorf("transfer: %w", ErrWouldBlock)
				break
			}

			if _, werr := p.Wait(-1); werr != nil {
				err = werr
				break
			}

			state = p.fastOps.State()

			continue
		}

		if avail > p.xferAlign {
			avail -= avail % p.xferAlign
		}

		frames := size
		if frames > avail {
			frames = avail
		}

		n, ferr := fn(areas, offset, frames)
		if n > 0 {
			offset += n
			size -= n
			xfer += n
		}
		if ferr != nil {
			err = ferr
			break
		}
		if n != frames {
			err = errShortChunk
			break
		}

		// The first written frames start a stream left in PREPARED.
		if dir == xferWrite && state == StatePrepared && p.startMode == StartData {
			if serr := p.fastOps.Start(); serr != nil {
				err = serr
				break
			}

			state = StateRunning
		}
	}

	if xfer > 0 {
		return xfer, nil
	}

	return 0, err
}
