package pcmio

import (
	"fmt"
	"unsafe"
)

// Area describes one channel of sample storage: a byte buffer, the bit
// offset of the first sample and the bit distance between consecutive
// frames. Interleaved layouts share one buffer with Step equal to the frame
// width; non-interleaved layouts use one buffer per channel with Step equal
// to the sample width.
type Area struct {
	Buf   []byte
	First uint
	Step  uint
}

// checkAreaWidth validates the sample width against the area geometry.
// Violations are programming errors, not runtime conditions.
func checkAreaWidth(a Area, width int) {
	switch width {
	case 4:
		if a.First&3 != 0 || a.Step&3 != 0 {
			panic(fmt.Sprintf("pcmio: area not nibble aligned (first %d step %d)", a.First, a.Step))
		}
	case 8, 16, 32, 64:
		if a.First&7 != 0 || a.Step&7 != 0 {
			panic(fmt.Sprintf("pcmio: area not byte aligned (first %d step %d)", a.First, a.Step))
		}
	default:
		panic(fmt.Sprintf("pcmio: unsupported sample width %d", width))
	}
}

// areaPos returns the buffer tail holding the given sample and the residual
// bit offset within its first byte.
func areaPos(a Area, offset int) ([]byte, uint) {
	bits := a.First + uint(offset)*a.Step

	return a.Buf[bits>>3:], bits & 7
}

// AreaSilence fills samples consecutive samples of dst, starting at the
// given sample offset, with the silence pattern of format. A nil buffer is
// ignored.
func AreaSilence(dst Area, offset, samples int, format Format) error {
	if samples == 0 || dst.Buf == nil {
		return nil
	}

	width := format.PhysicalWidth()
	checkAreaWidth(dst, width)

	pattern, _ := format.Silence()
	buf, bit := areaPos(dst, offset)

	// One 8-byte store covers 64/width samples when they are packed tight.
	if dst.Step == uint(width) && bit == 0 {
		words := (samples * width) >> 6
		if words > 0 {
			n := words << 3
			for i := 0; i < n; i += 8 {
				copy(buf[i:i+8], pattern[:])
			}

			samples -= (words << 6) / width
			buf = buf[n:]
		}

		if samples == 0 {
			return nil
		}
	}

	step := int(dst.Step) >> 3

	switch width {
	case 4:
		idx := 0
		for ; samples > 0; samples-- {
			if bit == 0 {
				buf[idx] = buf[idx]&0x0f | pattern[0]&0xf0
			} else {
				buf[idx] = buf[idx]&0xf0 | pattern[0]&0x0f
			}

			idx += step
			bit += dst.Step & 7
			if bit >= 8 {
				bit -= 8
				idx++
			}
		}
	case 8:
		for idx := 0; samples > 0; samples-- {
			buf[idx] = pattern[0]
			idx += step
		}
	default:
		n := width >> 3
		for idx := 0; samples > 0; samples-- {
			copy(buf[idx:idx+n], pattern[:n])
			idx += step
		}
	}

	return nil
}

// AreaCopy copies samples consecutive samples from src to dst. A nil source
// buffer silences the destination; a nil destination buffer discards the
// samples.
func AreaCopy(dst Area, dstOffset int, src Area, srcOffset int, samples int, format Format) error {
	if src.Buf == nil {
		return AreaSilence(dst, dstOffset, samples, format)
	}

	if samples == 0 || dst.Buf == nil {
		return nil
	}

	width := format.PhysicalWidth()
	checkAreaWidth(src, width)
	checkAreaWidth(dst, width)

	sbuf, sbit := areaPos(src, srcOffset)
	dbuf, dbit := areaPos(dst, dstOffset)

	if src.Step == uint(width) && dst.Step == uint(width) && sbit == 0 && dbit == 0 {
		bytes := (samples * width) >> 3
		copy(dbuf[:bytes], sbuf[:bytes])

		samples -= (bytes << 3) / width
		if samples == 0 {
			return nil
		}

		sbuf = sbuf[bytes:]
		dbuf = dbuf[bytes:]
	}

	sstep := int(src.Step) >> 3
	dstep := int(dst.Step) >> 3

	switch width {
	case 4:
		// Each side keeps its own nibble cursor; the value moves between
		// high and low nibble positions as the cursors demand.
		si, di := 0, 0
		for ; samples > 0; samples-- {
			var v byte
			if sbit == 0 {
				v = sbuf[si] >> 4
			} else {
				v = sbuf[si] & 0x0f
			}

			if dbit == 0 {
				dbuf[di] = dbuf[di]&0x0f | v<<4
			} else {
				dbuf[di] = dbuf[di]&0xf0 | v
			}

			si += sstep
			sbit += src.Step & 7
			if sbit >= 8 {
				sbit -= 8
				si++
			}

			di += dstep
			dbit += dst.Step & 7
			if dbit >= 8 {
				dbit -= 8
				di++
			}
		}
	case 8:
		for si, di := 0, 0; samples > 0; samples-- {
			dbuf[di] = sbuf[si]
			si += sstep
			di += dstep
		}
	default:
		n := width >> 3
		for si, di := 0, 0; samples > 0; samples-- {
			copy(dbuf[di:di+n], sbuf[si:si+n])
			si += sstep
			di += dstep
		}
	}

	return nil
}

// contiguousChannel reports whether cur continues an interleaved run begun
// by prev: same buffer, same step, samples adjacent in memory.
func contiguousChannel(prev, cur Area, width int) bool {
	if prev.Buf == nil || cur.Buf == nil {
		return false
	}

	return unsafe.SliceData(prev.Buf) == unsafe.SliceData(cur.Buf) &&
		cur.Step == prev.Step &&
		cur.First == prev.First+uint(width)
}

// AreasSilence fills frames frames of every channel area with silence.
// Channel runs that interleave tightly in one buffer are filled with a
// single widened pass; 4-bit formats always take the per-channel path.
func AreasSilence(dsts []Area, offset, frames int, format Format) error {
	width := format.PhysicalWidth()

	for i := 0; i < len(dsts); {
		j := i + 1
		for j < len(dsts) && contiguousChannel(dsts[j-1], dsts[j], width) {
			j++
		}

		chns := j - i
		if chns > 1 && width != 4 && uint(chns*width) == dsts[i].Step {
			wide := Area{Buf: dsts[i].Buf, First: dsts[i].First, Step: uint(width)}
			if err := AreaSilence(wide, offset*chns, frames*chns, format); err != nil {
				return err
			}
		} else {
			for k := i; k < j; k++ {
				if err := AreaSilence(dsts[k], offset, frames, format); err != nil {
					return err
				}
			}
		}

		i = j
	}

	return nil
}

// AreasCopy copies frames frames of every channel from srcs to dsts. Runs
// that interleave tightly in both source and destination collapse into a
// single widened copy; 4-bit formats always take the per-channel path.
func AreasCopy(dsts []Area, dstOffset int, srcs []Area, srcOffset int, frames int, format Format) error {
	if len(dsts) != len(srcs) {
		return fmt.Errorf("%w: %d destination areas, %d source areas", ErrInvalidArg, len(dsts), len(srcs))
	}

	width := format.PhysicalWidth()

	for i := 0; i < len(dsts); {
		j := i + 1
		for j < len(dsts) &&
			contiguousChannel(dsts[j-1], dsts[j], width) &&
			contiguousChannel(srcs[j-1], srcs[j], width) {
			j++
		}

		chns := j - i
		if chns > 1 && width != 4 &&
			uint(chns*width) == dsts[i].Step && dsts[i].Step == srcs[i].Step {
			wdst := Area{Buf: dsts[i].Buf, First: dsts[i].First, Step: uint(width)}
			wsrc := Area{Buf: srcs[i].Buf, First: srcs[i].First, Step: uint(width)}
			if err := AreaCopy(wdst, dstOffset*chns, wsrc, srcOffset*chns, frames*chns, format); err != nil {
				return err
			}
		} else {
			for k := i; k < j; k++ {
				if err := AreaCopy(dsts[k], dstOffset, srcs[k], srcOffset, frames, format); err != nil {
					return err
				}
			}
		}

		i = j
	}

	return nil
}

// areasFromBuf lays interleaved channel areas over a single buffer.
func (p *PCM) areasFromBuf(buf []byte) []Area {
	areas := make([]Area, p.channels)
	for ch := range areas {
		areas[ch] = Area{Buf: buf, First: uint(ch) * uint(p.sampleBits), Step: uint(p.frameBits)}
	}

	return areas
}

// areasFromBufs lays one channel area over each buffer.
func (p *PCM) areasFromBufs(bufs [][]byte) []Area {
	areas := make([]Area, len(bufs))
	for ch := range areas {
		areas[ch] = Area{Buf: bufs[ch], First: 0, Step: uint(p.sampleBits)}
	}

	return areas
}
