package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// AudioDecoder abstracts the source format so the playback loop can treat
// WAV and MP3 input uniformly.
type AudioDecoder interface {
	// PCMBuffer reads decoded PCM audio data into the provided buffer.
	// It returns the number of samples (not frames) read.
	PCMBuffer(buf *audio.IntBuffer) (n int, err error)
	// NumChans returns the number of audio channels.
	NumChans() int
	// SampleRate returns the sample rate in Hz.
	SampleRate() int
	// BitDepth returns the bit depth of the decoded samples.
	BitDepth() int
}

// newDecoder picks a decoder from the file extension.
func newDecoder(path string, r io.ReadSeeker) (AudioDecoder, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return newMp3Decoder(r)
	}

	return newWavDecoder(r)
}

// wavDecoderWrapper adapts the go-audio WAV decoder.
type wavDecoderWrapper struct {
	*wav.Decoder
}

func newWavDecoder(r io.ReadSeeker) (AudioDecoder, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file")
	}

	return &wavDecoderWrapper{Decoder: decoder}, nil
}

func (w *wavDecoderWrapper) NumChans() int   { return int(w.Decoder.NumChans) }
func (w *wavDecoderWrapper) SampleRate() int { return int(w.Decoder.SampleRate) }
func (w *wavDecoderWrapper) BitDepth() int   { return int(w.Decoder.BitDepth) }

// mp3DecoderWrapper adapts the go-mp3 decoder, which always yields 16-bit
// stereo frames.
type mp3DecoderWrapper struct {
	decoder *mp3.Decoder
	byteBuf []byte
}

func newMp3Decoder(r io.Reader) (AudioDecoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("invalid MP3 file: %w", err)
	}

	return &mp3DecoderWrapper{decoder: decoder}, nil
}

func (m *mp3DecoderWrapper) NumChans() int   { return 2 }
func (m *mp3DecoderWrapper) SampleRate() int { return m.decoder.SampleRate() }
func (m *mp3DecoderWrapper) BitDepth() int   { return 16 }

// PCMBuffer reads from the MP3 decoder and widens the 16-bit byte stream
// into integer samples.
func (m *mp3DecoderWrapper) PCMBuffer(buf *audio.IntBuffer) (int, error) {
	bytesToRead := len(buf.Data) * 2
	if cap(m.byteBuf) < bytesToRead {
		m.byteBuf = make([]byte, bytesToRead)
	}

	bytesRead, err := io.ReadFull(m.decoder, m.byteBuf[:bytesToRead])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	samplesRead := bytesRead / 2
	for i := 0; i < samplesRead; i++ {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(m.byteBuf[i*2:])))
	}

	return samplesRead, nil
}
