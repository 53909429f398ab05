package pcmio_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/pcmio"
)

func TestFileRawDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.raw")

	p, err := pcmio.Open("file:"+path, pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	assert.Equal(t, pcmio.TypeFile, p.Type())

	require.NoError(t, p.HwParams(nil))

	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}

	n, err := p.WriteI(data, 256)
	require.NoError(t, err)
	assert.Equal(t, 256, n)

	require.NoError(t, p.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFileWavDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	p, err := pcmio.Open("file:"+path+",wav", pcmio.StreamPlayback, 0)
	require.NoError(t, err)

	params := &pcmio.HWParams{Format: pcmio.FormatS16LE, Channels: 1, Rate: 8000}
	require.NoError(t, p.HwParams(params))

	samples := []int{0, 1000, -1000, 32767, -32768, 5, -5, 12345}
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(int16(s)))
	}

	n, err := p.WriteI(buf, len(samples))
	require.NoError(t, err)
	assert.Equal(t, len(samples), n)

	require.NoError(t, p.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	pcm, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, 1, pcm.Format.NumChannels)
	assert.Equal(t, 8000, pcm.Format.SampleRate)
	assert.Equal(t, samples, pcm.Data)
}

func TestFileWavFormatRestrictions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	p, err := pcmio.Open("file:"+path+",wav", pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	params := &pcmio.HWParams{Format: pcmio.FormatFloatLE}
	assert.ErrorIs(t, p.HwParams(params), pcmio.ErrInvalidArg)
}

func TestFileUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	_, err := pcmio.Open("file:"+path+",weird", pcmio.StreamPlayback, 0)
	assert.ErrorIs(t, err, pcmio.ErrInvalidArg)
}

func TestFileCaptureDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cap.raw")

	c, err := pcmio.Open("file:"+path, pcmio.StreamCapture, 0)
	require.NoError(t, err)

	require.NoError(t, c.HwParams(nil))

	buf := filled(256, 0xff)

	n, err := c.ReadI(buf, 64)
	require.NoError(t, err)
	assert.Equal(t, 64, n)

	require.NoError(t, c.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 256), got)
}

func TestFileDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.raw")

	p, err := pcmio.Open("file:"+path, pcmio.StreamPlayback, 0)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	var out bytes.Buffer
	require.NoError(t, p.Dump(&out))

	assert.Contains(t, out.String(), "File PCM (file="+path+", format=raw)")
	assert.Contains(t, out.String(), "Null PCM")
}

func TestFileDefErrors(t *testing.T) {
	tests := []struct {
		name string
		def  map[string]any
	}{
		{"no slave", map[string]any{"type": "file", "file": "/tmp/x.raw"}},
		{"no file", map[string]any{"type": "file", "slave": map[string]any{"pcm": "null"}}},
		{"file not a string", map[string]any{"type": "file", "file": 42, "slave": map[string]any{"pcm": "null"}}},
		{"unknown field", map[string]any{"type": "file", "file": "/tmp/x.raw", "slave": map[string]any{"pcm": "null"}, "x": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pcmio.OpenDefinition("dump", tt.def, pcmio.StreamPlayback, 0)
			assert.ErrorIs(t, err, pcmio.ErrInvalidArg)
		})
	}
}
