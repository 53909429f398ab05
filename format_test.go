package pcmio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gen2brain/pcmio"
)

func TestFormatWidths(t *testing.T) {
	tests := []struct {
		format   pcmio.Format
		physical int
		width    int
	}{
		{pcmio.FormatS8, 8, 8},
		{pcmio.FormatU8, 8, 8},
		{pcmio.FormatS16LE, 16, 16},
		{pcmio.FormatS16BE, 16, 16},
		{pcmio.FormatU16LE, 16, 16},
		{pcmio.FormatS24LE, 32, 24},
		{pcmio.FormatS24BE, 32, 24},
		{pcmio.FormatU24LE, 32, 24},
		{pcmio.FormatS32LE, 32, 32},
		{pcmio.FormatU32BE, 32, 32},
		{pcmio.FormatFloatLE, 32, 32},
		{pcmio.FormatFloat64LE, 64, 64},
		{pcmio.FormatIEC958SubframeLE, 32, 32},
		{pcmio.FormatMuLaw, 8, 8},
		{pcmio.FormatALaw, 8, 8},
		{pcmio.FormatImaAdpcm, 4, 4},
		{pcmio.FormatMpeg, 0, 0},
		{pcmio.FormatGSM, 0, 0},
		{pcmio.FormatSpecial, 0, 0},
		{pcmio.FormatUnknown, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			assert.Equal(t, tt.physical, tt.format.PhysicalWidth())
			assert.Equal(t, tt.width, tt.format.Width())
		})
	}
}

func TestFormatNames(t *testing.T) {
	tests := []struct {
		format pcmio.Format
		name   string
	}{
		{pcmio.FormatS16LE, "S16_LE"},
		{pcmio.FormatU8, "U8"},
		{pcmio.FormatFloat64BE, "FLOAT64_BE"},
		{pcmio.FormatIEC958SubframeBE, "IEC958_SUBFRAME_BE"},
		{pcmio.FormatMuLaw, "MU_LAW"},
		{pcmio.FormatImaAdpcm, "IMA_ADPCM"},
		{pcmio.FormatUnknown, "UNKNOWN"},
		{pcmio.Format(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.name, tt.format.String())
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, pcmio.FormatS16LE, pcmio.FormatValue("S16_LE"))
	assert.Equal(t, pcmio.FormatS16LE, pcmio.FormatValue("s16_le"))
	assert.Equal(t, pcmio.FormatFloatLE, pcmio.FormatValue("float_le"))
	assert.Equal(t, pcmio.FormatU8, pcmio.FormatValue("U8"))
	assert.Equal(t, pcmio.FormatUnknown, pcmio.FormatValue("S16"))
	assert.Equal(t, pcmio.FormatUnknown, pcmio.FormatValue(""))
}

func TestFormatRoundTrip(t *testing.T) {
	formats := []pcmio.Format{
		pcmio.FormatS8, pcmio.FormatU8, pcmio.FormatS16LE, pcmio.FormatS16BE,
		pcmio.FormatU16LE, pcmio.FormatU16BE, pcmio.FormatS24LE, pcmio.FormatS24BE,
		pcmio.FormatU24LE, pcmio.FormatU24BE, pcmio.FormatS32LE, pcmio.FormatS32BE,
		pcmio.FormatU32LE, pcmio.FormatU32BE, pcmio.FormatFloatLE, pcmio.FormatFloatBE,
		pcmio.FormatFloat64LE, pcmio.FormatFloat64BE, pcmio.FormatMuLaw, pcmio.FormatALaw,
		pcmio.FormatImaAdpcm, pcmio.FormatMpeg, pcmio.FormatGSM, pcmio.FormatSpecial,
	}

	for _, f := range formats {
		assert.Equal(t, f, pcmio.FormatValue(f.String()), "format %s", f)
	}
}

func TestFormatLinear(t *testing.T) {
	assert.True(t, pcmio.FormatS8.Linear())
	assert.True(t, pcmio.FormatS16LE.Linear())
	assert.True(t, pcmio.FormatU24BE.Linear())
	assert.True(t, pcmio.FormatU32BE.Linear())
	assert.False(t, pcmio.FormatFloatLE.Linear())
	assert.False(t, pcmio.FormatMuLaw.Linear())
	assert.False(t, pcmio.FormatUnknown.Linear())
}

func TestFormatSilence(t *testing.T) {
	tests := []struct {
		format  pcmio.Format
		defined bool
		pattern [8]byte
	}{
		{pcmio.FormatS16LE, true, [8]byte{}},
		{pcmio.FormatU8, true, [8]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80}},
		{pcmio.FormatU16LE, true, [8]byte{0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80}},
		{pcmio.FormatU16BE, true, [8]byte{0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00}},
		{pcmio.FormatU32LE, true, [8]byte{0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80}},
		{pcmio.FormatMuLaw, true, [8]byte{0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f}},
		{pcmio.FormatALaw, true, [8]byte{0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55}},
		{pcmio.FormatMpeg, false, [8]byte{}},
		{pcmio.FormatGSM, false, [8]byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			pattern, ok := tt.format.Silence()
			assert.Equal(t, tt.defined, ok)
			assert.Equal(t, tt.pattern, pattern)
		})
	}
}

func TestFormatDescription(t *testing.T) {
	assert.Equal(t, "Signed 16 bit Little Endian", pcmio.FormatS16LE.Description())
	assert.Equal(t, "Mu-Law", pcmio.FormatMuLaw.Description())
	assert.Equal(t, "Unknown", pcmio.FormatUnknown.Description())
}
