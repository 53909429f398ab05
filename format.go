package pcmio

import (
	"strings"
)

// Format defines the sample encoding of a stream.
// The values correspond to the SNDRV_PCM_FORMAT_* kernel constants.
type Format int32

const (
	FormatUnknown          Format = -1
	FormatS8               Format = 0
	FormatU8               Format = 1
	FormatS16LE            Format = 2
	FormatS16BE            Format = 3
	FormatU16LE            Format = 4
	FormatU16BE            Format = 5
	FormatS24LE            Format = 6
	FormatS24BE            Format = 7
	FormatU24LE            Format = 8
	FormatU24BE            Format = 9
	FormatS32LE            Format = 10
	FormatS32BE            Format = 11
	FormatU32LE            Format = 12
	FormatU32BE            Format = 13
	FormatFloatLE          Format = 14
	FormatFloatBE          Format = 15
	FormatFloat64LE        Format = 16
	FormatFloat64BE        Format = 17
	FormatIEC958SubframeLE Format = 18
	FormatIEC958SubframeBE Format = 19
	FormatMuLaw            Format = 20
	FormatALaw             Format = 21
	FormatImaAdpcm         Format = 22
	FormatMpeg             Format = 23
	FormatGSM              Format = 24
	FormatSpecial          Format = 31
)

var formatNames = map[Format]string{
	FormatS8:               "S8",
	FormatU8:               "U8",
	FormatS16LE:            "S16_LE",
	FormatS16BE:            "S16_BE",
	FormatU16LE:            "U16_LE",
	FormatU16BE:            "U16_BE",
	FormatS24LE:            "S24_LE",
	FormatS24BE:            "S24_BE",
	FormatU24LE:            "U24_LE",
	FormatU24BE:            "U24_BE",
	FormatS32LE:            "S32_LE",
	FormatS32BE:            "S32_BE",
	FormatU32LE:            "U32_LE",
	FormatU32BE:            "U32_BE",
	FormatFloatLE:          "FLOAT_LE",
	FormatFloatBE:          "FLOAT_BE",
	FormatFloat64LE:        "FLOAT64_LE",
	FormatFloat64BE:        "FLOAT64_BE",
	FormatIEC958SubframeLE: "IEC958_SUBFRAME_LE",
	FormatIEC958SubframeBE: "IEC958_SUBFRAME_BE",
	FormatMuLaw:            "MU_LAW",
	FormatALaw:             "A_LAW",
	FormatImaAdpcm:         "IMA_ADPCM",
	FormatMpeg:             "MPEG",
	FormatGSM:              "GSM",
	FormatSpecial:          "SPECIAL",
}

var formatDescriptions = map[Format]string{
	FormatS8:               "Signed 8 bit",
	FormatU8:               "Unsigned 8 bit",
	FormatS16LE:            "Signed 16 bit Little Endian",
	FormatS16BE:            "Signed 16 bit Big Endian",
	FormatU16LE:            "Unsigned 16 bit Little Endian",
	FormatU16BE:            "Unsigned 16 bit Big Endian",
	FormatS24LE:            "Signed 24 bit Little Endian",
	FormatS24BE:            "Signed 24 bit Big Endian",
	FormatU24LE:            "Unsigned 24 bit Little Endian",
	FormatU24BE:            "Unsigned 24 bit Big Endian",
	FormatS32LE:            "Signed 32 bit Little Endian",
	FormatS32BE:            "Signed 32 bit Big Endian",
	FormatU32LE:            "Unsigned 32 bit Little Endian",
	FormatU32BE:            "Unsigned 32 bit Big Endian",
	FormatFloatLE:          "Float 32 bit Little Endian",
	FormatFloatBE:          "Float 32 bit Big Endian",
	FormatFloat64LE:        "Float 64 bit Little Endian",
	FormatFloat64BE:        "Float 64 bit Big Endian",
	FormatIEC958SubframeLE: "IEC-958 Little Endian",
	FormatIEC958SubframeBE: "IEC-958 Big Endian",
	FormatMuLaw:            "Mu-Law",
	FormatALaw:             "A-Law",
	FormatImaAdpcm:         "Ima-ADPCM",
	FormatMpeg:             "MPEG",
	FormatGSM:              "GSM",
	FormatSpecial:          "Special",
}

// String returns the canonical format name, for example "S16_LE".
func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}

	return "UNKNOWN"
}

// Description returns a human-readable format description.
func (f Format) Description() string {
	if s, ok := formatDescriptions[f]; ok {
		return s
	}

	return "Unknown"
}

// FormatValue returns the format with the given canonical name, matched
// case-insensitively, or FormatUnknown.
func FormatValue(name string) Format {
	for f, s := range formatNames {
		if strings.EqualFold(s, name) {
			return f
		}
	}

	return FormatUnknown
}

// PhysicalWidth returns the number of bits one sample occupies in memory,
// including any container padding, or 0 when the format has no defined
// in-memory layout.
func (f Format) PhysicalWidth() int {
	switch f {
	case FormatS8, FormatU8, FormatMuLaw, FormatALaw:
		return 8
	case FormatS16LE, FormatS16BE, FormatU16LE, FormatU16BE:
		return 16
	case FormatS24LE, FormatS24BE, FormatU24LE, FormatU24BE,
		FormatS32LE, FormatS32BE, FormatU32LE, FormatU32BE,
		FormatFloatLE, FormatFloatBE,
		FormatIEC958SubframeLE, FormatIEC958SubframeBE:
		return 32
	case FormatFloat64LE, FormatFloat64BE:
		return 64
	case FormatImaAdpcm:
		return 4
	}

	return 0
}

// Width returns the number of significant bits per sample, or 0 when the
// format has no defined sample width.
func (f Format) Width() int {
	switch f {
	case FormatS24LE, FormatS24BE, FormatU24LE, FormatU24BE:
		return 24
	}

	return f.PhysicalWidth()
}

// Linear reports whether the format is a plain signed or unsigned integer
// encoding.
func (f Format) Linear() bool {
	return f >= FormatS8 && f <= FormatU32BE
}

// silencePatterns holds the in-memory byte pattern of one silent sample,
// repeated to 8 bytes. Formats without a defined layout have no entry.
var silencePatterns = map[Format][8]byte{
	FormatS8:               {},
	FormatU8:               {0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80},
	FormatS16LE:            {},
	FormatS16BE:            {},
	FormatU16LE:            {0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80},
	FormatU16BE:            {0x80, 0x00, 0x80, 0x00, 0x80, 0x00, 0x80, 0x00},
	FormatS24LE:            {},
	FormatS24BE:            {},
	FormatU24LE:            {0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80, 0x00},
	FormatU24BE:            {0x00, 0x80, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00},
	FormatS32LE:            {},
	FormatS32BE:            {},
	FormatU32LE:            {0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00, 0x80},
	FormatU32BE:            {0x80, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00},
	FormatFloatLE:          {},
	FormatFloatBE:          {},
	FormatFloat64LE:        {},
	FormatFloat64BE:        {},
	FormatIEC958SubframeLE: {},
	FormatIEC958SubframeBE: {},
	FormatMuLaw:            {0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f, 0x7f},
	FormatALaw:             {0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55, 0x55},
	FormatImaAdpcm:         {},
}

// Silence returns the byte pattern of one silent sample repeated to 8 bytes,
// and whether the format defines one.
func (f Format) Silence() ([8]byte, bool) {
	p, ok := silencePatterns[f]

	return p, ok
}
