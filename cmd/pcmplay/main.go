package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"

	"github.com/gen2brain/pcmio"
)

func main() {
	var (
		device      string
		periodSize  int
		periodCount int
		channels    int
		rate        int
		formatStr   string
	)

	flag.StringVar(&device, "device", "hw:0,0", "The PCM to play to (hw:C,D, plug:C,D, null, file:PATH, ...)")
	flag.IntVar(&periodSize, "period-size", 1024, "The size of a period in frames")
	flag.IntVar(&periodCount, "period-count", 4, "The number of periods")
	flag.IntVar(&channels, "channels", 0, "The amount of channels per frame (0 = use the file's channels)")
	flag.IntVar(&rate, "rate", 0, "The amount of frames per second (0 = use the file's rate)")
	flag.StringVar(&formatStr, "format", "s16", "The sample format (s16, s24, s32)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <wav-or-mp3-file>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		for _, name := range []string{"device", "period-size", "period-count", "channels", "rate", "format"} {
			f := flag.Lookup(name)
			if f != nil {
				fmt.Fprintf(os.Stderr, "  --%s\n    \t%v (default %q)\n", f.Name, f.Usage, f.DefValue)
			}
		}
	}

	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	path := flag.Arg(0)
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audio file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	decoder, err := newDecoder(path, file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding %s: %v\n", path, err)
		os.Exit(1)
	}

	format, err := determineFormat(formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error determining format: %v\n", err)
		os.Exit(1)
	}

	if channels == 0 {
		channels = decoder.NumChans()
	}
	if rate == 0 {
		rate = decoder.SampleRate()
	}

	pcm, err := pcmio.Open(device, pcmio.StreamPlayback, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening PCM %s: %v\n", device, err)
		os.Exit(1)
	}
	defer pcm.Close()

	params := &pcmio.HWParams{
		Format:     format,
		Channels:   channels,
		Rate:       rate,
		PeriodSize: periodSize,
		BufferSize: periodSize * periodCount,
	}

	if err := pcm.HwParams(params); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring PCM: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Playing: %s\n", path)
	fmt.Printf("PCM device: %s (%s)\n", pcm.Name(), pcm.Type())
	fmt.Printf("Configuration: %d channels, %d Hz, %s\n", params.Channels, params.Rate, params.Format)
	fmt.Printf("Period size: %d, buffer size: %d\n", params.PeriodSize, params.BufferSize)

	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: decoder.NumChans(),
			SampleRate:  decoder.SampleRate(),
		},
		Data: make([]int, params.PeriodSize*params.Channels),
	}
	out := make([]byte, pcm.FramesToBytes(params.PeriodSize))

	framesWritten := 0

	for {
		// n is the number of SAMPLES read from the decoder.
		n, err := decoder.PCMBuffer(intBuf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			fmt.Fprintf(os.Stderr, "Error reading PCM data: %v\n", err)
			os.Exit(1)
		}

		if n == 0 {
			break
		}

		frames := n / params.Channels
		encodeSamples(out, intBuf.Data[:n], format, decoder.BitDepth())

		written, err := pcm.WriteI(out[:pcm.FramesToBytes(frames)], frames)
		if err != nil {
			if errors.Is(err, pcmio.ErrXrun) {
				fmt.Fprintln(os.Stderr, "Underrun occurred, preparing the stream again.")
				if err := pcm.Prepare(); err != nil {
					fmt.Fprintf(os.Stderr, "Error recovering from underrun: %v\n", err)
					os.Exit(1)
				}

				continue
			}

			fmt.Fprintf(os.Stderr, "Error writing to PCM: %v\n", err)
			os.Exit(1)
		}

		framesWritten += written
	}

	// Let the queued frames play out before closing.
	if err := pcm.Drain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error draining PCM: %v\n", err)
	}

	seconds := float64(framesWritten) / float64(params.Rate)
	fmt.Printf("Playback finished. Wrote %d frames (%.2f seconds).\n", framesWritten, seconds)
}

// determineFormat maps a short format name to a sample format.
func determineFormat(formatStr string) (pcmio.Format, error) {
	switch formatStr {
	case "s16":
		return pcmio.FormatS16LE, nil
	case "s24":
		return pcmio.FormatS24LE, nil
	case "s32":
		return pcmio.FormatS32LE, nil
	default:
		return 0, fmt.Errorf("unsupported format: '%s'. Supported formats are s16, s24, s32", formatStr)
	}
}

// encodeSamples serializes decoder samples into the device's interleaved
// byte layout, rescaling from the source bit depth.
func encodeSamples(dst []byte, samples []int, format pcmio.Format, srcDepth int) {
	for i, s := range samples {
		switch format {
		case pcmio.FormatS16LE:
			binary.LittleEndian.PutUint16(dst[2*i:], uint16(int16(scaleSample(s, srcDepth, 16))))
		case pcmio.FormatS24LE:
			binary.LittleEndian.PutUint32(dst[4*i:], uint32(int32(scaleSample(s, srcDepth, 24))))
		case pcmio.FormatS32LE:
			binary.LittleEndian.PutUint32(dst[4*i:], uint32(int32(scaleSample(s, srcDepth, 32))))
		}
	}
}

// scaleSample shifts a sample between bit depths, widening or narrowing
// as needed.
func scaleSample(s, from, to int) int {
	switch {
	case from > to:
		return s >> (from - to)
	case from < to:
		return s << (to - from)
	}

	return s
}
