package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

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
		duration    int
	)

	flag.StringVar(&device, "device", "hw:0,0", "The PCM to capture from (hw:C,D, plug:C,D, null, ...)")
	flag.IntVar(&periodSize, "period-size", 1024, "The size of a period in frames")
	flag.IntVar(&periodCount, "period-count", 4, "The number of periods")
	flag.IntVar(&channels, "channels", 2, "The number of channels")
	flag.IntVar(&rate, "rate", 48000, "The sample rate in Hz")
	flag.StringVar(&formatStr, "format", "s16", "The sample format (s16, s24, s32)")
	flag.IntVar(&duration, "duration", 5, "The duration of the capture in seconds")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <output-wav-file>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nOptions:")
		for _, name := range []string{"device", "period-size", "period-count", "channels", "rate", "format", "duration"} {
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

	outputPath := flag.Arg(0)

	format, bitDepth, err := determineFormat(formatStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error determining format: %v\n", err)
		os.Exit(1)
	}

	pcm, err := pcmio.Open(device, pcmio.StreamCapture, 0)
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

	fmt.Printf("Capturing from PCM device: %s (%s)\n", pcm.Name(), pcm.Type())
	fmt.Printf("Configuration: %d channels, %d Hz, %s\n", params.Channels, params.Rate, params.Format)
	fmt.Printf("Period size: %d, buffer size: %d\n", params.PeriodSize, params.BufferSize)
	fmt.Printf("Capture duration: %d seconds\n", duration)

	wavFile, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating WAV file: %v\n", err)
		os.Exit(1)
	}
	defer wavFile.Close()

	encoder := wav.NewEncoder(wavFile,
		params.Rate,
		bitDepth,
		params.Channels,
		1, // audio format 1 is PCM
	)
	defer encoder.Close()

	totalFrames := duration * params.Rate
	framesCaptured := 0

	// Stop gracefully on Ctrl+C and keep what was captured so far.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	fmt.Println("Starting capture... Press Ctrl+C to stop early.")

	buffer := make([]byte, pcm.FramesToBytes(params.PeriodSize))

	keepRunning := true
	for keepRunning && framesCaptured < totalFrames {
		select {
		case <-sigChan:
			fmt.Println("\nCapture interrupted by user.")
			keepRunning = false
		default:
			frames, err := pcm.ReadI(buffer, params.PeriodSize)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading from PCM: %v\n", err)
				keepRunning = false

				continue
			}

			if frames == 0 {
				continue
			}

			intBuffer := bytesToIntBuffer(buffer[:pcm.FramesToBytes(frames)], format, params.Channels, bitDepth)
			if err := encoder.Write(intBuffer); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing to WAV file: %v\n", err)

				break
			}

			framesCaptured += frames
		}
	}

	seconds := float64(framesCaptured) / float64(params.Rate)
	fmt.Printf("Capture finished. Wrote %d frames (%.2f seconds) to %s\n", framesCaptured, seconds, outputPath)
}

// determineFormat maps a short format name to a sample format and the WAV
// bit depth it dumps at.
func determineFormat(formatStr string) (pcmio.Format, int, error) {
	switch formatStr {
	case "s16":
		return pcmio.FormatS16LE, 16, nil
	case "s24":
		// 24 bits of data in a 32-bit container; the wav encoder wants the
		// data bit depth.
		return pcmio.FormatS24LE, 24, nil
	case "s32":
		return pcmio.FormatS32LE, 32, nil
	default:
		return 0, 0, fmt.Errorf("unsupported format: '%s'. Supported formats are s16, s24, s32", formatStr)
	}
}

// bytesToIntBuffer converts captured interleaved bytes into the
// audio.IntBuffer the wav encoder consumes.
func bytesToIntBuffer(data []byte, format pcmio.Format, channels, bitDepth int) *audio.IntBuffer {
	bytesPerSample := format.PhysicalWidth() / 8
	numSamples := len(data) / bytesPerSample
	intData := make([]int, numSamples)

	for i := 0; i < numSamples; i++ {
		offset := i * bytesPerSample

		switch format {
		case pcmio.FormatS16LE:
			intData[i] = int(int16(binary.LittleEndian.Uint16(data[offset:])))
		case pcmio.FormatS24LE:
			// Low 24 bits of the container, sign extended.
			u := binary.LittleEndian.Uint32(data[offset:])
			intData[i] = int(int32(u<<8) >> 8)
		case pcmio.FormatS32LE:
			intData[i] = int(int32(binary.LittleEndian.Uint32(data[offset:])))
		}
	}

	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
		},
		Data:           intData,
		SourceBitDepth: bitDepth,
	}
}
