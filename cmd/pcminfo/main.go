package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/pcmio"
)

func main() {
	var (
		card   int
		device int
		stream string
		list   bool
	)

	flag.IntVar(&card, "card", 0, "The sound card number.")
	flag.IntVar(&device, "device", 0, "The device number.")
	flag.StringVar(&stream, "stream", "playback", "The stream direction ('playback' or 'capture').")
	flag.BoolVar(&list, "list", false, "List the installed sound cards and their PCM devices.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Displays the configuration space of a hardware PCM device.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if list {
		cards, err := pcmio.Cards()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing cards: %v\n", err)
			os.Exit(1)
		}

		for _, c := range cards {
			fmt.Print(c.String())
		}

		return
	}

	var dir pcmio.Stream
	switch strings.ToLower(stream) {
	case "playback":
		dir = pcmio.StreamPlayback
	case "capture":
		dir = pcmio.StreamCapture
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid stream direction '%s'. Must be 'playback' or 'capture'.\n", stream)
		os.Exit(1)
	}

	name, err := pcmio.CardName(card)
	if err == nil {
		fmt.Printf("PCM card %d [%s], device %d, stream %s:\n", card, name, device, stream)
	} else {
		fmt.Printf("PCM card %d, device %d, stream %s:\n", card, device, stream)
	}

	caps, err := pcmio.QueryHWCaps(card, device, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying device capabilities: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(caps)
}
