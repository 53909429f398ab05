package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/gen2brain/pcmio"
)

func main() {
	var (
		socket  string
		config  string
		verbose bool
	)

	flag.StringVar(&socket, "socket", "/tmp/pcmio.sock", "The unix socket path to serve on.")
	flag.StringVar(&config, "config", "", "A YAML definition file of PCM names to load.")
	flag.BoolVar(&verbose, "verbose", false, "Log every session event.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Serves local PCM devices to shm: clients over a unix socket.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if !verbose {
		log = log.Level(zerolog.WarnLevel)
	}

	if config != "" {
		if err := pcmio.LoadConfigFile(config); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", config, err)
			os.Exit(1)
		}

		log.Info().Str("path", config).Msg("definitions loaded")
	}

	srv := pcmio.NewShmServer(socket)
	srv.Log = log

	// Close the listening socket on the usual termination signals; running
	// sessions end when their clients disconnect.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		srv.Close()
	}()

	fmt.Printf("Serving PCM devices on %s\n", socket)

	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Error serving: %v\n", err)
		os.Exit(1)
	}
}
