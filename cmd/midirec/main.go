package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"midirec/internal/logger"
	"midirec/internal/recorder"
	"midirec/internal/smfio"
	"midirec/sdk/contracts"
	"midirec/sdk/midi"
)

func main() {
	list := flag.Bool("list", false, "list available devices")
	device := flag.Int("device", 0, "MIDI device to be opened by index")
	name := flag.String("name", "track", "name of MIDI file(s) to be stored, can be a path")
	auto := flag.Int("auto", 0, "auto mode silence timeout in seconds after which a new track is recorded (0 disables)")
	verbose := flag.Bool("verbose", false, "debug mode")
	flag.Parse()

	log := logger.NewZapLogger()
	level := contracts.InfoLevel
	if *verbose {
		level = contracts.DebugLevel
	}

	client, err := midi.NewMIDIClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(level),
	)
	if err != nil {
		log.Error("Failed to initialize MIDI client", log.Field().Error("error", err))
		os.Exit(1)
	}

	if *list {
		devices, err := client.ListDevices()
		if err != nil {
			log.Warn("No MIDI devices found", log.Field().Error("error", err))
			return
		}
		for i, d := range devices {
			fmt.Printf("%d : %s\n", i, d.Name)
		}
		return
	}

	rec := recorder.New(recorder.Config{
		DeviceID:    *device,
		BaseName:    *name,
		IdleTimeout: time.Duration(*auto) * time.Second,
		Debug:       *verbose,
	}, client, smfio.NewWriter(), log)

	// An interrupt is a graceful shutdown request, not an error: the run
	// loop flushes the open track and returns nil.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rec.Run(ctx); err != nil {
		log.Error("Recording failed", log.Field().Error("error", err))
		os.Exit(1)
	}
}
