// Command doorbell-sim plays a chime the way the door sensor board would,
// writing key command bytes to a serial port or to stdout.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dabbleparty/pianodoorbell/internal/chime"
	"github.com/dabbleparty/pianodoorbell/internal/link"
	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	serialDev := flag.String("serial", "", "serial port device; stdout when empty")
	baud := flag.Int("baud", 9600, "serial baud rate")
	scheme := flag.String("protocol", "signed", "byte scheme: signed or sign-magnitude")
	tune := flag.String("tune", "3,1", "keys to play, in order")
	hold := flag.Duration("hold", 400*time.Millisecond, "how long each key sounds")
	gap := flag.Duration("gap", 500*time.Millisecond, "time between key starts")
	repeat := flag.Int("repeat", 1, "how many times to play the tune")
	flag.Parse()

	initLogger(*debug)

	s, err := protocol.ParseScheme(*scheme)
	if err != nil {
		logger.Error("bad -protocol", "err", err)
		os.Exit(2)
	}
	keys, err := chime.ParseTune(*tune)
	if err != nil {
		logger.Error("bad -tune", "err", err)
		os.Exit(2)
	}

	var out io.Writer = os.Stdout
	if *serialDev != "" {
		port, err := link.OpenSerial(*serialDev, *baud, 0, logger)
		if err != nil {
			logger.Error("serial: open failed", "err", err)
			os.Exit(1)
		}
		defer port.Close()
		out = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("doorbell-sim playing", "tune", keys, "hold", *hold, "gap", *gap, "repeat", *repeat, "protocol", s)
	sched := chime.Plan(time.Now(), keys, *hold, *gap, *repeat)
	if err := chime.Play(ctx, out, s, sched, 2*time.Millisecond, logger); err != nil {
		logger.Error("play failed", "err", err)
		os.Exit(1)
	}
}
