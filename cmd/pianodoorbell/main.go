// Command pianodoorbell turns a door sensor into a piano: each byte from the
// sensor board over serial starts or stops one of the configured tones.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ossrs/go-oryx-lib/errors"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dabbleparty/pianodoorbell/internal/config"
	"github.com/dabbleparty/pianodoorbell/internal/link"
	"github.com/dabbleparty/pianodoorbell/internal/midikeys"
	"github.com/dabbleparty/pianodoorbell/internal/notify"
	"github.com/dabbleparty/pianodoorbell/internal/piano"
	"github.com/dabbleparty/pianodoorbell/internal/sound"
	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// logger is the process-wide structured logger; initLogger replaces it.
var logger = slog.Default()

// initLogger configures the shared slog logger and makes it the default, so
// packages that were not handed a logger use it too.
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
	configPath := flag.String("config", "", "YAML configuration file")
	envFile := flag.String("env", ".env", "dotenv file with PIANODOORBELL_* overrides")
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	serialDev := flag.String("serial", "", "serial port device (overrides config)")
	baud := flag.Int("baud", 0, "serial baud rate (overrides config)")
	scheme := flag.String("protocol", "", "byte scheme: signed or sign-magnitude (overrides config)")
	backend := flag.String("audio", "", "audio backend: oto, wav or null (overrides config)")
	renderDir := flag.String("render", "", "write every key as a WAV file into this directory and exit")
	renderSeconds := flag.Float64("seconds", 1, "length of each rendered WAV file")
	dumpConfig := flag.Bool("dump-config", false, "print the effective configuration and exit")
	listPorts := flag.Bool("list-ports", false, "list serial ports and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pianodoorbell: %v\n", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "debug":
			cfg.Debug = *debug
		case "serial":
			cfg.Serial.Device = *serialDev
		case "baud":
			cfg.Serial.Baud = *baud
		case "protocol":
			cfg.Protocol = *scheme
		case "audio":
			cfg.Audio.Backend = *backend
		}
	})

	initLogger(cfg.Debug)

	if err := cfg.Validate(); err != nil {
		logger.Error("config", "err", err)
		os.Exit(2)
	}

	switch {
	case *dumpConfig:
		out, err := yaml.Marshal(cfg)
		if err != nil {
			logger.Error("config: marshal", "err", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	case *listPorts:
		ports, err := link.ListSerialPorts()
		if err != nil {
			logger.Error("serial: list ports", "err", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	case *renderDir != "":
		if err := render(cfg, *renderDir, *renderSeconds); err != nil {
			logger.Error("render failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("pianodoorbell stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("pianodoorbell stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	s, err := cfg.Scheme()
	if err != nil {
		return err
	}
	logger.Info("pianodoorbell starting",
		"serial", cfg.Serial.Device,
		"baud", cfg.Serial.Baud,
		"protocol", s,
		"keys", fmt.Sprint(cfg.Keys),
		"audio", cfg.Audio.Backend,
		"midi", cfg.MIDI.Enabled,
		"redis", cfg.Redis.Addr,
	)

	newSink, err := sinkFactory(cfg)
	if err != nil {
		return err
	}
	popts := []piano.Option{piano.WithLogger(logger)}
	if cfg.Audio.Backend == config.BackendOto {
		popts = append(popts, piano.WithRefillInterval(sound.StreamRefill))
	}
	bank, err := piano.Open(cfg.Frequencies(), newSink, popts...)
	if err != nil {
		return errors.Wrapf(err, "open keys")
	}

	port, err := link.OpenSerial(cfg.Serial.Device, cfg.Serial.Baud, cfg.Serial.ReadTimeout, logger)
	if err != nil {
		bank.Close()
		return err
	}

	opts := []link.Option{link.WithScheme(s), link.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		pub, err := notify.NewRedis(ctx, notify.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, logger)
		if err != nil {
			// Events are optional; the doorbell still rings without them.
			logger.Warn("notify: disabled", "err", err)
		} else {
			defer pub.Close()
			opts = append(opts, link.WithObserver(pub))
		}
	}

	sup := link.NewSupervisor(port, bank, opts...)
	go forwardStdin(sup)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return sup.Run(runCtx)
	})
	if cfg.MIDI.Enabled {
		drv, err := rtmididrv.New()
		if err != nil {
			logger.Warn("midi: disabled", "err", err)
		} else {
			w := midikeys.NewWatcher(drv, bank,
				midikeys.KeyMap{Base: cfg.MIDI.BaseNote.Pitch, Keys: bank.Len()},
				midikeys.Selector{Preferred: cfg.MIDI.Preferred, Excluded: cfg.MIDI.Excluded},
				cfg.MIDI.Rescan, logger)
			logger.Info("midi: waiting for device", "base_note", cfg.MIDI.BaseNote)
			g.Go(func() error { return w.Run(runCtx) })
		}
	}

	logger.Info("running", "link", sup.ID())
	return g.Wait()
}

func sinkFactory(cfg *config.Config) (piano.SinkFactory, error) {
	switch cfg.Audio.Backend {
	case config.BackendOto:
		octx, err := sound.NewOtoContext()
		if err != nil {
			return nil, err
		}
		return func(id int, wave tone.Waveform) (piano.Sink, error) {
			s, err := octx.NewSink(id, wave)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case config.BackendWAV:
		if err := os.MkdirAll(cfg.Audio.WAVDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %v", cfg.Audio.WAVDir)
		}
		return func(id int, _ tone.Waveform) (piano.Sink, error) {
			s, err := sound.NewWAVSink(cfg.Audio.WAVDir, id)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case config.BackendNull:
		return func(id int, _ tone.Waveform) (piano.Sink, error) {
			return sound.NewDiscard(id, logger), nil
		}, nil
	}
	return nil, errors.Errorf("unknown audio backend %q", cfg.Audio.Backend)
}

func render(cfg *config.Config, dir string, seconds float64) error {
	waves := make([]tone.Waveform, len(cfg.Keys))
	for i, f := range cfg.Frequencies() {
		w, err := tone.Generate(f)
		if err != nil {
			return errors.Wrapf(err, "key %d", i+1)
		}
		waves[i] = w
	}
	paths, err := sound.RenderKeys(dir, waves, seconds)
	if err != nil {
		return err
	}
	for i, p := range paths {
		logger.Info("render: wrote", "key", i+1, "note", cfg.Keys[i], "path", p)
	}
	return nil
}

// forwardStdin sends each line typed on stdin to the sensor board.
func forwardStdin(sup *link.Supervisor) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if err := sup.SendText(sc.Text()); err != nil {
			logger.Warn("link: send failed", "err", err)
		}
	}
}
