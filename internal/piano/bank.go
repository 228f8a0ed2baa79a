package piano

import (
	"log/slog"

	"github.com/ossrs/go-oryx-lib/errors"
	"golang.org/x/sync/errgroup"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// SinkFactory creates the sink for key id. Every key gets its own sink.
type SinkFactory func(id int, wave tone.Waveform) (Sink, error)

// Bank is the fixed set of keys, addressed 1..N in configuration order.
type Bank struct {
	channels []*Channel
	log      *slog.Logger
}

// Open builds one channel per frequency. If any key fails, the keys built so
// far are terminated and the error is returned.
func Open(frequencies []float64, newSink SinkFactory, opts ...Option) (*Bank, error) {
	o := newOptions(opts)
	b := &Bank{log: o.logger}

	for i, f := range frequencies {
		id := i + 1
		wave, err := tone.Generate(f)
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "key %d", id)
		}
		sink, err := newSink(id, wave)
		if err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "sink for key %d", id)
		}
		b.channels = append(b.channels, newChannel(id, wave, sink, o))
		b.log.Debug("piano: key ready", "key", id, "hz", f, "note_ms", wave.Duration().Milliseconds())
	}

	b.log.Info("piano: bank open", "keys", len(b.channels))
	return b, nil
}

// Len returns the number of keys.
func (b *Bank) Len() int { return len(b.channels) }

// Channel returns key i, or nil when i is outside 1..Len().
func (b *Bank) Channel(i int) *Channel {
	if i < 1 || i > len(b.channels) {
		return nil
	}
	return b.channels[i-1]
}

// States returns the state of every key, index 0 holding key 1.
func (b *Bank) States() []State {
	out := make([]State, len(b.channels))
	for i, c := range b.channels {
		out[i] = c.State()
	}
	return out
}

// Dispatch applies a command. Commands for keys that do not exist are ignored,
// since the wire format can address more keys than are configured.
func (b *Bank) Dispatch(cmd protocol.Command) error {
	c := b.Channel(cmd.Channel)
	if c == nil {
		b.log.Debug("piano: ignoring command for unknown key", "cmd", cmd, "keys", len(b.channels))
		return nil
	}
	switch cmd.Action {
	case protocol.Start:
		return c.Play()
	case protocol.Stop:
		return c.Stop()
	}
	return errors.Errorf("unknown action %v", cmd.Action)
}

// StopAll stops every key, e.g. when the input that was holding them is lost.
func (b *Bank) StopAll() error {
	var first error
	for _, c := range b.channels {
		if err := c.Stop(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close terminates all keys concurrently and returns once every goroutine has
// exited. The first failure is returned.
func (b *Bank) Close() error {
	var g errgroup.Group
	for _, c := range b.channels {
		g.Go(c.Terminate)
	}
	err := g.Wait()
	b.log.Info("piano: bank closed", "keys", len(b.channels))
	return err
}
