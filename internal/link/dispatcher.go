// Package link connects the sensor board's byte stream to the piano keys.
//
// A Dispatcher reads the stream and routes decoded commands. A Supervisor
// owns one open link: it runs the Dispatcher and, when the link fails or is
// asked to disconnect, tears down the keys before the transport from its own
// goroutine, never from the reader.
package link

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

// Target receives decoded commands. piano.Bank implements it.
type Target interface {
	Dispatch(cmd protocol.Command) error
}

// Observer is told about every decoded command after it was dispatched.
// It must not block.
type Observer interface {
	Observe(ctx context.Context, link string, cmd protocol.Command)
}

const readBufferSize = 64

// Option configures a Dispatcher or Supervisor.
type Option func(*options)

type options struct {
	id        string
	scheme    protocol.Scheme
	observers []Observer
	logger    *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	return o
}

// WithID names the link in logs and events. By default a random UUID is used.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithScheme selects how bytes are decoded. The default is protocol.SchemeSigned.
func WithScheme(s protocol.Scheme) Option {
	return func(o *options) { o.scheme = s }
}

// WithObserver adds an observer of dispatched commands.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Dispatcher decodes a byte stream and routes each command to a Target.
type Dispatcher struct {
	id        string
	src       io.Reader
	target    Target
	scheme    protocol.Scheme
	observers []Observer
	log       *slog.Logger
}

func NewDispatcher(src io.Reader, target Target, opts ...Option) *Dispatcher {
	return newDispatcher(src, target, newOptions(opts))
}

func newDispatcher(src io.Reader, target Target, o options) *Dispatcher {
	return &Dispatcher{
		id:        o.id,
		src:       src,
		target:    target,
		scheme:    o.scheme,
		observers: o.observers,
		log:       o.logger.With("link", o.id),
	}
}

// ID returns the link id.
func (d *Dispatcher) ID() string { return d.id }

// Run reads until the source fails or ctx is done. A read that returns no
// data and no error (a read timeout) just re-checks ctx. Failed dispatches
// are logged and do not stop the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	buf := make([]byte, readBufferSize)
	cmds := make([]protocol.Command, 0, readBufferSize)

	d.log.Info("link: listening", "scheme", d.scheme)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := d.src.Read(buf)
		if n > 0 {
			cmds = d.scheme.AppendDecode(cmds[:0], buf[:n])
			for _, cmd := range cmds {
				d.dispatch(ctx, cmd)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrapf(err, "read link %v", d.id)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd protocol.Command) {
	d.log.Debug("link: command", "channel", cmd.Channel, "action", cmd.Action)
	if err := d.target.Dispatch(cmd); err != nil {
		d.log.Warn("link: dispatch failed", "cmd", cmd, "err", err)
	}
	for _, obs := range d.observers {
		obs.Observe(ctx, d.id, cmd)
	}
}

// SendText writes msg as one line over the link.
func SendText(w io.Writer, msg string) error {
	if _, err := io.WriteString(w, msg+"\n"); err != nil {
		return errors.Wrapf(err, "send text")
	}
	return nil
}
