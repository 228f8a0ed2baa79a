// Package piano plays the doorbell's keys. Each key is a Channel with its own
// tone, its own audio sink and its own goroutine; a Bank addresses them by
// 1-based index.
package piano

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// Sink is the audio output a Channel feeds. A Channel calls it from a single
// goroutine only.
type Sink interface {
	// Write queues PCM data. It may block until the device has room.
	Write(p []byte) (int, error)
	// Play starts or resumes output of queued data.
	Play() error
	// Pause halts output, keeping queued data.
	Pause() error
	// Flush discards queued data that has not been played.
	Flush() error
	// Release frees the device. The sink is not used afterwards.
	Release() error
}

// State is the lifecycle position of a Channel.
type State int32

const (
	Idle State = iota
	Playing
	Stopped
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type op int

const (
	opPlay op = iota
	opStop
	opTerminate
)

type request struct {
	op    op
	reply chan error
}

// Channel is one playable key.
//
// Play, Stop and Terminate are requests to the channel's goroutine, which is
// the only code touching the sink. While playing, the goroutine re-writes the
// waveform once per waveform duration so a streaming sink never runs dry.
type Channel struct {
	id       int
	wave     tone.Waveform
	sink     Sink
	interval time.Duration
	log      *slog.Logger

	// mu serialises callers so that at most one request is in flight.
	mu         sync.Mutex
	started    bool
	terminated bool

	state atomic.Int32
	reqs  chan request
	done  chan struct{}
}

// NewChannel generates the tone for frequency and binds it to sink. The
// goroutine is started by the first Play.
func NewChannel(id int, frequency float64, sink Sink, opts ...Option) (*Channel, error) {
	wave, err := tone.Generate(frequency)
	if err != nil {
		return nil, errors.Wrapf(err, "key %d", id)
	}
	return newChannel(id, wave, sink, newOptions(opts)), nil
}

func newChannel(id int, wave tone.Waveform, sink Sink, o options) *Channel {
	interval := o.refill
	if interval <= 0 {
		interval = wave.Duration()
	}

	c := &Channel{
		id:       id,
		wave:     wave,
		sink:     sink,
		interval: interval,
		log:      o.logger.With("key", id),
		reqs:     make(chan request),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(Idle))
	return c
}

// ID returns the 1-based key index.
func (c *Channel) ID() int { return c.id }

// Waveform returns the generated tone.
func (c *Channel) Waveform() tone.Waveform { return c.wave }

// State returns the current lifecycle state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Play starts the tone. It is a no-op when already playing or terminated.
func (c *Channel) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated || c.State() == Playing {
		return nil
	}
	if !c.started {
		c.started = true
		go c.run()
	}
	return c.call(opPlay)
}

// Stop silences the tone and drops anything still buffered, so the next Play
// starts cleanly. It is a no-op unless playing.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminated || c.State() != Playing {
		return nil
	}
	return c.call(opStop)
}

// Terminate stops the tone, releases the sink and waits for the goroutine to
// exit. Later calls wait for the first one to finish and return nil. It must
// not be called from the channel's own goroutine.
func (c *Channel) Terminate() error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		<-c.done
		return nil
	}
	c.terminated = true
	defer c.mu.Unlock()

	if !c.started {
		err := c.sink.Release()
		c.state.Store(int32(Terminated))
		close(c.done)
		c.log.Debug("piano: key terminated", "started", false)
		return errors.Wrapf(err, "release key %d", c.id)
	}

	err := c.call(opTerminate)
	<-c.done
	c.log.Debug("piano: key terminated", "started", true)
	return err
}

func (c *Channel) call(o op) error {
	reply := make(chan error, 1)
	c.reqs <- request{op: o, reply: reply}
	return <-reply
}

func (c *Channel) run() {
	defer close(c.done)

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	refill := func(on bool) {
		if on && ticker == nil {
			ticker = time.NewTicker(c.interval)
			tick = ticker.C
		} else if !on && ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer refill(false)

	for {
		select {
		case req := <-c.reqs:
			switch req.op {
			case opPlay:
				err := c.start()
				refill(err == nil)
				req.reply <- err
			case opStop:
				err := c.stop()
				refill(c.State() == Playing)
				req.reply <- err
			case opTerminate:
				refill(false)
				err := c.stop()
				if rerr := c.sink.Release(); rerr != nil && err == nil {
					err = errors.Wrapf(rerr, "release key %d", c.id)
				}
				c.state.Store(int32(Terminated))
				req.reply <- err
				return
			}
		case <-tick:
			if _, err := c.sink.Write(c.wave.Bytes()); err != nil {
				c.log.Warn("piano: refill failed", "err", err)
			}
		}
	}
}

// start writes one buffer and starts the sink. The state is only changed once
// both succeed.
func (c *Channel) start() error {
	prev := c.State()
	if prev == Playing {
		return nil
	}
	if _, err := c.sink.Write(c.wave.Bytes()); err != nil {
		return errors.Wrapf(err, "write key %d", c.id)
	}
	if err := c.sink.Play(); err != nil {
		return errors.Wrapf(err, "play key %d", c.id)
	}
	c.state.Store(int32(Playing))
	c.log.Debug("piano: key playing", "from", prev)
	return nil
}

// stop pauses and flushes the sink. On failure the key ends up Playing with
// the sink playing, or Stopped with the sink paused, never in between.
func (c *Channel) stop() error {
	if c.State() != Playing {
		return nil
	}
	c.state.Store(int32(Stopped))
	if err := c.sink.Pause(); err != nil {
		c.state.Store(int32(Playing))
		return errors.Wrapf(err, "pause key %d", c.id)
	}
	if err := c.sink.Flush(); err != nil {
		// The sink is already paused: resume it to stay Playing, otherwise
		// the key is left Stopped so a later Play restarts it.
		if perr := c.sink.Play(); perr == nil {
			c.state.Store(int32(Playing))
		} else {
			c.log.Warn("piano: resume after failed flush", "err", perr)
		}
		return errors.Wrapf(err, "flush key %d", c.id)
	}
	c.log.Debug("piano: key stopped")
	return nil
}
