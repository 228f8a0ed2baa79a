//go:build !headless

package sound

import (
	"io"

	"github.com/ebitengine/oto/v3"
	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// OtoContext owns the process-wide speaker output. Each key gets its own
// player on the shared context; oto mixes them.
type OtoContext struct {
	ctx *oto.Context
}

// NewOtoContext opens the default audio device for mono 16-bit output at
// tone.SampleRate and waits until it is ready.
func NewOtoContext() (*OtoContext, error) {
	op := &oto.NewContextOptions{
		SampleRate:   tone.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, errors.Wrapf(err, "oto context")
	}
	<-ready

	return &OtoContext{ctx: ctx}, nil
}

// NewSink creates a player for one key. The player reads one waveform at a
// time instead of oto's default half second, see StreamSizes.
func (c *OtoContext) NewSink(id int, wave tone.Waveform) (*OtoSink, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "oto context for key %d", id)
	}
	bufSize, limit := StreamSizes(len(wave.Bytes()))
	q := NewQueue(limit)
	p := c.ctx.NewPlayer(q)
	p.SetBufferSize(bufSize)
	return &OtoSink{id: id, queue: q, player: p}, nil
}

// OtoSink streams one key to the speaker.
type OtoSink struct {
	id     int
	queue  *Queue
	player *oto.Player
}

func (s *OtoSink) Write(p []byte) (int, error) {
	return s.queue.Write(p)
}

func (s *OtoSink) Play() error {
	s.player.Play()
	return errors.Wrapf(s.player.Err(), "oto play key %d", s.id)
}

func (s *OtoSink) Pause() error {
	s.player.Pause()
	return errors.Wrapf(s.player.Err(), "oto pause key %d", s.id)
}

// Flush drops both our queue and whatever the player has already pulled.
func (s *OtoSink) Flush() error {
	s.queue.Reset()
	if _, err := s.player.Seek(0, io.SeekCurrent); err != nil {
		return errors.Wrapf(err, "oto flush key %d", s.id)
	}
	return nil
}

func (s *OtoSink) Release() error {
	s.queue.Close()
	return errors.Wrapf(s.player.Close(), "oto close key %d", s.id)
}
