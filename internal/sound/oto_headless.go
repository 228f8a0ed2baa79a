//go:build headless

package sound

import (
	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// ErrNoSpeaker is returned when the binary was built without speaker support.
var ErrNoSpeaker = errors.New("built with the headless tag; use the wav or null backend")

type OtoContext struct{}

func NewOtoContext() (*OtoContext, error) {
	return nil, ErrNoSpeaker
}

func (c *OtoContext) NewSink(id int, wave tone.Waveform) (*Discard, error) {
	return nil, ErrNoSpeaker
}
