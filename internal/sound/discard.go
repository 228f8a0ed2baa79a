package sound

import (
	"log/slog"
	"sync/atomic"
)

// Discard is a sink that plays nothing. It logs transitions at debug level,
// which is enough to follow the doorbell on a machine without a speaker.
type Discard struct {
	id      int
	log     *slog.Logger
	written atomic.Int64
}

// NewDiscard returns a silent sink for key id.
func NewDiscard(id int, log *slog.Logger) *Discard {
	if log == nil {
		log = slog.Default()
	}
	return &Discard{id: id, log: log.With("key", id)}
}

// Written reports how many bytes have been fed since creation.
func (d *Discard) Written() int64 { return d.written.Load() }

func (d *Discard) Write(p []byte) (int, error) {
	d.written.Add(int64(len(p)))
	return len(p), nil
}

func (d *Discard) Play() error {
	d.log.Debug("sound: play")
	return nil
}

func (d *Discard) Pause() error {
	d.log.Debug("sound: pause")
	return nil
}

func (d *Discard) Flush() error { return nil }

func (d *Discard) Release() error {
	d.log.Debug("sound: release", "bytes", d.Written())
	return nil
}
