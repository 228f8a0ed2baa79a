// Package sound provides the audio sinks a piano key can play through.
package sound

import (
	"io"
	"sync"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// ErrReleased is returned by writes to a released sink.
var ErrReleased = errors.New("sink released")

// StreamRefill is the refill interval for keys feeding a queue-backed sink.
// It is shorter than a waveform so the blocking Write, not the ticker, paces
// the key and the queue stays full.
const StreamRefill = tone.BufferDuration / 2

// StreamSizes returns the player read size and the queue limit for a
// waveform of waveBytes bytes. The player pulls one waveform per read and the
// queue holds three, so a read always finds whole waveforms queued.
func StreamSizes(waveBytes int) (playerBuffer, queueLimit int) {
	return waveBytes, 3 * waveBytes
}

// Queue is a bounded PCM byte queue. A streaming player pulls from it with
// Read while the owning key pushes with Write. Write blocks while the queue
// is full, pacing the writer to the playback rate; Read never blocks and pads
// with silence so the player does not see the end of the stream.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	limit  int
	closed bool
}

// NewQueue creates a queue holding at most limit bytes. A single write larger
// than limit is still accepted once the queue is empty.
func NewQueue(limit int) *Queue {
	q := &Queue{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write appends p, waiting for room.
func (q *Queue) Write(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && len(q.buf) > 0 && len(q.buf)+len(p) > q.limit {
		q.cond.Wait()
	}
	if q.closed {
		return 0, ErrReleased
	}
	q.buf = append(q.buf, p...)
	return len(p), nil
}

// Read fills p from the queue. On an underrun the rest of p is zero samples,
// so the player keeps running instead of reaching the end of the stream.
func (q *Queue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, io.EOF
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	clear(p[n:])
	if n > 0 {
		q.cond.Broadcast()
	}
	return len(p), nil
}

// Seek discards everything queued. Players call it to drop their own
// buffered data; only a rewind to the current position is meaningful.
func (q *Queue) Seek(offset int64, whence int) (int64, error) {
	q.Reset()
	return 0, nil
}

// Reset discards everything queued and wakes blocked writers.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = q.buf[:0]
	q.cond.Broadcast()
}

// Len returns the number of queued bytes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Close fails pending and future writes and ends the stream for readers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buf = nil
	q.cond.Broadcast()
	return nil
}
