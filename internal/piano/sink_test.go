package piano

import (
	"sync"
	"testing"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// fakeSink records every call made to it.
type fakeSink struct {
	mu       sync.Mutex
	calls    []string
	writes   int
	released bool
	late     int // calls made after Release

	failPlay  error
	failPause error
	failFlush error
}

func (s *fakeSink) record(name string) {
	if s.released {
		s.late++
	}
	s.calls = append(s.calls, name)
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("write")
	s.writes++
	return len(p), nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("play")
	return s.failPlay
}

func (s *fakeSink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("pause")
	return s.failPause
}

func (s *fakeSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("flush")
	return s.failFlush
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("release")
	s.released = true
	return nil
}

func (s *fakeSink) fail(play, flush error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPlay = play
	s.failFlush = flush
}

func (s *fakeSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeSink) lateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.late
}

// fakeSinks hands out one fakeSink per key and remembers them by id.
type fakeSinks struct {
	mu    sync.Mutex
	sinks map[int]*fakeSink
}

func newFakeSinks() *fakeSinks {
	return &fakeSinks{sinks: map[int]*fakeSink{}}
}

func (f *fakeSinks) factory(id int, _ tone.Waveform) (Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSink{}
	f.sinks[id] = s
	return s, nil
}

func (f *fakeSinks) get(id int) *fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[id]
}

var errDevice = errors.New("device gone")

func equalCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
