package piano

import (
	"testing"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

var sixKeys = []float64{440.00, 466.16, 493.88, 523.25, 554.37, 587.33}

func openTestBank(t *testing.T, sinks *fakeSinks, opts ...Option) *Bank {
	t.Helper()
	b, err := Open(sixKeys, sinks.factory, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func expectStates(t *testing.T, b *Bank, want ...State) {
	t.Helper()
	got := b.States()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestBankStartStopByByte(t *testing.T) {
	sinks := newFakeSinks()
	b := openTestBank(t, sinks, WithRefillInterval(slowRefill))

	if b.Len() != 6 {
		t.Fatalf("len = %d", b.Len())
	}

	if err := b.Dispatch(protocol.Decode(0x03)); err != nil {
		t.Fatalf("dispatch start: %v", err)
	}
	expectStates(t, b, Idle, Idle, Playing, Idle, Idle, Idle)

	if err := b.Dispatch(protocol.Decode(0xFD)); err != nil {
		t.Fatalf("dispatch stop: %v", err)
	}
	expectStates(t, b, Idle, Idle, Stopped, Idle, Idle, Idle)

	equalCalls(t, sinks.get(3).snapshot(), "write", "play", "pause", "flush")
	for _, id := range []int{1, 2, 4, 5, 6} {
		equalCalls(t, sinks.get(id).snapshot())
	}
}

func TestBankSignMagnitudeStop(t *testing.T) {
	sinks := newFakeSinks()
	b := openTestBank(t, sinks, WithRefillInterval(slowRefill))
	s := protocol.SchemeSignMagnitude

	b.Dispatch(s.Decode(0x03))
	b.Dispatch(s.Decode(0x83))
	expectStates(t, b, Idle, Idle, Stopped, Idle, Idle, Idle)
}

func TestBankIgnoresUnknownKeys(t *testing.T) {
	sinks := newFakeSinks()
	b := openTestBank(t, sinks, WithRefillInterval(slowRefill))

	for _, raw := range []byte{0x07, 0x00, 0x7F, 0x80, 0xF9} {
		if err := b.Dispatch(protocol.Decode(raw)); err != nil {
			t.Fatalf("dispatch %#x: %v", raw, err)
		}
	}
	expectStates(t, b, Idle, Idle, Idle, Idle, Idle, Idle)
	for id := 1; id <= 6; id++ {
		equalCalls(t, sinks.get(id).snapshot())
	}
	if b.Channel(0) != nil || b.Channel(7) != nil || b.Channel(1) == nil {
		t.Fatalf("channel lookup does not match 1..6")
	}
}

func TestBankClose(t *testing.T) {
	sinks := newFakeSinks()
	b, err := Open(sixKeys, sinks.factory, WithRefillInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	b.Dispatch(protocol.Command{Channel: 2, Action: protocol.Start})
	b.Dispatch(protocol.Command{Channel: 5, Action: protocol.Start})
	waitFor(t, "refills", func() bool {
		return sinks.get(2).writeCount() > 2 && sinks.get(5).writeCount() > 2
	})

	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	expectStates(t, b, Terminated, Terminated, Terminated, Terminated, Terminated, Terminated)
	for id := 1; id <= 6; id++ {
		select {
		case <-b.Channel(id).done:
		default:
			t.Fatalf("key %d goroutine still running", id)
		}
	}

	counts := map[int]int{}
	for id := 1; id <= 6; id++ {
		counts[id] = len(sinks.get(id).snapshot())
	}
	time.Sleep(10 * time.Millisecond)
	for id := 1; id <= 6; id++ {
		s := sinks.get(id)
		if n := len(s.snapshot()); n != counts[id] {
			t.Fatalf("key %d sink used after close", id)
		}
		if s.lateCalls() != 0 {
			t.Fatalf("key %d: calls after release", id)
		}
	}

	// Dispatch after close is harmless.
	if err := b.Dispatch(protocol.Decode(0x02)); err != nil {
		t.Fatalf("dispatch after close: %v", err)
	}
}

func TestBankStopAll(t *testing.T) {
	sinks := newFakeSinks()
	b := openTestBank(t, sinks, WithRefillInterval(slowRefill))

	for _, id := range []int{1, 4, 6} {
		b.Dispatch(protocol.Command{Channel: id, Action: protocol.Start})
	}
	if err := b.StopAll(); err != nil {
		t.Fatalf("stop all: %v", err)
	}
	expectStates(t, b, Stopped, Idle, Idle, Stopped, Idle, Stopped)
}

func TestBankSurfacesSinkErrors(t *testing.T) {
	sinks := newFakeSinks()
	b := openTestBank(t, sinks, WithRefillInterval(slowRefill))

	s := sinks.get(2)
	s.mu.Lock()
	s.failPlay = errDevice
	s.mu.Unlock()

	err := b.Dispatch(protocol.Command{Channel: 2, Action: protocol.Start})
	if errors.Cause(err) != errDevice {
		t.Fatalf("err = %v, want device error", err)
	}
	expectStates(t, b, Idle, Idle)
}

func TestOpenFailureReleasesBuiltKeys(t *testing.T) {
	sinks := newFakeSinks()
	_, err := Open([]float64{440, 466.16, 0.5, 523.25}, sinks.factory)
	if errors.Cause(err) != tone.ErrFrequency {
		t.Fatalf("err = %v, want ErrFrequency", err)
	}
	for _, id := range []int{1, 2} {
		equalCalls(t, sinks.get(id).snapshot(), "release")
	}
	if sinks.get(3) != nil {
		t.Fatalf("sink created for invalid key")
	}

	failing := func(id int, w tone.Waveform) (Sink, error) {
		if id == 2 {
			return nil, errDevice
		}
		return sinks.factory(id+10, w)
	}
	if _, err := Open(sixKeys, failing); errors.Cause(err) != errDevice {
		t.Fatalf("err = %v, want device error", err)
	}
	equalCalls(t, sinks.get(11).snapshot(), "release")
}
