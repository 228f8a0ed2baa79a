package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

type published struct {
	channel string
	message string
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
	fail bool
}

func (r *recorder) publish(_ context.Context, channel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("connection refused")
	}
	r.msgs = append(r.msgs, published{channel, message})
	return nil
}

func TestPublishesEventJSON(t *testing.T) {
	rec := &recorder{}
	p := New("doorbell", rec.publish, nil)
	at := time.Date(2024, 12, 24, 18, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	p.Observe(context.Background(), "porch", protocol.Command{Channel: 3, Action: protocol.Start})
	p.Observe(context.Background(), "porch", protocol.Command{Channel: 3, Action: protocol.Stop})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(rec.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(rec.msgs))
	}
	for i, action := range []string{protocol.Start.String(), protocol.Stop.String()} {
		m := rec.msgs[i]
		if m.channel != "doorbell" {
			t.Fatalf("message %d on channel %q", i, m.channel)
		}
		var ev Event
		if err := json.Unmarshal([]byte(m.message), &ev); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
		want := Event{Link: "porch", Channel: 3, Action: action, At: at}
		if ev.Link != want.Link || ev.Channel != want.Channel || ev.Action != want.Action || !ev.At.Equal(at) {
			t.Fatalf("event %d = %+v, want %+v", i, ev, want)
		}
	}
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	rec := &recorder{fail: true}
	p := New("doorbell", rec.publish, nil)
	p.Observe(context.Background(), "porch", protocol.Command{Channel: 1, Action: protocol.Start})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.msgs) != 0 {
		t.Fatalf("published %v", rec.msgs)
	}
}

func TestObserveNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	p := New("doorbell", func(ctx context.Context, _, _ string) error {
		<-release
		return nil
	}, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*3; i++ {
			p.Observe(context.Background(), "porch", protocol.Command{Channel: 1, Action: protocol.Start})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Observe blocked on a stuck publisher")
	}
	close(release)
	p.Close()
}

func TestCloseIsIdempotent(t *testing.T) {
	closes := 0
	p := New("doorbell", (&recorder{}).publish, nil)
	p.closeFn = func() error { closes++; return nil }
	p.Close()
	p.Close()
	if closes != 1 {
		t.Fatalf("connection closed %d times", closes)
	}
}
