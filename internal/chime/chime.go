// Package chime plans and plays timed key commands, standing in for the
// sensor board when there is no door to knock on.
package chime

import (
	"container/heap"
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

// Planned is a command due at a point in time.
type Planned struct {
	At  time.Time
	Cmd protocol.Command
	seq int
}

type minHeap []Planned

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].At.Equal(h[j].At) {
		return h[i].seq < h[j].seq
	}
	return h[i].At.Before(h[j].At)
}
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(Planned)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Schedule orders commands by due time. Commands due at the same time keep
// the order they were added in. It is not safe for concurrent use.
type Schedule struct {
	h   minHeap
	seq int
}

// Add plans cmd at t.
func (s *Schedule) Add(at time.Time, cmd protocol.Command) {
	heap.Push(&s.h, Planned{At: at, Cmd: cmd, seq: s.seq})
	s.seq++
}

func (s *Schedule) Len() int { return s.h.Len() }

// Next returns when the earliest command is due.
func (s *Schedule) Next() (time.Time, bool) {
	if s.h.Len() == 0 {
		return time.Time{}, false
	}
	return s.h[0].At, true
}

// Due removes every command due at or before t and appends it to dst.
func (s *Schedule) Due(t time.Time, dst []protocol.Command) []protocol.Command {
	for s.h.Len() > 0 && !t.Before(s.h[0].At) {
		p := heap.Pop(&s.h).(Planned)
		dst = append(dst, p.Cmd)
	}
	return dst
}

// ParseTune parses a comma or space separated list of key numbers, e.g.
// "3,1" for a two-tone ding-dong.
func ParseTune(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) == 0 {
		return nil, errors.Errorf("empty tune %q", s)
	}
	keys := make([]int, 0, len(fields))
	for _, f := range fields {
		k, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "tune %q", s)
		}
		if k < 1 || k > 127 {
			return nil, errors.Errorf("tune %q: key %d out of range 1..127", s, k)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Plan schedules the tune from start: each key starts gap after the previous
// one and is held for hold. The tune is played repeat times, back to back.
func Plan(start time.Time, keys []int, hold, gap time.Duration, repeat int) *Schedule {
	s := &Schedule{}
	at := start
	for r := 0; r < repeat; r++ {
		for _, k := range keys {
			s.Add(at, protocol.Command{Channel: k, Action: protocol.Start})
			s.Add(at.Add(hold), protocol.Command{Channel: k, Action: protocol.Stop})
			at = at.Add(gap)
		}
	}
	return s
}

// Play writes each command as it falls due, checking the schedule every tick,
// until the schedule is empty or ctx is done. Keys still sounding when ctx is
// done are stopped before returning.
func Play(ctx context.Context, w io.Writer, scheme protocol.Scheme, s *Schedule, tick time.Duration, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(tick)
	defer t.Stop()

	sounding := map[int]bool{}
	var due []protocol.Command
	for s.Len() > 0 {
		select {
		case <-ctx.Done():
			return stopSounding(w, scheme, sounding, log)
		case now := <-t.C:
			due = s.Due(now, due[:0])
		}
		for _, cmd := range due {
			if err := send(w, scheme, cmd, log); err != nil {
				return err
			}
			sounding[cmd.Channel] = cmd.Action == protocol.Start
		}
	}
	return nil
}

func stopSounding(w io.Writer, scheme protocol.Scheme, sounding map[int]bool, log *slog.Logger) error {
	for ch, on := range sounding {
		if !on {
			continue
		}
		if err := send(w, scheme, protocol.Command{Channel: ch, Action: protocol.Stop}, log); err != nil {
			return err
		}
	}
	return nil
}

func send(w io.Writer, scheme protocol.Scheme, cmd protocol.Command, log *slog.Logger) error {
	b, err := scheme.Encode(cmd)
	if err != nil {
		return errors.Wrapf(err, "encode %v", cmd)
	}
	if _, err := w.Write([]byte{b}); err != nil {
		return errors.Wrapf(err, "send %v", cmd)
	}
	log.Info("chime: sent", "cmd", cmd, "byte", b)
	return nil
}
