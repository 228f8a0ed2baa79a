package link

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Transport is an open link to the sensor board.
type Transport interface {
	io.ReadWriter
	Close() error
}

// Keys is what the supervisor tears down before the transport.
type Keys interface {
	Target
	StopAll() error
	Close() error
}

// Supervisor owns one open link and the keys it drives.
type Supervisor struct {
	transport Transport
	keys      Keys
	disp      *Dispatcher
	log       *slog.Logger

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

func NewSupervisor(t Transport, keys Keys, opts ...Option) *Supervisor {
	o := newOptions(opts)
	return &Supervisor{
		transport: t,
		keys:      keys,
		disp:      newDispatcher(t, keys, o),
		log:       o.logger.With("link", o.id),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the link id.
func (s *Supervisor) ID() string { return s.disp.ID() }

// Run dispatches until the link fails, ctx is done or Disconnect is called,
// then stops and closes the keys, closes the transport and waits for the
// reader to exit. It returns the link error, or nil for a requested shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- s.disp.Run(rctx)
	}()

	var linkErr error
	readerDone := false
	select {
	case err := <-errc:
		readerDone = true
		if ctx.Err() != nil {
			s.log.Info("link: shutting down", "reason", ctx.Err())
			break
		}
		linkErr = err
		s.log.Error("link: lost", "err", linkErr)
	case <-ctx.Done():
		s.log.Info("link: shutting down", "reason", ctx.Err())
	case <-s.quit:
		s.log.Info("link: disconnect requested")
	}
	cancel()

	if err := s.keys.StopAll(); err != nil {
		s.log.Warn("link: stop keys", "err", err)
	}
	if err := s.keys.Close(); err != nil {
		s.log.Warn("link: close keys", "err", err)
	}
	if err := s.transport.Close(); err != nil {
		s.log.Warn("link: close transport", "err", err)
	}
	if !readerDone {
		<-errc
	}

	s.log.Info("link: closed")
	return linkErr
}

// Disconnect asks Run to shut down. It never blocks, so it may be called from
// any goroutine, including observers and dispatch targets.
func (s *Supervisor) Disconnect() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Done is closed once Run has torn everything down.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// SendText writes one line of text to the sensor board.
func (s *Supervisor) SendText(msg string) error {
	if err := SendText(s.transport, msg); err != nil {
		return err
	}
	s.log.Info("link: text sent", "bytes", len(msg)+1)
	return nil
}
