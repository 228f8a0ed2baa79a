package midikeys

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

// Keys is what the watcher plays. piano.Bank implements it.
type Keys interface {
	Dispatch(cmd protocol.Command) error
	StopAll() error
}

// Watcher keeps a connection to the preferred MIDI input and turns its notes
// into key commands.
type Watcher struct {
	mu        sync.Mutex
	drv       drivers.Driver
	inPort    drivers.In
	stopFn    func()
	connected bool
	selected  string

	keys   Keys
	keymap KeyMap
	sel    Selector
	rescan time.Duration
	log    *slog.Logger
}

// NewWatcher watches the inputs of drv. The watcher owns drv and closes it.
func NewWatcher(drv drivers.Driver, keys Keys, keymap KeyMap, sel Selector, rescan time.Duration, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	if rescan <= 0 {
		rescan = time.Second
	}
	return &Watcher{
		drv:    drv,
		keys:   keys,
		keymap: keymap,
		sel:    sel,
		rescan: rescan,
		log:    log,
	}
}

// Run scans for inputs every rescan interval until ctx is done, then closes
// the connection and the driver.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	t := time.NewTicker(w.rescan)
	defer t.Stop()

	w.Scan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Scan()
		}
	}
}

// Connected returns the name of the connected input, if any.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selected, w.connected
}

// Close shuts down the active connection and the driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	if w.drv != nil {
		w.drv.Close()
		w.drv = nil
	}
}

// Scan checks that the connected input is still present, or connects to the
// preferred one.
func (w *Watcher) Scan() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.drv == nil {
		return
	}

	inputs := w.listInputs()

	if w.connected {
		for _, n := range inputs {
			if n == w.selected {
				return
			}
		}
		w.log.Warn("midi: device disappeared", "device", w.selected)
		w.closeConn()
		go w.release()
		return
	}

	name, ok := w.sel.Pick(inputs)
	if !ok {
		return
	}
	if err := w.openByName(name); err != nil {
		w.log.Error("midi: connect failed", "device", name, "err", err)
	}
}

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		w.log.Error("midi: list inputs failed", "err", err)
		return nil
	}
	all := make([]string, 0, len(ins))
	for _, in := range ins {
		all = append(all, in.String())
	}
	names := w.sel.Filter(all)
	w.log.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (w *Watcher) closeConn() {
	if w.stopFn != nil {
		w.stopFn()
		w.stopFn = nil
	}
	if w.inPort != nil {
		_ = w.inPort.Close()
		w.inPort = nil
	}
	w.connected = false
	w.selected = ""
}

func (w *Watcher) openByName(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return errors.Wrapf(err, "list inputs")
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return errors.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return errors.Wrapf(err, "open %q", name)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		w.handle(msg)
	}, midi.HandleError(func(listenErr error) {
		w.log.Warn("midi: listener error", "device", name, "err", listenErr)
		// closeConn stops the listener, so it cannot run on the listener goroutine.
		go w.lost(name)
	}))
	if err != nil {
		_ = found.Close()
		return errors.Wrapf(err, "listen %q", name)
	}

	w.inPort = found
	w.stopFn = stop
	w.connected = true
	w.selected = name
	w.log.Info("midi: connected", "device", name)
	return nil
}

func (w *Watcher) lost(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.connected && w.selected == name {
		w.closeConn()
		go w.release()
	}
}

// handle plays one MIDI message. Notes outside the key map are ignored.
func (w *Watcher) handle(msg midi.Message) {
	var ch, key, vel uint8
	var on bool
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		on = true
		w.log.Debug("midi: note on", "ch", ch, "key", key, "vel", vel)
	case msg.GetNoteEnd(&ch, &key):
		w.log.Debug("midi: note off", "ch", ch, "key", key)
	default:
		w.log.Debug("midi: unhandled message", "msg", msg.String())
		return
	}

	cmd, ok := w.keymap.Command(on, int(key))
	if !ok {
		return
	}
	if err := w.keys.Dispatch(cmd); err != nil {
		w.log.Warn("midi: dispatch failed", "cmd", cmd, "err", err)
	}
}

// release silences every key after the keyboard went away; a held note would
// otherwise never see its note off.
func (w *Watcher) release() {
	if err := w.keys.StopAll(); err != nil {
		w.log.Warn("midi: release keys", "err", err)
	}
}
