// Package midikeys plays the piano keys from a MIDI keyboard. The watcher
// follows the keyboard across hot-plug and hot-unplug and releases every key
// when the keyboard goes away.
package midikeys

import (
	"strings"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
)

// KeyMap maps MIDI pitches onto piano keys: Base plays key 1, Base+1 plays
// key 2 and so on up to key Keys.
type KeyMap struct {
	Base int
	Keys int
}

// Command returns the command for a note event, or false when the pitch is
// outside the mapped range.
func (k KeyMap) Command(on bool, pitch int) (protocol.Command, bool) {
	ch := pitch - k.Base + 1
	if ch < 1 || ch > k.Keys {
		return protocol.Command{}, false
	}
	action := protocol.Stop
	if on {
		action = protocol.Start
	}
	return protocol.Command{Channel: ch, Action: action}, true
}

// Selector picks which MIDI input to connect to.
type Selector struct {
	// Preferred devices are picked first, in pattern order.
	Preferred []string

	// Excluded devices are never connected, e.g. virtual through ports.
	Excluded []string
}

// Filter drops excluded inputs.
func (s Selector) Filter(names []string) []string {
	var out []string
	for _, name := range names {
		if !s.excluded(name) {
			out = append(out, name)
		}
	}
	return out
}

func (s Selector) excluded(name string) bool {
	for _, pat := range s.Excluded {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

// Pick returns the first input matching a preferred pattern. Without a match
// the only input is picked; with several unmatched inputs nothing is.
func (s Selector) Pick(inputs []string) (string, bool) {
	for _, pat := range s.Preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
