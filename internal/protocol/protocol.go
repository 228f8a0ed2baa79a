// Package protocol decodes the one-byte key commands sent by the doorbell
// sensor board.
//
// Every byte is a complete command: the sign bit carries the action and the
// rest carries the key index. There is no framing, checksum or escaping, so a
// byte stream is decoded one byte at a time with no state in between.
//
//	0 <= b <= 127     start key b
//	-128 <= b <= -1   stop key |b|
package protocol

import (
	"fmt"
	"strings"

	"github.com/ossrs/go-oryx-lib/errors"
)

// Action is what a command asks a key to do.
type Action uint8

const (
	Start Action = iota
	Stop
)

func (a Action) String() string {
	switch a {
	case Start:
		return "start"
	case Stop:
		return "stop"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Command is the decoded form of one protocol byte. Channel is 1-based; 0 and
// values past the configured key count are legal on the wire but address no key.
type Command struct {
	Channel int
	Action  Action
}

func (c Command) String() string {
	return fmt.Sprintf("%v %d", c.Action, c.Channel)
}

// Scheme selects how the key index is read out of a byte.
type Scheme int

const (
	// SchemeSigned reads the index as the absolute value of the byte taken as
	// a signed 8-bit integer. This is what the sensor firmware sends: key 3 is
	// started with 3 and stopped with -3 (0xFD). Under this scheme 0x83 stops
	// key 125, not key 3.
	SchemeSigned Scheme = iota

	// SchemeSignMagnitude reads the index from the low 7 bits, so key 3 is
	// stopped with 0x83.
	SchemeSignMagnitude
)

// ErrUnknownScheme is returned by ParseScheme for unrecognised names.
var ErrUnknownScheme = errors.New("unknown protocol scheme")

// ErrChannelRange is returned by Encode when a command cannot be represented.
var ErrChannelRange = errors.New("channel out of encodable range")

func (s Scheme) String() string {
	switch s {
	case SchemeSigned:
		return "signed"
	case SchemeSignMagnitude:
		return "sign-magnitude"
	}
	return fmt.Sprintf("scheme(%d)", int(s))
}

// ParseScheme maps a configuration name to a Scheme.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "signed":
		return SchemeSigned, nil
	case "sign-magnitude", "signmagnitude":
		return SchemeSignMagnitude, nil
	}
	return 0, errors.Wrapf(ErrUnknownScheme, "scheme %q", name)
}

// Decode decodes a single byte with SchemeSigned.
func Decode(b byte) Command {
	return SchemeSigned.Decode(b)
}

// DecodeAll decodes every byte of p in order with SchemeSigned.
func DecodeAll(p []byte) []Command {
	return SchemeSigned.AppendDecode(make([]Command, 0, len(p)), p)
}

// Decode decodes a single byte.
func (s Scheme) Decode(b byte) Command {
	action := Action(b >> 7)

	var channel int
	if s == SchemeSignMagnitude {
		channel = int(b & 0x7F)
	} else {
		channel = int(int8(b))
		if channel < 0 {
			channel = -channel
		}
	}

	return Command{Channel: channel, Action: action}
}

// AppendDecode decodes p byte by byte and appends the commands to dst.
func (s Scheme) AppendDecode(dst []Command, p []byte) []Command {
	for _, b := range p {
		dst = append(dst, s.Decode(b))
	}
	return dst
}

// Encode builds the byte for a command. Start accepts channels 0..127; stop
// accepts 1..128 with SchemeSigned and 0..127 with SchemeSignMagnitude.
func (s Scheme) Encode(c Command) (byte, error) {
	switch c.Action {
	case Start:
		if c.Channel < 0 || c.Channel > 127 {
			return 0, errors.Wrapf(ErrChannelRange, "%v", c)
		}
		return byte(c.Channel), nil
	case Stop:
		if s == SchemeSignMagnitude {
			if c.Channel < 0 || c.Channel > 127 {
				return 0, errors.Wrapf(ErrChannelRange, "%v", c)
			}
			return 0x80 | byte(c.Channel), nil
		}
		if c.Channel < 1 || c.Channel > 128 {
			return 0, errors.Wrapf(ErrChannelRange, "%v", c)
		}
		return byte(-c.Channel), nil
	}
	return 0, errors.Errorf("invalid action %v", c.Action)
}

// Encode builds the byte for a command with SchemeSigned.
func Encode(c Command) (byte, error) {
	return SchemeSigned.Encode(c)
}
