package protocol

import (
	"testing"

	"github.com/ossrs/go-oryx-lib/errors"
)

func TestDecodeRoundTrip(t *testing.T) {
	for k := 1; k <= 127; k++ {
		if got := Decode(byte(k)); got != (Command{k, Start}) {
			t.Fatalf("Decode(%d) = %v, want start %d", k, got, k)
		}
		neg := int8(-k)
		if got := Decode(byte(neg)); got != (Command{k, Stop}) {
			t.Fatalf("Decode(%d) = %v, want stop %d", neg, got, k)
		}
	}
	if got := Decode(0); got != (Command{0, Start}) {
		t.Fatalf("Decode(0) = %v", got)
	}
	if got := Decode(0x80); got != (Command{128, Stop}) {
		t.Fatalf("Decode(-128) = %v", got)
	}
}

func TestDecodeAll(t *testing.T) {
	got := DecodeAll([]byte{0x03, 0xFD, 0x07, 0x00})
	want := []Command{{3, Start}, {3, Stop}, {7, Start}, {0, Start}}
	if len(got) != len(want) {
		t.Fatalf("got %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %v, want %v", i, got[i], want[i])
		}
	}
	if n := len(DecodeAll(nil)); n != 0 {
		t.Fatalf("empty input decoded to %d commands", n)
	}
}

func TestSignMagnitude(t *testing.T) {
	s := SchemeSignMagnitude
	if got := s.Decode(0x03); got != (Command{3, Start}) {
		t.Fatalf("Decode(0x03) = %v", got)
	}
	if got := s.Decode(0x83); got != (Command{3, Stop}) {
		t.Fatalf("Decode(0x83) = %v", got)
	}
	// The same byte under the signed scheme addresses key 125.
	if got := SchemeSigned.Decode(0x83); got != (Command{125, Stop}) {
		t.Fatalf("signed Decode(0x83) = %v", got)
	}
}

func TestEncode(t *testing.T) {
	for _, s := range []Scheme{SchemeSigned, SchemeSignMagnitude} {
		for k := 1; k <= 127; k++ {
			for _, a := range []Action{Start, Stop} {
				c := Command{k, a}
				b, err := s.Encode(c)
				if err != nil {
					t.Fatalf("%v: encode %v: %v", s, c, err)
				}
				if got := s.Decode(b); got != c {
					t.Fatalf("%v: %v encoded to %#x decodes to %v", s, c, b, got)
				}
			}
		}
	}

	bad := []Command{{-1, Start}, {128, Start}, {0, Stop}, {129, Stop}}
	for _, c := range bad {
		if _, err := Encode(c); errors.Cause(err) != ErrChannelRange {
			t.Errorf("Encode(%v) err = %v, want ErrChannelRange", c, err)
		}
	}
	if _, err := Encode(Command{1, Action(7)}); err == nil {
		t.Errorf("invalid action encoded")
	}
}

func TestParseScheme(t *testing.T) {
	cases := map[string]Scheme{
		"":               SchemeSigned,
		"signed":         SchemeSigned,
		"Sign-Magnitude": SchemeSignMagnitude,
	}
	for name, want := range cases {
		got, err := ParseScheme(name)
		if err != nil || got != want {
			t.Errorf("ParseScheme(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseScheme("zigzag"); errors.Cause(err) != ErrUnknownScheme {
		t.Errorf("ParseScheme(zigzag) err = %v", err)
	}
}
