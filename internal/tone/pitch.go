package tone

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ossrs/go-oryx-lib/errors"
)

// ConcertA is the MIDI pitch of A4, tuned to 440 Hz.
const ConcertA = 69

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var noteOffsets = map[string]int{
	"C": 0, "D": 2, "E": 4, "F": 5, "G": 7, "A": 9, "B": 11,
}

// PitchName renders a MIDI pitch as a note name, e.g. 69 -> "A4".
func PitchName(pitch int) string {
	if pitch < 0 {
		return fmt.Sprintf("?\"%d\"", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], (pitch/12)-1)
}

// PitchFrequency returns the equal-tempered frequency of a MIDI pitch.
func PitchFrequency(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-ConcertA)/12)
}

// ParsePitch parses a note name such as "A4", "C#5" or "Bb3" into a MIDI pitch.
func ParsePitch(name string) (int, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, errors.New("empty note name")
	}

	base, ok := noteOffsets[strings.ToUpper(s[:1])]
	if !ok {
		return 0, errors.Errorf("invalid note %q", name)
	}
	s = s[1:]

	for len(s) > 0 && (s[0] == '#' || s[0] == 'b') {
		if s[0] == '#' {
			base++
		} else {
			base--
		}
		s = s[1:]
	}

	octave, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid octave in note %q", name)
	}

	pitch := (octave+1)*12 + base
	if pitch < 0 || pitch > 127 {
		return 0, errors.Errorf("note %q outside MIDI range", name)
	}
	return pitch, nil
}
