// Package tone generates the loopable 16-bit PCM buffers played by each piano key.
package tone

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/ossrs/go-oryx-lib/errors"
)

const (
	// SampleRate is the fixed output rate of every waveform, in samples per second.
	SampleRate = 8000

	// BufferDuration is the target length of one waveform. The actual length is
	// rounded to a whole number of cycles.
	BufferDuration = 100 * time.Millisecond

	maxAmplitude = math.MaxInt16
)

// ErrFrequency is returned for frequencies the generator cannot scale, i.e.
// anything not strictly above 1 Hz.
var ErrFrequency = errors.New("frequency must be finite and above 1 Hz")

// Waveform is an immutable mono buffer of signed 16-bit samples spanning a
// whole number of cycles, so it can be played back to back without a click.
type Waveform struct {
	frequency float64
	cycles    int
	samples   []int16
	pcm       []byte
}

// Frequency returns the tone frequency in Hz.
func (w Waveform) Frequency() float64 { return w.frequency }

// Cycles returns how many whole periods the buffer spans.
func (w Waveform) Cycles() int { return w.cycles }

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.samples) }

// Duration returns the playback length of one buffer at SampleRate.
func (w Waveform) Duration() time.Duration {
	return time.Duration(len(w.samples)) * time.Second / SampleRate
}

// Bytes returns the little-endian PCM encoding. The slice is shared and must
// not be modified.
func (w Waveform) Bytes() []byte { return w.pcm }

// Samples returns a copy of the quantized samples.
func (w Waveform) Samples() []int16 {
	out := make([]int16, len(w.samples))
	copy(out, w.samples)
	return out
}

// Amplitude is the peak level used for a tone. Lower notes are louder to
// compensate for the small speakers the device plays through.
func Amplitude(frequency float64) float64 {
	return math.Min(maxAmplitude, maxAmplitude*5/math.Log(frequency))
}

// Generate builds the waveform for a frequency. The same input always yields
// byte-identical output.
func Generate(frequency float64) (Waveform, error) {
	if math.IsNaN(frequency) || math.IsInf(frequency, 0) || frequency <= 1 {
		return Waveform{}, errors.Wrapf(ErrFrequency, "generate %v Hz", frequency)
	}

	// Whole cycles only, so the end of the buffer meets its start.
	cycles := int(math.Round(frequency * BufferDuration.Seconds()))
	if cycles < 1 {
		cycles = 1
	}
	period := SampleRate / frequency
	n := int(math.Round(float64(cycles) * period))
	if n < 1 {
		n = 1
	}

	amplitude := Amplitude(frequency)
	samples := make([]int16, n)
	pcm := make([]byte, 2*n)
	for i := range samples {
		v := math.Round(math.Sin(2*math.Pi*float64(i)/period) * amplitude)
		samples[i] = clamp(v)
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(samples[i]))
	}

	return Waveform{
		frequency: frequency,
		cycles:    cycles,
		samples:   samples,
		pcm:       pcm,
	}, nil
}

func clamp(v float64) int16 {
	if v > maxAmplitude {
		return maxAmplitude
	}
	if v < -maxAmplitude {
		return -maxAmplitude
	}
	return int16(v)
}
