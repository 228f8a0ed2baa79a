package sound

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ossrs/go-oryx-lib/errors"

	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

const (
	wavBitDepth = 16
	wavPCM      = 1
)

var wavFormat = &audio.Format{NumChannels: 1, SampleRate: tone.SampleRate}

// IntBuffer converts little-endian 16-bit PCM into a go-audio buffer.
func IntBuffer(pcm []byte) *audio.IntBuffer {
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return &audio.IntBuffer{Format: wavFormat, Data: data, SourceBitDepth: wavBitDepth}
}

// WriteWAV encodes one waveform as a mono 16-bit WAV file. repeat is how
// many times the buffer is looped; values below one write it once.
func WriteWAV(w io.WriteSeeker, wave tone.Waveform, repeat int) error {
	if repeat < 1 {
		repeat = 1
	}
	enc := wav.NewEncoder(w, tone.SampleRate, wavBitDepth, 1, wavPCM)
	buf := IntBuffer(wave.Bytes())
	for i := 0; i < repeat; i++ {
		if err := enc.Write(buf); err != nil {
			return errors.Wrapf(err, "encode %v Hz", wave.Frequency())
		}
	}
	return errors.Wrapf(enc.Close(), "finish %v Hz", wave.Frequency())
}

// KeyFileName is the file a key is rendered or recorded to.
func KeyFileName(dir string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("key-%d.wav", id))
}

// RenderKeys writes every waveform to dir, key 1 first, each looped so the
// file lasts about the given number of seconds.
func RenderKeys(dir string, waves []tone.Waveform, seconds float64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %v", dir)
	}

	var files []string
	for i, wave := range waves {
		name := KeyFileName(dir, i+1)
		repeat := int(math.Round(seconds / wave.Duration().Seconds()))

		f, err := os.Create(name)
		if err != nil {
			return files, errors.Wrapf(err, "create %v", name)
		}
		err = WriteWAV(f, wave, repeat)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "close %v", name)
		}
		if err != nil {
			return files, err
		}
		files = append(files, name)
	}
	return files, nil
}

// WAVSink records what a key is fed into a WAV file instead of playing it.
// Only data written while the sink is playing ends up in the file, in the
// order it was written; pauses are not represented as silence.
type WAVSink struct {
	path     string
	f        *os.File
	enc      *wav.Encoder
	playing  bool
	recorded bool
	pending  []byte
}

// NewWAVSink creates the recording file for key id in dir.
func NewWAVSink(dir string, id int) (*WAVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %v", dir)
	}
	path := KeyFileName(dir, id)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %v", path)
	}
	return &WAVSink{
		path: path,
		f:    f,
		enc:  wav.NewEncoder(f, tone.SampleRate, wavBitDepth, 1, wavPCM),
	}, nil
}

// Path returns the recording file name.
func (s *WAVSink) Path() string { return s.path }

// Write keeps data queued until Play, as a device would.
func (s *WAVSink) Write(p []byte) (int, error) {
	if s.f == nil {
		return 0, ErrReleased
	}
	if !s.playing {
		s.pending = append(s.pending, p...)
		return len(p), nil
	}
	if err := s.enc.Write(IntBuffer(p)); err != nil {
		return 0, errors.Wrapf(err, "record %v", s.path)
	}
	s.recorded = true
	return len(p), nil
}

func (s *WAVSink) Play() error {
	if s.f == nil {
		return ErrReleased
	}
	s.playing = true
	if len(s.pending) == 0 {
		return nil
	}
	pending := s.pending
	s.pending = nil
	_, err := s.Write(pending)
	return err
}

func (s *WAVSink) Pause() error {
	s.playing = false
	return nil
}

func (s *WAVSink) Flush() error {
	s.pending = nil
	return nil
}

func (s *WAVSink) Release() error {
	if s.f == nil {
		return nil
	}
	var err error
	if !s.recorded {
		// A key that never played still gets a valid, empty file.
		err = s.enc.Write(IntBuffer(nil))
	}
	if cerr := s.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f = nil
	return errors.Wrapf(err, "close %v", s.path)
}
