// Package config loads the doorbell configuration from a YAML file, an
// optional .env file and PIANODOORBELL_* environment variables, in that order
// of increasing precedence. Command-line flags are applied on top by main.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ossrs/go-oryx-lib/errors"
	"gopkg.in/yaml.v3"

	"github.com/dabbleparty/pianodoorbell/internal/protocol"
	"github.com/dabbleparty/pianodoorbell/internal/tone"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PIANODOORBELL_"

// Audio backends.
const (
	BackendOto  = "oto"
	BackendWAV  = "wav"
	BackendNull = "null"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete runtime configuration.
type Config struct {
	Debug    bool         `yaml:"debug"`
	Serial   SerialConfig `yaml:"serial"`
	Protocol string       `yaml:"protocol"`
	Keys     []Key        `yaml:"keys"`
	Audio    AudioConfig  `yaml:"audio"`
	MIDI     MIDIConfig   `yaml:"midi"`
	Redis    RedisConfig  `yaml:"redis"`
}

type SerialConfig struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type AudioConfig struct {
	Backend string `yaml:"backend"`

	// WAVDir is where the wav backend records key-N.wav files.
	WAVDir string `yaml:"wav_dir"`
}

type MIDIConfig struct {
	Enabled bool `yaml:"enabled"`

	// BaseNote is the MIDI note that plays key 1; the next semitone plays key 2.
	BaseNote  Key           `yaml:"base_note"`
	Preferred []string      `yaml:"preferred"`
	Excluded  []string      `yaml:"excluded"`
	Rescan    time.Duration `yaml:"rescan"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Key is a tone given either in Hz or as a note name. Pitch is -1 for keys
// given in Hz.
type Key struct {
	Hz    float64
	Pitch int
}

// NoteKey returns the key for a MIDI pitch.
func NoteKey(pitch int) Key {
	return Key{Hz: tone.PitchFrequency(pitch), Pitch: pitch}
}

// ParseKey accepts "440", "466.16" or a note name such as "A#4".
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if hz, err := strconv.ParseFloat(s, 64); err == nil {
		return Key{Hz: hz, Pitch: -1}, nil
	}
	pitch, err := tone.ParsePitch(s)
	if err != nil {
		return Key{}, errors.Wrapf(err, "key %q", s)
	}
	return NoteKey(pitch), nil
}

func (k *Key) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseKey(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*k = parsed
	return nil
}

func (k Key) MarshalYAML() (interface{}, error) {
	if k.Pitch >= 0 {
		return tone.PitchName(k.Pitch), nil
	}
	return k.Hz, nil
}

func (k Key) String() string {
	if k.Pitch >= 0 {
		return tone.PitchName(k.Pitch)
	}
	return strconv.FormatFloat(k.Hz, 'f', -1, 64) + "Hz"
}

// Default returns the stock doorbell configuration: six keys from
// A4 to D5 over a 9600 baud Bluetooth serial port.
func Default() *Config {
	keys := make([]Key, 6)
	for i := range keys {
		keys[i] = NoteKey(tone.ConcertA + i)
	}
	return &Config{
		Serial: SerialConfig{
			Device:      "/dev/rfcomm0",
			Baud:        9600,
			ReadTimeout: 100 * time.Millisecond,
		},
		Protocol: protocol.SchemeSigned.String(),
		Keys:     keys,
		Audio: AudioConfig{
			Backend: BackendOto,
			WAVDir:  "recordings",
		},
		MIDI: MIDIConfig{
			BaseNote:  NoteKey(tone.ConcertA),
			Preferred: []string{"Launchkey", "Novation"},
			Excluded:  []string{"Midi Through", "Through Port", "Dummy"},
			Rescan:    time.Second,
		},
		Redis: RedisConfig{
			Channel: "pianodoorbell",
		},
	}
}

// Load reads path (if not empty) over the defaults, then the .env file
// envFile (if it exists) and the environment.
func Load(path, envFile string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %v", path)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, errors.Wrapf(err, "parse %v", path)
		}
	}

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.Wrapf(err, "load %v", envFile)
			}
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("SERIAL", &c.Serial.Device)
	str("PROTOCOL", &c.Protocol)
	str("AUDIO", &c.Audio.Backend)
	str("WAV_DIR", &c.Audio.WAVDir)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("REDIS_CHANNEL", &c.Redis.Channel)

	if v, ok := lookup(EnvPrefix + "BAUD"); ok {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%vBAUD=%v", EnvPrefix, v)
		}
		c.Serial.Baud = baud
	}
	for _, b := range []struct {
		name string
		dst  *bool
	}{{"DEBUG", &c.Debug}, {"MIDI", &c.MIDI.Enabled}} {
		if v, ok := lookup(EnvPrefix + b.name); ok {
			on, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "%v%v=%v", EnvPrefix, b.name, v)
			}
			*b.dst = on
		}
	}
	if v, ok := lookup(EnvPrefix + "KEYS"); ok {
		keys, err := ParseKeys(v)
		if err != nil {
			return errors.Wrapf(err, "%vKEYS", EnvPrefix)
		}
		c.Keys = keys
	}
	return nil
}

// ParseKeys parses a comma-separated key list, e.g. "A4,A#4,493.88".
func ParseKeys(s string) ([]Key, error) {
	var keys []Key
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Frequencies returns the key frequencies in key order.
func (c *Config) Frequencies() []float64 {
	out := make([]float64, len(c.Keys))
	for i, k := range c.Keys {
		out[i] = k.Hz
	}
	return out
}

// Scheme returns the parsed protocol scheme.
func (c *Config) Scheme() (protocol.Scheme, error) {
	return protocol.ParseScheme(c.Protocol)
}

// Validate checks everything that would otherwise fail late, at open time.
func (c *Config) Validate() error {
	if len(c.Keys) == 0 {
		return errors.Wrapf(ErrInvalid, "no keys")
	}
	if len(c.Keys) > 127 {
		return errors.Wrapf(ErrInvalid, "%d keys, the protocol addresses at most 127", len(c.Keys))
	}
	for i, k := range c.Keys {
		if !(k.Hz > 1) {
			return errors.Wrapf(ErrInvalid, "key %d: %v is not above 1 Hz", i+1, k)
		}
	}
	if _, err := c.Scheme(); err != nil {
		return errors.Wrapf(ErrInvalid, "%v", err)
	}
	switch c.Audio.Backend {
	case BackendOto, BackendNull:
	case BackendWAV:
		if c.Audio.WAVDir == "" {
			return errors.Wrapf(ErrInvalid, "wav backend needs audio.wav_dir")
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown audio backend %q", c.Audio.Backend)
	}
	if c.Serial.Device == "" {
		return errors.Wrapf(ErrInvalid, "no serial device")
	}
	if c.Serial.Baud <= 0 {
		return errors.Wrapf(ErrInvalid, "baud %d", c.Serial.Baud)
	}
	if c.MIDI.Enabled {
		if c.MIDI.BaseNote.Pitch < 0 {
			return errors.Wrapf(ErrInvalid, "midi.base_note must be a note name")
		}
		if c.MIDI.Rescan <= 0 {
			return errors.Wrapf(ErrInvalid, "midi.rescan %v", c.MIDI.Rescan)
		}
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return errors.Wrapf(ErrInvalid, "redis.channel is empty")
	}
	return nil
}
