package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Log output formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Config is the top-level configuration structure for the frame inspector.
type Config struct {
	Decoder   *DecoderConfig   `json:"decoder,omitempty" toml:"decoder,omitempty"`
	Inspector *InspectorConfig `json:"inspector,omitempty" toml:"inspector,omitempty"`
	Logging   *LoggingConfig   `json:"logging,omitempty" toml:"logging,omitempty"`

	originalFilePath string
}

// OriginalFilePath returns the path the configuration was loaded from, if any.
func (c *Config) OriginalFilePath() string {
	if c == nil {
		return ""
	}
	return c.originalFilePath
}

// DecoderConfig sizes the frame decoder.
type DecoderConfig struct {
	// MaxFrameSize is the largest accepted frame payload (SETTINGS_MAX_FRAME_SIZE).
	MaxFrameSize *uint32 `json:"max_frame_size,omitempty" toml:"max_frame_size,omitempty"`
	// BufferLen is the fixed capacity of the decoder buffer. It must hold a
	// frame header plus a MaxFrameSize payload.
	BufferLen *int `json:"buffer_len,omitempty" toml:"buffer_len,omitempty"`
}

// InspectorConfig controls how connections are read and reported.
type InspectorConfig struct {
	ListenAddress   *string   `json:"listen_address,omitempty" toml:"listen_address,omitempty"`
	ExpectPreface   *bool     `json:"expect_preface,omitempty" toml:"expect_preface,omitempty"`
	IdleBackoff     *Duration `json:"idle_backoff,omitempty" toml:"idle_backoff,omitempty"` // e.g., "5ms"
	PollTimeout     *Duration `json:"poll_timeout,omitempty" toml:"poll_timeout,omitempty"` // e.g., "10ms"
	MaxFrames       *int      `json:"max_frames,omitempty" toml:"max_frames,omitempty"`
	DecodeHeaders   *bool     `json:"decode_headers,omitempty" toml:"decode_headers,omitempty"`
	HeaderTableSize *uint32   `json:"header_table_size,omitempty" toml:"header_table_size,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel LogLevel        `json:"log_level,omitempty" toml:"log_level,omitempty"`
	ErrorLog *ErrorLogConfig `json:"error_log,omitempty" toml:"error_log,omitempty"`
	FrameLog *FrameLogConfig `json:"frame_log,omitempty" toml:"frame_log,omitempty"`
}

// ErrorLogConfig configures the diagnostic log.
type ErrorLogConfig struct {
	Target string `json:"target,omitempty" toml:"target,omitempty"`
	Format string `json:"format,omitempty" toml:"format,omitempty"`
}

// FrameLogConfig configures the per-frame record log.
type FrameLogConfig struct {
	Enabled *bool  `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target  string `json:"target,omitempty" toml:"target,omitempty"`
}

// Duration is a time.Duration that (un)marshals from strings like "250ms".
type Duration struct {
	d time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) *Duration { return &Duration{d: d} }

// Value returns the wrapped time.Duration.
func (d Duration) Value() time.Duration { return d.d }

func (d Duration) String() string { return d.d.String() }

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.d = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.d.String()), nil
}

// UnmarshalJSON accepts a duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.d.String())
}
