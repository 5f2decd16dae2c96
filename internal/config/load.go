package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultMaxFrameSize     uint32 = 16384
	maxAllowedFrameSize     uint32 = (1 << 24) - 1
	frameHeaderLen                 = 9
	defaultIdleBackoff             = 5 * time.Millisecond
	defaultPollTimeout             = 10 * time.Millisecond
	defaultHeaderTableSize  uint32 = 4096
	defaultLogLevel                = LogLevelInfo
	defaultErrorLogTarget          = "stderr"
	defaultErrorLogFormat          = LogFormatJSON
	defaultFrameLogTarget          = "stdout"
	defaultFrameLogEnabled         = false
	defaultExpectPreface           = false
	defaultDecodeHeaders           = true
	defaultMaxFrames               = 0
	defaultListenAddress           = ""
)

// LoadConfig reads, parses, defaults and validates the configuration file at path.
// The format is chosen by extension (.json, .toml); other extensions are tried
// as JSON first and then TOML.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	cfg, err := Parse(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.originalFilePath = path

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw configuration bytes. ext selects the format (".json" or
// ".toml"); anything else auto-detects.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		jsonErr := json.Unmarshal(data, cfg)
		if jsonErr == nil {
			return cfg, nil
		}
		cfg = &Config{}
		tomlErr := toml.Unmarshal(data, cfg)
		if tomlErr == nil {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to auto-detect and parse config (JSON error: %v; TOML error: %v)", jsonErr, tomlErr)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Decoder == nil {
		cfg.Decoder = &DecoderConfig{}
	}
	if cfg.Decoder.MaxFrameSize == nil {
		v := defaultMaxFrameSize
		cfg.Decoder.MaxFrameSize = &v
	}
	if cfg.Decoder.BufferLen == nil {
		v := frameHeaderLen + int(*cfg.Decoder.MaxFrameSize)
		cfg.Decoder.BufferLen = &v
	}

	if cfg.Inspector == nil {
		cfg.Inspector = &InspectorConfig{}
	}
	in := cfg.Inspector
	if in.ListenAddress == nil {
		v := defaultListenAddress
		in.ListenAddress = &v
	}
	if in.ExpectPreface == nil {
		v := defaultExpectPreface
		in.ExpectPreface = &v
	}
	if in.IdleBackoff == nil {
		in.IdleBackoff = NewDuration(defaultIdleBackoff)
	}
	if in.PollTimeout == nil {
		in.PollTimeout = NewDuration(defaultPollTimeout)
	}
	if in.MaxFrames == nil {
		v := defaultMaxFrames
		in.MaxFrames = &v
	}
	if in.DecodeHeaders == nil {
		v := defaultDecodeHeaders
		in.DecodeHeaders = &v
	}
	if in.HeaderTableSize == nil {
		v := defaultHeaderTableSize
		in.HeaderTableSize = &v
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	lg := cfg.Logging
	if lg.LogLevel == "" {
		lg.LogLevel = defaultLogLevel
	}
	if lg.ErrorLog == nil {
		lg.ErrorLog = &ErrorLogConfig{}
	}
	if lg.ErrorLog.Target == "" {
		lg.ErrorLog.Target = defaultErrorLogTarget
	}
	if lg.ErrorLog.Format == "" {
		lg.ErrorLog.Format = defaultErrorLogFormat
	}
	if lg.FrameLog == nil {
		lg.FrameLog = &FrameLogConfig{}
	}
	if lg.FrameLog.Enabled == nil {
		v := defaultFrameLogEnabled
		lg.FrameLog.Enabled = &v
	}
	if lg.FrameLog.Target == "" {
		lg.FrameLog.Target = defaultFrameLogTarget
	}
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}
	if d := cfg.Decoder; d != nil {
		if d.MaxFrameSize != nil {
			if *d.MaxFrameSize < defaultMaxFrameSize || *d.MaxFrameSize > maxAllowedFrameSize {
				return fmt.Errorf("decoder.max_frame_size %d must be between %d and %d", *d.MaxFrameSize, defaultMaxFrameSize, maxAllowedFrameSize)
			}
		}
		if d.BufferLen != nil && d.MaxFrameSize != nil {
			if need := frameHeaderLen + int(*d.MaxFrameSize); *d.BufferLen < need {
				return fmt.Errorf("decoder.buffer_len %d must be at least %d (header + max_frame_size)", *d.BufferLen, need)
			}
		}
	}
	if in := cfg.Inspector; in != nil {
		if in.IdleBackoff != nil && in.IdleBackoff.Value() <= 0 {
			return fmt.Errorf("inspector.idle_backoff must be positive, got %s", in.IdleBackoff)
		}
		if in.PollTimeout != nil && in.PollTimeout.Value() <= 0 {
			return fmt.Errorf("inspector.poll_timeout must be positive, got %s", in.PollTimeout)
		}
		if in.MaxFrames != nil && *in.MaxFrames < 0 {
			return fmt.Errorf("inspector.max_frames must not be negative, got %d", *in.MaxFrames)
		}
	}
	if lg := cfg.Logging; lg != nil {
		switch lg.LogLevel {
		case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		default:
			return fmt.Errorf("logging.log_level %q must be one of DEBUG, INFO, WARNING, ERROR", lg.LogLevel)
		}
		if lg.ErrorLog != nil {
			if err := validateTarget("logging.error_log.target", lg.ErrorLog.Target); err != nil {
				return err
			}
			switch lg.ErrorLog.Format {
			case LogFormatJSON, LogFormatConsole:
			default:
				return fmt.Errorf("logging.error_log.format %q must be %q or %q", lg.ErrorLog.Format, LogFormatJSON, LogFormatConsole)
			}
		}
		if lg.FrameLog != nil {
			if err := validateTarget("logging.frame_log.target", lg.FrameLog.Target); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateTarget(field, target string) error {
	if target == "stdout" || target == "stderr" {
		return nil
	}
	if !filepath.IsAbs(target) {
		return fmt.Errorf("%s %q must be stdout, stderr or an absolute file path", field, target)
	}
	return nil
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "" && target != "stdout" && target != "stderr"
}
