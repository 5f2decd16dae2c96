package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/h2framein/internal/config"
)

// LogFields carries structured key/value context for a log entry.
type LogFields map[string]interface{}

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		if l == zerolog.WarnLevel {
			return string(config.LogLevelWarning)
		}
		return strings.ToUpper(l.String())
	}
}

// output is a writer whose destination can be swapped when log files are reopened.
type output struct {
	mu     sync.Mutex
	w      io.Writer
	target string
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *output) isFile() bool {
	return config.IsFilePath(o.target)
}

func (o *output) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.w.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		return f.Close()
	}
	return nil
}

func (o *output) reopen() error {
	if !o.isFile() {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if f, ok := o.w.(*os.File); ok && f != os.Stdout && f != os.Stderr {
		_ = f.Close()
	}
	f, err := openLogFile(o.target)
	if err != nil {
		o.w = os.Stderr
		return err
	}
	o.w = f
	return nil
}

func openLogFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func openTarget(target string, fallback *os.File) (*output, error) {
	switch target {
	case "", "stdout", "stderr":
		w := fallback
		if target == "stdout" {
			w = os.Stdout
		} else if target == "stderr" {
			w = os.Stderr
		}
		return &output{w: w, target: target}, nil
	}
	if !config.IsFilePath(target) {
		return nil, fmt.Errorf("invalid log target: %s", target)
	}
	f, err := openLogFile(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", target, err)
	}
	return &output{w: f, target: target}, nil
}

// Logger writes diagnostic entries to the error log and, when enabled, one
// record per decoded frame to the frame log.
type Logger struct {
	errorLog zerolog.Logger
	frameLog *zerolog.Logger
	outputs  []*output
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	errCfg := config.ErrorLogConfig{Target: "stderr", Format: config.LogFormatJSON}
	if cfg.ErrorLog != nil {
		errCfg = *cfg.ErrorLog
	}
	errOut, err := openTarget(errCfg.Target, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("error log: %w", err)
	}

	var w io.Writer = errOut
	if errCfg.Format == config.LogFormatConsole {
		w = zerolog.ConsoleWriter{Out: errOut, TimeFormat: "15:04:05.000", NoColor: errOut.isFile()}
	}
	l := &Logger{
		errorLog: zerolog.New(w).Level(zerologLevel(cfg.LogLevel)).With().Timestamp().Logger(),
		outputs:  []*output{errOut},
	}

	if fc := cfg.FrameLog; fc != nil && fc.Enabled != nil && *fc.Enabled {
		frameOut, err := openTarget(fc.Target, os.Stdout)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("frame log: %w", err)
		}
		fl := zerolog.New(frameOut).With().Timestamp().Logger()
		l.frameLog = &fl
		l.outputs = append(l.outputs, frameOut)
	}
	return l, nil
}

// New returns a Logger writing JSON entries at or above level to w, with
// frame records sent to frames when it is non-nil.
func New(w io.Writer, level config.LogLevel, frames io.Writer) *Logger {
	l := &Logger{
		errorLog: zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger(),
	}
	if frames != nil {
		fl := zerolog.New(frames).With().Timestamp().Logger()
		l.frameLog = &fl
	}
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child Logger whose entries, frame records included, carry fields.
func (l *Logger) With(fields LogFields) *Logger {
	child := &Logger{
		errorLog: l.errorLog.With().Fields(map[string]interface{}(fields)).Logger(),
		outputs:  l.outputs,
	}
	if l.frameLog != nil {
		fl := l.frameLog.With().Fields(map[string]interface{}(fields)).Logger()
		child.frameLog = &fl
	}
	return child
}

func emit(e *zerolog.Event, msg string, fields []LogFields) {
	if e == nil {
		return
	}
	for _, f := range fields {
		e = e.Fields(map[string]interface{}(f))
	}
	e.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) { emit(l.errorLog.Debug(), msg, fields) }

func (l *Logger) Info(msg string, fields ...LogFields) { emit(l.errorLog.Info(), msg, fields) }

func (l *Logger) Warn(msg string, fields ...LogFields) { emit(l.errorLog.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...LogFields) { emit(l.errorLog.Error(), msg, fields) }

// FrameLogEnabled reports whether Frame records are written anywhere.
func (l *Logger) FrameLogEnabled() bool {
	return l.frameLog != nil
}

// Frame writes one frame record. It is not subject to the log level.
func (l *Logger) Frame(fields LogFields) {
	if l.frameLog == nil {
		return
	}
	l.frameLog.Log().Fields(map[string]interface{}(fields)).Send()
}

// CloseLogFiles closes any open log files.
func (l *Logger) CloseLogFiles() {
	for _, o := range l.outputs {
		_ = o.close()
	}
}

// ReopenLogFiles closes and reopens file-based targets, typically on SIGHUP.
// A target that cannot be reopened falls back to stderr.
func (l *Logger) ReopenLogFiles() error {
	var firstErr error
	for _, o := range l.outputs {
		if err := o.reopen(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to reopen log file %s: %w", o.target, err)
		}
	}
	return firstErr
}
