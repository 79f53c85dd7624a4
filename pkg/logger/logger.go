package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

var levelStyles = [...]struct {
	name  string
	color string
}{
	DEBUG: {"DEBUG", colorGray},
	INFO:  {"INFO", colorBlue},
	WARN:  {"WARN", colorYellow},
	ERROR: {"ERROR", colorRed},
	FATAL: {"FATAL", colorRed},
}

func (l LogLevel) String() string {
	if l < DEBUG || l > FATAL {
		return "UNKNOWN"
	}
	return levelStyles[l].name
}

// ParseLevel maps a level name to a LogLevel. Unknown names fall back to INFO.
func ParseLevel(s string) LogLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return WARN
	}
	for lvl, st := range levelStyles {
		if st.name == s {
			return LogLevel(lvl)
		}
	}
	return INFO
}

// sink is the state a logger shares with the loggers derived from it by With.
type sink struct {
	mu       sync.Mutex
	out      io.Writer
	file     *os.File
	level    LogLevel
	colorize bool
}

// Logger writes leveled lines to a terminal and, optionally, a log file.
type Logger struct {
	*sink
	component  string
	showTime   bool
	timeFormat string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

type Config struct {
	Level      LogLevel
	Component  string
	Colorize   bool
	ShowTime   bool
	TimeFormat string
	Output     io.Writer
}

func DefaultConfig() Config {
	return Config{
		Level:      INFO,
		Colorize:   isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == "",
		ShowTime:   true,
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "2006-01-02 15:04:05"
	}
	return &Logger{
		sink:       &sink{out: cfg.Output, level: cfg.Level, colorize: cfg.Colorize},
		component:  cfg.Component,
		showTime:   cfg.ShowTime,
		timeFormat: cfg.TimeFormat,
	}
}

// GetLogger returns the process logger. LOG_LEVEL sets its initial level.
func GetLogger() *Logger {
	once.Do(func() {
		cfg := DefaultConfig()
		if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
			cfg.Level = ParseLevel(envLevel)
		}
		defaultLogger = New(cfg)
	})
	return defaultLogger
}

// With returns a logger that tags its lines with component. It shares level,
// outputs and file sink with l.
func (l *Logger) With(component string) *Logger {
	child := *l
	if l.component != "" {
		component = l.component + "/" + component
	}
	child.component = component
	return &child
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// OpenFile mirrors every line, uncolored, to path. The file is opened in append mode.
func (l *Logger) OpenFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	return nil
}

// Close closes the file sink, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Logger) line(now time.Time, level LogLevel, color bool, msg string) string {
	var b strings.Builder
	if l.showTime {
		b.WriteString(now.Format(l.timeFormat))
		b.WriteByte(' ')
	}
	if color {
		b.WriteString(levelStyles[level].color)
	}
	b.WriteString("[" + level.String() + "]")
	if color {
		b.WriteString(colorReset)
	}
	if l.component != "" {
		b.WriteString(" " + l.component + ":")
	}
	b.WriteByte(' ')
	b.WriteString(msg)
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) logf(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	now := time.Now()
	io.WriteString(l.out, l.line(now, level, l.colorize, msg))
	if l.file != nil {
		l.file.WriteString(l.line(now, level, false, msg))
	}

	if level == FATAL {
		if l.file != nil {
			l.file.Sync()
		}
		os.Exit(1)
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logf(DEBUG, format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logf(INFO, format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logf(WARN, format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logf(ERROR, format, args...)
}

// Fatalf logs at FATAL level and exits the program
func (l *Logger) Fatalf(format string, args ...any) {
	l.logf(FATAL, format, args...)
}

// Package-level convenience functions using the default logger

func Debugf(format string, args ...any) {
	GetLogger().logf(DEBUG, format, args...)
}

func Infof(format string, args ...any) {
	GetLogger().logf(INFO, format, args...)
}

func Warnf(format string, args ...any) {
	GetLogger().logf(WARN, format, args...)
}

func Errorf(format string, args ...any) {
	GetLogger().logf(ERROR, format, args...)
}

func Fatalf(format string, args ...any) {
	GetLogger().logf(FATAL, format, args...)
}

// SetLevel sets the log level for the default logger
func SetLevel(level LogLevel) {
	GetLogger().SetLevel(level)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return New(Config{Level: FATAL + 1, Output: io.Discard})
}
