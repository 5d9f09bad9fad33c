// pkg/logging/logging.go - leveled, key/value logging for cimisync
//
// Every message goes to the console (colour coded by severity) and to a
// per-run log file. Stage events produced by the pipeline are additionally
// written as JSON lines to events.jsonl next to the log file.

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/windowsadmins/cimisync/pkg/config"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string onto a LogLevel. Unknown values map to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	BaseDir    string    // Directory receiving the log and events files
	Level      LogLevel  // Most verbose level written
	SessionID  string    // Unique session identifier
	Console    io.Writer // Console destination; nil disables console output
	EnableJSON bool      // Write events.jsonl
	NoColor    bool      // Disable ANSI colour on the console
}

// Logger writes leveled messages to the console and the run log file.
type Logger struct {
	mu        sync.Mutex
	config    LoggerConfig
	console   io.Writer
	file      *log.Logger
	logFile   *os.File
	jsonFile  *os.File
	logPath   string
	sessionID string
}

var (
	instance *Logger
	once     sync.Once
)

// Init initializes the singleton Logger from the application configuration.
// It must be called before any file logging happens; until then messages only
// reach stderr.
func Init(cfg *config.Configuration) error {
	return InitWithConfig(LoggerConfig{
		BaseDir:    cfg.LogPath,
		Level:      ParseLevel(cfg.LogLevel),
		Console:    os.Stdout,
		EnableJSON: true,
	})
}

// InitWithConfig initializes the logger with an explicit LoggerConfig.
func InitWithConfig(logCfg LoggerConfig) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(logCfg)
	})
	return initErr
}

func newLogger(cfg LoggerConfig) (*Logger, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	l := &Logger{config: cfg, console: cfg.Console, sessionID: cfg.SessionID}

	if cfg.BaseDir != "" {
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		stamp := time.Now().Format("2006-01-02-150405")
		l.logPath = filepath.Join(cfg.BaseDir, "cimisync-"+stamp+".log")
		f, err := os.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.logFile = f
		l.file = log.New(f, "", 0)

		if cfg.EnableJSON {
			jf, err := os.OpenFile(filepath.Join(cfg.BaseDir, "events.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to open events file: %w", err)
			}
			l.jsonFile = jf
		}
	}

	if l.console != nil && !cfg.NoColor {
		enableColors()
	}
	return l, nil
}

// Close closes all log files if they're open.
func Close() {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()

	if instance.logFile != nil {
		if err := instance.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %v\n", err)
		}
		instance.logFile = nil
		instance.file = nil
	}
	if instance.jsonFile != nil {
		if err := instance.jsonFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close events file: %v\n", err)
		}
		instance.jsonFile = nil
	}
}

// LogFilePath returns the path of the current run log file, or "" when file
// logging is disabled.
func LogFilePath() string {
	if instance == nil {
		return ""
	}
	return instance.logPath
}

// SessionID returns the current session ID
func SessionID() string {
	if instance == nil {
		return ""
	}
	return instance.sessionID
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGreen  = "\033[32m"
)

func levelColor(level LogLevel) string {
	switch level {
	case LevelError:
		return colorRed
	case LevelWarn:
		return colorYellow
	case LevelDebug:
		return colorBlue
	default:
		return ""
	}
}

// formatLine renders the traditional "[ts] LEVEL message k=v" line.
func formatLine(ts time.Time, level string, message string, keyValues []interface{}) string {
	line := fmt.Sprintf("[%s] %-5s %s", ts.Format("2006-01-02 15:04:05"), level, message)
	for i := 0; i+1 < len(keyValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyValues[i], keyValues[i+1])
	}
	if len(keyValues)%2 == 1 {
		line += fmt.Sprintf(" %v", keyValues[len(keyValues)-1])
	}
	return line
}

func (l *Logger) logMessage(level LogLevel, color string, label string, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level > l.config.Level {
		return
	}
	line := formatLine(time.Now(), label, message, keyValues)

	if l.console != nil {
		if color != "" && !l.config.NoColor {
			fmt.Fprintln(l.console, color+line+colorReset)
		} else {
			fmt.Fprintln(l.console, line)
		}
	}
	if l.file != nil {
		l.file.Println(line)
	}
}

// writeEvent appends one JSON record to events.jsonl.
func (l *Logger) writeEvent(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonFile == nil {
		return
	}
	event.SessionID = l.sessionID
	if data, err := json.Marshal(event); err == nil {
		l.jsonFile.Write(append(data, '\n'))
	}
}

func emit(level LogLevel, color, label, message string, keyValues []interface{}) {
	if instance == nil {
		fmt.Fprintln(os.Stderr, formatLine(time.Now(), label, message, keyValues))
		return
	}
	instance.logMessage(level, color, label, message, keyValues...)
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	emit(LevelInfo, "", LevelInfo.String(), message, keyValues)
}

// Success logs an informational message rendered in green on the console.
func Success(message string, keyValues ...interface{}) {
	emit(LevelInfo, colorGreen, LevelInfo.String(), message, keyValues)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	if instance == nil {
		return
	}
	emit(LevelDebug, levelColor(LevelDebug), LevelDebug.String(), message, keyValues)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	emit(LevelWarn, levelColor(LevelWarn), LevelWarn.String(), message, keyValues)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	emit(LevelError, levelColor(LevelError), LevelError.String(), message, keyValues)
}
