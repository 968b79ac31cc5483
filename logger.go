package modbus

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of a log line written to a SimpleLogger.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelNone // Disables logging
)

var levelNames = map[LogLevel]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
	LevelNone:    "NONE",
}

func (l LogLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// ParseLogLevel accepts DEBUG, INFO, WARNING (or WARN), ERROR and NONE in
// any case.
func ParseLogLevel(s string) (LogLevel, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARN" {
		return LevelWarning, nil
	}
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	names := make([]string, 0, len(levelNames))
	for _, n := range levelNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return LevelNone, fmt.Errorf("invalid log level: %s. Available levels: %v", s, names)
}

// levelPrefixes maps the message prefixes the master writes to their level.
var levelPrefixes = []struct {
	prefix string
	level  LogLevel
}{
	{"[DEBUG]", LevelDebug}, {"DEBUG:", LevelDebug},
	{"[INFO]", LevelInfo}, {"INFO:", LevelInfo},
	{"[WARNING]", LevelWarning}, {"WARNING:", LevelWarning}, {"WARN:", LevelWarning},
	{"[ERROR]", LevelError}, {"ERROR:", LevelError},
}

// SimpleLogger is a leveled io.Writer. The level of each write is taken from
// its prefix, "DEBUG:", "WARNING:" and so on; unprefixed writes are INFO.
// Pass it to ModbusMaster.SetLogger.
type SimpleLogger struct {
	mu         sync.Mutex
	level      LogLevel
	output     io.Writer
	timeFormat string
	prefix     string
}

// NewSimpleLogger creates a SimpleLogger. A nil output means os.Stdout.
func NewSimpleLogger(output io.Writer, level LogLevel, prefix string) *SimpleLogger {
	if output == nil {
		output = os.Stdout
	}
	return &SimpleLogger{
		level:      level,
		output:     output,
		timeFormat: time.RFC3339,
		prefix:     prefix,
	}
}

// SetLevel sets the minimum level that is written.
func (l *SimpleLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the minimum level that is written.
func (l *SimpleLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevelFromString sets the level by name, e.g. "debug".
func (l *SimpleLogger) SetLevelFromString(levelStr string) error {
	level, err := ParseLogLevel(levelStr)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

// Write implements io.Writer. Lines below the configured level are dropped
// but still reported as written.
func (l *SimpleLogger) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	level := determineLevel(message)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level == LevelNone || level < l.level {
		return len(p), nil
	}
	line := fmt.Sprintf("%s [%s] <%s> %s\n", time.Now().Format(l.timeFormat), level, l.prefix, message)
	if _, err := io.WriteString(l.output, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the output unless it is os.Stdout or os.Stderr.
func (l *SimpleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output == os.Stdout || l.output == os.Stderr {
		return nil
	}
	if closer, ok := l.output.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func determineLevel(message string) LogLevel {
	upper := strings.ToUpper(message)
	for _, p := range levelPrefixes {
		if strings.HasPrefix(upper, p.prefix) {
			return p.level
		}
	}
	return LevelInfo
}
