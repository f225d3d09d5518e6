package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Logger writes leveled messages of one subsystem to its backend.
type Logger struct {
	level   uint32
	tag     string
	backend *Backend
}

// Level returns the current level of the logger.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.level))
}

// SetLevel changes the level of the logger.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.level, uint32(level))
}

// Backend returns the backend the logger writes to.
func (l *Logger) Backend() *Backend {
	return l.backend
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	line := fmt.Sprintf("%s [%s] %s: %s\n",
		time.Now().Format("2006-01-02 15:04:05.000"), level, l.tag, fmt.Sprintf(format, args...))
	l.backend.write(level, []byte(line))
}

// Tracef formats and writes a message at the trace level.
func (l *Logger) Tracef(format string, args ...interface{}) { l.write(LevelTrace, format, args...) }

// Debugf formats and writes a message at the debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.write(LevelDebug, format, args...) }

// Infof formats and writes a message at the info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.write(LevelInfo, format, args...) }

// Warnf formats and writes a message at the warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.write(LevelWarn, format, args...) }

// Errorf formats and writes a message at the error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.write(LevelError, format, args...) }

// Criticalf formats and writes a message at the critical level.
func (l *Logger) Criticalf(format string, args ...interface{}) { l.write(LevelCritical, format, args...) }

// Infos writes s at the info level.
func (l *Logger) Infos(s string) { l.write(LevelInfo, "%s", s) }

// LogClosure defers building an expensive log argument, such as a spew
// dump, until the line is actually written.
type LogClosure func() string

func (c LogClosure) String() string {
	return c()
}

// NewLogClosure wraps c as a fmt.Stringer.
func NewLogClosure(c func() string) LogClosure {
	return LogClosure(c)
}

// BackendLog is the backend every subsystem logger writes to.
var BackendLog = NewBackend()

var (
	subsystemLoggers    = make(map[string]*Logger)
	subsystemLoggersMtx sync.Mutex
)

// RegisterSubSystem returns the logger of the given subsystem tag, creating
// it on first use.
func RegisterSubSystem(subsystem string) *Logger {
	subsystemLoggersMtx.Lock()
	defer subsystemLoggersMtx.Unlock()
	logger, exists := subsystemLoggers[subsystem]
	if !exists {
		logger = BackendLog.Logger(subsystem)
		subsystemLoggers[subsystem] = logger
	}
	return logger
}

// InitLog attaches the log file and the error log file to the backend and
// starts it.
func InitLog(logFile, errLogFile string) error {
	err := BackendLog.AddLogFile(logFile, LevelTrace)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", logFile, LevelTrace)
	}
	err = BackendLog.AddLogFile(errLogFile, LevelWarn)
	if err != nil {
		return errors.Wrapf(err, "error adding log file %s as log rotator for level %s", errLogFile, LevelWarn)
	}
	err = BackendLog.AddLogWriter(os.Stdout, LevelInfo)
	if err != nil {
		return err
	}
	return BackendLog.Run()
}

// SupportedSubsystems returns a sorted slice of the registered subsystems.
func SupportedSubsystems() []string {
	subsystemLoggersMtx.Lock()
	defer subsystemLoggersMtx.Unlock()
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsystem := range subsystemLoggers {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)
	return subsystems
}

// SetLogLevels sets the level of every registered subsystem.
func SetLogLevels(level Level) {
	subsystemLoggersMtx.Lock()
	defer subsystemLoggersMtx.Unlock()
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}

func setLogLevel(subsystem string, level Level) bool {
	subsystemLoggersMtx.Lock()
	defer subsystemLoggersMtx.Unlock()
	logger, ok := subsystemLoggers[subsystem]
	if !ok {
		return false
	}
	logger.SetLevel(level)
	return true
}

// ParseAndSetLogLevels parses a debug level specification of the form
// "level" or "level,SUBSYS=level,SUBSYS2=level" and applies it.
func ParseAndSetLogLevels(debugLevel string) error {
	for _, part := range strings.Split(debugLevel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "=") {
			level, ok := LevelFromString(part)
			if !ok {
				return errors.Errorf("the specified debug level [%s] is invalid", part)
			}
			SetLogLevels(level)
			continue
		}

		fields := strings.Split(part, "=")
		if len(fields) != 2 {
			return errors.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", part)
		}
		subsystem, levelName := fields[0], fields[1]
		level, ok := LevelFromString(levelName)
		if !ok {
			return errors.Errorf("the specified debug level [%s] is invalid", levelName)
		}
		if !setLogLevel(subsystem, level) {
			return errors.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %v",
				subsystem, SupportedSubsystems())
		}
	}
	return nil
}
