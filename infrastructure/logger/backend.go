package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	defaultThresholdKB = 100 * 1000 // 100 MB logs by default.
	defaultMaxRolls    = 8          // keep 8 last logs by default.

	logsBuffer = 256
)

type logEntry struct {
	line  []byte
	level Level
}

type logWriter struct {
	io.WriteCloser
	level Level
}

// Backend is a logging backend. Subsystem loggers created from the backend
// hand their formatted lines to a single writer goroutine, which fans them
// out to every registered writer whose level admits them.
type Backend struct {
	isRunning uint32
	writers   []logWriter
	entries   chan logEntry

	closeMtx sync.RWMutex
	closed   bool
	done     chan struct{}
}

// NewBackend creates a new logger backend.
func NewBackend() *Backend {
	return &Backend{
		entries: make(chan logEntry, logsBuffer),
		done:    make(chan struct{}),
	}
}

// AddLogFile adds a rotating file which the backend writes into for every
// entry at logLevel or above. The file and its directory are created if they
// don't exist.
func (b *Backend) AddLogFile(logFile string, logLevel Level) error {
	return b.AddLogFileWithCustomRotator(logFile, logLevel, defaultThresholdKB, defaultMaxRolls)
}

// AddLogFileWithCustomRotator is AddLogFile with explicit rotation settings.
func (b *Backend) AddLogFileWithCustomRotator(logFile string, logLevel Level, thresholdKB int64, maxRolls int) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	r, err := rotator.New(logFile, thresholdKB, false, maxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create file rotator for %s", logFile)
	}
	b.writers = append(b.writers, logWriter{WriteCloser: r, level: logLevel})
	return nil
}

// AddLogWriter adds an arbitrary writer, such as stdout, to the backend.
func (b *Backend) AddLogWriter(writer io.WriteCloser, logLevel Level) error {
	if b.IsRunning() {
		return errors.New("the logger is already running")
	}
	b.writers = append(b.writers, logWriter{WriteCloser: writer, level: logLevel})
	return nil
}

// Run launches the writer goroutine. It may only be called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger is already running")
	}
	go func() {
		defer close(b.done)
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "Fatal error in logger.Backend goroutine: %+v\n", err)
				fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
			}
		}()
		for entry := range b.entries {
			for _, writer := range b.writers {
				if entry.level >= writer.level {
					_, _ = writer.Write(entry.line)
				}
			}
		}
	}()
	return nil
}

// IsRunning returns true once Run has been called.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

func (b *Backend) write(level Level, line []byte) {
	b.closeMtx.RLock()
	defer b.closeMtx.RUnlock()
	if b.closed || !b.IsRunning() {
		return
	}
	b.entries <- logEntry{line: line, level: level}
}

// Close flushes pending entries and closes every writer.
func (b *Backend) Close() {
	b.closeMtx.Lock()
	if b.closed {
		b.closeMtx.Unlock()
		return
	}
	b.closed = true
	close(b.entries)
	b.closeMtx.Unlock()

	if b.IsRunning() {
		<-b.done
	}
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

// Logger returns a new logger for the given subsystem tag writing to b.
// The logger uses the info level by default.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{level: uint32(LevelInfo), tag: subsystemTag, backend: b}
}
