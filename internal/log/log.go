// Package log builds the application logger: structured logrus entries
// written to a command log, with warnings and errors duplicated into an
// error log.
package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger together with the files it writes to.
type Logger struct {
	*logrus.Logger
	commandFile *os.File
	errorFile   *os.File
	mu          sync.Mutex
}

// NewLogger opens (or creates) the command and error logs inside logFolder.
func NewLogger(logFolder, commandLogName, errorLogName string) (*Logger, error) {
	if err := os.MkdirAll(logFolder, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}

	commandFile, err := os.OpenFile(filepath.Join(logFolder, commandLogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open command log file")
	}

	errorFile, err := os.OpenFile(filepath.Join(logFolder, errorLogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		commandFile.Close()
		return nil, errors.Wrap(err, "failed to open error log file")
	}

	l := newLogger(commandFile, errorFile)
	l.commandFile = commandFile
	l.errorFile = errorFile
	return l, nil
}

// NewWriterLogger logs to arbitrary writers; used by tests and the relay binary.
func NewWriterLogger(out, errOut io.Writer) *Logger {
	return newLogger(out, errOut)
}

func newLogger(out, errOut io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	base.SetLevel(logrus.InfoLevel)
	if errOut != nil {
		base.AddHook(&errorHook{out: errOut, formatter: &logrus.JSONFormatter{}})
	}
	return &Logger{Logger: base}
}

// LogCommand records one executed REPL command.
func (l *Logger) LogCommand(command string) {
	l.WithField("action", "command").Info(command)
}

// LogError records err in both logs.
func (l *Logger) LogError(err error) {
	if err == nil {
		return
	}
	l.WithField("action", "error").Error(err.Error())
}

// Close closes the underlying files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.commandFile != nil {
		if err := l.commandFile.Close(); err != nil {
			return errors.Wrap(err, "failed to close command log file")
		}
		l.commandFile = nil
	}
	if l.errorFile != nil {
		if err := l.errorFile.Close(); err != nil {
			return errors.Wrap(err, "failed to close error log file")
		}
		l.errorFile = nil
	}
	return nil
}

// errorHook copies warning-and-above entries into a second writer.
type errorHook struct {
	mu        sync.Mutex
	out       io.Writer
	formatter logrus.Formatter
}

func (h *errorHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *errorHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(line)
	return err
}
