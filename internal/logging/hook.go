package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// userFileHook tees warning-and-above log lines to a second append-only
// file, implementing the ":user=PATH" log spec: a user-visible
// error channel distinct from the primary sink.
type userFileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter logrus.Formatter
}

func newUserFileHook(path string) (*userFileHook, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &userFileHook{file: f, formatter: newTextFormatter()}, nil
}

// Levels implements logrus.Hook.
func (h *userFileHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.FatalLevel,
		logrus.PanicLevel,
	}
}

// Fire implements logrus.Hook.
func (h *userFileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.file.Write(line)
	return err
}
