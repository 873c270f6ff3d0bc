package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// textFormatter renders the line format required by:
//
//	YYYY-MM-DD HH:MM:SS UTC [PID] LEVEL: FILE:LINE FUNC msg
type textFormatter struct {
	pid int
}

func newTextFormatter() *textFormatter {
	return &textFormatter{pid: os.Getpid()}
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(entry.Time.UTC().Format("2006-01-02 15:04:05"))
	buf.WriteString(" UTC [")
	fmt.Fprintf(&buf, "%d", f.pid)
	buf.WriteString("] ")
	buf.WriteString(levelWord(entry.Level))
	buf.WriteString(": ")

	file, line, fn := "?", 0, "?"
	if entry.Caller != nil {
		file = filepath.Base(entry.Caller.File)
		line = entry.Caller.Line
		fn = filepath.Ext(entry.Caller.Function)
		if len(fn) > 1 {
			fn = fn[1:]
		} else {
			fn = entry.Caller.Function
		}
	}
	fmt.Fprintf(&buf, "%s:%d %s", file, line, fn)

	if len(entry.Data) > 0 {
		buf.WriteString(" {")
		first := true
		for k, v := range entry.Data {
			if !first {
				buf.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&buf, "%s=%v", k, v)
		}
		buf.WriteString("}")
	}

	buf.WriteString(" ")
	buf.WriteString(entry.Message)
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

func levelWord(lvl logrus.Level) string {
	switch lvl {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "FATAL"
	default:
		return "INFO"
	}
}
