package logging

import (
	"fmt"
	"io"
	"os"
)

// EarlyLog writes plain lines before the structured logger exists.
type EarlyLog struct {
	prefix string
	out    io.Writer
	errOut io.Writer
}

func NewEarlyLog(prefix string) *EarlyLog {
	return &EarlyLog{prefix: prefix, out: os.Stdout, errOut: os.Stderr}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write(l.errOut, "ERROR", msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write(l.errOut, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write(l.out, "INFO", msg, args...)
}

func (l *EarlyLog) write(w io.Writer, level, msg string, args ...interface{}) {
	line := fmt.Sprintf(msg, args...)
	if l.prefix != "" {
		fmt.Fprintf(w, "%s [%s] %s\n", level, l.prefix, line)
		return
	}
	fmt.Fprintf(w, "%s %s\n", level, line)
}
