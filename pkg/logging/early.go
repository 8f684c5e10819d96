package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// EarlyLog writes JSON lines to stderr before the configured logger exists,
// in the same shape the zap encoder uses so startup failures are indexed
// alongside normal logs.
type EarlyLog struct {
	out     io.Writer
	service string
	exit    func(int)
}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{out: os.Stderr, service: "payhook-service", exit: os.Exit}
}

func (l *EarlyLog) write(level, msg string, args ...interface{}) {
	line, _ := json.Marshal(map[string]string{
		"level":        level,
		"ts":           time.Now().UTC().Format(time.RFC3339),
		"msg":          fmt.Sprintf(msg, args...),
		ServiceNameKey: l.service,
	})
	fmt.Fprintln(l.out, string(line))
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.write("error", msg, args...)
}

// Fatal logs and exits with status 1.
func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.write("fatal", msg, args...)
	l.exit(1)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.write("warn", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.write("info", msg, args...)
}
