//go:build !windows

package windows

import "log"

// EventLogger falls back to standard log output on non-Windows platforms.
type EventLogger struct {
	source string
}

// NewEventLogger creates a logger that writes to stdout only; there is no
// event log source to open off-Windows.
func NewEventLogger(source string) *EventLogger {
	return &EventLogger{source: source}
}

func (l *EventLogger) Info(eid uint32, msg string) {
	log.Printf("[INFO] %s: %s", l.source, msg)
}

func (l *EventLogger) Warning(eid uint32, msg string) {
	log.Printf("[WARN] %s: %s", l.source, msg)
}

func (l *EventLogger) Error(eid uint32, msg string) {
	log.Printf("[ERROR] %s: %s", l.source, msg)
}

func (l *EventLogger) Close() {}

// RunAsService is unavailable off-Windows; callers should never reach this
// path since IsWindowsService always reports false here.
func RunAsService(name string, stopChan chan<- struct{}) error {
	return nil
}

// IsWindowsService always returns false outside of Windows.
func IsWindowsService() bool {
	return false
}
