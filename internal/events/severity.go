package events

import (
	"log/slog"
	"strings"
)

// Severity classifies events. Values are bit flags so several bands can be
// enabled or disabled at once.
type Severity uint8

const (
	Debug Severity = 1 << iota
	Status
	Info
	Warning
	Error

	SeverityAll = Debug | Status | Info | Warning | Error
)

var severityNames = []struct {
	sev  Severity
	name string
}{
	{Debug, "debug"},
	{Status, "status"},
	{Info, "info"},
	{Warning, "warning"},
	{Error, "error"},
}

func (s Severity) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for _, n := range severityNames {
		if s&n.sev != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseSeverity parses a single band name or "all".
func ParseSeverity(s string) (Severity, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return SeverityAll, true
	}
	for _, n := range severityNames {
		if n.name == s {
			return n.sev, true
		}
	}
	return 0, false
}

// slogLevel maps the most severe band of s to a log level.
func (s Severity) slogLevel() slog.Level {
	switch {
	case s&Error != 0:
		return slog.LevelError
	case s&Warning != 0:
		return slog.LevelWarn
	case s&(Status|Info) != 0:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
