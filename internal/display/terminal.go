// Package display provides terminal output formatting for flaneur.
package display

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gauthierbraillon/flaneur/internal/aggregator"
	"github.com/gauthierbraillon/flaneur/internal/location"
)

const separator = " • "

// TerminalFormatter formats location records for terminal display.
type TerminalFormatter struct {
	now func() time.Time
}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter() *TerminalFormatter {
	return &TerminalFormatter{now: time.Now}
}

// FormatEntry formats a single timeline entry for display.
func (f *TerminalFormatter) FormatEntry(entry aggregator.Entry) string {
	rec := entry.Record
	var lines []string

	// Header: [PROVIDER] Place (lat, lng)
	lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(entry.Provider), f.placeName(rec)))

	meta := f.FormatTimestamp(rec.Timestamp)
	if rec.Place != nil && rec.Place.Address != nil && *rec.Place.Address != "" {
		meta = *rec.Place.Address + separator + meta
	}
	lines = append(lines, "  "+meta)

	if tagged := f.formatTaggedUsers(rec.TaggedUsers); tagged != "" {
		lines = append(lines, "  with "+tagged)
	}

	if rec.Cover != "" {
		lines = append(lines, "  "+rec.Cover)
	}

	return strings.Join(lines, "\n") + "\n"
}

func (f *TerminalFormatter) placeName(rec location.Record) string {
	name := "Unknown place"
	if rec.Place != nil && rec.Place.Name != "" {
		name = f.TruncateText(rec.Place.Name, 60)
	}
	if rec.HasLocation() {
		return fmt.Sprintf("%s (%.4f, %.4f)", name, *rec.Latitude, *rec.Longitude)
	}
	return name
}

// formatTaggedUsers lists tagged users by full name, falling back to user name.
func (f *TerminalFormatter) formatTaggedUsers(users []location.TaggedUser) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		name := u.FullName
		if name == "" {
			name = u.Name
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// FormatTimeline formats multiple entries for display.
func (f *TerminalFormatter) FormatTimeline(entries []aggregator.Entry) string {
	if len(entries) == 0 {
		return "No locations to display.\n"
	}

	formatted := make([]string, 0, len(entries))
	for _, entry := range entries {
		formatted = append(formatted, f.FormatEntry(entry))
	}

	return strings.Join(formatted, "\n---\n\n")
}

// FormatFailures lists the providers whose run failed, one per line.
func (f *TerminalFormatter) FormatFailures(result aggregator.Result) string {
	names := result.Failed()
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		le := location.AsError(name, result[name].Err)
		fmt.Fprintf(&b, "[%s] %s error: %s\n", strings.ToUpper(name), le.Kind, le.Message)
	}
	return b.String()
}

// FormatTimestamp formats a timestamp as relative time.
func (f *TerminalFormatter) FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown date"
	}

	diff := f.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return pluralize(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return pluralize(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return pluralize(int(diff.Hours()/24), "day")
	default:
		return t.Format("Jan 2, 2006")
	}
}

// pluralize returns "N unit ago" or "N units ago" based on count.
func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// TruncateText truncates text to maxLen runes, adding "..." if truncated.
func (f *TerminalFormatter) TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
