package ical

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/nascar-calendar/internal/models"
)

const (
	dateTimeFloating = "20060102T150405"
	dateOnly         = "20060102"
)

// SyntaxError reports a malformed document
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("ical: line %d: %s", e.Line, e.Msg)
}

// Decode parses a document and indexes its events by uid
func Decode(r io.Reader) (map[string]models.CalendarEntry, error) {
	cal, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return cal.ByUID(), nil
}

type contentLine struct {
	num   int
	name  string
	value string
}

// Parse reads a document, keeping events in document order.
// Unknown properties and components are ignored.
func Parse(r io.Reader) (*Calendar, error) {
	lines, err := unfold(r)
	if err != nil {
		return nil, err
	}

	cal := &Calendar{}
	var (
		inCalendar bool
		seenEnd    bool
		event      *eventBuilder
		nested     int
	)

	for _, cl := range lines {
		switch {
		case cl.name == "BEGIN" && cl.value == "VCALENDAR":
			if inCalendar || seenEnd {
				return nil, &SyntaxError{Line: cl.num, Msg: "unexpected BEGIN:VCALENDAR"}
			}
			inCalendar = true
		case !inCalendar:
			return nil, &SyntaxError{Line: cl.num, Msg: "content outside VCALENDAR"}
		case cl.name == "END" && cl.value == "VCALENDAR":
			if event != nil {
				return nil, &SyntaxError{Line: cl.num, Msg: "unterminated VEVENT"}
			}
			inCalendar = false
			seenEnd = true
		case cl.name == "BEGIN" && cl.value == "VEVENT":
			if event != nil {
				return nil, &SyntaxError{Line: cl.num, Msg: "nested VEVENT"}
			}
			event = &eventBuilder{start: cl.num}
		case cl.name == "END" && cl.value == "VEVENT":
			if event == nil {
				return nil, &SyntaxError{Line: cl.num, Msg: "END:VEVENT without BEGIN"}
			}
			entry, err := event.build()
			if err != nil {
				return nil, err
			}
			cal.Entries = append(cal.Entries, entry)
			event = nil
		case cl.name == "BEGIN":
			// VALARM and other sub-components
			nested++
		case cl.name == "END":
			if nested > 0 {
				nested--
			}
		case nested > 0:
		case event != nil:
			if err := event.set(cl); err != nil {
				return nil, err
			}
		default:
			switch cl.name {
			case "PRODID":
				cal.ProductID = cl.value
			case "X-WR-CALNAME":
				cal.Name = UnescapeText(cl.value)
			}
		}
	}

	if !seenEnd {
		return nil, &SyntaxError{Line: len(lines), Msg: "missing END:VCALENDAR"}
	}
	return cal, nil
}

// unfold joins continuation lines and splits each content line into name and value
func unfold(r io.Reader) ([]contentLine, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		out     []contentLine
		current strings.Builder
		start   int
		num     int
	)
	flush := func() error {
		if current.Len() == 0 {
			return nil
		}
		cl, err := splitContentLine(start, current.String())
		if err != nil {
			return err
		}
		out = append(out, cl)
		current.Reset()
		return nil
	}

	for scanner.Scan() {
		num++
		raw := strings.TrimSuffix(scanner.Text(), "\r")
		if raw == "" {
			continue
		}
		if raw[0] == ' ' || raw[0] == '\t' {
			if current.Len() == 0 {
				return nil, &SyntaxError{Line: num, Msg: "continuation without a preceding line"}
			}
			current.WriteString(raw[1:])
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		start = num
		current.WriteString(raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ical: read: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// splitContentLine separates "NAME;PARAM=x:value". Parameter values may be quoted and contain ':'.
func splitContentLine(num int, s string) (contentLine, error) {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case ':':
			if inQuote {
				continue
			}
			name := s[:i]
			if j := strings.IndexByte(name, ';'); j >= 0 {
				name = name[:j]
			}
			if name == "" {
				return contentLine{}, &SyntaxError{Line: num, Msg: "empty property name"}
			}
			return contentLine{num: num, name: strings.ToUpper(name), value: s[i+1:]}, nil
		}
	}
	return contentLine{}, &SyntaxError{Line: num, Msg: fmt.Sprintf("missing ':' in %q", s)}
}

// UnescapeText reverses EscapeText
func UnescapeText(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ParseTime accepts UTC, floating (read as UTC) and DATE values
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{dateTimeUTC, dateTimeFloating, dateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q", s)
}

type eventBuilder struct {
	start   int
	entry   models.CalendarEntry
	dtstamp time.Time
	hasDT   bool
}

func (b *eventBuilder) set(cl contentLine) error {
	var err error
	switch cl.name {
	case "UID":
		b.entry.UID = strings.TrimSpace(cl.value)
	case "DTSTART":
		b.entry.StartsAt, err = ParseTime(cl.value)
		b.hasDT = err == nil
	case "DTEND":
		b.entry.EndsAt, err = ParseTime(cl.value)
	case "DTSTAMP":
		b.dtstamp, err = ParseTime(cl.value)
	case "LAST-MODIFIED":
		b.entry.LastModified, err = ParseTime(cl.value)
	case "SUMMARY":
		b.entry.Summary = UnescapeText(cl.value)
	case "DESCRIPTION":
		b.entry.Description = UnescapeText(cl.value)
	case "LOCATION":
		b.entry.Location = UnescapeText(cl.value)
	case "URL":
		b.entry.URL = cl.value
	case "STATUS":
		if strings.EqualFold(cl.value, string(models.StatusCancelled)) {
			b.entry.Status = models.StatusCancelled
		}
	case "SEQUENCE":
		b.entry.Sequence, err = strconv.Atoi(strings.TrimSpace(cl.value))
		if err == nil && b.entry.Sequence < 0 {
			err = fmt.Errorf("negative sequence")
		}
	}
	if err != nil {
		return &SyntaxError{Line: cl.num, Msg: fmt.Sprintf("%s: %v", cl.name, err)}
	}
	return nil
}

func (b *eventBuilder) build() (models.CalendarEntry, error) {
	if b.entry.UID == "" {
		return models.CalendarEntry{}, &SyntaxError{Line: b.start, Msg: "VEVENT without UID"}
	}
	if !b.hasDT {
		return models.CalendarEntry{}, &SyntaxError{Line: b.start, Msg: "VEVENT without DTSTART"}
	}
	if b.entry.EndsAt.IsZero() {
		b.entry.EndsAt = b.entry.StartsAt
	}
	if b.entry.LastModified.IsZero() {
		b.entry.LastModified = b.dtstamp
	}
	b.entry.Series = SeriesFromUID(b.entry.UID)
	return b.entry, nil
}

// SeriesFromUID recovers the series from a "{series}-{race_id}@{domain}" uid
func SeriesFromUID(uid string) models.Series {
	prefix, _, ok := strings.Cut(uid, "-")
	if !ok {
		return ""
	}
	s, err := models.ParseSeries(prefix)
	if err != nil {
		return ""
	}
	return s
}
