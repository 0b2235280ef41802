// Package ical encodes and decodes the subset of RFC 5545 the calendar pipeline publishes.
// Output is byte-stable: properties are written in a fixed order, every time is UTC and
// DTSTAMP repeats LAST-MODIFIED so nothing depends on the wall clock.
package ical

import (
	"bytes"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yourusername/nascar-calendar/internal/models"
)

const (
	// maxLineOctets is the RFC 5545 line length limit, excluding CRLF
	maxLineOctets = 75
	crlf          = "\r\n"
	dateTimeUTC   = "20060102T150405Z"
)

// Calendar is a VCALENDAR holding VEVENTs in document order
type Calendar struct {
	ProductID string
	Name      string
	Entries   []models.CalendarEntry
}

// ByUID indexes the entries by uid; the first occurrence of a uid wins
func (c *Calendar) ByUID() map[string]models.CalendarEntry {
	out := make(map[string]models.CalendarEntry, len(c.Entries))
	for _, e := range c.Entries {
		if _, ok := out[e.UID]; !ok {
			out[e.UID] = e
		}
	}
	return out
}

// Encode renders the calendar. Entries are written in the order given.
func Encode(cal Calendar) []byte {
	var b bytes.Buffer
	w := &lineWriter{buf: &b}

	w.line("BEGIN:VCALENDAR")
	w.line("VERSION:2.0")
	w.line("PRODID:" + cal.ProductID)
	w.line("CALSCALE:GREGORIAN")
	w.line("METHOD:PUBLISH")
	w.line("X-WR-CALNAME:" + EscapeText(cal.Name))
	w.line("X-WR-TIMEZONE:UTC")

	for _, e := range cal.Entries {
		writeEvent(w, e)
	}

	w.line("END:VCALENDAR")
	return b.Bytes()
}

func writeEvent(w *lineWriter, e models.CalendarEntry) {
	lastModified := FormatTime(e.LastModified)

	w.line("BEGIN:VEVENT")
	w.line("UID:" + e.UID)
	w.line("DTSTAMP:" + lastModified)
	w.line("DTSTART:" + FormatTime(e.StartsAt))
	w.line("DTEND:" + FormatTime(e.EndsAt))
	w.line("SUMMARY:" + EscapeText(e.Summary))
	w.line("DESCRIPTION:" + EscapeText(e.Description))
	w.line("LOCATION:" + EscapeText(e.Location))
	if e.URL != "" {
		w.line("URL:" + e.URL)
	}
	if e.Status != models.StatusScheduled {
		w.line("STATUS:" + string(e.Status))
	}
	w.line("SEQUENCE:" + strconv.Itoa(e.Sequence))
	w.line("LAST-MODIFIED:" + lastModified)
	w.line("END:VEVENT")
}

// FormatTime renders t as a UTC DATE-TIME, dropping sub-second precision
func FormatTime(t time.Time) string {
	return t.UTC().Format(dateTimeUTC)
}

// EscapeText escapes a TEXT value. Line breaks of any style become \n.
func EscapeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case ';':
			b.WriteString(`\;`)
		case ',':
			b.WriteString(`\,`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type lineWriter struct {
	buf *bytes.Buffer
}

// line writes a content line folded at 75 octets without splitting a UTF-8 sequence.
// Continuation lines start with a single space, which counts toward their 75 octets.
func (w *lineWriter) line(s string) {
	limit := maxLineOctets
	for len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		w.buf.WriteString(s[:cut])
		w.buf.WriteString(crlf)
		w.buf.WriteByte(' ')
		s = s[cut:]
		limit = maxLineOctets - 1
	}
	w.buf.WriteString(s)
	w.buf.WriteString(crlf)
}
