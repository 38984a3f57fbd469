// Package edi implements the ANSI X12 text codec used by the billing
// pipeline: 837P professional claim generation, 835 remittance advice
// parsing, claim validation, and the static CARC/RARC reason-code tables.
package edi

import (
	"fmt"
	"strings"
)

// Separators holds the delimiter set for one X12 interchange.
type Separators struct {
	Element   byte // default '*'
	Segment   byte // default '~'
	Component byte // default ':'
}

// DefaultSeparators returns the delimiter set used by the vast majority of
// real-world interchanges.
func DefaultSeparators() Separators {
	return Separators{Element: '*', Segment: '~', Component: ':'}
}

// Segment is one decoded X12 segment: an identifier plus its elements in
// order. Elements[0] is the first element after the segment ID.
type Segment struct {
	ID       string
	Elements []string
}

// Element returns the 1-based element, or "" when absent. SVC01 is
// seg.Element(1).
func (s Segment) Element(n int) string {
	if n < 1 || n > len(s.Elements) {
		return ""
	}
	return s.Elements[n-1]
}

// Composite splits the 1-based element on the component separator.
func (s Segment) Composite(n int, sep Separators) []string {
	el := s.Element(n)
	if el == "" {
		return nil
	}
	return strings.Split(el, string(sep.Component))
}

// String re-encodes the segment with the given separators, terminator
// included.
func (s Segment) String(sep Separators) string {
	var b strings.Builder
	b.WriteString(s.ID)
	for _, el := range s.Elements {
		b.WriteByte(sep.Element)
		b.WriteString(el)
	}
	b.WriteByte(sep.Segment)
	return b.String()
}

// DetectSeparators inspects the ISA envelope for the declared delimiter set.
// The ISA segment is fixed-width: the element separator is the byte after
// "ISA", the component separator is ISA16 (byte 104), and the segment
// terminator follows it (byte 105). Falls back to the common defaults when
// the envelope is too short to declare them.
func DetectSeparators(raw string) (Separators, error) {
	if !strings.HasPrefix(raw, "ISA") {
		return Separators{}, fmt.Errorf("edi: document does not begin with an ISA envelope")
	}
	if len(raw) < 106 {
		// Short or hand-built envelope: sniff the element separator and
		// assume default terminators.
		sep := DefaultSeparators()
		if len(raw) > 3 {
			sep.Element = raw[3]
		}
		return sep, nil
	}
	sep := Separators{
		Element:   raw[3],
		Component: raw[104],
		Segment:   raw[105],
	}
	// Some senders emit a newline-terminated ISA; treat whitespace as "use
	// the default terminator".
	if sep.Segment == '\r' || sep.Segment == '\n' || sep.Segment == ' ' {
		sep.Segment = '~'
	}
	if sep.Component == sep.Element || sep.Component == sep.Segment {
		sep.Component = ':'
	}
	return sep, nil
}

// Scanner produces segments from raw EDI text one at a time. It is a lazy,
// restartable walk: Next returns false at end of input, and a missing final
// terminator still yields the trailing segment.
type Scanner struct {
	raw string
	sep Separators
	pos int
}

// NewScanner returns a Scanner over raw using the given separators.
func NewScanner(raw string, sep Separators) *Scanner {
	return &Scanner{raw: raw, sep: sep}
}

// Next returns the next segment. ok is false when the input is exhausted.
// Empty runs between terminators (including stray newlines) are skipped.
func (sc *Scanner) Next() (seg Segment, ok bool) {
	for sc.pos < len(sc.raw) {
		end := strings.IndexByte(sc.raw[sc.pos:], sc.sep.Segment)
		var chunk string
		if end < 0 {
			chunk = sc.raw[sc.pos:]
			sc.pos = len(sc.raw)
		} else {
			chunk = sc.raw[sc.pos : sc.pos+end]
			sc.pos += end + 1
		}
		chunk = strings.Trim(chunk, "\r\n ")
		if chunk == "" {
			continue
		}
		parts := strings.Split(chunk, string(sc.sep.Element))
		return Segment{ID: parts[0], Elements: parts[1:]}, true
	}
	return Segment{}, false
}

// Reset rewinds the scanner to the beginning of the input.
func (sc *Scanner) Reset() { sc.pos = 0 }

// segmentWriter accumulates segments for encoding and tracks the count for
// the SE trailer.
type segmentWriter struct {
	sep  Separators
	segs []Segment
}

func newSegmentWriter(sep Separators) *segmentWriter {
	return &segmentWriter{sep: sep}
}

func (w *segmentWriter) Add(id string, elements ...string) {
	w.segs = append(w.segs, Segment{ID: id, Elements: elements})
}

// Count returns the number of segments written so far.
func (w *segmentWriter) Count() int { return len(w.segs) }

// String renders all segments, one per line for readability. Trading
// partners accept either form; the terminator remains authoritative.
func (w *segmentWriter) String() string {
	var b strings.Builder
	for _, s := range w.segs {
		b.WriteString(s.String(w.sep))
		b.WriteByte('\n')
	}
	return b.String()
}

// sanitize strips the active delimiter characters from free-text element
// values. X12 has no escape mechanism, so embedded delimiters are removed
// rather than escaped.
func sanitize(v string, sep Separators) string {
	r := strings.NewReplacer(
		string(sep.Element), " ",
		string(sep.Segment), " ",
		string(sep.Component), " ",
	)
	return strings.TrimSpace(r.Replace(v))
}
