package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Message is a parsed HL7 v2 message.
type Message struct {
	Type         string    // MSH-9 message type (e.g. "ORU^R01")
	ControlID    string    // MSH-10
	Version      string    // MSH-12
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Segments     []Segment
}

// Segment is a single pipe-delimited HL7 segment.
type Segment struct {
	Name   string // e.g. "MSH", "PID", "OBX"
	Fields []Field
}

// Field holds a raw field value with its component (^) and repetition (~) splits.
type Field struct {
	Value      string
	Components []string
	Repeats    [][]string
}

// Parse parses raw HL7 v2 bytes into a Message. Segment separators may be
// \r, \n, or \r\n. The first segment must be MSH.
func Parse(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("hl7v2: message is empty")
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("hl7v2: no segments found")
	}
	if !strings.HasPrefix(lines[0], "MSH") {
		return nil, fmt.Errorf("hl7v2: first segment must be MSH, got %q", lines[0][:min(3, len(lines[0]))])
	}

	msg := &Message{}
	for _, line := range lines {
		seg, err := parseSegment(line)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: parse segment: %w", err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	msg.readHeader()
	return msg, nil
}

// ValidateORU checks the structural requirements for an ORU result message:
// a PID segment and at least one OBX segment must be present.
func (m *Message) ValidateORU() error {
	if !strings.HasPrefix(m.Type, "ORU") {
		return fmt.Errorf("hl7v2: expected ORU message, got %q", m.Type)
	}
	if m.Segment("PID") == nil {
		return fmt.Errorf("hl7v2: ORU message missing PID segment")
	}
	if len(m.AllSegments("OBX")) == 0 {
		return fmt.Errorf("hl7v2: ORU message has no OBX segments")
	}
	return nil
}

func parseSegment(line string) (Segment, error) {
	if len(line) < 3 {
		return Segment{}, fmt.Errorf("segment too short: %q", line)
	}

	// MSH is special: the field separator character is MSH-1 itself, so the
	// first stored field is the separator and MSH-2 is the encoding chars.
	if strings.HasPrefix(line, "MSH") {
		seg := Segment{Name: "MSH"}
		if len(line) < 4 {
			return seg, nil
		}
		sep := string(line[3])
		seg.Fields = append(seg.Fields, Field{Value: sep, Components: []string{sep}})
		for _, part := range strings.Split(line[4:], sep) {
			seg.Fields = append(seg.Fields, parseField(part))
		}
		return seg, nil
	}

	parts := strings.SplitN(line, "|", 2)
	seg := Segment{Name: parts[0]}
	if len(parts) > 1 {
		for _, f := range strings.Split(parts[1], "|") {
			seg.Fields = append(seg.Fields, parseField(f))
		}
	}
	return seg, nil
}

func parseField(raw string) Field {
	f := Field{Value: raw}
	for _, rep := range strings.Split(raw, "~") {
		f.Repeats = append(f.Repeats, strings.Split(rep, "^"))
	}
	f.Components = f.Repeats[0]
	return f
}

// readHeader lifts the commonly used MSH fields onto the Message.
func (m *Message) readHeader() {
	msh := m.Segment("MSH")
	if msh == nil {
		return
	}
	m.SendingApp = msh.GetField(3)
	m.SendingFac = msh.GetField(4)
	m.ReceivingApp = msh.GetField(5)
	m.ReceivingFac = msh.GetField(6)
	m.Type = msh.GetField(9)
	m.ControlID = msh.GetField(10)
	m.Version = msh.GetField(12)

	if ts := msh.GetField(7); ts != "" {
		if t, err := parseTimestamp(ts); err == nil {
			m.Timestamp = t
		}
	}
}

// parseTimestamp parses an HL7 v2 timestamp (YYYYMMDD[HHmm[ss]]).
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp %q", s)
	}
}

// Segment returns the first segment with the given name, or nil.
func (m *Message) Segment(name string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			return &m.Segments[i]
		}
	}
	return nil
}

// AllSegments returns every segment with the given name, in message order.
func (m *Message) AllSegments(name string) []Segment {
	var out []Segment
	for _, seg := range m.Segments {
		if seg.Name == name {
			out = append(out, seg)
		}
	}
	return out
}

// GetField returns a field value by its 1-based HL7 index.
// For MSH, index 1 is the field separator itself.
func (s *Segment) GetField(index int) string {
	idx := index - 1
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	return s.Fields[idx].Value
}

// GetComponent returns a component value by 1-based field and component indices.
func (s *Segment) GetComponent(fieldIdx, compIdx int) string {
	idx := fieldIdx - 1
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	ci := compIdx - 1
	comps := s.Fields[idx].Components
	if ci < 0 || ci >= len(comps) {
		return ""
	}
	return comps[ci]
}

// PatientID returns PID-3.1: the first component of the first repetition of
// the patient identifier field.
func (m *Message) PatientID() string {
	pid := m.Segment("PID")
	if pid == nil {
		return ""
	}
	return pid.GetComponent(3, 1)
}

// PlacerOrderNumber returns ORC-2, the placer order number, if present.
func (m *Message) PlacerOrderNumber() string {
	orc := m.Segment("ORC")
	if orc == nil {
		return ""
	}
	return orc.GetField(2)
}

// Escape escapes HL7 delimiter characters using standard escape sequences.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\E\\")
	s = strings.ReplaceAll(s, "|", "\\F\\")
	s = strings.ReplaceAll(s, "^", "\\S\\")
	s = strings.ReplaceAll(s, "~", "\\R\\")
	s = strings.ReplaceAll(s, "&", "\\T\\")
	return s
}
