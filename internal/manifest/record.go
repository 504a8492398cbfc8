package manifest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"corpus-prep/internal/segment"
)

// Record - одна строка манифеста: id, путь к аудио, длительность (мс), текст
type Record struct {
	ID         string  `json:"id"`
	Path       string  `json:"path"`
	DurationMs float64 `json:"duration_ms"`
	Text       string  `json:"text"`
}

// String renders the manifest line "{id} {path} {duration}.0 {text}".
func (r Record) String() string {
	return fmt.Sprintf("%s %s %d.0 %s", r.ID, r.Path, int64(math.Round(r.DurationMs)), r.Text)
}

// ParseRecord splits a manifest line on its first three spaces; the rest is
// the transcript.
func ParseRecord(line string) (Record, error) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 4)
	if len(parts) < 3 {
		return Record{}, fmt.Errorf("%w: %d fields in %q", segment.ErrMalformedRecord, len(parts), line)
	}
	dur, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: duration %q", segment.ErrMalformedRecord, parts[2])
	}
	r := Record{ID: parts[0], Path: parts[1], DurationMs: dur}
	if len(parts) == 4 {
		r.Text = parts[3]
	}
	return r, nil
}

type Reason string

const (
	ReasonMalformed    Reason = "malformed_record"
	ReasonCorruptAudio Reason = "corrupt_audio"
	ReasonMissingAudio Reason = "missing_audio"
	ReasonShortText    Reason = "short_text"
	ReasonNotAlpha     Reason = "not_alpha"
)

// Skip explains why a record did not make it into a manifest.
type Skip struct {
	Reason Reason `json:"reason"`
	Source string `json:"source,omitempty"`
	Line   int    `json:"line,omitempty"`
	ID     string `json:"id,omitempty"`
	Path   string `json:"path,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (s Skip) String() string {
	var b strings.Builder
	b.WriteString(string(s.Reason))
	if s.Source != "" {
		fmt.Fprintf(&b, " %s", s.Source)
		if s.Line > 0 {
			fmt.Fprintf(&b, ":%d", s.Line)
		}
	}
	if s.ID != "" {
		fmt.Fprintf(&b, " id=%s", s.ID)
	}
	if s.Path != "" {
		fmt.Fprintf(&b, " path=%s", s.Path)
	}
	if s.Detail != "" {
		fmt.Fprintf(&b, " (%s)", s.Detail)
	}
	return b.String()
}

// Outcome is the per-chunk result: a kept record routed to a split, or a skip.
type Outcome struct {
	Split  segment.Split
	Record Record
	Skip   *Skip
}

func (o Outcome) Kept() bool {
	return o.Skip == nil
}

func Kept(split segment.Split, r Record) Outcome {
	return Outcome{Split: split, Record: r}
}

func Skipped(s Skip) Outcome {
	return Outcome{Skip: &s}
}
