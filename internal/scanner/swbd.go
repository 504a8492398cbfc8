package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// SWBD reads a Kaldi `text` file with ids like sw02001-A_000098-001156
// (side, start and end in centiseconds) and the `<name>.sph` recordings
// found anywhere under the root. Side A is channel 1, B is channel 2.
type SWBD struct{}

func NewSWBD() *SWBD { return &SWBD{} }

func (s *SWBD) Name() string                 { return "swbd" }
func (s *SWBD) Mode() Mode                   { return PerUtterance }
func (s *SWBD) Splits() []segment.Split      { return []segment.Split{segment.Train} }
func (s *SWBD) Curator() *transcript.Curator { return transcript.Default }

type swbdID struct {
	recording string
	channel   int
	start     float64
	end       float64
}

func parseSWBDID(id string) (swbdID, error) {
	rec, meta, ok := strings.Cut(id, "-")
	if !ok {
		return swbdID{}, fmt.Errorf("%w: swbd id %q", segment.ErrMalformedRecord, id)
	}
	side, span, ok := strings.Cut(meta, "_")
	if !ok {
		return swbdID{}, fmt.Errorf("%w: swbd id %q", segment.ErrMalformedRecord, id)
	}
	from, to, ok := strings.Cut(span, "-")
	if !ok {
		return swbdID{}, fmt.Errorf("%w: swbd id %q", segment.ErrMalformedRecord, id)
	}
	start, err1 := strconv.Atoi(from)
	end, err2 := strconv.Atoi(to)
	if err1 != nil || err2 != nil {
		return swbdID{}, fmt.Errorf("%w: swbd offsets in %q", segment.ErrMalformedRecord, id)
	}

	channel := 1
	if side == "B" {
		channel = 2
	}
	return swbdID{recording: rec, channel: channel, start: float64(start) * 10, end: float64(end) * 10}, nil
}

func (s *SWBD) Discover(root string) ([]Source, error) {
	if err := requireDir(root); err != nil {
		return nil, err
	}
	textPath := filepath.Join(root, "text")
	lines, err := readLines(textPath)
	if err != nil {
		return nil, err
	}

	spheres := map[string]string{}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".sph") {
			name, _, _ := strings.Cut(filepath.Base(path), ".")
			spheres[name] = path
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	key := func(l Line) string {
		id, _, _ := strings.Cut(strings.TrimSpace(l.Text), " ")
		rec, _, _ := strings.Cut(id, "-")
		return rec
	}
	return groupLines(lines, key, func(id string) Source {
		return Source{
			Dataset:    s.Name(),
			ID:         id,
			Split:      segment.Train,
			Transcript: textPath,
			Audio:      spheres[id],
		}
	}), nil
}

// ParseRecords keeps only purely alphabetic utterances; the rest are noise
// or partial-word annotations.
func (s *SWBD) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
	var (
		utts  []segment.Utterance
		skips []manifest.Skip
	)
	for i, line := range src.Lines {
		id, text, ok := nameText(line.Text)
		if !ok {
			skips = append(skips, malformed(src, line, "expected \"<id> <text>\""))
			continue
		}
		meta, err := parseSWBDID(id)
		if err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		if !transcript.IsAlpha(text) {
			skips = append(skips, manifest.Skip{
				Reason: manifest.ReasonNotAlpha,
				Source: src.Transcript,
				Line:   line.No,
				ID:     id,
				Detail: text,
			})
			continue
		}
		u := segment.Utterance{
			ID:      fmt.Sprintf("%s_%d", src.ID, i),
			Text:    text,
			Start:   meta.start,
			End:     meta.end,
			Channel: meta.channel,
		}
		if err := u.Validate(); err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		utts = append(utts, u)
	}
	return utts, skips, nil
}

func (s *SWBD) LocateAudio(src Source, _ segment.Utterance) string {
	return src.Audio
}
