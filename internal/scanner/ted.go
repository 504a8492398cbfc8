package scanner

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// TED reads TED-LIUM per-split `name text` files, names being
// <talk>-<start>-<end> in centiseconds; audio is legacy/<split>/sph/<talk>.sph.
type TED struct{}

func NewTED() *TED { return &TED{} }

func (t *TED) Name() string                 { return "ted" }
func (t *TED) Mode() Mode                   { return PerUtterance }
func (t *TED) Splits() []segment.Split      { return allSplits }
func (t *TED) Curator() *transcript.Curator { return transcript.Default }

// parseTEDName splits off the two trailing offsets; talk names may contain
// dashes themselves.
func parseTEDName(name string) (talk string, start, end float64, err error) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return "", 0, 0, fmt.Errorf("%w: TED name %q", segment.ErrMalformedRecord, name)
	}
	j := strings.LastIndex(name[:i], "-")
	if j <= 0 {
		return "", 0, 0, fmt.Errorf("%w: TED name %q", segment.ErrMalformedRecord, name)
	}
	s, err1 := strconv.Atoi(name[j+1 : i])
	e, err2 := strconv.Atoi(name[i+1:])
	if err1 != nil || err2 != nil {
		return "", 0, 0, fmt.Errorf("%w: TED offsets in %q", segment.ErrMalformedRecord, name)
	}
	return name[:j], float64(s) * 10, float64(e) * 10, nil
}

func (t *TED) Discover(root string) ([]Source, error) {
	if err := requireDir(root); err != nil {
		return nil, err
	}

	var sources []Source
	for _, split := range allSplits {
		path := filepath.Join(root, string(split))
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		key := func(l Line) string {
			name, _, _ := nameText(l.Text)
			talk, _, _, err := parseTEDName(name)
			if err != nil {
				return ""
			}
			return talk
		}
		sources = append(sources, groupLines(lines, key, func(id string) Source {
			return Source{
				Dataset:    t.Name(),
				ID:         id,
				Split:      split,
				Transcript: path,
				Audio:      filepath.Join(root, "legacy", string(split), "sph", id+".sph"),
			}
		})...)
	}
	return sources, nil
}

func (t *TED) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
	var (
		utts  []segment.Utterance
		skips []manifest.Skip
	)
	for _, line := range src.Lines {
		name, text, ok := nameText(line.Text)
		if !ok {
			skips = append(skips, malformed(src, line, "expected \"<name> <text>\""))
			continue
		}
		_, start, end, err := parseTEDName(name)
		if err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		u := segment.Utterance{ID: name, Text: text, Start: start, End: end}
		if err := u.Validate(); err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		utts = append(utts, u)
	}
	return utts, skips, nil
}

func (t *TED) LocateAudio(src Source, _ segment.Utterance) string {
	return src.Audio
}
