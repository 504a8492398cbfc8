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

// AMIVariant selects the microphone setup.
type AMIVariant string

const (
	IHM AMIVariant = "ihm"
	SDM AMIVariant = "sdm"
)

// AMI reads per-split `name text` files where names look like
// AMI_ES2011a_H00_FEE041_0003415_0003484 (offsets in centiseconds).
type AMI struct {
	variant AMIVariant
}

func NewAMI(v AMIVariant) *AMI {
	return &AMI{variant: v}
}

func (a *AMI) Name() string                 { return "ami-" + string(a.variant) }
func (a *AMI) Mode() Mode                   { return PerUtterance }
func (a *AMI) Splits() []segment.Split      { return allSplits }
func (a *AMI) Curator() *transcript.Curator { return transcript.Default }

type amiName struct {
	scenario string
	headset  int
	start    float64
	end      float64
}

func parseAMIName(name string) (amiName, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 6 {
		return amiName{}, fmt.Errorf("%w: AMI name %q", segment.ErrMalformedRecord, name)
	}
	start, err1 := strconv.Atoi(parts[4])
	end, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return amiName{}, fmt.Errorf("%w: AMI offsets in %q", segment.ErrMalformedRecord, name)
	}
	n := amiName{scenario: parts[1], start: float64(start) * 10, end: float64(end) * 10}
	if hdr := parts[2]; len(hdr) > 2 {
		if h, err := strconv.Atoi(hdr[2:]); err == nil {
			n.headset = h
		}
	}
	return n, nil
}

func (a *AMI) Discover(root string) ([]Source, error) {
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
			if n, err := parseAMIName(name); err == nil {
				return n.scenario
			}
			return ""
		}
		sources = append(sources, groupLines(lines, key, func(id string) Source {
			return Source{
				Dataset:    a.Name(),
				ID:         id,
				Split:      split,
				Transcript: path,
				Audio:      filepath.Join(root, id, "audio"),
			}
		})...)
	}
	return sources, nil
}

func (a *AMI) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
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
		n, err := parseAMIName(name)
		if err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		u := segment.Utterance{ID: name, Text: text, Start: n.start, End: n.end}
		if err := u.Validate(); err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		utts = append(utts, u)
	}
	return utts, skips, nil
}

// LocateAudio: IHM has one file per headset, SDM the first array mic.
func (a *AMI) LocateAudio(src Source, u segment.Utterance) string {
	if a.variant == SDM {
		return filepath.Join(src.Audio, src.ID+".Array1-01.wav")
	}
	n, _ := parseAMIName(u.ID)
	return filepath.Join(src.Audio, fmt.Sprintf("%s.Headset-%d.wav", src.ID, n.headset))
}
