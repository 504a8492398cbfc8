package scanner

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// Fisher reads `<name>.txt` dialogs ("start end speaker: text", seconds)
// next to `<name>.mp3`. Utterances are accumulated into chunks.
type Fisher struct{}

func NewFisher() *Fisher { return &Fisher{} }

func (f *Fisher) Name() string                 { return "fisher" }
func (f *Fisher) Mode() Mode                   { return Accumulate }
func (f *Fisher) Splits() []segment.Split      { return []segment.Split{segment.Train, segment.Test} }
func (f *Fisher) Curator() *transcript.Curator { return transcript.Default }

func (f *Fisher) Discover(root string) ([]Source, error) {
	return recordingsByExt(f.Name(), root, ".txt", ".mp3")
}

// recordingsByExt lists `<root>/*<ext>` annotation files, each paired with
// `<name><audioExt>`.
func recordingsByExt(dataset, root, ext, audioExt string) ([]Source, error) {
	if err := requireDir(root); err != nil {
		return nil, err
	}
	files, err := filepath.Glob(filepath.Join(root, "*"+ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	sources := make([]Source, 0, len(files))
	for _, file := range files {
		name, _, _ := strings.Cut(filepath.Base(file), ".")
		sources = append(sources, Source{
			Dataset:    dataset,
			ID:         name,
			Transcript: file,
			Audio:      filepath.Join(root, name+audioExt),
		})
	}
	return sources, nil
}

func (f *Fisher) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
	lines, err := readLines(src.Transcript)
	if err != nil {
		return nil, nil, err
	}

	var (
		utts  []segment.Utterance
		skips []manifest.Skip
	)
	for _, line := range lines {
		if strings.HasPrefix(line.Text, "#") {
			continue
		}
		fields := strings.Fields(line.Text)
		if len(fields) < 3 {
			skips = append(skips, malformed(src, line, "expected \"<start> <end> <speaker>: <text>\""))
			continue
		}
		start, err1 := strconv.ParseFloat(fields[0], 64)
		end, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			skips = append(skips, malformed(src, line, "bad offsets"))
			continue
		}
		u := segment.Utterance{
			Text:  strings.Join(fields[3:], " "),
			Start: start * 1000,
			End:   end * 1000,
		}
		if err := u.Validate(); err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		utts = append(utts, u)
	}
	return utts, skips, nil
}

func (f *Fisher) LocateAudio(src Source, _ segment.Utterance) string {
	return src.Audio
}
