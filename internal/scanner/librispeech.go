package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// DefaultLibriSubsets - какие подкаталоги LibriSpeech идут в какой сплит
var DefaultLibriSubsets = map[segment.Split][]string{
	segment.Train: {"train-clean-100"},
	segment.Dev:   {"dev-other"},
	segment.Test:  {"test-other"},
}

// LibriSpeech reads `<subset>/<spk>/<chapter>/<spk>-<chapter>.trans.txt`.
// Audio is already cut per utterance, so records reference the source
// FLAC files directly.
type LibriSpeech struct {
	subsets map[segment.Split][]string
}

func NewLibriSpeech(subsets map[segment.Split][]string) *LibriSpeech {
	if subsets == nil {
		subsets = DefaultLibriSubsets
	}
	return &LibriSpeech{subsets: subsets}
}

func (l *LibriSpeech) Name() string                 { return "librispeech" }
func (l *LibriSpeech) Mode() Mode                   { return WholeFile }
func (l *LibriSpeech) Curator() *transcript.Curator { return transcript.Default }

func (l *LibriSpeech) Splits() []segment.Split {
	var out []segment.Split
	for _, s := range allSplits {
		if len(l.subsets[s]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func (l *LibriSpeech) Discover(root string) ([]Source, error) {
	var sources []Source
	for _, split := range l.Splits() {
		for _, subset := range l.subsets[split] {
			dir := filepath.Join(root, subset)
			if err := requireDir(dir); err != nil {
				return nil, err
			}

			var files []string
			err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && strings.HasSuffix(path, ".trans.txt") {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			sort.Strings(files)

			for _, f := range files {
				sources = append(sources, Source{
					Dataset:    l.Name(),
					ID:         strings.TrimSuffix(filepath.Base(f), ".trans.txt"),
					Split:      split,
					Transcript: f,
					Subset:     subset,
				})
			}
		}
	}
	return sources, nil
}

// ParseRecords reads "ID текст транскрипции" lines. Ids are prefixed with
// the subset so they stay unique across subsets.
func (l *LibriSpeech) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
	lines, err := readLines(src.Transcript)
	if err != nil {
		return nil, nil, err
	}

	var (
		utts  []segment.Utterance
		skips []manifest.Skip
	)
	for _, line := range lines {
		id, text, ok := nameText(line.Text)
		if !ok {
			skips = append(skips, malformed(src, line, "expected \"<id> <text>\""))
			continue
		}
		utts = append(utts, segment.Utterance{ID: src.Subset + "-" + id, Text: text})
	}
	return utts, skips, nil
}

func (l *LibriSpeech) LocateAudio(src Source, u segment.Utterance) string {
	id := strings.TrimPrefix(u.ID, src.Subset+"-")
	path, err := filepath.Abs(filepath.Join(filepath.Dir(src.Transcript), id+".flac"))
	if err != nil {
		return filepath.Join(filepath.Dir(src.Transcript), id+".flac")
	}
	return path
}
