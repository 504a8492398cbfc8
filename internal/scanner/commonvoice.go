package scanner

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// CommonVoice reads `{dev,test,train}.tsv` with mp3 clips under clips/.
// Clips are transcoded whole; sources are grouped by speaker.
type CommonVoice struct {
	curator *transcript.Curator
}

func NewCommonVoice() *CommonVoice {
	return &CommonVoice{curator: transcript.NewCurator(transcript.WithAccentFolding())}
}

func (c *CommonVoice) Name() string                 { return "commonvoice" }
func (c *CommonVoice) Mode() Mode                   { return WholeFile }
func (c *CommonVoice) Splits() []segment.Split      { return allSplits }
func (c *CommonVoice) Curator() *transcript.Curator { return c.curator }

type cvColumns struct {
	client, path, sentence int
}

func (c *CommonVoice) Discover(root string) ([]Source, error) {
	if err := requireDir(filepath.Join(root, "clips")); err != nil {
		return nil, err
	}

	var sources []Source
	for _, split := range allSplits {
		tsv := filepath.Join(root, string(split)+".tsv")
		if err := requireFile(tsv); err != nil {
			return nil, err
		}
		rows, cols, err := readTSV(tsv)
		if err != nil {
			return nil, err
		}

		key := func(l Line) string {
			fields := strings.Split(l.Text, "\t")
			if cols.client < len(fields) {
				return fields[cols.client]
			}
			return ""
		}
		sources = append(sources, groupLines(rows, key, func(id string) Source {
			return Source{
				Dataset:    c.Name(),
				ID:         id,
				Split:      split,
				Transcript: tsv,
				Audio:      filepath.Join(root, "clips"),
				Transcode:  true,
			}
		})...)
	}
	return sources, nil
}

// readTSV returns data rows re-joined with tabs, plus header positions.
func readTSV(path string) ([]Line, cvColumns, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cvColumns{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, cvColumns{}, fmt.Errorf("%s: header: %w", path, err)
	}
	cols, err := columns(path, header)
	if err != nil {
		return nil, cols, err
	}

	var rows []Line
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, cols, fmt.Errorf("%s: %w", path, err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, Line{No: line, Text: strings.Join(rec, "\t")})
	}
	return rows, cols, nil
}

func (c *CommonVoice) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
	cols, err := readHeader(src.Transcript)
	if err != nil {
		return nil, nil, err
	}

	var (
		utts  []segment.Utterance
		skips []manifest.Skip
	)
	for _, line := range src.Lines {
		fields := strings.Split(line.Text, "\t")
		if cols.path >= len(fields) || cols.sentence >= len(fields) {
			skips = append(skips, malformed(src, line, "short row"))
			continue
		}
		clip := strings.TrimSpace(fields[cols.path])
		sentence := strings.TrimSpace(fields[cols.sentence])
		if clip == "" || sentence == "" {
			skips = append(skips, malformed(src, line, "empty path or sentence"))
			continue
		}
		utts = append(utts, segment.Utterance{
			ID:   strings.TrimSuffix(clip, filepath.Ext(clip)),
			Text: sentence,
		})
	}
	return utts, skips, nil
}

func readHeader(path string) (cvColumns, error) {
	f, err := os.Open(path)
	if err != nil {
		return cvColumns{}, fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return cvColumns{}, fmt.Errorf("%s: header: %w", path, err)
	}
	return columns(path, header)
}

func columns(path string, header []string) (cvColumns, error) {
	cols := cvColumns{client: -1, path: -1, sentence: -1}
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "client_id":
			cols.client = i
		case "path":
			cols.path = i
		case "sentence":
			cols.sentence = i
		}
	}
	if cols.path < 0 || cols.sentence < 0 {
		return cols, fmt.Errorf("%w: %s lacks path/sentence columns", ErrMissingInput, path)
	}
	if cols.client < 0 {
		cols.client = cols.path
	}
	return cols, nil
}

func (c *CommonVoice) LocateAudio(src Source, u segment.Utterance) string {
	return filepath.Join(src.Audio, u.ID+".mp3")
}
