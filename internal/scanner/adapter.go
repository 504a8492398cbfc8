package scanner

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// ErrMissingInput - нет ожидаемого файла или каталога датасета
var ErrMissingInput = errors.New("missing input")

// Mode says how a dataset's utterances become audio files.
type Mode int

const (
	// Accumulate merges consecutive utterances of a recording into chunks.
	Accumulate Mode = iota
	// PerUtterance slices every utterance out of its recording.
	PerUtterance
	// WholeFile uses one source file per utterance as is (or transcoded).
	WholeFile
)

func (m Mode) String() string {
	switch m {
	case Accumulate:
		return "accumulate"
	case PerUtterance:
		return "per-utterance"
	case WholeFile:
		return "whole-file"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Line is one raw annotation line with its 1-based position in Transcript.
type Line struct {
	No   int
	Text string
}

// Source is one independent unit of work: a recording, or a group of
// annotation lines that belong together.
type Source struct {
	Dataset    string
	ID         string
	Split      segment.Split // пусто - сплит выбирает Router
	Transcript string
	Lines      []Line
	Audio      string
	Subset     string
	Transcode  bool
}

// Adapter knows one dataset's native layout.
type Adapter interface {
	Name() string
	Mode() Mode
	// Splits lists the manifests the dataset produces.
	Splits() []segment.Split
	Curator() *transcript.Curator
	Discover(root string) ([]Source, error)
	ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error)
	LocateAudio(src Source, u segment.Utterance) string
}

var registry = map[string]func() Adapter{
	"librispeech": func() Adapter { return NewLibriSpeech(nil) },
	"commonvoice": func() Adapter { return NewCommonVoice() },
	"ami-ihm":     func() Adapter { return NewAMI(IHM) },
	"ami-sdm":     func() Adapter { return NewAMI(SDM) },
	"ted":         func() Adapter { return NewTED() },
	"fisher":      func() Adapter { return NewFisher() },
	"callhome":    func() Adapter { return NewCallHome() },
	"swbd":        func() Adapter { return NewSWBD() },
}

// New returns the adapter registered under name.
func New(name string) (Adapter, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names returns registered dataset names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var allSplits = []segment.Split{segment.Dev, segment.Test, segment.Train}

func requireDir(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMissingInput, path)
	}
	return nil
}

func requireFile(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrMissingInput, path)
	}
	return nil
}

// readLines returns the non-empty lines of path with their line numbers.
func readLines(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
		}
		return nil, err
	}
	defer f.Close()

	var lines []Line
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	no := 0
	for sc.Scan() {
		no++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		lines = append(lines, Line{No: no, Text: text})
	}
	return lines, sc.Err()
}

// groupLines splits lines into sources keyed by key(line), in order of first
// appearance.
func groupLines(lines []Line, key func(Line) string, mk func(id string) Source) []Source {
	index := map[string]int{}
	var out []Source
	for _, l := range lines {
		k := key(l)
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, mk(k))
		}
		out[i].Lines = append(out[i].Lines, l)
	}
	return out
}

// nameText splits "name rest of text" on the first space.
func nameText(line string) (string, string, bool) {
	name, text, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok || name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(text), true
}

func malformed(src Source, l Line, detail string) manifest.Skip {
	return manifest.Skip{
		Reason: manifest.ReasonMalformed,
		Source: src.Transcript,
		Line:   l.No,
		Detail: detail,
	}
}
