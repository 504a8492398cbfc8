package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// CHAT-разметка CallHome: события, паралингвистика, вставки на других языках
var callHomeMarkers = []*regexp.Regexp{
	regexp.MustCompile(`&=\S+`),
	regexp.MustCompile(`\[.+?\]`),
	regexp.MustCompile(`@s:\S+`),
}

var callHomeLiterals = []string{"+&", "xxx", "0", "&", "☺", "▔"}

const chatTiming = "\x15"

// CallHome reads CHAT `.cha` transcripts next to `<name>.mp3`. Utterance
// lines start with '*', may continue on following lines and end with a
// \x15start_end\x15 timing in milliseconds; '%' lines are dependent tiers.
type CallHome struct {
	curator *transcript.Curator
}

func NewCallHome() *CallHome {
	return &CallHome{curator: transcript.NewCurator(
		transcript.WithMarkers(callHomeMarkers...),
		transcript.WithLiterals(callHomeLiterals...),
	)}
}

func (c *CallHome) Name() string                 { return "callhome" }
func (c *CallHome) Mode() Mode                   { return Accumulate }
func (c *CallHome) Splits() []segment.Split      { return []segment.Split{segment.Train, segment.Test} }
func (c *CallHome) Curator() *transcript.Curator { return c.curator }

func (c *CallHome) Discover(root string) ([]Source, error) {
	return recordingsByExt(c.Name(), root, ".cha", ".mp3")
}

func (c *CallHome) ParseRecords(src Source) ([]segment.Utterance, []manifest.Skip, error) {
	lines, err := readLines(src.Transcript)
	if err != nil {
		return nil, nil, err
	}

	var (
		utts    []segment.Utterance
		skips   []manifest.Skip
		pending []string
		started bool
	)
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line.Text, "*"):
			started = true
		case strings.HasPrefix(line.Text, "%"):
			started = false
		}
		if !started {
			continue
		}

		_, body, ok := strings.Cut(line.Text, "\t")
		if !ok {
			skips = append(skips, malformed(src, line, "no tab after speaker tier"))
			started = false
			pending = nil
			continue
		}

		parts := strings.Split(body, chatTiming)
		if len(parts) != 3 {
			// продолжение реплики на следующей строке
			pending = append(pending, strings.TrimSpace(body))
			continue
		}

		started = false
		text := strings.TrimSpace(strings.Join(append(pending, strings.TrimSpace(parts[0])), " "))
		pending = nil

		s, e, ok := strings.Cut(parts[1], "_")
		start, err1 := strconv.Atoi(s)
		end, err2 := strconv.Atoi(e)
		if !ok || err1 != nil || err2 != nil {
			skips = append(skips, malformed(src, line, "bad timing "+strconv.Quote(parts[1])))
			continue
		}
		u := segment.Utterance{Text: text, Start: float64(start), End: float64(end)}
		if err := u.Validate(); err != nil {
			skips = append(skips, malformed(src, line, err.Error()))
			continue
		}
		utts = append(utts, u)
	}
	return utts, skips, nil
}

func (c *CallHome) LocateAudio(src Source, _ segment.Utterance) string {
	return src.Audio
}
