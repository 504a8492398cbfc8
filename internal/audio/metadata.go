package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/wav"
)

type Metadata struct {
	DurationSec float64 `json:"duration_sec"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
	BitDepth    int     `json:"bit_depth"`
	FileSize    int64   `json:"file_size"`
	Codec       string  `json:"codec"`
	Format      string  `json:"format"`
}

// Probe reads stream metadata via ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Metadata, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, f.FFprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	out, err := cmd.Output()
	if err != nil {
		return nil, runFailed("ffprobe", path, err, nil)
	}

	var probe struct {
		Streams []struct {
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			BitsPerSample int    `json:"bits_per_sample"`
			CodecName     string `json:"codec_name"`
		} `json:"streams"`
		Format struct {
			Duration   string `json:"duration"`
			FormatName string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, err
	}

	m := &Metadata{FileSize: fi.Size()}

	m.DurationSec, err = strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: no duration %q", ErrCorruptAudio, path, probe.Format.Duration)
	}
	m.Format = probe.Format.FormatName

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio streams in %s", ErrCorruptAudio, path)
	}
	s := probe.Streams[0]
	m.SampleRate, _ = strconv.Atoi(s.SampleRate)
	m.Channels = s.Channels
	m.BitDepth = s.BitsPerSample
	m.Codec = s.CodecName

	return m, nil
}

// DurationMs returns the length of path in milliseconds. WAV headers are
// read directly; everything else goes through ffprobe.
func (f *FFmpeg) DurationMs(ctx context.Context, path string) (float64, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if ms, err := WavDurationMs(path); err == nil {
			return ms, nil
		}
	}
	m, err := f.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return m.DurationSec * 1000, nil
}

// WavDurationMs reads the duration from a RIFF/WAVE header.
func WavDurationMs(path string) (float64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	d, err := wav.NewDecoder(fh).Duration()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorruptAudio, path, err)
	}
	return float64(d.Milliseconds()), nil
}
