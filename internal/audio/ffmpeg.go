package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrCorruptAudio - источник не декодируется
var ErrCorruptAudio = errors.New("corrupt audio")

// SliceRequest describes one cut of a source recording. EndMs <= 0 means
// "until the end of the file".
type SliceRequest struct {
	Source  string
	StartMs float64
	EndMs   float64
	Channel int
	Dst     string
}

// FFmpeg is the audio collaborator: it cuts, resamples to 16 kHz mono
// 16-bit, and encodes lossless through external binaries.
type FFmpeg struct {
	FFmpegBin   string
	FFprobeBin  string
	SoxBin      string
	Sph2PipeBin string
	SampleRate  int
	Codec       string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{
		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",
		SoxBin:     "sox",
		SampleRate: 16000,
		Codec:      "flac",
	}
}

// Slice cuts req.Source into req.Dst. The result is written next to the
// target and renamed, so an interrupted run never leaves a partial file.
func (f *FFmpeg) Slice(ctx context.Context, req SliceRequest) error {
	if err := os.MkdirAll(filepath.Dir(req.Dst), 0755); err != nil {
		return err
	}
	tmp := tmpName(req.Dst)
	defer os.Remove(tmp)

	if f.usesSphere(req.Source) {
		if err := f.sliceSphere(ctx, req, tmp); err != nil {
			return err
		}
	} else {
		cmd := exec.CommandContext(ctx, f.FFmpegBin, f.sliceArgs(req, req.Source, tmp)...)
		if output, err := cmd.CombinedOutput(); err != nil {
			return runFailed("ffmpeg", req.Source, err, output)
		}
	}

	return os.Rename(tmp, req.Dst)
}

// Convert transcodes a whole file.
func (f *FFmpeg) Convert(ctx context.Context, src, dst string) error {
	return f.Slice(ctx, SliceRequest{Source: src, Dst: dst})
}

func (f *FFmpeg) sliceArgs(req SliceRequest, input, output string) []string {
	args := []string{"-y", "-v", "error"}
	if req.StartMs > 0 {
		args = append(args, "-ss", seconds(req.StartMs))
	}
	args = append(args, "-i", input)
	if req.EndMs > 0 {
		args = append(args, "-t", seconds(req.EndMs-req.StartMs))
	}
	if req.Channel > 0 && !f.usesSphere(req.Source) {
		args = append(args, "-af", fmt.Sprintf("pan=mono|c0=c%d", req.Channel-1))
	}
	args = append(args,
		"-ar", fmt.Sprintf("%d", f.SampleRate),
		"-ac", "1",
		"-sample_fmt", "s16",
		"-c:a", f.Codec,
		"-f", f.Codec,
		output,
	)
	return args
}

func (f *FFmpeg) usesSphere(path string) bool {
	return f.Sph2PipeBin != "" && strings.EqualFold(filepath.Ext(path), ".sph")
}

// sliceSphere pipes sph2pipe output into ffmpeg.
func (f *FFmpeg) sliceSphere(ctx context.Context, req SliceRequest, tmp string) error {
	sphArgs := []string{"-f", "rif", "-p"}
	if req.Channel > 0 {
		sphArgs = append(sphArgs, "-c", fmt.Sprintf("%d", req.Channel))
	}
	sphArgs = append(sphArgs, req.Source)

	decode := exec.CommandContext(ctx, f.Sph2PipeBin, sphArgs...)
	encode := exec.CommandContext(ctx, f.FFmpegBin, f.sliceArgs(req, "pipe:0", tmp)...)

	pipe, err := decode.StdoutPipe()
	if err != nil {
		return err
	}
	encode.Stdin = pipe

	var decErr, encErr bytes.Buffer
	decode.Stderr = &decErr
	encode.Stderr = &encErr

	if err := decode.Start(); err != nil {
		return fmt.Errorf("sph2pipe start: %w", err)
	}
	if err := encode.Run(); err != nil {
		decode.Wait()
		return runFailed("ffmpeg", req.Source, err, encErr.Bytes())
	}
	if err := decode.Wait(); err != nil {
		return runFailed("sph2pipe", req.Source, err, decErr.Bytes())
	}
	return nil
}

// Concat joins inputs into dst with gapMs of silence between them.
func (f *FFmpeg) Concat(ctx context.Context, inputs []string, gapMs float64, dst string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input files")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if len(inputs) == 1 {
		return f.Convert(ctx, inputs[0], dst)
	}

	tmpDir, err := os.MkdirTemp("", "concat_")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	// sox -n -r 16000 -c 1 -b 16 silence.wav trim 0.0 0.5
	silencePath := filepath.Join(tmpDir, "silence.wav")
	cmdSilence := exec.CommandContext(ctx, f.SoxBin, "-n",
		"-r", fmt.Sprintf("%d", f.SampleRate), "-c", "1", "-b", "16",
		silencePath, "trim", "0.0", seconds(gapMs))
	if output, err := cmdSilence.CombinedOutput(); err != nil {
		return fmt.Errorf("create silence failed: %v, output: %s", err, lastLine(output))
	}

	tmp := tmpName(dst)
	defer os.Remove(tmp)

	// sox file1 silence file2 silence file3 -> output
	var args []string
	for i, path := range inputs {
		args = append(args, path)
		if i < len(inputs)-1 {
			args = append(args, silencePath)
		}
	}
	args = append(args, "-r", fmt.Sprintf("%d", f.SampleRate), "-c", "1", "-b", "16", "-t", f.Codec, tmp)

	cmd := exec.CommandContext(ctx, f.SoxBin, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return runFailed("sox concat", dst, err, output)
	}
	return os.Rename(tmp, dst)
}

// runFailed classifies a failed tool run. Only a tool that ran and exited
// non-zero says anything about the input; a tool that could not be started
// is a setup error.
func runFailed(tool, path string, err error, output []byte) error {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("%s: %w", tool, err)
	}
	msg := lastLine(output)
	if msg == "" {
		msg = lastLine(exitErr.Stderr)
	}
	return fmt.Errorf("%w: %s %s: %v: %s", ErrCorruptAudio, tool, path, err, msg)
}

func tmpName(dst string) string {
	return filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".part")
}

func seconds(ms float64) string {
	return fmt.Sprintf("%.3f", ms/1000)
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return lines[len(lines)-1]
}
