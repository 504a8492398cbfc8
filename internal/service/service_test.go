package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpus-prep/internal/audio"
	"corpus-prep/internal/db"
	"corpus-prep/internal/manifest"
	"corpus-prep/internal/scanner"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

type fakeAudio struct {
	mu       sync.Mutex
	slices   []audio.SliceRequest
	concats  [][]string
	gaps     []float64
	built    map[string][]string
	sliceErr func(req audio.SliceRequest) error
	duration float64
	probeErr map[string]error
}

func (f *fakeAudio) Slice(_ context.Context, req audio.SliceRequest) error {
	f.mu.Lock()
	f.slices = append(f.slices, req)
	f.mu.Unlock()
	if f.sliceErr != nil {
		if err := f.sliceErr(req); err != nil {
			return err
		}
	}
	return touch(req.Dst)
}

func (f *fakeAudio) Concat(_ context.Context, inputs []string, gapMs float64, dst string) error {
	f.mu.Lock()
	f.concats = append(f.concats, inputs)
	f.gaps = append(f.gaps, gapMs)
	if f.built == nil {
		f.built = map[string][]string{}
	}
	f.built[dst] = inputs
	f.mu.Unlock()
	return touch(dst)
}

func (f *fakeAudio) DurationMs(_ context.Context, path string) (float64, error) {
	if err, ok := f.probeErr[path]; ok {
		return 0, err
	}
	return f.duration, nil
}

func (f *fakeAudio) sliceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slices)
}

type fakeCatalog struct {
	mu      sync.Mutex
	rows    []db.ChunkRow
	deleted []string
}

func (c *fakeCatalog) UpsertChunk(_ context.Context, r db.ChunkRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, r)
	return nil
}

func (c *fakeCatalog) DeleteChunk(_ context.Context, dataset, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, dataset+"/"+id)
	return nil
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("audio"), 0644)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// fisherRoot builds two dialogs; the second has no audio next to it.
func fisherRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fe_03_00001.txt"),
		"# fe_03_00001.sph\n"+
			"0.0 4.0 A: hello there\n"+
			"4.5 10.5 B: how are you\n"+
			"x y A: broken\n"+
			"11.0 15.0 A: fine thanks\n"+
			"15.5 21.0 B: good to hear\n"+
			"22.0 23.0 A: bye\n")
	writeFile(t, filepath.Join(root, "fe_03_00001.mp3"), "")
	writeFile(t, filepath.Join(root, "fe_03_00002.txt"), "0.0 12.0 A: nobody recorded this\n")
	return root
}

func newTestPreparer(dst string, a Audio) *Preparer {
	return NewPreparer(a, PrepareOptions{
		Dst:      dst,
		Workers:  2,
		Chunking: segment.Options{MaxDuration: 10000},
		Router:   segment.EveryNth{N: 1},
	})
}

func TestPrepare_Accumulate(t *testing.T) {
	root, dst := fisherRoot(t), t.TempDir()
	fa := &fakeAudio{}
	cat := &fakeCatalog{}
	p := newTestPreparer(dst, fa).WithCatalog(cat)

	res, err := p.Prepare(context.Background(), scanner.NewFisher(), root)
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, map[segment.Split]int{segment.Train: 1, segment.Test: 1}, res.Lines)
	assert.Equal(t, int64(2), res.Created)

	reasons := map[manifest.Reason]int{}
	for _, s := range res.Skips {
		reasons[s.Reason]++
	}
	assert.Equal(t, map[manifest.Reason]int{manifest.ReasonMalformed: 1, manifest.ReasonMissingAudio: 1}, reasons)

	audioDir := filepath.Join(dst, "audio", "fisher", "fe_03_00001")
	assert.Equal(t,
		"fe_03_00001_0_10500 "+filepath.Join(audioDir, "fe_03_00001_0_10500.flac")+" 10500.0 hello there how are you\n",
		readFile(t, ListPath(dst, "fisher", segment.Train)))
	assert.Equal(t,
		"fe_03_00001_10500_21000 "+filepath.Join(audioDir, "fe_03_00001_10500_21000.flac")+" 10500.0 fine thanks good to hear\n",
		readFile(t, ListPath(dst, "fisher", segment.Test)))
	assert.Equal(t, "hello there how are you\n", readFile(t, TextPath(dst, "fisher", segment.Train)))

	require.Len(t, cat.rows, 2)
	for _, r := range cat.rows {
		assert.Equal(t, "fisher", r.Dataset)
		assert.NotEmpty(t, r.FileHash)
	}

	st := p.Status()
	assert.False(t, st.Running)
	assert.Equal(t, int64(2), st.Sources)
	assert.Equal(t, int64(2), st.Done)
	assert.Equal(t, int64(2), st.Kept)
	assert.Equal(t, int64(2), st.Skipped)
}

func TestPrepare_SecondRunVerifies(t *testing.T) {
	root, dst := fisherRoot(t), t.TempDir()
	fa := &fakeAudio{}
	cat := &fakeCatalog{}
	p := newTestPreparer(dst, fa).WithCatalog(cat)

	_, err := p.Prepare(context.Background(), scanner.NewFisher(), root)
	require.NoError(t, err)
	train := readFile(t, ListPath(dst, "fisher", segment.Train))
	slices := fa.sliceCount()

	res, err := p.Prepare(context.Background(), scanner.NewFisher(), root)
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, slices, fa.sliceCount())
	assert.Equal(t, train, readFile(t, ListPath(dst, "fisher", segment.Train)))
	for _, rep := range res.Reports {
		assert.False(t, rep.Rewritten)
	}

	// audio removed behind our back: the line goes, the text file follows
	require.NoError(t, os.Remove(filepath.Join(dst, "audio", "fisher", "fe_03_00001", "fe_03_00001_0_10500.flac")))
	res, err = p.Prepare(context.Background(), scanner.NewFisher(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Lines[segment.Train])
	assert.Equal(t, 1, res.Lines[segment.Test])
	require.Len(t, res.Skips, 1)
	assert.Equal(t, manifest.ReasonMissingAudio, res.Skips[0].Reason)
	assert.Equal(t, "", readFile(t, ListPath(dst, "fisher", segment.Train)))
	assert.Equal(t, "", readFile(t, TextPath(dst, "fisher", segment.Train)))
	assert.Equal(t, []string{"fisher/fe_03_00001_0_10500"}, cat.deleted)
}

func TestPrepare_MissingInputWritesNothing(t *testing.T) {
	dst := t.TempDir()
	p := newTestPreparer(dst, &fakeAudio{})

	_, err := p.Prepare(context.Background(), scanner.NewFisher(), filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, scanner.ErrMissingInput)
	assert.NoDirExists(t, filepath.Join(dst, "lists"))
	assert.NotEmpty(t, p.Status().LastError)
}

func TestPrepare_CorruptAudioIsSkipped(t *testing.T) {
	root, dst := fisherRoot(t), t.TempDir()
	fa := &fakeAudio{sliceErr: func(req audio.SliceRequest) error {
		if req.StartMs == 0 {
			return fmt.Errorf("%w: ffmpeg: invalid data", audio.ErrCorruptAudio)
		}
		return nil
	}}

	res, err := newTestPreparer(dst, fa).Prepare(context.Background(), scanner.NewFisher(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Lines[segment.Train])
	assert.Equal(t, 1, res.Lines[segment.Test])

	var corrupt []manifest.Skip
	for _, s := range res.Skips {
		if s.Reason == manifest.ReasonCorruptAudio {
			corrupt = append(corrupt, s)
		}
	}
	require.Len(t, corrupt, 1)
	assert.Equal(t, "fe_03_00001_0_10500", corrupt[0].ID)
}

func TestPrepare_OtherExportErrorsAreFatal(t *testing.T) {
	root, dst := fisherRoot(t), t.TempDir()
	fa := &fakeAudio{sliceErr: func(audio.SliceRequest) error {
		return errors.New("no space left on device")
	}}

	_, err := newTestPreparer(dst, fa).Prepare(context.Background(), scanner.NewFisher(), root)
	require.ErrorContains(t, err, "no space left on device")
	assert.NoFileExists(t, ListPath(dst, "fisher", segment.Train))
}

func TestPrepare_MissingEncoderIsFatal(t *testing.T) {
	root, dst := fisherRoot(t), t.TempDir()
	a := audio.NewFFmpeg()
	a.FFmpegBin = filepath.Join(t.TempDir(), "no-such-ffmpeg")

	_, err := newTestPreparer(dst, a).Prepare(context.Background(), scanner.NewFisher(), root)
	require.Error(t, err)
	assert.NotErrorIs(t, err, audio.ErrCorruptAudio)
	assert.NoFileExists(t, ListPath(dst, "fisher", segment.Train))
	assert.NoFileExists(t, ListPath(dst, "fisher", segment.Test))
}

// clips is a dataset already cut per utterance.
type clips struct{}

func (clips) Name() string                 { return "clips" }
func (clips) Mode() scanner.Mode           { return scanner.WholeFile }
func (clips) Splits() []segment.Split      { return []segment.Split{segment.Dev} }
func (clips) Curator() *transcript.Curator { return transcript.Default }

func (clips) Discover(root string) ([]scanner.Source, error) {
	return []scanner.Source{{Dataset: "clips", ID: "spk1", Split: segment.Dev, Audio: root}}, nil
}

func (clips) ParseRecords(scanner.Source) ([]segment.Utterance, []manifest.Skip, error) {
	return []segment.Utterance{
		{ID: "spk1-0001", Text: "Good Morning!"},
		{ID: "spk1-0002", Text: "1 2 3"},
		{ID: "spk1-0003", Text: "still here"},
	}, nil, nil
}

func (clips) LocateAudio(src scanner.Source, u segment.Utterance) string {
	return filepath.Join(src.Audio, u.ID+".wav")
}

func TestPrepare_WholeFileReferencesSource(t *testing.T) {
	root, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(root, "spk1-0001.wav"), "")
	writeFile(t, filepath.Join(root, "spk1-0002.wav"), "")
	fa := &fakeAudio{duration: 2345.6}

	res, err := newTestPreparer(dst, fa).Prepare(context.Background(), clips{}, root)
	require.NoError(t, err)
	assert.Zero(t, fa.sliceCount())

	assert.Equal(t,
		"spk1-0001 "+filepath.Join(root, "spk1-0001.wav")+" 2346.0 good morning\n",
		readFile(t, ListPath(dst, "clips", segment.Dev)))

	reasons := []manifest.Reason{}
	for _, s := range res.Skips {
		reasons = append(reasons, s.Reason)
	}
	assert.ElementsMatch(t, []manifest.Reason{manifest.ReasonNotAlpha, manifest.ReasonMissingAudio}, reasons)
}

func amiList(t *testing.T, dst, variant string, split segment.Split, audioDir string, durs ...float64) {
	var b strings.Builder
	for i, d := range durs {
		id := fmt.Sprintf("%s_%s_%02d", variant, split, i)
		path := filepath.Join(audioDir, id+".flac")
		writeFile(t, path, "")
		fmt.Fprintf(&b, "%s %s %.1f %s\n", id, path, d, id)
	}
	writeFile(t, ListPath(dst, variant, split), b.String())
}

func TestCombine(t *testing.T) {
	dst := t.TempDir()
	audioDir := filepath.Join(dst, "audio", "src")
	for _, v := range []string{"ami-ihm", "ami-sdm"} {
		amiList(t, dst, v, segment.Dev, audioDir, 3000, 3000)
		amiList(t, dst, v, segment.Train, audioDir, 3000, 3000, 7000)
		amiList(t, dst, v, segment.Test, audioDir, 3000, 3000)
	}

	fa := &fakeAudio{duration: 12345}
	c := NewCombiner(fa, CombineOptions{Dst: dst, Seed: 7, Workers: 2})
	res, err := c.Combine(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, map[segment.Split]int{segment.Train: 2, segment.Test: 1}, res.Lines)
	assert.Equal(t, int64(3), res.Created)

	for i, inputs := range fa.concats {
		assert.Len(t, inputs, 4)
		assert.Equal(t, 500.0, fa.gaps[i])
	}

	recs, err := manifest.ReadManifest(ListPath(dst, CombinedDataset, segment.Test))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 12345.0, recs[0].DurationMs)
	assert.Len(t, strings.Fields(recs[0].Text), 4)
	assert.Equal(t, filepath.Join(dst, "audio", CombinedDataset, recs[0].ID+".flac"), recs[0].Path)
	assert.FileExists(t, recs[0].Path)

	again, err := c.Combine(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.Len(t, fa.concats, 3)
}

func TestCombine_ReseedNeverReusesOtherGroups(t *testing.T) {
	dst := t.TempDir()
	audioDir := filepath.Join(dst, "audio", "src")
	for _, v := range []string{"ami-ihm", "ami-sdm"} {
		amiList(t, dst, v, segment.Dev, audioDir, 3000, 3000, 3000, 3000)
		amiList(t, dst, v, segment.Train, audioDir, 3000, 3000, 3000, 3000)
		amiList(t, dst, v, segment.Test, audioDir, 3000, 3000)
	}

	fa := &fakeAudio{duration: 12000}
	for _, seed := range []uint64{1, 2, 3} {
		require.NoError(t, os.RemoveAll(filepath.Join(dst, "lists", CombinedDataset+"-train.lst")))
		require.NoError(t, os.RemoveAll(filepath.Join(dst, "lists", CombinedDataset+"-test.lst")))

		_, err := NewCombiner(fa, CombineOptions{Dst: dst, Seed: seed}).Combine(context.Background())
		require.NoError(t, err)

		for _, split := range []segment.Split{segment.Train, segment.Test} {
			recs, err := manifest.ReadManifest(ListPath(dst, CombinedDataset, split))
			require.NoError(t, err)
			for _, r := range recs {
				inputs, ok := fa.built[r.Path]
				require.True(t, ok, r.Path)
				members := make([]string, len(inputs))
				for i, in := range inputs {
					members[i] = strings.TrimSuffix(filepath.Base(in), ".flac")
				}
				assert.Equal(t, strings.Fields(r.Text), members, "seed %d: %s", seed, r.ID)
			}
		}
	}
}

func TestCombine_MissingVariant(t *testing.T) {
	dst := t.TempDir()
	amiList(t, dst, "ami-ihm", segment.Dev, filepath.Join(dst, "a"), 3000)

	_, err := NewCombiner(&fakeAudio{}, CombineOptions{Dst: dst}).Combine(context.Background())
	assert.ErrorIs(t, err, scanner.ErrMissingInput)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.flac")
	bad := filepath.Join(dir, "bad.flac")
	writeFile(t, good, "")
	writeFile(t, bad, "")
	list := filepath.Join(dir, "x-train.lst")
	writeFile(t, list,
		"a "+good+" 1000.0 fine\n"+
			"b "+filepath.Join(dir, "gone.flac")+" 1000.0 gone\n"+
			"c "+bad+" 1000.0 broken\n")

	fa := &fakeAudio{probeErr: map[string]error{bad: fmt.Errorf("%w: truncated", audio.ErrCorruptAudio)}}
	c := NewChecker(fa, 2)
	skips, err := c.Check(context.Background(), list)
	require.NoError(t, err)
	require.Len(t, skips, 2)
	assert.Equal(t, manifest.ReasonMissingAudio, skips[0].Reason)
	assert.Equal(t, 2, skips[0].Line)
	assert.Equal(t, manifest.ReasonCorruptAudio, skips[1].Reason)
	assert.Equal(t, "c", skips[1].ID)
	assert.Equal(t, int64(3), c.Checked())

	_, err = c.Check(context.Background(), filepath.Join(dir, "none.lst"))
	assert.Error(t, err)
}
