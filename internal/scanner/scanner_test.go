package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/segment"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"ami-ihm", "ami-sdm", "callhome", "commonvoice", "fisher", "librispeech", "swbd", "ted"}, Names())

	for _, name := range Names() {
		a, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, a.Name())
		assert.NotEmpty(t, a.Splits())
		assert.NotNil(t, a.Curator())
	}

	_, err := New("wsj")
	assert.Error(t, err)
}

func TestLibriSpeech(t *testing.T) {
	root := t.TempDir()
	for _, subset := range []string{"train-clean-100", "dev-other", "test-other"} {
		writeFile(t, filepath.Join(root, subset, "19", "198", "19-198.trans.txt"),
			"19-198-0000 NORTHANGER ABBEY\n19-198-0001 THIS LITTLE WORK WAS FINISHED\nbroken\n")
	}

	lib := NewLibriSpeech(nil)
	sources, err := lib.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, segment.Dev, sources[0].Split)
	assert.Equal(t, "dev-other", sources[0].Subset)
	assert.Equal(t, "19-198", sources[0].ID)

	train := sources[2]
	assert.Equal(t, segment.Train, train.Split)

	utts, skips, err := lib.ParseRecords(train)
	require.NoError(t, err)
	require.Len(t, utts, 2)
	assert.Equal(t, "train-clean-100-19-198-0000", utts[0].ID)
	assert.Equal(t, "NORTHANGER ABBEY", utts[0].Text)
	require.Len(t, skips, 1)
	assert.Equal(t, manifest.ReasonMalformed, skips[0].Reason)
	assert.Equal(t, 3, skips[0].Line)

	audio := lib.LocateAudio(train, utts[1])
	assert.True(t, filepath.IsAbs(audio))
	assert.Equal(t, "19-198-0001.flac", filepath.Base(audio))
}

func TestLibriSpeech_MissingSubset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train-clean-100", "1", "2", "1-2.trans.txt"), "1-2-0000 HI\n")

	_, err := NewLibriSpeech(nil).Discover(root)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestCommonVoice(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "clips"), 0755))
	header := "client_id\tpath\tsentence\tup_votes\tdown_votes\n"
	writeFile(t, filepath.Join(root, "train.tsv"), header+
		"spk1\tcommon_voice_en_1.mp3\tCafé au lait, please.\t2\t0\n"+
		"spk2\tcommon_voice_en_2.mp3\tHello there\t2\t0\n"+
		"spk1\tcommon_voice_en_3.mp3\t\t2\t0\n")
	writeFile(t, filepath.Join(root, "dev.tsv"), header)
	writeFile(t, filepath.Join(root, "test.tsv"), header)

	cv := NewCommonVoice()
	sources, err := cv.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "spk1", sources[0].ID)
	assert.True(t, sources[0].Transcode)
	require.Len(t, sources[0].Lines, 2)

	utts, skips, err := cv.ParseRecords(sources[0])
	require.NoError(t, err)
	require.Len(t, utts, 1)
	assert.Equal(t, "common_voice_en_1", utts[0].ID)
	assert.Equal(t, filepath.Join(root, "clips", "common_voice_en_1.mp3"), cv.LocateAudio(sources[0], utts[0]))
	require.Len(t, skips, 1)
	assert.Equal(t, 4, skips[0].Line)

	assert.Equal(t, "cafe au lait please", cv.Curator().Cure(utts[0].Text))
}

func TestCommonVoice_MissingSplit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "clips"), 0755))
	writeFile(t, filepath.Join(root, "train.tsv"), "client_id\tpath\tsentence\n")

	_, err := NewCommonVoice().Discover(root)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func amiFixture(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train"),
		"AMI_ES2011a_H00_FEE041_0003415_0003484 OKAY\n"+
			"AMI_ES2011a_H03_MEE044_0003500_0003900 HELLO EVERYONE\n"+
			"AMI_IS1009b_H01_FIO087_0000100_0000250 RIGHT\n"+
			"AMI_BAD ONE\n")
	writeFile(t, filepath.Join(root, "dev"), "")
	writeFile(t, filepath.Join(root, "test"), "")
	return root
}

func TestAMI_IHM(t *testing.T) {
	root := amiFixture(t)
	ami := NewAMI(IHM)
	assert.Equal(t, "ami-ihm", ami.Name())
	assert.Equal(t, PerUtterance, ami.Mode())

	sources, err := ami.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 3)
	assert.Equal(t, "ES2011a", sources[0].ID)
	assert.Equal(t, "IS1009b", sources[1].ID)
	assert.Equal(t, "", sources[2].ID)

	utts, skips, err := ami.ParseRecords(sources[0])
	require.NoError(t, err)
	assert.Empty(t, skips)
	require.Len(t, utts, 2)
	assert.Equal(t, segment.Utterance{ID: "AMI_ES2011a_H00_FEE041_0003415_0003484", Text: "OKAY", Start: 34150, End: 34840}, utts[0])

	assert.Equal(t, filepath.Join(root, "ES2011a", "audio", "ES2011a.Headset-0.wav"), ami.LocateAudio(sources[0], utts[0]))
	assert.Equal(t, filepath.Join(root, "ES2011a", "audio", "ES2011a.Headset-3.wav"), ami.LocateAudio(sources[0], utts[1]))

	utts, skips, err = ami.ParseRecords(sources[2])
	require.NoError(t, err)
	assert.Empty(t, utts)
	require.Len(t, skips, 1)
	assert.Equal(t, manifest.ReasonMalformed, skips[0].Reason)
	assert.Equal(t, 4, skips[0].Line)
}

func TestAMI_SDM(t *testing.T) {
	root := amiFixture(t)
	ami := NewAMI(SDM)
	sources, err := ami.Discover(root)
	require.NoError(t, err)

	utts, _, err := ami.ParseRecords(sources[1])
	require.NoError(t, err)
	require.Len(t, utts, 1)
	assert.Equal(t, filepath.Join(root, "IS1009b", "audio", "IS1009b.Array1-01.wav"), ami.LocateAudio(sources[1], utts[0]))
}

func TestTED(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dev"), "AaronHuey_2010X-1705-2280 THE NAVAJO NATION\nnotimes SOMETHING\n")
	writeFile(t, filepath.Join(root, "test"), "")
	writeFile(t, filepath.Join(root, "train"), "Jane-Doe_2012-10-99 WELL\n")

	ted := NewTED()
	sources, err := ted.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	dev := sources[0]
	assert.Equal(t, "AaronHuey_2010X", dev.ID)
	assert.Equal(t, filepath.Join(root, "legacy", "dev", "sph", "AaronHuey_2010X.sph"), dev.Audio)

	utts, skips, err := ted.ParseRecords(dev)
	require.NoError(t, err)
	require.Len(t, utts, 1)
	assert.Equal(t, 17050.0, utts[0].Start)
	assert.Equal(t, 22800.0, utts[0].End)
	assert.Empty(t, skips)

	train := sources[2]
	assert.Equal(t, "Jane-Doe_2012", train.ID)
	utts, _, err = ted.ParseRecords(train)
	require.NoError(t, err)
	require.Len(t, utts, 1)
	assert.Equal(t, 100.0, utts[0].Start)
	assert.Equal(t, 990.0, utts[0].End)

	_, skips, err = ted.ParseRecords(sources[1])
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, 2, skips[0].Line)
}

func TestFisher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fe_03_00001.txt"),
		"# fe_03_00001.sph\n\n"+
			"0.50 2.10 A: hello\n"+
			"2.30 7.75 B: hi how are you\n"+
			"oops\n"+
			"8.0 x A: bad\n")
	writeFile(t, filepath.Join(root, "fe_03_00001.mp3"), "")

	f := NewFisher()
	sources, err := f.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	src := sources[0]
	assert.Equal(t, "fe_03_00001", src.ID)
	assert.Equal(t, filepath.Join(root, "fe_03_00001.mp3"), f.LocateAudio(src, segment.Utterance{}))
	assert.Equal(t, segment.Split(""), src.Split)

	utts, skips, err := f.ParseRecords(src)
	require.NoError(t, err)
	require.Len(t, utts, 2)
	assert.Equal(t, segment.Utterance{Text: "hello", Start: 500, End: 2100}, utts[0])
	assert.Equal(t, "hi how are you", utts[1].Text)
	assert.Equal(t, 7750.0, utts[1].End)

	require.Len(t, skips, 2)
	assert.Equal(t, 5, skips[0].Line)
	assert.Equal(t, 6, skips[1].Line)
}

func TestFisher_MissingRoot(t *testing.T) {
	_, err := NewFisher().Discover(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestCallHome(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "4065.cha"),
		"@Begin\n"+
			"@Participants:\tA Subject, B Subject\n"+
			"*A:\tyeah &=laughs I know [/] I know . \x151000_2500\x15\n"+
			"%com:\tsome comment\n"+
			"*B:\tso xxx what did\n"+
			"\tyou say ? \x152600_4000\x15\n"+
			"*A:\tbroken timing \x15abc\x15\n"+
			"@End\n")

	c := NewCallHome()
	sources, err := c.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, filepath.Join(root, "4065.mp3"), sources[0].Audio)

	utts, skips, err := c.ParseRecords(sources[0])
	require.NoError(t, err)
	require.Len(t, utts, 2)
	assert.Equal(t, 1000.0, utts[0].Start)
	assert.Equal(t, 2500.0, utts[0].End)
	assert.Equal(t, "so xxx what did you say ?", utts[1].Text)
	assert.Equal(t, 2600.0, utts[1].Start)

	require.Len(t, skips, 1)
	assert.Equal(t, 7, skips[0].Line)

	assert.Equal(t, "yeah i know i know", c.Curator().Cure(utts[0].Text))
	assert.Equal(t, "so what did you say", c.Curator().Cure(utts[1].Text))
}

func TestSWBD(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "text"),
		"sw02001-A_000098-001156 hi um yeah\n"+
			"sw02001-B_001200-001500 [noise]\n"+
			"sw02001-B_001600-002000 okay then\n"+
			"sw02005-A_000010-000090 right\n"+
			"garbage\n")
	writeFile(t, filepath.Join(root, "swb1", "disk1", "sw02001.sph"), "")

	s := NewSWBD()
	sources, err := s.Discover(root)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	rec := sources[0]
	assert.Equal(t, "sw02001", rec.ID)
	assert.Equal(t, filepath.Join(root, "swb1", "disk1", "sw02001.sph"), rec.Audio)
	assert.Equal(t, segment.Train, rec.Split)
	assert.Empty(t, sources[1].Audio)

	utts, skips, err := s.ParseRecords(rec)
	require.NoError(t, err)
	require.Len(t, utts, 2)
	assert.Equal(t, segment.Utterance{ID: "sw02001_0", Text: "hi um yeah", Start: 980, End: 11560, Channel: 1}, utts[0])
	assert.Equal(t, "sw02001_2", utts[1].ID)
	assert.Equal(t, 2, utts[1].Channel)

	require.Len(t, skips, 1)
	assert.Equal(t, manifest.ReasonNotAlpha, skips[0].Reason)
	assert.Equal(t, "sw02001-B_001200-001500", skips[0].ID)

	_, skips, err = s.ParseRecords(sources[2])
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, manifest.ReasonMalformed, skips[0].Reason)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "accumulate", Accumulate.String())
	assert.Equal(t, "per-utterance", PerUtterance.String())
	assert.Equal(t, "whole-file", WholeFile.String())
}
