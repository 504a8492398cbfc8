package manifest

import (
	"context"
	"os"
	"path/filepath"

	"corpus-prep/internal/audio"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/transcript"
)

// Slicer is the part of the audio collaborator the writer needs.
type Slicer interface {
	Slice(ctx context.Context, req audio.SliceRequest) error
}

// Exporter turns chunks into manifest records, materializing audio slices
// on first use. Distinct chunks may be exported concurrently; the same
// target must not be exported twice at once.
type Exporter struct {
	slicer  Slicer
	curator *transcript.Curator
	ext     string
}

func NewExporter(slicer Slicer, curator *transcript.Curator) *Exporter {
	if curator == nil {
		curator = transcript.Default
	}
	return &Exporter{slicer: slicer, curator: curator, ext: ".flac"}
}

// Target is the output audio path for c under dir.
func (e *Exporter) Target(c segment.Chunk, dir string) string {
	return filepath.Join(dir, c.Name()+e.ext)
}

// Cure normalizes text with the exporter's curator.
func (e *Exporter) Cure(text string) string {
	return e.curator.Cure(text)
}

// Export slices source into dir unless the target already exists, then
// returns the record. created reports whether audio was written.
func (e *Exporter) Export(ctx context.Context, c segment.Chunk, source, dir string) (rec Record, created bool, err error) {
	path := e.Target(c, dir)

	if _, statErr := os.Stat(path); statErr != nil {
		if !missing(statErr) {
			return Record{}, false, statErr
		}
		err = e.slicer.Slice(ctx, audio.SliceRequest{
			Source:  source,
			StartMs: c.Start,
			EndMs:   c.End,
			Channel: c.Channel,
			Dst:     path,
		})
		if err != nil {
			return Record{}, false, err
		}
		created = true
	}

	return Record{
		ID:         c.Name(),
		Path:       path,
		DurationMs: c.Duration(),
		Text:       e.curator.Cure(c.Text),
	}, created, nil
}

// Reference records source as-is, without slicing, for datasets that are
// already cut per utterance.
func (e *Exporter) Reference(c segment.Chunk, source string) Record {
	return Record{
		ID:         c.Name(),
		Path:       source,
		DurationMs: c.Duration(),
		Text:       e.curator.Cure(c.Text),
	}
}
