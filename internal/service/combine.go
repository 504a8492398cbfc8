package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/metrics"
	"corpus-prep/internal/scanner"
	"corpus-prep/internal/segment"
)

const CombinedDataset = "ami-combined"

// Concatenator glues finished clips into one file.
type Concatenator interface {
	Concat(ctx context.Context, inputs []string, gapMs float64, dst string) error
	DurationMs(ctx context.Context, path string) (float64, error)
}

type CombineOptions struct {
	Dst         string
	Variants    []string
	MaxDuration float64
	GapMs       float64
	Seed        uint64
	Workers     int
}

type CombineResult struct {
	Lines   map[segment.Split]int `json:"lines"`
	Created int64                 `json:"created"`
	Skipped bool                  `json:"skipped"`
	Elapsed time.Duration         `json:"elapsed"`
}

// Combiner склеивает короткие AMI-реплики в длинные записи
type Combiner struct {
	audio   Concatenator
	opts    CombineOptions
	created int64
}

func NewCombiner(a Concatenator, opts CombineOptions) *Combiner {
	if len(opts.Variants) == 0 {
		opts.Variants = []string{"ami-ihm", "ami-sdm"}
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 10000
	}
	if opts.GapMs <= 0 {
		opts.GapMs = 500
	}
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	return &Combiner{audio: a, opts: opts}
}

// sources: train is built from dev and train lists, test from test lists
var combineSources = map[segment.Split][]segment.Split{
	segment.Train: {segment.Dev, segment.Train},
	segment.Test:  {segment.Test},
}

// Combine builds ami-combined-{train,test}. Existing outputs are left alone.
func (c *Combiner) Combine(ctx context.Context) (*CombineResult, error) {
	start := time.Now()
	atomic.StoreInt64(&c.created, 0)
	res := &CombineResult{Lines: map[segment.Split]int{}}

	trainList := ListPath(c.opts.Dst, CombinedDataset, segment.Train)
	testList := ListPath(c.opts.Dst, CombinedDataset, segment.Test)
	if manifest.Exists(trainList) && manifest.Exists(testList) {
		slog.Info("Combined lists exist, skipping", "train", trainList, "test", testList)
		res.Skipped = true
		return res, nil
	}

	for _, split := range []segment.Split{segment.Train, segment.Test} {
		recs, err := c.collect(split)
		if err != nil {
			return nil, err
		}
		segment.Shuffle(recs, c.opts.Seed)
		groups := segment.Pack(recs, func(r manifest.Record) float64 { return r.DurationMs }, c.opts.MaxDuration)

		out, err := c.build(ctx, groups)
		if err != nil {
			return nil, err
		}
		if err := manifest.WriteManifest(ListPath(c.opts.Dst, CombinedDataset, split), out); err != nil {
			return nil, err
		}
		if err := manifest.WriteText(TextPath(c.opts.Dst, CombinedDataset, split), out); err != nil {
			return nil, err
		}
		res.Lines[split] = len(out)
		metrics.SetManifestLines(CombinedDataset, string(split), len(out))
	}

	res.Created = atomic.LoadInt64(&c.created)
	res.Elapsed = time.Since(start)
	slog.Info("Prepared combined AMI",
		"train", res.Lines[segment.Train],
		"test", res.Lines[segment.Test],
		"created", res.Created,
		"elapsed", res.Elapsed.Round(time.Millisecond).String())
	return res, nil
}

// collect reads the variant manifests feeding split and keeps records
// shorter than half the target duration.
func (c *Combiner) collect(split segment.Split) ([]manifest.Record, error) {
	var recs []manifest.Record
	for _, from := range combineSources[split] {
		for _, v := range c.opts.Variants {
			path := ListPath(c.opts.Dst, v, from)
			list, err := manifest.ReadManifest(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return nil, fmt.Errorf("%w: %s (prepare %s first)", scanner.ErrMissingInput, path, v)
				}
				return nil, err
			}
			for _, r := range list {
				if r.DurationMs < c.opts.MaxDuration/2 {
					recs = append(recs, r)
				}
			}
		}
	}
	return recs, nil
}

func groupID(ids []string) string {
	sum := md5.Sum([]byte(strings.Join(ids, "\n")))
	return ids[len(ids)-1] + "_" + hex.EncodeToString(sum[:4])
}

func (c *Combiner) build(ctx context.Context, groups [][]manifest.Record) ([]manifest.Record, error) {
	dir := filepath.Join(c.opts.Dst, "audio", CombinedDataset)
	out := make([]manifest.Record, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, group := range groups {
		g.Go(func() error {
			rec, err := c.combineGroup(gctx, group, dir)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// combineGroup names the result after the last record of the group plus a
// digest of all member ids, so a file on disk is only reused for exactly
// the same members in the same order.
func (c *Combiner) combineGroup(ctx context.Context, group []manifest.Record, dir string) (manifest.Record, error) {
	paths := make([]string, len(group))
	texts := make([]string, len(group))
	ids := make([]string, len(group))
	for i, r := range group {
		paths[i] = r.Path
		texts[i] = r.Text
		ids[i] = r.ID
	}
	id := groupID(ids)
	dst := filepath.Join(dir, id+".flac")

	if !manifest.Exists(dst) {
		if err := c.audio.Concat(ctx, paths, c.opts.GapMs, dst); err != nil {
			return manifest.Record{}, fmt.Errorf("combine %s: %w", id, err)
		}
		atomic.AddInt64(&c.created, 1)
		metrics.RecordAudioWritten(CombinedDataset)
	}

	dur, err := c.audio.DurationMs(ctx, dst)
	if err != nil {
		return manifest.Record{}, fmt.Errorf("probe %s: %w", dst, err)
	}
	return manifest.Record{
		ID:         id,
		Path:       dst,
		DurationMs: dur,
		Text:       strings.TrimSpace(strings.Join(texts, " ")),
	}, nil
}
