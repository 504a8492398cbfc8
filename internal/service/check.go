package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"corpus-prep/internal/audio"
	"corpus-prep/internal/manifest"
	"corpus-prep/internal/metrics"
)

// Prober decodes enough of a file to know its duration.
type Prober interface {
	DurationMs(ctx context.Context, path string) (float64, error)
}

// Checker opens every audio file referenced by a set of manifests and
// reports the ones that are gone or cannot be decoded. Manifests are not
// modified.
type Checker struct {
	audio   Prober
	workers int
	checked int64
}

func NewChecker(a Prober, workers int) *Checker {
	if workers <= 0 {
		workers = 8
	}
	return &Checker{audio: a, workers: workers}
}

func (c *Checker) Checked() int64 {
	return atomic.LoadInt64(&c.checked)
}

// Check returns one skip per bad line, in manifest order. A manifest that
// cannot be read stops the check.
func (c *Checker) Check(ctx context.Context, lists ...string) ([]manifest.Skip, error) {
	var bad []manifest.Skip
	for _, list := range lists {
		recs, err := manifest.ReadManifest(list)
		if err != nil {
			return nil, err
		}

		found := make([]*manifest.Skip, len(recs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.workers)
		for i, r := range recs {
			g.Go(func() error {
				found[i] = c.checkOne(gctx, list, i+1, r)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		for _, s := range found {
			if s != nil {
				bad = append(bad, *s)
			}
		}
		slog.Info("Checked", "list", list, "records", len(recs))
	}
	return bad, nil
}

func (c *Checker) checkOne(ctx context.Context, list string, line int, r manifest.Record) *manifest.Skip {
	defer atomic.AddInt64(&c.checked, 1)

	s := &manifest.Skip{Source: list, Line: line, ID: r.ID, Path: r.Path}
	if !manifest.Exists(r.Path) {
		s.Reason = manifest.ReasonMissingAudio
	} else if _, err := c.audio.DurationMs(ctx, r.Path); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.Reason = manifest.ReasonCorruptAudio
		if !errors.Is(err, audio.ErrCorruptAudio) {
			s.Detail = err.Error()
		}
	} else {
		return nil
	}

	slog.Warn("Bad audio", "skip", s.String())
	metrics.RecordSkip("check", string(s.Reason))
	return s
}
