package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"corpus-prep/internal/audio"
	"corpus-prep/internal/db"
	"corpus-prep/internal/manifest"
	"corpus-prep/internal/metrics"
	"corpus-prep/internal/scanner"
	"corpus-prep/internal/segment"
)

// Audio is what the pipeline needs from the audio collaborator.
type Audio interface {
	manifest.Slicer
	DurationMs(ctx context.Context, path string) (float64, error)
}

// Catalog mirrors manifests into a database. Optional.
type Catalog interface {
	UpsertChunk(ctx context.Context, c db.ChunkRow) error
	DeleteChunk(ctx context.Context, dataset, chunkID string) error
}

type PrepareOptions struct {
	Dst      string
	Workers  int
	Chunking segment.Options
	// Router splits accumulated chunks; datasets with native splits ignore it.
	Router   segment.Router
	Progress time.Duration
}

type PrepareStatus struct {
	Running   bool    `json:"running"`
	Dataset   string  `json:"dataset"`
	Sources   int64   `json:"sources"`
	Done      int64   `json:"done"`
	Kept      int64   `json:"kept"`
	Skipped   int64   `json:"skipped"`
	Created   int64   `json:"created"`
	Percent   float64 `json:"percent"`
	Rate      float64 `json:"rate"`
	Elapsed   string  `json:"elapsed"`
	LastError string  `json:"last_error,omitempty"`
}

// PrepareResult - итог по одному датасету
type PrepareResult struct {
	Dataset  string                `json:"dataset"`
	Verified bool                  `json:"verified"`
	Lines    map[segment.Split]int `json:"lines"`
	Created  int64                 `json:"created"`
	Skips    []manifest.Skip       `json:"skips,omitempty"`
	Reports  []*manifest.Report    `json:"reports,omitempty"`
	Elapsed  time.Duration         `json:"elapsed"`
}

// Preparer runs one dataset adapter through accumulation, export and
// manifest writing with a bounded worker pool.
type Preparer struct {
	audio   Audio
	catalog Catalog
	opts    PrepareOptions

	running   int32
	sources   int64
	done      int64
	kept      int64
	skipped   int64
	created   int64
	startTime time.Time
	dataset   string
	lastError string
	mu        sync.Mutex
}

func NewPreparer(a Audio, opts PrepareOptions) *Preparer {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.Router == nil {
		opts.Router = segment.EveryNth{N: 5}
	}
	if opts.Progress <= 0 {
		opts.Progress = 10 * time.Second
	}
	return &Preparer{audio: a, opts: opts}
}

func (p *Preparer) WithCatalog(c Catalog) *Preparer {
	p.catalog = c
	return p
}

func ListPath(dst, dataset string, split segment.Split) string {
	return filepath.Join(dst, "lists", fmt.Sprintf("%s-%s.lst", dataset, split))
}

func TextPath(dst, dataset string, split segment.Split) string {
	return filepath.Join(dst, "text", fmt.Sprintf("%s-%s.txt", dataset, split))
}

func AudioDir(dst, dataset, recording string) string {
	return filepath.Join(dst, "audio", dataset, recording)
}

func (p *Preparer) setLastError(err string) {
	p.mu.Lock()
	p.lastError = err
	p.mu.Unlock()
}

func (p *Preparer) Status() PrepareStatus {
	total := atomic.LoadInt64(&p.sources)
	done := atomic.LoadInt64(&p.done)
	kept := atomic.LoadInt64(&p.kept)

	p.mu.Lock()
	dataset, lastErr, started := p.dataset, p.lastError, p.startTime
	p.mu.Unlock()

	var pct, rate float64
	var elapsed time.Duration
	if !started.IsZero() {
		elapsed = time.Since(started)
	}
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	if elapsed.Seconds() > 0 {
		rate = float64(kept) / elapsed.Seconds()
	}

	return PrepareStatus{
		Running:   atomic.LoadInt32(&p.running) == 1,
		Dataset:   dataset,
		Sources:   total,
		Done:      done,
		Kept:      kept,
		Skipped:   atomic.LoadInt64(&p.skipped),
		Created:   atomic.LoadInt64(&p.created),
		Percent:   pct,
		Rate:      rate,
		Elapsed:   elapsed.Round(time.Second).String(),
		LastError: lastErr,
	}
}

func (p *Preparer) reset(dataset string) {
	atomic.StoreInt64(&p.sources, 0)
	atomic.StoreInt64(&p.done, 0)
	atomic.StoreInt64(&p.kept, 0)
	atomic.StoreInt64(&p.skipped, 0)
	atomic.StoreInt64(&p.created, 0)
	p.mu.Lock()
	p.dataset = dataset
	p.lastError = ""
	p.startTime = time.Now()
	p.mu.Unlock()
}

// Prepare builds the manifests of one dataset. When every manifest of the
// dataset already exists it verifies them instead. Missing inputs abort the
// run and nothing is written; bad records and undecodable audio are
// returned as skips.
func (p *Preparer) Prepare(ctx context.Context, a scanner.Adapter, root string) (*PrepareResult, error) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil, errors.New("prepare already running")
	}
	defer atomic.StoreInt32(&p.running, 0)

	name := a.Name()
	p.reset(name)
	res := &PrepareResult{Dataset: name, Lines: map[segment.Split]int{}}

	if p.manifestsExist(a) {
		slog.Info("Manifests exist, verifying", "dataset", name)
		err := p.verify(ctx, a, res)
		res.Elapsed = time.Since(p.startTime)
		return res, err
	}

	sources, err := a.Discover(root)
	if err != nil {
		p.setLastError(err.Error())
		return nil, err
	}
	atomic.StoreInt64(&p.sources, int64(len(sources)))
	slog.Info("Preparing", "dataset", name, "root", root, "sources", len(sources),
		"mode", a.Mode().String(), "workers", p.opts.Workers)

	stop := p.logProgress()
	defer stop()

	exporter := manifest.NewExporter(p.audio, a.Curator())
	results := make([][]manifest.Outcome, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, src := range sources {
		g.Go(func() error {
			out, err := p.process(gctx, a, exporter, src)
			if err != nil {
				return fmt.Errorf("%s %s: %w", name, src.ID, err)
			}
			results[i] = out
			atomic.AddInt64(&p.done, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.setLastError(err.Error())
		return nil, err
	}

	bySplit := map[segment.Split][]manifest.Record{}
	for _, s := range a.Splits() {
		bySplit[s] = nil
	}
	for _, outs := range results {
		for _, o := range outs {
			if !o.Kept() {
				res.Skips = append(res.Skips, *o.Skip)
				continue
			}
			bySplit[o.Split] = append(bySplit[o.Split], o.Record)
		}
	}

	splits := make([]segment.Split, 0, len(bySplit))
	for s := range bySplit {
		splits = append(splits, s)
	}
	sort.Slice(splits, func(i, j int) bool { return splits[i] < splits[j] })

	for _, s := range splits {
		recs := bySplit[s]
		if err := manifest.WriteManifest(ListPath(p.opts.Dst, name, s), recs); err != nil {
			return nil, err
		}
		if err := manifest.WriteText(TextPath(p.opts.Dst, name, s), recs); err != nil {
			return nil, err
		}
		res.Lines[s] = len(recs)
		metrics.SetManifestLines(name, string(s), len(recs))
	}

	res.Created = atomic.LoadInt64(&p.created)
	res.Elapsed = time.Since(p.startTime)
	slog.Info("Prepared", "dataset", name,
		"kept", atomic.LoadInt64(&p.kept),
		"skipped", len(res.Skips),
		"created", res.Created,
		"elapsed", res.Elapsed.Round(time.Millisecond).String())
	return res, nil
}

// Verify re-checks the existing manifests of a dataset without preparing
// anything. A missing manifest is an error.
func (p *Preparer) Verify(ctx context.Context, a scanner.Adapter) (*PrepareResult, error) {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return nil, errors.New("prepare already running")
	}
	defer atomic.StoreInt32(&p.running, 0)

	p.reset(a.Name())
	for _, s := range a.Splits() {
		if list := ListPath(p.opts.Dst, a.Name(), s); !manifest.Exists(list) {
			return nil, fmt.Errorf("%w: %s", scanner.ErrMissingInput, list)
		}
	}
	res := &PrepareResult{Dataset: a.Name(), Lines: map[segment.Split]int{}}
	err := p.verify(ctx, a, res)
	res.Elapsed = time.Since(p.startTime)
	return res, err
}

func (p *Preparer) manifestsExist(a scanner.Adapter) bool {
	for _, s := range a.Splits() {
		if !manifest.Exists(ListPath(p.opts.Dst, a.Name(), s)) {
			return false
		}
	}
	return true
}

// verify self-heals existing manifests and keeps the text files aligned.
func (p *Preparer) verify(ctx context.Context, a scanner.Adapter, res *PrepareResult) error {
	res.Verified = true
	name := a.Name()
	v := manifest.NewVerifier()

	for _, s := range a.Splits() {
		list := ListPath(p.opts.Dst, name, s)
		rep, err := v.Verify(list)
		if err != nil {
			p.setLastError(err.Error())
			return err
		}
		res.Reports = append(res.Reports, rep)
		res.Lines[s] = rep.Kept

		for _, d := range rep.Dropped {
			p.skip(name, d)
			res.Skips = append(res.Skips, d)
			if p.catalog != nil && d.ID != "" {
				if err := p.catalog.DeleteChunk(ctx, name, d.ID); err != nil {
					slog.Warn("Catalog delete failed", "dataset", name, "id", d.ID, "error", err)
				}
			}
		}

		text := TextPath(p.opts.Dst, name, s)
		if rep.Rewritten || !manifest.Exists(text) {
			recs, err := manifest.ReadManifest(list)
			if err != nil {
				return err
			}
			if err := manifest.WriteText(text, recs); err != nil {
				return err
			}
		}
		if rep.Rewritten {
			slog.Info("Manifest rewritten", "path", list, "kept", rep.Kept, "dropped", len(rep.Dropped))
		}
		metrics.SetManifestLines(name, string(s), rep.Kept)
	}
	return nil
}

func (p *Preparer) logProgress() (stop func()) {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(p.opts.Progress)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				st := p.Status()
				slog.Info("Progress", "dataset", st.Dataset,
					"done", st.Done, "sources", st.Sources,
					"kept", st.Kept, "skipped", st.Skipped,
					"percent", fmt.Sprintf("%.1f", st.Percent))
			}
		}
	}()
	return func() { close(done) }
}

// process handles one source. Only errors that must stop the whole run are
// returned; everything else becomes an outcome.
func (p *Preparer) process(ctx context.Context, a scanner.Adapter, exp *manifest.Exporter, src scanner.Source) ([]manifest.Outcome, error) {
	name := a.Name()
	utts, skips, err := a.ParseRecords(src)
	if err != nil {
		return nil, err
	}

	out := make([]manifest.Outcome, 0, len(utts)+len(skips))
	for _, s := range skips {
		out = append(out, p.skip(name, s))
	}

	switch a.Mode() {
	case scanner.Accumulate:
		source := a.LocateAudio(src, segment.Utterance{})
		if !manifest.Exists(source) {
			out = append(out, p.skip(name, manifest.Skip{Reason: manifest.ReasonMissingAudio, Source: src.Transcript, Path: source}))
			return out, nil
		}
		acc := segment.NewAccumulator(src.ID, p.opts.Chunking)
		for c, err := range acc.Chunks(slices.Values(utts)) {
			if err != nil {
				out = append(out, p.skip(name, manifest.Skip{Reason: manifest.ReasonMalformed, Source: src.Transcript, Detail: err.Error()}))
				break
			}
			o, err := p.exportChunk(ctx, name, exp, c, p.route(src, c), source)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}

	case scanner.PerUtterance:
		for i, u := range utts {
			c := segment.FromUtterance(src.ID, i, u)
			o, err := p.exportChunk(ctx, name, exp, c, p.route(src, c), a.LocateAudio(src, u))
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}

	case scanner.WholeFile:
		for i, u := range utts {
			c := segment.FromUtterance(src.ID, i, u)
			o, err := p.exportWhole(ctx, name, exp, c, p.route(src, c), a.LocateAudio(src, u), src.Transcode)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *Preparer) route(src scanner.Source, c segment.Chunk) segment.Split {
	if src.Split != "" {
		return src.Split
	}
	return p.opts.Router.Route(c)
}

// precheck rejects chunks whose transcript would fail verification and
// chunks whose source audio is gone, before any audio work.
func (p *Preparer) precheck(dataset string, exp *manifest.Exporter, c segment.Chunk, source string) *manifest.Outcome {
	if reason, ok := manifest.CheckText(exp.Cure(c.Text)); !ok {
		o := p.skip(dataset, manifest.Skip{Reason: reason, ID: c.Name(), Detail: c.Text})
		return &o
	}
	if !manifest.Exists(source) {
		o := p.skip(dataset, manifest.Skip{Reason: manifest.ReasonMissingAudio, ID: c.Name(), Path: source})
		return &o
	}
	return nil
}

func (p *Preparer) exportChunk(ctx context.Context, dataset string, exp *manifest.Exporter, c segment.Chunk, split segment.Split, source string) (manifest.Outcome, error) {
	if o := p.precheck(dataset, exp, c, source); o != nil {
		return *o, nil
	}

	start := time.Now()
	rec, created, err := exp.Export(ctx, c, source, AudioDir(p.opts.Dst, dataset, c.Recording))
	metrics.RecordExport(dataset, time.Since(start).Seconds())
	if err != nil {
		return p.exportFailed(ctx, dataset, c, source, err)
	}
	if created {
		atomic.AddInt64(&p.created, 1)
		metrics.RecordAudioWritten(dataset)
	}
	return p.keep(ctx, dataset, split, rec), nil
}

func (p *Preparer) exportWhole(ctx context.Context, dataset string, exp *manifest.Exporter, c segment.Chunk, split segment.Split, source string, transcode bool) (manifest.Outcome, error) {
	if o := p.precheck(dataset, exp, c, source); o != nil {
		return *o, nil
	}

	var rec manifest.Record
	if transcode {
		var (
			created bool
			err     error
		)
		start := time.Now()
		rec, created, err = exp.Export(ctx, c, source, AudioDir(p.opts.Dst, dataset, c.Recording))
		metrics.RecordExport(dataset, time.Since(start).Seconds())
		if err != nil {
			return p.exportFailed(ctx, dataset, c, source, err)
		}
		if created {
			atomic.AddInt64(&p.created, 1)
			metrics.RecordAudioWritten(dataset)
		}
	} else {
		rec = exp.Reference(c, source)
	}

	dur, err := p.audio.DurationMs(ctx, rec.Path)
	if err != nil {
		return p.exportFailed(ctx, dataset, c, rec.Path, err)
	}
	rec.DurationMs = dur
	return p.keep(ctx, dataset, split, rec), nil
}

// exportFailed turns decode failures into skips. Cancellation and other
// errors (disk full, permissions) stop the run.
func (p *Preparer) exportFailed(ctx context.Context, dataset string, c segment.Chunk, source string, err error) (manifest.Outcome, error) {
	if ctx.Err() != nil {
		return manifest.Outcome{}, ctx.Err()
	}
	if !errors.Is(err, audio.ErrCorruptAudio) {
		return manifest.Outcome{}, err
	}
	p.setLastError(err.Error())
	return p.skip(dataset, manifest.Skip{
		Reason: manifest.ReasonCorruptAudio,
		ID:     c.Name(),
		Path:   source,
		Detail: err.Error(),
	}), nil
}

func (p *Preparer) keep(ctx context.Context, dataset string, split segment.Split, rec manifest.Record) manifest.Outcome {
	atomic.AddInt64(&p.kept, 1)
	metrics.RecordKept(dataset, string(split))

	if p.catalog != nil {
		hash, err := audio.MD5File(rec.Path)
		if err != nil {
			slog.Warn("Hash failed", "path", rec.Path, "error", err)
		}
		err = p.catalog.UpsertChunk(ctx, db.ChunkRow{
			Dataset:    dataset,
			Split:      string(split),
			ChunkID:    rec.ID,
			FilePath:   rec.Path,
			FileHash:   hash,
			DurationMs: rec.DurationMs,
			Transcript: rec.Text,
		})
		if err != nil {
			slog.Warn("Catalog upsert failed", "dataset", dataset, "id", rec.ID, "error", err)
		}
	}
	return manifest.Kept(split, rec)
}

func (p *Preparer) skip(dataset string, s manifest.Skip) manifest.Outcome {
	atomic.AddInt64(&p.skipped, 1)
	metrics.RecordSkip(dataset, string(s.Reason))

	switch s.Reason {
	case manifest.ReasonCorruptAudio, manifest.ReasonMissingAudio:
		slog.Warn("Skip", "dataset", dataset, "skip", s.String())
	default:
		slog.Debug("Skip", "dataset", dataset, "skip", s.String())
	}
	return manifest.Skipped(s)
}
