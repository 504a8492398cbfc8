package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/scanner"
	"corpus-prep/internal/segment"
	"corpus-prep/internal/service"
)

var sourceFlags map[string]string

var prepareCmd = &cobra.Command{
	Use:   "prepare [dataset...]",
	Short: "Build manifests for datasets",
	Long: `Build audio chunks, lists/<dataset>-<split>.lst and text/<dataset>-<split>.txt.

Without arguments every dataset with a configured source directory is
prepared. A dataset whose manifests already exist is verified instead.

Examples:
  corpus-prep prepare fisher --src fisher=/corpora/fisher
  corpus-prep --dst /data -p 16 prepare ami-ihm ami-sdm ted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDatasets(args, true)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [dataset...]",
	Short: "Re-check existing manifests",
	Long: `Drop manifest lines whose audio is gone or whose transcript is unusable.
Clean manifests are left byte-for-byte untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDatasets(args, false)
	},
}

func init() {
	prepareCmd.Flags().StringToStringVar(&sourceFlags, "src", nil, "dataset source directory, e.g. --src ted=/corpora/TEDLIUM_release2")
	rootCmd.AddCommand(prepareCmd, verifyCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// datasets resolves the command arguments to adapter names.
func datasets(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	var names []string
	for _, n := range scanner.Names() {
		if _, ok := cfg.Source(n); ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no datasets given and no source directories configured")
	}
	return names, nil
}

func runDatasets(args []string, prepare bool) error {
	for name, dir := range sourceFlags {
		cfg.Data.Sources[name] = dir
	}
	names, err := datasets(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	database, err := openCatalog(ctx)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if database != nil {
		defer database.Close()
	}

	trailing := segment.DropTrailing
	if cfg.Chunking.FlushTrailing {
		trailing = segment.FlushTrailing
	}
	p := service.NewPreparer(newAudio(), service.PrepareOptions{
		Dst:      cfg.Data.Dst,
		Workers:  cfg.Workers.Prepare,
		Chunking: segment.Options{MaxDuration: cfg.Chunking.MaxDurationMs, Trailing: trailing},
		Router:   segment.EveryNth{N: cfg.Chunking.TestEvery, Once: cfg.Chunking.TestOnce},
	})
	if database != nil {
		p.WithCatalog(database)
	}

	stop := serveStatus(p, database)
	defer stop()

	for _, name := range names {
		a, err := scanner.New(name)
		if err != nil {
			return err
		}

		var res *service.PrepareResult
		if prepare {
			root, ok := cfg.Source(name)
			if !ok {
				return fmt.Errorf("%w: no source directory for %s (use --src %s=<dir>)", scanner.ErrMissingInput, name, name)
			}
			res, err = p.Prepare(ctx, a, root)
		} else {
			res, err = p.Verify(ctx, a)
		}
		if err != nil {
			return err
		}
		summarize(res)
	}
	return nil
}

func summarize(res *service.PrepareResult) {
	byReason := map[manifest.Reason]int{}
	for _, s := range res.Skips {
		byReason[s.Reason]++
	}
	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)

	attrs := []any{"dataset", res.Dataset, "verified", res.Verified}
	for _, s := range []segment.Split{segment.Train, segment.Dev, segment.Test} {
		if n, ok := res.Lines[s]; ok {
			attrs = append(attrs, string(s), n)
		}
	}
	for _, r := range reasons {
		attrs = append(attrs, "skip_"+r, byReason[manifest.Reason(r)])
	}
	slog.Info("Summary", attrs...)
}
