package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"corpus-prep/internal/manifest"
	"corpus-prep/internal/service"
	"corpus-prep/internal/vocab"
)

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Build ami-combined lists from prepared AMI manifests",
	Long: `Short AMI utterances are shuffled, packed into groups of about
MAX_DURATION_MS and concatenated with 500 ms of silence.
Requires ami-ihm and ami-sdm to be prepared first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		c := service.NewCombiner(newAudio(), service.CombineOptions{
			Dst:         cfg.Data.Dst,
			MaxDuration: cfg.Chunking.MaxDurationMs,
			Seed:        cfg.Chunking.ShuffleSeed,
			Workers:     cfg.Workers.Prepare,
		})
		_, err := c.Combine(ctx)
		return err
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [list...]",
	Short: "Decode every audio file referenced by manifests",
	Long:  `Without arguments every lists/*.lst under --dst is checked. Manifests are not modified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lists, err := listsOrAll(args, "*.lst")
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		c := service.NewChecker(newAudio(), cfg.Workers.Prepare)
		bad, err := c.Check(ctx, lists...)
		if err != nil {
			return err
		}
		for _, s := range bad {
			fmt.Printf("%s is corrupt! (%s)\n", s.Path, s.Reason)
		}
		slog.Info("Check done", "lists", len(lists), "checked", c.Checked(), "bad", len(bad))
		return nil
	},
}

var convertLenCmd = &cobra.Command{
	Use:   "convert-len <list>...",
	Short: "Rewrite manifest durations from seconds to milliseconds",
	Long:  `Each <list> is written to <list>_new; the original is left as is.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, src := range args {
			n, err := manifest.ScaleDurations(src, src+"_new", 1000)
			if err != nil {
				return err
			}
			slog.Info("Converted", "list", src, "records", n)
		}
		return nil
	},
}

var vocabOut string

var vocabCmd = &cobra.Command{
	Use:   "vocab [list...]",
	Short: "Count transcript words over manifests",
	Long:  `Without arguments all lists/*-train.lst under --dst are used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lists, err := listsOrAll(args, "*-train.lst")
		if err != nil {
			return err
		}
		words, err := vocab.WordCounts(lists...)
		if err != nil {
			return err
		}
		out := vocabOut
		if out == "" {
			out = filepath.Join(cfg.Data.Dst, "text", "words.txt")
		}
		if err := vocab.WriteWordList(out, words); err != nil {
			return err
		}
		slog.Info("Word list written", "path", out, "words", len(words), "lists", len(lists))
		return nil
	},
}

var (
	lmPath     string
	lexiconDir string
)

var lexiconCmd = &cobra.Command{
	Use:   "lexicon",
	Short: "Letter lexicon and tokens from an ARPA language model",
	RunE: func(cmd *cobra.Command, args []string) error {
		words, err := vocab.ReadARPAUnigrams(lmPath)
		if err != nil {
			return err
		}
		dir := lexiconDir
		if dir == "" {
			dir = cfg.Data.Dst
		}
		if err := vocab.WriteLexicon(filepath.Join(dir, "lexicon.txt"), words); err != nil {
			return err
		}
		if err := vocab.WriteTokens(filepath.Join(dir, "tokens.txt"), words); err != nil {
			return err
		}
		slog.Info("Lexicon written", "dir", dir, "words", len(words))
		return nil
	},
}

func init() {
	vocabCmd.Flags().StringVarP(&vocabOut, "out", "o", "", "output word list (default <dst>/text/words.txt)")
	lexiconCmd.Flags().StringVar(&lmPath, "lm", "", "ARPA language model")
	lexiconCmd.Flags().StringVar(&lexiconDir, "out", "", "output directory (default --dst)")
	lexiconCmd.MarkFlagRequired("lm")

	rootCmd.AddCommand(combineCmd, checkCmd, convertLenCmd, vocabCmd, lexiconCmd)
}

func listsOrAll(args []string, pattern string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	lists, err := filepath.Glob(filepath.Join(cfg.Data.Dst, "lists", pattern))
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("no manifests matching %s in %s", pattern, filepath.Join(cfg.Data.Dst, "lists"))
	}
	sort.Strings(lists)
	return lists, nil
}
