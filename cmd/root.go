package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"corpus-prep/internal/api"
	"corpus-prep/internal/audio"
	"corpus-prep/internal/config"
	"corpus-prep/internal/db"
	"corpus-prep/internal/logger"
)

var (
	envFile   string
	dstDir    string
	processes int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "corpus-prep",
	Short:         "Speech corpus preparation",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		if dstDir != "" {
			cfg.Data.Dst = dstDir
		}
		if processes > 0 {
			cfg.Workers.Prepare = processes
		}

		_, err = logger.Init(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to .env file")
	rootCmd.PersistentFlags().StringVar(&dstDir, "dst", "", "destination directory (default DST_DIR or ./data_dir)")
	rootCmd.PersistentFlags().IntVarP(&processes, "process", "p", 0, "number of workers (default WORKERS or 8)")
}

func newAudio() *audio.FFmpeg {
	a := audio.NewFFmpeg()
	a.FFmpegBin = cfg.Audio.FFmpegBin
	a.FFprobeBin = cfg.Audio.FFprobeBin
	a.SoxBin = cfg.Audio.SoxBin
	a.Sph2PipeBin = cfg.Audio.Sph2PipeBin
	if cfg.Audio.SampleRate > 0 {
		a.SampleRate = cfg.Audio.SampleRate
	}
	return a
}

// openCatalog connects to MariaDB when DB_ENABLED is set; nil otherwise.
func openCatalog(ctx context.Context) (*db.DB, error) {
	if !cfg.Database.Enabled {
		return nil, nil
	}
	database, err := db.New(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
	)
	if err != nil {
		return nil, err
	}
	if err := database.CreateTable(ctx); err != nil {
		database.Close()
		return nil, err
	}
	slog.Info("Connected to MariaDB", "host", cfg.Database.Host, "db", cfg.Database.Name)
	return database, nil
}

// serveStatus starts the status server when STATUS_ADDR is set. The
// returned func shuts it down.
func serveStatus(status api.StatusSource, database *db.DB) func() {
	if cfg.Server.Addr == "" {
		return func() {}
	}
	var stats api.StatsSource
	if database != nil {
		stats = database
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: api.NewRouter(status, stats)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status server failed", "addr", cfg.Server.Addr, "error", err)
		}
	}()
	slog.Info("Status server started", "addr", cfg.Server.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
