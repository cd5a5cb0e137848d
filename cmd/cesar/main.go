package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/cesar/internal/config"
	"github.com/suPer8Hu/cesar/internal/jobs"
)

var dbPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cesar: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cesar",
		Short: "Durable transcription job queue",
		Long: `cesar queues transcription jobs in an embedded SQLite database and processes
them one at a time with a background worker. "serve" runs the worker and the
HTTP API; the other commands operate on the same database file.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Job database file (overrides CESAR_DB_PATH)")
	cmd.AddCommand(
		newServeCmd(),
		newSubmitCmd(),
		newListCmd(),
		newStatusCmd(),
		newRetryCmd(),
		newTokenCmd(),
	)
	return cmd
}

func loadConfig() config.Config {
	cfg := config.Load()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func openService(cfg config.Config) (*jobs.Service, func(), error) {
	store, err := jobs.OpenStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return jobs.NewService(store), func() { _ = store.Close() }, nil
}
