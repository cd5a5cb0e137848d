package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/cesar/internal/config"
	"github.com/suPer8Hu/cesar/internal/engine"
	"github.com/suPer8Hu/cesar/internal/events"
	"github.com/suPer8Hu/cesar/internal/fetch"
	"github.com/suPer8Hu/cesar/internal/httpapi"
	"github.com/suPer8Hu/cesar/internal/httpapi/handlers"
	"github.com/suPer8Hu/cesar/internal/jobs"
	"github.com/suPer8Hu/cesar/internal/logging"
	"github.com/suPer8Hu/cesar/internal/pipeline"
	"github.com/suPer8Hu/cesar/internal/store/rabbitmq"
	"github.com/suPer8Hu/cesar/internal/store/redisstore"
	"github.com/suPer8Hu/cesar/internal/worker"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg, logging.New(cfg.AppEnv))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides CESAR_HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	store, err := jobs.OpenStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Startup must not race the worker: anything still marked active here
	// was abandoned by a previous process.
	if _, err := jobs.Recover(ctx, store, log); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	bus := events.NewBus(0)
	pub := events.Fanout{bus}

	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		pub = append(pub, redisstore.NewPublisher(rdb, 0))
		log.Info().Str("addr", cfg.RedisAddr).Msg("publishing job events to redis")
	}
	if cfg.RabbitURL != "" {
		rp, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer rp.Close()
		pub = append(pub, rp)
		log.Info().Str("queue", cfg.RabbitQueue).Msg("publishing job events to rabbitmq")
	}

	dl, err := fetch.NewDownloader(fetch.Config{
		Dir:      cfg.DownloadDir,
		YTDLPBin: cfg.YTDLPBin,
		S3: fetch.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Region:    cfg.S3Region,
		},
	})
	if err != nil {
		return err
	}
	pool := engine.NewPool(engine.WhisperFactory(cfg.ModelDir, engine.WhisperConfig{
		FFmpegBin:  cfg.FFmpegBin,
		WhisperBin: cfg.WhisperBin,
		Threads:    cfg.Threads,
	}), log)
	diarizer := engine.NewDiarizationClient(cfg.DiarizeURL, cfg.HFToken)
	orch := pipeline.NewOrchestrator(dl, pool, diarizer, log)

	w := worker.New(store, orch, pub, log, worker.Config{PollInterval: cfg.PollInterval})
	svc := jobs.NewService(store, func(ctx context.Context, j *jobs.Job) {
		if err := pub.Publish(ctx, events.Event{JobID: j.ID, Type: events.TypeStatus, Status: string(j.Status)}); err != nil {
			log.Warn().Err(err).Str("job_id", j.ID).Msg("publish job event")
		}
		w.Kick()
	})

	h := handlers.NewHandler(svc, w, bus, cfg.UploadDir, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.APISecret, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerErr := make(chan error, 1)
	go func() { workerErr <- w.Run(ctx) }()

	httpErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-workerErr:
		if err != nil {
			runErr = fmt.Errorf("worker stopped: %w", err)
		}
	case err := <-httpErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	return shutdown(srv, w, cfg.ShutdownGrace, log, runErr)
}

// shutdown stops intake, then waits up to grace for the job in flight. A job
// still running after that is left active and requeued on next start.
func shutdown(srv *http.Server, w *worker.Worker, grace time.Duration, log zerolog.Logger, runErr error) error {
	w.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	select {
	case <-w.Done():
		log.Info().Msg("shutdown complete")
		return runErr
	case <-ctx.Done():
		log.Error().
			Str("job_id", w.CurrentJobID()).
			Dur("grace", grace).
			Msg("shutdown grace expired with a job in flight")
		return errors.Join(runErr, errors.New("forced exit after shutdown grace"))
	}
}
