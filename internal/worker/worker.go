package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/suPer8Hu/cesar/internal/events"
	"github.com/suPer8Hu/cesar/internal/jobs"
	"github.com/suPer8Hu/cesar/internal/pipeline"
)

const (
	DefaultPollInterval = time.Second

	genericErrorMessage = "internal error while processing job"
)

// Orchestrator runs the processing pipeline for one job.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req pipeline.Request, progress pipeline.ProgressFunc) (pipeline.Result, error)
}

// Store is the part of jobs.Store the worker uses.
type Store interface {
	NextActionable(ctx context.Context) (*jobs.Job, error)
	Update(ctx context.Context, j *jobs.Job) error
}

type Config struct {
	PollInterval time.Duration
}

// finalWriteBackoff spaces the attempts to persist a job's terminal status.
var finalWriteBackoff = []time.Duration{
	50 * time.Millisecond,
	200 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// Worker is the single consumer of the job queue. It processes one job at a
// time, oldest first, and never cancels a job it has started.
type Worker struct {
	store   Store
	orch    Orchestrator
	pub     events.Publisher
	log     zerolog.Logger
	poll    time.Duration
	backoff []time.Duration

	// unsaved holds a finished job whose terminal status could not be
	// written. No other job is picked until it is. Owned by Run.
	unsaved *jobs.Job

	shutdownOnce sync.Once
	shutdown     chan struct{}
	wake         chan struct{}
	done         chan struct{}
	running      atomic.Bool

	mu         sync.Mutex
	currentJob string
}

func New(store Store, orch Orchestrator, pub events.Publisher, log zerolog.Logger, cfg Config) *Worker {
	if pub == nil {
		pub = events.Nop{}
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Worker{
		store:    store,
		orch:     orch,
		pub:      pub,
		log:      log.With().Str("component", "worker").Logger(),
		poll:     poll,
		backoff:  finalWriteBackoff,
		shutdown: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Run polls for work until Shutdown is called or ctx is cancelled. A job in
// flight always runs to completion first. Run must be called at most once.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		close(w.done)
	}()
	w.log.Info().Dur("poll_interval", w.poll).Msg("worker started")

	for {
		if w.stopping(ctx) {
			if j := w.unsaved; j != nil {
				w.log.Error().Str("job_id", j.ID).Str("status", string(j.Status)).
					Msg("stopping with final status unsaved; job is requeued on next start")
			}
			w.log.Info().Msg("worker stopped")
			return nil
		}

		picked, err := w.processNext(ctx)
		if err != nil && !w.stopping(ctx) {
			w.log.Error().Err(err).Msg("poll failed")
		}
		if picked {
			continue
		}

		select {
		case <-w.shutdown:
		case <-ctx.Done():
		case <-w.wake:
		case <-time.After(w.poll):
		}
	}
}

// Shutdown asks the loop to stop after the current job. Safe to call more
// than once and from any goroutine.
func (w *Worker) Shutdown() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Kick wakes an idle loop so a new job is picked up without waiting for the
// next poll.
func (w *Worker) Kick() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) Running() bool { return w.running.Load() }

func (w *Worker) IsProcessing() bool { return w.CurrentJobID() != "" }

func (w *Worker) CurrentJobID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentJob
}

func (w *Worker) setCurrent(id string) {
	w.mu.Lock()
	w.currentJob = id
	w.mu.Unlock()
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-w.shutdown:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// processNext runs the oldest actionable job, if any, and reports whether
// one was picked.
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	if w.unsaved != nil {
		if err := w.flushUnsaved(context.WithoutCancel(ctx)); err != nil {
			return false, err
		}
	}

	j, err := w.store.NextActionable(ctx)
	if err != nil {
		return false, fmt.Errorf("next actionable job: %w", err)
	}
	if j == nil {
		return false, nil
	}
	// once picked, the job is not abandoned because ctx ends
	if err := w.process(context.WithoutCancel(ctx), j); err != nil {
		return false, err
	}
	return true, nil
}

type outcome struct {
	res pipeline.Result
	err error
}

func (w *Worker) process(ctx context.Context, j *jobs.Job) error {
	log := w.log.With().Str("job_id", j.ID).Logger()

	j.Status = jobs.StatusProcessing
	if pipeline.IsRemote(j.Source) {
		j.Status = jobs.StatusDownloading
	}
	if j.StartedAt == nil {
		now := time.Now().UTC()
		j.StartedAt = &now
	}
	if err := w.store.Update(ctx, j); err != nil {
		return fmt.Errorf("start job %s: %w", j.ID, err)
	}

	w.setCurrent(j.ID)
	defer w.setCurrent("")
	log.Info().Str("status", string(j.Status)).Str("model", j.ModelConfig).Msg("job started")
	w.publish(ctx, j, events.TypeStatus)

	progress := func(phase string, overall, phasePct int) {
		promoted := false
		if j.Status == jobs.StatusDownloading && phase != pipeline.PhaseFetching {
			j.Status = jobs.StatusProcessing
			promoted = true
		}
		j.SetProgress(phase, overall, phasePct)
		if err := w.store.Update(ctx, j); err != nil {
			log.Warn().Err(err).Str("phase", phase).Msg("persist progress")
		}
		if promoted {
			w.publish(ctx, j, events.TypeStatus)
		}
		w.publish(ctx, j, events.TypeProgress)
	}

	req := pipeline.Request{
		Source:           j.Source,
		ModelConfig:      j.ModelConfig,
		DiarizeRequested: j.DiarizeRequested,
		MinSpeakers:      j.MinSpeakers,
		MaxSpeakers:      j.MaxSpeakers,
	}

	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("pipeline panic")
				ch <- outcome{err: fmt.Errorf("pipeline panic: %v", r)}
			}
		}()
		res, err := w.orch.Orchestrate(ctx, req, progress)
		ch <- outcome{res: res, err: err}
	}()
	out := <-ch

	w.finish(j, out, log)
	if err := w.persistFinal(ctx, j, log); err != nil {
		w.unsaved = j
		return fmt.Errorf("persist final status of job %s: %w", j.ID, err)
	}
	w.publish(ctx, j, events.TypeStatus)
	return nil
}

// persistFinal writes the terminal status, retrying with backoff.
func (w *Worker) persistFinal(ctx context.Context, j *jobs.Job, log zerolog.Logger) error {
	err := w.store.Update(ctx, j)
	for _, d := range w.backoff {
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("status", string(j.Status)).Dur("retry_in", d).Msg("persist final status")
		time.Sleep(d)
		err = w.store.Update(ctx, j)
	}
	if err != nil {
		log.Error().Err(err).Str("status", string(j.Status)).Msg("final status not persisted; holding queue")
	}
	return err
}

// flushUnsaved retries the held terminal write and publishes it once stored.
func (w *Worker) flushUnsaved(ctx context.Context) error {
	j := w.unsaved
	log := w.log.With().Str("job_id", j.ID).Logger()
	if err := w.persistFinal(ctx, j, log); err != nil {
		return fmt.Errorf("persist final status of job %s: %w", j.ID, err)
	}
	w.unsaved = nil
	log.Info().Str("status", string(j.Status)).Msg("final status persisted")
	w.publish(ctx, j, events.TypeStatus)
	return nil
}

func (w *Worker) finish(j *jobs.Job, out outcome, log zerolog.Logger) {
	now := time.Now().UTC()
	j.CompletedAt = &now

	if out.err != nil {
		msg := userMessage(out.err)
		j.Status = jobs.StatusError
		j.ErrorMessage = &msg
		j.ResultText = nil
		j.Diarized = nil
		j.SpeakerCount = nil
		log.Error().Err(out.err).Str("error_message", msg).Msg("job failed")
		return
	}

	res := out.res
	text := res.Text
	diarized := res.Diarized
	j.ResultText = &text
	j.Diarized = &diarized
	j.SpeakerCount = res.SpeakerCount
	if res.Language != "" {
		lang := res.Language
		j.DetectedLanguage = &lang
	}
	j.SetProgress(pipeline.PhaseFormatting, 100, 100)

	if f := res.DiarizationFailure; f != nil {
		msg, code := f.Message, f.Code
		j.Status = jobs.StatusPartial
		j.DiarizationError = &msg
		j.DiarizationErrorCode = &code
		log.Warn().Str("diarization_error_code", code).Msg("job partial")
		return
	}
	j.Status = jobs.StatusCompleted
	log.Info().Bool("diarized", diarized).Msg("job completed")
}

// userMessage keeps causes and engine details out of the stored message.
func userMessage(err error) string {
	var fe *pipeline.FetchError
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	var te *pipeline.TranscriptionError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return genericErrorMessage
}

func (w *Worker) publish(ctx context.Context, j *jobs.Job, typ events.Type) {
	e := events.Event{
		Timestamp: time.Now().UTC(),
		JobID:     j.ID,
		Type:      typ,
		Status:    string(j.Status),
	}
	if j.ProgressPhase != nil {
		e.Phase = *j.ProgressPhase
	}
	if j.ProgressOverall != nil {
		e.Overall = *j.ProgressOverall
	}
	if j.ProgressPhasePct != nil {
		e.PhasePct = *j.ProgressPhasePct
	}
	switch {
	case j.ErrorMessage != nil:
		e.Message = *j.ErrorMessage
	case j.DiarizationError != nil:
		e.Message = *j.DiarizationError
	}
	if err := w.pub.Publish(ctx, e); err != nil {
		w.log.Warn().Err(err).Str("job_id", j.ID).Msg("publish job event")
	}
}
