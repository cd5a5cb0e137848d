package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Phase names passed to ProgressFunc.
const (
	PhaseFetching     = "fetching"
	PhaseTranscribing = "transcribing"
	PhaseDiarizing    = "diarizing"
	PhaseFormatting   = "formatting"
)

// Overall progress at the start of each phase.
const (
	progressTranscribeAfterFetch = 10
	progressDiarize              = 60
	progressFormat               = 90
	progressDone                 = 100
)

// Orchestrator runs fetch, transcribe, diarize and format for one job. It
// keeps no state between runs beyond its collaborators.
type Orchestrator struct {
	downloader  Downloader
	transcriber Transcriber
	diarizer    Diarizer
	log         zerolog.Logger
	now         func() time.Time
}

// NewOrchestrator wires the collaborators. downloader and diarizer may be
// nil; remote sources then fail to fetch and diarization requests fall back.
func NewOrchestrator(downloader Downloader, transcriber Transcriber, diarizer Diarizer, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		downloader:  downloader,
		transcriber: transcriber,
		diarizer:    diarizer,
		log:         log,
		now:         time.Now,
	}
}

// diarizeOutcome is either an output or a failure, never both.
type diarizeOutcome struct {
	output  *Diarization
	failure *DiarizationFailure
}

// Orchestrate returns a *FetchError or *TranscriptionError when no
// transcript could be produced. Diarization problems never surface as errors;
// they are reported in Result.DiarizationFailure.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request, progress ProgressFunc) (Result, error) {
	report := func(phase string, overall, phasePct int) {
		if progress != nil {
			progress(phase, overall, phasePct)
		}
	}

	path := req.Source
	transcribeStart := 0
	if IsRemote(req.Source) {
		report(PhaseFetching, 0, 0)
		local, err := o.fetch(ctx, req.Source)
		if err != nil {
			return Result{}, err
		}
		defer o.removeFetched(local)
		path = local
		transcribeStart = progressTranscribeAfterFetch
	}

	report(PhaseTranscribing, transcribeStart, 0)
	tr, err := o.transcriber.Transcribe(ctx, path, req.ModelConfig)
	if err != nil {
		var te *TranscriptionError
		if errors.As(err, &te) {
			return Result{}, te
		}
		return Result{}, &TranscriptionError{Message: "transcription failed", Err: err}
	}

	var outcome diarizeOutcome
	if req.DiarizeRequested {
		report(PhaseDiarizing, progressDiarize, 0)
		outcome = o.diarize(ctx, path, req)
	}

	report(PhaseFormatting, progressFormat, 0)
	res := Result{Language: tr.Language, Duration: tr.Duration}
	var speakers int
	if d := outcome.output; d != nil {
		speakers = len(DistinctSpeakers(d.Turns))
		if d.SpeakerCount != speakers {
			o.log.Debug().Int("reported", d.SpeakerCount).Int("observed", speakers).Msg("speaker count taken from observed labels")
		}
	}
	switch {
	case outcome.failure != nil:
		res.Text = FormatPlain(tr.Segments, true)
		res.DiarizationFailure = outcome.failure
	case speakers > 1:
		res.Text = FormatLabeled(Align(tr.Segments, *outcome.output), speakers, tr.Duration, o.now())
		res.Diarized = true
		res.SpeakerCount = &speakers
	default:
		// not requested, or only one voice: labels would add nothing
		res.Text = FormatPlain(tr.Segments, false)
	}
	report(PhaseFormatting, progressDone, 100)
	return res, nil
}

func (o *Orchestrator) fetch(ctx context.Context, source string) (string, error) {
	if o.downloader == nil {
		return "", &FetchError{Message: "remote sources are not supported"}
	}
	local, err := o.downloader.Fetch(ctx, source)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return "", fe
		}
		return "", &FetchError{Message: "could not download source", Err: err}
	}
	return local, nil
}

func (o *Orchestrator) removeFetched(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		o.log.Warn().Err(err).Str("path", path).Msg("remove fetched file")
	}
}

func (o *Orchestrator) diarize(ctx context.Context, path string, req Request) diarizeOutcome {
	if o.diarizer == nil {
		return o.fallback(CodeDiarizationFailed, "speaker identification is not available", nil)
	}

	d, err := o.diarizer.Diarize(ctx, path, req.MinSpeakers, req.MaxSpeakers)
	if err == nil {
		return diarizeOutcome{output: &d}
	}

	var ae *AuthenticationError
	if errors.As(err, &ae) {
		code := CodeCredentialsInvalid
		if ae.Missing {
			code = CodeCredentialsMissing
		}
		return o.fallback(code, ae.Message, err)
	}

	msg := "speaker identification failed"
	var de *DiarizationError
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	return o.fallback(CodeDiarizationFailed, msg, err)
}

func (o *Orchestrator) fallback(code, msg string, err error) diarizeOutcome {
	o.log.Warn().
		Err(err).
		Str("code", code).
		Msgf("transcription succeeded, diarization failed: %s; falling back to plain transcript", msg)
	return diarizeOutcome{failure: &DiarizationFailure{Code: code, Message: msg}}
}
