package pipeline

import (
	"context"
	"strings"
)

// Segment is the unit every engine adapter produces and the formatter
// consumes. Speaker is empty until alignment assigns one.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

func (s Segment) Duration() float64 { return s.End - s.Start }

// Transcript is the output of a Transcriber.
type Transcript struct {
	Segments []Segment
	Language string
	Duration float64 // seconds
}

// SpeakerTurn is one contiguous stretch attributed to a raw speaker id such
// as SPEAKER_00.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarization is the output of a Diarizer.
type Diarization struct {
	Turns        []SpeakerTurn
	SpeakerCount int
}

type Downloader interface {
	// Fetch retrieves a remote source and returns a local file path.
	Fetch(ctx context.Context, source string) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path, model string) (Transcript, error)
}

type Diarizer interface {
	Diarize(ctx context.Context, path string, minSpeakers, maxSpeakers *int) (Diarization, error)
}

// ProgressFunc receives the current phase, overall percent and percent
// within the phase.
type ProgressFunc func(phase string, overall, phasePct int)

// Request carries a job's immutable parameters.
type Request struct {
	Source           string
	ModelConfig      string
	DiarizeRequested bool
	MinSpeakers      *int
	MaxSpeakers      *int
}

// DiarizationFailure explains why a requested diarization produced no labels.
type DiarizationFailure struct {
	Code    string
	Message string
}

type Result struct {
	Text         string
	Language     string
	Duration     float64
	Diarized     bool
	SpeakerCount *int

	// Set when diarization was requested but failed. The transcript in Text
	// is still complete.
	DiarizationFailure *DiarizationFailure
}

// IsRemote reports whether source must be fetched before transcription.
func IsRemote(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "s3://")
}
