package jobs

import "time"

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusPartial     Status = "partial"
	StatusError       Status = "error"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusQueued, StatusDownloading, StatusProcessing,
		StatusCompleted, StatusPartial, StatusError:
		return st, true
	}
	return "", false
}

// Active reports whether the worker currently owns a job in this status.
func (s Status) Active() bool {
	return s == StatusDownloading || s == StatusProcessing
}

// Actionable reports whether the worker may pick up a job in this status.
func (s Status) Actionable() bool {
	return s == StatusQueued || s == StatusDownloading
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPartial || s == StatusError
}

// CanTransition enforces the job state machine. Moving an active job back to
// queued is the recovery edge; partial -> queued is retry.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusDownloading || to == StatusProcessing
	case StatusDownloading:
		return to == StatusProcessing || to == StatusError || to == StatusQueued
	case StatusProcessing:
		return to == StatusCompleted || to == StatusPartial || to == StatusError || to == StatusQueued
	case StatusPartial:
		return to == StatusQueued
	default:
		return false
	}
}

type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	Status Status `gorm:"type:varchar(16);not null;index:idx_jobs_status_created,priority:1" json:"status"`

	// Request parameters, immutable after creation.
	Source           string `gorm:"type:text;not null" json:"source"`
	ModelConfig      string `gorm:"type:varchar(16);not null" json:"model_config"`
	DiarizeRequested bool   `gorm:"not null;default:false" json:"diarize_requested"`
	MinSpeakers      *int   `json:"min_speakers,omitempty"`
	MaxSpeakers      *int   `json:"max_speakers,omitempty"`

	ProgressOverall  *int    `json:"progress_overall,omitempty"`
	ProgressPhase    *string `gorm:"type:varchar(16)" json:"progress_phase,omitempty"`
	ProgressPhasePct *int    `json:"progress_phase_pct,omitempty"`

	CreatedAt   time.Time  `gorm:"not null;index:idx_jobs_status_created,priority:2" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Filled when completed or partial
	ResultText       *string `gorm:"type:text" json:"result_text,omitempty"`
	DetectedLanguage *string `gorm:"type:varchar(16)" json:"detected_language,omitempty"`
	SpeakerCount     *int    `json:"speaker_count,omitempty"`
	Diarized         *bool   `json:"diarized,omitempty"`

	// Filled when error
	ErrorMessage *string `gorm:"type:text" json:"error_message,omitempty"`

	// Filled when partial
	DiarizationError     *string `gorm:"type:text" json:"diarization_error,omitempty"`
	DiarizationErrorCode *string `gorm:"type:varchar(32)" json:"diarization_error_code,omitempty"`
}

func (Job) TableName() string { return "jobs" }

// resetForQueue clears everything a run writes, keeping the request
// parameters and created_at.
func (j *Job) resetForQueue() {
	j.Status = StatusQueued
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ProgressOverall = nil
	j.ProgressPhase = nil
	j.ProgressPhasePct = nil
	j.ResultText = nil
	j.DetectedLanguage = nil
	j.SpeakerCount = nil
	j.Diarized = nil
	j.ErrorMessage = nil
	j.DiarizationError = nil
	j.DiarizationErrorCode = nil
}

// SetProgress records progress, never letting the overall value go backwards
// within a run.
func (j *Job) SetProgress(phase string, overall, phasePct int) {
	overall = clampPct(overall)
	if j.ProgressOverall != nil && *j.ProgressOverall > overall {
		overall = *j.ProgressOverall
	}
	phasePct = clampPct(phasePct)
	j.ProgressOverall = &overall
	j.ProgressPhase = &phase
	j.ProgressPhasePct = &phasePct
}

func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
