package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/cesar/internal/common"
)

const DefaultModel = "base"

var validModels = []string{"tiny", "base", "small", "medium", "large"}

// CreateParams is what a producer supplies for a new job.
type CreateParams struct {
	Source      string `json:"source"`
	Model       string `json:"model"`
	Diarize     bool   `json:"diarize"`
	MinSpeakers *int   `json:"min_speakers"`
	MaxSpeakers *int   `json:"max_speakers"`
}

func ValidModel(m string) bool {
	for _, v := range validModels {
		if v == m {
			return true
		}
	}
	return false
}

// Validate normalizes p in place and checks it.
func (p *CreateParams) Validate() error {
	p.Source = strings.TrimSpace(p.Source)
	p.Model = strings.ToLower(strings.TrimSpace(p.Model))
	if p.Model == "" {
		p.Model = DefaultModel
	}

	if p.Source == "" {
		return &ValidationError{Field: "source", Message: "cannot be empty"}
	}
	if !ValidModel(p.Model) {
		return &ValidationError{
			Field:   "model",
			Message: fmt.Sprintf("must be one of %s", strings.Join(validModels, ", ")),
		}
	}
	if p.MinSpeakers != nil && *p.MinSpeakers < 1 {
		return &ValidationError{Field: "min_speakers", Message: fmt.Sprintf("expected integer >= 1, got %d", *p.MinSpeakers)}
	}
	if p.MaxSpeakers != nil && *p.MaxSpeakers < 1 {
		return &ValidationError{Field: "max_speakers", Message: fmt.Sprintf("expected integer >= 1, got %d", *p.MaxSpeakers)}
	}
	if p.MinSpeakers != nil && p.MaxSpeakers != nil && *p.MinSpeakers > *p.MaxSpeakers {
		return &ValidationError{
			Field:   "min_speakers",
			Message: fmt.Sprintf("min_speakers (%d) cannot be greater than max_speakers (%d)", *p.MinSpeakers, *p.MaxSpeakers),
		}
	}
	return nil
}

// NewJob validates p and builds a queued job with a fresh id.
func NewJob(p CreateParams) (*Job, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:               id,
		Status:           StatusQueued,
		Source:           p.Source,
		ModelConfig:      p.Model,
		DiarizeRequested: p.Diarize,
		MinSpeakers:      p.MinSpeakers,
		MaxSpeakers:      p.MaxSpeakers,
		CreatedAt:        time.Now().UTC(),
	}, nil
}
