package events

import (
	"context"
	"errors"
	"time"
)

type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
)

// Event describes one change to a job. Seq is assigned by Bus.
type Event struct {
	Seq       int64     `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"job_id"`
	Type      Type      `json:"type"`
	Status    string    `json:"status"`
	Phase     string    `json:"phase,omitempty"`
	Overall   int       `json:"progress_overall"`
	PhasePct  int       `json:"progress_phase_pct"`
	Message   string    `json:"message,omitempty"`
}

// Publisher delivers job events somewhere. Failures are reported to the
// caller but must never affect job outcomes.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes every event to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
