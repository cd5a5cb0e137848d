package jobs

import (
	"context"
	"errors"
)

// Hook is called after a producer operation puts a job into the queue.
type Hook func(ctx context.Context, j *Job)

type Service struct {
	store *Store
	hooks []Hook
}

func NewService(store *Store, hooks ...Hook) *Service {
	return &Service{store: store, hooks: hooks}
}

func (s *Service) CreateJob(ctx context.Context, p CreateParams) (*Job, error) {
	j, err := NewJob(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	s.notify(ctx, j)
	return j, nil
}

func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context, statuses ...Status) ([]Job, error) {
	return s.store.ListAll(ctx, statuses...)
}

// RetryJob puts a partial job back in the queue with its terminal fields
// cleared. Any other status yields *InvalidStateError and no write.
func (s *Service) RetryJob(ctx context.Context, id string) (*Job, error) {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(j.Status, StatusQueued) || j.Status.Active() {
		return nil, &InvalidStateError{ID: j.ID, Status: j.Status, Op: "retry"}
	}
	j.resetForQueue()
	if err := s.store.Update(ctx, j); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.notify(ctx, j)
	return j, nil
}

func (s *Service) notify(ctx context.Context, j *Job) {
	for _, h := range s.hooks {
		h(ctx, j)
	}
}
