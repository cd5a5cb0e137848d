package handlers

import (
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/cesar/internal/events"
	"github.com/suPer8Hu/cesar/internal/jobs"
)

// WorkerStatus is the read-only view of the background worker used by
// the health endpoint.
type WorkerStatus interface {
	Running() bool
	CurrentJobID() string
}

type EventSource interface {
	Since(seq int64) []events.Event
}

type Handler struct {
	Jobs      *jobs.Service
	Worker    WorkerStatus
	Feed      EventSource
	UploadDir string
	Log       zerolog.Logger
}

func NewHandler(svc *jobs.Service, w WorkerStatus, ev EventSource, uploadDir string, log zerolog.Logger) *Handler {
	return &Handler{
		Jobs:      svc,
		Worker:    w,
		Feed:      ev,
		UploadDir: uploadDir,
		Log:       log,
	}
}
