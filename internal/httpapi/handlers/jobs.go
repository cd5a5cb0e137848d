package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/suPer8Hu/cesar/internal/common"
	"github.com/suPer8Hu/cesar/internal/jobs"
)

func (h *Handler) Health(c *gin.Context) {
	worker := "stopped"
	var current *string
	if h.Worker != nil {
		if h.Worker.Running() {
			worker = "running"
		}
		if id := h.Worker.CurrentJobID(); id != "" {
			current = &id
		}
	}
	common.OK(c, gin.H{
		"status":         "ok",
		"worker":         worker,
		"current_job_id": current,
	})
}

func (h *Handler) CreateJob(c *gin.Context) {
	var req jobs.CreateParams
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	h.create(c, req)
}

// UploadJob stores a multipart "file" under the upload dir and queues it.
// Optional form fields: model, diarize, min_speakers, max_speakers.
func (h *Handler) UploadJob(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "file is required")
		return
	}

	req := jobs.CreateParams{Model: c.PostForm("model")}
	if v := c.PostForm("diarize"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, "diarize: must be a boolean")
			return
		}
		req.Diarize = b
	}
	for field, dst := range map[string]**int{
		"min_speakers": &req.MinSpeakers,
		"max_speakers": &req.MaxSpeakers,
	} {
		v := c.PostForm(field)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10002, field+": must be an integer")
			return
		}
		*dst = &n
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		h.Log.Error().Err(err).Msg("create upload dir")
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to store upload")
		return
	}
	dest := filepath.Join(h.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := c.SaveUploadedFile(fh, dest); err != nil {
		h.Log.Error().Err(err).Msg("save upload")
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to store upload")
		return
	}
	req.Source = dest

	if !h.create(c, req) {
		_ = os.Remove(dest)
	}
}

func (h *Handler) create(c *gin.Context, req jobs.CreateParams) bool {
	j, err := h.Jobs.CreateJob(c.Request.Context(), req)
	if err != nil {
		var ve *jobs.ValidationError
		if errors.As(err, &ve) {
			common.Fail(c, http.StatusBadRequest, 10002, ve.Error())
			return false
		}
		h.Log.Error().Err(err).Msg("create job")
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create job")
		return false
	}
	common.Accepted(c, j)
	return true
}

// ListJobs accepts an optional comma separated status filter.
func (h *Handler) ListJobs(c *gin.Context) {
	var statuses []jobs.Status
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st, ok := jobs.ParseStatus(strings.ToLower(strings.TrimSpace(s)))
			if !ok {
				common.Fail(c, http.StatusBadRequest, 10004, fmt.Sprintf("unknown status %q", s))
				return
			}
			statuses = append(statuses, st)
		}
	}

	list, err := h.Jobs.ListJobs(c.Request.Context(), statuses...)
	if err != nil {
		h.Log.Error().Err(err).Msg("list jobs")
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list jobs")
		return
	}
	common.OK(c, gin.H{"jobs": list})
}

func (h *Handler) GetJob(c *gin.Context) {
	j, err := h.Jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err, "get job")
		return
	}
	common.OK(c, j)
}

func (h *Handler) RetryJob(c *gin.Context) {
	j, err := h.Jobs.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err, "retry job")
		return
	}
	common.OK(c, j)
}

func (h *Handler) jobError(c *gin.Context, err error, op string) {
	var ise *jobs.InvalidStateError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
	case errors.As(err, &ise):
		common.Fail(c, http.StatusConflict, 40901, ise.Error())
	default:
		h.Log.Error().Err(err).Str("job_id", c.Param("id")).Msg(op)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to "+op)
	}
}

// Events returns buffered job events after the given sequence number.
func (h *Handler) Events(c *gin.Context) {
	var since int64
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			common.Fail(c, http.StatusBadRequest, 10005, "since: must be a non-negative integer")
			return
		}
		since = n
	}

	evs := h.Feed.Since(since)
	next := since
	if len(evs) > 0 {
		next = evs[len(evs)-1].Seq
	}
	common.OK(c, gin.H{"events": evs, "next_since": next})
}
