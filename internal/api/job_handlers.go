package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/artexin/internal/jobs"
)

type fetchableJobRequest struct {
	URLs       []string `json:"urls" validate:"required,min=1,dive,url"`
	Javascript *bool    `json:"javascript"`
	Extract    *bool    `json:"extract"`
}

type standaloneJobRequest struct {
	Paths  []string `json:"paths" validate:"required,min=1,dive,required"`
	Origin string   `json:"origin" validate:"required,url"`
}

func (s *Server) submitFetchableJob(w http.ResponseWriter, r *http.Request) {
	var req fetchableJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	opts := jobs.DefaultFetchableOptions()
	if req.Javascript != nil {
		opts.Javascript = *req.Javascript
	}
	if req.Extract != nil {
		opts.Extract = *req.Extract
	}
	s.create(w, r, jobs.TypeFetchable, req.URLs, jobs.NewFetchableOptions(opts))
}

func (s *Server) submitStandaloneJob(w http.ResponseWriter, r *http.Request) {
	var req standaloneJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	opts := jobs.NewStandaloneOptions(jobs.StandaloneOptions{Origin: req.Origin})
	s.create(w, r, jobs.TypeStandalone, req.Paths, opts)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, t jobs.JobType, targets []string, opts jobs.Options) {
	job, err := s.svc.Create(r.Context(), t, targets, opts)
	if err != nil {
		s.fail(w, r, "create job failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// listJobs handles GET /v1/jobs?status=. It returns {"jobs": [...]} or 400 for
// an unknown status.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.svc.List(r.Context(), status)
	if err != nil {
		s.fail(w, r, "list jobs failed", err)
		return
	}
	if list == nil {
		list = []jobs.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// getJob handles GET /v1/jobs/{job_id}. It returns {"job": {...}} with tasks, or
// 404 when the job does not exist.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Get(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, "get job failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// retryJob handles POST /v1/jobs/{job_id}/retry. Only erred jobs can be
// retried; anything else yields 409.
func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Retry(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, "retry job failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, jobs.ErrUnknownJobType),
		errors.Is(err, jobs.ErrInvalidOptions),
		errors.Is(err, jobs.ErrNoTargets):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseStatus(input string) (jobs.JobStatus, error) {
	status := jobs.JobStatus(strings.ToUpper(strings.TrimSpace(input)))
	switch status {
	case "", jobs.JobQueued, jobs.JobProcessing, jobs.JobErred, jobs.JobFinished:
		return status, nil
	default:
		return "", errors.New("invalid status")
	}
}
