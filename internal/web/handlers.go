package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/nutriclean/internal/core"
	"github.com/JonMunkholm/nutriclean/internal/output"
	"github.com/go-chi/chi/v5"
)

// maxRequestBody bounds the JSON body of POST /api/runs.
const maxRequestBody = 64 << 10

type healthResponse struct {
	Status string                `json:"status"`
	Runs   core.RunLimiterStatus `json:"runs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Runs:   s.service.Limiter().Status(),
	})
}

type startRunRequest struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Format string `json:"format"`
}

type startRunResponse struct {
	ID string `json:"id"`
}

// handleStartRun starts a run in the background. The body is optional.
// input and output are file names inside the configured data directories.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var body startRunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		respondBadRequest(w, r, "invalid JSON body: "+err.Error())
		return
	}

	req, err := s.service.InDataDir(core.RunRequest{
		Input:   body.Input,
		Output:  body.Output,
		Trigger: "api",
	})
	if err != nil {
		respondBadRequest(w, r, err.Error())
		return
	}
	if body.Format != "" {
		format, err := output.ParseFormat(body.Format)
		if err != nil {
			respondBadRequest(w, r, err.Error())
			return
		}
		req.Format = format
	}

	id, err := s.service.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			w.Header().Set("Retry-After", "5")
		}
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Location", "/api/runs/"+id)
	writeJSON(w, http.StatusAccepted, startRunResponse{ID: id})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.Get(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunOutput streams the file written by a successful run. The file may
// since have been replaced by a later run writing the same path.
func (s *Server) handleRunOutput(w http.ResponseWriter, r *http.Request) {
	run, err := s.service.Get(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if run.Status != core.RunSucceeded {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "run has no output",
			Message: "run has no output",
			Action:  "Wait for the run to succeed",
			Code:    "RUN005",
		})
		return
	}

	f, err := os.Open(run.Output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusGone, ErrorResponse{
				Error:   "output file no longer exists",
				Message: "output file no longer exists",
				Action:  "Start a new run",
				Code:    "OUT002",
			})
			return
		}
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", run.Format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(run.Output)+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
