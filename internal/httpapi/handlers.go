package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/MimeLyc/scene-sub-translator/internal/config"
	"github.com/MimeLyc/scene-sub-translator/internal/jobs"
)

type enqueueJobRequest struct {
	Source         string `json:"source"`
	DedupeKey      string `json:"dedupe_key"`
	InputPath      string `json:"input_path"`
	OutputPath     string `json:"output_path"`
	TargetLanguage string `json:"target_language"`
	Preview        bool   `json:"preview"`
	Resume         bool   `json:"resume"`
	Reparse        bool   `json:"reparse"`
	MaxLines       int    `json:"max_lines"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.InputPath = strings.TrimSpace(req.InputPath)
	if req.InputPath == "" {
		writeError(w, http.StatusBadRequest, "input_path is required")
		return
	}
	if req.TargetLanguage != "" {
		tag, err := language.Parse(req.TargetLanguage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target_language")
			return
		}
		req.TargetLanguage = tag.String()
	}
	if req.MaxLines < 0 {
		writeError(w, http.StatusBadRequest, "max_lines must not be negative")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if req.DedupeKey == "" {
		target := req.TargetLanguage
		if target == "" {
			target = "default"
		}
		req.DedupeKey = req.InputPath + "|" + target
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload: jobs.JobPayload{
			InputPath:  req.InputPath,
			OutputPath: req.OutputPath,
			Options: jobs.JobOptions{
				TargetLanguage: req.TargetLanguage,
				Preview:        req.Preview,
				Resume:         req.Resume,
				Reparse:        req.Reparse,
				MaxLines:       req.MaxLines,
			},
		},
	})
	code := http.StatusCreated
	if !created {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"job":     job,
	})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, found, err := s.queue.Cancel(chi.URLParam(r, "id"))
	switch {
	case !found:
		writeError(w, http.StatusNotFound, "job not found")
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeJSON(w, http.StatusOK, job)
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings.Redacted())
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	var req config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	current, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// a client echoing the redacted key back means "keep it"
	if req.LLMAPIKey != "" && req.LLMAPIKey == current.Redacted().LLMAPIKey {
		req.LLMAPIKey = ""
	}
	if req.LLMAPIKey == "" {
		req.LLMAPIKey = current.LLMAPIKey
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved.Redacted())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
