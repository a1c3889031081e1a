package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/scene-sub-translator/internal/jobs"
	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
	"github.com/MimeLyc/scene-sub-translator/internal/subtitle"
)

const (
	defaultPreviewLimit = 80
	maxPreviewLimit     = 500
)

var (
	errJobNotFound    = errors.New("job not found")
	errNoProjectStore = errors.New("project store is not configured")
	errProjectBusy    = errors.New("project is being translated")
	errInvalidLine    = errors.New("line number not found in project")
)

type jobDetailResponse struct {
	Job           *jobs.TranslationJob `json:"job"`
	Progress      progressResponse     `json:"progress"`
	Preview       []previewLine        `json:"preview"`
	PreviewOffset int                  `json:"preview_offset"`
	PreviewLimit  int                  `json:"preview_limit"`
}

type progressResponse struct {
	Batches         int     `json:"batches"`
	DoneBatches     int     `json:"done_batches"`
	TranslatedLines int     `json:"translated_lines"`
	TotalLines      int     `json:"total_lines"`
	Percent         float64 `json:"percent"`
}

type previewLine struct {
	Number      int    `json:"number"`
	Scene       int    `json:"scene"`
	Batch       int    `json:"batch"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Original    string `json:"original"`
	Translation string `json:"translation,omitempty"`
}

type projectResponse struct {
	ID             string         `json:"id"`
	SourcePath     string         `json:"source_path"`
	SourceLanguage string         `json:"source_language,omitempty"`
	TargetLanguage string         `json:"target_language,omitempty"`
	SavedAt        time.Time      `json:"saved_at"`
	Scenes         []sceneSummary `json:"scenes"`
	TotalLines     int            `json:"total_lines"`
	Lines          []previewLine  `json:"lines"`
	Offset         int            `json:"offset"`
	Limit          int            `json:"limit"`
}

type sceneSummary struct {
	Number  int            `json:"number"`
	Summary string         `json:"summary,omitempty"`
	Batches []batchSummary `json:"batches"`
}

type batchSummary struct {
	Number     int         `json:"number"`
	State      scene.State `json:"state"`
	Lines      int         `json:"lines"`
	Translated int         `json:"translated"`
	Start      string      `json:"start"`
	End        string      `json:"end"`
	Summary    string      `json:"summary,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
}

type updateLinesRequest struct {
	Lines []lineEdit `json:"lines"`
}

type lineEdit struct {
	Number      int    `json:"number"`
	Translation string `json:"translation"`
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	detail, err := s.buildJobDetail(r.Context(), chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	offset, limit := pageParams(r)
	writeJSON(w, http.StatusOK, buildProjectResponse(rec, offset, limit))
}

func (s *Server) handleUpdateProjectLines(w http.ResponseWriter, r *http.Request) {
	var req updateLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "lines is required")
		return
	}

	id := chi.URLParam(r, "id")
	if s.projectBusy(id) {
		writeError(w, http.StatusConflict, errProjectBusy.Error())
		return
	}
	rec, err := s.loadProject(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if err := applyLineEdits(rec.Snapshot, req.Lines); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	rec.Snapshot.SavedAt = now
	rec.UpdatedAt = now
	if err := s.projects.SaveProject(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, buildProjectResponse(rec, 0, defaultPreviewLimit))
}

func writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errJobNotFound), errors.Is(err, project.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errNoProjectStore):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pageParams(r *http.Request) (offset, limit int) {
	offset = parsePositiveIntWithDefault(r.URL.Query().Get("offset"), 0)
	limit = parsePositiveIntWithDefault(r.URL.Query().Get("limit"), defaultPreviewLimit)
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}
	return offset, limit
}

func parsePositiveIntWithDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) loadProject(ctx context.Context, id string) (*project.Record, error) {
	if s.projects == nil {
		return nil, errNoProjectStore
	}
	rec, err := s.projects.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Snapshot == nil {
		return nil, project.ErrProjectNotFound
	}
	return rec, nil
}

// projectBusy reports whether a running job owns the project.
func (s *Server) projectBusy(id string) bool {
	for _, job := range s.queue.List() {
		if job.ProjectID == id && job.Status == jobs.StatusRunning {
			return true
		}
	}
	return false
}

// buildJobDetail prefers the saved project for the preview and falls back
// to the in-memory progress while nothing has been saved yet.
func (s *Server) buildJobDetail(ctx context.Context, jobID string, offset, limit int) (jobDetailResponse, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		return jobDetailResponse{}, errJobNotFound
	}

	detail := jobDetailResponse{
		Job: job,
		Progress: computeProgress(job.Progress.Batches, job.Progress.DoneBatches,
			job.Progress.Lines, job.Progress.TranslatedLines),
		Preview:       []previewLine{},
		PreviewOffset: offset,
		PreviewLimit:  limit,
	}
	if job.ProjectID == "" || s.projects == nil {
		return detail, nil
	}

	rec, err := s.loadProject(ctx, job.ProjectID)
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		return detail, nil
	case err != nil:
		return jobDetailResponse{}, err
	}

	lines := snapshotLines(rec.Snapshot)
	detail.Preview = pageLines(lines, offset, limit)
	if job.Status != jobs.StatusRunning {
		batches, translated := 0, 0
		for _, ss := range rec.Snapshot.Scenes {
			batches += len(ss.Batches)
		}
		for _, line := range lines {
			if line.Translation != "" {
				translated++
			}
		}
		detail.Progress = computeProgress(batches, job.Progress.DoneBatches, len(lines), translated)
	}
	return detail, nil
}

func computeProgress(batches, done, total, translated int) progressResponse {
	p := progressResponse{
		Batches:         batches,
		DoneBatches:     done,
		TranslatedLines: translated,
		TotalLines:      total,
	}
	if total > 0 {
		p.Percent = (float64(translated) / float64(total)) * 100
	}
	return p
}

func buildProjectResponse(rec *project.Record, offset, limit int) projectResponse {
	snap := rec.Snapshot
	lines := snapshotLines(snap)
	resp := projectResponse{
		ID:             snap.ID,
		SourcePath:     snap.SourcePath,
		SourceLanguage: snap.SourceLanguage,
		TargetLanguage: snap.TargetLanguage,
		SavedAt:        snap.SavedAt,
		Scenes:         make([]sceneSummary, 0, len(snap.Scenes)),
		TotalLines:     len(lines),
		Lines:          pageLines(lines, offset, limit),
		Offset:         offset,
		Limit:          limit,
	}
	for _, ss := range snap.Scenes {
		summary := sceneSummary{Number: ss.Number, Summary: ss.Summary}
		for _, bs := range ss.Batches {
			bsum := batchSummary{
				Number:     bs.Number,
				State:      bs.State,
				Lines:      len(bs.Originals),
				Translated: len(bs.Translated),
				Summary:    bs.Summary,
				Errors:     bs.Errors,
			}
			if n := len(bs.Originals); n > 0 {
				bsum.Start = subtitle.FormatTimestamp(bs.Originals[0].StartTime)
				bsum.End = subtitle.FormatTimestamp(bs.Originals[n-1].EndTime)
			}
			summary.Batches = append(summary.Batches, bsum)
		}
		resp.Scenes = append(resp.Scenes, summary)
	}
	return resp
}

// snapshotLines flattens the snapshot into lines in document order.
func snapshotLines(snap *project.Snapshot) []previewLine {
	var ret []previewLine
	for _, ss := range snap.Scenes {
		for _, bs := range ss.Batches {
			translated := make(map[int]string, len(bs.Translated))
			for _, line := range bs.Translated {
				translated[line.Number] = line.Text
			}
			for _, line := range bs.Originals {
				ret = append(ret, previewLine{
					Number:      line.Number,
					Scene:       ss.Number,
					Batch:       bs.Number,
					Start:       subtitle.FormatTimestamp(line.StartTime),
					End:         subtitle.FormatTimestamp(line.EndTime),
					Original:    line.Text,
					Translation: translated[line.Number],
				})
			}
		}
	}
	return ret
}

func pageLines(lines []previewLine, offset, limit int) []previewLine {
	if offset >= len(lines) {
		return []previewLine{}
	}
	end := min(len(lines), offset+limit)
	return lines[offset:end]
}

// applyLineEdits replaces translations by line number. A batch whose lines
// are all translated afterwards counts as translated.
func applyLineEdits(snap *project.Snapshot, edits []lineEdit) error {
	for _, edit := range edits {
		bs, original, ok := findLine(snap, edit.Number)
		if !ok {
			return errInvalidLine
		}
		setTranslation(bs, original, edit.Translation)
	}

	for si := range snap.Scenes {
		for bi := range snap.Scenes[si].Batches {
			bs := &snap.Scenes[si].Batches[bi]
			if bs.State != scene.StateTranslated && fullyTranslated(bs) {
				bs.State = scene.StateTranslated
				bs.Errors = nil
			}
		}
	}
	return nil
}

func findLine(snap *project.Snapshot, number int) (*project.BatchSnapshot, subtitle.Line, bool) {
	for si := range snap.Scenes {
		for bi := range snap.Scenes[si].Batches {
			bs := &snap.Scenes[si].Batches[bi]
			for _, line := range bs.Originals {
				if line.Number == number {
					return bs, line, true
				}
			}
		}
	}
	return nil, subtitle.Line{}, false
}

func setTranslation(bs *project.BatchSnapshot, original subtitle.Line, text string) {
	kept := bs.Translated[:0]
	for _, line := range bs.Translated {
		if line.Number != original.Number {
			kept = append(kept, line)
		}
	}
	bs.Translated = kept

	if strings.TrimSpace(text) != "" {
		bs.Translated = append(bs.Translated, subtitle.Line{
			Number:    original.Number,
			StartTime: original.StartTime,
			EndTime:   original.EndTime,
			Text:      text,
		})
		sort.Slice(bs.Translated, func(i, j int) bool {
			return bs.Translated[i].Number < bs.Translated[j].Number
		})
	}
}

func fullyTranslated(bs *project.BatchSnapshot) bool {
	have := make(map[int]bool, len(bs.Translated))
	for _, line := range bs.Translated {
		have[line.Number] = true
	}
	for _, line := range bs.Originals {
		if !line.IsEmpty() && !have[line.Number] {
			return false
		}
	}
	return true
}
