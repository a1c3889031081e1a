package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/scene-sub-translator/internal/project"
	"github.com/MimeLyc/scene-sub-translator/internal/scene"
)

const (
	opMergeScenes  = "merge_scenes"
	opMergeBatches = "merge_batches"
	opSplitBatch   = "split_batch"
	opSplitScene   = "split_scene"
)

// structureRequest reshapes the scenes and batches of a saved project.
//
//	{"op":"merge_scenes","scenes":[2,3]}
//	{"op":"merge_batches","scene":1,"batches":[1,2]}
//	{"op":"split_batch","scene":1,"batch":2,"line":14}
//	{"op":"split_scene","scene":1,"batch":3}
type structureRequest struct {
	Op      string `json:"op"`
	Scene   int    `json:"scene"`
	Batch   int    `json:"batch"`
	Line    int    `json:"line"`
	Scenes  []int  `json:"scenes"`
	Batches []int  `json:"batches"`
}

func (req structureRequest) apply(doc *scene.Document) error {
	switch req.Op {
	case opMergeScenes:
		if len(req.Scenes) < 2 {
			return errors.New("scenes needs at least two numbers")
		}
		return doc.MergeScenes(req.Scenes)
	case opMergeBatches:
		if len(req.Batches) < 2 {
			return errors.New("batches needs at least two numbers")
		}
		return doc.MergeBatches(req.Scene, req.Batches)
	case opSplitBatch:
		return doc.SplitBatch(req.Scene, req.Batch, req.Line)
	case opSplitScene:
		return doc.SplitScene(req.Scene, req.Batch)
	default:
		return fmt.Errorf("unknown op %q", req.Op)
	}
}

func (s *Server) handleRestructureProject(w http.ResponseWriter, r *http.Request) {
	var req structureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
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

	p := project.FromSnapshot(rec.Snapshot)
	if err := p.Edit(req.apply); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec.Snapshot = p.Snapshot()
	rec.UpdatedAt = time.Now().UTC()
	if err := s.projects.SaveProject(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, buildProjectResponse(rec, 0, defaultPreviewLimit))
}
