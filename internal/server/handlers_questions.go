package server

import (
	"net/http"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/scheduler"
)

func generationResponse(gen *scheduler.Generation) map[string]any {
	resp := map[string]any{
		"success":        true,
		"questionsCount": len(gen.Result.Questions),
		"questions":      gen.Result.Questions,
		"eligiblePosts":  gen.Result.Eligible,
		"savedToFile":    gen.Snapshot,
	}
	if gen.Mock {
		resp["mock"] = true
		resp["message"] = "Mock questions generated for testing (model not used)"
	} else {
		resp["batches"] = gen.Result.Batches
		resp["failedBatches"] = gen.Result.FailedBatches
		resp["tokensUsed"] = gen.Result.TokensUsed
	}
	return resp
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	gen, err := s.sched.Generate(r.Context())
	if err != nil {
		fail(w, "generate", err)
		return
	}
	jsonResponse(w, generationResponse(gen))
}

func (s *Server) handleGenerateMock(w http.ResponseWriter, r *http.Request) {
	gen, err := s.sched.GenerateMock()
	if err != nil {
		fail(w, "generate-mock", err)
		return
	}
	jsonResponse(w, generationResponse(gen))
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.db.GetQuestions()
	if err != nil {
		fail(w, "questions", err)
		return
	}
	if r.URL.Query().Get("selected") == "true" {
		selected := make([]models.GeneratedQuestion, 0, len(qs))
		for _, q := range qs {
			if q.Selected {
				selected = append(selected, q)
			}
		}
		qs = selected
	}
	jsonResponse(w, map[string]any{"success": true, "questions": qs})
}

func (s *Server) handleQuestionSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Selected *bool  `json:"selected"`
	}
	if err := decodeBody(r, &req); err != nil || req.ID == "" || req.Selected == nil {
		jsonError(w, "ID and selected status required", http.StatusBadRequest)
		return
	}

	found, err := s.db.SetQuestionSelected(req.ID, *req.Selected)
	if err != nil {
		fail(w, "select question", err)
		return
	}
	if !found {
		jsonError(w, "Question not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, map[string]any{"success": true})
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	files, err := s.snapshots.List()
	if err != nil {
		fail(w, "list snapshots", err)
		return
	}
	jsonResponse(w, map[string]any{"success": true, "files": files})
}

func (s *Server) handleSnapshotLoad(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.Load(r.PathValue("name"))
	if err != nil {
		fail(w, "load snapshot", err)
		return
	}
	jsonResponse(w, map[string]any{"success": true, "data": snap})
}

func (s *Server) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshots.Delete(r.PathValue("name")); err != nil {
		fail(w, "delete snapshot", err)
		return
	}
	jsonResponse(w, map[string]any{"success": true})
}
