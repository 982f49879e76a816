package server

import (
	"fmt"
	"net/http"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/scraper"
)

type scrapeRequest struct {
	DaysBack int              `json:"daysBack"`
	Sources  *scraper.Sources `json:"sources"`
}

func (s *Server) handleScrapeAll(w http.ResponseWriter, r *http.Request) {
	req := scrapeRequest{DaysBack: s.cfg.Scrape.DaysBack}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	selected := scraper.AllSources()
	if req.Sources != nil {
		selected = *req.Sources
	}

	result, err := s.sched.Scrape(r.Context(), scraper.Options{DaysBack: req.DaysBack, Sources: &selected})
	if err != nil {
		fail(w, "scrape-all", err)
		return
	}

	count := 0
	for _, src := range models.AllSources {
		if selected.Has(src) {
			count++
		}
	}
	jsonResponse(w, map[string]any{
		"success": result.Success,
		"runId":   result.RunID,
		"stats":   result.Stats,
		"errors":  result.Errors,
		"sources": result.Sources,
		"message": fmt.Sprintf("Scraped %d posts from %d sources", result.Stats.Total, count),
	})
}

func (s *Server) handleScrapeProgress(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{"success": true, "progress": s.sched.Progress()})
}

// handlePosts serves the stored posts newest first, optionally filtered by
// source kind and source id, one page at a time.
func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.db.GetPosts()
	if err != nil {
		fail(w, "posts", err)
		return
	}

	q := r.URL.Query()
	source, sourceID := q.Get("source"), q.Get("sourceId")
	filtered := make([]models.UnifiedPost, 0, len(posts))
	for _, p := range posts {
		if source != "" && source != "all" && string(p.Source) != source {
			continue
		}
		if sourceID != "" && sourceID != "all" && p.SourceID != sourceID {
			continue
		}
		filtered = append(filtered, p)
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	total := len(filtered)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)

	jsonResponse(w, map[string]any{
		"success": true,
		"posts":   filtered[start:end],
		"total":   total,
		"pagination": map[string]int{
			"page":       page,
			"limit":      limit,
			"total":      total,
			"totalPages": (total + limit - 1) / limit,
		},
	})
}
