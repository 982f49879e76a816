package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/thinkscotty/prophet/internal/feeds"
	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/normalize"
	"github.com/thinkscotty/prophet/internal/rss"
	"github.com/thinkscotty/prophet/internal/telegram"
)

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.db.Sources()
	if err != nil {
		fail(w, "sources", err)
		return
	}
	jsonResponse(w, map[string]any{"success": true, "sources": catalog})
}

// handleSourcesReplace replaces one source collection with the request body,
// a JSON array. Missing ids and timestamps are filled in.
func (s *Server) handleSourcesReplace(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	now := time.Now()
	stamp := normalize.ISO(now, now)

	switch models.SourceType(r.PathValue("kind")) {
	case models.SourceTelegram:
		var list []models.TelegramChannel
		if err = json.Unmarshal(body, &list); err == nil {
			for i := range list {
				c := &list[i]
				c.Enabled = enabledOrDefault(body, i, c.Enabled)
				c.Username = telegram.ChannelUsername(c.URL, c.Username)
				if c.Username == "" {
					err = invalidSource("channel url or username is required")
					break
				}
				if c.URL == "" {
					c.URL = "https://t.me/" + c.Username
				}
				fillIdentity(&c.ID, &c.AddedAt, "tg", stamp)
			}
			if err == nil {
				err = s.db.SaveTelegramChannels(list)
			}
		}
	case models.SourcePolymarket:
		var list []models.PolymarketTopic
		if err = json.Unmarshal(body, &list); err == nil {
			for i := range list {
				list[i].Enabled = enabledOrDefault(body, i, list[i].Enabled)
				if len(list[i].Keywords) == 0 {
					err = invalidSource("topic keywords are required")
					break
				}
				fillIdentity(&list[i].ID, &list[i].AddedAt, "pm", stamp)
			}
			if err == nil {
				err = s.db.SavePolymarketTopics(list)
			}
		}
	case models.SourceTwitter:
		var list []models.TwitterAccount
		if err = json.Unmarshal(body, &list); err == nil {
			for i := range list {
				a := &list[i]
				a.Enabled = enabledOrDefault(body, i, a.Enabled)
				a.Username = strings.TrimPrefix(strings.TrimSpace(a.Username), "@")
				if a.Username == "" {
					err = invalidSource("username is required")
					break
				}
				fillIdentity(&a.ID, &a.AddedAt, "tw", stamp)
			}
			if err == nil {
				err = s.db.SaveTwitterAccounts(list)
			}
		}
	case models.SourceRSS:
		var list []models.RSSFeed
		if err = json.Unmarshal(body, &list); err == nil {
			for i := range list {
				list[i].Enabled = enabledOrDefault(body, i, list[i].Enabled)
				if strings.TrimSpace(list[i].URL) == "" {
					err = invalidSource("feed url is required")
					break
				}
				fillIdentity(&list[i].ID, &list[i].AddedAt, "rss", stamp)
			}
			if err == nil {
				err = s.db.SaveRSSFeeds(list)
			}
		}
	default:
		jsonError(w, "Unknown source kind", http.StatusNotFound)
		return
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil:
		s.handleSources(w, r)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		jsonError(w, "Body must be a JSON array of source configs", http.StatusBadRequest)
	case errors.Is(err, errInvalidSource):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		fail(w, "replace sources", err)
	}
}

var errInvalidSource = errors.New("invalid source")

func invalidSource(msg string) error {
	return fmt.Errorf("%w: %s", errInvalidSource, msg)
}

// enabledOrDefault treats an entry without an enabled field as enabled.
func enabledOrDefault(body []byte, i int, decoded bool) bool {
	if !gjson.GetBytes(body, fmt.Sprintf("%d.enabled", i)).Exists() {
		return true
	}
	return decoded
}

func fillIdentity(id, addedAt *string, prefix, stamp string) {
	if *id == "" {
		*id = prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if *addedAt == "" {
		*addedAt = stamp
	}
}

// handleSourcesSuggest lists catalogue feeds matching ?q=.
func (s *Server) handleSourcesSuggest(w http.ResponseWriter, r *http.Request) {
	found := feeds.FindRelevant(r.URL.Query().Get("q"))
	if found == nil {
		found = []feeds.Feed{}
	}
	jsonResponse(w, map[string]any{"success": true, "feeds": found})
}

// handleFeedDiscover resolves a page or feed URL to a confirmed feed.
func (s *Server) handleFeedDiscover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.URL) == "" {
		jsonError(w, "URL is required", http.StatusBadRequest)
		return
	}
	if s.discoverer == nil {
		jsonError(w, "Feed discovery not available", http.StatusServiceUnavailable)
		return
	}

	found, err := s.discoverer.Discover(r.Context(), strings.TrimSpace(req.URL))
	if errors.Is(err, rss.ErrNoFeed) {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	jsonResponse(w, map[string]any{"success": true, "feed": found})
}
