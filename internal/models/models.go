package models

import "time"

// SourceType identifies one of the upstream kinds a post can come from.
type SourceType string

const (
	SourceTelegram   SourceType = "telegram"
	SourcePolymarket SourceType = "polymarket"
	SourceTwitter    SourceType = "twitter"
	SourceRSS        SourceType = "rss"
)

// AllSources lists every source kind in the order the orchestrator reports them.
var AllSources = []SourceType{SourceTelegram, SourcePolymarket, SourceTwitter, SourceRSS}

// Valid reports whether s is a known source kind.
func (s SourceType) Valid() bool {
	switch s {
	case SourceTelegram, SourcePolymarket, SourceTwitter, SourceRSS:
		return true
	}
	return false
}

// UnifiedPost is the single normalized record every adapter maps into.
type UnifiedPost struct {
	ID         string         `json:"id"`
	Source     SourceType     `json:"source"`
	SourceID   string         `json:"sourceId"`
	SourceName string         `json:"sourceName"`
	Title      string         `json:"title,omitempty"`
	Text       string         `json:"text"`
	DateISO    string         `json:"dateIso"`
	URL        string         `json:"url"`
	Metadata   map[string]any `json:"metadata"`
}

// Time parses DateISO. Unparseable values sort as the zero time.
func (p UnifiedPost) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.DateISO)
	if err != nil {
		return time.Time{}
	}
	return t
}

// --- Source configuration ---

type TelegramChannel struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Username string `json:"username"`
	AddedAt  string `json:"addedAt"`
	Enabled  bool   `json:"enabled"`
}

type PolymarketTopic struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
	Category string   `json:"category"` // crypto, politics, financial, sports, other
	AddedAt  string   `json:"addedAt"`
	Enabled  bool     `json:"enabled"`
}

type TwitterAccount struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AccountType string `json:"accountType"` // person, organization, news, other
	AddedAt     string `json:"addedAt"`
	Enabled     bool   `json:"enabled"`
}

type RSSFeed struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"` // crypto, politics, financial, general
	AddedAt  string `json:"addedAt"`
	Enabled  bool   `json:"enabled"`
}

// --- Scrape results ---

type SourceError struct {
	Source SourceType `json:"source"`
	Error  string     `json:"error"`
}

type ScrapeStats struct {
	Telegram   int `json:"telegram"`
	Polymarket int `json:"polymarket"`
	Twitter    int `json:"twitter"`
	RSS        int `json:"rss"`
	Total      int `json:"total"`
}

// Add records n posts for the given source and bumps the total.
func (s *ScrapeStats) Add(source SourceType, n int) {
	switch source {
	case SourceTelegram:
		s.Telegram += n
	case SourcePolymarket:
		s.Polymarket += n
	case SourceTwitter:
		s.Twitter += n
	case SourceRSS:
		s.RSS += n
	}
	s.Total += n
}

// Count returns the number of posts recorded for a source.
func (s ScrapeStats) Count(source SourceType) int {
	switch source {
	case SourceTelegram:
		return s.Telegram
	case SourcePolymarket:
		return s.Polymarket
	case SourceTwitter:
		return s.Twitter
	case SourceRSS:
		return s.RSS
	}
	return 0
}

// ConfigFailure is one source config whose upstream could not be read. An
// upstream that answered with nothing is not a failure.
type ConfigFailure struct {
	Config string `json:"config"`
	Error  string `json:"error"`
}

// SourceOutcome summarises one source for operators: whether it ran, how many
// enabled configs it had, how many of those failed upstream and what it
// produced.
type SourceOutcome struct {
	Enabled       bool     `json:"enabled"`
	Configs       int      `json:"configs"`
	Posts         int      `json:"posts"`
	Failed        int      `json:"failed"`
	FailedConfigs []string `json:"failedConfigs,omitempty"`
	Error         string   `json:"error,omitempty"`
}

type ScrapeResult struct {
	RunID   string                       `json:"runId"`
	Success bool                         `json:"success"`
	Posts   []UnifiedPost                `json:"posts"`
	Errors  []SourceError                `json:"errors"`
	Stats   ScrapeStats                  `json:"stats"`
	Sources map[SourceType]SourceOutcome `json:"sources"`
}

// --- Progress ---

type SourceProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type ScrapeProgress struct {
	Status          string                        `json:"status"` // idle, scraping, completed, error
	Progress        int                           `json:"progress"`
	Total           int                           `json:"total"`
	CurrentSource   SourceType                    `json:"currentSource,omitempty"`
	Message         string                        `json:"message,omitempty"`
	SourceBreakdown map[SourceType]SourceProgress `json:"sourceBreakdown,omitempty"`
}

// --- Questions ---

type GeneratedQuestion struct {
	ID        string       `json:"id"`
	Question  string       `json:"question"`
	SourceIDs []string     `json:"sourceIds"`
	Sources   []SourceType `json:"sources,omitempty"`
	Selected  bool         `json:"selected"`
	CreatedAt string       `json:"createdAt"`
}

// QuestionSnapshot is the on-disk artifact written for every generation run.
type QuestionSnapshot struct {
	GeneratedAt string              `json:"generatedAt"`
	Count       int                 `json:"count"`
	Questions   []GeneratedQuestion `json:"questions"`
}

// --- Run history ---

// RunLog is one recorded scrape or generation cycle.
type RunLog struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"` // scrape, generate, generate-mock
	StartedAt    time.Time `json:"startedAt"`
	Duration     float64   `json:"durationSeconds"`
	Success      bool      `json:"success"`
	Posts        int       `json:"posts"`
	Questions    int       `json:"questions"`
	Errors       int       `json:"errors"`
	TokensUsed   int       `json:"tokensUsed"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}
