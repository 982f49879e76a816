package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PromptPost is one post as presented to the model.
type PromptPost struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	SourceName string `json:"sourceName"`
	DateISO    string `json:"dateIso"`
	Permalink  string `json:"permalink"`
	Text       string `json:"text"`
	Idx        int    `json:"idx"`
}

// QuestionInstructions is the system prompt for question synthesis.
const QuestionInstructions = `You are generating short-horizon, objectively verifiable prediction questions derived from multi-source news content.

This is NOT investment advice. Do not recommend trading actions. Only write objectively checkable questions.

You will be given a list of recent posts from various sources (Telegram channels, Twitter accounts, Polymarket markets, and news feeds). Produce a list of candidate prediction questions.

Hard constraints:
- Each output must be ONE sentence and must end with a '?'.
- Each output must be resolvable within the next 24 hours.
- Each question MUST explicitly mention a 24-hour timeframe (e.g., "within the next 24 hours" or "by tomorrow (UTC)").
- Each output must be objectively checkable (yes/no, price crosses a specific level, exchange listing note, regulatory decision, product release, etc.).
- No violent/graphic/death/harm predictions. If a post is political/war/violence-related, ignore that aspect and focus on market/product/regulatory outcomes if possible.
- Avoid vague language: no "likely", "could", "might".
- Do NOT invent entities, tickers, numbers, or events not implied by the source text.

Quality bar:
- Prefer questions tied to well-known venues/metrics when possible (e.g., "BTC/USDT on Binance" or "official blog announcement"), but only if clearly implied by the post.
- Keep it concise and professional.

Output format (STRICT JSON):
{
  "questions": [
    {
      "sourceIds": ["<id>", "<id>"],
      "question": "... ?"
    }
  ]
}

Guidance:
- You do NOT need one question per post. Instead, propose the best set of distinct questions you can support from these posts.
- Every sourceIds entry MUST be an id copied exactly from the posts you were given.
- Analyze ALL posts in the batch and generate as many valid questions as possible (aim for 10-20 questions per batch if the content allows).
- Look for:
  * Crypto: price predictions, exchange listings, product launches, token releases, network upgrades
  * Politics: official statements, central bank decisions, election predictions, policy announcements
  * Financial: economic indicators, stock movements, corporate announcements
  * Social: trending topics, viral events, public sentiment shifts
  * Polymarket: existing market questions can inspire new questions
- Combine related posts from multiple sources to create comprehensive questions.
- Pay attention to the source type (Telegram/Twitter/Polymarket/RSS) and adjust question style accordingly.
- You MUST return at least 10 questions if the batch contains significant news events.
- If you truly cannot form any safe 24-hour-verifiable questions, return {"questions":[]}.
`

// BuildQuestionsPrompt renders the user message for one batch.
func BuildQuestionsPrompt(posts []PromptPost) (string, error) {
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal prompt posts: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Posts (JSON):\n")
	sb.Write(data)
	return sb.String(), nil
}
