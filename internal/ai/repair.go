package ai

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Candidate is one question proposed by the model, before validation.
type Candidate struct {
	SourceIDs []string
	Question  string
}

// CleanJSONResponse strips markdown code fences from JSON responses.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// RepairJSON recovers the candidate list from model output. It accepts a
// {"questions":[...]} object or a bare array, then falls back to the longest
// prefix starting at the first '{' that parses as an object with a
// "questions" array. It returns nil when nothing can be recovered; a valid
// but empty list returns an empty, non-nil slice.
func RepairJSON(text string) []Candidate {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil
	}

	for _, s := range []string{raw, CleanJSONResponse(raw)} {
		if list, ok := questionList(s, true); ok {
			return candidates(list)
		}
	}

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil
	}
	tail := raw[start:]
	// A JSON object always ends in '}', so only those cut points can parse.
	for end := strings.LastIndexByte(tail, '}'); end > 0; end = strings.LastIndexByte(tail[:end], '}') {
		if list, ok := questionList(tail[:end+1], false); ok {
			return candidates(list)
		}
	}
	return nil
}

func questionList(s string, allowArray bool) (gjson.Result, bool) {
	if !gjson.Valid(s) {
		return gjson.Result{}, false
	}
	doc := gjson.Parse(s)
	if doc.IsObject() {
		if q := doc.Get("questions"); q.IsArray() {
			return q, true
		}
		return gjson.Result{}, false
	}
	if allowArray && doc.IsArray() {
		return doc, true
	}
	return gjson.Result{}, false
}

// candidates maps entries leniently: a non-array sourceIds becomes empty and
// non-object entries are skipped.
func candidates(list gjson.Result) []Candidate {
	out := []Candidate{}
	list.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		c := Candidate{Question: item.Get("question").String()}
		if ids := item.Get("sourceIds"); ids.IsArray() {
			for _, id := range ids.Array() {
				if s := strings.TrimSpace(id.String()); s != "" {
					c.SourceIDs = append(c.SourceIDs, s)
				}
			}
		}
		out = append(out, c)
		return true
	})
	return out
}
