package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RelevanceResult is the model's verdict for one funding call.
type RelevanceResult struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

const maxPromptSummary = 2000

// ScoreRelevance asks the model how well a call matches the given interests.
// The score is clamped to [0, 1].
func ScoreRelevance(ctx context.Context, gen Generator, interests, title, summary string) (*RelevanceResult, error) {
	if len(summary) > maxPromptSummary {
		summary = summary[:maxPromptSummary]
	}

	prompt := fmt.Sprintf(`Du bewertest Förderaufrufe für eine Organisation.

INTERESSEN: %s

TITEL: %s
BESCHREIBUNG: %s

Bewerte, wie gut dieser Förderaufruf zu den Interessen passt.
Antworte NUR mit JSON in diesem Format:
{
  "score": 0.0,
  "reason": "kurze Begründung auf Deutsch"
}

Regeln:
1. score liegt zwischen 0.0 (passt nicht) und 1.0 (passt sehr gut).
2. reason ist ein einzelner Satz.`, interests, title, summary)

	resp, err := gen.GenerateCompletion(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	var result RelevanceResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse relevance json: %w. Response: %s", err, resp)
	}

	switch {
	case result.Score < 0:
		result.Score = 0
	case result.Score > 1:
		result.Score = 1
	}
	result.Reason = strings.TrimSpace(result.Reason)

	return &result, nil
}
