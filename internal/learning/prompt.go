package learning

import (
	"fmt"

	"github.com/predictalab/quorum/internal/domain"
)

// PromptContext is the bucketed guidance injected into an analyst prompt.
type PromptContext struct {
	Rules    []string `json:"rules"`
	Patterns []string `json:"patterns"`
	Avoids   []string `json:"avoids"`
}

// ApplyLearningsToPrompt folds learnings into the prompt context. It is a
// pure append-only fold: pre-existing entries keep their position, new
// entries land after them in input order. weight_adjustment and threshold
// learnings contribute no text but are still reported as applied, since
// their effect is realized in numeric tuning elsewhere.
func ApplyLearningsToPrompt(learnings []domain.Learning, ctx PromptContext) (PromptContext, []string) {
	applied := make([]string, 0, len(learnings))
	for _, l := range learnings {
		line := fmt.Sprintf("%s: %s", l.Title, l.Description)
		switch l.LearningType {
		case domain.LearningRule:
			ctx.Rules = append(ctx.Rules, line)
		case domain.LearningPattern:
			ctx.Patterns = append(ctx.Patterns, line)
		case domain.LearningAvoid:
			ctx.Avoids = append(ctx.Avoids, line)
		case domain.LearningWeightAdjustment, domain.LearningThreshold:
			// no prompt text; applied id still recorded
		default:
			continue
		}
		applied = append(applied, l.ID)
	}
	return ctx, applied
}
