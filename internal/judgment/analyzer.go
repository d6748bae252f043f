package judgment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/learning"
	"github.com/predictalab/quorum/internal/persistence"
	"github.com/predictalab/quorum/internal/snapshot"
)

const analyzerSystemPrompt = `You are a post-mortem market analyst. Given a significant price move that no active predictor anticipated, identify the likely drivers and propose behavioral learnings that would have caught it. Respond with JSON: {"drivers": ["..."], "learnings": [{"title": "...", "description": "...", "type": "rule|pattern|avoid"}]}`

// MissedMoveAnalysis is the recorded outcome of analyzing one unaddressed
// move. Malformed generator output degrades to empty drivers/suggestions
// rather than failing the record.
type MissedMoveAnalysis struct {
	Move        snapshot.Move       `json:"move"`
	Drivers     []string            `json:"drivers"`
	Suggestions []SuggestedLearning `json:"suggestions"`
}

// SuggestedLearning is one learning proposal extracted from the judgment.
type SuggestedLearning struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type analysisPayload struct {
	Drivers   []string            `json:"drivers"`
	Learnings []SuggestedLearning `json:"learnings"`
}

// Analyzer turns detected-but-unaddressed moves into learning suggestions.
type Analyzer struct {
	generator  Generator
	predictors persistence.PredictorRepo
	queue      *learning.Queue
}

// NewAnalyzer wires the missed-opportunity analyzer.
func NewAnalyzer(generator Generator, predictors persistence.PredictorRepo, queue *learning.Queue) *Analyzer {
	return &Analyzer{generator: generator, predictors: predictors, queue: queue}
}

// AnalyzeMissedMoves filters the detected moves down to those no active
// predictor covers, asks the generator for a post-mortem on each, and
// enqueues the suggested learnings. Per-move failures are isolated.
func (a *Analyzer) AnalyzeMissedMoves(ctx context.Context, moves []snapshot.Move) ([]MissedMoveAnalysis, error) {
	analyses := []MissedMoveAnalysis{}
	for _, move := range moves {
		covered, err := a.isCovered(ctx, move)
		if err != nil {
			log.Warn().Str("target_id", move.TargetID).Err(err).
				Msg("predictor coverage check failed, skipping move")
			continue
		}
		if covered {
			continue
		}

		analysis := a.analyzeOne(ctx, move)
		analyses = append(analyses, analysis)

		for _, sug := range analysis.Suggestions {
			_, err := a.queue.CreateSuggestion(ctx, learning.SuggestionInput{
				TargetID:      move.TargetID,
				SourceContext: fmt.Sprintf("missed move %.1f%% (%s to %s)", move.ChangePercent, move.WindowStart.Format("2006-01-02 15:04"), move.WindowEnd.Format("2006-01-02 15:04")),
				Confidence:    0.6,
				Scope:         domain.ScopeTarget,
				Type:          learningType(sug.Type),
				Title:         sug.Title,
				Description:   sug.Description,
			})
			if err != nil {
				log.Warn().Str("target_id", move.TargetID).Err(err).
					Msg("enqueue missed-move learning suggestion failed")
			}
		}
	}
	return analyses, nil
}

// isCovered reports whether an active predictor already points the same way
// as the move.
func (a *Analyzer) isCovered(ctx context.Context, move snapshot.Move) (bool, error) {
	preds, err := a.predictors.ListActiveByTarget(ctx, move.TargetID)
	if err != nil {
		return false, err
	}
	for _, p := range preds {
		if p.Direction == move.Direction {
			return true, nil
		}
	}
	return false, nil
}

// analyzeOne runs the generator for one move. Generator failure or malformed
// output degrades to an empty analysis record rather than an error, so the
// sweep keeps going.
func (a *Analyzer) analyzeOne(ctx context.Context, move snapshot.Move) MissedMoveAnalysis {
	analysis := MissedMoveAnalysis{Move: move, Drivers: []string{}, Suggestions: []SuggestedLearning{}}

	userPrompt := fmt.Sprintf("Target %s moved %.1f%% (%s) from %.4f to %.4f between %s and %s with no covering predictor.",
		move.TargetID, move.ChangePercent, move.Direction,
		move.StartValue, move.EndValue,
		move.WindowStart.Format("2006-01-02 15:04"), move.WindowEnd.Format("2006-01-02 15:04"))

	raw, err := a.generator.GenerateJudgment(ctx, analyzerSystemPrompt, userPrompt)
	if err != nil {
		log.Warn().Str("target_id", move.TargetID).Err(err).
			Msg("judgment generation failed, recording empty analysis")
		return analysis
	}

	payload, err := parseAnalysis(raw)
	if err != nil {
		log.Warn().Str("target_id", move.TargetID).Err(err).
			Msg("judgment response unparseable, recording empty analysis")
		return analysis
	}
	if payload.Drivers != nil {
		analysis.Drivers = payload.Drivers
	}
	if payload.Learnings != nil {
		analysis.Suggestions = payload.Learnings
	}
	return analysis
}

// parseAnalysis tolerantly extracts the JSON payload from a raw generator
// response: it strips markdown code fences and falls back to the outermost
// brace pair when the response embeds JSON in prose.
func parseAnalysis(raw string) (*analysisPayload, error) {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.Index(cleaned, "\n"); idx >= 0 {
			cleaned = cleaned[idx+1:]
		}
		if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
			cleaned = cleaned[:idx]
		}
		cleaned = strings.TrimSpace(cleaned)
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
		return &payload, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w", err)
	}
	return &payload, nil
}

func learningType(s string) domain.LearningType {
	switch s {
	case "pattern":
		return domain.LearningPattern
	case "avoid":
		return domain.LearningAvoid
	default:
		return domain.LearningRule
	}
}
