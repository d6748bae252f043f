package domain

import "time"

// Universe groups targets under one market domain and carries the optional
// per-universe threshold overrides consulted by the strategy resolver.
type Universe struct {
	ID         string              `json:"id" db:"id"`
	Name       string              `json:"name" db:"name"`
	Domain     UniverseDomain      `json:"domain" db:"domain"`
	StrategyID *string             `json:"strategy_id,omitempty" db:"strategy_id"`
	Thresholds *ThresholdOverrides `json:"thresholds,omitempty" db:"thresholds"`
	Active     bool                `json:"active" db:"active"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
}

// ThresholdOverrides is a partial override map: nil fields fall through to
// the universe's strategy (or the package defaults).
type ThresholdOverrides struct {
	MinPredictors         *int     `json:"min_predictors,omitempty"`
	MinCombinedStrength   *int     `json:"min_combined_strength,omitempty"`
	MinDirectionConsensus *float64 `json:"min_direction_consensus,omitempty"`
	PredictorTTLHours     *int     `json:"predictor_ttl_hours,omitempty"`
	UrgentThreshold       *float64 `json:"urgent_threshold,omitempty"`
	NotableThreshold      *float64 `json:"notable_threshold,omitempty"`
}

// Target is an observable entity (a symbol, a contract, a race) owned by a
// universe. Identity is immutable; activity and context are not.
type Target struct {
	ID         string    `json:"id" db:"id"`
	UniverseID string    `json:"universe_id" db:"universe_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Context    string    `json:"context" db:"context"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TargetSnapshot is one immutable observation of a target's value. Snapshots
// for a target are totally ordered by CapturedAt; readers must tolerate gaps.
type TargetSnapshot struct {
	ID         string            `json:"id" db:"id"`
	TargetID   string            `json:"target_id" db:"target_id"`
	Value      float64           `json:"value" db:"value"`
	ValueType  string            `json:"value_type" db:"value_type"`
	Source     string            `json:"source" db:"source"`
	Metadata   map[string]string `json:"metadata,omitempty" db:"metadata"`
	CapturedAt time.Time         `json:"captured_at" db:"captured_at"`
}

// EvaluationResult is an analyst's judgment of a signal.
type EvaluationResult struct {
	AnalystSlug string    `json:"analyst_slug" db:"analyst_slug"`
	Direction   Direction `json:"direction" db:"direction"`
	Confidence  float64   `json:"confidence" db:"confidence"`
	Reasoning   string    `json:"reasoning" db:"reasoning"`
}

// Signal is a piece of evidence bearing on a target, carrying the analyst
// evaluation that decides its route through admission control.
type Signal struct {
	ID            string            `json:"id" db:"id"`
	TargetID      string            `json:"target_id" db:"target_id"`
	Direction     Direction         `json:"direction" db:"direction"`
	Summary       string            `json:"summary" db:"summary"`
	Evaluation    *EvaluationResult `json:"evaluation,omitempty" db:"-"`
	Disposition   SignalDisposition `json:"disposition" db:"disposition"`
	ReviewQueueID *string           `json:"review_queue_id,omitempty" db:"review_queue_id"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// ReviewQueueItem is a pending human adjudication of a borderline signal.
// Created exactly once per admitted signal; pending -> resolved exactly once.
type ReviewQueueItem struct {
	ID                string          `json:"id" db:"id"`
	SignalID          string          `json:"signal_id" db:"signal_id"`
	TargetID          string          `json:"target_id" db:"target_id"`
	Confidence        float64         `json:"confidence" db:"confidence"`
	RecommendedAction ReviewDecision  `json:"recommended_action" db:"recommended_action"`
	AssessmentSummary string          `json:"assessment_summary" db:"assessment_summary"`
	AnalystReasoning  string          `json:"analyst_reasoning,omitempty" db:"analyst_reasoning"`
	Status            ReviewStatus    `json:"status" db:"status"`
	Decision          *ReviewDecision `json:"decision,omitempty" db:"decision"`
	DecidedBy         *string         `json:"decided_by,omitempty" db:"decided_by"`
	DecidedAt         *time.Time      `json:"decided_at,omitempty" db:"decided_at"`
	Notes             string          `json:"notes,omitempty" db:"notes"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// Predictor is a time-boxed directional prediction derived from an approved
// signal. Strength is 1-10, derived from confidence unless overridden.
type Predictor struct {
	ID          string          `json:"id" db:"id"`
	TargetID    string          `json:"target_id" db:"target_id"`
	SignalID    string          `json:"signal_id" db:"signal_id"`
	Direction   Direction       `json:"direction" db:"direction"`
	Strength    int             `json:"strength" db:"strength"`
	Confidence  float64         `json:"confidence" db:"confidence"`
	Reasoning   string          `json:"reasoning" db:"reasoning"`
	AnalystSlug string          `json:"analyst_slug" db:"analyst_slug"`
	Status      PredictorStatus `json:"status" db:"status"`
	ExpiresAt   time.Time       `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Learning is a versioned, scoped behavioral directive injected into future
// analyst prompts. Superseded rows are retained for audit and excluded from
// active lookups.
type Learning struct {
	ID           string            `json:"id" db:"id"`
	ScopeLevel   LearningScope     `json:"scope_level" db:"scope_level"`
	ScopeID      string            `json:"scope_id" db:"scope_id"`
	AnalystID    *string           `json:"analyst_id,omitempty" db:"analyst_id"`
	LearningType LearningType      `json:"learning_type" db:"learning_type"`
	Title        string            `json:"title" db:"title"`
	Description  string            `json:"description" db:"description"`
	Config       map[string]string `json:"config,omitempty" db:"config"`
	SourceType   LearningSource    `json:"source_type" db:"source_type"`
	Status       LearningStatus    `json:"status" db:"status"`
	Version      int               `json:"version" db:"version"`
	SupersededBy *string           `json:"superseded_by,omitempty" db:"superseded_by"`
	TimesApplied int               `json:"times_applied" db:"times_applied"`
	TimesHelpful int               `json:"times_helpful" db:"times_helpful"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
}

// LearningQueueItem is a learning proposal awaiting human disposition. The
// suggested_* payload is what the proposer submitted; final_* records what
// was actually approved, field by field.
type LearningQueueItem struct {
	ID               string         `json:"id" db:"id"`
	TargetID         string         `json:"target_id" db:"target_id"`
	SourceContext    string         `json:"source_context" db:"source_context"`
	Confidence       float64        `json:"confidence" db:"confidence"`
	SuggestedScope   LearningScope  `json:"suggested_scope" db:"suggested_scope"`
	SuggestedType    LearningType   `json:"suggested_type" db:"suggested_type"`
	SuggestedTitle   string         `json:"suggested_title" db:"suggested_title"`
	SuggestedDesc    string         `json:"suggested_description" db:"suggested_description"`
	FinalScope       *LearningScope `json:"final_scope,omitempty" db:"final_scope"`
	FinalType        *LearningType  `json:"final_type,omitempty" db:"final_type"`
	FinalTitle       *string        `json:"final_title,omitempty" db:"final_title"`
	FinalDesc        *string        `json:"final_description,omitempty" db:"final_description"`
	Status           QueueStatus    `json:"status" db:"status"`
	LearningID       *string        `json:"learning_id,omitempty" db:"learning_id"`
	ReviewedAt       *time.Time     `json:"reviewed_at,omitempty" db:"reviewed_at"`
	ReviewedByUserID *string        `json:"reviewed_by_user_id,omitempty" db:"reviewed_by_user_id"`
	ReviewerNotes    string         `json:"reviewer_notes,omitempty" db:"reviewer_notes"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
}

// AnalystPortfolio is the per-analyst simulated ledger used as an incentive
// signal. Balances are mutated by settlement (external); the status field is
// owned by the motivation sweep.
type AnalystPortfolio struct {
	ID              string          `json:"id" db:"id"`
	AnalystID       string          `json:"analyst_id" db:"analyst_id"`
	ForkType        ForkType        `json:"fork_type" db:"fork_type"`
	InitialBalance  float64         `json:"initial_balance" db:"initial_balance"`
	CurrentBalance  float64         `json:"current_balance" db:"current_balance"`
	RealizedPnl     float64         `json:"realized_pnl" db:"realized_pnl"`
	UnrealizedPnl   float64         `json:"unrealized_pnl" db:"unrealized_pnl"`
	WinCount        int             `json:"win_count" db:"win_count"`
	LossCount       int             `json:"loss_count" db:"loss_count"`
	Status          PortfolioStatus `json:"status" db:"status"`
	StatusChangedAt time.Time       `json:"status_changed_at" db:"status_changed_at"`
}

// PerspectiveVersion is one immutable revision of an analyst's standing
// instructions. Boss feedback appends a new version on degraded-state entry.
type PerspectiveVersion struct {
	ID           string          `json:"id" db:"id"`
	AnalystID    string          `json:"analyst_id" db:"analyst_id"`
	Tier         PerspectiveTier `json:"tier" db:"tier"`
	Instructions string          `json:"instructions" db:"instructions"`
	ChangeReason string          `json:"change_reason" db:"change_reason"`
	Version      int             `json:"version" db:"version"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// StrategyParameters is the numeric decision bundle resolved per universe.
type StrategyParameters struct {
	MinPredictors         int     `json:"min_predictors" yaml:"min_predictors"`
	MinCombinedStrength   int     `json:"min_combined_strength" yaml:"min_combined_strength"`
	MinDirectionConsensus float64 `json:"min_direction_consensus" yaml:"min_direction_consensus"`
	PredictorTTLHours     int     `json:"predictor_ttl_hours" yaml:"predictor_ttl_hours"`
	UrgentThreshold       float64 `json:"urgent_threshold" yaml:"urgent_threshold"`
	NotableThreshold      float64 `json:"notable_threshold" yaml:"notable_threshold"`
}

// Strategy is a named, reusable parameter bundle. System strategies are
// immutable from the API's perspective.
type Strategy struct {
	ID          string             `json:"id" db:"id"`
	Slug        string             `json:"slug" db:"slug"`
	Name        string             `json:"name" db:"name"`
	Description string             `json:"description" db:"description"`
	RiskProfile string             `json:"risk_profile" db:"risk_profile"`
	Parameters  StrategyParameters `json:"parameters" db:"parameters"`
	System      bool               `json:"system" db:"system"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}
