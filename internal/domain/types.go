// Package domain holds the core entity types shared across the analyst
// ensemble: targets and their observed snapshots, signals, the human review
// queue, versioned learnings, analyst portfolios, and strategy parameter
// bundles.
package domain

// Direction is the directional call attached to a signal or predictor.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// SignalDisposition tracks what became of an ingested signal. Exactly one
// disposition holds at any time; transitions happen only through the review
// queue or the auto-approval path.
type SignalDisposition string

const (
	DispositionEvaluated        SignalDisposition = "evaluated"
	DispositionReviewPending    SignalDisposition = "review_pending"
	DispositionPredictorCreated SignalDisposition = "predictor_created"
	DispositionRejected         SignalDisposition = "rejected"
)

// ReviewStatus is the lifecycle of a review queue item: pending until a human
// responds, then resolved. Resolution is terminal.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

// ReviewDecision is the human's call on a queued signal.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
	DecisionModify  ReviewDecision = "modify"
)

// LearningScope orders the breadth at which a learning applies, widest first.
type LearningScope string

const (
	ScopeRunner   LearningScope = "runner"
	ScopeDomain   LearningScope = "domain"
	ScopeUniverse LearningScope = "universe"
	ScopeTarget   LearningScope = "target"
)

// LearningType buckets a learning by how it is consumed: rule/pattern/avoid
// contribute prompt text, weight_adjustment and threshold feed numeric
// ensemble tuning instead.
type LearningType string

const (
	LearningRule             LearningType = "rule"
	LearningPattern          LearningType = "pattern"
	LearningAvoid            LearningType = "avoid"
	LearningWeightAdjustment LearningType = "weight_adjustment"
	LearningThreshold        LearningType = "threshold"
)

// LearningSource records who authored a learning.
type LearningSource string

const (
	SourceHuman      LearningSource = "human"
	SourceAIApproved LearningSource = "ai_approved"
)

// LearningStatus is the activation state of a learning row.
type LearningStatus string

const (
	LearningActive   LearningStatus = "active"
	LearningArchived LearningStatus = "archived"
)

// QueueStatus is the lifecycle of a learning suggestion awaiting human
// disposition. All terminal states are final.
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueApproved QueueStatus = "approved"
	QueueModified QueueStatus = "modified"
	QueueRejected QueueStatus = "rejected"
)

// PortfolioStatus is the incentive state derived from an analyst's simulated
// balance ratio. See motivation.DetermineStatus for the band boundaries.
type PortfolioStatus string

const (
	PortfolioActive    PortfolioStatus = "active"
	PortfolioWarning   PortfolioStatus = "warning"
	PortfolioProbation PortfolioStatus = "probation"
	PortfolioSuspended PortfolioStatus = "suspended"
)

// ForkType distinguishes synthetic analysts from human-shadow ledgers.
type ForkType string

const (
	ForkAI    ForkType = "ai"
	ForkHuman ForkType = "human"
)

// UniverseDomain is the market family a universe belongs to; it selects
// move-detection sensitivity profiles and strategy recommendations.
type UniverseDomain string

const (
	DomainCrypto     UniverseDomain = "crypto"
	DomainStocks     UniverseDomain = "stocks"
	DomainElections  UniverseDomain = "elections"
	DomainPolymarket UniverseDomain = "polymarket"
	DomainSports     UniverseDomain = "sports"
	DomainCustom     UniverseDomain = "custom"
)

// PredictorStatus is the lifecycle of a predictor.
type PredictorStatus string

const (
	PredictorActive  PredictorStatus = "active"
	PredictorExpired PredictorStatus = "expired"
	PredictorSettled PredictorStatus = "settled"
)

// PerspectiveTier names the instruction tier a perspective version targets.
// Boss feedback writes into the silver tier.
type PerspectiveTier string

const (
	TierGold   PerspectiveTier = "gold"
	TierSilver PerspectiveTier = "silver"
	TierBronze PerspectiveTier = "bronze"
)
