// Package models holds the persistent entity shapes from spec.md §3.
// Every enum is a distinct string type so CHECK-constraint violations
// surface as Go compile errors at the call site, not just at the
// database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceType enumerates feed collector kinds (spec.md §3 Source).
type SourceType string

const (
	SourceTypeRSS      SourceType = "rss"
	SourceTypeGDELT    SourceType = "gdelt"
	SourceTypeTelegram SourceType = "telegram"
	SourceTypeAPI      SourceType = "api"
)

// SourceTier drives the credibility multiplier in the trend engine.
type SourceTier string

const (
	SourceTierPrimary    SourceTier = "primary"
	SourceTierWire       SourceTier = "wire"
	SourceTierMajor      SourceTier = "major"
	SourceTierRegional   SourceTier = "regional"
	SourceTierAggregator SourceTier = "aggregator"
)

// ReportingType also feeds the credibility multiplier.
type ReportingType string

const (
	ReportingFirsthand  ReportingType = "firsthand"
	ReportingSecondary  ReportingType = "secondary"
	ReportingAggregator ReportingType = "aggregator"
)

// Source is stable feed configuration (spec.md §3 Source).
type Source struct {
	ID               uuid.UUID  `yaml:"-"`
	Name             string     `yaml:"name"`
	Type             SourceType `yaml:"type"`
	CredibilityScore float64    `yaml:"credibility_score"`
	Tier             SourceTier `yaml:"source_tier"`
	ReportingType    ReportingType `yaml:"reporting_type"`
	Active           bool       `yaml:"-"`
	LastFetchAt      *time.Time `yaml:"-"`
	HighWaterMark    *time.Time `yaml:"-"`
	CreatedAt        time.Time  `yaml:"-"`
	UpdatedAt        time.Time  `yaml:"-"`
}

// CredibilityMultiplier combines tier and reporting-type weighting with
// the source's own credibility score, per spec.md §4.5
// "Credibility for a source = credibility_score × tier_multiplier ×
// reporting_type_multiplier".
func (s Source) CredibilityMultiplier() float64 {
	return s.CredibilityScore * tierMultiplier(s.Tier) * reportingMultiplier(s.ReportingType)
}

func tierMultiplier(t SourceTier) float64 {
	switch t {
	case SourceTierPrimary:
		return 1.15
	case SourceTierWire:
		return 1.10
	case SourceTierMajor:
		return 1.00
	case SourceTierRegional:
		return 0.90
	case SourceTierAggregator:
		return 0.75
	default:
		return 1.00
	}
}

func reportingMultiplier(r ReportingType) float64 {
	switch r {
	case ReportingFirsthand:
		return 1.10
	case ReportingSecondary:
		return 1.00
	case ReportingAggregator:
		return 0.85
	default:
		return 1.00
	}
}

// ItemStatus is the RawItem processing status FSM (spec.md §3 RawItem).
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusClassified ItemStatus = "classified"
	ItemStatusNoise      ItemStatus = "noise"
	ItemStatusError      ItemStatus = "error"
)

// EmbeddingLineage records provenance for a stored vector, required for
// the dedup/cluster model-lineage fail-safe in spec.md §4.1/§4.3.
type EmbeddingLineage struct {
	Model             string
	GeneratedAt       time.Time
	InputTokens       int
	RetainedTokens    int
	Truncated         bool
}

// RawItem is one ingested article/post (spec.md §3 RawItem).
type RawItem struct {
	ID                  uuid.UUID
	SourceID            uuid.UUID
	ExternalID          string
	URL                 string
	NormalizedURL       string
	Title               string
	Author              string
	PublishedAt         time.Time
	FetchedAt           time.Time
	Text                string
	ContentSHA256       string
	Embedding           []float32
	EmbeddingLineage    *EmbeddingLineage
	Language            string
	Status              ItemStatus
	ProcessingStartedAt *time.Time
	EventID             *uuid.UUID
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// LifecycleStatus is the Event maturity FSM (spec.md §4.3).
type LifecycleStatus string

const (
	LifecycleEmerging  LifecycleStatus = "emerging"
	LifecycleConfirmed LifecycleStatus = "confirmed"
	LifecycleFading    LifecycleStatus = "fading"
	LifecycleArchived  LifecycleStatus = "archived"
)

// ClaimLink records a support/contradiction edge between two claims
// within (or across) events, forming the "normalized claim graph" of
// spec.md §3 Event.
type ClaimLink struct {
	FromClaimID string `json:"from_claim_id"`
	ToClaimID   string `json:"to_claim_id"`
	Relation    string `json:"relation"` // "supports" | "contradicts"
}

// Claim is one extracted assertion within an event.
type Claim struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ClaimGraph is the normalized claim/support/contradiction structure
// persisted as JSON on the Event row.
type ClaimGraph struct {
	Claims []Claim     `json:"claims"`
	Links  []ClaimLink `json:"links"`
}

// ContradictionLinkCount counts links marked "contradicts", used to
// reduce the contradiction penalty per spec.md §4.5.
func (g ClaimGraph) ContradictionLinkCount() int {
	n := 0
	for _, l := range g.Links {
		if l.Relation == "contradicts" {
			n++
		}
	}
	return n
}

// Event is a cluster of RawItems about one development (spec.md §3).
type Event struct {
	ID                 uuid.UUID
	CanonicalSummary   string
	Embedding          []float32
	EmbeddingLineage   *EmbeddingLineage
	Who                []string
	What               string
	Where              []string
	When               *time.Time
	Claims             ClaimGraph
	Categories         []string
	SourceCount        int
	UniqueSourceCount  int
	LifecycleStatus    LifecycleStatus
	FirstSeenAt        time.Time
	LastMentionAt      time.Time
	ConfirmedAt        *time.Time
	PrimaryItemID      *uuid.UUID
	Contradicted       bool
	ContradictionNotes string
	Suppressed         bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SignalDirection is the escalatory/de-escalatory polarity of an
// indicator (spec.md §3 Trend, §4.5 direction_multiplier).
type SignalDirection string

const (
	DirectionEscalatory   SignalDirection = "escalatory"
	DirectionDeEscalatory SignalDirection = "de_escalatory"
)

// Multiplier returns the ±1 direction_multiplier from spec.md §4.5.
func (d SignalDirection) Multiplier() float64 {
	if d == DirectionDeEscalatory {
		return -1
	}
	return 1
}

// Indicator is one named signal type a Trend scores on.
type Indicator struct {
	SignalType   string          `json:"signal_type" yaml:"signal_type"`
	Weight       float64         `json:"weight" yaml:"weight"`
	Direction    SignalDirection `json:"direction" yaml:"direction"`
	Keywords     []string        `json:"keywords" yaml:"keywords"`
	HalfLifeDays *float64        `json:"half_life_days,omitempty" yaml:"half_life_days,omitempty"` // overrides Trend.DecayHalfLifeDays for this signal
}

// TrendDefinition is the YAML-sourced hypothesis definition (spec.md
// §3 Trend, §6 Config inputs).
type TrendDefinition struct {
	ID                   string               `json:"id" yaml:"id"`
	Name                 string               `json:"name" yaml:"name"`
	Description          string               `json:"description" yaml:"description"`
	BaselineProbability  float64              `json:"baseline_probability" yaml:"baseline_probability"`
	DecayHalfLifeDays    float64              `json:"decay_half_life_days" yaml:"decay_half_life_days"`
	Indicators           map[string]Indicator `json:"indicators" yaml:"indicators"`
	Disqualifiers        []string             `json:"disqualifiers" yaml:"disqualifiers"`
	FalsificationCriteria []string            `json:"falsification_criteria" yaml:"falsification_criteria"`
}

// Trend is a tracked hypothesis (spec.md §3 Trend).
type Trend struct {
	ID                uuid.UUID
	Name              string
	Description       string
	Definition        TrendDefinition
	BaselineLogOdds   float64
	CurrentLogOdds    float64
	DecayHalfLifeDays float64
	Active            bool
	DefinitionHash    string
	UpdatedAt         time.Time
	CreatedAt         time.Time
}

// Indicator looks up an indicator by signal type, returning ok=false
// for an unknown signal (feeds TaxonomyGap routing, spec.md §4.4).
func (t Trend) Indicator(signalType string) (Indicator, bool) {
	ind, ok := t.Definition.Indicators[signalType]
	return ind, ok
}

// HalfLifeFor resolves the per-indicator half-life override, falling
// back to the trend's global decay half-life.
func (t Trend) HalfLifeFor(ind Indicator) float64 {
	if ind.HalfLifeDays != nil && *ind.HalfLifeDays > 0 {
		return *ind.HalfLifeDays
	}
	return t.DecayHalfLifeDays
}

// TrendDefinitionVersion is an immutable append-only row recorded only
// when the canonicalized definition hash changes (spec.md §3 Trend).
type TrendDefinitionVersion struct {
	ID         uuid.UUID
	TrendID    uuid.UUID
	Hash       string
	Definition TrendDefinition
	Actor      string
	Context    string
	CreatedAt  time.Time
}

// TrendEvidence is one append-only ledger row (spec.md §3 TrendEvidence).
type TrendEvidence struct {
	ID                     uuid.UUID
	TrendID                uuid.UUID
	EventID                uuid.UUID
	SignalType             string
	BaseWeight             float64
	Credibility            float64
	CorroborationFactor    float64
	Novelty                float64
	EvidenceAgeDays        float64
	TemporalDecayFactor    float64
	Severity               float64
	Confidence             float64
	DirectionMultiplier    float64
	DeltaLogOdds           float64
	Reasoning              string
	TrendDefinitionHash    string
	IsInvalidated          bool
	InvalidatedAt          *time.Time
	InvalidationFeedbackID *uuid.UUID
	CreatedAt              time.Time
}

// TrendSnapshot is one hypertable row (spec.md §3 TrendSnapshot).
type TrendSnapshot struct {
	TrendID      uuid.UUID
	Timestamp    time.Time
	LogOdds      float64
	EventCount24h int
}

// OutcomeKind enumerates TrendOutcome.Outcome (spec.md §3 TrendOutcome).
type OutcomeKind string

const (
	OutcomeOccurred     OutcomeKind = "occurred"
	OutcomeDidNotOccur  OutcomeKind = "did_not_occur"
	OutcomePartial      OutcomeKind = "partial"
	OutcomeSuperseded   OutcomeKind = "superseded"
	OutcomeOngoing      OutcomeKind = "ongoing"
)

// Resolved reports whether the outcome is final for calibration
// purposes — "ongoing" and "superseded" are excluded from Brier scoring.
func (o OutcomeKind) Resolved() bool {
	return o == OutcomeOccurred || o == OutcomeDidNotOccur || o == OutcomePartial
}

// Actual maps a resolved outcome to the 0/1 (or 0.5 for partial) value
// used in Brier scoring.
func (o OutcomeKind) Actual() float64 {
	switch o {
	case OutcomeOccurred:
		return 1.0
	case OutcomePartial:
		return 0.5
	default:
		return 0.0
	}
}

// TrendOutcome is a prediction-vs-reality record (spec.md §3).
type TrendOutcome struct {
	ID               uuid.UUID
	TrendID          uuid.UUID
	PredictionDate   time.Time
	PredictedProb    float64
	PredictedRisk    string
	PredictedBand    string
	Outcome          OutcomeKind
	OutcomeDate      *time.Time
	BrierScore       *float64
	CreatedAt        time.Time
}

// FeedbackAction enumerates HumanFeedback.Action (spec.md §3).
type FeedbackAction string

const (
	FeedbackPin            FeedbackAction = "pin"
	FeedbackMarkNoise      FeedbackAction = "mark_noise"
	FeedbackInvalidate     FeedbackAction = "invalidate"
	FeedbackOverrideDelta  FeedbackAction = "override_delta"
	FeedbackCorrectCategory FeedbackAction = "correct_category"
)

// HumanFeedback is a manual review action (spec.md §3).
type HumanFeedback struct {
	ID              uuid.UUID
	Action          FeedbackAction
	EventID         *uuid.UUID
	TrendID         *uuid.UUID
	OriginalValue   string
	CorrectedValue  string
	Actor           string
	CreatedAt       time.Time
}

// ApiUsage is a daily per-tier counter row (spec.md §3).
type ApiUsage struct {
	Date            time.Time
	Tier            string
	Calls           int64
	InputTokens     int64
	OutputTokens    int64
	EstimatedCostUSD float64
}

// GapStatus enumerates TaxonomyGap.Status (spec.md §3/§4.4).
type GapStatus string

const (
	GapOpen     GapStatus = "open"
	GapResolved GapStatus = "resolved"
	GapRejected GapStatus = "rejected"
)

// GapReason enumerates why a Tier-2 impact could not be scored.
type GapReason string

const (
	GapReasonUnknownTrend  GapReason = "unknown_trend_id"
	GapReasonUnknownSignal GapReason = "unknown_signal_type"
)

// TaxonomyGap captures a Tier-2 impact naming an unknown trend or
// signal type (spec.md §3/§4.4).
type TaxonomyGap struct {
	ID         uuid.UUID
	EventID    uuid.UUID
	TrendID    string // raw string: may not resolve to a real Trend
	SignalType string
	Reason     GapReason
	Status     GapStatus
	Payload    string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}
