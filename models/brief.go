package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RiskCategory classifies a claim's risk. Unknown values coming back from the
// model are normalized to RiskUnclassified rather than rejected.
type RiskCategory string

const (
	RiskNone         RiskCategory = "None"
	RiskOperational  RiskCategory = "Operational"
	RiskFinancial    RiskCategory = "Financial"
	RiskLegal        RiskCategory = "Legal"
	RiskUnclassified RiskCategory = "Unclassified"
)

// NormalizeRiskCategory maps a free-form model value onto the enumerated
// categories. The model occasionally returns compounds like
// "Financial/Legal"; the first recognized category wins.
func NormalizeRiskCategory(raw string) RiskCategory {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case v == "" || v == "none":
		return RiskNone
	case strings.Contains(v, "operational"):
		return RiskOperational
	case strings.Contains(v, "financial"):
		return RiskFinancial
	case strings.Contains(v, "legal"):
		return RiskLegal
	default:
		return RiskUnclassified
	}
}

// IsRisk reports whether the category counts toward the dashboard risk total.
func (c RiskCategory) IsRisk() bool {
	return c == RiskOperational || c == RiskFinancial || c == RiskLegal
}

// ImpactScore grades an omitted theme. Unknown values default to ImpactLow.
type ImpactScore string

const (
	ImpactLow    ImpactScore = "Low"
	ImpactMedium ImpactScore = "Medium"
	ImpactHigh   ImpactScore = "High"
)

// NormalizeImpactScore maps a free-form model value onto the enumerated
// impact scores, defaulting to Low.
func NormalizeImpactScore(raw string) ImpactScore {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return ImpactHigh
	case "medium", "med":
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Brief is the validated, structured summary produced by the model.
// Immutable after validation; regenerating a document replaces it.
type Brief struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	DocumentID         primitive.ObjectID `bson:"document_id" json:"document_id"`
	Model              string             `bson:"model" json:"model"`
	HighLevelSummary   string             `bson:"high_level_summary" json:"high_level_summary"`
	Sections           []Section          `bson:"sections" json:"sections"`
	OmittedThemes      []OmittedTheme     `bson:"omitted_themes" json:"omitted_themes"`
	RetentionRationale string             `bson:"retention_rationale,omitempty" json:"retention_rationale,omitempty"`
	GeneratedAt        time.Time          `bson:"generated_at" json:"generated_at"`
}

// Section groups related claims under a document section title.
type Section struct {
	Title     string  `bson:"title" json:"title"`
	KeyPoints []Claim `bson:"key_points" json:"key_points"`
}

// Claim is a single retained statement with its citations. A claim citing a
// beacon that does not exist in the document is kept but flagged
// unverifiable; it is never silently dropped or presented as verified.
type Claim struct {
	Statement      string       `bson:"statement" json:"statement"`
	Details        string       `bson:"details,omitempty" json:"details,omitempty"`
	Rationale      string       `bson:"rationale,omitempty" json:"rationale,omitempty"`
	Category       RiskCategory `bson:"category" json:"category"`
	SourceIDs      []string     `bson:"source_ids" json:"source_ids"`
	UnknownSources []string     `bson:"unknown_sources,omitempty" json:"unknown_sources,omitempty"`
	Unverifiable   bool         `bson:"unverifiable" json:"unverifiable"`
}

// OmittedTheme records a topic the model left out of the brief and how much
// its absence matters.
type OmittedTheme struct {
	Theme  string      `bson:"theme" json:"theme"`
	Reason string      `bson:"reason" json:"reason"`
	Impact ImpactScore `bson:"impact" json:"impact"`
}

// Claims returns every claim across all sections in document order.
func (b *Brief) Claims() []Claim {
	var claims []Claim
	for _, s := range b.Sections {
		claims = append(claims, s.KeyPoints...)
	}
	return claims
}

// Metrics are derived from a document and its brief; pure values, recomputed
// on demand and never persisted independently.
type Metrics struct {
	CompressionRatio float64 `json:"compression_ratio"`
	Coverage         float64 `json:"coverage"`
	RiskCount        int     `json:"risk_count"`
	ParagraphCount   int     `json:"paragraph_count"`
	CitedParagraphs  int     `json:"cited_paragraphs"`
	CorpusChars      int     `json:"corpus_chars"`
	BriefChars       int     `json:"brief_chars"`
	ClaimCount       int     `json:"claim_count"`
	UnverifiableCnt  int     `json:"unverifiable_count"`
}
