package services

import (
	"tracebrief/models"
)

// ComputeMetrics derives the dashboard figures from a document and its
// brief. Pure computation, recomputed on demand.
//
// Compression is corpus characters over retained claim characters
// (statements plus details), so a 5000-char document compressed into
// 500 chars of claims scores 10.0.
// Coverage is the share of paragraphs cited by at least one verified claim:
// distinct cited beacons over paragraph count, always within [0, 1].
func ComputeMetrics(doc *models.Document, brief *models.Brief) models.Metrics {
	m := models.Metrics{
		ParagraphCount: doc.ParagraphCount,
		CorpusChars:    doc.CorpusChars,
	}
	if m.ParagraphCount == 0 {
		m.ParagraphCount = len(doc.Paragraphs)
	}
	if m.CorpusChars == 0 {
		for _, p := range doc.Paragraphs {
			m.CorpusChars += p.CharCount
		}
	}

	cited := make(map[string]struct{})
	for _, claim := range brief.Claims() {
		m.ClaimCount++
		m.BriefChars += len(claim.Statement) + len(claim.Details)
		if claim.Category.IsRisk() {
			m.RiskCount++
		}
		if claim.Unverifiable {
			m.UnverifiableCnt++
			continue
		}
		for _, beacon := range claim.SourceIDs {
			cited[beacon] = struct{}{}
		}
	}
	m.CitedParagraphs = len(cited)

	// A brief with no claim text still yields a positive, finite ratio.
	briefChars := m.BriefChars
	if briefChars == 0 {
		briefChars = 1
	}
	m.CompressionRatio = float64(m.CorpusChars) / float64(briefChars)

	if m.ParagraphCount > 0 {
		m.Coverage = float64(m.CitedParagraphs) / float64(m.ParagraphCount)
		if m.Coverage > 1 {
			m.Coverage = 1
		}
	}

	return m
}
