package services

import (
	"strings"
	"testing"

	"tracebrief/models"
)

func metricsDoc(paragraphs, charsPerParagraph int) *models.Document {
	doc := &models.Document{}
	for i := 0; i < paragraphs; i++ {
		doc.Paragraphs = append(doc.Paragraphs, models.Paragraph{
			Page:      1,
			Text:      strings.Repeat("x", charsPerParagraph),
			CharCount: charsPerParagraph,
		})
	}
	doc.Paragraphs = TagParagraphs(doc.Paragraphs)
	doc.ParagraphCount = len(doc.Paragraphs)
	doc.CorpusChars = paragraphs * charsPerParagraph
	return doc
}

func briefCiting(beacons ...string) *models.Brief {
	brief := &models.Brief{}
	section := models.Section{Title: "S"}
	for _, b := range beacons {
		section.KeyPoints = append(section.KeyPoints, models.Claim{
			Statement: "claim",
			SourceIDs: []string{b},
		})
	}
	brief.Sections = []models.Section{section}
	return brief
}

func TestCoverageThreeOfTen(t *testing.T) {
	doc := metricsDoc(10, 100)
	brief := briefCiting("[[P1_1]]", "[[P1_4]]", "[[P1_9]]")

	m := ComputeMetrics(doc, brief)
	if m.Coverage != 0.3 {
		t.Fatalf("expected coverage 0.3, got %v", m.Coverage)
	}
	if m.CitedParagraphs != 3 {
		t.Fatalf("expected 3 cited paragraphs, got %d", m.CitedParagraphs)
	}
}

func TestCoverageCountsDistinctBeacons(t *testing.T) {
	doc := metricsDoc(10, 100)
	// three claims all citing the same paragraph
	brief := briefCiting("[[P1_2]]", "[[P1_2]]", "[[P1_2]]")

	m := ComputeMetrics(doc, brief)
	if m.CitedParagraphs != 1 {
		t.Fatalf("duplicate citations double counted: %d", m.CitedParagraphs)
	}
	if m.Coverage != 0.1 {
		t.Fatalf("expected coverage 0.1, got %v", m.Coverage)
	}
}

func TestCoverageExcludesUnverifiable(t *testing.T) {
	doc := metricsDoc(10, 100)
	brief := &models.Brief{Sections: []models.Section{{
		Title: "S",
		KeyPoints: []models.Claim{
			{Statement: "good", SourceIDs: []string{"[[P1_1]]"}},
			{Statement: "bad", UnknownSources: []string{"[[P9_9]]"}, Unverifiable: true},
		},
	}}}

	m := ComputeMetrics(doc, brief)
	if m.CitedParagraphs != 1 || m.Coverage != 0.1 {
		t.Fatalf("unverifiable claim leaked into coverage: %+v", m)
	}
	if m.UnverifiableCnt != 1 {
		t.Fatalf("unverifiable count wrong: %d", m.UnverifiableCnt)
	}
}

func TestCompressionRatioTenToOne(t *testing.T) {
	doc := metricsDoc(10, 500) // 5000 corpus chars
	statement := strings.Repeat("y", 500)
	brief := &models.Brief{Sections: []models.Section{{
		Title:     "S",
		KeyPoints: []models.Claim{{Statement: statement, SourceIDs: []string{"[[P1_1]]"}}},
	}}}

	m := ComputeMetrics(doc, brief)
	if m.CompressionRatio != 10.0 {
		t.Fatalf("expected compression 10.0, got %v", m.CompressionRatio)
	}
}

func TestCompressionCountsDetails(t *testing.T) {
	doc := metricsDoc(10, 500) // 5000 corpus chars
	brief := &models.Brief{Sections: []models.Section{{
		Title: "S",
		KeyPoints: []models.Claim{{
			Statement: strings.Repeat("y", 250),
			Details:   strings.Repeat("z", 250),
			SourceIDs: []string{"[[P1_1]]"},
		}},
	}}}

	m := ComputeMetrics(doc, brief)
	if m.BriefChars != 500 {
		t.Fatalf("expected 500 brief chars (statement+details), got %d", m.BriefChars)
	}
	if m.CompressionRatio != 10.0 {
		t.Fatalf("expected compression 10.0, got %v", m.CompressionRatio)
	}
}

func TestCompressionPositiveForEmptyBrief(t *testing.T) {
	doc := metricsDoc(4, 250)
	brief := &models.Brief{}

	m := ComputeMetrics(doc, brief)
	if m.CompressionRatio <= 0 {
		t.Fatalf("compression must stay positive, got %v", m.CompressionRatio)
	}
	if m.Coverage != 0 {
		t.Fatalf("expected zero coverage, got %v", m.Coverage)
	}
}

func TestCoverageBounded(t *testing.T) {
	doc := metricsDoc(2, 100)
	brief := briefCiting("[[P1_1]]", "[[P1_2]]")

	m := ComputeMetrics(doc, brief)
	if m.Coverage < 0 || m.Coverage > 1 {
		t.Fatalf("coverage out of bounds: %v", m.Coverage)
	}
	if m.Coverage != 1.0 {
		t.Fatalf("expected full coverage, got %v", m.Coverage)
	}
}

func TestRiskCount(t *testing.T) {
	doc := metricsDoc(3, 100)
	brief := &models.Brief{Sections: []models.Section{{
		KeyPoints: []models.Claim{
			{Statement: "a", Category: models.RiskFinancial, SourceIDs: []string{"[[P1_1]]"}},
			{Statement: "b", Category: models.RiskNone, SourceIDs: []string{"[[P1_2]]"}},
			{Statement: "c", Category: models.RiskUnclassified, SourceIDs: []string{"[[P1_3]]"}},
			{Statement: "d", Category: models.RiskLegal, SourceIDs: []string{"[[P1_1]]"}},
		},
	}}}

	m := ComputeMetrics(doc, brief)
	if m.RiskCount != 2 {
		t.Fatalf("expected 2 risks, got %d", m.RiskCount)
	}
}
