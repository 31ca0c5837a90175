package services

import (
	"context"
	"errors"
	"testing"

	"tracebrief/internal/config"
	"tracebrief/models"
)

type fakeGenerator struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func testDocument() *models.Document {
	paragraphs := TagParagraphs([]models.Paragraph{
		{Page: 1, Text: "The company reported revenue of 4.2 million in Q3."},
		{Page: 1, Text: "A pending lawsuit could expose the company to damages."},
		{Page: 2, Text: "Headcount grew by twelve percent year over year."},
	})
	return &models.Document{
		FileHash:   "abc123",
		Paragraphs: paragraphs,
	}
}

const validBriefJSON = `{
  "summary": {
    "high_level_summary": "A quarterly report covering revenue, litigation and headcount.",
    "sections": [
      {
        "title": "Financials",
        "key_points": [
          {
            "statement": "Revenue reached 4.2 million in Q3.",
            "source_ids": ["[[P1_1]]"],
            "risk_type": "Financial",
            "details": "Revenue grew against the prior quarter.",
            "rationale": "Core performance figure."
          }
        ]
      },
      {
        "title": "Legal",
        "key_points": [
          {
            "statement": "A lawsuit may lead to damages.",
            "source_ids": ["[[P1_2]]", "[[P9_9]]"],
            "risk_type": "Legal",
            "details": "Outcome uncertain.",
            "rationale": "Material exposure."
          },
          {
            "statement": "An entirely uncited assertion.",
            "source_ids": ["[[P7_7]]"],
            "risk_type": "None",
            "details": "",
            "rationale": ""
          }
        ]
      }
    ]
  },
  "meta_analysis": {
    "omitted_themes": [
      {"theme": "Office relocation", "reason_for_omission": "Not material.", "impact_score": "low"}
    ],
    "global_retention_rationale": "Kept figures and risks."
  }
}`

func newTestBriefService(gen Generator) *BriefService {
	return NewBriefService(&config.Config{GeminiModel: "gemini-2.0-flash"}, gen, nil, nil)
}

func TestGenerateParsesValidBrief(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validBriefJSON}}
	svc := newTestBriefService(gen)

	brief, err := svc.Generate(context.Background(), testDocument())
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected 1 model call, got %d", gen.calls)
	}
	if brief.HighLevelSummary == "" || len(brief.Sections) != 2 {
		t.Fatalf("brief not populated: %+v", brief)
	}
	if brief.RetentionRationale != "Kept figures and risks." {
		t.Fatalf("meta analysis lost: %q", brief.RetentionRationale)
	}
	if len(brief.OmittedThemes) != 1 || brief.OmittedThemes[0].Impact != models.ImpactLow {
		t.Fatalf("omitted themes wrong: %+v", brief.OmittedThemes)
	}
}

func TestGenerateFlagsUnverifiableClaims(t *testing.T) {
	gen := &fakeGenerator{responses: []string{validBriefJSON}}
	svc := newTestBriefService(gen)

	brief, err := svc.Generate(context.Background(), testDocument())
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	claims := brief.Claims()
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}

	// verified claim untouched
	if claims[0].Unverifiable || len(claims[0].SourceIDs) != 1 {
		t.Fatalf("verified claim mishandled: %+v", claims[0])
	}

	// mixed citations: keeps the verified beacon, records the unknown one,
	// and stays verified
	if claims[1].Unverifiable {
		t.Fatalf("claim with one valid citation marked unverifiable")
	}
	if len(claims[1].SourceIDs) != 1 || claims[1].SourceIDs[0] != "[[P1_2]]" {
		t.Fatalf("valid citation lost: %v", claims[1].SourceIDs)
	}
	if len(claims[1].UnknownSources) != 1 || claims[1].UnknownSources[0] != "[[P9_9]]" {
		t.Fatalf("unknown citation not recorded: %v", claims[1].UnknownSources)
	}

	// fully uncited claim kept but flagged, never dropped
	if !claims[2].Unverifiable {
		t.Fatalf("uncited claim not flagged unverifiable")
	}
	if claims[2].Statement != "An entirely uncited assertion." {
		t.Fatalf("uncited claim dropped or mangled: %+v", claims[2])
	}
}

func TestGenerateStripsCodeFences(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```json\n" + validBriefJSON + "\n```"}}
	svc := newTestBriefService(gen)

	brief, err := svc.Generate(context.Background(), testDocument())
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("fenced but valid JSON should not trigger a retry, calls=%d", gen.calls)
	}
	if len(brief.Sections) != 2 {
		t.Fatalf("fenced brief not parsed")
	}
}

func TestGenerateNormalizesEnums(t *testing.T) {
	payload := `{
  "summary": {
    "high_level_summary": "ok",
    "sections": [{"title": "S", "key_points": [
      {"statement": "a", "source_ids": ["[[P1_1]]"], "risk_type": "Financial/Legal"},
      {"statement": "b", "source_ids": ["[[P1_1]]"], "risk_type": "reputational"},
      {"statement": "c", "source_ids": ["[[P1_1]]"], "risk_type": ""}
    ]}]
  },
  "json_meta_analysis": {
    "omitted_themes": [{"theme": "x", "reason_for_omission": "y", "impact_score": "CRITICAL"}],
    "global_retention_rationale": "alt key accepted"
  }
}`
	gen := &fakeGenerator{responses: []string{payload}}
	svc := newTestBriefService(gen)

	brief, err := svc.Generate(context.Background(), testDocument())
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	claims := brief.Claims()
	if claims[0].Category != models.RiskFinancial {
		t.Fatalf("compound risk not normalized to first match: %s", claims[0].Category)
	}
	if claims[1].Category != models.RiskUnclassified {
		t.Fatalf("unknown risk not normalized: %s", claims[1].Category)
	}
	if claims[2].Category != models.RiskNone {
		t.Fatalf("empty risk not normalized to None: %s", claims[2].Category)
	}

	// unknown impact defaults low; alternate meta key accepted
	if brief.OmittedThemes[0].Impact != models.ImpactLow {
		t.Fatalf("unknown impact not defaulted: %s", brief.OmittedThemes[0].Impact)
	}
	if brief.RetentionRationale != "alt key accepted" {
		t.Fatalf("json_meta_analysis alternate key ignored")
	}
}

func TestGenerateCorrectiveRetryOnce(t *testing.T) {
	// first response malformed, second valid: exactly two calls
	gen := &fakeGenerator{responses: []string{"I think the document is about revenue.", validBriefJSON}}
	svc := newTestBriefService(gen)

	brief, err := svc.Generate(context.Background(), testDocument())
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected exactly 2 model calls, got %d", gen.calls)
	}
	if len(brief.Sections) != 2 {
		t.Fatalf("corrected brief not parsed")
	}
}

func TestGenerateSurfacesRawAfterSecondFailure(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"not json", "still not json"}}
	svc := newTestBriefService(gen)

	_, err := svc.Generate(context.Background(), testDocument())
	if err == nil {
		t.Fatalf("expected error")
	}
	var malformed *MalformedResponseError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedResponseError, got %T: %v", err, err)
	}
	if malformed.Raw != "still not json" {
		t.Fatalf("raw response not surfaced: %q", malformed.Raw)
	}
	if gen.calls != 2 {
		t.Fatalf("expected exactly 2 model calls, got %d", gen.calls)
	}
}

func TestGeneratePropagatesModelErrors(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unreachable")}
	svc := newTestBriefService(gen)

	if _, err := svc.Generate(context.Background(), testDocument()); err == nil {
		t.Fatalf("expected error from generator")
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFences(in); got != want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}
