package services

import (
	"context"
	"strings"
	"testing"

	"tracebrief/models"
)

type fakeTextGenerator struct {
	answer string
	tokens int
	prompt string
}

func (f *fakeTextGenerator) GenerateText(ctx context.Context, prompt string) (string, int, error) {
	f.prompt = prompt
	return f.answer, f.tokens, nil
}

func qaDocument() *models.Document {
	return &models.Document{
		SessionID: "sess-1",
		Paragraphs: TagParagraphs([]models.Paragraph{
			{Page: 1, Text: "The contract renews automatically each January."},
			{Page: 2, Text: "Termination requires ninety days written notice."},
		}),
	}
}

func TestAnswerVerifiesCitations(t *testing.T) {
	gen := &fakeTextGenerator{
		answer: "Renewal is automatic [[P1_1]] but termination needs notice [[P2_1]]. Also see [[P5_5]].",
		tokens: 42,
	}
	svc := NewQAService(gen, NewRetriever(nil, 4), nil)

	resp, err := svc.Answer(context.Background(), qaDocument(), &models.ChatRequest{Question: "How does renewal work?"})
	if err != nil {
		t.Fatalf("answer error: %v", err)
	}

	if len(resp.Evidence) != 2 {
		t.Fatalf("expected 2 verified citations, got %d", len(resp.Evidence))
	}
	if resp.Evidence[0].Beacon != "[[P1_1]]" || resp.Evidence[0].Page != 1 {
		t.Fatalf("citation not resolved: %+v", resp.Evidence[0])
	}
	if !strings.Contains(resp.Evidence[0].Excerpt, "renews automatically") {
		t.Fatalf("excerpt missing: %q", resp.Evidence[0].Excerpt)
	}
	if len(resp.Unverified) != 1 || resp.Unverified[0] != "[[P5_5]]" {
		t.Fatalf("invented citation not reported: %v", resp.Unverified)
	}
	if resp.TokensUsed != 42 {
		t.Fatalf("token cost lost: %d", resp.TokensUsed)
	}
	if resp.ConversationID == "" {
		t.Fatalf("conversation id not assigned")
	}
}

func TestAnswerKeepsConversationID(t *testing.T) {
	gen := &fakeTextGenerator{answer: noAnswerFallback}
	svc := NewQAService(gen, NewRetriever(nil, 4), nil)

	resp, err := svc.Answer(context.Background(), qaDocument(), &models.ChatRequest{
		Question:       "Unrelated question?",
		ConversationID: "conv-7",
	})
	if err != nil {
		t.Fatalf("answer error: %v", err)
	}
	if resp.ConversationID != "conv-7" {
		t.Fatalf("conversation id replaced: %s", resp.ConversationID)
	}
	if len(resp.Evidence) != 0 {
		t.Fatalf("fallback answer should carry no evidence: %v", resp.Evidence)
	}
}

func TestAnswerPromptGroundsOnDocument(t *testing.T) {
	gen := &fakeTextGenerator{answer: "See [[P1_1]]."}
	svc := NewQAService(gen, NewRetriever(nil, 4), nil)

	_, err := svc.Answer(context.Background(), qaDocument(), &models.ChatRequest{Question: "When does the contract renew?"})
	if err != nil {
		t.Fatalf("answer error: %v", err)
	}

	if !strings.Contains(gen.prompt, "[[P1_1]] The contract renews automatically each January.") {
		t.Fatalf("tagged context missing from prompt")
	}
	if !strings.Contains(gen.prompt, noAnswerFallback) {
		t.Fatalf("fallback instruction missing from prompt")
	}
	if !strings.Contains(gen.prompt, "When does the contract renew?") {
		t.Fatalf("question missing from prompt")
	}
}

func TestVerifyCitationsDeduplicates(t *testing.T) {
	svc := NewQAService(nil, NewRetriever(nil, 4), nil)
	evidence, unverified := svc.verifyCitations("[[P1_1]] and again [[P1_1]] and fake [[P8_8]] [[P8_8]]", qaDocument())

	if len(evidence) != 1 {
		t.Fatalf("duplicate evidence not collapsed: %v", evidence)
	}
	if len(unverified) != 1 {
		t.Fatalf("duplicate unverified not collapsed: %v", unverified)
	}
}

func TestExcerptTruncatesOnWordBoundary(t *testing.T) {
	long := strings.Repeat("alpha beta gamma ", 30)
	got := excerpt(long, 200)
	if len(got) > 204 {
		t.Fatalf("excerpt too long: %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("excerpt missing ellipsis: %q", got)
	}
	if strings.HasSuffix(strings.TrimSuffix(got, "..."), "gamm") {
		t.Fatalf("excerpt cut mid-word: %q", got)
	}
}
