package services

import (
	"strings"
	"testing"
)

func TestSplitParagraphsOnBlankLines(t *testing.T) {
	page := "First paragraph line one.\nStill the first paragraph.\n\nSecond paragraph.\n\n\nThird paragraph."
	got := splitParagraphs(page)

	if len(got) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d: %v", len(got), got)
	}
	if got[0] != "First paragraph line one. Still the first paragraph." {
		t.Fatalf("unexpected first paragraph: %q", got[0])
	}
	if got[1] != "Second paragraph." || got[2] != "Third paragraph." {
		t.Fatalf("unexpected paragraphs: %v", got[1:])
	}
}

func TestSplitParagraphsDropsWhitespaceOnly(t *testing.T) {
	got := splitParagraphs("  \n\n   \t \n\nContent.")
	if len(got) != 1 || got[0] != "Content." {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestSplitLongRespectsSentenceBoundaries(t *testing.T) {
	sentence := strings.Repeat("word ", 40) + "end."
	block := strings.TrimSpace(strings.Repeat(sentence+" ", 10))

	got := splitLong(block)
	if len(got) < 2 {
		t.Fatalf("expected oversized block to split, got %d parts", len(got))
	}
	for i, part := range got {
		if len(part) > maxParagraphChars+100 {
			t.Fatalf("part %d too long: %d chars", i, len(part))
		}
		if !strings.HasSuffix(part, ".") {
			t.Fatalf("part %d does not end on a sentence boundary: %q", i, part[len(part)-20:])
		}
	}

	// splitting loses no sentences
	if strings.Count(strings.Join(got, " "), "end.") != 10 {
		t.Fatalf("sentences lost during split")
	}
}

func TestSplitLongKeepsShortBlocksIntact(t *testing.T) {
	block := "Short enough to keep."
	got := splitLong(block)
	if len(got) != 1 || got[0] != block {
		t.Fatalf("short block modified: %v", got)
	}
}

func TestExtractionErrorMessage(t *testing.T) {
	err := &ExtractionError{Reason: "no extractable text found in PDF"}
	if !strings.Contains(err.Error(), "no extractable text") {
		t.Fatalf("unexpected error text: %v", err)
	}
}
