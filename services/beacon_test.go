package services

import (
	"testing"

	"tracebrief/models"
)

func TestBeaconRoundTrip(t *testing.T) {
	beacon := FormatBeacon(3, 7)
	if beacon != "[[P3_7]]" {
		t.Fatalf("unexpected beacon format: %s", beacon)
	}

	page, index, suffix, err := ParseBeacon(beacon)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if page != 3 || index != 7 || suffix != 0 {
		t.Fatalf("round trip mismatch: got page=%d index=%d suffix=%d", page, index, suffix)
	}

	// bare form without brackets also accepted
	page, index, suffix, err = ParseBeacon("P12_1")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if page != 12 || index != 1 || suffix != 0 {
		t.Fatalf("bare form mismatch: got page=%d index=%d suffix=%d", page, index, suffix)
	}
}

func TestParseBeaconSuffixRoundTrip(t *testing.T) {
	page, index, suffix, err := ParseBeacon("[[P3_7_2]]")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if page != 3 || index != 7 || suffix != 2 {
		t.Fatalf("suffixed tag mismatch: got page=%d index=%d suffix=%d", page, index, suffix)
	}
}

func TestParseBeaconRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "[[P3]]", "[[3_7]]", "[[Pa_b]]", "[[P3_7]] extra"} {
		if _, _, _, err := ParseBeacon(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestTagParagraphsDeterministic(t *testing.T) {
	input := []models.Paragraph{
		{Page: 1, Text: "First paragraph."},
		{Page: 1, Text: "Second paragraph."},
		{Page: 2, Text: "Third, on a new page."},
	}

	a := TagParagraphs(input)
	b := TagParagraphs(input)

	if len(a) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(a))
	}
	if a[0].Beacon != "[[P1_1]]" || a[1].Beacon != "[[P1_2]]" || a[2].Beacon != "[[P2_1]]" {
		t.Fatalf("unexpected beacons: %s %s %s", a[0].Beacon, a[1].Beacon, a[2].Beacon)
	}
	for i := range a {
		if a[i].Beacon != b[i].Beacon {
			t.Fatalf("tagging not deterministic at %d: %s vs %s", i, a[i].Beacon, b[i].Beacon)
		}
	}
}

func TestTagParagraphsSkipsEmpty(t *testing.T) {
	input := []models.Paragraph{
		{Page: 1, Text: "   "},
		{Page: 1, Text: "Real content."},
		{Page: 1, Text: ""},
	}

	tagged := TagParagraphs(input)
	if len(tagged) != 1 {
		t.Fatalf("expected 1 paragraph, got %d", len(tagged))
	}
	// empty paragraphs never consume an index
	if tagged[0].Beacon != "[[P1_1]]" {
		t.Fatalf("unexpected beacon: %s", tagged[0].Beacon)
	}
}

func TestTagParagraphsCollisionSuffix(t *testing.T) {
	// Pre-assigned indices colliding on the same page get numeric suffixes
	// rather than silently overwriting each other in the index.
	input := []models.Paragraph{
		{Page: 1, Index: 2, Text: "one"},
		{Page: 1, Index: 2, Text: "two"},
		{Page: 1, Index: 2, Text: "three"},
	}
	tagged := TagParagraphs(input)

	if tagged[0].Beacon != "[[P1_2]]" || tagged[1].Beacon != "[[P1_2_2]]" || tagged[2].Beacon != "[[P1_2_3]]" {
		t.Fatalf("unexpected collision beacons: %s %s %s", tagged[0].Beacon, tagged[1].Beacon, tagged[2].Beacon)
	}

	idx := NewBeaconIndex(tagged)
	if idx.Len() != 3 {
		t.Fatalf("index collapsed paragraphs: len=%d", idx.Len())
	}
}

func TestExtractBeacons(t *testing.T) {
	text := "Claim one [[P1_2]] and claim two [[P3_4]], repeated [[P1_2]]. Suffixed [[P2_1_2]] too."
	got := ExtractBeacons(text)
	want := []string{"[[P1_2]]", "[[P3_4]]", "[[P1_2]]", "[[P2_1_2]]"}
	if len(got) != len(want) {
		t.Fatalf("expected %d beacons, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("beacon %d: want %s got %s", i, want[i], got[i])
		}
	}
}

func TestBeaconIndexLookup(t *testing.T) {
	tagged := TagParagraphs([]models.Paragraph{
		{Page: 1, Text: "Findable content."},
	})
	idx := NewBeaconIndex(tagged)

	p, ok := idx.Lookup("[[P1_1]]")
	if !ok || p.Text != "Findable content." {
		t.Fatalf("lookup failed: ok=%v", ok)
	}
	if _, ok := idx.Lookup("P1_1"); !ok {
		t.Fatalf("bare lookup failed")
	}
	if _, ok := idx.Lookup("[[P9_9]]"); ok {
		t.Fatalf("expected miss for unknown beacon")
	}
}

func TestBuildTaggedCorpus(t *testing.T) {
	tagged := TagParagraphs([]models.Paragraph{
		{Page: 1, Text: "Alpha."},
		{Page: 1, Text: "Beta."},
	})
	corpus := BuildTaggedCorpus(tagged)
	want := "[[P1_1]] Alpha.\n\n[[P1_2]] Beta."
	if corpus != want {
		t.Fatalf("corpus mismatch:\n%s", corpus)
	}
}
