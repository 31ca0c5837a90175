package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tracebrief/models"
)

// Beacons look like [[P3_7]]: page 3, seventh paragraph on that page.
// When the same page/index pair would repeat (rare splitter edge case) a
// numeric suffix disambiguates: [[P3_7_2]], [[P3_7_3]], ...
var beaconPattern = regexp.MustCompile(`\[\[P(\d+)_(\d+)(?:_(\d+))?\]\]`)

// FormatBeacon renders the canonical tag for a page/paragraph pair
func FormatBeacon(page, index int) string {
	return fmt.Sprintf("[[P%d_%d]]", page, index)
}

// ParseBeacon decodes a single beacon tag back into its page, paragraph
// index and collision suffix (0 when the tag carries none). Accepts the
// tag with or without the surrounding brackets.
func ParseBeacon(beacon string) (page, index, suffix int, err error) {
	s := beacon
	if !strings.HasPrefix(s, "[[") {
		s = "[[" + s + "]]"
	}
	m := beaconPattern.FindStringSubmatch(s)
	if m == nil || len(m[0]) != len(s) {
		return 0, 0, 0, fmt.Errorf("malformed beacon %q", beacon)
	}
	page, _ = strconv.Atoi(m[1])
	index, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		suffix, _ = strconv.Atoi(m[3])
	}
	return page, index, suffix, nil
}

// ExtractBeacons returns every beacon tag found in text, in order of
// appearance, duplicates included.
func ExtractBeacons(text string) []string {
	matches := beaconPattern.FindAllString(text, -1)
	return matches
}

// BeaconIndex maps beacon tags back to the paragraphs that carry them
type BeaconIndex struct {
	byBeacon map[string]*models.Paragraph
}

func NewBeaconIndex(paragraphs []models.Paragraph) *BeaconIndex {
	idx := &BeaconIndex{byBeacon: make(map[string]*models.Paragraph, len(paragraphs))}
	for i := range paragraphs {
		idx.byBeacon[paragraphs[i].Beacon] = &paragraphs[i]
	}
	return idx
}

// Lookup resolves a beacon tag to its source paragraph
func (idx *BeaconIndex) Lookup(beacon string) (*models.Paragraph, bool) {
	if !strings.HasPrefix(beacon, "[[") {
		beacon = "[[" + beacon + "]]"
	}
	p, ok := idx.byBeacon[beacon]
	return p, ok
}

func (idx *BeaconIndex) Len() int {
	return len(idx.byBeacon)
}

// TagParagraphs assigns a deterministic beacon to every non-empty paragraph.
// Paragraph indices restart at 1 on each page; an index already set by the
// extractor is kept, and if that produces a repeated page/index pair the
// beacon gets a numeric suffix instead of overwriting the earlier one.
// Tagging the same extraction twice yields identical beacons, which is what
// makes citations stable across regenerated briefs.
func TagParagraphs(paragraphs []models.Paragraph) []models.Paragraph {
	tagged := make([]models.Paragraph, 0, len(paragraphs))
	perPage := make(map[int]int)
	seen := make(map[string]int)

	for _, p := range paragraphs {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}

		if p.Index <= 0 {
			perPage[p.Page]++
			p.Index = perPage[p.Page]
		} else if p.Index > perPage[p.Page] {
			perPage[p.Page] = p.Index
		}
		p.Text = text
		p.CharCount = len(text)

		beacon := FormatBeacon(p.Page, p.Index)
		if n := seen[beacon]; n > 0 {
			seen[beacon] = n + 1
			beacon = fmt.Sprintf("[[P%d_%d_%d]]", p.Page, p.Index, n+1)
		} else {
			seen[beacon] = 1
		}
		p.Beacon = beacon

		tagged = append(tagged, p)
	}
	return tagged
}

// BuildTaggedCorpus renders the prompt-facing corpus: each paragraph
// prefixed by its beacon so the model can cite by tag.
func BuildTaggedCorpus(paragraphs []models.Paragraph) string {
	var sb strings.Builder
	for i, p := range paragraphs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Beacon)
		sb.WriteString(" ")
		sb.WriteString(p.Text)
	}
	return sb.String()
}
