package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"tracebrief/internal/logger"
	"tracebrief/models"
)

// Paragraphs longer than this get re-split on sentence boundaries so a
// single citation never points at a wall of text.
const maxParagraphChars = 800

var sentenceBoundary = regexp.MustCompile(`([.!?])\s+`)

// ExtractionError marks input that could not be parsed at all, as opposed
// to transient I/O trouble. Routes map it to 422.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}

// Extractor turns PDFs and web pages into page-ordered paragraph lists
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPDF reads a stored PDF and returns its untagged paragraphs along
// with the page count.
func (e *Extractor) ExtractPDF(ctx context.Context, filePath string) ([]models.Paragraph, int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if time.Until(deadline) <= 0 {
			return nil, 0, fmt.Errorf("context deadline exceeded before extraction")
		}
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PDF file: %w", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, &ExtractionError{Reason: fmt.Sprintf("unreadable PDF: %v", err)}
	}

	var paragraphs []models.Paragraph
	pages := reader.NumPage()

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}

		for _, block := range splitParagraphs(text) {
			paragraphs = append(paragraphs, models.Paragraph{Page: i, Text: block})
		}
	}

	if len(paragraphs) == 0 {
		return nil, 0, &ExtractionError{Reason: "no extractable text found in PDF"}
	}

	return paragraphs, pages, nil
}

// ExtractURL fetches a web page and treats its text blocks as paragraphs
// on a single synthetic page.
func (e *Extractor) ExtractURL(ctx context.Context, url string) ([]models.Paragraph, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "tracebrief/1.0")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ExtractionError{Reason: fmt.Sprintf("URL returned status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &ExtractionError{Reason: fmt.Sprintf("unparseable HTML: %v", err)}
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	var paragraphs []models.Paragraph
	doc.Find("p, li, blockquote, h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		for _, block := range splitLong(text) {
			paragraphs = append(paragraphs, models.Paragraph{Page: 1, Text: block})
		}
	})

	if len(paragraphs) == 0 {
		return nil, &ExtractionError{Reason: "no extractable text found at URL"}
	}

	return paragraphs, nil
}

// splitParagraphs breaks a page of plain text into paragraph blocks on
// blank lines, with long blocks re-split on sentence boundaries.
func splitParagraphs(pageText string) []string {
	normalized := strings.ReplaceAll(pageText, "\r\n", "\n")

	var out []string
	for _, block := range strings.Split(normalized, "\n\n") {
		block = strings.TrimSpace(strings.Join(strings.Fields(block), " "))
		if block == "" {
			continue
		}
		out = append(out, splitLong(block)...)
	}
	return out
}

// splitLong re-splits an oversized block on sentence boundaries, packing
// sentences greedily up to the paragraph cap.
func splitLong(block string) []string {
	if len(block) <= maxParagraphChars {
		return []string{block}
	}

	marked := sentenceBoundary.ReplaceAllString(block, "$1\x00")
	sentences := strings.Split(marked, "\x00")

	var out []string
	var current strings.Builder
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(s)+1 > maxParagraphChars {
			out = append(out, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
