package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"tracebrief/internal/ai"
	"tracebrief/internal/logger"
	"tracebrief/models"
)

// Embedder is the slice of the model client retrieval needs
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever selects the paragraphs most relevant to a question. Vector
// similarity when embeddings exist, keyword scoring otherwise; chat never
// fails just because embedding did.
type Retriever struct {
	embedder Embedder
	topK     int
}

func NewRetriever(embedder Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{embedder: embedder, topK: topK}
}

var _ Embedder = (*ai.Client)(nil)

// EmbedParagraphs attaches embedding vectors to paragraphs in place.
// Best effort: on failure the paragraphs stay vectorless and retrieval
// falls back to keyword scoring.
func (r *Retriever) EmbedParagraphs(ctx context.Context, paragraphs []models.Paragraph) {
	if r.embedder == nil || len(paragraphs) == 0 {
		return
	}

	texts := make([]string, len(paragraphs))
	for i, p := range paragraphs {
		texts[i] = p.Text
	}

	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Warn("Paragraph embedding failed, keyword fallback will be used", "error", err)
		return
	}

	for i := range paragraphs {
		if i < len(vectors) {
			paragraphs[i].Vector = vectors[i]
		}
	}
}

// TopK returns the most relevant paragraphs for a question
func (r *Retriever) TopK(ctx context.Context, paragraphs []models.Paragraph, question string) []models.Paragraph {
	if len(paragraphs) <= r.topK {
		return paragraphs
	}

	if r.embedder != nil && hasVectors(paragraphs) {
		if queryVec, err := r.embedder.GenerateEmbedding(ctx, question); err == nil {
			return r.topKByVector(paragraphs, queryVec)
		} else {
			logger.Warn("Query embedding failed, falling back to keyword scoring", "error", err)
		}
	}

	return r.topKByKeywords(paragraphs, question)
}

func hasVectors(paragraphs []models.Paragraph) bool {
	for _, p := range paragraphs {
		if len(p.Vector) > 0 {
			return true
		}
	}
	return false
}

func (r *Retriever) topKByVector(paragraphs []models.Paragraph, queryVec []float32) []models.Paragraph {
	type scored struct {
		paragraph models.Paragraph
		score     float64
	}

	ranked := make([]scored, 0, len(paragraphs))
	for _, p := range paragraphs {
		if len(p.Vector) == 0 {
			continue
		}
		ranked = append(ranked, scored{paragraph: p, score: cosineSimilarity(queryVec, p.Vector)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	limit := r.topK
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]models.Paragraph, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, ranked[i].paragraph)
	}
	return out
}

// topKByKeywords ranks paragraphs by query term frequency
func (r *Retriever) topKByKeywords(paragraphs []models.Paragraph, question string) []models.Paragraph {
	queryWords := strings.Fields(strings.ToLower(question))

	type scored struct {
		paragraph models.Paragraph
		score     int
	}

	var ranked []scored
	for _, p := range paragraphs {
		score := 0
		text := strings.ToLower(p.Text)
		for _, word := range queryWords {
			if strings.Contains(text, word) {
				score += strings.Count(text, word)
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{paragraph: p, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	limit := r.topK
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]models.Paragraph, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, ranked[i].paragraph)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
