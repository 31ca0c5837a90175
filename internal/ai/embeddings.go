package ai

import (
	"context"
	"errors"

	genai "github.com/google/generative-ai-go/genai"
)

// GenerateEmbedding returns the embedding vector for a single piece of text.
// Used for query embedding in chat.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}

	em := c.client.EmbeddingModel(c.cfg.EmbeddingsModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds multiple texts in one request, used for paragraph
// indexing at ingest time. Entries that fail to embed come back as nil
// slices so callers can fall back to keyword scoring.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := c.client.EmbeddingModel(c.cfg.EmbeddingsModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		if i >= len(out) {
			break
		}
		if emb != nil {
			out[i] = emb.Values
		}
	}
	return out, nil
}
