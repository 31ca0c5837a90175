package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tracebrief/internal/logger"
	"tracebrief/models"
)

const noAnswerFallback = "Information not available in the document."

// TextGenerator is the slice of the model client Q&A needs
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, int, error)
}

// QAService answers questions grounded strictly in a document's tagged
// paragraphs. Answers cite beacons; citations are resolved against the
// document and anything the model invented is reported separately.
type QAService struct {
	gen       TextGenerator
	retriever *Retriever
	messages  *mongo.Collection
}

func NewQAService(gen TextGenerator, retriever *Retriever, messages *mongo.Collection) *QAService {
	return &QAService{
		gen:       gen,
		retriever: retriever,
		messages:  messages,
	}
}

func buildAnswerPrompt(taggedContext, question string) string {
	return "You are an expert document analyst. You must answer the user's question based ONLY on the provided document text.\n" +
		"The text contains source tags like [[P1_1]]. You MUST use these tags as 'proofs' in your answer.\n" +
		"Requirements:\n" +
		"1. Provide a detailed, comprehensive answer.\n" +
		"2. Explicitly cite the source tags (e.g., [[P1_1]], [[P2_5]]) for EVERY claim or fact you mention.\n" +
		"3. If the answer is not in the text, say '" + noAnswerFallback + "'\n" +
		"4. Your goal is to show the user exactly WHY you chose this answer by referencing the tags.\n\n" +
		"Document Content:\n" + taggedContext + "\n\n" +
		"User Question: " + question + "\n\n" +
		"Answer (Detailed with Proofs):"
}

// Answer runs retrieval, queries the model and verifies every cited beacon
// against the document before returning.
func (s *QAService) Answer(ctx context.Context, doc *models.Document, req *models.ChatRequest) (*models.ChatResponse, error) {
	tracer := otel.Tracer("qa-service")
	ctx, span := tracer.Start(ctx, "qa.answer")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", doc.ID.Hex()),
		attribute.Int("question.length", len(req.Question)),
	)

	relevant := s.retriever.TopK(ctx, doc.Paragraphs, req.Question)
	if len(relevant) == 0 {
		relevant = doc.Paragraphs
	}
	taggedContext := BuildTaggedCorpus(relevant)

	answer, tokens, err := s.gen.GenerateText(ctx, buildAnswerPrompt(taggedContext, req.Question))
	if err != nil {
		return nil, err
	}

	evidence, unverified := s.verifyCitations(answer, doc)
	span.SetAttributes(
		attribute.Int("qa.citations_verified", len(evidence)),
		attribute.Int("qa.citations_unverified", len(unverified)),
	)

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	resp := &models.ChatResponse{
		Answer:         answer,
		Evidence:       evidence,
		Unverified:     unverified,
		ConversationID: conversationID,
		TokensUsed:     tokens,
		Timestamp:      time.Now(),
	}

	if s.messages != nil {
		msg := &models.Message{
			SessionID:      doc.SessionID,
			DocumentID:     doc.ID,
			ConversationID: conversationID,
			Question:       req.Question,
			Answer:         answer,
			Evidence:       evidence,
			Unverified:     unverified,
			TokenCost:      tokens,
			Timestamp:      resp.Timestamp,
		}
		if _, err := s.messages.InsertOne(ctx, msg); err != nil {
			// history is best effort, the answer still goes back
			logger.Warn("Failed to store chat message", "conversation_id", conversationID, "error", err)
		}
	}

	return resp, nil
}

// verifyCitations splits the beacons in an answer into resolved evidence
// and tags the model made up.
func (s *QAService) verifyCitations(answer string, doc *models.Document) ([]models.Citation, []string) {
	index := NewBeaconIndex(doc.Paragraphs)

	var evidence []models.Citation
	var unverified []string
	seen := make(map[string]bool)

	for _, beacon := range ExtractBeacons(answer) {
		if seen[beacon] {
			continue
		}
		seen[beacon] = true

		if p, ok := index.Lookup(beacon); ok {
			evidence = append(evidence, models.Citation{
				Beacon:  beacon,
				Page:    p.Page,
				Excerpt: excerpt(p.Text, 200),
			})
		} else {
			unverified = append(unverified, beacon)
		}
	}

	return evidence, unverified
}

// History returns a conversation's messages in chronological order
func (s *QAService) History(ctx context.Context, sessionID, conversationID string) (*models.ConversationHistory, error) {
	cursor, err := s.messages.Find(ctx,
		bson.M{"session_id": sessionID, "conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	history := &models.ConversationHistory{
		ConversationID: conversationID,
		Messages:       messages,
	}
	for _, m := range messages {
		history.TotalTokens += m.TokenCost
	}
	if len(messages) > 0 {
		history.CreatedAt = messages[0].Timestamp
		history.UpdatedAt = messages[len(messages)-1].Timestamp
	}
	return history, nil
}

// Conversations lists the conversation IDs a session has open for a document
func (s *QAService) Conversations(ctx context.Context, sessionID string, documentID primitive.ObjectID) ([]string, error) {
	ids, err := s.messages.Distinct(ctx, "conversation_id",
		bson.M{"session_id": sessionID, "document_id": documentID})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := id.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func excerpt(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := text[:n]
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
