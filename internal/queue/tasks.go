package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tracebrief/internal/logger"
	"tracebrief/models"
	"tracebrief/services"
)

const TaskGenerateBrief = "brief:generate"

type GenerateBriefPayload struct {
	DocumentID string `json:"document_id"`
	SessionID  string `json:"session_id"`
	Force      bool   `json:"force"`
}

// NewGenerateBriefTask builds the queue task for async brief generation
func NewGenerateBriefTask(documentID, sessionID string, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerateBriefPayload{
		DocumentID: documentID,
		SessionID:  sessionID,
		Force:      force,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskGenerateBrief,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

// DocumentLoader and BriefGenerator are the service surfaces the worker
// needs; wired from services at startup.
type DocumentLoader interface {
	Get(ctx context.Context, id primitive.ObjectID, sessionID string) (*models.Document, error)
	SetBriefStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error
}

type BriefGenerator interface {
	GenerateAndStore(ctx context.Context, doc *models.Document, force bool) (*models.Brief, bool, error)
}

type TaskProcessor struct {
	docs   DocumentLoader
	briefs BriefGenerator
}

func NewTaskProcessor(docs DocumentLoader, briefs BriefGenerator) *TaskProcessor {
	return &TaskProcessor{
		docs:   docs,
		briefs: briefs,
	}
}

// HandleGenerateBrief runs brief generation off the request path, tracking
// progress through the document's brief_status field.
func (p *TaskProcessor) HandleGenerateBrief(ctx context.Context, t *asynq.Task) error {
	var payload GenerateBriefPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	docID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("bad document id %q: %w", payload.DocumentID, asynq.SkipRetry)
	}

	logger.Info("Generating brief", "document_id", payload.DocumentID, "force", payload.Force)

	doc, err := p.docs.Get(ctx, docID, payload.SessionID)
	if err != nil {
		// document swept or session mismatch: retrying will not help
		return fmt.Errorf("document not found: %v: %w", err, asynq.SkipRetry)
	}

	if err := p.docs.SetBriefStatus(ctx, docID, models.BriefStatusProcessing, ""); err != nil {
		logger.Warn("Failed to mark brief processing", "document_id", payload.DocumentID, "error", err)
	}

	if _, _, err := p.briefs.GenerateAndStore(ctx, doc, payload.Force); err != nil {
		p.docs.SetBriefStatus(ctx, docID, models.BriefStatusFailed, err.Error())

		// malformed output won't improve on requeue; transient model errors will
		var malformed *services.MalformedResponseError
		if errors.As(err, &malformed) {
			return fmt.Errorf("model output unusable: %w", asynq.SkipRetry)
		}
		return err
	}

	if err := p.docs.SetBriefStatus(ctx, docID, models.BriefStatusCompleted, ""); err != nil {
		logger.Warn("Failed to mark brief completed", "document_id", payload.DocumentID, "error", err)
	}

	logger.Info("Brief generated", "document_id", payload.DocumentID)
	return nil
}
