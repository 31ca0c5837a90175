package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tracebrief/internal/auth"
	"tracebrief/internal/config"
	"tracebrief/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RetentionSweeper purges documents past their retention window along with
// their briefs, chat history, stored files and session tokens. Uploads are
// anonymous and short-lived; nothing should outlive the TTL.
type RetentionSweeper struct {
	config    *config.Config
	docSvc    *DocumentService
	briefSvc  *BriefService
	messages  *mongo.Collection
	rdb       *redis.Client
	scheduler *gocron.Scheduler
}

func NewRetentionSweeper(cfg *config.Config, docSvc *DocumentService, briefSvc *BriefService, messages *mongo.Collection, rdb *redis.Client) *RetentionSweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &RetentionSweeper{
		config:    cfg,
		docSvc:    docSvc,
		briefSvc:  briefSvc,
		messages:  messages,
		rdb:       rdb,
		scheduler: s,
	}
}

// Start schedules the sweep and runs the scheduler in the background
func (r *RetentionSweeper) Start() error {
	interval := time.Duration(r.config.RetentionInterval) * time.Minute
	_, err := r.scheduler.Every(interval).Tag("retention-sweep").Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		return r.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	logger.Info("Retention sweeper started", "interval", interval.String(), "document_ttl_hours", r.config.DocumentTTL)
	return nil
}

func (r *RetentionSweeper) Stop() {
	r.scheduler.Stop()
}

// Sweep deletes everything belonging to expired documents
func (r *RetentionSweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(r.config.DocumentTTL) * time.Hour)

	expired, err := r.docSvc.ExpiredBefore(ctx, cutoff)
	if err != nil {
		logger.Error("Retention sweep query failed", "error", err)
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	swept := 0
	sessions := make(map[string]bool)
	for i := range expired {
		doc := &expired[i]

		if err := r.briefSvc.DeleteForDocument(ctx, doc.ID); err != nil {
			logger.Warn("Failed to delete briefs during sweep", "document_id", doc.ID.Hex(), "error", err)
		}
		if _, err := r.messages.DeleteMany(ctx, bson.M{"document_id": doc.ID}); err != nil {
			logger.Warn("Failed to delete messages during sweep", "document_id", doc.ID.Hex(), "error", err)
		}
		if err := r.docSvc.Delete(ctx, doc); err != nil {
			logger.Warn("Failed to delete document during sweep", "document_id", doc.ID.Hex(), "error", err)
			continue
		}
		sessions[doc.SessionID] = true
		swept++
	}

	// revoke tokens and drop per-session storage, but only once a session
	// has no documents left
	for sessionID := range sessions {
		remaining, err := r.docSvc.CountForSession(ctx, sessionID)
		if err != nil || remaining > 0 {
			continue
		}
		if r.rdb != nil {
			if err := auth.RevokeSession(sessionID, r.rdb); err != nil {
				logger.Warn("Failed to revoke session tokens during sweep", "session_id", sessionID, "error", err)
			}
		}
		r.docSvc.Storage().CleanupSession(sessionID)
	}

	logger.Info("Retention sweep completed", "documents_removed", swept, "cutoff", cutoff.Format(time.RFC3339))
	return nil
}
