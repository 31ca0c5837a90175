package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"tracebrief/internal/config"
	"tracebrief/internal/logger"
	"tracebrief/internal/telemetry"
	"tracebrief/models"
	"tracebrief/utils"
)

// DocumentService owns the ingest pipeline: validate, store, extract,
// tag, compress, embed, persist.
type DocumentService struct {
	config    *config.Config
	documents *mongo.Collection
	extractor *Extractor
	storage   *FileStorageManager
	retriever *Retriever
}

func NewDocumentService(cfg *config.Config, documents *mongo.Collection, retriever *Retriever) *DocumentService {
	return &DocumentService{
		config:    cfg,
		documents: documents,
		extractor: NewExtractor(),
		storage:   NewFileStorageManager(cfg),
		retriever: retriever,
	}
}

func (s *DocumentService) Storage() *FileStorageManager {
	return s.storage
}

// IngestPDF validates and stores an uploaded PDF, then runs extraction
// synchronously so the response carries the tagged document.
func (s *DocumentService) IngestPDF(ctx context.Context, file multipart.File, header *multipart.FileHeader, sessionID string) (*models.Document, error) {
	tracer := otel.Tracer("document-service")
	ctx, span := tracer.Start(ctx, "document.ingest_pdf")
	defer span.End()

	if err := s.storage.ValidateUpload(header); err != nil {
		return nil, &ExtractionError{Reason: err.Error()}
	}

	fileInfo, err := s.storage.SecureStore(file, header, sessionID)
	if err != nil {
		return nil, &ExtractionError{Reason: err.Error()}
	}

	// Re-uploading the same file in the same session returns the existing
	// document; beacons are deterministic so nothing would change.
	if existing, err := s.findDuplicate(ctx, sessionID, fileInfo.Hash); err == nil && existing != nil {
		s.storage.Cleanup(fileInfo.Path)
		return s.withParagraphText(existing)
	}

	doc := &models.Document{
		ID:           primitive.NewObjectID(),
		SessionID:    sessionID,
		Filename:     fileInfo.SecureName,
		OriginalName: header.Filename,
		FilePath:     fileInfo.Path,
		FileHash:     fileInfo.Hash,
		Status:       models.StatusPending,
		BriefStatus:  models.BriefStatusNone,
		UploadedAt:   time.Now(),
	}

	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		s.storage.Cleanup(fileInfo.Path)
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	start := time.Now()
	s.updateStatus(ctx, doc.ID, models.StatusProcessing, "")

	paragraphs, pages, err := s.extractor.ExtractPDF(ctx, fileInfo.Path)
	if err != nil {
		s.updateStatus(ctx, doc.ID, models.StatusFailed, err.Error())
		telemetry.RecordExtraction(time.Since(start).Seconds(), "pdf", "failed")
		return nil, err
	}
	telemetry.RecordExtraction(time.Since(start).Seconds(), "pdf", "completed")

	if err := s.finishIngest(ctx, doc, paragraphs, pages); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("document.pages", pages),
		attribute.Int("document.paragraphs", doc.ParagraphCount),
		attribute.Float64("document.extract_seconds", time.Since(start).Seconds()),
	)
	return doc, nil
}

// IngestURL fetches a web page and ingests its text blocks as a one-page
// document.
func (s *DocumentService) IngestURL(ctx context.Context, url, sessionID string) (*models.Document, error) {
	tracer := otel.Tracer("document-service")
	ctx, span := tracer.Start(ctx, "document.ingest_url")
	defer span.End()
	span.SetAttributes(attribute.String("document.url", url))

	start := time.Now()
	paragraphs, err := s.extractor.ExtractURL(ctx, url)
	if err != nil {
		telemetry.RecordExtraction(time.Since(start).Seconds(), "url", "failed")
		return nil, err
	}
	telemetry.RecordExtraction(time.Since(start).Seconds(), "url", "completed")

	hash := utils.HashBytes([]byte(url))
	if existing, err := s.findDuplicate(ctx, sessionID, hash); err == nil && existing != nil {
		return s.withParagraphText(existing)
	}

	doc := &models.Document{
		ID:          primitive.NewObjectID(),
		SessionID:   sessionID,
		SourceURL:   url,
		FileHash:    hash,
		Status:      models.StatusProcessing,
		BriefStatus: models.BriefStatusNone,
		UploadedAt:  time.Now(),
	}

	if _, err := s.documents.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("database save failed: %w", err)
	}

	if err := s.finishIngest(ctx, doc, paragraphs, 1); err != nil {
		return nil, err
	}
	return doc, nil
}

// finishIngest tags, embeds and persists the extracted paragraphs
func (s *DocumentService) finishIngest(ctx context.Context, doc *models.Document, paragraphs []models.Paragraph, pages int) error {
	tagged := TagParagraphs(paragraphs)

	s.retriever.EmbedParagraphs(ctx, tagged)

	doc.Paragraphs = tagged
	doc.PageCount = pages
	doc.ParagraphCount = len(tagged)
	doc.CorpusChars = len(BuildTaggedCorpus(tagged))
	doc.Status = models.StatusCompleted
	now := time.Now()
	doc.ProcessedAt = &now

	stored := make([]models.Paragraph, len(tagged))
	copy(stored, tagged)
	for i := range stored {
		compressed, err := utils.CompressText(stored[i].Text, s.config.MinCompressSize)
		if err != nil {
			logger.Warn("Paragraph compression failed, storing plain", "beacon", stored[i].Beacon, "error", err)
			continue
		}
		if compressed != nil {
			stored[i].Compressed = compressed
			stored[i].Text = ""
		}
	}

	_, err := s.documents.UpdateByID(ctx, doc.ID, bson.M{"$set": bson.M{
		"paragraphs":      stored,
		"page_count":      doc.PageCount,
		"paragraph_count": doc.ParagraphCount,
		"corpus_chars":    doc.CorpusChars,
		"status":          doc.Status,
		"processed_at":    doc.ProcessedAt,
	}})
	if err != nil {
		s.updateStatus(context.Background(), doc.ID, models.StatusFailed, err.Error())
		return fmt.Errorf("failed to persist extraction: %w", err)
	}
	return nil
}

// Get loads a session's document with paragraph text restored from its
// compressed form.
func (s *DocumentService) Get(ctx context.Context, id primitive.ObjectID, sessionID string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"_id": id, "session_id": sessionID}).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return s.withParagraphText(&doc)
}

// withParagraphText decompresses stored paragraphs in place
func (s *DocumentService) withParagraphText(doc *models.Document) (*models.Document, error) {
	for i := range doc.Paragraphs {
		p := &doc.Paragraphs[i]
		if p.Text == "" && len(p.Compressed) > 0 {
			text, err := utils.DecompressText(p.Compressed)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress paragraph %s: %w", p.Beacon, err)
			}
			p.Text = text
		}
	}
	return doc, nil
}

func (s *DocumentService) findDuplicate(ctx context.Context, sessionID, hash string) (*models.Document, error) {
	var doc models.Document
	err := s.documents.FindOne(ctx, bson.M{"session_id": sessionID, "file_hash": hash}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentService) updateStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) {
	update := bson.M{"status": status}
	if errMsg != "" {
		update["error_message"] = errMsg
	}
	if _, err := s.documents.UpdateByID(ctx, id, bson.M{"$set": update}); err != nil {
		logger.Error("Failed to update document status", "document_id", id.Hex(), "error", err)
	}
}

// SetBriefStatus tracks where async brief generation stands for a document
func (s *DocumentService) SetBriefStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) error {
	update := bson.M{"brief_status": status}
	if errMsg != "" {
		update["error_message"] = errMsg
	}
	_, err := s.documents.UpdateByID(ctx, id, bson.M{"$set": update})
	return err
}

// ExpiredBefore lists documents uploaded before the retention cutoff
func (s *DocumentService) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]models.Document, error) {
	cursor, err := s.documents.Find(ctx, bson.M{"uploaded_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CountForSession reports how many documents a session still has
func (s *DocumentService) CountForSession(ctx context.Context, sessionID string) (int64, error) {
	return s.documents.CountDocuments(ctx, bson.M{"session_id": sessionID})
}

// Delete removes a document record and its stored file
func (s *DocumentService) Delete(ctx context.Context, doc *models.Document) error {
	if doc.FilePath != "" {
		s.storage.Cleanup(doc.FilePath)
	}
	_, err := s.documents.DeleteOne(ctx, bson.M{"_id": doc.ID})
	return err
}
