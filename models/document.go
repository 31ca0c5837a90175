package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents an ingested source document with its tagged paragraphs.
// Paragraphs are immutable after extraction; the beacon index is rebuilt from
// them on load.
type Document struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID      string             `bson:"session_id" json:"session_id"`
	Filename       string             `bson:"filename,omitempty" json:"filename,omitempty"`
	OriginalName   string             `bson:"original_name,omitempty" json:"original_name,omitempty"`
	SourceURL      string             `bson:"source_url,omitempty" json:"source_url,omitempty"`
	FilePath       string             `bson:"file_path,omitempty" json:"-"`
	FileHash       string             `bson:"file_hash" json:"file_hash"` // For deduplication and brief caching
	PageCount      int                `bson:"page_count" json:"page_count"`
	ParagraphCount int                `bson:"paragraph_count" json:"paragraph_count"`
	CorpusChars    int                `bson:"corpus_chars" json:"corpus_chars"` // Length of the tagged corpus
	Paragraphs     []Paragraph        `bson:"paragraphs,omitempty" json:"-"`
	Status         string             `bson:"status" json:"status"`
	BriefStatus    string             `bson:"brief_status" json:"brief_status"`
	ErrorMessage   string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt     time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt    *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// Paragraph is a single extracted text block. Identity is (Page, Index);
// Beacon is the deterministic citation tag derived from that identity.
type Paragraph struct {
	Beacon     string    `bson:"beacon" json:"beacon"`
	Page       int       `bson:"page" json:"page"`
	Index      int       `bson:"index" json:"index"`
	Text       string    `bson:"text,omitempty" json:"text"`
	Compressed []byte    `bson:"compressed,omitempty" json:"-"` // Brotli-compressed text for storage
	Vector     []float32 `bson:"vector,omitempty" json:"-"`     // Embedding for similarity retrieval
	CharCount  int       `bson:"char_count" json:"char_count"`
}

// SourceLookupResult is the payload returned when resolving a beacon back to
// its origin paragraph.
type SourceLookupResult struct {
	Beacon string `json:"beacon"`
	Page   int    `json:"page"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// Document processing status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Brief generation status constants (per document)
const (
	BriefStatusNone       = "none"
	BriefStatusQueued     = "queued"
	BriefStatusProcessing = "processing"
	BriefStatusCompleted  = "completed"
	BriefStatusFailed     = "failed"
)
