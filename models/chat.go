package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one question/answer exchange in a document conversation.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID      string             `bson:"session_id" json:"session_id"`
	DocumentID     primitive.ObjectID `bson:"document_id" json:"document_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Question       string             `bson:"question" json:"question"`
	Answer         string             `bson:"answer" json:"answer"`
	Evidence       []Citation         `bson:"evidence,omitempty" json:"evidence,omitempty"`
	Unverified     []string           `bson:"unverified,omitempty" json:"unverified,omitempty"`
	TokenCost      int                `bson:"token_cost" json:"token_cost"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// Citation is a beacon the answer cited, resolved against the document.
type Citation struct {
	Beacon  string `bson:"beacon" json:"beacon"`
	Page    int    `bson:"page" json:"page"`
	Excerpt string `bson:"excerpt,omitempty" json:"excerpt,omitempty"`
}

type ChatRequest struct {
	Question       string `json:"question" binding:"required,min=1,max=2000"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type ChatResponse struct {
	Answer         string     `json:"answer"`
	Evidence       []Citation `json:"evidence"`
	Unverified     []string   `json:"unverified,omitempty"`
	ConversationID string     `json:"conversation_id"`
	TokensUsed     int        `json:"tokens_used"`
	Timestamp      time.Time  `json:"timestamp"`
}

type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	TotalTokens    int       `json:"total_tokens"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
