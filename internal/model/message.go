// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawMessage is a chat message as captured from a trade group. The text is
// immutable once recorded; the pipeline only mutates the embedding, the
// processed flag, and the processing error.
type RawMessage struct {
	ReceivedAt        time.Time
	ExternalID        string
	SenderPhone       string
	SenderName        string
	Body              string
	MediaURL          string
	ReplyToExternalID string
	ProcessingError   string
	Embedding         []float32
	ID                uuid.UUID
	GroupID           uuid.UUID
	Processed         bool
}

// IsBlank reports whether the message carries no processable text.
func (m *RawMessage) IsBlank() bool {
	return strings.TrimSpace(m.Body) == ""
}

// IsReply reports whether the message replies to another group message.
func (m *RawMessage) IsReply() bool {
	return m.ReplyToExternalID != ""
}
