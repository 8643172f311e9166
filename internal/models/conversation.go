package models

import "time"

// ConversationMessage is the grading conversation collaborator's message log.
// This service only ever reads it, and only on the legacy completion fallback
// path for attempts that predate the progressive results ledger.
type ConversationMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AttemptID uint      `json:"attempt_id" gorm:"not null;index"`
	Role      string    `json:"role" gorm:"not null;size:32"`
	Content   string    `json:"content" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

const ConversationRoleAssistant = "assistant"
