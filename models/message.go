package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRole identifies the author of a transcript message
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleAssistant MessageRole = "assistant"
	RoleUser      MessageRole = "user"
)

// Transcript is the ordered message log of one interview.
// Messages are append-only while the interview is active.
type Transcript struct {
	ID          string              `gorm:"type:uuid;primaryKey" json:"id"`
	InterviewID string              `gorm:"type:uuid;not null;uniqueIndex" json:"interview_id"`
	IsComplete  bool                `gorm:"not null;default:false" json:"is_complete"`
	Messages    []TranscriptMessage `gorm:"foreignKey:TranscriptID;constraint:OnDelete:CASCADE" json:"messages"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (t *Transcript) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// VisibleMessages returns the messages shown to the candidate; system scaffolding is omitted
func (t *Transcript) VisibleMessages() []TranscriptMessage {
	visible := make([]TranscriptMessage, 0, len(t.Messages))
	for _, m := range t.Messages {
		if m.Role == RoleSystem {
			continue
		}
		visible = append(visible, m)
	}
	return visible
}

// CountRole returns how many messages in the transcript have the given role
func (t *Transcript) CountRole(role MessageRole) int {
	n := 0
	for _, m := range t.Messages {
		if m.Role == role {
			n++
		}
	}
	return n
}

// TranscriptMessage is a single turn in a transcript
type TranscriptMessage struct {
	ID           string      `gorm:"type:uuid;primaryKey" json:"id"`
	TranscriptID string      `gorm:"type:uuid;not null;index:idx_transcript_position,priority:1" json:"transcript_id"`
	Position     int         `gorm:"not null;index:idx_transcript_position,priority:2" json:"position"`
	Role         MessageRole `gorm:"size:20;not null;check:role IN ('system', 'assistant', 'user')" json:"role"`
	Content      string      `gorm:"type:text;not null" json:"content"`
	Timestamp    time.Time   `gorm:"not null" json:"timestamp"`
}

func (m *TranscriptMessage) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// NewMessage builds a message stamped with the current time
func NewMessage(role MessageRole, content string) *TranscriptMessage {
	return &TranscriptMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
