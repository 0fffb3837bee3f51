package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InterviewStatus is the lifecycle state of an interview
type InterviewStatus string

const (
	StatusPending    InterviewStatus = "pending"
	StatusInProgress InterviewStatus = "in-progress"
	StatusCompleted  InterviewStatus = "completed"
	StatusFailed     InterviewStatus = "failed"
)

// DefaultQuestionsCount is used when an interview is created without an explicit count
const DefaultQuestionsCount = 5

// IsTerminal reports whether no further transitions are possible from s
func (s InterviewStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Interview pairs a candidate's resume with a job description and tracks question progress.
// The transcript and feedback are owned by the interview and referenced by id.
type Interview struct {
	ID                   string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID               string          `gorm:"type:uuid;not null;index" json:"user_id"`
	JobTitle             string          `gorm:"size:255;not null" json:"job_title"`
	JobDescription       string          `gorm:"type:text;not null" json:"job_description"`
	ResumeText           string          `gorm:"type:text;not null" json:"resume_text"`
	Status               InterviewStatus `gorm:"size:20;not null;default:'pending';index;check:status IN ('pending', 'in-progress', 'completed', 'failed')" json:"status"`
	StartTime            *time.Time      `json:"start_time,omitempty"`
	EndTime              *time.Time      `json:"end_time,omitempty"`
	QuestionsCount       int             `gorm:"not null;default:5" json:"questions_count"`
	CurrentQuestionIndex int             `gorm:"not null;default:0" json:"current_question_index"`
	TranscriptID         *string         `gorm:"type:uuid" json:"transcript_id,omitempty"`
	FeedbackID           *string         `gorm:"type:uuid" json:"feedback_id,omitempty"`
	FeedbackAttemptedAt  *time.Time      `json:"-"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (i *Interview) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// HasFeedback reports whether a feedback record has been linked
func (i *Interview) HasFeedback() bool {
	return i.FeedbackID != nil && *i.FeedbackID != ""
}

// InterviewDetails is the read model returned by the interview detail endpoint
type InterviewDetails struct {
	Interview  *Interview  `json:"interview"`
	Transcript *Transcript `json:"transcript,omitempty"`
	Feedback   *Feedback   `json:"feedback,omitempty"`
}

// InterviewStats represents aggregated statistics for a user
type InterviewStats struct {
	TotalInterviews     int64      `json:"total_interviews"`
	CompletedInterviews int64      `json:"completed_interviews"`
	AverageFitScore     float64    `json:"average_fit_score"`
	LastActivity        *time.Time `json:"last_activity"`
}
