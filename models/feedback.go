package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Feedback is the structured evaluation derived from a completed interview's transcript.
// It is written once and never updated.
type Feedback struct {
	ID                string            `gorm:"type:uuid;primaryKey" json:"id"`
	InterviewID       string            `gorm:"type:uuid;not null;uniqueIndex" json:"interview_id"`
	OverallAssessment string            `gorm:"type:text" json:"overall_assessment"`
	Strengths         []string          `gorm:"serializer:json;type:text" json:"strengths"`
	Weaknesses        []string          `gorm:"serializer:json;type:text" json:"weaknesses"`
	SkillAssessments  []SkillAssessment `gorm:"foreignKey:FeedbackID;constraint:OnDelete:CASCADE" json:"skill_assessments"`
	FitScore          int               `gorm:"not null;check:fit_score BETWEEN 0 AND 100" json:"fit_score"`
	Recommendations   []string          `gorm:"serializer:json;type:text" json:"recommendations"`
	ParserVersion     string            `gorm:"size:32" json:"parser_version"`
	GeneratedAt       time.Time         `gorm:"not null" json:"generated_at"`
	CreatedAt         time.Time         `json:"created_at"`
}

func (f *Feedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// SkillAssessment rates one skill on a 1-5 scale
type SkillAssessment struct {
	ID         string `gorm:"type:uuid;primaryKey" json:"-"`
	FeedbackID string `gorm:"type:uuid;not null;index" json:"-"`
	Position   int    `gorm:"not null" json:"-"`
	Skill      string `gorm:"type:text;not null" json:"skill"`
	Rating     int    `gorm:"not null;check:rating BETWEEN 1 AND 5" json:"rating"`
	Comment    string `gorm:"type:text" json:"comment,omitempty"`
}

func (s *SkillAssessment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// FeedbackSummary is a feedback row joined with the job title of its interview
type FeedbackSummary struct {
	Feedback
	JobTitle string `json:"job_title"`
}
