package models

// Database schema overview:
// 1. users - cookie-based authentication
// 2. refresh_tokens - rotating refresh tokens per user
// 3. interviews - one simulated interview, owned by a user
// 4. transcripts - one per interview, flips is_complete when the interview completes
// 5. transcript_messages - ordered turns of a transcript
// 6. feedbacks - at most one per interview, immutable once written
// 7. skill_assessments - per-skill ratings of a feedback

// All returns every model managed by migrations, in dependency order
func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&Interview{},
		&Transcript{},
		&TranscriptMessage{},
		&Feedback{},
		&SkillAssessment{},
	}
}
