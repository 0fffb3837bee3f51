package interview

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/krshsl/nora/models"
)

// ParserVersion identifies the heading and rating rules applied by ExtractFeedback.
// It is stored with every feedback record so results can be traced to the rule set.
const ParserVersion = "heuristic-v1"

const (
	DefaultFitScore  = 70
	fallbackTextSize = 500
)

var (
	sectionSplit = regexp.MustCompile(`\n\d+\.\s+`)

	strengthsHeading       = regexp.MustCompile(`(?i)strengths?:`)
	weaknessesHeading      = regexp.MustCompile(`(?i)(?:weaknesses?|areas? for improvement):`)
	skillsHeading          = regexp.MustCompile(`(?i)skill assessments?:`)
	jobFitHeading          = regexp.MustCompile(`(?i)job fit`)
	recommendHeading       = regexp.MustCompile(`(?i)recommend`)
	recommendationsHeading = regexp.MustCompile(`(?i)recommend(?:ations?|ed next steps):`)

	fitScorePattern = regexp.MustCompile(`(?i)job fit(?:\s+score)?(?::|\s+is|\s+-)\s*([0-9]{1,3})`)
	ratingToken     = regexp.MustCompile(`[1-5]\s*/\s*5|[1-5]\.0`)
	skillLine       = regexp.MustCompile(`^(.*?)(?::|-)?\s*([1-5](?:\.[0-9])?)\s*(?:/\s*5)?`)
	bullet          = regexp.MustCompile(`[-•*]\s+`)
	numbering       = regexp.MustCompile(`\s*\n\s*\d+\.?\s*$`)
)

// SkillRating is one extracted skill assessment
type SkillRating struct {
	Skill   string `json:"skill"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// ExtractedFeedback is the structured form of a free-text evaluation
type ExtractedFeedback struct {
	OverallAssessment string        `json:"overall_assessment"`
	Strengths         []string      `json:"strengths"`
	Weaknesses        []string      `json:"weaknesses"`
	Skills            []SkillRating `json:"skill_assessments"`
	FitScore          int           `json:"fit_score"`
	Recommendations   []string      `json:"recommendations"`
}

// ToFeedback converts the extraction into a feedback record stamped with generatedAt
func (e ExtractedFeedback) ToFeedback(generatedAt time.Time) *models.Feedback {
	skills := make([]models.SkillAssessment, 0, len(e.Skills))
	for _, s := range e.Skills {
		skills = append(skills, models.SkillAssessment{Skill: s.Skill, Rating: s.Rating, Comment: s.Comment})
	}
	return &models.Feedback{
		OverallAssessment: e.OverallAssessment,
		Strengths:         e.Strengths,
		Weaknesses:        e.Weaknesses,
		SkillAssessments:  skills,
		FitScore:          e.FitScore,
		Recommendations:   e.Recommendations,
		ParserVersion:     ParserVersion,
		GeneratedAt:       generatedAt,
	}
}

// ExtractFeedback parses model-written evaluation text. It never fails: each section degrades
// to an empty value when its heading is missing, and any internal failure yields the fallback
// (the first 500 characters as the overall assessment, empty lists, the default fit score).
func ExtractFeedback(text string) (out ExtractedFeedback) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feedback extraction failed, using fallback", "panic", r)
			out = fallbackFeedback(text)
		}
	}()

	out = ExtractedFeedback{
		OverallAssessment: overallAssessment(text),
		Strengths:         []string{},
		Weaknesses:        []string{},
		Skills:            []SkillRating{},
		FitScore:          DefaultFitScore,
		Recommendations:   []string{},
	}

	if body, ok := section(text, strengthsHeading, weaknessesHeading); ok {
		out.Strengths = splitBullets(body)
	}
	if body, ok := section(text, weaknessesHeading, skillsHeading, jobFitHeading, recommendHeading); ok {
		out.Weaknesses = splitBullets(body)
	}
	if body, ok := section(text, skillsHeading, jobFitHeading, recommendHeading); ok {
		out.Skills = parseSkills(body)
	}
	if m := fitScorePattern.FindStringSubmatch(text); m != nil {
		score, err := strconv.Atoi(m[1])
		if err == nil {
			out.FitScore = min(max(score, 0), 100)
		}
	}
	if body, ok := section(text, recommendationsHeading); ok {
		out.Recommendations = splitBullets(body)
	}
	return out
}

func fallbackFeedback(text string) ExtractedFeedback {
	return ExtractedFeedback{
		OverallAssessment: truncate(text, fallbackTextSize),
		Strengths:         []string{},
		Weaknesses:        []string{},
		Skills:            []SkillRating{},
		FitScore:          DefaultFitScore,
		Recommendations:   []string{},
	}
}

func overallAssessment(text string) string {
	for _, s := range sectionSplit.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return truncate(text, fallbackTextSize)
}

// section returns the text following the first match of start, up to the earliest match of
// any of ends or the end of text.
func section(text string, start *regexp.Regexp, ends ...*regexp.Regexp) (string, bool) {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	cut := len(body)
	for _, end := range ends {
		if l := end.FindStringIndex(body); l != nil && l[0] < cut {
			cut = l[0]
		}
	}
	return body[:cut], true
}

func splitBullets(body string) []string {
	items := []string{}
	for _, part := range bullet.Split(body, -1) {
		part = strings.TrimSpace(numbering.ReplaceAllString(part, ""))
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return items
}

func parseSkills(body string) []SkillRating {
	skills := []SkillRating{}
	for _, line := range strings.Split(body, "\n") {
		if !ratingToken.MatchString(line) {
			continue
		}
		m := skillLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.Trim(m[1], " \t-•*_#")
		if name == "" {
			continue
		}
		// the rating group starts with a single digit in 1..5
		skills = append(skills, SkillRating{Skill: name, Rating: int(m[2][0] - '0')})
	}
	return skills
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
