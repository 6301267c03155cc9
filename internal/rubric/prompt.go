package rubric

import (
	"fmt"
	"strings"
)

// Submission is the structured peer-review payload rendered into the prompt.
type Submission struct {
	CourseName     string
	AssignmentName string
	Round          int
	Scores         []ScoredAnswer
	OverallComment string
	// PriorReview holds the previous round's review text when Round > 1. It
	// gives the model the material needed to score the "Acted On" dimension.
	PriorReview string
}

// ScoredAnswer is a single rubric-question answer inside a submission.
type ScoredAnswer struct {
	Question      string
	Type          string
	MaxPoints     *float64
	AwardedPoints *float64
	Comment       string
}

const systemInstruction = "You are an expert reviewer. Read the given review carefully and evaluate it according to the following schema.\n\n" +
	"Your response MUST be a VALID JSON object that strictly follows this format:\n\n" +
	"{\n" +
	"  \"reasoning\": {\n" +
	"    \"Praise\": \"string\",\n" +
	"    \"Problems & Solutions\": \"string\",\n" +
	"    \"Tone\": \"string\",\n" +
	"    \"Localization\": \"string\",\n" +
	"    \"Helpfulness\": \"string\",\n" +
	"    \"Explanation\": \"string\",\n" +
	"    \"Acted On\": \"string\",\n" +
	"    \"Relevance\": \"string\",\n" +
	"    \"Consistency\": \"string\",\n" +
	"    \"Actionability\": \"string\",\n" +
	"    \"Factuality\": \"string\",\n" +
	"    \"Accessibility\": \"string\",\n" +
	"    \"Comprehensiveness\": \"string\"\n" +
	"  },\n" +
	"  \"evaluation\": {\n" +
	"    \"Praise\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Problems & Solutions\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Tone\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Localization\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Helpfulness\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Explanation\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Acted On\": {\"score\": \"int or N/A\", \"justification\": \"string\"},\n" +
	"    \"Relevance\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Consistency\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Actionability\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Factuality\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Accessibility\": {\"score\": int, \"justification\": \"string\"},\n" +
	"    \"Comprehensiveness\": {\"score\": int, \"justification\": \"string\"}\n" +
	"  },\n" +
	"  \"feedback\": \"string\"\n" +
	"}\n\n" +
	" STRICT RULES:\n" +
	"- Scores are integers from 1 to 10.\n" +
	"- Return ONLY valid JSON. No markdown, no explanations, no text before or after.\n" +
	"- Do not include ```json fences.\n" +
	"- Use double quotes for all keys and string values.\n" +
	"- \"Acted On\" compares this review against the previous round. If no previous round review is provided, set its score to \"N/A\".\n" +
	"- Do not summarize outside this JSON structure."

// BuildReviewText renders the structured submission into the free-text form
// stored on the record and sent to the model. The rendering is deterministic:
// identical submissions produce byte-identical text.
func BuildReviewText(submission Submission) string {
	b := strings.Builder{}

	if submission.CourseName != "" {
		fmt.Fprintf(&b, "Course: %s\n", submission.CourseName)
	}
	if submission.AssignmentName != "" {
		fmt.Fprintf(&b, "Assignment: %s\n", submission.AssignmentName)
	}
	if submission.Round > 0 {
		fmt.Fprintf(&b, "Review round: %d\n", submission.Round)
	}

	if len(submission.Scores) > 0 {
		b.WriteString("\nRubric responses:\n")
		for i, answer := range submission.Scores {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, answer.Type, answer.Question)
			b.WriteString("   Points: ")
			b.WriteString(formatPoints(answer.AwardedPoints, answer.MaxPoints))
			b.WriteString("\n")
			if answer.Comment != "" {
				fmt.Fprintf(&b, "   Comment: %s\n", answer.Comment)
			}
		}
	}

	if submission.OverallComment != "" {
		b.WriteString("\nOverall comment:\n")
		b.WriteString(submission.OverallComment)
		b.WriteString("\n")
	}

	if submission.Round > 1 && submission.PriorReview != "" {
		b.WriteString("\nPrevious round review (for \"Acted On\" comparison):\n")
		b.WriteString(submission.PriorReview)
		b.WriteString("\n")
	} else {
		b.WriteString("\nThis is a first-round review; no previous review exists. Score \"Acted On\" as \"N/A\".\n")
	}

	return b.String()
}

// BuildPrompt compiles the full instruction sent to the model for a single
// evaluation attempt. Pure function of its input.
func BuildPrompt(reviewText string) string {
	return systemInstruction + "\n\nReview to evaluate:\n" + strings.TrimSpace(reviewText) + "\n"
}

func formatPoints(awarded, max *float64) string {
	if awarded == nil {
		if max == nil {
			return "no score given"
		}
		return fmt.Sprintf("no score given (out of %s)", formatNumber(*max))
	}
	if max == nil {
		return formatNumber(*awarded)
	}
	return fmt.Sprintf("%s / %s", formatNumber(*awarded), formatNumber(*max))
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
