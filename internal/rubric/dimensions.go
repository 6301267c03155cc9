package rubric

// Dimensions lists the rubric criteria in the order they appear in the
// evaluation prompt. Both the reasoning and evaluation sections of a valid
// LLM response must contain every one of these names.
var Dimensions = []string{
	"Praise",
	"Problems & Solutions",
	"Tone",
	"Localization",
	"Helpfulness",
	"Explanation",
	"Acted On",
	"Relevance",
	"Consistency",
	"Actionability",
	"Factuality",
	"Accessibility",
	"Comprehensiveness",
}

// DimensionActedOn is the only dimension whose score may be the literal "N/A".
// It compares the review against the previous round, which does not exist for
// first-round reviews.
const DimensionActedOn = "Acted On"
