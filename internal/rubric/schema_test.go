package rubric

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validTree() map[string]interface{} {
	reasoning := map[string]interface{}{}
	evaluation := map[string]interface{}{}
	for _, dimension := range Dimensions {
		reasoning[dimension] = "reasoning for " + dimension
		score := interface{}(int64(8))
		if dimension == DimensionActedOn {
			score = "N/A"
		}
		evaluation[dimension] = map[string]interface{}{
			"score":         score,
			"justification": "because",
		}
	}
	return map[string]interface{}{
		"reasoning":  reasoning,
		"evaluation": evaluation,
		"feedback":   "good review overall",
	}
}

func TestFromNormalizedAcceptsCompletePayload(t *testing.T) {
	output, err := FromNormalized(validTree())
	require.NoError(t, err)
	require.Len(t, output.Reasoning, len(Dimensions))
	require.Len(t, output.Evaluation, len(Dimensions))
	require.Equal(t, "good review overall", output.Feedback)
	require.True(t, output.Evaluation[DimensionActedOn].Score.NA)
	require.Equal(t, 8, output.Evaluation["Tone"].Score.Value)
}

func TestFromNormalizedRequiresEveryDimension(t *testing.T) {
	for _, dimension := range Dimensions {
		tree := validTree()
		delete(tree["evaluation"].(map[string]interface{}), dimension)

		_, err := FromNormalized(tree)
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		require.Contains(t, schemaErr.Fields, "evaluation."+dimension)
	}

	tree := validTree()
	delete(tree["reasoning"].(map[string]interface{}), "Helpfulness")
	_, err := FromNormalized(tree)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, []string{"reasoning.Helpfulness"}, schemaErr.Fields)
}

func TestFromNormalizedRejectsOutOfRangeScores(t *testing.T) {
	for _, bad := range []interface{}{int64(0), int64(11), 7.5, nil, true} {
		tree := validTree()
		tree["evaluation"].(map[string]interface{})["Tone"] = map[string]interface{}{
			"score":         bad,
			"justification": "because",
		}

		_, err := FromNormalized(tree)
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		require.Contains(t, schemaErr.Fields, "evaluation.Tone.score")
	}
}

func TestFromNormalizedScopesNotApplicableToActedOn(t *testing.T) {
	tree := validTree()
	tree["evaluation"].(map[string]interface{})["Tone"] = map[string]interface{}{
		"score":         "N/A",
		"justification": "because",
	}

	_, err := FromNormalized(tree)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, []string{"evaluation.Tone.score"}, schemaErr.Fields)
}

func TestFromNormalizedAcceptsIntegralFloatScores(t *testing.T) {
	tree := validTree()
	tree["evaluation"].(map[string]interface{})["Tone"] = map[string]interface{}{
		"score":         7.0,
		"justification": "because",
	}

	output, err := FromNormalized(tree)
	require.NoError(t, err)
	require.Equal(t, 7, output.Evaluation["Tone"].Score.Value)
}

func TestFromNormalizedRejectsBareScalars(t *testing.T) {
	_, err := FromNormalized("just a sentence")
	require.ErrorIs(t, err, ErrNotMappable)

	_, err = FromNormalized(int64(5))
	require.ErrorIs(t, err, ErrNotMappable)
}

func TestFromNormalizedAllowsNullReasoningAndFeedback(t *testing.T) {
	tree := validTree()
	tree["reasoning"].(map[string]interface{})["Tone"] = nil
	tree["feedback"] = nil

	output, err := FromNormalized(tree)
	require.NoError(t, err)
	require.Equal(t, "", output.Reasoning["Tone"])
	require.Equal(t, "", output.Feedback)
}

func TestOverallScoreSkipsNotApplicable(t *testing.T) {
	output, err := FromNormalized(validTree())
	require.NoError(t, err)

	// Twelve numeric dimensions all scored 8; Acted On is N/A.
	score, ok := OverallScore(output.Evaluation)
	require.True(t, ok)
	require.InDelta(t, 8.0, score, 0.001)

	_, ok = OverallScore(map[string]DimensionResult{
		DimensionActedOn: {Score: Score{NA: true}},
	})
	require.False(t, ok)
}
