package githubclt

import (
	"testing"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCheckResults(t *testing.T) {
	results, err := toCheckResults(
		[]*queryCheckStatus{
			{
				Name:       "merge-to-stage",
				Status:     githubv4.CheckStatusStateInProgress,
				Conclusion: "",
			},
			{
				Name:       "unit-tests",
				Status:     githubv4.CheckStatusStateCompleted,
				Conclusion: githubv4.CheckConclusionStateFailure,
			},
			{
				Name:       "lint",
				Status:     githubv4.CheckStatusStateCompleted,
				Conclusion: githubv4.CheckConclusionStateTimedOut,
			},
		},
		[]*queryStatusContext{
			{Context: "ci/jenkins", State: githubv4.StatusStateError},
			{Context: "ci/deploy-preview", State: githubv4.StatusStateSuccess},
			{Context: "ci/pending", State: githubv4.StatusStateExpected},
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []*CheckResult{
		{Name: "merge-to-stage", Conclusion: ConclusionPending},
		{Name: "unit-tests", Conclusion: ConclusionFailure},
		{Name: "lint", Conclusion: ConclusionTimedOut},
		{Name: "ci/jenkins", Conclusion: ConclusionFailure},
		{Name: "ci/deploy-preview", Conclusion: ConclusionSuccess},
		{Name: "ci/pending", Conclusion: ConclusionPending},
	}, results)
}

func TestToCheckResults_unsupportedStatus(t *testing.T) {
	_, err := toCheckResults(
		[]*queryCheckStatus{{Name: "x", Status: "UNKNOWN"}},
		nil,
	)
	require.Error(t, err)
}

func TestToCheckResults_completedWithoutConclusion(t *testing.T) {
	_, err := toCheckResults(
		[]*queryCheckStatus{{Name: "x", Status: githubv4.CheckStatusStateCompleted}},
		nil,
	)
	require.Error(t, err)
}
