package promoter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simplesurance/stagepromote/internal/githubclt"
)

func TestFilterQueryMatch(t *testing.T) {
	c := newCandidate(stagePR(7, 0, readyLabel, "documentation"))
	c.Files = []string{"docs/index.md"}
	c.Checks = []*githubclt.CheckResult{check("lint", githubclt.ConclusionSuccess)}
	c.Reviews = approvedBy("alice")

	testcases := []struct {
		query    string
		expected bool
	}{
		{query: `.number == 7`, expected: true},
		{query: `any(.labels[]; . == "documentation")`, expected: true},
		{query: `all(.files[]; startswith("docs/"))`, expected: true},
		{query: `any(.checks[]; .conclusion == "failure")`, expected: false},
		{query: `.reviews[0].reviewer == "bob"`, expected: false},
		{query: `.base_branch == "stage"`, expected: true},
	}

	for _, tc := range testcases {
		t.Run(tc.query, func(t *testing.T) {
			q, err := newFilterQuery(tc.query)
			require.NoError(t, err)

			match, err := q.Match(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, match)
		})
	}
}

func TestFilterQueryMatchRequiresSingleBool(t *testing.T) {
	c := newCandidate(stagePR(7, 0))

	for _, query := range []string{`.title`, `.labels[]`, `empty`, `error("fail")`} {
		t.Run(query, func(t *testing.T) {
			q, err := newFilterQuery(query)
			require.NoError(t, err)

			_, err = q.Match(context.Background(), c)
			assert.Error(t, err)
		})
	}
}

func TestNewFilterQueryInvalid(t *testing.T) {
	_, err := newFilterQuery(".title |")
	assert.Error(t, err)
}
