package promoter

import (
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/githubclt"
	"github.com/simplesurance/stagepromote/internal/logfields"
)

// Candidate is an open pull request against the stage branch.
// The json representation is the input of the eligibility filter query.
type Candidate struct {
	Number     int                      `json:"number"`
	Title      string                   `json:"title"`
	URL        string                   `json:"url"`
	BaseBranch string                   `json:"base_branch"`
	HeadBranch string                   `json:"head_branch"`
	Labels     []string                 `json:"labels"`
	Files      []string                 `json:"files"`
	Checks     []*githubclt.CheckResult `json:"checks"`
	Reviews    []*githubclt.Review      `json:"reviews"`
	CreatedAt  time.Time                `json:"created_at"`

	// enriched is true when Files, Checks and Reviews were retrieved.
	enriched bool
}

func newCandidate(pr *githubclt.PullRequest) *Candidate {
	return &Candidate{
		Number:     pr.Number,
		Title:      pr.Title,
		URL:        pr.URL,
		BaseBranch: pr.BaseBranch,
		HeadBranch: pr.HeadBranch,
		Labels:     pr.Labels,
		CreatedAt:  pr.CreatedAt,
	}
}

func (c *Candidate) HasLabel(label string) bool {
	for _, l := range c.Labels {
		if l == label {
			return true
		}
	}

	return false
}

func (c *Candidate) LogFields() []zap.Field {
	return []zap.Field{
		logfields.PullRequest(c.Number),
		logfields.PullRequestTitle(c.Title),
	}
}
