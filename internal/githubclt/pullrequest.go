package githubclt

import (
	"time"

	"github.com/google/go-github/v43/github"
)

// PullRequest contains the pull request fields that are relevant for promoting changes.
type PullRequest struct {
	Number     int
	Title      string
	URL        string
	Body       string
	BaseBranch string
	HeadBranch string
	HeadSHA    string
	Labels     []string
	CreatedAt  time.Time
}

// NewPullRequest describes a pull request that should be created.
type NewPullRequest struct {
	Title string
	Head  string
	Base  string
	Body  string
}

// ReviewState is the state of a pull request review, as reported by the GitHub REST API.
type ReviewState string

const (
	ReviewStateApproved         ReviewState = "APPROVED"
	ReviewStateChangesRequested ReviewState = "CHANGES_REQUESTED"
	ReviewStateCommented        ReviewState = "COMMENTED"
	ReviewStateDismissed        ReviewState = "DISMISSED"
	ReviewStatePending          ReviewState = "PENDING"
)

type Review struct {
	Reviewer string      `json:"reviewer"`
	State    ReviewState `json:"state"`
}

func toPullRequest(pr *github.PullRequest) *PullRequest {
	labels := make([]string, 0, len(pr.Labels))
	for _, l := range pr.Labels {
		labels = append(labels, l.GetName())
	}

	return &PullRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		URL:        pr.GetHTMLURL(),
		Body:       pr.GetBody(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		Labels:     labels,
		CreatedAt:  pr.GetCreatedAt(),
	}
}
