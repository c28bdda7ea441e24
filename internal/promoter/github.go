package promoter

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/githubclt"
)

//go:generate mockgen -package mocks -destination mocks/mock_githubclient.go . GithubClient

type GithubClient interface {
	ListPullRequests(ctx context.Context, owner, repo, baseBranch string) githubclt.PRIterator
	PullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error)
	PullRequestReviews(ctx context.Context, owner, repo string, number int) ([]*githubclt.Review, error)
	CheckResults(ctx context.Context, owner, repo string, number int) ([]*githubclt.CheckResult, error)
	MergePullRequest(ctx context.Context, owner, repo string, number int, method string) error
	CompareCommits(ctx context.Context, owner, repo, base, head string) ([]string, error)
	PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]*githubclt.PullRequest, error)
	CreatePullRequest(ctx context.Context, owner, repo string, pr *githubclt.NewPullRequest) (*githubclt.PullRequest, error)
	UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
}

// Retryer is an interface used for running GithubClient methods repeatedly if
// they fail with a temporary error.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
}

// Notifier delivers a message to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}
