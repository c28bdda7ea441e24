package promoter

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/logfields"
)

// DryGithubClient is a GithubClient that does not merge pull requests.
// Merge operations are simulated and always succeed, all other operations are
// forwarded to the wrapped GithubClient.
type DryGithubClient struct {
	GithubClient
	logger *zap.Logger
}

func NewDryGithubClient(clt GithubClient, logger *zap.Logger) *DryGithubClient {
	return &DryGithubClient{
		GithubClient: clt,
		logger:       logger.Named("dry_github_client"),
	}
}

func (c *DryGithubClient) MergePullRequest(_ context.Context, owner, repo string, number int, method string) error {
	c.logger.Info(
		"simulated merging of pull request, pull request was not merged on github",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(number),
		zap.String("merge_method", method),
		logfields.Event("github_merge_simulated"),
	)

	return nil
}
