package promoter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/githubclt"
	"github.com/simplesurance/stagepromote/internal/logfields"
)

// SyncPullRequest is the open pull request that merges the stage into the
// production branch.
type SyncPullRequest struct {
	Number int
	URL    string
	Body   string
	Labels []string
	Files  []string
}

// testingStartedLabel returns the first label that starts with prefix.
func (s *SyncPullRequest) testingStartedLabel(prefix string) (string, bool) {
	for _, l := range s.Labels {
		if strings.HasPrefix(l, prefix) {
			return l, true
		}
	}

	return "", false
}

// lookupSyncPR returns the open pull request against the production branch
// that has the sync pull request title.
// If it does not exist, nil is returned.
func (p *Promoter) lookupSyncPR(ctx context.Context) (*SyncPullRequest, error) {
	prs, err := p.listOpenPullRequests(ctx, p.cfg.ProductionBranch)
	if err != nil {
		return nil, err
	}

	for _, pr := range prs {
		if pr.Title != p.cfg.SyncPRTitle {
			continue
		}

		var files []string
		err := p.retryer.Run(ctx, func(ctx context.Context) error {
			var err error
			files, err = p.clt.PullRequestFiles(ctx, p.cfg.RepositoryOwner, p.cfg.Repository, pr.Number)
			return err
		}, []zap.Field{logfields.PullRequest(pr.Number)})
		if err != nil {
			return nil, fmt.Errorf("retrieving files of sync pull request #%d failed: %w", pr.Number, err)
		}

		return &SyncPullRequest{
			Number: pr.Number,
			URL:    pr.URL,
			Body:   pr.Body,
			Labels: pr.Labels,
			Files:  files,
		}, nil
	}

	return nil, nil
}

// createSyncPR creates the sync pull request.
// All pull requests that are associated with commits that are in the stage
// but not in the production branch are added to desc, desc becomes the
// description of the new pull request.
// If the branches do not differ, no pull request is created and nil is
// returned.
func (p *Promoter) createSyncPR(ctx context.Context, logger *zap.Logger, desc *Description, summary *RunSummary) error {
	owner, repo := p.cfg.RepositoryOwner, p.cfg.Repository

	var shas []string
	err := p.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		shas, err = p.clt.CompareCommits(ctx, owner, repo, p.cfg.ProductionBranch, p.cfg.StageBranch)
		return err
	}, nil)
	if err != nil {
		return fmt.Errorf("comparing %s with %s failed: %w", p.cfg.StageBranch, p.cfg.ProductionBranch, err)
	}

	if len(shas) == 0 {
		logger.Info("no new commits, no sync pull request opened", logEventSyncPRNothingToDo)
		summary.SyncPRAction = SyncPRActionNoCommits
		return nil
	}

	for _, sha := range shas {
		var prs []*githubclt.PullRequest

		err := p.retryer.Run(ctx, func(ctx context.Context) error {
			var err error
			prs, err = p.clt.PullRequestsForCommit(ctx, owner, repo, sha)
			return err
		}, []zap.Field{logfields.Commit(sha)})
		if err != nil {
			return fmt.Errorf("retrieving pull requests associated with commit %s failed: %w", sha, err)
		}

		for _, pr := range prs {
			if pr.URL == "" {
				continue
			}

			desc.Prepend(pr.URL)
		}
	}

	pr, err := p.clt.CreatePullRequest(ctx, owner, repo, &githubclt.NewPullRequest{
		Title: p.cfg.SyncPRTitle,
		Head:  p.cfg.StageBranch,
		Base:  p.cfg.ProductionBranch,
		Body:  desc.String(),
	})
	if err != nil {
		if errors.Is(err, githubclt.ErrNoCommits) {
			logger.Info("no new commits, no sync pull request opened", logEventSyncPRNothingToDo, zap.Error(err))
			summary.SyncPRAction = SyncPRActionNoCommits
			return nil
		}

		return fmt.Errorf("creating sync pull request failed: %w", err)
	}

	summary.SyncPRAction = SyncPRActionCreated
	summary.SyncPRNumber = pr.Number

	logger.Info(
		"sync pull request created",
		logEventSyncPRCreated,
		logfields.PullRequest(pr.Number),
		logfields.PullRequestURL(pr.URL),
	)

	err = p.clt.CreateIssueComment(ctx, owner, repo, pr.Number, testingCanStartComment(p.cfg.TeamMentions))
	if err != nil {
		return fmt.Errorf("creating comment on sync pull request #%d failed: %w", pr.Number, err)
	}

	p.notify(ctx, logger, openedSyncPRMsg(pr.URL, pr.Number))

	return nil
}

// updateSyncPR replaces the body of the sync pull request with desc, if it changed.
func (p *Promoter) updateSyncPR(ctx context.Context, logger *zap.Logger, syncPR *SyncPullRequest, desc *Description, summary *RunSummary) error {
	summary.SyncPRNumber = syncPR.Number

	if !desc.Changed() {
		logger.Debug("sync pull request description is uptodate", logfields.PullRequest(syncPR.Number))
		summary.SyncPRAction = SyncPRActionUnchanged
		return nil
	}

	err := p.clt.UpdatePullRequestBody(ctx, p.cfg.RepositoryOwner, p.cfg.Repository, syncPR.Number, desc.String())
	if err != nil {
		return fmt.Errorf("updating description of sync pull request #%d failed: %w", syncPR.Number, err)
	}

	summary.SyncPRAction = SyncPRActionUpdated

	logger.Info(
		"sync pull request description updated",
		logEventSyncPRUpdated,
		logfields.PullRequest(syncPR.Number),
		logfields.PullRequestURL(syncPR.URL),
	)

	return nil
}
