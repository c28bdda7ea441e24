package promoter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/githubclt"
	"github.com/simplesurance/stagepromote/internal/logfields"
	"github.com/simplesurance/stagepromote/internal/routines"
)

// listOpenPullRequests returns all open pull requests with the given base branch.
func (p *Promoter) listOpenPullRequests(ctx context.Context, baseBranch string) ([]*githubclt.PullRequest, error) {
	var result []*githubclt.PullRequest

	logF := []zap.Field{logfields.BaseBranch(baseBranch)}

	it := p.clt.ListPullRequests(ctx, p.cfg.RepositoryOwner, p.cfg.Repository, baseBranch)
	for {
		var pr *githubclt.PullRequest

		err := p.retryer.Run(ctx, func(context.Context) error {
			var err error
			pr, err = it.Next()
			return err
		}, logF)
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for base branch %q failed: %w", baseBranch, err)
		}

		if pr == nil { // iteration finished, no more results
			return result, nil
		}

		result = append(result, pr)
	}
}

// eligibleCandidates returns the open pull requests against the stage branch
// that can be merged, oldest first.
// Pull requests that do not pass all gates are logged and recorded in summary.
func (p *Promoter) eligibleCandidates(ctx context.Context, logger *zap.Logger, summary *RunSummary) ([]*Candidate, error) {
	prs, err := p.listOpenPullRequests(ctx, p.cfg.StageBranch)
	if err != nil {
		return nil, err
	}

	// evaluating the label first avoids retrieving details of pull
	// requests that are not ready
	var candidates []*Candidate
	for _, pr := range prs {
		c := newCandidate(pr)
		if !c.HasLabel(p.cfg.ReadyForStageLabel) {
			logger.Debug(
				"ignoring pull request, ready label is missing",
				append(c.LogFields(), logfields.Label(p.cfg.ReadyForStageLabel))...,
			)
			continue
		}

		candidates = append(candidates, c)
	}

	logger.Debug(
		"retrieving details of ready pull requests",
		zap.Int("open_pull_requests", len(prs)),
		zap.Int("ready_pull_requests", len(candidates)),
	)

	if err := p.enrich(ctx, candidates); err != nil {
		return nil, err
	}

	eligible := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		reason, ok := p.evaluateGates(ctx, logger, c)
		if !ok {
			summary.skip(reason, c.Number)
			continue
		}

		eligible = append(eligible, c)
	}

	sortOldestFirst(eligible)

	return eligible, nil
}

// enrich retrieves concurrently the changed files, check results and reviews
// of all candidates. When one retrieval fails, an error is returned.
func (p *Promoter) enrich(ctx context.Context, candidates []*Candidate) error {
	var errLock sync.Mutex
	var firstErr error

	recordErr := func(err error) {
		if err == nil {
			return
		}

		errLock.Lock()
		defer errLock.Unlock()

		if firstErr == nil {
			firstErr = err
		}
	}

	owner, repo := p.cfg.RepositoryOwner, p.cfg.Repository

	pool := routines.NewPool(p.cfg.FetchConcurrency)

	for _, c := range candidates {
		logF := c.LogFields()

		// every function writes a different field of c
		pool.Queue(func() {
			recordErr(p.retryer.Run(ctx, func(ctx context.Context) error {
				files, err := p.clt.PullRequestFiles(ctx, owner, repo, c.Number)
				if err != nil {
					return fmt.Errorf("retrieving files of pull request #%d failed: %w", c.Number, err)
				}

				c.Files = files
				return nil
			}, logF))
		})

		pool.Queue(func() {
			recordErr(p.retryer.Run(ctx, func(ctx context.Context) error {
				checks, err := p.clt.CheckResults(ctx, owner, repo, c.Number)
				if err != nil {
					return fmt.Errorf("retrieving check results of pull request #%d failed: %w", c.Number, err)
				}

				c.Checks = checks
				return nil
			}, logF))
		})

		pool.Queue(func() {
			recordErr(p.retryer.Run(ctx, func(ctx context.Context) error {
				reviews, err := p.clt.PullRequestReviews(ctx, owner, repo, c.Number)
				if err != nil {
					return fmt.Errorf("retrieving reviews of pull request #%d failed: %w", c.Number, err)
				}

				c.Reviews = reviews
				return nil
			}, logF))
		})
	}

	pool.Wait()

	if firstErr != nil {
		return firstErr
	}

	for _, c := range candidates {
		c.enriched = true
	}

	return nil
}

// evaluateGates returns true if c can be merged.
// The gates are evaluated in order, on the first failing one false and the
// reason is returned.
func (p *Promoter) evaluateGates(ctx context.Context, logger *zap.Logger, c *Candidate) (SkipReason, bool) {
	logger = logger.With(c.LogFields()...)

	if !c.enriched {
		logger.Warn(
			"skipping pull request, details are missing",
			logEventCandidateSkipped,
			logfields.Reason(string(SkipReasonIncompleteData)),
		)
		return SkipReasonIncompleteData, false
	}

	if failing := failingChecks(c.Checks, p.cfg.OwnCheckName); len(failing) > 0 {
		logger.Info(
			"skipping pull request due to failing checks",
			logEventCandidateSkipped,
			logfields.Reason(string(SkipReasonFailingChecks)),
			zap.Strings("failing_checks", failing),
		)
		return SkipReasonFailingChecks, false
	}

	if approvals := approvalCount(c.Reviews); approvals < p.cfg.RequiredApprovals {
		logger.Info(
			"skipping pull request due to insufficient approvals",
			logEventCandidateSkipped,
			logfields.Reason(string(SkipReasonInsufficientApprovals)),
			zap.Int("approvals", approvals),
			zap.Int("required_approvals", p.cfg.RequiredApprovals),
		)
		return SkipReasonInsufficientApprovals, false
	}

	if p.filterQuery != nil {
		match, err := p.filterQuery.Match(ctx, c)
		if err != nil {
			logger.Error(
				"skipping pull request, evaluating eligibility filter query failed",
				logEventCandidateSkipped,
				logfields.Reason(string(SkipReasonFilterQuery)),
				zap.Error(err),
			)
			return SkipReasonFilterQuery, false
		}

		if !match {
			logger.Info(
				"skipping pull request, eligibility filter query does not match",
				logEventCandidateSkipped,
				logfields.Reason(string(SkipReasonFilterQuery)),
				zap.Stringer("filter_query", p.filterQuery),
			)
			return SkipReasonFilterQuery, false
		}
	}

	return "", true
}

// failingChecks returns the names of checks that failed, ignoring the check
// named ownCheckName.
// The check of the job running the promoter would otherwise prevent all
// merges, it can only succeed after the merges happened.
func failingChecks(checks []*githubclt.CheckResult, ownCheckName string) []string {
	var result []string

	for _, c := range checks {
		if c.Name == ownCheckName {
			continue
		}

		if c.Conclusion == githubclt.ConclusionFailure {
			result = append(result, c.Name)
		}
	}

	return result
}

// approvalCount returns the number of reviews in the approved state.
func approvalCount(reviews []*githubclt.Review) int {
	var result int

	for _, r := range reviews {
		if r.State == githubclt.ReviewStateApproved {
			result++
		}
	}

	return result
}
