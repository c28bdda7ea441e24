// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v43/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/stagepromote/internal/logfields"
	"github.com/simplesurance/stagepromote/internal/promerr"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

const perPage = 100

// ErrNoCommits is returned when a pull request can not be created because the
// head branch contains no commits that are missing in the base branch.
var ErrNoCommits = errors.New("no commits between base and head branch")

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return a promerr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// PullRequestFiles returns the paths of all files that are changed by the pull request.
func (clt *Client) PullRequestFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	var result []string

	opts := github.ListOptions{PerPage: perPage}
	for {
		files, resp, err := clt.restClt.PullRequests.ListFiles(ctx, owner, repo, number, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, f := range files {
			result = append(result, f.GetFilename())
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// PullRequestReviews returns the submitted reviews of a pull request in
// chronological order.
func (clt *Client) PullRequestReviews(ctx context.Context, owner, repo string, number int) ([]*Review, error) {
	var result []*Review

	opts := github.ListOptions{PerPage: perPage}
	for {
		reviews, resp, err := clt.restClt.PullRequests.ListReviews(ctx, owner, repo, number, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, r := range reviews {
			result = append(result, &Review{
				Reviewer: r.GetUser().GetLogin(),
				State:    ReviewState(r.GetState()),
			})
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// MergePullRequest merges a pull request into it's base branch.
// method is one of "merge", "squash" or "rebase".
func (clt *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, method string) error {
	res, _, err := clt.restClt.PullRequests.Merge(
		ctx, owner, repo, number, "",
		&github.PullRequestOptions{MergeMethod: method},
	)
	if err != nil {
		return clt.wrapRetryableErrors(err)
	}

	if !res.GetMerged() {
		return fmt.Errorf("github did not merge the pull request: %s", res.GetMessage())
	}

	clt.logger.Debug(
		"pull request merged",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(number),
		logfields.Commit(res.GetSHA()),
		logfields.Event("github_pull_request_merged"),
	)

	return nil
}

// CompareCommits returns the SHAs of the commits that are in head but not in
// base. The commits are ordered from oldest to newest.
func (clt *Client) CompareCommits(ctx context.Context, owner, repo, base, head string) ([]string, error) {
	var result []string

	opts := github.ListOptions{PerPage: perPage}
	for {
		cmp, resp, err := clt.restClt.Repositories.CompareCommits(ctx, owner, repo, base, head, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, c := range cmp.Commits {
			result = append(result, c.GetSHA())
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// PullRequestsForCommit returns the pull requests that are associated with
// a commit.
func (clt *Client) PullRequestsForCommit(ctx context.Context, owner, repo, sha string) ([]*PullRequest, error) {
	var result []*PullRequest

	opts := github.PullRequestListOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		prs, resp, err := clt.restClt.PullRequests.ListPullRequestsWithCommit(ctx, owner, repo, sha, &opts)
		if err != nil {
			return nil, clt.wrapRetryableErrors(err)
		}

		for _, pr := range prs {
			result = append(result, toPullRequest(pr))
		}

		if resp.NextPage == 0 {
			return result, nil
		}

		opts.Page = resp.NextPage
	}
}

// CreatePullRequest creates a pull request.
// If the head branch does not contain any commits that are not in the base
// branch, ErrNoCommits is returned.
func (clt *Client) CreatePullRequest(ctx context.Context, owner, repo string, newPR *NewPullRequest) (*PullRequest, error) {
	pr, _, err := clt.restClt.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: &newPR.Title,
		Head:  &newPR.Head,
		Base:  &newPR.Base,
		Body:  &newPR.Body,
	})
	if err != nil {
		if isNoCommitsErr(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoCommits, err)
		}

		return nil, clt.wrapRetryableErrors(err)
	}

	return toPullRequest(pr), nil
}

func isNoCommitsErr(err error) bool {
	const noCommitsMsg = "No commits between"

	var respErr *github.ErrorResponse
	if !errors.As(err, &respErr) {
		return false
	}

	if respErr.Response == nil || respErr.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}

	if strings.Contains(respErr.Message, noCommitsMsg) {
		return true
	}

	for _, e := range respErr.Errors {
		if strings.Contains(e.Message, noCommitsMsg) {
			return true
		}
	}

	return false
}

// UpdatePullRequestBody replaces the description of a pull request.
func (clt *Client) UpdatePullRequestBody(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := clt.restClt.PullRequests.Edit(ctx, owner, repo, number, &github.PullRequest{Body: &body})
	return clt.wrapRetryableErrors(err)
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

type PRIterator interface {
	Next() (*PullRequest, error)
}

type PRIter struct {
	clt *Client

	ctx   context.Context
	owner string
	repo  string

	baseBranch    string
	sortOrder     string
	sortDirection string

	unseen []*PullRequest

	nextPage int
	finished bool
}

// Next returns the next pullRequest.
// When the last result was returned a nil PullRequest is returned.
func (it *PRIter) Next() (*PullRequest, error) {
	if len(it.unseen) > 0 {
		result := it.unseen[0]
		it.unseen = it.unseen[1:]

		return result, nil
	}

	if it.finished {
		return nil, nil
	}

	prs, resp, err := it.clt.restClt.PullRequests.List(it.ctx, it.owner, it.repo, &github.PullRequestListOptions{
		State:     "open",
		Base:      it.baseBranch,
		Sort:      it.sortOrder,
		Direction: it.sortDirection,
		ListOptions: github.ListOptions{
			Page:    it.nextPage,
			PerPage: perPage,
		},
	})
	if err != nil {
		return nil, it.clt.wrapRetryableErrors(err)
	}

	if resp.NextPage == 0 || len(prs) == 0 {
		it.finished = true
	} else {
		it.nextPage = resp.NextPage
	}

	it.unseen = make([]*PullRequest, 0, len(prs))
	for _, pr := range prs {
		it.unseen = append(it.unseen, toPullRequest(pr))
	}

	return it.Next()
}

// ListPullRequests returns an iterator for receiving all open pull requests
// with the given base branch, newest first.
func (clt *Client) ListPullRequests(ctx context.Context, owner, repo, baseBranch string) PRIterator { // interface is returned to make the method mockable
	return &PRIter{
		clt:           clt,
		ctx:           ctx,
		owner:         owner,
		repo:          repo,
		baseBranch:    baseBranch,
		sortOrder:     "created",
		sortDirection: "desc",
		nextPage:      1,
	}
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return promerr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.AbuseRateLimitError:
		clt.logger.Info(
			"secondary rate limit exceeded",
			logfields.Event("github_api_secondary_rate_limit_exceeded"),
			zap.Duration("github_api_retry_after", v.GetRetryAfter()),
		)

		return promerr.NewRetryableError(err, time.Now().Add(v.GetRetryAfter()))

	case *github.ErrorResponse:
		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return promerr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return promerr.NewRetryableAnytimeError(err)
	}

	return err
}
