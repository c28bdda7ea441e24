package githubclt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

// Conclusion is the result of a finished CI job, in lowercase like the
// GitHub REST API reports check run conclusions.
// Jobs that did not finish yet have the ConclusionPending value.
type Conclusion string

const (
	ConclusionPending        Conclusion = ""
	ConclusionSuccess        Conclusion = "success"
	ConclusionFailure        Conclusion = "failure"
	ConclusionNeutral        Conclusion = "neutral"
	ConclusionCancelled      Conclusion = "cancelled"
	ConclusionSkipped        Conclusion = "skipped"
	ConclusionTimedOut       Conclusion = "timed_out"
	ConclusionActionRequired Conclusion = "action_required"
	ConclusionStale          Conclusion = "stale"
	ConclusionStartupFailure Conclusion = "startup_failure"
)

// CheckResult is the result of a GitHub check run or commit status of a
// pull request's head commit.
type CheckResult struct {
	Name       string     `json:"name"`
	Conclusion Conclusion `json:"conclusion"`
}

// CheckResults returns the results of all check runs and commit statuses
// reported for the head commit of a pull request.
func (clt *Client) CheckResults(ctx context.Context, owner, repo string, prNumber int) ([]*CheckResult, error) {
	queryResult, err := clt.statusCheckRollup(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	return toCheckResults(queryResult.CheckRuns, queryResult.StatusContext)
}

func toCheckResults(checkRuns []*queryCheckStatus, commitStatuses []*queryStatusContext) ([]*CheckResult, error) {
	result := make([]*CheckResult, 0, len(checkRuns)+len(commitStatuses))

	for _, run := range checkRuns {
		conclusion, err := checkRunConclusion(run.Status, run.Conclusion)
		if err != nil {
			return nil, fmt.Errorf("converting checkRun %q conclusion failed: %w", run.Name, err)
		}

		result = append(result, &CheckResult{Name: run.Name, Conclusion: conclusion})
	}

	for _, commitStatus := range commitStatuses {
		conclusion, err := statusContextConclusion(commitStatus.State)
		if err != nil {
			return nil, fmt.Errorf("converting %q status context conclusion failed: %w",
				commitStatus.Context, err)
		}

		result = append(result, &CheckResult{Name: commitStatus.Context, Conclusion: conclusion})
	}

	return result, nil
}

func checkRunConclusion(status githubv4.CheckStatusState, conclusion githubv4.CheckConclusionState) (Conclusion, error) {
	switch status {
	case githubv4.CheckStatusStateInProgress,
		githubv4.CheckStatusStatePending,
		githubv4.CheckStatusStateQueued,
		githubv4.CheckStatusStateRequested,
		githubv4.CheckStatusStateWaiting:
		return ConclusionPending, nil

	case githubv4.CheckStatusStateCompleted:
		if conclusion == "" {
			return "", errors.New("completed check run has no conclusion")
		}

		return Conclusion(strings.ToLower(string(conclusion))), nil

	default:
		return "", fmt.Errorf("unsupported status value: %q", status)
	}
}

func statusContextConclusion(state githubv4.StatusState) (Conclusion, error) {
	switch state {
	case githubv4.StatusStateError,
		githubv4.StatusStateFailure:
		return ConclusionFailure, nil

	case githubv4.StatusStateExpected,
		githubv4.StatusStatePending:
		return ConclusionPending, nil

	case githubv4.StatusStateSuccess:
		return ConclusionSuccess, nil

	default:
		return "", fmt.Errorf("unsupported status state value: %q", state)
	}
}

type queryCheckStatus struct {
	Name       string
	Conclusion githubv4.CheckConclusionState
	Status     githubv4.CheckStatusState
}

type queryStatusContext struct {
	State   githubv4.StatusState
	Context string
}

type queryStatusCheckRollupResult struct {
	CheckRuns     []*queryCheckStatus
	StatusContext []*queryStatusContext
	Commit        string
}

func (clt *Client) statusCheckRollup(ctx context.Context, owner, repo string, prNumber int) (*queryStatusCheckRollupResult, error) {
	type graphQLQueryStatusCheckRollup struct {
		Repository struct {
			PullRequest struct {
				Commits struct {
					Nodes []struct {
						Commit struct {
							Oid               string
							StatusCheckRollup struct {
								Contexts struct {
									PageInfo struct {
										EndCursor   string
										HasNextPage bool
									}
									Edges []struct {
										Node struct {
											CheckRun      queryCheckStatus   `graphql:"... on CheckRun"`
											StatusContext queryStatusContext `graphql:"... on StatusContext"`
										}
									}
								} `graphql:"contexts(first: $contextsFirst, after: $contextsAfter)"`
							}
						}
					}
				} `graphql:"commits(last: $commitsLast)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $name)"`
	}

	var prHEADCommitID string
	var result queryStatusCheckRollupResult

	vars := map[string]any{
		"owner":         githubv4.String(owner),
		"name":          githubv4.String(repo),
		"number":        githubv4.Int(prNumber),
		"commitsLast":   githubv4.Int(1),
		"contextsFirst": githubv4.Int(100),
		"contextsAfter": (*githubv4.String)(nil),
	}

	for {
		var q graphQLQueryStatusCheckRollup

		err := clt.graphQLClt.Query(ctx, &q, vars)
		if err != nil {
			return nil, err
		}

		if len(q.Repository.PullRequest.Commits.Nodes) == 0 {
			return nil, errors.New("pull request has no commits")
		}

		commitsNode := q.Repository.PullRequest.Commits.Nodes[0].Commit

		if prHEADCommitID == "" {
			prHEADCommitID = commitsNode.Oid
		} else if prHEADCommitID != commitsNode.Oid {
			// the pull request was pushed to while paging,
			// start from the beginning
			vars["contextsAfter"] = (*githubv4.String)(nil)
			prHEADCommitID = ""
			result = queryStatusCheckRollupResult{}

			continue
		}

		for _, edge := range commitsNode.StatusCheckRollup.Contexts.Edges {
			node := edge.Node
			if node.CheckRun.Name != "" && node.StatusContext.Context != "" {
				return nil, fmt.Errorf("internal error: node contains checkRun and context, expecting only one")
			}

			if node.CheckRun.Name != "" {
				checkRun := node.CheckRun
				result.CheckRuns = append(result.CheckRuns, &checkRun)
				continue
			}

			statusContext := node.StatusContext
			result.StatusContext = append(result.StatusContext, &statusContext)
		}

		pageInfo := commitsNode.StatusCheckRollup.Contexts.PageInfo
		if !pageInfo.HasNextPage {
			result.Commit = prHEADCommitID

			return &result, nil
		}

		if pageInfo.EndCursor == "" {
			return nil, errors.New("retrieving all contexts failed, HasNextPage is true, expected non-empty EndCursor")
		}

		vars["contextsAfter"] = githubv4.String(pageInfo.EndCursor)
	}
}
