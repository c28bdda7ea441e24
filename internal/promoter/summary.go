package promoter

import (
	"sort"
	"time"

	"go.uber.org/zap"
)

type RunResult string

const (
	RunResultSuccess        RunResult = "success"
	RunResultBlackout       RunResult = "blackout"
	RunResultTestingStarted RunResult = "testing_started"
	RunResultFailed         RunResult = "failed"
)

// SkipReason describes why a pull request was not merged.
type SkipReason string

const (
	SkipReasonFailingChecks         SkipReason = "failing_checks"
	SkipReasonInsufficientApprovals SkipReason = "insufficient_approvals"
	SkipReasonFilterQuery           SkipReason = "filter_query_mismatch"
	SkipReasonFileOverlap           SkipReason = "file_overlap"
	SkipReasonIncompleteData        SkipReason = "incomplete_data"
)

type SyncPRAction string

const (
	SyncPRActionNone      SyncPRAction = "none"
	SyncPRActionCreated   SyncPRAction = "created"
	SyncPRActionUpdated   SyncPRAction = "updated"
	SyncPRActionUnchanged SyncPRAction = "unchanged"
	SyncPRActionNoCommits SyncPRAction = "no_commits"
)

// RunSummary describes the outcome of a run.
type RunSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Result    RunResult
	// Err is the error that caused the run to fail.
	Err error

	// Merged contains the numbers of merged pull requests in merge order.
	Merged []int
	// MergeFailed contains the numbers of pull requests for which the
	// merge operation failed.
	MergeFailed []int
	// Skipped contains the numbers of pull requests that were not merged, by reason.
	Skipped map[SkipReason][]int

	SyncPRAction SyncPRAction
	SyncPRNumber int
}

func newRunSummary(runID string, startTime time.Time) *RunSummary {
	return &RunSummary{
		RunID:        runID,
		StartTime:    startTime,
		Result:       RunResultSuccess,
		Skipped:      map[SkipReason][]int{},
		SyncPRAction: SyncPRActionNone,
	}
}

func (s *RunSummary) skip(reason SkipReason, prNumber int) {
	s.Skipped[reason] = append(s.Skipped[reason], prNumber)
	metrics.SkippedInc(reason)
}

// SkippedCount returns the number of skipped pull requests.
func (s *RunSummary) SkippedCount() int {
	var result int

	for _, prs := range s.Skipped {
		result += len(prs)
	}

	return result
}

func (s *RunSummary) LogFields() []zap.Field {
	fields := []zap.Field{
		zap.String("run_result", string(s.Result)),
		zap.Duration("run_duration", s.EndTime.Sub(s.StartTime)),
		zap.Ints("run.merged", s.Merged),
		zap.Ints("run.merge_failed", s.MergeFailed),
		zap.Int("run.skipped", s.SkippedCount()),
		zap.String("run.sync_pr_action", string(s.SyncPRAction)),
	}

	reasons := make([]string, 0, len(s.Skipped))
	for reason := range s.Skipped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)

	for _, reason := range reasons {
		fields = append(fields, zap.Ints("run.skipped."+reason, s.Skipped[SkipReason(reason)]))
	}

	if s.SyncPRNumber != 0 {
		fields = append(fields, zap.Int("run.sync_pr", s.SyncPRNumber))
	}

	return fields
}
