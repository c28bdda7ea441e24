package promoter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/logfields"
)

// mergeAll merges the candidates sequentially in the given order.
//
// A candidate that changes a file in claimed is skipped. The files of all
// other candidates are claimed before they are merged, also when the merge
// fails afterwards. The URLs of merged candidates are prepended to desc.
// A failed merge is logged and does not abort the remaining merges.
// When ctx is cancelled, the remaining candidates are not merged.
func (p *Promoter) mergeAll(
	ctx context.Context,
	logger *zap.Logger,
	candidates []*Candidate,
	claimed *ClaimedFileSet,
	desc *Description,
	summary *RunSummary,
) {
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			logger.Info(
				"stopping merges, execution was cancelled",
				logfields.Event("merges_cancelled"),
				zap.Int("remaining_pull_requests", len(candidates)-i),
				zap.Error(err),
			)

			return
		}

		logger := logger.With(c.LogFields()...)

		if overlap := claimed.Overlap(c.Files); len(overlap) > 0 {
			logger.Info(
				"skipping pull request due to overlap in files",
				logEventCandidateSkipped,
				logfields.Reason(string(SkipReasonFileOverlap)),
				logfields.Files(overlap),
			)
			summary.skip(SkipReasonFileOverlap, c.Number)

			continue
		}

		claimed.Claim(c.Files...)

		err := p.clt.MergePullRequest(ctx, p.cfg.RepositoryOwner, p.cfg.Repository, c.Number, p.cfg.MergeMethod)
		if err != nil {
			logger.Error(
				"merging pull request failed",
				logEventMergeFailed,
				zap.Error(err),
			)
			summary.MergeFailed = append(summary.MergeFailed, c.Number)
			metrics.MergesInc(mergeResultFailureVal)

			continue
		}

		if p.cfg.DryRun {
			metrics.MergesInc(mergeResultSimulatedVal)
		} else {
			metrics.MergesInc(mergeResultSuccessVal)
		}

		summary.Merged = append(summary.Merged, c.Number)
		desc.Prepend(c.URL)

		logger.Info(
			"pull request merged",
			logEventMerged,
			logfields.PullRequestURL(c.URL),
			zap.String("merge_method", p.cfg.MergeMethod),
		)

		p.notify(ctx, logger, mergedMsg(c))

		p.sleep(ctx, p.cfg.MergeDelay)
	}
}

func (p *Promoter) notify(ctx context.Context, logger *zap.Logger, msg string) {
	if err := p.notifier.Notify(ctx, msg); err != nil {
		logger.Warn(
			"sending notification failed",
			logEventNotifyFailed,
			zap.String("notification", msg),
			zap.Error(err),
		)
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
