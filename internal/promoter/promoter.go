package promoter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/blackout"
	"github.com/simplesurance/stagepromote/internal/logfields"
	"github.com/simplesurance/stagepromote/internal/notify"
)

const loggerName = "promoter"

// Config configures a Promoter.
type Config struct {
	RepositoryOwner  string
	Repository       string
	StageBranch      string
	ProductionBranch string

	SyncPRTitle  string
	SyncPRFooter string
	// TeamMentions are mentioned in the comment that is created for a
	// new sync pull request.
	TeamMentions []string
	// ClaimSyncPRFiles defines if files that are changed by the sync
	// pull request are claimed at the start of a run.
	ClaimSyncPRFiles bool

	ReadyForStageLabel string
	HighPriorityLabel  string
	// TestingStartedLabelPrefix halts runs when a label of the sync pull
	// request starts with it. Labels that only contain it elsewhere, like
	// "needs SOT" for the prefix "SOT", do not halt runs.
	TestingStartedLabelPrefix string

	RequiredApprovals int
	// OwnCheckName is the name of the check of the job that runs the
	// promoter. Failures of it are ignored.
	OwnCheckName string
	// FilterQuery is an optional jq query.
	FilterQuery      string
	FetchConcurrency int

	MergeMethod string
	MergeDelay  time.Duration
	// DryRun disables merging pull requests. Merges are simulated.
	DryRun bool
}

func (c *Config) validate() error {
	if c.RepositoryOwner == "" || c.Repository == "" {
		return errors.New("repository owner and name must be set")
	}

	if c.StageBranch == "" || c.ProductionBranch == "" {
		return errors.New("stage and production branch must be set")
	}

	if c.StageBranch == c.ProductionBranch {
		return fmt.Errorf("stage and production branch must differ, both are %q", c.StageBranch)
	}

	if c.SyncPRTitle == "" {
		return errors.New("sync pull request title must be set")
	}

	if c.TestingStartedLabelPrefix == "" {
		return errors.New("testing started label prefix must be set")
	}

	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch concurrency is %d, must be >0", c.FetchConcurrency)
	}

	return nil
}

// BlackoutSchedule returns the active blackout window for a point in time,
// or nil if none is active.
type BlackoutSchedule interface {
	Active(time.Time) blackout.Window
}

// Promoter merges ready pull requests into the stage branch and maintains
// the sync pull request from the stage to the production branch.
type Promoter struct {
	cfg Config

	clt         GithubClient
	retryer     Retryer
	notifier    Notifier
	blackout    BlackoutSchedule
	filterQuery *filterQuery

	logger *zap.Logger
	now    func() time.Time
	sleep  func(context.Context, time.Duration)
}

type Option func(*Promoter)

// WithNotifier sets the notifier that is informed about merged pull requests
// and created sync pull requests.
func WithNotifier(n Notifier) Option {
	return func(p *Promoter) {
		p.notifier = n
	}
}

// WithBlackoutSchedule configures periods in which runs do nothing.
func WithBlackoutSchedule(s BlackoutSchedule) Option {
	return func(p *Promoter) {
		p.blackout = s
	}
}

func New(clt GithubClient, retryer Retryer, cfg *Config, opts ...Option) (*Promoter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := Promoter{
		cfg:      *cfg,
		clt:      clt,
		retryer:  retryer,
		notifier: notify.Nop{},
		logger: zap.L().Named(loggerName).With(
			logfields.RepositoryOwner(cfg.RepositoryOwner),
			logfields.Repository(cfg.Repository),
		),
		now:   time.Now,
		sleep: sleepCtx,
	}

	if cfg.FilterQuery != "" {
		q, err := newFilterQuery(cfg.FilterQuery)
		if err != nil {
			return nil, err
		}

		p.filterQuery = q
	}

	if cfg.DryRun {
		p.clt = NewDryGithubClient(clt, p.logger)
	}

	for _, o := range opts {
		o(&p)
	}

	return &p, nil
}

// Run runs the promotion once.
// Errors are not returned, they are logged and recorded in the returned
// summary. Runs must not be executed concurrently.
func (p *Promoter) Run(ctx context.Context) *RunSummary {
	runID := uuid.NewString()
	summary := newRunSummary(runID, p.now())
	logger := p.logger.With(logfields.RunID(runID))

	defer func() {
		summary.EndTime = p.now()
		metrics.RunsInc(summary.Result)
		logger.Info("run finished", append(summary.LogFields(), logEventRunFinished)...)
	}()

	if p.blackout != nil {
		if w := p.blackout.Active(summary.StartTime); w != nil {
			logger.Info(
				"stopped, within blackout window",
				logEventBlackoutActive,
				zap.Stringer("blackout_window", w),
			)
			summary.Result = RunResultBlackout

			return summary
		}
	}

	logger.Info(
		"run started",
		logEventRunStarted,
		logfields.BaseBranch(p.cfg.StageBranch),
		zap.Bool("dry_run", p.cfg.DryRun),
	)

	if err := p.run(ctx, logger, summary); err != nil {
		logger.Error("run failed", logEventRunFailed, zap.Error(err))
		summary.Result = RunResultFailed
		summary.Err = err
	}

	return summary
}

func (p *Promoter) run(ctx context.Context, logger *zap.Logger, summary *RunSummary) error {
	claimed := NewClaimedFileSet()

	syncPR, err := p.lookupSyncPR(ctx)
	if err != nil {
		return fmt.Errorf("looking up sync pull request failed: %w", err)
	}

	logger.Info("sync pull request lookup finished", zap.Bool("sync_pr_exists", syncPR != nil))

	var desc *Description
	if syncPR != nil {
		logger = logger.With(zap.Int("sync_pull_request", syncPR.Number))

		if label, started := syncPR.testingStartedLabel(p.cfg.TestingStartedLabelPrefix); started {
			logger.Info(
				"sync pull request exists and testing started, stopping execution",
				logEventTestingStarted,
				logfields.Label(label),
			)
			summary.Result = RunResultTestingStarted
			summary.SyncPRNumber = syncPR.Number

			return nil
		}

		if p.cfg.ClaimSyncPRFiles {
			claimed.Claim(syncPR.Files...)
		}

		desc = NewDescription(syncPR.Body)
	} else {
		desc = NewDescription(p.cfg.SyncPRFooter)
	}

	candidates, err := p.eligibleCandidates(ctx, logger, summary)
	if err != nil {
		return fmt.Errorf("evaluating eligible pull requests failed: %w", err)
	}

	high, normal := splitByPriority(candidates, p.cfg.HighPriorityLabel)

	logger.Info(
		"merging pull requests that are ready",
		zap.Int("high_priority_pull_requests", len(high)),
		zap.Int("pull_requests", len(normal)),
		zap.Int("claimed_files", claimed.Len()),
	)

	p.mergeAll(ctx, logger, high, claimed, desc, summary)
	p.mergeAll(ctx, logger, normal, claimed, desc, summary)

	if syncPR == nil {
		return p.createSyncPR(ctx, logger, desc, summary)
	}

	return p.updateSyncPR(ctx, logger, syncPR, desc, summary)
}
