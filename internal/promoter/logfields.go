package promoter

import (
	"github.com/simplesurance/stagepromote/internal/logfields"
)

var (
	logEventRunStarted        = logfields.Event("run_started")
	logEventRunFinished       = logfields.Event("run_finished")
	logEventRunFailed         = logfields.Event("run_failed")
	logEventBlackoutActive    = logfields.Event("blackout_window_active")
	logEventTestingStarted    = logfields.Event("sync_pr_testing_started")
	logEventCandidateSkipped  = logfields.Event("candidate_skipped")
	logEventMerged            = logfields.Event("pull_request_merged")
	logEventMergeFailed       = logfields.Event("pull_request_merge_failed")
	logEventNotifyFailed      = logfields.Event("notification_failed")
	logEventSyncPRCreated     = logfields.Event("sync_pr_created")
	logEventSyncPRUpdated     = logfields.Event("sync_pr_updated")
	logEventSyncPRNothingToDo = logfields.Event("sync_pr_no_new_commits")
)
