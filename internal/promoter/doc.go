// Package promoter promotes pull requests through a two stage release
// pipeline: pull requests are merged into a stage branch and their changes
// are carried to the production branch by a single rolling sync pull request.
//
// A run of the Promoter consists of the following steps:
//
// - When the current time is within a blackout window, nothing is done.
//
// - The open sync pull request (stage -> production) is looked up by its
// title. If one of its labels starts with the testing-started prefix, people
// are testing the changes on stage and the run stops.
//
// - Open pull requests against the stage branch that carry the ready label are
// retrieved together with their changed files, check results and reviews.
// Pull requests with a failing check (except the check of the stagepromote
// job itself) or with too few approvals are not eligible.
//
// - Eligible pull requests are merged, high priority ones first, oldest first
// within the same priority. Files of a pull request that is merged are
// claimed for the rest of the run. Pull requests that change an already
// claimed file are skipped, they are considered again in the next run.
//
// - If no sync pull request exists, one is created. Its description lists the
// pull requests that are associated with the commits that are in the stage
// but not in the production branch. If it exists, the merged pull requests
// are added to its description.
//
// The only state that is kept between runs is the description and labels of
// the sync pull request on GitHub.
package promoter
