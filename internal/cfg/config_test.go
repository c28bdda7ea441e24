package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	config, err := Load(strings.NewReader(`
repository_owner = "adobecom"
repository = "milo"
`))
	require.NoError(t, err)

	assert.Equal(t, "stage", config.StageBranch)
	assert.Equal(t, "main", config.ProductionBranch)
	assert.Equal(t, "[Release] Stage to Main", config.SyncPRTitle)
	assert.Equal(t, 2, config.RequiredApprovals)
	assert.Equal(t, "squash", config.MergeMethod)
	assert.Equal(t, "merge-to-stage", config.OwnCheckName)
	assert.Equal(t, "Ready for Stage", config.ReadyForStageLabel)
	assert.Equal(t, "high priority", config.HighPriorityLabel)
	assert.Equal(t, "SOT", config.TestingStartedLabelPrefix)
	assert.True(t, config.ClaimSyncPRFiles)
	assert.False(t, config.DryRun)
	assert.Equal(t, DefSyncPRFooter, config.SyncPRFooter)

	require.NoError(t, config.Validate())
	assert.Equal(t, 5*time.Second, config.MergeDelayDuration())
	assert.Equal(t, 2*time.Minute, config.APIRetryTimeoutDuration())
	assert.Equal(t, time.Duration(0), config.ScheduleIntervalDuration())
}

func TestLoadFullConfig(t *testing.T) {
	config, err := Load(strings.NewReader(`
repository_owner = "adobecom"
repository = "milo"
required_approvals = 0
claim_sync_pr_files = false
merge_delay = "1s"
schedule_interval = "10m"
team_mentions = ["@adobecom/miq-sot", "@adobecom/bacom-sot"]

[[blackout]]
start = "2026-12-20T00:00:00Z"
end = "2027-01-04T00:00:00Z"

[[blackout]]
weekday = "friday"
from = "16:00"
to = "23:59"
timezone = "America/Los_Angeles"
`))
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, 0, config.RequiredApprovals)
	assert.False(t, config.ClaimSyncPRFiles)
	assert.Equal(t, time.Second, config.MergeDelayDuration())
	assert.Equal(t, 10*time.Minute, config.ScheduleIntervalDuration())
	assert.Equal(t, []string{"@adobecom/miq-sot", "@adobecom/bacom-sot"}, config.TeamMentions)
	require.Len(t, config.Blackout, 2)
	assert.Equal(t, "2026-12-20T00:00:00Z", config.Blackout[0].Start)
	assert.Equal(t, "friday", config.Blackout[1].Weekday)
	assert.Equal(t, "America/Los_Angeles", config.Blackout[1].Timezone)
}

func TestApplyEnv(t *testing.T) {
	config, err := Load(strings.NewReader(""))
	require.NoError(t, err)

	err = config.ApplyEnv(envMap(map[string]string{
		"GITHUB_TOKEN":       "secret",
		"GITHUB_REPOSITORY":  "adobecom/milo",
		"REQUIRED_APPROVALS": "3",
		"LOCAL_RUN":          "yes",
		"SLACK_WEBHOOK_URL":  "https://hooks.slack.com/services/x",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secret", config.GithubAPIToken)
	assert.Equal(t, "adobecom", config.RepositoryOwner)
	assert.Equal(t, "milo", config.Repository)
	assert.Equal(t, 3, config.RequiredApprovals)
	assert.True(t, config.DryRun)
	assert.Equal(t, "https://hooks.slack.com/services/x", config.SlackWebhookURL)
	require.NoError(t, config.Validate())
}

func TestApplyEnvLocalRunFalse(t *testing.T) {
	config := Config{DryRun: true}
	require.NoError(t, config.ApplyEnv(envMap(map[string]string{"LOCAL_RUN": "false"})))
	assert.False(t, config.DryRun)
}

func TestApplyEnvInvalidValues(t *testing.T) {
	config := Config{}
	require.Error(t, config.ApplyEnv(envMap(map[string]string{"REQUIRED_APPROVALS": "two"})))
	require.Error(t, config.ApplyEnv(envMap(map[string]string{"GITHUB_REPOSITORY": "milo"})))
}

func TestValidateRejectsInvalidConfig(t *testing.T) {
	testcases := map[string]string{
		"missing repository": `repository_owner = "adobecom"`,
		"same branches": `
repository_owner = "adobecom"
repository = "milo"
stage_branch = "main"
`,
		"invalid merge method": `
repository_owner = "adobecom"
repository = "milo"
merge_method = "octopus"
`,
		"invalid duration": `
repository_owner = "adobecom"
repository = "milo"
merge_delay = "five seconds"
`,
		"negative approvals": `
repository_owner = "adobecom"
repository = "milo"
required_approvals = -1
`,
		"incomplete blackout window": `
repository_owner = "adobecom"
repository = "milo"
[[blackout]]
start = "2026-12-20T00:00:00Z"
`,
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			config, err := Load(strings.NewReader(tc))
			require.NoError(t, err)
			assert.Error(t, config.Validate())
		})
	}
}

func TestLoadFileMissingOptionalFileReturnsDefaults(t *testing.T) {
	config, err := LoadFile(filepath.Join(t.TempDir(), "config.toml"), false)
	require.NoError(t, err)

	assert.Equal(t, "stage", config.StageBranch)
	assert.Equal(t, 2, config.RequiredApprovals)
	assert.Equal(t, DefSyncPRFooter, config.SyncPRFooter)

	require.NoError(t, config.ApplyEnv(envMap(map[string]string{
		"GITHUB_TOKEN":      "secret",
		"GITHUB_REPOSITORY": "adobecom/milo",
		"LOCAL_RUN":         "true",
	})))
	require.NoError(t, config.Validate())
	assert.True(t, config.DryRun)
}

func TestLoadFileMissingRequiredFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "config.toml"), true)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("repository_owner = \"adobecom\"\nrequired_approvals = 1\n"), 0o600))

	config, err := LoadFile(path, false)
	require.NoError(t, err)

	assert.Equal(t, "adobecom", config.RepositoryOwner)
	assert.Equal(t, 1, config.RequiredApprovals)
}
