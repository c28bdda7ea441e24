// Package cfg loads the stagepromote configuration.
package cfg

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml"
)

// DefSyncPRFooter is the description boilerplate of the sync pull request
// that is used when sync_pr_footer is not set.
const DefSyncPRFooter = `
## Testing
Verify the changes listed above on the stage environment before merging.
`

type Config struct {
	GithubAPIToken   string `toml:"github_api_token"`
	RepositoryOwner  string `toml:"repository_owner" validate:"required"`
	Repository       string `toml:"repository" validate:"required"`
	StageBranch      string `toml:"stage_branch" default:"stage" validate:"required"`
	ProductionBranch string `toml:"production_branch" default:"main" validate:"required,nefield=StageBranch"`

	SyncPRTitle      string   `toml:"sync_pr_title" default:"[Release] Stage to Main" validate:"required"`
	SyncPRFooter     string   `toml:"sync_pr_footer"`
	TeamMentions     []string `toml:"team_mentions"`
	ClaimSyncPRFiles bool     `toml:"claim_sync_pr_files" default:"true"`

	RequiredApprovals      int    `toml:"required_approvals" default:"2" validate:"gte=0"`
	OwnCheckName           string `toml:"own_check_name" default:"merge-to-stage"`
	EligibilityFilterQuery string `toml:"eligibility_filter_query"`
	FetchConcurrency       int    `toml:"fetch_concurrency" default:"8" validate:"gte=1"`
	APIRetryTimeout        string `toml:"api_retry_timeout" default:"2m" validate:"duration"`

	ReadyForStageLabel        string `toml:"ready_for_stage_label" default:"Ready for Stage" validate:"required"`
	HighPriorityLabel         string `toml:"high_priority_label" default:"high priority" validate:"required"`
	TestingStartedLabelPrefix string `toml:"testing_started_label_prefix" default:"SOT" validate:"required"`

	DryRun      bool   `toml:"dry_run"`
	MergeMethod string `toml:"merge_method" default:"squash" validate:"oneof=merge squash rebase"`
	MergeDelay  string `toml:"merge_delay" default:"5s" validate:"duration"`

	SlackWebhookURL string            `toml:"slack_webhook_url" validate:"omitempty,url"`
	Blackout        []*BlackoutWindow `toml:"blackout" validate:"dive"`
	LockFile        string            `toml:"lock_file"`

	LogFormat             string `toml:"log_format" validate:"omitempty,oneof=logfmt console json"`
	LogLevel              string `toml:"log_level" default:"info"`
	LogTimeKey            string `toml:"log_time_key" default:"time"`
	HTTPMetricsListenAddr string `toml:"http_metrics_listen_addr"`
	ScheduleInterval      string `toml:"schedule_interval" validate:"omitempty,duration"`
}

// BlackoutWindow is a period in which no pull requests are promoted.
// It is either an absolute period (Start, End) or recurs weekly (Weekday,
// From, To, Timezone).
type BlackoutWindow struct {
	Start    string `toml:"start" validate:"required_without=Weekday"`
	End      string `toml:"end" validate:"required_with=Start"`
	Weekday  string `toml:"weekday" validate:"required_without=Start"`
	From     string `toml:"from" validate:"required_with=Weekday"`
	To       string `toml:"to" validate:"required_with=Weekday"`
	Timezone string `toml:"timezone"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	if result.SyncPRFooter == "" {
		result.SyncPRFooter = DefSyncPRFooter
	}

	return &result, nil
}

// LoadFile loads the configuration from the file at path.
// If mustExist is false and the file does not exist, the default
// configuration is returned.
func LoadFile(path string, mustExist bool) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if !mustExist && errors.Is(err, fs.ErrNotExist) {
			return Load(strings.NewReader(""))
		}

		return nil, err
	}
	defer file.Close()

	return Load(file)
}

// ApplyEnv overwrites configuration settings with values from environment
// variables. lookupEnv is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv("GITHUB_TOKEN"); ok && v != "" {
		c.GithubAPIToken = v
	}

	if v, ok := lookupEnv("GITHUB_REPOSITORY"); ok && v != "" {
		owner, repo, found := strings.Cut(v, "/")
		if !found || owner == "" || repo == "" {
			return fmt.Errorf("GITHUB_REPOSITORY environment variable has value %q, expecting <OWNER>/<REPOSITORY>", v)
		}

		c.RepositoryOwner = owner
		c.Repository = repo
	}

	if v, ok := lookupEnv("REQUIRED_APPROVALS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing REQUIRED_APPROVALS environment variable failed: %w", err)
		}

		c.RequiredApprovals = n
	}

	if v, ok := lookupEnv("LOCAL_RUN"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			// any other non-empty value enables it
			enabled = true
		}

		c.DryRun = enabled
	}

	if v, ok := lookupEnv("SLACK_WEBHOOK_URL"); ok && v != "" {
		c.SlackWebhookURL = v
	}

	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	err := v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(fmt.Sprintf("registering duration validator failed: %s", err))
	}

	return v
}

// Validate returns an error if the configuration contains invalid or
// missing settings.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, e := range validationErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (value: %q)", e.Namespace(), e.Tag(), fmt.Sprint(e.Value())))
	}

	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// MergeDelayDuration returns the parsed MergeDelay setting.
// It must only be called for validated configurations.
func (c *Config) MergeDelayDuration() time.Duration {
	return mustParseDuration(c.MergeDelay)
}

// APIRetryTimeoutDuration returns the parsed APIRetryTimeout setting.
// It must only be called for validated configurations.
func (c *Config) APIRetryTimeoutDuration() time.Duration {
	return mustParseDuration(c.APIRetryTimeout)
}

// ScheduleIntervalDuration returns the parsed ScheduleInterval setting, 0 if
// it is unset.
// It must only be called for validated configurations.
func (c *Config) ScheduleIntervalDuration() time.Duration {
	if c.ScheduleInterval == "" {
		return 0
	}

	return mustParseDuration(c.ScheduleInterval)
}

func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("parsing duration %q failed: %s", s, err))
	}

	return d
}

func (c *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(c)
}
