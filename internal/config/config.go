package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"calsync/internal/classify"
	"calsync/internal/models"
	"calsync/internal/schedule"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Clockify   ClockifyConfig   `yaml:"clockify"`
	Jira       JiraConfig       `yaml:"jira"`
	Workday    WorkdayConfig    `yaml:"workday"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type APIAuthConfig struct {
	Enabled      *bool          `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// IsEnabled reports whether API keys are enforced; unset means enforced.
func (a APIAuthConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type CalendarConfig struct {
	// Source is an .ics file path or an http(s)/webcal URL.
	Source           string `yaml:"source"`
	Timezone         string `yaml:"timezone"`
	RequireOrganizer *bool  `yaml:"require_organizer"`
	IncludeAllDay    bool   `yaml:"include_all_day"`
	MaxOccurrences   int    `yaml:"max_occurrences"`
}

// Location resolves Timezone; empty means the process zone.
func (c CalendarConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// OrganizerRequired defaults to true.
func (c CalendarConfig) OrganizerRequired() bool {
	return c.RequireOrganizer == nil || *c.RequireOrganizer
}

type ClockifyConfig struct {
	BaseURL     string         `yaml:"base_url"`
	APIKey      string         `yaml:"api_key"`
	WorkspaceID string         `yaml:"workspace_id"`
	Projects    ProjectsConfig `yaml:"projects"`
	// Tasks maps a task category name (Development, Fix, ...) to its identifier.
	Tasks             map[string]string `yaml:"tasks"`
	SubmitDelay       time.Duration     `yaml:"submit_delay"`
	Timeout           time.Duration     `yaml:"timeout"`
	MaxRetries        int               `yaml:"max_retries"`
	RetryInitialDelay time.Duration     `yaml:"retry_initial_delay"`
	RetryMaxDelay     time.Duration     `yaml:"retry_max_delay"`
}

type ProjectsConfig struct {
	Productive string `yaml:"productive"`
	Meetings   string `yaml:"meetings"`
}

// TaskIDs converts the configured task table for the classifier.
func (c ClockifyConfig) TaskIDs() classify.TaskIDs {
	ids := classify.TaskIDs{}
	for name, id := range c.Tasks {
		if cat, ok := classify.Category(name); ok {
			ids[cat] = id
		}
	}
	return ids
}

type JiraConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Email    string        `yaml:"email"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Enabled reports whether enough is configured to reach Jira.
func (j JiraConfig) Enabled() bool {
	return j.BaseURL != "" && j.Email != "" && j.APIToken != ""
}

// WorkdayConfig holds "HH:MM" clock values.
type WorkdayConfig struct {
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	LunchStart string `yaml:"lunch_start"`
	LunchEnd   string `yaml:"lunch_end"`
}

// Workday converts the clock strings; empty fields keep the default.
func (w WorkdayConfig) Workday() (schedule.Workday, error) {
	wd := schedule.DefaultWorkday()
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"start", w.Start, &wd.Start},
		{"end", w.End, &wd.End},
		{"lunch_start", w.LunchStart, &wd.LunchStart},
		{"lunch_end", w.LunchEnd, &wd.LunchEnd},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		d, err := parseClock(f.value)
		if err != nil {
			return wd, fmt.Errorf("workday.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return wd, wd.Validate()
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address    string `yaml:"address"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	PoolSize   int    `yaml:"pool_size"`
	LockPrefix string `yaml:"lock_prefix"`
}

type BackupConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	RetentionDays    int           `yaml:"retention_days"`
	RunRetentionDays int           `yaml:"run_retention_days"`
	StoragePath      string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
	Flow    string `yaml:"flow"`
	// LookbackDays widens the synced range to the previous N days.
	LookbackDays int `yaml:"lookback_days"`
}

// Load reads .env when present, expands ${VAR} references in the YAML file,
// applies defaults and validates.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document the same way Load does, without touching the
// filesystem.
func Parse(data []byte) (*Config, error) {
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Calendar.Location(); err != nil {
		return fmt.Errorf("calendar timezone: %w", err)
	}

	if c.Clockify.SubmitDelay < 0 {
		return errors.New("clockify submit_delay must not be negative")
	}
	if c.Clockify.MaxRetries < 0 {
		return errors.New("clockify max_retries must not be negative")
	}
	for name := range c.Clockify.Tasks {
		if _, ok := classify.Category(name); !ok {
			return fmt.Errorf("clockify task %q is not a known category", name)
		}
	}

	if _, err := c.Workday.Workday(); err != nil {
		return err
	}

	if c.API.Enabled && c.API.Auth.IsEnabled() {
		if len(c.API.Auth.APIKeys) == 0 {
			return errors.New("api auth is enabled but no api_keys are configured")
		}
		for i, k := range c.API.Auth.APIKeys {
			if k.Key == "" {
				return fmt.Errorf("api key %d is empty", i)
			}
		}
	}

	if c.Scheduler.Enabled {
		if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
			return fmt.Errorf("scheduler spec %q: %w", c.Scheduler.Spec, err)
		}
		switch models.Flow(c.Scheduler.Flow) {
		case models.FlowMeetings, models.FlowTickets:
		default:
			return fmt.Errorf("scheduler flow %q is not supported; use meetings or tickets", c.Scheduler.Flow)
		}
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "calsync"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.RequestTimeout == 0 {
		c.API.HTTP.RequestTimeout = 5 * time.Minute
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Clockify.Projects.Productive == "" {
		c.Clockify.Projects.Productive = models.DefaultProductiveProjectID
	}
	if c.Clockify.Projects.Meetings == "" {
		c.Clockify.Projects.Meetings = models.DefaultMeetingsProjectID
	}
	if c.Clockify.WorkspaceID == "" {
		c.Clockify.WorkspaceID = models.DefaultWorkspaceID
	}
	if c.Clockify.SubmitDelay == 0 {
		c.Clockify.SubmitDelay = models.DefaultSubmitDelay
	}
	if c.Clockify.Timeout == 0 {
		c.Clockify.Timeout = 30 * time.Second
	}
	if c.Clockify.MaxRetries == 0 {
		c.Clockify.MaxRetries = 3
	}
	if c.Clockify.RetryInitialDelay == 0 {
		c.Clockify.RetryInitialDelay = 500 * time.Millisecond
	}
	if c.Clockify.RetryMaxDelay == 0 {
		c.Clockify.RetryMaxDelay = 10 * time.Second
	}

	if c.Jira.Timeout == 0 {
		c.Jira.Timeout = 30 * time.Second
	}

	if c.Redis.LockPrefix == "" {
		c.Redis.LockPrefix = "calsync:lock:"
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}

	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = "0 18 * * 1-5"
	}
	if c.Scheduler.Flow == "" {
		c.Scheduler.Flow = string(models.FlowTickets)
	}
}
