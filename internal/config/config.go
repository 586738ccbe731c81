package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/minutes/internal/core/attendee"
)

const (
	DefaultTimezone    = "America/New_York"
	DefaultNVIDIAURL   = "https://integrate.api.nvidia.com/v1"
	DefaultNVIDIAModel = "nvidia/llama-3.3-nemotron-super-49b-v1.5"
)

type LLMConfig struct {
	Provider       string  `toml:"provider"`
	Model          string  `toml:"model"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Temperature    float32 `toml:"temperature"`
	TopP           float32 `toml:"top_p"`
	MaxTokens      int     `toml:"max_tokens"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type CalendarConfig struct {
	Provider        string `toml:"provider"` // google or memory
	CalendarID      string `toml:"calendar_id"`
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`
	ICSFile         string `toml:"ics_file"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	DaysBack        int    `toml:"days_back"`
	DaysAhead       int    `toml:"days_ahead"`
	MaxResults      int    `toml:"max_results"`
	WorkStartHour   int    `toml:"work_start_hour"`
	WorkEndHour     int    `toml:"work_end_hour"`
	SlotSearchDays  int    `toml:"slot_search_days"`
}

func (c CalendarConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type MailConfig struct {
	Provider        string   `toml:"provider"` // gmail or log
	CredentialsFile string   `toml:"credentials_file"`
	TokenFile       string   `toml:"token_file"`
	Sender          string   `toml:"sender"`
	Recipients      []string `toml:"recipients"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
}

func (c MailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type AttendeesConfig struct {
	File           string            `toml:"file"`
	DefaultDomain  string            `toml:"default_domain"`
	FuzzyThreshold float64           `toml:"fuzzy_threshold"`
	People         []attendee.Record `toml:"people"`
}

// Table merges inline people with the attendee file, inline entries first.
func (c AttendeesConfig) Table() (attendee.Table, error) {
	t := attendee.Table{
		Attendees:      c.People,
		DefaultDomain:  c.DefaultDomain,
		FuzzyThreshold: c.FuzzyThreshold,
	}
	if c.File == "" {
		return t, nil
	}
	fromFile, err := attendee.LoadTable(c.File)
	if err != nil {
		return t, err
	}
	return t.Merge(fromFile), nil
}

type SchedulerConfig struct {
	Workers      int  `toml:"workers"`
	FallbackHour int  `toml:"fallback_hour"`
	AutoExecute  bool `toml:"auto_execute"`
}

type BroadcastConfig struct {
	QueueSize        int `toml:"queue_size"`
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// Prompts overrides the built-in stage prompt templates. Empty entries keep
// the defaults.
type Prompts struct {
	Analyze   string `toml:"analyze"`
	Research  string `toml:"research"`
	Related   string `toml:"related"`
	Plan      string `toml:"plan"`
	Decision  string `toml:"decision"`
	Risk      string `toml:"risk"`
	Summary   string `toml:"summary"`
	NextSteps string `toml:"next_steps"`
}

type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type Config struct {
	Timezone  string          `toml:"timezone"`
	LLM       LLMConfig       `toml:"llm"`
	Calendar  CalendarConfig  `toml:"calendar"`
	Mail      MailConfig      `toml:"mail"`
	Attendees AttendeesConfig `toml:"attendees"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Broadcast BroadcastConfig `toml:"broadcast"`
	Server    ServerConfig    `toml:"server"`
	Memgraph  MemgraphConfig  `toml:"memgraph"`
	Prompts   Prompts         `toml:"prompts"`
	Log       LogConfig       `toml:"log"`
}

func Default() *Config {
	return &Config{
		Timezone: DefaultTimezone,
		LLM: LLMConfig{
			Provider:       "nvidia",
			Model:          DefaultNVIDIAModel,
			BaseURL:        DefaultNVIDIAURL,
			Temperature:    0.2,
			TopP:           0.95,
			MaxTokens:      4096,
			TimeoutSeconds: 60,
		},
		Calendar: CalendarConfig{
			Provider:       "memory",
			CalendarID:     "primary",
			TimeoutSeconds: 8,
			DaysBack:       30,
			DaysAhead:      30,
			MaxResults:     50,
			WorkStartHour:  9,
			WorkEndHour:    17,
			SlotSearchDays: 14,
		},
		Mail: MailConfig{
			Provider:       "log",
			Sender:         "me",
			TimeoutSeconds: 8,
		},
		Attendees: AttendeesConfig{
			DefaultDomain:  attendee.DefaultDomain,
			FuzzyThreshold: attendee.DefaultThreshold,
		},
		Scheduler: SchedulerConfig{
			Workers:      4,
			FallbackHour: 14,
			AutoExecute:  true,
		},
		Broadcast: BroadcastConfig{QueueSize: 64, HeartbeatSeconds: 15},
		Server:    ServerConfig{Port: "8080"},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults when it
// does not.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.Memgraph.URI, "MEMGRAPH_URI")
	set(&c.Memgraph.User, "MEMGRAPH_USER")
	set(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	set(&c.Server.Port, "PORT")
	set(&c.Timezone, "TIMEZONE")
	set(&c.Attendees.File, "ATTENDEES_FILE")
	set(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("MAIL_RECIPIENTS"); v != "" {
		c.Mail.Recipients = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.LLM.Provider == "" {
		return errors.New("llm.provider is required")
	}
	if c.Calendar.WorkStartHour < 0 || c.Calendar.WorkEndHour > 24 || c.Calendar.WorkStartHour >= c.Calendar.WorkEndHour {
		return fmt.Errorf("invalid working hours %d-%d", c.Calendar.WorkStartHour, c.Calendar.WorkEndHour)
	}
	if c.Scheduler.FallbackHour < 0 || c.Scheduler.FallbackHour > 23 {
		return fmt.Errorf("invalid scheduler.fallback_hour %d", c.Scheduler.FallbackHour)
	}
	if c.Attendees.FuzzyThreshold < 0 || c.Attendees.FuzzyThreshold > 1 {
		return fmt.Errorf("attendees.fuzzy_threshold must be within [0,1], got %v", c.Attendees.FuzzyThreshold)
	}
	switch c.Calendar.Provider {
	case "google", "memory":
	default:
		return fmt.Errorf("unsupported calendar provider: %s", c.Calendar.Provider)
	}
	switch c.Mail.Provider {
	case "gmail", "log":
	default:
		return fmt.Errorf("unsupported mail provider: %s", c.Mail.Provider)
	}
	return nil
}

// Location resolves the pipeline's fixed timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
