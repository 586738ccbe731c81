package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
timezone = "Europe/Berlin"

[llm]
provider = "claude"
model = "claude-3-5-sonnet-latest"

[calendar]
provider = "memory"
ics_file = "testdata/calendar.ics"

[mail]
provider = "log"
recipients = ["team@corp.io"]

[attendees]
default_domain = "corp.io"

[[attendees.people]]
primary_name = "alice"
email = "alice@corp.io"
aliases = ["Ali"]

[scheduler]
workers = 2

[prompts]
plan = "Plan: {{.Transcript}}"
`

func TestLoadMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, 4096, cfg.LLM.MaxTokens, "default survives partial section")
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, 14, cfg.Scheduler.FallbackHour)
	assert.Equal(t, []string{"team@corp.io"}, cfg.Mail.Recipients)
	assert.Equal(t, "Plan: {{.Transcript}}", cfg.Prompts.Plan)
	require.Len(t, cfg.Attendees.People, 1)
	assert.Equal(t, "alice@corp.io", cfg.Attendees.People[0].Email)
	assert.NoError(t, cfg.Validate())

	tbl, err := cfg.Attendees.Table()
	require.NoError(t, err)
	assert.Equal(t, "corp.io", tbl.DefaultDomain)
	assert.Equal(t, 0.8, tbl.FuzzyThreshold)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[llm\nprovider="), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse TOML")
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)

	cfg, err = LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "nvidia", cfg.LLM.Provider)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("LLM_API_KEY", "secret")
	t.Setenv("MAIL_RECIPIENTS", "a@x.io, b@x.io,")
	t.Setenv("PORT", "9090")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.Mail.Recipients)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DefaultNVIDIAModel, cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Calendar.WorkStartHour = 18
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Mail.Provider = "smtp"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Attendees.FuzzyThreshold = 1.5
	assert.Error(t, cfg.Validate())
}
