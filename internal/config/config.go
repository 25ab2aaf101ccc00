// Package config reads the portal's settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"

	"github.com/msomdec/microlearn/internal/domain"
	"github.com/msomdec/microlearn/internal/roster"
)

// Progress backends.
const (
	BackendSQLite = "sqlite"
	BackendGitHub = "github"
	BackendMemory = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	Secret        string `env:"MLP_SECRET,required,notEmpty,unset"`
	SessionSecret string `env:"MLP_SESSION_SECRET,required,notEmpty,unset"`

	RosterSource string        `env:"MLP_ROSTER_SOURCE,required,notEmpty"`
	RosterFormat roster.Format `env:"MLP_ROSTER_FORMAT" envDefault:"xlsx"`

	ProgressBackend   string `env:"MLP_PROGRESS_BACKEND" envDefault:"sqlite"`
	ProgressFile      string `env:"MLP_PROGRESS_FILE" envDefault:"progress.json.aes"`
	EncryptProgress   bool   `env:"MLP_ENCRYPT_PROGRESS" envDefault:"true"`
	FailOpen          bool   `env:"MLP_FAIL_OPEN" envDefault:"false"`
	ConditionalWrites bool   `env:"MLP_CONDITIONAL_WRITES" envDefault:"false"`
	// Timezone of the zone-less timestamps in the progress document, as an
	// IANA name such as "Asia/Kolkata".
	Timezone string `env:"MLP_TIMEZONE" envDefault:"UTC"`

	DatabasePath string `env:"MLP_DATABASE_PATH" envDefault:"microlearn.db"`

	GitHubToken  string `env:"MLP_GITHUB_TOKEN,unset"`
	GitHubRepo   string `env:"MLP_GITHUB_REPO"`
	GitHubBranch string `env:"MLP_GITHUB_BRANCH"`

	CourseName       string        `env:"MLP_COURSE_NAME" envDefault:"microlearning module"`
	VideoURL         string        `env:"MLP_VIDEO_URL" envDefault:"https://www.youtube.com/embed/dQw4w9WgXcQ"`
	RequiredDuration time.Duration `env:"MLP_REQUIRED_DURATION" envDefault:"180s"`
	CallTimeout      time.Duration `env:"MLP_CALL_TIMEOUT" envDefault:"15s"`
	SessionTTL       time.Duration `env:"MLP_SESSION_TTL" envDefault:"24h"`

	ResendAPIKey string `env:"MLP_RESEND_API_KEY,unset"`
	MailFrom     string `env:"MLP_MAIL_FROM"`

	AdminPasswordHash string   `env:"MLP_ADMIN_PASSWORD_HASH"`
	CookieSecure      bool     `env:"MLP_COOKIE_SECURE" envDefault:"true"`
	TrustedOrigins    []string `env:"MLP_TRUSTED_ORIGINS" envSeparator:","`

	location *time.Location
}

// Load parses the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	if len(c.SessionSecret) < 32 {
		return configError("MLP_SESSION_SECRET", "must be at least 32 characters")
	}
	format, err := roster.ParseFormat(string(c.RosterFormat))
	if err != nil {
		return configError("MLP_ROSTER_FORMAT", err.Error())
	}
	c.RosterFormat = format

	switch c.ProgressBackend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return configError("MLP_DATABASE_PATH", "is required for the sqlite backend")
		}
	case BackendGitHub:
		if c.GitHubToken == "" {
			return configError("MLP_GITHUB_TOKEN", "is required for the github backend")
		}
		if _, _, ok := c.GitHubOwnerRepo(); !ok {
			return configError("MLP_GITHUB_REPO", "must be owner/name")
		}
	case BackendMemory:
	default:
		return configError("MLP_PROGRESS_BACKEND", fmt.Sprintf("unknown backend %q", c.ProgressBackend))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return configError("MLP_TIMEZONE", fmt.Sprintf("unknown time zone %q", c.Timezone))
	}
	c.location = loc

	if c.ProgressFile == "" {
		return configError("MLP_PROGRESS_FILE", "must not be empty")
	}
	if c.RequiredDuration <= 0 {
		return configError("MLP_REQUIRED_DURATION", "must be positive")
	}
	if c.CallTimeout <= 0 {
		return configError("MLP_CALL_TIMEOUT", "must be positive")
	}
	if c.SessionTTL < c.RequiredDuration {
		return configError("MLP_SESSION_TTL", "must not be shorter than MLP_REQUIRED_DURATION")
	}
	if c.ResendAPIKey != "" && c.MailFrom == "" {
		return configError("MLP_MAIL_FROM", "is required when MLP_RESEND_API_KEY is set")
	}
	return nil
}

// Location returns the loaded MLP_TIMEZONE, or UTC before Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// GitHubOwnerRepo splits MLP_GITHUB_REPO.
func (c *Config) GitHubOwnerRepo() (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(c.GitHubRepo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

func configError(key, msg string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrConfiguration, key, msg)
}
