package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL         string
	UserAgent       string
	RequestTimeout  time.Duration
	RequestDelay    time.Duration
	LedgerDir       string
	AuthorName      string
	AuthorEmail     string
	MinutesCacheDir string
	MeetingIndexURL string
	OpenAIKey       string
	OpenAIModel     string
	OpenAIMaxTokens int
	LogLevel        string
	LogPretty       bool
}

// fileConfig mirrors the optional YAML config file layout.
type fileConfig struct {
	Scraping struct {
		UserAgent             string `yaml:"user_agent"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	} `yaml:"scraping"`
	VersionHistory struct {
		RequestDelaySeconds float64 `yaml:"request_delay_seconds"`
		MinutesCacheDir     string  `yaml:"minutes_cache_dir"`
		MeetingIndexURL     string  `yaml:"meeting_index_url"`
	} `yaml:"version_history"`
	Git struct {
		RepoDir     string `yaml:"repo_dir"`
		AuthorName  string `yaml:"author_name"`
		AuthorEmail string `yaml:"author_email"`
	} `yaml:"git"`
	OpenAI struct {
		Model     string `yaml:"model"`
		MaxTokens int    `yaml:"max_tokens"`
	} `yaml:"openai"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty *bool  `yaml:"pretty"`
	} `yaml:"logging"`
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and finally environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Config{
		BaseURL:         "https://www.ndcourts.gov",
		UserAgent:       "rulesync/1.0 (court rules archival)",
		RequestTimeout:  30 * time.Second,
		RequestDelay:    time.Second,
		LedgerDir:       "./data/rules",
		AuthorName:      "ND Courts System",
		AuthorEmail:     "rules@ndcourts.gov",
		MinutesCacheDir: "./data/minutes_cache",
		MeetingIndexURL: "https://www.ndcourts.gov/supreme-court/committees/GetMeetingHistory/Joint%20Procedure%20Committee",
		OpenAIModel:     "gpt-4o-mini",
		OpenAIMaxTokens: 1000,
		LogLevel:        "info",
		LogPretty:       true,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(raw, &fc); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
			applyFile(&cfg, fc)
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.BaseURL = getenv("RULESYNC_BASE_URL", cfg.BaseURL)
	cfg.UserAgent = getenv("RULESYNC_USER_AGENT", cfg.UserAgent)
	cfg.RequestTimeout = time.Duration(getenvInt("RULESYNC_REQUEST_TIMEOUT_SECONDS", int(cfg.RequestTimeout/time.Second))) * time.Second
	cfg.LedgerDir = getenv("RULESYNC_LEDGER_DIR", cfg.LedgerDir)
	cfg.AuthorName = getenv("RULESYNC_AUTHOR_NAME", cfg.AuthorName)
	cfg.AuthorEmail = getenv("RULESYNC_AUTHOR_EMAIL", cfg.AuthorEmail)
	cfg.MinutesCacheDir = getenv("RULESYNC_MINUTES_CACHE_DIR", cfg.MinutesCacheDir)
	cfg.OpenAIKey = getenv("OPENAI_API_KEY", cfg.OpenAIKey)
	cfg.OpenAIModel = getenv("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.LogLevel = getenv("RULESYNC_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.Scraping.UserAgent != "" {
		cfg.UserAgent = fc.Scraping.UserAgent
	}
	if fc.Scraping.RequestTimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(fc.Scraping.RequestTimeoutSeconds) * time.Second
	}
	if fc.VersionHistory.RequestDelaySeconds > 0 {
		cfg.RequestDelay = time.Duration(fc.VersionHistory.RequestDelaySeconds * float64(time.Second))
	}
	if fc.VersionHistory.MinutesCacheDir != "" {
		cfg.MinutesCacheDir = fc.VersionHistory.MinutesCacheDir
	}
	if fc.VersionHistory.MeetingIndexURL != "" {
		cfg.MeetingIndexURL = fc.VersionHistory.MeetingIndexURL
	}
	if fc.Git.RepoDir != "" {
		cfg.LedgerDir = fc.Git.RepoDir
	}
	if fc.Git.AuthorName != "" {
		cfg.AuthorName = fc.Git.AuthorName
	}
	if fc.Git.AuthorEmail != "" {
		cfg.AuthorEmail = fc.Git.AuthorEmail
	}
	if fc.OpenAI.Model != "" {
		cfg.OpenAIModel = fc.OpenAI.Model
	}
	if fc.OpenAI.MaxTokens > 0 {
		cfg.OpenAIMaxTokens = fc.OpenAI.MaxTokens
	}
	if fc.Logging.Level != "" {
		cfg.LogLevel = fc.Logging.Level
	}
	if fc.Logging.Pretty != nil {
		cfg.LogPretty = *fc.Logging.Pretty
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
