package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flat-todo/internal/codec"
	"flat-todo/internal/model"
	"flat-todo/internal/repository"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "FLATTODO_CONFIG"

// Statuses are the labels written into the status field.
type Statuses struct {
	Pending string `yaml:"pending"`
	Done    string `yaml:"done"`
}

// Config keeps runtime settings for the CLI and the bot.
type Config struct {
	DataDir         string        `yaml:"data_dir"`
	StorageEncoding string        `yaml:"storage_encoding"`
	InputEncoding   string        `yaml:"input_encoding"`
	CategoryPattern string        `yaml:"category_pattern"`
	Retention       time.Duration `yaml:"retention"`
	MaxPriority     int           `yaml:"max_priority"`
	CasePolicy      string        `yaml:"case_policy"`
	Statuses        Statuses      `yaml:"statuses"`
	LogLevel        string        `yaml:"log_level"`

	TelegramToken  string        `yaml:"telegram_token,omitempty"`
	ReportInterval time.Duration `yaml:"report_interval"`
	ReportAt       string        `yaml:"report_at,omitempty"`
	PruneInterval  time.Duration `yaml:"prune_interval"`
	ReportChatIDs  []int64       `yaml:"report_chat_ids,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		DataDir:         "data",
		StorageEncoding: codec.Canonical,
		InputEncoding:   codec.Canonical,
		CategoryPattern: model.DefaultCategoryPattern,
		Retention:       repository.DefaultRetention,
		MaxPriority:     5,
		CasePolicy:      string(repository.CaseAuto),
		Statuses:        Statuses{Pending: "pending", Done: "done"},
		LogLevel:        "info",
		ReportInterval:  5 * time.Hour,
		PruneInterval:   time.Hour,
	}
}

// Load applies the YAML file at path (if any) and then environment
// variables over the defaults. An empty path falls back to FLATTODO_CONFIG;
// a missing file is only an error when it was named explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("invalid config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.DataDir, "FLATTODO_DATA_DIR")
	setString(&c.StorageEncoding, "FLATTODO_STORAGE_ENCODING")
	setString(&c.InputEncoding, "FLATTODO_INPUT_ENCODING")
	setString(&c.CategoryPattern, "FLATTODO_CATEGORY_PATTERN")
	setString(&c.CasePolicy, "FLATTODO_CASE_POLICY")
	setString(&c.Statuses.Pending, "FLATTODO_STATUS_PENDING")
	setString(&c.Statuses.Done, "FLATTODO_STATUS_DONE")
	setString(&c.LogLevel, "FLATTODO_LOG_LEVEL")
	setString(&c.TelegramToken, "TELEGRAM_TOKEN")
	setString(&c.ReportAt, "FLATTODO_REPORT_AT")

	if raw := strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS")); raw != "" {
		if d := parseInterval(raw); d > 0 {
			c.ReportInterval = d
		}
	}
	if err := setDuration(&c.Retention, "FLATTODO_RETENTION"); err != nil {
		return err
	}
	if err := setDuration(&c.PruneInterval, "FLATTODO_PRUNE_INTERVAL"); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("FLATTODO_MAX_PRIORITY")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("FLATTODO_MAX_PRIORITY: %w", err)
		}
		c.MaxPriority = n
	}
	if raw := strings.TrimSpace(os.Getenv("FLATTODO_REPORT_CHATS")); raw != "" {
		ids, err := parseChatIDs(raw)
		if err != nil {
			return err
		}
		c.ReportChatIDs = ids
	}
	return nil
}

// Validate checks that every setting can be turned into a working engine.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir is required")
	}
	if _, err := c.Codec(); err != nil {
		return err
	}
	if _, err := c.NameRule(); err != nil {
		return err
	}
	if _, err := repository.ParseCasePolicy(c.CasePolicy); err != nil {
		return err
	}
	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", c.Retention)
	}
	// the stored priority is a single character so lines sort by it
	if c.MaxPriority < 1 || c.MaxPriority > 9 {
		return fmt.Errorf("max_priority must be between 1 and 9, got %d", c.MaxPriority)
	}
	if c.Statuses.Done == "" || c.Statuses.Pending == c.Statuses.Done {
		return fmt.Errorf("statuses.done must be set and differ from statuses.pending")
	}
	if c.PruneInterval <= 0 || c.ReportInterval <= 0 {
		return fmt.Errorf("prune_interval and report_interval must be positive")
	}
	return nil
}

// RequireTelegram checks the settings only the bot needs.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Codec builds the text codec for the configured encodings.
func (c Config) Codec() (*codec.Codec, error) {
	return codec.New(c.InputEncoding, c.StorageEncoding)
}

// NameRule compiles the category pattern.
func (c Config) NameRule() (*model.NameRule, error) {
	return model.NewNameRule(c.CategoryPattern)
}

// Labels returns the status labels.
func (c Config) Labels() model.StatusLabels {
	return model.StatusLabels{Pending: c.Statuses.Pending, Done: c.Statuses.Done}
}

// WriteDefault writes the default settings to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func parseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}
