// Package config loads and validates Hikyaku's configuration.
//
// Configuration is environment-first: every setting has an environment
// variable, and a YAML file (HIKYAKU_CONFIG) may sit underneath for
// deployments that prefer files. Precedence: environment variable > file
// value > built-in default. The file is validated against an embedded JSON
// schema before any value is read from it, so malformed deployments fail at
// startup with a precise path instead of misbehaving later.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Hikyaku/common/environment"
)

// Config holds the full runtime configuration.
type Config struct {
	// Token is the Telegram bot token from @BotFather.
	Token string

	// PollTimeout is the long-poll timeout in seconds for getUpdates.
	PollTimeout int

	// AdminIDs are the Telegram user IDs with full relay access.
	AdminIDs []int64

	// RestrictedUsers maps Telegram user IDs to resident slugs. These users
	// can only submit receipts; their slug names the purchases directory.
	RestrictedUsers map[int64]string

	// ClaudeBin is the path to the assistant CLI binary.
	ClaudeBin string

	// SessionKey is the history session key for the admin relay conversation.
	SessionKey string

	// InvokeTimeout bounds a single assistant invocation. Zero means wait
	// indefinitely.
	InvokeTimeout time.Duration

	// DatabasePath is the SQLite history database location.
	DatabasePath string

	// HTTPAddr is the listen address for the health server. Empty disables it.
	HTTPAddr string
}

// fileConfig mirrors Config with YAML tags and file-friendly types.
// invoke_timeout is a duration string ("2m", "0") so the schema can check it.
type fileConfig struct {
	Telegram struct {
		Token       string `yaml:"token"`
		PollTimeout int    `yaml:"poll_timeout"`
	} `yaml:"telegram"`
	Claude struct {
		BinPath       string `yaml:"bin_path"`
		SessionKey    string `yaml:"session_key"`
		InvokeTimeout string `yaml:"invoke_timeout"`
	} `yaml:"claude"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Admins          []int64 `yaml:"admins"`
	RestrictedUsers []struct {
		ID   int64  `yaml:"id"`
		Slug string `yaml:"slug"`
	} `yaml:"restricted_users"`
}

// Default returns a Config with built-in defaults applied.
func Default() *Config {
	return &Config{
		PollTimeout:     30,
		RestrictedUsers: map[int64]string{},
		ClaudeBin:       defaultClaudeBin(),
		SessionKey:      "telegram-bot",
		DatabasePath:    "./hikyaku.db",
	}
}

// defaultClaudeBin returns ~/.local/bin/claude, falling back to a bare
// "claude" (PATH lookup) when the home directory cannot be resolved.
func defaultClaudeBin() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "claude"
	}
	return filepath.Join(home, ".local", "bin", "claude")
}

// Load builds the effective configuration: defaults, then the YAML file
// named by HIKYAKU_CONFIG (when set), then environment overrides. The result
// is validated; callers get an error rather than a partially usable config.
func Load() (*Config, error) {
	cfg := Default()

	if path := environment.StringOr("HIKYAKU_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads, schema-validates, and merges a YAML config file into cfg.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	fc, err := parseFile(data)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	if fc.Telegram.Token != "" {
		c.Token = fc.Telegram.Token
	}
	if fc.Telegram.PollTimeout > 0 {
		c.PollTimeout = fc.Telegram.PollTimeout
	}
	if fc.Claude.BinPath != "" {
		c.ClaudeBin = fc.Claude.BinPath
	}
	if fc.Claude.SessionKey != "" {
		c.SessionKey = fc.Claude.SessionKey
	}
	if fc.Claude.InvokeTimeout != "" {
		d, err := time.ParseDuration(fc.Claude.InvokeTimeout)
		if err != nil {
			return fmt.Errorf("config: %s: claude.invoke_timeout: %w", path, err)
		}
		c.InvokeTimeout = d
	}
	if fc.Database.Path != "" {
		c.DatabasePath = fc.Database.Path
	}
	if fc.HTTP.Addr != "" {
		c.HTTPAddr = fc.HTTP.Addr
	}
	if len(fc.Admins) > 0 {
		c.AdminIDs = fc.Admins
	}
	for _, ru := range fc.RestrictedUsers {
		c.RestrictedUsers[ru.ID] = ru.Slug
	}
	return nil
}

// parseFile decodes YAML and validates the document against the embedded
// schema. Validation runs on a JSON round-trip of the decoded document so the
// schema engine sees the value types it is specified over.
func parseFile(data []byte) (*fileConfig, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize yaml document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("normalize yaml document: %w", err)
	}

	if err := schema().Validate(doc); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &fc, nil
}

// applyEnvironment overlays environment variables onto cfg.
func (c *Config) applyEnvironment() error {
	c.Token = environment.StringOr("TELEGRAM_BOT_TOKEN", c.Token)
	c.PollTimeout = environment.IntOr("TELEGRAM_POLL_TIMEOUT", c.PollTimeout)
	c.ClaudeBin = environment.StringOr("CLAUDE_BIN_PATH", c.ClaudeBin)
	c.SessionKey = environment.StringOr("CLAUDE_SESSION_ID", c.SessionKey)
	c.InvokeTimeout = environment.DurationOr("CLAUDE_INVOKE_TIMEOUT", c.InvokeTimeout)
	c.DatabasePath = environment.StringOr("DATABASE_PATH", c.DatabasePath)
	c.HTTPAddr = environment.StringOr("HTTP_ADDR", c.HTTPAddr)

	admins, err := environment.Int64SliceOr("ADMIN_TELEGRAM_ID", c.AdminIDs)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.AdminIDs = admins

	restricted, err := environment.PairsOr("RESTRICTED_USERS", c.RestrictedUsers)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.RestrictedUsers = restricted
	return nil
}

// Validate checks that the configuration is complete enough to start.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required")
	}
	if len(c.AdminIDs) == 0 {
		return fmt.Errorf("config: ADMIN_TELEGRAM_ID is required")
	}
	if c.SessionKey == "" {
		return fmt.Errorf("config: session key must not be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: database path must not be empty")
	}
	if c.PollTimeout < 1 || c.PollTimeout > 50 {
		return fmt.Errorf("config: poll timeout %d outside Bot API range [1,50]", c.PollTimeout)
	}
	if c.InvokeTimeout < 0 {
		return fmt.Errorf("config: invoke timeout must not be negative")
	}
	return nil
}

// CheckBinary verifies the assistant CLI exists and is a regular file.
// Separated from Validate so tests can build configs without a real binary.
func (c *Config) CheckBinary() error {
	info, err := os.Stat(c.ClaudeBin)
	if err != nil {
		return fmt.Errorf("config: assistant binary not found at %s: %w", c.ClaudeBin, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: assistant binary path %s is a directory", c.ClaudeBin)
	}
	return nil
}

// IsAdmin reports whether id belongs to the admin allowlist.
func (c *Config) IsAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// RestrictedSlug returns the resident slug for a restricted user, if any.
func (c *Config) RestrictedSlug(id int64) (string, bool) {
	slug, ok := c.RestrictedUsers[id]
	return slug, ok
}

// schema compiles the embedded config schema. Compilation cannot fail at
// runtime because the schema is embedded and covered by tests; a broken
// schema is a programming error.
func schema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("config: add schema resource: %v", err))
	}
	sch, err := compiler.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: compile schema: %v", err))
	}
	return sch
}
