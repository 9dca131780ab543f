package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Formula-SAE/taskbot/internal/naming"
)

type Config struct {
	Discord    DiscordConfig   `yaml:"discord"`
	Database   DatabaseConfig  `yaml:"database"`
	LogLevel   string          `yaml:"log_level"`
	Channels   ChannelNames    `yaml:"channels"`
	Reconcile  ReconcileConfig `yaml:"reconcile"`
	Tasks      TasksConfig     `yaml:"tasks"`
	Categories []Category      `yaml:"categories" validate:"required,min=1,unique=RoleID,dive"`
}

type DiscordConfig struct {
	Token         string `yaml:"token" validate:"required"`
	GuildID       string `yaml:"guild_id"`
	ApplicationID string `yaml:"application_id"`
}

// DatabaseConfig points at the optional task journal. An empty URL disables it.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ChannelNames are the names of the four managed channels every category owns.
type ChannelNames struct {
	Starter    string `yaml:"starter" validate:"required"`
	Assignment string `yaml:"assignment" validate:"required"`
	Registry   string `yaml:"registry" validate:"required"`
	Videos     string `yaml:"videos" validate:"required"`
}

type ReconcileConfig struct {
	// StripUnaffiliated hides every managed channel from members holding no
	// tracked role at all instead of skipping them.
	StripUnaffiliated bool    `yaml:"strip_unaffiliated"`
	EditsPerSecond    float64 `yaml:"edits_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=1"`
	Concurrency       int     `yaml:"concurrency" validate:"gte=1"`
	// Schedule is a cron spec for the periodic sweep, empty disables it.
	Schedule string `yaml:"schedule"`
}

type TasksConfig struct {
	UploadTimeout        time.Duration `yaml:"upload_timeout" validate:"gt=0"`
	HideAdminsInSelector bool          `yaml:"hide_admins_in_selector"`
}

// Category is one organizational grouping: a role, an optional admin role and
// the platform category channel holding its managed channels.
type Category struct {
	Name        string `yaml:"name" validate:"required"`
	CategoryID  string `yaml:"category_id"`
	RoleID      string `yaml:"role_id" validate:"required"`
	AdminRoleID string `yaml:"admin_role_id"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Channels: ChannelNames{
			Starter:    "crear-canal",
			Assignment: "asignar-tareas",
			Registry:   "registro-tareas",
			Videos:     "videos-tareas",
		},
		Reconcile: ReconcileConfig{
			EditsPerSecond: 5,
			Burst:          5,
			Concurrency:    4,
			Schedule:       "@every 6h",
		},
		Tasks: TasksConfig{
			UploadTimeout: 5 * time.Minute,
		},
	}
}

// Load reads an optional .env file, the YAML file at configPath (config.yaml when
// empty) and the environment overrides, then validates the result.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", configPath, err)
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overrideFromEnv() error {
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		c.Discord.Token = token
	}
	if guildID := os.Getenv("GUILD_ID"); guildID != "" {
		c.Discord.GuildID = guildID
	}
	if appID := os.Getenv("APPLICATION_ID"); appID != "" {
		c.Discord.ApplicationID = appID
	}
	if dbURL := os.Getenv("DB_URL"); dbURL != "" {
		c.Database.URL = dbURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if timeout := os.Getenv("UPLOAD_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid UPLOAD_TIMEOUT %q: %w", timeout, err)
		}
		c.Tasks.UploadTimeout = d
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CategoryByChannelID returns the category whose category channel is categoryID.
func (c *Config) CategoryByChannelID(categoryID string) (*Category, bool) {
	if categoryID == "" {
		return nil, false
	}
	for i := range c.Categories {
		if c.Categories[i].CategoryID == categoryID {
			return &c.Categories[i], true
		}
	}
	return nil, false
}

// CategoryByName matches names ignoring case and accents.
func (c *Config) CategoryByName(name string) (*Category, bool) {
	want := naming.Normalize(name)
	for i := range c.Categories {
		if naming.Normalize(c.Categories[i].Name) == want {
			return &c.Categories[i], true
		}
	}
	return nil, false
}
