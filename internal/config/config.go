// Package config provides centralized configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/danielolaszy/gfl/pkg/models"
)

// Config holds all configuration parameters for the application.
type Config struct {
	DataDir           string
	LogLevel          string
	MaxResults        int
	CreatePullRequest bool
	Badges            map[models.Status]Badge
	GitHub            GitHubConfig
}

// GitHubConfig holds GitHub specific configuration. Without a token pull
// requests are opened through the workspace's PR URL template instead.
type GitHubConfig struct {
	Token      string
	Domain     string
	BaseBranch string
}

// Badge is the marker and colour shown next to an issue of a given status.
type Badge struct {
	Badge string
	Color string
}

var defaultBadges = map[models.Status]Badge{
	models.StatusOpen:       {Badge: "•", Color: "gray"},
	models.StatusInProgress: {Badge: "••", Color: "blue"},
	models.StatusReview:     {Badge: "•••", Color: "yellow"},
	models.StatusDone:       {Badge: "✔", Color: "green"},
}

// DefaultDir returns ~/.config/gfl.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "gfl"), nil
}

// LoadConfig reads configFile (or config.yaml in the default directory when
// empty) and GFL_* environment variables. A missing config file is not an
// error.
func LoadConfig(configFile string) (*Config, error) {
	baseDir, err := DefaultDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(baseDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("GFL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("github.token", "GFL_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("log_level", "GFL_LOG_LEVEL", "LOG_LEVEL")

	v.SetDefault("data_dir", filepath.Join(baseDir, "data"))
	v.SetDefault("log_level", "info")
	v.SetDefault("max_results", 100)
	v.SetDefault("create_pull_request", true)
	v.SetDefault("github.domain", "github.com")
	v.SetDefault("github.base_branch", "main")
	for status, badge := range defaultBadges {
		v.SetDefault("badges."+string(status)+".badge", badge.Badge)
		v.SetDefault("badges."+string(status)+".color", badge.Color)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := &Config{
		DataDir:           v.GetString("data_dir"),
		LogLevel:          v.GetString("log_level"),
		MaxResults:        v.GetInt("max_results"),
		CreatePullRequest: v.GetBool("create_pull_request"),
		Badges:            make(map[models.Status]Badge, len(models.Statuses)),
		GitHub: GitHubConfig{
			Token:      v.GetString("github.token"),
			Domain:     v.GetString("github.domain"),
			BaseBranch: v.GetString("github.base_branch"),
		},
	}
	for _, status := range models.Statuses {
		config.Badges[status] = Badge{
			Badge: v.GetString("badges." + string(status) + ".badge"),
			Color: v.GetString("badges." + string(status) + ".color"),
		}
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate ensures that all configuration values are usable.
func Validate(config *Config) error {
	var problems []string

	if config.DataDir == "" {
		problems = append(problems, "data_dir is empty")
	}
	if config.MaxResults <= 0 {
		problems = append(problems, fmt.Sprintf("max_results must be positive, got %d", config.MaxResults))
	}
	if config.CreatePullRequest && config.GitHub.BaseBranch == "" {
		problems = append(problems, "github.base_branch is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %v", problems)
	}

	return nil
}
