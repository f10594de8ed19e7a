// Package config loads server settings from defaults, an optional config
// file, REELFORGE_* environment variables and bound command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
	"github.com/example/reelforge/internal/providers/llm"
)

var ErrInvalidConfig = errors.New("invalid config")

const EnvPrefix = "REELFORGE"

type Config struct {
	Addr             string
	ProjectsDir      string
	MaxConnections   int
	HistorySize      int
	TaskLogLimit     int
	SubscriberBuffer int
	MaxDocumentBytes int64

	DecisionInterval time.Duration
	MaxAttempts      int
	MaxIterations    int
	QualityTarget    float64
	EvaluateWithLLM  bool

	LLM llm.Config
	Log logging.Config

	// Capabilities maps a tool to the argv that implements it.
	Capabilities      map[models.Tool][]string
	CapabilityTimeout time.Duration
}

// SetDefaults registers every key so environment lookups resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("projects_dir", "./projects")
	v.SetDefault("max_connections", 256)
	v.SetDefault("history_size", 100)
	v.SetDefault("task_log_limit", 500)
	v.SetDefault("subscriber_buffer", 256)
	v.SetDefault("max_document_bytes", 20<<20)
	v.SetDefault("decision_interval", "2s")
	v.SetDefault("max_attempts", 3)
	v.SetDefault("max_iterations", 30)
	v.SetDefault("quality_target", 0.8)
	v.SetDefault("evaluate_with_llm", false)
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", "45s")
	v.SetDefault("capability_timeout", "30m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	for _, tool := range models.Tools {
		v.SetDefault(capabilityKey(tool), []string{})
	}
	// Legacy variables only move the defaults.
	if port := os.Getenv("PORT"); port != "" {
		v.SetDefault("addr", ":"+port)
	}
	if ms, err := strconv.Atoi(os.Getenv("LLM_HTTP_TIMEOUT_MS")); err == nil && ms > 0 {
		v.SetDefault("llm.timeout", time.Duration(ms)*time.Millisecond)
	}
}

func capabilityKey(tool models.Tool) string { return "capabilities." + string(tool) + ".command" }

// Load reads .env, then file (or reelforge.{yaml,json} in . or $HOME when
// file is empty), then the environment.
func Load(v *viper.Viper, file string) (Config, error) {
	_ = godotenv.Load()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Provider variables shared with other tools.
	_ = v.BindEnv("llm.provider", EnvPrefix+"_LLM_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("llm.model", EnvPrefix+"_LLM_MODEL", "LLM_MODEL")
	_ = v.BindEnv("llm.base_url", EnvPrefix+"_LLM_BASE_URL", "OPENAI_API_BASE")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("reelforge")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper converts resolved viper values and validates them.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:             v.GetString("addr"),
		ProjectsDir:      v.GetString("projects_dir"),
		MaxConnections:   v.GetInt("max_connections"),
		HistorySize:      v.GetInt("history_size"),
		TaskLogLimit:     v.GetInt("task_log_limit"),
		SubscriberBuffer: v.GetInt("subscriber_buffer"),
		MaxDocumentBytes: v.GetInt64("max_document_bytes"),

		DecisionInterval: v.GetDuration("decision_interval"),
		MaxAttempts:      v.GetInt("max_attempts"),
		MaxIterations:    v.GetInt("max_iterations"),
		QualityTarget:    v.GetFloat64("quality_target"),
		EvaluateWithLLM:  v.GetBool("evaluate_with_llm"),

		LLM: llm.Config{
			Provider: v.GetString("llm.provider"),
			Model:    v.GetString("llm.model"),
			APIKey:   v.GetString("llm.api_key"),
			BaseURL:  v.GetString("llm.base_url"),
			Timeout:  v.GetDuration("llm.timeout"),
		},
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Capabilities:      map[models.Tool][]string{},
		CapabilityTimeout: v.GetDuration("capability_timeout"),
	}

	for _, tool := range models.Tools {
		if argv := v.GetStringSlice(capabilityKey(tool)); len(argv) > 0 {
			cfg.Capabilities[tool] = argv
		}
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var problems []string
	if c.Addr == "" {
		problems = append(problems, "addr is empty")
	}
	if c.ProjectsDir == "" {
		problems = append(problems, "projects_dir is empty")
	}
	if c.QualityTarget < 0 || c.QualityTarget > 1 {
		problems = append(problems, fmt.Sprintf("quality_target %.2f outside [0,1]", c.QualityTarget))
	}
	if c.MaxAttempts < 1 {
		problems = append(problems, "max_attempts must be at least 1")
	}
	if c.MaxIterations < 1 {
		problems = append(problems, "max_iterations must be at least 1")
	}
	if c.DecisionInterval < 0 {
		problems = append(problems, "decision_interval is negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
