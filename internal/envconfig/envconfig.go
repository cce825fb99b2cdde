// Package envconfig reads the process's operational settings from the
// environment. No pack example carries a dedicated env-struct-binding
// library (no caarlos0/env, kelseyhightower/envconfig, or spf13/viper
// appears in any _examples/ go.mod), so this seam stays on os.Getenv and
// strconv, matching the direct-env-var style of the teacher's own
// internal/config package and of the Python original this spec was
// distilled from.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every environment-supplied operational setting named in
// the external-interfaces section of the spec.
type Config struct {
	AdminToken string
	DefaultModel string

	DockerTimeout  time.Duration
	HealthTimeout  time.Duration
	PollInterval   time.Duration

	LiteLLMModelsURL          string
	LiteLLMKey                string
	LiteLLMVerifyTimeout      time.Duration

	ComfyDefaultTTL time.Duration
	ComfyMaxTTL     time.Duration

	ModeMonitorPoll time.Duration

	ConfigDir     string
	TemplateDir   string
	ComfyContainer string

	SwitchRateLimitPerMinute int

	// The remaining fields are not named in spec.md's configuration list
	// but are required to actually construct the process: the orchestration
	// port's Docker-socket-proxy URL (the teacher's and the original
	// source's DOCKER_PROXY_URL, here ORCH_BASE_URL), the catalogue YAML
	// path, and the HTTP listen address.
	OrchBaseURL  string
	CatalogPath  string
	ListenAddr   string
}

// Load builds a Config from the process environment, applying the
// defaults spelled out in the spec for every optional setting.
func Load() (Config, error) {
	cfg := Config{
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		DefaultModel:   os.Getenv("DEFAULT_MODEL"),
		LiteLLMModelsURL: os.Getenv("LITELLM_MODELS_URL"),
		LiteLLMKey:       os.Getenv("LITELLM_KEY"),
		ConfigDir:      envOrDefault("CONFIG_DIR", "./state"),
		TemplateDir:    envOrDefault("TEMPLATE_DIR", "./templates"),
		ComfyContainer: envOrDefault("COMFY_CONTAINER", "comfyui"),
		OrchBaseURL:    envOrDefault("ORCH_BASE_URL", "http://docker-socket-proxy:2375"),
		CatalogPath:    envOrDefault("CATALOG_PATH", "./models.yaml"),
		ListenAddr:     envOrDefault("LISTEN_ADDR", ":9000"),
	}

	var err error
	if cfg.DockerTimeout, err = envSeconds("DOCKER_TIMEOUT_SECONDS", 30); err != nil {
		return Config{}, err
	}
	if cfg.HealthTimeout, err = envSeconds("HEALTH_TIMEOUT_SECONDS", 480); err != nil {
		return Config{}, err
	}
	if cfg.PollInterval, err = envSeconds("POLL_INTERVAL_SECONDS", 2); err != nil {
		return Config{}, err
	}
	if cfg.LiteLLMVerifyTimeout, err = envSeconds("LITELLM_VERIFY_TIMEOUT_SECONDS", 90); err != nil {
		return Config{}, err
	}
	if cfg.ComfyDefaultTTL, err = envMinutes("COMFY_DEFAULT_TTL_MINUTES", 45); err != nil {
		return Config{}, err
	}
	if cfg.ComfyMaxTTL, err = envMinutes("COMFY_MAX_TTL_MINUTES", 90); err != nil {
		return Config{}, err
	}
	if cfg.ModeMonitorPoll, err = envSeconds("MODE_MONITOR_POLL_SECONDS", 5); err != nil {
		return Config{}, err
	}
	if cfg.SwitchRateLimitPerMinute, err = envInt("SWITCH_RATE_LIMIT_PER_MINUTE", 0); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("envconfig: %s: %w", key, err)
	}
	return n, nil
}

func envSeconds(key string, defSeconds int) (time.Duration, error) {
	n, err := envInt(key, defSeconds)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func envMinutes(key string, defMinutes int) (time.Duration, error) {
	n, err := envInt(key, defMinutes)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Minute, nil
}
