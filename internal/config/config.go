package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the orchestration service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	SchedulerTick      time.Duration
	TaskStaleness      time.Duration
	StuckTaskWindow    time.Duration
	DispatchTimeout    time.Duration
	PollTimeout        time.Duration
	MaxTasksPerSession int

	ContradictionPollInterval time.Duration
	HealthPollInterval        time.Duration
	HealthEndpoints           []HealthEndpoint

	LLMMode string

	DatabaseURL string
}

// HealthEndpoint is one probed service, parsed from HEALTH_ENDPOINTS
// ("name=url" pairs separated by commas).
type HealthEndpoint struct {
	Name string
	URL  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "aura"),
		AllowAnyOrigin:   false,
		LLMMode:          envOrDefault("LLM_MODE", "mock"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		SchedulerTick:            5 * time.Second,
		TaskStaleness:            5 * time.Minute,
		StuckTaskWindow:          15 * time.Minute,
		DispatchTimeout:          2 * time.Minute,
		PollTimeout:              30 * time.Second,
		MaxTasksPerSession:       128,

		ContradictionPollInterval: time.Minute,
		HealthPollInterval:        time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SchedulerTick, err = durationFromEnv("SCHEDULER_TICK", cfg.SchedulerTick)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskStaleness, err = durationFromEnv("TASK_STALENESS_WINDOW", cfg.TaskStaleness)
	if err != nil {
		return Config{}, err
	}
	cfg.StuckTaskWindow, err = durationFromEnv("STUCK_TASK_WINDOW", cfg.StuckTaskWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchTimeout, err = durationFromEnv("DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PollTimeout, err = durationFromEnv("POLL_TIMEOUT", cfg.PollTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ContradictionPollInterval, err = durationFromEnv("CONTRADICTION_POLL_INTERVAL", cfg.ContradictionPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.HealthPollInterval, err = durationFromEnv("HEALTH_POLL_INTERVAL", cfg.HealthPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxTasksPerSession, err = intFromEnv("MAX_TASKS_PER_SESSION", cfg.MaxTasksPerSession)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.HealthEndpoints, err = endpointsFromEnv("HEALTH_ENDPOINTS")
	if err != nil {
		return Config{}, err
	}

	// The tick is clamped rather than rejected so an aggressive setting
	// degrades to the floor instead of hot-looping the pollers.
	if cfg.SchedulerTick < 5*time.Second {
		cfg.SchedulerTick = 5 * time.Second
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.TaskStaleness <= 0 {
		return Config{}, fmt.Errorf("TASK_STALENESS_WINDOW must be positive")
	}
	if cfg.StuckTaskWindow < cfg.TaskStaleness {
		return Config{}, fmt.Errorf("STUCK_TASK_WINDOW must be at least TASK_STALENESS_WINDOW")
	}
	if cfg.DispatchTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}
	if cfg.PollTimeout <= 0 {
		return Config{}, fmt.Errorf("POLL_TIMEOUT must be positive")
	}
	if cfg.MaxTasksPerSession <= 0 {
		return Config{}, fmt.Errorf("MAX_TASKS_PER_SESSION must be positive")
	}
	switch cfg.LLMMode {
	case "mock":
	default:
		return Config{}, fmt.Errorf("LLM_MODE %q is not supported", cfg.LLMMode)
	}

	return cfg, nil
}

func endpointsFromEnv(key string) ([]HealthEndpoint, error) {
	raw := stringsTrimSpace(key)
	if raw == "" {
		return nil, nil
	}
	var out []HealthEndpoint
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		url = strings.TrimSpace(url)
		if !ok || name == "" || url == "" {
			return nil, fmt.Errorf("%s parse error: expected name=url, got %q", key, pair)
		}
		out = append(out, HealthEndpoint{Name: name, URL: url})
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
