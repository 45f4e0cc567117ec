// Package config loads the run configuration: a versioned YAML file with
// PROMPTFORGE_-prefixed environment overrides. Credentials are not handled
// here; provider adapters read their own API key variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danshapiro/promptforge/internal/llm"
)

const fileVersion = 1

type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts,omitempty"`
	InitialDelayMS int     `yaml:"initial_delay_ms,omitempty"`
	BackoffFactor  float64 `yaml:"backoff_factor,omitempty"`
	MaxDelayMS     int     `yaml:"max_delay_ms,omitempty"`
	Jitter         bool    `yaml:"jitter,omitempty"`
}

type File struct {
	Version     int         `yaml:"version"`
	Mode        string      `yaml:"mode,omitempty"`
	Provider    string      `yaml:"provider,omitempty"`
	Model       string      `yaml:"model,omitempty"`
	MaxTokens   int         `yaml:"max_tokens,omitempty"`
	Temperature float64     `yaml:"temperature,omitempty"`
	SessionDir  string      `yaml:"session_dir,omitempty"`
	CassetteDir string      `yaml:"cassette_dir,omitempty"`
	Retry       RetryConfig `yaml:"retry,omitempty"`
	LogLevel    string      `yaml:"log_level,omitempty"`
}

func Default() File {
	return File{
		Version:     fileVersion,
		Mode:        string(llm.ModeDryRun),
		Model:       "mock-optimizer",
		MaxTokens:   1024,
		SessionDir:  "sessions",
		CassetteDir: "cassettes",
		LogLevel:    "info",
	}
}

// Load reads the file at path, falling back to defaults when path is empty.
// Environment overrides are applied last.
func Load(path string) (File, error) {
	f := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &f); err != nil {
			return File{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		if f.Version != fileVersion {
			return File{}, fmt.Errorf("config %s: unsupported version %d", path, f.Version)
		}
	}
	f.applyEnv()
	if _, err := llm.ParseMode(f.Mode); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f *File) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_MODE")); v != "" {
		f.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_PROVIDER")); v != "" {
		f.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_MODEL")); v != "" {
		f.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_SESSION_DIR")); v != "" {
		f.SessionDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_CASSETTE_DIR")); v != "" {
		f.CassetteDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_MAX_TOKENS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.MaxTokens = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PROMPTFORGE_LOG_LEVEL")); v != "" {
		f.LogLevel = v
	}
}

// ClientMode returns the validated execution mode.
func (f File) ClientMode() llm.Mode {
	m, _ := llm.ParseMode(f.Mode)
	return m
}

// RetryPolicy converts the retry block, falling back to the client defaults
// for unset fields.
func (f File) RetryPolicy() llm.RetryPolicy {
	p := llm.DefaultRetryPolicy()
	if f.Retry.MaxAttempts > 0 {
		p.MaxAttempts = f.Retry.MaxAttempts
	}
	if f.Retry.InitialDelayMS > 0 {
		p.InitialDelay = time.Duration(f.Retry.InitialDelayMS) * time.Millisecond
	}
	if f.Retry.BackoffFactor > 0 {
		p.BackoffFactor = f.Retry.BackoffFactor
	}
	if f.Retry.MaxDelayMS > 0 {
		p.MaxDelay = time.Duration(f.Retry.MaxDelayMS) * time.Millisecond
	}
	p.Jitter = f.Retry.Jitter
	return p
}
