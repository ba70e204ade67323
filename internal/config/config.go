// Package config handles configuration loading, saving, and schema
// definition.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level denbot configuration. json tags are camelCase to
// match the config file format.
type Config struct {
	Workspace string          `json:"workspace"`
	Provider  ProviderConfig  `json:"provider"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Mailbox   MailboxConfig   `json:"mailbox"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Requests  RequestsConfig  `json:"requests"`
	Tools     ToolsConfig     `json:"tools"`
	Redis     RedisConfig     `json:"redis"`
}

// ProviderConfig holds inference endpoint settings.
type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	APIBase string `json:"apiBase,omitempty"`
	Model   string `json:"model,omitempty"`
}

// DispatchConfig bounds work execution.
type DispatchConfig struct {
	MaxConcurrent int `json:"maxConcurrent,omitempty"` // admission ceiling N
}

// MailboxConfig tunes the file transport.
type MailboxConfig struct {
	Dir            string `json:"dir,omitempty"` // defaults to <workspace>/mailbox
	PollIntervalMs int    `json:"pollIntervalMs,omitempty"`
	SettleDelayMs  int    `json:"settleDelayMs,omitempty"`
}

// SchedulerConfig tunes the task driver.
type SchedulerConfig struct {
	TickSeconds       int `json:"tickSeconds,omitempty"`
	RunTimeoutSeconds int `json:"runTimeoutSeconds,omitempty"`
}

// RequestsConfig sets per-request-type timeouts for correlated requests.
type RequestsConfig struct {
	ListTimeoutSeconds     int `json:"listTimeoutSeconds,omitempty"`
	DelegateTimeoutSeconds int `json:"delegateTimeoutSeconds,omitempty"`
}

// ToolsConfig holds tool-level settings.
type ToolsConfig struct {
	// AllowedPaths are extra allow-list entries beyond the workspace:
	// directories or filepath.Match globs.
	AllowedPaths []string `json:"allowedPaths,omitempty"`
}

// RedisConfig holds optional cache settings.
type RedisConfig struct {
	URL      string `json:"url,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Workspace: filepath.Join(home, ".denbot", "workspace"),
		Provider:  ProviderConfig{Model: "gpt-4.1-mini"},
		Dispatch:  DispatchConfig{MaxConcurrent: 4},
		Mailbox:   MailboxConfig{PollIntervalMs: 500, SettleDelayMs: 50},
		Scheduler: SchedulerConfig{TickSeconds: 30, RunTimeoutSeconds: 300},
		Requests:  RequestsConfig{ListTimeoutSeconds: 10, DelegateTimeoutSeconds: 300},
	}
}

// MailboxDir returns the resolved mailbox directory.
func (c Config) MailboxDir() string {
	if c.Mailbox.Dir != "" {
		return c.Mailbox.Dir
	}
	return filepath.Join(c.Workspace, "mailbox")
}

// AgentsFile returns the path of agents.yaml inside the workspace.
func (c Config) AgentsFile() string {
	return filepath.Join(c.Workspace, "agents.yaml")
}

// PollInterval returns the mailbox poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Mailbox.PollIntervalMs) * time.Millisecond
}

// SettleDelay returns the mailbox settle delay as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Mailbox.SettleDelayMs) * time.Millisecond
}

// Tick returns the scheduler tick as a duration.
func (c Config) Tick() time.Duration {
	return time.Duration(c.Scheduler.TickSeconds) * time.Second
}

// RunTimeout returns the per-task invocation timeout.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Scheduler.RunTimeoutSeconds) * time.Second
}

// ListTimeout returns the timeout for list-style correlated requests.
func (c Config) ListTimeout() time.Duration {
	return time.Duration(c.Requests.ListTimeoutSeconds) * time.Second
}

// DelegateTimeout returns the default timeout for delegated sub-tasks.
func (c Config) DelegateTimeout() time.Duration {
	return time.Duration(c.Requests.DelegateTimeoutSeconds) * time.Second
}
