// Package registry loads specialist agent configurations from agents.yaml
// into an immutable in-memory snapshot.
//
// The snapshot is built once at startup and only ever replaced wholesale:
// readers can never observe a half-updated configuration. A router agent may
// delegate sub-tasks to any other configuration listed here.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// AgentSpec defines a single agent configuration (from agents.yaml).
type AgentSpec struct {
	ID               string   `yaml:"id" json:"id"`
	Description      string   `yaml:"description,omitempty" json:"description,omitempty"`
	Model            string   `yaml:"model,omitempty" json:"model,omitempty"`
	Temperature      float64  `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	MaxTokens        int      `yaml:"max_tokens,omitempty" json:"maxTokens,omitempty"`
	MaxIterations    int      `yaml:"max_iterations,omitempty" json:"maxIterations,omitempty"`
	SystemPromptFile string   `yaml:"system_prompt_file,omitempty" json:"systemPromptFile,omitempty"`
	Tools            []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	IsRouter         bool     `yaml:"is_router,omitempty" json:"isRouter,omitempty"`
	IsDefault        bool     `yaml:"is_default,omitempty" json:"isDefault,omitempty"`

	// SoulText is the loaded system prompt content, resolved at load time.
	SoulText string `yaml:"-" json:"-"`
}

// agentsFile is the top-level structure of agents.yaml.
type agentsFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

type snapshot struct {
	agents    map[string]AgentSpec
	order     []string
	defaultID string
}

// Registry holds the current configuration snapshot.
type Registry struct {
	current atomic.Pointer[snapshot]
}

// Load reads agents.yaml and builds a registry. A missing file yields a
// registry with a single built-in default agent (single-agent mode).
// Relative system_prompt_file paths resolve against the workspace.
func Load(path, workspace string) (*Registry, error) {
	r := &Registry{}
	if err := r.reload(path, workspace); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the file and swaps the whole snapshot in one publication.
func (r *Registry) Reload(path, workspace string) error {
	return r.reload(path, workspace)
}

func (r *Registry) reload(path, workspace string) error {
	specs, err := readSpecs(path)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		specs = []AgentSpec{{
			ID:          "assistant",
			Description: "General-purpose assistant",
			IsRouter:    true,
			IsDefault:   true,
		}}
	}

	snap := &snapshot{agents: make(map[string]AgentSpec, len(specs))}
	for _, spec := range specs {
		if spec.ID == "" {
			return fmt.Errorf("registry: agent without id in %s", path)
		}
		if _, dup := snap.agents[spec.ID]; dup {
			return fmt.Errorf("registry: duplicate agent id %q", spec.ID)
		}
		if spec.SystemPromptFile != "" {
			p := spec.SystemPromptFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(workspace, p)
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("registry: prompt file for %s: %w", spec.ID, err)
			}
			spec.SoulText = string(data)
		}
		snap.agents[spec.ID] = spec
		snap.order = append(snap.order, spec.ID)
		if spec.IsDefault && snap.defaultID == "" {
			snap.defaultID = spec.ID
		}
	}
	if snap.defaultID == "" {
		snap.defaultID = snap.order[0]
	}

	r.current.Store(snap)
	return nil
}

func readSpecs(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	var f agentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	return f.Agents, nil
}

// Get returns the configuration for an agent id.
func (r *Registry) Get(id string) (AgentSpec, bool) {
	spec, ok := r.current.Load().agents[id]
	return spec, ok
}

// Contains reports whether an agent id exists.
func (r *Registry) Contains(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// Default returns the default agent configuration.
func (r *Registry) Default() AgentSpec {
	snap := r.current.Load()
	return snap.agents[snap.defaultID]
}

// List returns all configurations in file order.
func (r *Registry) List() []AgentSpec {
	snap := r.current.Load()
	out := make([]AgentSpec, 0, len(snap.order))
	for _, id := range snap.order {
		out = append(out, snap.agents[id])
	}
	return out
}

// Len returns the number of configured agents.
func (r *Registry) Len() int {
	return len(r.current.Load().agents)
}
