package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/bsakel/denbot/internal/agent"
	"github.com/bsakel/denbot/internal/bus"
	"github.com/bsakel/denbot/internal/cache"
	"github.com/bsakel/denbot/internal/config"
	"github.com/bsakel/denbot/internal/host"
	"github.com/bsakel/denbot/internal/mailbox"
	"github.com/bsakel/denbot/internal/pathguard"
	"github.com/bsakel/denbot/internal/providers"
	"github.com/bsakel/denbot/internal/registry"
	"github.com/bsakel/denbot/internal/session"
	"github.com/bsakel/denbot/internal/task"
)

// runtime bundles everything a command needs to run agents.
type runtime struct {
	cfg      config.Config
	db       *sql.DB
	store    task.Store
	registry *registry.Registry
	cache    *cache.Cache
	mailbox  *mailbox.FileMailbox
	bus      *bus.MessageBus
	runner   *agent.Runner
	host     *host.Host
}

// buildRuntime wires the full runtime from config. Callers own rt.close.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := os.MkdirAll(cfg.Workspace, 0755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.Workspace, "tasks.db"))
	if err != nil {
		return nil, fmt.Errorf("opening task db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := task.EnsureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("task schema: %w", err)
	}
	store := task.NewSQLiteStore(db)

	reg, err := registry.Load(cfg.AgentsFile(), cfg.Workspace)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("loading agents: %w", err)
	}

	mbox, err := mailbox.NewFileMailbox(mailbox.Options{
		Dir:          cfg.MailboxDir(),
		PollInterval: cfg.PollInterval(),
		SettleDelay:  cfg.SettleDelay(),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating mailbox: %w", err)
	}

	c := cache.New(cache.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	provider := makeProvider(cfg)
	runner := agent.NewRunner(provider, agent.NewContextBuilder(cfg.Workspace, c), session.NewManager(cfg.Workspace))

	roots, patterns := splitAllowList(cfg.Workspace, cfg.Tools.AllowedPaths)

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		store:    store,
		registry: reg,
		cache:    c,
		mailbox:  mbox,
		bus:      bus.New(),
		runner:   runner,
	}
	rt.host = host.New(host.Options{
		Store:           store,
		Registry:        reg,
		Runner:          runner,
		Bus:             rt.bus,
		Producer:        mbox,
		Responder:       mbox,
		Guard:           pathguard.New(roots, patterns),
		ListTimeout:     cfg.ListTimeout(),
		DelegateTimeout: cfg.DelegateTimeout(),
	})
	return rt, nil
}

func (rt *runtime) close() {
	rt.mailbox.Stop()
	rt.cache.Close()
	rt.db.Close()
}

// makeProvider creates an LLM provider from the loaded config, falling back
// to common environment variables for the key.
func makeProvider(cfg config.Config) providers.LLMProvider {
	apiKey := cfg.Provider.APIKey
	if apiKey == "" {
		for _, envKey := range []string{"DENBOT_API_KEY", "OPENAI_API_KEY", "OPENROUTER_API_KEY"} {
			if v := os.Getenv(envKey); v != "" {
				apiKey = v
				break
			}
		}
	}
	apiBase := cfg.Provider.APIBase
	if apiBase == "" && strings.HasPrefix(apiKey, "sk-or-") {
		apiBase = "https://openrouter.ai/api/v1"
	}
	return providers.NewOpenAIProvider(apiKey, apiBase, cfg.Provider.Model)
}

// splitAllowList separates allow-list entries into directory roots and glob
// patterns. The workspace is always a root.
func splitAllowList(workspace string, entries []string) (roots, patterns []string) {
	roots = []string{workspace}
	for _, e := range entries {
		if strings.ContainsAny(e, "*?[") {
			patterns = append(patterns, e)
		} else {
			roots = append(roots, e)
		}
	}
	return roots, patterns
}
