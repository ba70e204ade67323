package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bsakel/denbot/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize denbot configuration and workspace",
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists at %s\n", configPath)
	} else {
		os.MkdirAll(filepath.Dir(configPath), 0755)
		if err := config.Save(config.DefaultConfig(), ""); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		fmt.Printf("✓ Created config at %s\n", configPath)
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	os.MkdirAll(cfg.Workspace, 0755)
	os.MkdirAll(cfg.MailboxDir(), 0755)
	fmt.Printf("✓ Workspace at %s\n", cfg.Workspace)

	templates := map[string]string{
		"AGENTS.md": "# Agent Instructions\n\nYou are a helpful personal assistant. Be concise, accurate, and friendly.\n\n## Guidelines\n\n- Ask for clarification when a request is ambiguous\n- Use tools to accomplish tasks instead of guessing\n- Save durable facts with the update_memory tool\n",
		"USER.md":   "# User\n\nInformation about the user goes here.\n\n## Preferences\n\n- Communication style: (casual/formal)\n- Timezone: (your timezone)\n- Language: (your preferred language)\n",
		"agents.yaml": `agents:
  - id: assistant
    description: General-purpose assistant and router
    is_router: true
    is_default: true
  - id: research
    description: Deep research and summarization specialist
`,
	}
	for filename, content := range templates {
		path := filepath.Join(cfg.Workspace, filename)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			os.WriteFile(path, []byte(content), 0644)
			fmt.Printf("  Created %s\n", filename)
		}
	}

	memDir := filepath.Join(cfg.Workspace, "memory")
	os.MkdirAll(memDir, 0755)
	memFile := filepath.Join(memDir, "MEMORY.md")
	if _, err := os.Stat(memFile); os.IsNotExist(err) {
		os.WriteFile(memFile, []byte("# Long-term Memory\n\n"), 0644)
		fmt.Println("  Created memory/MEMORY.md")
	}

	fmt.Println("\ndenbot is ready!")
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Add your API key to %s\n", configPath)
	fmt.Println("  2. Chat: denbot chat -m \"Hello!\"")
	fmt.Println("  3. Serve: denbot serve")
	return nil
}
