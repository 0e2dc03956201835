package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwhite/inkling/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup: write config and store the API key",
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("=== Inkling Setup ===")
	fmt.Println()

	// Load existing config as defaults
	existing, _ := config.Load()
	if existing == nil {
		existing = &config.Config{}
	}

	cfg := &config.Config{}

	fmt.Println("-- Engine --")
	cfg.Engine.Model = prompt(reader, "Model", existing.Engine.Model)
	cfg.Engine.BaseURL = prompt(reader, "Base URL (empty for default)", existing.Engine.BaseURL)

	account := config.KeyAnthropicAPIKey
	if strings.HasPrefix(cfg.Engine.Model, "gpt") {
		cfg.Engine.Name = "openai"
		account = config.KeyOpenAIAPIKey
	}
	apiKey := promptSecret(reader, "API key", existing.Engine.APIKey != "")
	if apiKey != "" {
		if err := config.SetKeyringSecret(account, apiKey); err != nil {
			return fmt.Errorf("storing API key in keyring: %w", err)
		}
		fmt.Println("  -> Stored in keyring")
	} else {
		fmt.Println("  -> Kept existing")
	}

	fmt.Println()
	fmt.Println("-- Trigger --")
	cfg.Trigger.Corner = prompt(reader, "Trigger corner (upper-right/upper-left/lower-right/lower-left)", existing.Trigger.Corner)

	if err := config.WriteConfigFile(cfg); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	fmt.Printf("Config written to %s\n", config.DefaultConfigPath())
	fmt.Println("Setup complete!")
	return nil
}

// prompt asks for a value with an optional default.
func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal
	}
	return line
}

// promptSecret asks for a secret value. If one already exists, allows
// keeping it.
func promptSecret(reader *bufio.Reader, label string, hasExisting bool) string {
	if hasExisting {
		fmt.Printf("  %s [press Enter to keep existing]: ", label)
	} else {
		fmt.Printf("  %s: ", label)
	}
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
