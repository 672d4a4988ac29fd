package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	initForce           bool
	initWithConfig      bool
	initSkipClaudeCheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a Helmsman workspace",
	Long: `Initialize a directory for use with Helmsman.

This command sets up everything needed to run Helmsman:
  - Verifies the Claude Code CLI is available
  - Creates the .helmsman directory structure (signals, state)
  - Optionally writes a .helmsman.yaml config template

The directory argument is optional and defaults to the current directory.

Examples:
  helmsman init                  # Initialize current directory
  helmsman init ./myproject      # Initialize specific directory
  helmsman init --with-config    # Also write a .helmsman.yaml template`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithConfig, "with-config", false, "Write a .helmsman.yaml config template")
	initCmd.Flags().BoolVar(&initSkipClaudeCheck, "skip-claude-check", false, "Skip Claude CLI availability check")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing Helmsman in %s...\n\n", absPath)

	helmsmanDir := filepath.Join(absPath, ".helmsman")
	if _, err := os.Stat(helmsmanDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	if !initSkipClaudeCheck {
		if err := CheckClaudeCLI(); err != nil {
			printStatus("✗", "Claude Code CLI not found", color.FgRed)
			return err
		}
		printStatus("✓", "Claude Code CLI found", color.FgGreen)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (you can set it later)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	for _, dir := range []string{helmsmanDir, filepath.Join(helmsmanDir, "signals")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .helmsman directory structure", color.FgGreen)

	if err := updateGitignore(absPath); err == nil {
		printStatus("✓", "Updated .gitignore with Helmsman entries", color.FgGreen)
	}

	if initWithConfig {
		if err := writeProjectConfig(absPath); err != nil {
			return fmt.Errorf("writing project config: %w", err)
		}
		printStatus("✓", "Created .helmsman.yaml template", color.FgGreen)
	}

	fmt.Printf("\n%s Helmsman initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if apiKey == "" {
		fmt.Println("  1. Set your API key:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	fmt.Println("  2. Run a task:")
	fmt.Println("     helmsman run \"your task here\"")
	fmt.Println()
	fmt.Println("  3. Learn more:")
	fmt.Println("     helmsman --help")
	return nil
}

// printStatus prints a colored status line.
func printStatus(symbol, message string, attr color.Attribute) {
	color.New(attr).Printf("%s ", symbol)
	fmt.Println(message)
}

// updateGitignore appends Helmsman entries to .gitignore when the directory
// is a git repository.
func updateGitignore(root string) error {
	if _, err := os.Stat(filepath.Join(root, ".git")); err != nil {
		return err
	}

	path := filepath.Join(root, ".gitignore")
	existing, _ := os.ReadFile(path)
	if strings.Contains(string(existing), ".helmsman/") {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := "\n# Helmsman\n.helmsman/\n"
	_, err = f.WriteString(entry)
	return err
}

// writeProjectConfig writes a commented .helmsman.yaml template.
func writeProjectConfig(root string) error {
	template := map[string]interface{}{
		"anthropic": map[string]interface{}{
			"api_key": "${ANTHROPIC_API_KEY}",
			"model":   "",
		},
		"agent": map[string]interface{}{
			"binary": "",
			"model":  "",
		},
		"conversation": map[string]interface{}{
			"turn_budget": 10,
			"call_grace":  "60s",
		},
		"dispatch": map[string]interface{}{
			"max_iterations": 10,
		},
	}

	data, err := yaml.Marshal(template)
	if err != nil {
		return err
	}

	header := []byte("# Helmsman project configuration.\n# Values here override ~/.config/helmsman/config.yaml.\n")
	return os.WriteFile(filepath.Join(root, ".helmsman.yaml"), append(header, data...), 0644)
}
