package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/cognitus-chat/internal"
	"github.com/iksnae/cognitus-chat/internal/config"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	authToken  string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cognitus",
	Short: "Talk to a Cognitus data-analysis agent from the terminal",
	Long: `A command-line client for the Cognitus conversational data-analysis agent.

Conversations live on the server; this tool lists and manages them, follows
an agent's live event stream and renders its SQL/code calls together with
their text, table and chart outputs.

Features:
  • Create, rename, delete and list conversations
  • Follow a conversation live while the agent works
  • Interactive chat with optimistic message display
  • Export in multiple formats (JSONL, Markdown, YAML, JSON)
  • Local history cache for offline viewing

Quick Start:
  cognitus chats list                 # List conversations
  cognitus chat <chat-id>             # Chat interactively
  cognitus export <chat-id> -f md     # Export as Markdown

Configuration is read from ~/.config/cognitus/config.yaml, COGNITUS_* environment
variables and a .env file in the working directory.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if serverURL != "" {
			loaded.Server.URL = serverURL
		}
		if authToken != "" {
			loaded.Auth.Token = authToken
		}
		if err := loaded.Validate(); err != nil {
			return err
		}

		internal.InitLogger(loaded.Log.Level, loaded.Log.Format)
		if verbose {
			internal.SetVerbose(true)
		}

		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		internal.SyncLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/cognitus/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (overrides server.url)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (overrides auth.token)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
