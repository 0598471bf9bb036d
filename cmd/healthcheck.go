package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/cognitus-chat/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the server, credential and cache are usable",
	Long: `Check the health of the client setup by verifying:
  • Server reachability (GET /health)
  • Bearer credential presence and expiry
  • Conversation access with the credential
  • Local history cache

This command is useful for debugging connection issues, especially in CI/CD environments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		a := newApp(cfg)
		defer a.Close()
		ctx := cmd.Context()

		fmt.Fprintln(out, sectionStyle.Render("🔍 Cognitus Health Check"))
		fmt.Fprintln(out)

		// Step 1: server
		fmt.Fprintln(out, infoStyle.Render("Step 1: Contacting server..."))
		serverOK := true
		if err := a.client.Health(ctx); err != nil {
			serverOK = false
			fmt.Fprintln(out, errorStyle.Render("❌ Server unreachable:"), err)
		} else {
			fmt.Fprintln(out, successStyle.Render("✅ Server is up"))
		}
		if healthcheckVerbose {
			fmt.Fprintf(out, "   URL: %s\n", a.client.BaseURL())
			fmt.Fprintf(out, "   Assets: %s\n", cfg.AssetsBase())
		}
		fmt.Fprintln(out)

		// Step 2: credential
		fmt.Fprintln(out, infoStyle.Render("Step 2: Checking credential..."))
		tokenOK := checkToken(out, a, time.Now())
		fmt.Fprintln(out)

		// Step 3: authenticated access
		fmt.Fprintln(out, infoStyle.Render("Step 3: Listing conversations..."))
		chatCount := -1
		if serverOK {
			chats, err := a.client.ListChats(ctx)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("❌ Failed to list conversations:"), err)
			} else {
				chatCount = len(chats)
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d conversation(s)", chatCount)))
				if healthcheckVerbose {
					for i, c := range chats {
						if i == 5 {
							fmt.Fprintf(out, "   ... and %d more\n", len(chats)-5)
							break
						}
						fmt.Fprintf(out, "   [%d] %s (ID: %s)\n", i+1, c.Title, c.ID)
					}
				}
			}
		} else {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Skipped, server unreachable"))
		}
		fmt.Fprintln(out)

		// Step 4: cache
		fmt.Fprintln(out, infoStyle.Render("Step 4: Checking history cache..."))
		switch {
		case !cfg.Cache.Enabled:
			fmt.Fprintln(out, warningStyle.Render("⚠️  History cache disabled"))
		case a.cache == nil:
			fmt.Fprintln(out, warningStyle.Render("⚠️  History cache could not be opened"))
		default:
			cached, err := a.cache.ListChats(ctx)
			if err != nil {
				fmt.Fprintln(out, warningStyle.Render("⚠️  History cache unreadable:"), err)
			} else {
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ History cache holds %d conversation(s)", len(cached))))
			}
			if healthcheckVerbose {
				fmt.Fprintf(out, "   Path: %s\n", a.cache.Path())
			}
		}
		fmt.Fprintln(out)

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)

		switch {
		case serverOK && chatCount >= 0:
			fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Conversations: %d found", chatCount)))
			if !tokenOK {
				fmt.Fprintln(out, warningStyle.Render("   • Credential needs attention"))
			}
			return nil
		case serverOK:
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • Server is up but conversations are not accessible")
			return fmt.Errorf("health check failed: conversations not accessible")
		default:
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • Server is not reachable at "+a.client.BaseURL())
			return fmt.Errorf("health check failed: server unreachable")
		}
	},
}

// checkToken reports on the configured credential and whether it looks usable
func checkToken(out io.Writer, a *app, now time.Time) bool {
	token, err := a.tokens.Token()
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Failed to read token:"), err)
		return false
	}
	if token == "" {
		fmt.Fprintln(out, warningStyle.Render("⚠️  No token configured"))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   Set auth.token, COGNITUS_AUTH_TOKEN or write it to %s\n", cfg.Auth.TokenFile)
		}
		return false
	}

	info, err := internal.InspectToken(token)
	if err != nil {
		// opaque tokens are allowed; only JWTs carry an expiry
		fmt.Fprintln(out, successStyle.Render("✅ Token present (not a JWT)"))
		return true
	}
	if info.Expired(now) {
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  Token expired at %s", info.ExpiresAt.Format(time.RFC3339))))
		return false
	}

	fmt.Fprintln(out, successStyle.Render("✅ Token present"))
	if healthcheckVerbose {
		if info.Subject != "" {
			fmt.Fprintf(out, "   Subject: %s\n", info.Subject)
		}
		if !info.ExpiresAt.IsZero() {
			fmt.Fprintf(out, "   Expires: %s (in %s)\n", info.ExpiresAt.Format(time.RFC3339), info.ExpiresAt.Sub(now).Round(time.Minute))
		}
	}
	return true
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed diagnostic information")
}
