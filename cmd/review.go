package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// reviewCmd runs only the dashboard, without the API or the folder import.
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Open the review dashboard",
	Long: `Open the terminal dashboard without starting the HTTP API or the folder import.

Keys: Enter opens a record, n/p page, / filters, c chat, f feedback,
D deferred cases, L sign in or out, t theme, q quit.

Examples:
  casedesk review
  casedesk review --backend rpc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config := GetConfig()

		if !forceTUI && !canInitializeTUI() {
			if needsPseudoTTY() {
				return runWithPseudoTTY()
			}
			return fmt.Errorf("TUI cannot be initialized in this terminal (%s)", terminalInfo())
		}

		logger, closeLog := setupLogging(true, "review", "[review] ")
		defer closeLog()

		svc, err := buildServices(config, quietLogger())
		if err != nil {
			return err
		}
		defer svc.Close()

		logger.Printf("Opening dashboard (%s backend)", config.Backend.Mode)
		return runTUI(ctx, svc, logger)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force TUI mode even in unsupported terminals")
	reviewCmd.Flags().StringVar(&sessionID, "session", "", "Chat session id when no identity provider is configured")
}
