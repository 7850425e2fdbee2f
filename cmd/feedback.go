package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/casetext"
)

var (
	feedbackSession string
	feedbackSummary string
	feedbackCases   []string
	feedbackDryRun  bool
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback [message|-]",
	Short: "Send review feedback through the chat webhook",
	Long: `Send feedback about a conversation. Case references are extracted from the
message ("кейс 123 из телеграма") and extended with --case id[:source].
Accepted feedback is published on the bus and written to the audit trail.

Examples:
  casedesk feedback --session uid-1 --summary "Ответ верный" "Проверил кейс 123456 из телеграма"
  casedesk feedback --session uid-1 --summary "Нужна правка" --case "42:Наша база знаний" --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFeedback,
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.Flags().StringVar(&feedbackSession, "session", "", "Session id (the signed-in user's uid)")
	feedbackCmd.Flags().StringVar(&feedbackSummary, "summary", "", "Conclusion of the review (required)")
	feedbackCmd.Flags().StringSliceVar(&feedbackCases, "case", nil, "Extra case as id or id:source (repeatable)")
	feedbackCmd.Flags().BoolVar(&feedbackDryRun, "dry-run", false, "Print the extracted cases without sending")
}

// parseCaseFlag reads "id" or "id:source".
func parseCaseFlag(v string) casetext.Reference {
	id, source, _ := strings.Cut(v, ":")
	return casetext.Reference{ID: strings.TrimSpace(id), Source: strings.TrimSpace(source)}
}

func runFeedback(cmd *cobra.Command, args []string) error {
	message := ""
	if len(args) > 0 {
		var err error
		if message, err = argOrStdin(cmd, args); err != nil {
			return err
		}
	}

	svc, err := buildServices(GetConfig(), log.New(os.Stderr, "[feedback] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer svc.Close()
	if svc.feedback == nil {
		return errors.New("feedback needs webhooks.chat_url")
	}

	fb := svc.feedback.Draft(message, nil)
	seen := make(map[string]bool, len(fb.Cases))
	for _, r := range fb.Cases {
		seen[r.ID] = true
	}
	for _, v := range feedbackCases {
		ref := parseCaseFlag(v)
		if ref.ID != "" && !seen[ref.ID] {
			seen[ref.ID] = true
			fb.Cases = append(fb.Cases, ref)
		}
	}
	fb.Summary = strings.TrimSpace(feedbackSummary)

	if feedbackDryRun {
		return writeJSON(cmd.OutOrStdout(), fb)
	}

	res := svc.feedback.Submit(cmd.Context(), feedbackSession, fb)
	if !res.OK() {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Feedback %s sent (%d cases)\n", fb.ID, len(fb.Cases))
	if res.Response != "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.Response)
	}
	return nil
}
