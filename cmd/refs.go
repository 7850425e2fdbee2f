package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/casetext"
)

var (
	refsJSON          bool
	refsInitialID     string
	refsInitialSource string
)

var refsCmd = &cobra.Command{
	Use:   "refs [message|-]",
	Short: "Extract case references from feedback text",
	Long: `Find "кейс 123" / "case 123" mentions and the "из телеграма" style sources
near them. Uses feedback.source_window and feedback.source_aliases.

Examples:
  casedesk refs "Проверил кейс 123456 из телеграма, кейс 42 тоже"
  casedesk refs --initial 7 --source "Наша база знаний" "кейс 8"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		cfg := GetConfig().Feedback
		ex := casetext.NewExtractor(casetext.ExtractorOptions{
			SourceWindow:  cfg.SourceWindow,
			SourceAliases: nilIfEmpty(cfg.SourceAliases),
		})

		var initial *casetext.Reference
		if refsInitialID != "" {
			initial = &casetext.Reference{ID: refsInitialID, Source: refsInitialSource}
		}
		refs := ex.Extract(message, initial)
		if refsJSON {
			return writeJSON(cmd.OutOrStdout(), refs)
		}
		if len(refs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No case references found.")
			return nil
		}
		for _, r := range refs {
			if r.Source != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.ID, r.Source)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), r.ID)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refsCmd)
	refsCmd.Flags().BoolVar(&refsJSON, "json", false, "Print JSON")
	refsCmd.Flags().StringVar(&refsInitialID, "initial", "", "Case id to put first (e.g. the record feedback was opened from)")
	refsCmd.Flags().StringVar(&refsInitialSource, "source", "", "Source of the --initial case")
}
