package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/casetext"
)

var (
	decodeJSON     bool
	encodeTheme    string
	encodeQuestion string
	encodeAnswer   string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [content|-]",
	Short: "Split record content into theme, question and answer",
	Long: `Decode the "Тема: ...; Вопрос: ...; Ответ: ..." content of a record.
Reads standard input when no argument or "-" is given.

Examples:
  casedesk decode "Тема: Оплата; Вопрос: Не проходит карта; Ответ: Перезапустить"
  echo "Тема: Оплата;" | casedesk decode --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		rec := casetext.Decode(content)
		if decodeJSON {
			return writeJSON(cmd.OutOrStdout(), rec)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", casetext.LabelTheme, rec.Theme)
		fmt.Fprintf(out, "%s %s\n", casetext.LabelQuestion, rec.Question)
		fmt.Fprintf(out, "%s %s\n", casetext.LabelAnswer, rec.Answer)
		return nil
	},
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Build record content from theme, question and answer",
	Long: `Encode the three fields into the stored content format.

Example:
  casedesk encode --theme Оплата --question "Не проходит карта" --answer "Перезапустить"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), casetext.Encode(encodeTheme, encodeQuestion, encodeAnswer))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)

	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Print JSON")
	encodeCmd.Flags().StringVar(&encodeTheme, "theme", "", "Theme")
	encodeCmd.Flags().StringVar(&encodeQuestion, "question", "", "Question")
	encodeCmd.Flags().StringVar(&encodeAnswer, "answer", "", "Answer")
}

// argOrStdin returns the single argument, or standard input for none or "-".
func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
