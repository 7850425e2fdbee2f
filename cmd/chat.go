package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/webhook"
)

var (
	chatSession  string
	chatSite     bool
	chatBZ       bool
	chatTelegram bool
	chatLogs     bool
	chatCases    []string

	templatorBase string
)

var chatCmd = &cobra.Command{
	Use:   "chat [message|-]",
	Short: "Send one message to the chat webhook",
	Long: `Forward a message to webhooks.chat_url and print the reply.
The step log of the forwarding is printed with --logs.

Examples:
  casedesk chat --session uid-1 "Как снять блюдо со стоп-листа?"
  casedesk chat --session uid-1 --bz --telegram --logs "Не печатается чек"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		cfg := GetConfig().Webhooks
		fw := webhook.NewForwarder(cfg.ChatURL, cfg.ChatTimeout, log.New(os.Stderr, "[webhook] ", log.LstdFlags))
		res := fw.Send(cmd.Context(), webhook.Request{
			Message:     message,
			SessionID:   chatSession,
			Site:        chatSite,
			BZ:          chatBZ,
			Telegram:    chatTelegram,
			CaseNumbers: chatCases,
		})
		return printResult(cmd, res, chatLogs)
	},
}

var templatorCmd = &cobra.Command{
	Use:   "templator [request|-]",
	Short: "Ask the templator webhook for a Razor check template",
	Long: `Send a template request to webhooks.templator_url and print the reply.
With --base the given file is sent as the template to adapt.

Examples:
  casedesk templator --session uid-1 "Чек с QR-кодом и итоговой суммой"
  casedesk templator --session uid-1 --base check.cshtml "Добавь логотип"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		request, err := argOrStdin(cmd, args)
		if err != nil {
			return err
		}
		base := ""
		if templatorBase != "" {
			b, err := os.ReadFile(templatorBase)
			if err != nil {
				return fmt.Errorf("failed to read base template: %w", err)
			}
			base = string(b)
		}
		cfg := GetConfig().Webhooks
		fw := webhook.NewForwarder(cfg.TemplatorURL, cfg.TemplatorTimeout, log.New(os.Stderr, "[webhook] ", log.LstdFlags))
		res := fw.Send(cmd.Context(), webhook.Request{
			Message:   webhook.TemplatorPrompt(request, base),
			SessionID: chatSession,
		})
		if !res.OK() {
			return printResult(cmd, res, chatLogs)
		}
		reply := webhook.SplitCodeBlock(res.Response)
		out := cmd.OutOrStdout()
		if reply.Before != "" {
			fmt.Fprintln(out, reply.Before)
		}
		if reply.HasCode {
			fmt.Fprintln(out, "```razor")
			fmt.Fprintln(out, reply.Code)
			fmt.Fprintln(out, "```")
		}
		if reply.After != "" {
			fmt.Fprintln(out, reply.After)
		}
		if chatLogs {
			printLogs(cmd, res.Logs)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(templatorCmd)

	for _, c := range []*cobra.Command{chatCmd, templatorCmd} {
		c.Flags().StringVar(&chatSession, "session", "", "Session id (the signed-in user's uid)")
		c.Flags().BoolVar(&chatLogs, "logs", false, "Print the technical step log")
	}
	chatCmd.Flags().BoolVar(&chatSite, "site", false, "Search the public site")
	chatCmd.Flags().BoolVar(&chatBZ, "bz", false, "Search the knowledge base")
	chatCmd.Flags().BoolVar(&chatTelegram, "telegram", false, "Search the Telegram channel")
	chatCmd.Flags().StringSliceVar(&chatCases, "case", nil, "Case numbers to attach (repeatable)")
	templatorCmd.Flags().StringVar(&templatorBase, "base", "", "File with a base Razor template")
}

// printResult prints a webhook reply, or returns its error message.
func printResult(cmd *cobra.Command, res *webhook.Result, logs bool) error {
	if logs {
		defer printLogs(cmd, res.Logs)
	}
	if !res.OK() {
		return fmt.Errorf("%s", res.Error)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Response)
	return nil
}

func printLogs(cmd *cobra.Command, logs []string) {
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, "--- Технические детали ---")
	for _, l := range logs {
		fmt.Fprintln(w, l)
	}
}
