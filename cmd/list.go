package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/review"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [records|deferred|audit|outbox]",
	Short: "List records, deferred cases, audit entries or the Telegram outbox",
	Long: `List data in a simple text format.
This command works in any terminal environment and provides an alternative
to the TUI interface when terminal capabilities are limited.

Examples:
  # First page of active records
  casedesk list records

  # Search archived records that have duplicates
  casedesk list records --search оплата --archived true --dupes

  # Pending cases
  casedesk list deferred

  # Audit trail of one record (local database)
  casedesk list audit --id 42`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var (
	listSearch   string
	listArchived string
	listDupes    bool
	listLimit    int
	listOffset   int
	listRecordID int64
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listSearch, "search", "", "Search text")
	listCmd.Flags().StringVar(&listArchived, "archived", "false", "Archived filter: true, false or all")
	listCmd.Flags().BoolVar(&listDupes, "dupes", false, "Only records that have duplicates")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of items to show")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Items to skip")
	listCmd.Flags().Int64Var(&listRecordID, "id", 0, "Record id for the audit listing (0 = all)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(GetConfig(), log.New(os.Stderr, "[list] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer svc.Close()

	target := "records"
	if len(args) > 0 {
		target = strings.ToLower(args[0])
	}

	switch target {
	case "records":
		q, err := buildListQuery(listSearch, listArchived, listDupes, listLimit, listOffset)
		if err != nil {
			return err
		}
		return listRecords(ctx, svc.backend, q)
	case "deferred":
		return listDeferred(ctx, svc.review)
	case "audit":
		return listAudit(ctx, svc)
	case "outbox":
		return listOutbox(ctx, svc)
	default:
		return fmt.Errorf("unknown list type: %s (use records, deferred, audit or outbox)", target)
	}
}

// buildListQuery maps the CLI flags onto a backend query.
func buildListQuery(search, archived string, dupes bool, limit, offset int) (backend.ListQuery, error) {
	q := backend.ListQuery{WithDupesOnly: dupes, Limit: limit, Offset: offset}
	if s := strings.TrimSpace(search); s != "" {
		q.Search = &s
	}
	switch strings.ToLower(strings.TrimSpace(archived)) {
	case "", "all":
	case "true", "yes", "1":
		b := true
		q.Archived = &b
	case "false", "no", "0":
		b := false
		q.Archived = &b
	default:
		return q, fmt.Errorf("invalid --archived value %q (use true, false or all)", archived)
	}
	return q.Normalize(), nil
}

func recordStateLabel(r backend.RecordRow) string {
	switch {
	case r.CanonicalID != nil:
		return fmt.Sprintf("duplicate of #%d", *r.CanonicalID)
	case r.Archived:
		return "archived"
	default:
		return "active"
	}
}

func listRecords(ctx context.Context, b backend.Backend, q backend.ListQuery) error {
	rows, err := b.ListRecords(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	fmt.Printf("Showing %d records (offset %d):\n\n", len(rows), q.Offset)
	for _, r := range rows {
		rec := casetext.DecodeNullable(r.Content)
		fmt.Printf("#%d [%s]", r.ID, recordStateLabel(r))
		if r.HasDuplicates {
			fmt.Printf(" duplicates: %d", r.DuplicatesCount)
		}
		fmt.Println()
		fmt.Printf("   Тема: %s\n", rec.Theme)
		if rec.Question != "" {
			fmt.Printf("   Вопрос: %s\n", rec.Snippet(120))
		}
		fmt.Println()
	}
	return nil
}

func listDeferred(ctx context.Context, svc *review.Service) error {
	items, err := svc.Deferred(ctx)
	if err != nil {
		return fmt.Errorf("failed to list deferred cases: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No deferred cases found.")
		return nil
	}
	fmt.Printf("Found %d deferred cases:\n\n", len(items))
	for _, it := range items {
		fmt.Printf("#%d %s\n", it.ID, it.Record.Theme)
		if it.Record.Question != "" {
			fmt.Printf("   Вопрос: %s\n", it.Record.Question)
		}
		fmt.Println()
	}
	return nil
}

func listAudit(ctx context.Context, svc *services) error {
	entries, err := svc.store.GetAuditEntries(ctx, listRecordID, listLimit)
	if err != nil {
		return fmt.Errorf("failed to get audit entries: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No audit entries found.")
		return nil
	}
	for _, e := range entries {
		actor := e.Actor
		if actor == "" {
			actor = "system"
		}
		fmt.Printf("%s  %-16s record=%d actor=%s %v\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.RecordID, actor, e.Details)
	}
	return nil
}

func listOutbox(ctx context.Context, svc *services) error {
	entries, err := svc.store.Outbox(ctx, listLimit)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Outbox is empty.")
		return nil
	}
	for _, e := range entries {
		tg := "—"
		if e.TelegramID != nil {
			tg = fmt.Sprintf("%d", *e.TelegramID)
		}
		fmt.Printf("%s  record=#%d telegram_id=%s\n   %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.RecordID, tg, casetext.Decode(e.Content).Snippet(120))
	}
	return nil
}
