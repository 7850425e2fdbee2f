package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed sample records into the local database",
	Long: `Seed sample knowledge-base records, a near-duplicate pair and a deferred case
into the local SQLite database. Useful for trying the dashboard with --backend local.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

var sampleRecords = []casetext.Record{
	{
		Theme:    "Оплата картой",
		Question: "Терминал не проводит оплату картой, на экране ошибка связи с банком",
		Answer:   "Проверьте подключение терминала к сети и перезапустите его. Если ошибка повторяется, обратитесь в банк-эквайер.",
	},
	{
		Theme:    "Оплата картой",
		Question: "Терминал не проводит оплату картой, ошибка связи с банком",
		Answer:   "Перезапустите терминал и проверьте сеть.",
	},
	{
		Theme:    "Печать чеков",
		Question: "Фискальный принтер не печатает чек после закрытия заказа",
		Answer:   "Проверьте бумагу и статус смены в кассовом модуле.",
	},
	{
		Theme:    "Стоп-лист",
		Question: "Как убрать блюдо из стоп-листа на всех кассах сразу",
		Answer:   "Снимите блюдо со стоп-листа в офисном приложении, изменения разойдутся по кассам автоматически.",
	},
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	config := GetConfig()

	logger := log.New(cmd.OutOrStdout(), "[seed] ", log.LstdFlags)
	logger.Println("Seeding sample data...")

	st, err := store.NewStore(resolvePathRelativeToBase(getWorkingDir(), config.Database.Path))
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	total, _, err := st.CountRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}
	if total > 0 {
		logger.Printf("Database already has %d records, skipping", total)
		return nil
	}

	for _, rec := range sampleRecords {
		id, err := st.CreateRecord(ctx, rec.Encode())
		if err != nil {
			logger.Printf("Failed to create sample record: %v", err)
			continue
		}
		logger.Printf("Created record #%d %q", id, rec.Theme)
	}

	deferred := casetext.Record{
		Theme:    "Выгрузка отчётов",
		Question: "Пользователь не может найти кнопку для скачивания отчёта",
	}
	if id, err := st.AddDeferred(ctx, deferred.Encode()); err != nil {
		logger.Printf("Failed to create deferred case: %v", err)
	} else {
		logger.Printf("Created deferred case #%d", id)
	}

	logger.Println("Seeding completed")
	return nil
}
