package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/httpapi"
	"github.com/casedesk/casedesk/internal/ingest"
	"github.com/casedesk/casedesk/internal/store"
	"github.com/casedesk/casedesk/internal/ui"
)

var (
	apiEnable   bool
	watchImport bool
	sessionID   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TUI, the HTTP API and the background services",
	Long: `Start the casedesk server which includes:

1. Terminal User Interface (TUI) for record review
2. JSON HTTP API (records, text tools, chat, templator, feedback, import)
3. Folder import watching ingest.dir
4. Redis Streams consumers mirroring record changes into the audit trail

The serve command runs until interrupted (Ctrl+C) and shuts every
component down gracefully.

Examples:
  # Start with TUI (default)
  casedesk serve

  # Headless API server against the remote database
  casedesk serve --no-tui --backend rpc

  # API on another port with a bearer token
  CASEDESK_HTTP_TOKEN=secret casedesk serve --no-tui --bind 0.0.0.0:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run in headless mode without TUI")
	serveCmd.Flags().BoolVar(&forceTUI, "force-tui", false, "Force TUI mode even in unsupported terminals")
	serveCmd.Flags().BoolVar(&apiEnable, "api", true, "Serve the HTTP API")
	serveCmd.Flags().BoolVar(&watchImport, "watch-import", true, "Watch ingest.dir and import record exports")
	serveCmd.Flags().String("bind", "127.0.0.1:8080", "Bind address for the HTTP API")
	serveCmd.Flags().String("token", "", "Bearer token required by the HTTP API (optional)")
	serveCmd.Flags().Int("rps", 10, "Max HTTP requests per second")
	serveCmd.Flags().Int("burst", 20, "Burst size for the HTTP rate limiter")
	serveCmd.Flags().String("import-dir", "data/incoming", "Directory for folder import and POST /api/import")
	serveCmd.Flags().StringVar(&sessionID, "session", "", "Chat session id when no identity provider is configured")

	viper.BindPFlag("http.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("http.token", serveCmd.Flags().Lookup("token"))
	viper.BindPFlag("http.rps", serveCmd.Flags().Lookup("rps"))
	viper.BindPFlag("http.burst", serveCmd.Flags().Lookup("burst"))
	viper.BindPFlag("ingest.dir", serveCmd.Flags().Lookup("import-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()

	willUseTUI := determineTUIMode()
	logger, closeLog := setupLogging(willUseTUI, "serve", "[serve] ")
	defer closeLog()

	logger.Println("Starting casedesk server")

	// Components stay silent while the TUI owns the screen.
	svcLogger := logger
	if willUseTUI {
		svcLogger = quietLogger()
	}

	logger.Printf("Using %s backend, database at %s", config.Backend.Mode, config.Database.Path)
	svc, err := buildServices(config, svcLogger)
	if err != nil {
		return err
	}
	defer svc.Close()

	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	coordinator := &ServiceCoordinator{
		store:      svc.store,
		bus:        svc.bus,
		mirrorBus:  config.Backend.Mode == "rpc",
		logger:     componentLogger(svcLogger, "[services] "),
		ctx:        svcCtx,
		consumerID: hostnameOr("casedesk"),
	}
	logger.Println("Starting background services...")
	if err := coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start services: %w", err)
	}
	defer coordinator.Stop()

	importDir := resolvePathRelativeToBase(getWorkingDir(), config.Ingest.Dir)

	if apiEnable {
		apiSrv, err := httpapi.NewServer(httpapi.Options{
			Bind:      config.HTTP.Bind,
			Token:     config.HTTP.Token,
			RPS:       config.HTTP.RPS,
			Burst:     config.HTTP.Burst,
			ImportDir: importDir,
			Logger:    componentLogger(svcLogger, "[api] "),
		}, httpapi.Deps{
			Backend:   svc.backend,
			Review:    svc.review,
			Chat:      svc.chatSender(),
			Templator: svc.templatorSender(),
			Feedback:  svc.feedback,
			Extractor: svc.extractor,
		})
		if err != nil {
			logger.Printf("HTTP API init error: %v", err)
		} else if err := apiSrv.Start(svcCtx); err != nil {
			logger.Printf("HTTP API start error: %v", err)
		} else {
			logger.Printf("HTTP API enabled on %s", config.HTTP.Bind)
		}
	}

	if watchImport {
		if err := os.MkdirAll(importDir, 0755); err != nil {
			logger.Printf("Warning: Could not create import directory %s: %v", importDir, err)
		}
		importer := ingest.NewFolderImporter(svc.store, svc.bus, ingest.FolderOptions{
			Dir:    importDir,
			Watch:  true,
			Logger: componentLogger(svcLogger, "[ingest-folder] "),
			// Avoid re-importing existing JSONL lines on each startup; begin tailing from EOF.
			TailFromEnd: true,
		})
		go func() {
			if err := importer.Run(svcCtx); err != nil && svcCtx.Err() == nil {
				logger.Printf("Folder import error: %v", err)
			}
		}()
	}

	if !noTUI {
		logger.Printf("Terminal info: %s", terminalInfo())
		if !forceTUI && !canInitializeTUI() {
			if needsPseudoTTY() {
				logger.Println("No TTY available, using script command for pseudo-TTY...")
				return runWithPseudoTTY()
			}
			logger.Println("TUI cannot be initialized in this terminal environment")
			logger.Println("Automatically switching to headless mode...")
			noTUI = true
		} else {
			if err := runTUI(ctx, svc, logger); err != nil {
				return err
			}
			logger.Println("TUI exited, cancelling background services...")
			svcCancel()
		}
	}

	if noTUI {
		logger.Println("Running in headless mode...")
		<-ctx.Done()
		logger.Println("Received shutdown signal")
	}

	logger.Println("casedesk server stopped")
	return nil
}

// runTUI blocks until the dashboard exits.
func runTUI(ctx context.Context, svc *services, logger *log.Logger) error {
	uiLogger := quietLogger()
	if f := setupFileLogger("ui"); f != nil {
		defer f.Close()
		uiLogger = log.New(f, "[UI] ", log.LstdFlags)
		uiLogger.Printf("UI logger initialized")
	}

	dashboard := ui.NewUI(ctx, ui.Options{
		Backend:   svc.backend,
		Review:    svc.review,
		Chat:      svc.chatSender(),
		Feedback:  svc.feedback,
		Auth:      svc.auth,
		SessionID: sessionID,
		Logger:    uiLogger,
	})
	if err := dashboard.Start(ctx); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}

// ServiceCoordinator manages background services
type ServiceCoordinator struct {
	store *store.Store
	bus   bus.Bus
	// mirrorBus copies record changes from the bus into the local audit
	// trail. Only useful when records live in the remote database.
	mirrorBus  bool
	consumerID string
	logger     *log.Logger
	ctx        context.Context

	// Service state
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Start starts all background services
func (sc *ServiceCoordinator) Start() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.running {
		return fmt.Errorf("services already running")
	}
	sc.running = true

	if sc.mirrorBus {
		sc.wg.Add(1)
		go sc.runAuditMirror()
	}

	sc.wg.Add(1)
	go sc.runHealthMonitor()

	sc.wg.Add(1)
	go sc.runMetricsCollector()

	sc.logger.Println("Background services started")
	return nil
}

// Stop waits for the services; they exit when ctx is cancelled.
func (sc *ServiceCoordinator) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	sc.mu.Unlock()

	sc.logger.Println("Stopping background services...")
	sc.wg.Wait()
	sc.logger.Println("Background services stopped")
}

// runAuditMirror appends every record change seen on the bus to the audit trail.
func (sc *ServiceCoordinator) runAuditMirror() {
	defer sc.wg.Done()

	sc.logger.Println("Starting audit mirror")
	for {
		select {
		case <-sc.ctx.Done():
			sc.logger.Println("Audit mirror stopping")
			return
		default:
			if err := sc.bus.ReadRecordsStream(sc.ctx, "casedesk-audit", sc.consumerID, sc.mirrorRecord); err != nil {
				if sc.ctx.Err() != nil {
					return
				}
				sc.logger.Printf("Error reading records stream: %v", err)
				time.Sleep(5 * time.Second)
			}
		}
	}
}

func (sc *ServiceCoordinator) mirrorRecord(ctx context.Context, msg bus.RecordMessage) error {
	details := map[string]interface{}{"source": "bus"}
	if msg.Detail != "" {
		details["detail"] = msg.Detail
	}
	if err := sc.store.LogRecordAction(ctx, msg.RecordID, msg.Action, msg.Actor, details); err != nil {
		sc.logger.Printf("Failed to mirror %s for record %d: %v", msg.Action, msg.RecordID, err)
		return err
	}
	return nil
}

// runHealthMonitor checks the bus connection periodically
func (sc *ServiceCoordinator) runHealthMonitor() {
	defer sc.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(sc.ctx, 10*time.Second)
			if err := sc.bus.HealthCheck(ctx); err != nil {
				sc.logger.Printf("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

// runMetricsCollector collects and logs system metrics
func (sc *ServiceCoordinator) runMetricsCollector() {
	defer sc.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.collectMetrics()
		}
	}
}

func (sc *ServiceCoordinator) collectMetrics() {
	ctx, cancel := context.WithTimeout(sc.ctx, 30*time.Second)
	defer cancel()

	if stats, err := sc.bus.GetStats(ctx); err != nil {
		sc.logger.Printf("Failed to get Redis stats: %v", err)
	} else {
		sc.logger.Printf("Redis stats: %+v", stats)
	}

	total, archived, err := sc.store.CountRecords(ctx)
	if err != nil {
		sc.logger.Printf("Failed to count records: %v", err)
		return
	}
	sc.logger.Printf("Database stats: %d records, %d archived", total, archived)
}
