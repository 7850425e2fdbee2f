package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/casedesk/casedesk/internal/auth"
	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/feedback"
	"github.com/casedesk/casedesk/internal/review"
	"github.com/casedesk/casedesk/internal/store"
	"github.com/casedesk/casedesk/internal/webhook"
)

// services is everything a command may need, built from Config.
type services struct {
	config Config
	logger *log.Logger

	store     *store.Store
	backend   backend.Backend
	bus       bus.Bus
	review    *review.Service
	extractor *casetext.Extractor
	chat      *webhook.Forwarder
	templator *webhook.Forwarder
	feedback  *feedback.Composer
	auth      *auth.Client
}

// quietLogger is what components get when their output would corrupt the TUI.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// componentLogger derives a prefixed logger writing to the same place as base.
func componentLogger(base *log.Logger, prefix string) *log.Logger {
	return log.New(base.Writer(), prefix, log.LstdFlags)
}

// buildServices opens the store and wires the backend, bus and forwarders.
// The store is always opened: it backs local mode and the audit trail.
func buildServices(config Config, logger *log.Logger) (*services, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	s := &services{config: config, logger: logger}

	resolvedDBPath := resolvePathRelativeToBase(getWorkingDir(), config.Database.Path)
	st, err := store.NewStore(resolvedDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	st.SetLogger(componentLogger(logger, "[store] "))
	s.store = st

	switch config.Backend.Mode {
	case "", "local":
		s.backend = st
	case "rpc":
		rpc, err := backend.NewRPCClient(config.Backend.URL, config.Backend.APIKey, config.Backend.Timeout,
			componentLogger(logger, "[backend] "))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize backend: %w", err)
		}
		s.backend = rpc
	default:
		st.Close()
		return nil, fmt.Errorf("unknown backend mode %q (want rpc or local)", config.Backend.Mode)
	}

	s.bus = bus.NewBus(config.Redis.URL, componentLogger(logger, "[bus] "))
	s.review = review.NewService(s.backend, s.bus, componentLogger(logger, "[review] "))
	s.extractor = casetext.NewExtractor(casetext.ExtractorOptions{
		SourceWindow:  config.Feedback.SourceWindow,
		SourceAliases: nilIfEmpty(config.Feedback.SourceAliases),
	})

	webhookLogger := componentLogger(logger, "[webhook] ")
	if config.Webhooks.ChatURL != "" {
		s.chat = webhook.NewForwarder(config.Webhooks.ChatURL, config.Webhooks.ChatTimeout, webhookLogger)
		s.feedback = feedback.NewComposer(s.chat, s.bus, st, s.extractor, componentLogger(logger, "[feedback] "))
	}
	if config.Webhooks.TemplatorURL != "" {
		s.templator = webhook.NewForwarder(config.Webhooks.TemplatorURL, config.Webhooks.TemplatorTimeout, webhookLogger)
	}
	if config.Auth.APIKey != "" {
		s.auth = auth.NewClient(config.Auth.Endpoint, config.Auth.APIKey, config.Auth.Timeout, componentLogger(logger, "[auth] "))
	}
	return s, nil
}

func nilIfEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

// Close releases the bus and the store.
func (s *services) Close() {
	if s.bus != nil {
		s.bus.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// chatSender returns the chat forwarder as an interface value, nil when unset.
func (s *services) chatSender() feedback.Sender {
	if s.chat == nil {
		return nil
	}
	return s.chat
}

func (s *services) templatorSender() feedback.Sender {
	if s.templator == nil {
		return nil
	}
	return s.templator
}
