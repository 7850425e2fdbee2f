// Package httpapi exposes the review flows, the text tools and the webhook
// forwarding over a small JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/feedback"
	"github.com/casedesk/casedesk/internal/review"
)

// Options controls the API server behavior.
type Options struct {
	// Bind address, e.g. "127.0.0.1:8080"
	Bind string
	// Token for Authorization: Bearer <token> header. Empty disables auth.
	Token string
	// RPS is max requests per second (approximate). 0 disables rate limiting.
	RPS int
	// Burst is the token bucket size. If 0 and RPS>0, defaults to RPS.
	Burst int
	// MaxBodyBytes caps request body size; defaults to 10 MiB.
	MaxBodyBytes int64
	// ImportDir receives POST /api/import payloads for the folder importer.
	// Empty disables the endpoint.
	ImportDir string
	Logger    *log.Logger
}

// Sender posts a message to a webhook.
type Sender = feedback.Sender

// Deps are the services behind the API. Nil senders and composer disable
// the matching endpoints.
type Deps struct {
	Backend   backend.Backend
	Review    *review.Service
	Chat      Sender
	Templator Sender
	Feedback  *feedback.Composer
	Extractor *casetext.Extractor
}

// Server serves the API.
type Server struct {
	srv     *http.Server
	opts    Options
	deps    Deps
	limiter *simpleLimiter
	logger  *log.Logger
	started int32
}

// NewServer constructs the API server.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if opts.Bind == "" {
		opts.Bind = "127.0.0.1:8080"
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}
	if deps.Backend == nil || deps.Review == nil {
		return nil, errors.New("httpapi: backend and review service are required")
	}
	if deps.Extractor == nil {
		deps.Extractor = casetext.NewExtractor(casetext.ExtractorOptions{})
	}
	if opts.ImportDir != "" {
		if err := os.MkdirAll(opts.ImportDir, 0755); err != nil {
			return nil, fmt.Errorf("create import dir: %w", err)
		}
	}
	var lim *simpleLimiter
	if opts.RPS > 0 {
		if opts.Burst <= 0 {
			opts.Burst = opts.RPS
		}
		lim = newSimpleLimiter(opts.RPS, opts.Burst)
	}

	s := &Server{opts: opts, deps: deps, limiter: lim, logger: logger}
	s.srv = &http.Server{
		Addr:        opts.Bind,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// templator replies may take minutes
		WriteTimeout: 4 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed API with auth, rate limiting and body caps applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("GET /api/records/{id}", s.handleOpenRecord)
	mux.HandleFunc("POST /api/records/{id}", s.handleSaveRecord)
	mux.HandleFunc("POST /api/records/{id}/ok", s.handleApprove)
	mux.HandleFunc("POST /api/records/{id}/notok", s.handleReject)
	mux.HandleFunc("POST /api/records/{id}/duplicates", s.handleMarkDuplicate)
	mux.HandleFunc("GET /api/deferred", s.handleListDeferred)
	mux.HandleFunc("POST /api/deferred/{id}", s.handleSaveDeferred)
	mux.HandleFunc("POST /api/decode", s.handleDecode)
	mux.HandleFunc("POST /api/encode", s.handleEncode)
	mux.HandleFunc("POST /api/references", s.handleReferences)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/templator", s.handleTemplator)
	mux.HandleFunc("POST /api/feedback", s.handleFeedback)
	if s.opts.ImportDir != "" {
		mux.HandleFunc("POST /api/import", s.handleImport)
	}
	return s.middleware(mux)
}

// Start starts the HTTP server concurrently and attaches to ctx for shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return errors.New("api server already started")
	}
	// Bind early to surface errors synchronously
	ln, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Bind, err)
	}
	s.logger.Printf("API listening on http://%s rps=%d burst=%d auth=%v import=%q",
		s.opts.Bind, s.opts.RPS, s.opts.Burst, s.opts.Token != "", s.opts.ImportDir)

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("graceful shutdown failed: %v", err)
		}
		s.limiter.Close()
	}()
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", reqID)

		if s.opts.Token != "" && r.URL.Path != "/healthz" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) != s.opts.Token {
				w.Header().Set("WWW-Authenticate", `Bearer realm="casedesk"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(r.Context()); err != nil {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Printf("%s %s status=%d id=%s remote=%s dur=%s",
			r.Method, r.URL.Path, sw.status, reqID, remoteIP(r.RemoteAddr), time.Since(start).String())
	})
}

// simpleLimiter is a minimal token bucket limiter
type simpleLimiter struct {
	tokens chan struct{}
	stop   chan struct{}
}

func newSimpleLimiter(rps, burst int) *simpleLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = rps
	}
	l := &simpleLimiter{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}
	go func() {
		interval := time.Second / time.Duration(rps)
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
					// bucket full
				}
			case <-l.stop:
				return
			}
		}
	}()
	return l
}

func (l *simpleLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return errors.New("limiter stopped")
	case <-l.tokens:
		return nil
	}
}

func (l *simpleLimiter) Close() {
	if l == nil {
		return
	}
	close(l.stop)
}

// remoteIP extracts ip from host:port
func remoteIP(addr string) string {
	if i := strings.LastIndex(addr, ":"); i != -1 {
		return addr[:i]
	}
	return addr
}
