// Package webhook forwards chat, templator and review messages to the
// automation webhooks and reports every step of the exchange back to the UI.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/casedesk/casedesk/internal/casetext"
)

// Default request timeouts.
const (
	DefaultChatTimeout      = 60 * time.Second
	DefaultTemplatorTimeout = 180 * time.Second
)

// User-facing messages.
const (
	ErrMissingURL      = "Переменная окружения WEBHOOK_URL не установлена. Пожалуйста, установите ее, чтобы чат заработал."
	ErrEmptyMessage    = "Сообщение не может быть пустым."
	ErrEmptySession    = "Требуется идентификатор сессии"
	ErrUnknownNetwork  = "Произошла неизвестная сетевая ошибка."
	errTimeoutTemplate = "Запрос занял слишком много времени (более %d секунд) и был прерван."
)

const logBodyLimit = 200

// Request is one message for a webhook.
type Request struct {
	Message       string
	SessionID     string
	Review        bool
	ReviewMessage string
	Site          bool
	BZ            bool
	Telegram      bool
	Cases         []casetext.Reference
	CaseNumbers   []string
}

// Result is the outcome of Send. Exactly one of Response and Error is set.
type Result struct {
	Logs     []string `json:"logs"`
	Response string   `json:"response,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// OK reports whether the webhook produced a response.
func (r *Result) OK() bool { return r != nil && r.Error == "" }

// Forwarder posts requests to a single webhook URL.
type Forwarder struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
	logger     *log.Logger
}

// NewForwarder builds a forwarder. An empty url is accepted: Send then
// reports the missing configuration instead of failing at startup.
func NewForwarder(url string, timeout time.Duration, logger *log.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = DefaultChatTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Forwarder{
		url:        strings.TrimSpace(url),
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// URL returns the configured webhook address.
func (f *Forwarder) URL() string { return f.url }

type payload struct {
	Message       string               `json:"message"`
	SessionID     string               `json:"sessionId"`
	Review        bool                 `json:"review"`
	ReviewMessage *string              `json:"review_message,omitempty"`
	Site          bool                 `json:"site"`
	BZ            bool                 `json:"bz"`
	Telegram      bool                 `json:"telegram"`
	Cases         []casetext.Reference `json:"cases,omitempty"`
	CaseNumbers   []string             `json:"case_numbers,omitempty"`
}

// Send validates req, posts it and interprets the reply. It never returns
// nil; failures are reported through Result.Error.
func (f *Forwarder) Send(ctx context.Context, req Request) *Result {
	res := &Result{Logs: []string{"[1/6] Запуск серверного действия."}}
	fail := func(msg string) *Result {
		res.Error = msg
		return res
	}

	if f.url == "" {
		res.Logs = append(res.Logs, "[FAIL] "+ErrMissingURL)
		f.logger.Print(ErrMissingURL)
		return fail(ErrMissingURL)
	}
	res.Logs = append(res.Logs, "[2/6] Используется webhook URL: "+f.url)

	if msg := validate(req); msg != "" {
		res.Logs = append(res.Logs, "[FAIL] Валидация не пройдена: "+msg)
		return fail(msg)
	}
	res.Logs = append(res.Logs, "[3/6] Сообщение и ID сессии прошли валидацию.")

	res.Logs = append(res.Logs, "[4/6] Попытка отправки POST-запроса...")
	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return f.requestFailed(res, err)
	}

	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(cctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return f.requestFailed(res, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
			res.Logs = append(res.Logs, "[FAIL] Произошла ошибка во время выполнения запроса.")
			f.logger.Printf("Fetch error: %v", err)
			return fail(fmt.Sprintf(errTimeoutTemplate, int(f.timeout/time.Second)))
		}
		return f.requestFailed(res, err)
	}
	defer resp.Body.Close()

	res.Logs = append(res.Logs, fmt.Sprintf("[5/6] Получен ответ со статусом: %d", resp.StatusCode))
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return f.requestFailed(res, err)
	}
	text := string(raw)
	res.Logs = append(res.Logs, "[6/6] Получено тело ответа: "+truncateRunes(text, logBodyLimit))

	if resp.StatusCode/100 != 2 {
		return fail(fmt.Sprintf("Сетевой запрос не удался. Статус: %d. Ответ: %s", resp.StatusCode, text))
	}
	res.Response = extractOutput(raw)
	return res
}

func (f *Forwarder) requestFailed(res *Result, err error) *Result {
	res.Logs = append(res.Logs, "[FAIL] Произошла ошибка во время выполнения запроса.")
	f.logger.Printf("Fetch error: %v", err)
	if err == nil {
		res.Error = ErrUnknownNetwork
		return res
	}
	res.Error = "Не удалось отправить сообщение: " + err.Error()
	return res
}

// validate checks the review message instead of the message when one is set.
func validate(req Request) string {
	msg := req.Message
	if req.ReviewMessage != "" {
		msg = req.ReviewMessage
	}
	if msg == "" {
		return ErrEmptyMessage
	}
	if req.SessionID == "" {
		return ErrEmptySession
	}
	return ""
}

func buildPayload(req Request) payload {
	p := payload{
		Message:   req.Message,
		SessionID: req.SessionID,
		Review:    req.Review,
		Site:      req.Site,
		BZ:        req.BZ,
		Telegram:  req.Telegram,
	}
	if req.Review {
		rm := req.ReviewMessage
		p.ReviewMessage = &rm
		p.Cases = req.Cases
	}
	for _, n := range req.CaseNumbers {
		if n != "" {
			p.CaseNumbers = append(p.CaseNumbers, n)
		}
	}
	return p
}

// extractOutput prefers a non-empty string "output" field, then the JSON
// document itself, then the raw text.
func extractOutput(raw []byte) string {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return string(raw)
	}
	if obj, ok := doc.(map[string]interface{}); ok {
		if out, ok := obj["output"].(string); ok && out != "" {
			return out
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
