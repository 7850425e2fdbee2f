package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/review"
	"github.com/casedesk/casedesk/internal/webhook"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBackendError maps service errors onto HTTP statuses.
func writeBackendError(w http.ResponseWriter, err error) {
	var rpcErr *backend.RPCError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, backend.ErrArchived):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, review.ErrMaxDepth):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rpcErr):
		writeError(w, http.StatusBadGateway, rpcErr.Message)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// reviewer attributes actions to the caller's session when it sends one.
func (s *Server) reviewer(r *http.Request) *review.Service {
	if actor := strings.TrimSpace(r.Header.Get("X-Session-Id")); actor != "" {
		return s.deps.Review.WithActor(actor)
	}
	return s.deps.Review
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/records?search=&archived=&dupes=&limit=&offset=&thr=
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.deps.Backend.ListRecords(r.Context(), q)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if rows == nil {
		rows = []backend.RecordRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseListQuery(r *http.Request) (backend.ListQuery, error) {
	v := r.URL.Query()
	var q backend.ListQuery
	if s := strings.TrimSpace(v.Get("search")); s != "" {
		q.Search = &s
	}
	if a := v.Get("archived"); a != "" && a != "all" {
		b, err := strconv.ParseBool(a)
		if err != nil {
			return q, errors.New("invalid archived filter")
		}
		q.Archived = &b
	}
	if d := v.Get("dupes"); d != "" {
		b, err := strconv.ParseBool(d)
		if err != nil {
			return q, errors.New("invalid dupes filter")
		}
		q.WithDupesOnly = b
	}
	var err error
	if l := v.Get("limit"); l != "" {
		if q.Limit, err = strconv.Atoi(l); err != nil {
			return q, errors.New("invalid limit")
		}
	}
	if o := v.Get("offset"); o != "" {
		if q.Offset, err = strconv.Atoi(o); err != nil {
			return q, errors.New("invalid offset")
		}
	}
	if t := v.Get("thr"); t != "" {
		if q.PairsThreshold, err = strconv.ParseFloat(t, 64); err != nil {
			return q, errors.New("invalid threshold")
		}
	}
	return q.Normalize(), nil
}

// GET /api/records/{id}?depth=N
func (s *Server) handleOpenRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	depth := 1
	if d := r.URL.Query().Get("depth"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid depth")
			return
		}
		depth = n
	}

	var (
		view *review.CaseView
		err  error
	)
	if depth > 1 {
		view, err = s.deps.Review.OpenNeighbor(r.Context(), depth-1, id)
	} else {
		view, err = s.deps.Review.Open(r.Context(), id, depth)
	}
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /api/records/{id} with a casetext.Record body
func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var rec casetext.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	msg, err := s.reviewer(r).Save(r.Context(), id, rec)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg, "content": rec.Encode()})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	msg, err := s.reviewer(r).Approve(r.Context(), id)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	msg, err := s.reviewer(r).Reject(r.Context(), id)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// POST /api/records/{id}/duplicates {"duplicate_id": N}; {id} is the canonical record.
func (s *Server) handleMarkDuplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body struct {
		DuplicateID int64 `json:"duplicate_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.DuplicateID <= 0 {
		writeError(w, http.StatusBadRequest, "duplicate_id is required")
		return
	}
	msg, neighbors, err := s.reviewer(r).MarkDuplicate(r.Context(), id, body.DuplicateID)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": msg, "neighbors": neighbors})
}

func (s *Server) handleListDeferred(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Review.Deferred(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleSaveDeferred(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var rec casetext.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	if err := s.reviewer(r).SaveDeferred(r.Context(), id, rec); err != nil {
		writeBackendError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": review.MsgSaved})
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content *string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, casetext.DecodeNullable(body.Content))
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	var rec casetext.Record
	if !decodeBody(w, r, &rec) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": rec.Encode()})
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string              `json:"message"`
		Initial *casetext.Reference `json:"initial,omitempty"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases": s.deps.Extractor.Extract(body.Message, body.Initial),
	})
}

// chatBody mirrors the webhook payload.
type chatBody struct {
	Message       string               `json:"message"`
	SessionID     string               `json:"sessionId"`
	Review        bool                 `json:"review"`
	ReviewMessage string               `json:"review_message"`
	Site          bool                 `json:"site"`
	BZ            bool                 `json:"bz"`
	Telegram      bool                 `json:"telegram"`
	Cases         []casetext.Reference `json:"cases"`
	CaseNumbers   []string             `json:"case_numbers"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, webhook.ErrMissingURL)
		return
	}
	var body chatBody
	if !decodeBody(w, r, &body) {
		return
	}
	res := s.deps.Chat.Send(r.Context(), webhook.Request{
		Message:       body.Message,
		SessionID:     body.SessionID,
		Review:        body.Review,
		ReviewMessage: body.ReviewMessage,
		Site:          body.Site,
		BZ:            body.BZ,
		Telegram:      body.Telegram,
		Cases:         body.Cases,
		CaseNumbers:   body.CaseNumbers,
	})
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) handleTemplator(w http.ResponseWriter, r *http.Request) {
	if s.deps.Templator == nil {
		writeError(w, http.StatusServiceUnavailable, webhook.ErrMissingURL)
		return
	}
	var body struct {
		Request      string `json:"request"`
		BaseTemplate string `json:"base_template"`
		SessionID    string `json:"sessionId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Request) == "" {
		writeError(w, http.StatusBadRequest, webhook.ErrEmptyMessage)
		return
	}
	res := s.deps.Templator.Send(r.Context(), webhook.Request{
		Message:   webhook.TemplatorPrompt(body.Request, body.BaseTemplate),
		SessionID: body.SessionID,
	})
	out := map[string]interface{}{"result": res}
	if res.OK() {
		out["reply"] = webhook.SplitCodeBlock(res.Response)
	}
	writeJSON(w, resultStatus(res), out)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.deps.Feedback == nil {
		writeError(w, http.StatusServiceUnavailable, webhook.ErrMissingURL)
		return
	}
	var body struct {
		SessionID string               `json:"sessionId"`
		Message   string               `json:"message"`
		Summary   string               `json:"summary"`
		Cases     []casetext.Reference `json:"cases"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	fb := s.deps.Feedback.Draft(body.Message, nil)
	if body.Cases != nil {
		fb.Cases = body.Cases
	}
	fb.Summary = body.Summary
	res := s.deps.Feedback.Submit(r.Context(), body.SessionID, fb)
	writeJSON(w, resultStatus(res), map[string]interface{}{"id": fb.ID, "cases": fb.Cases, "result": res})
}

var _ Sender = (*webhook.Forwarder)(nil)

// resultStatus maps a webhook result: validation failures are the caller's
// fault, anything else is an upstream failure.
func resultStatus(res *webhook.Result) int {
	switch {
	case res.OK():
		return http.StatusOK
	case res.Error == webhook.ErrEmptyMessage || res.Error == webhook.ErrEmptySession:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
