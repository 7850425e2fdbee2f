package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RPC function names exposed by the remote database.
const (
	FnListRecords     = "get_telegrambad_backup_page_pairs"
	FnGetCluster      = "get_record_cluster_backup"
	FnGetSimilarPairs = "get_record_similar_pairs_backup"
	FnSendOK          = "send_to_telegram_backup"
	FnArchive         = "archive_backup_record"
	FnEditContent     = "edit_backup_content"
	FnSetCanonical    = "set_canonical_backup"

	deferredTable = "deferredcases"
)

// RPCClient talks to a PostgREST-style endpoint: POST {url}/rest/v1/rpc/{fn}.
type RPCClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger
}

// NewRPCClient constructs a client. endpoint is the project base URL.
func NewRPCClient(endpoint, apiKey string, timeout time.Duration, logger *log.Logger) (*RPCClient, error) {
	ep := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if ep == "" {
		return nil, fmt.Errorf("backend: url required (set backend.url)")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RPCClient{
		endpoint:   ep,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// ListRecords implements Backend.
func (c *RPCClient) ListRecords(ctx context.Context, q ListQuery) ([]RecordRow, error) {
	q = q.Normalize()
	params := map[string]interface{}{
		"p_search":          q.Search,
		"p_archived":        q.Archived,
		"p_with_dupes_only": q.WithDupesOnly,
		"p_limit":           q.Limit,
		"p_offset":          q.Offset,
		"p_pairs_thr":       q.PairsThreshold,
	}
	var rows []RecordRow
	if err := c.call(ctx, FnListRecords, params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetCluster implements Backend.
func (c *RPCClient) GetCluster(ctx context.Context, id int64) ([]ClusterMember, error) {
	var members []ClusterMember
	if err := c.call(ctx, FnGetCluster, map[string]interface{}{"p_id": id}, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// GetSimilarPairs implements Backend.
func (c *RPCClient) GetSimilarPairs(ctx context.Context, q SimilarQuery) ([]Neighbor, error) {
	q = q.Normalize()
	params := map[string]interface{}{
		"p_id":     q.ID,
		"p_thr":    q.Threshold,
		"p_limit":  q.Limit,
		"p_offset": q.Offset,
	}
	var out []Neighbor
	if err := c.call(ctx, FnGetSimilarPairs, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendOK implements Backend.
func (c *RPCClient) SendOK(ctx context.Context, req SendOKRequest) ([]SentRecord, error) {
	extra := req.MetadataExtra
	if extra == nil {
		extra = map[string]interface{}{}
	}
	params := map[string]interface{}{
		"p_id":                req.ID,
		"p_archive_source":    req.ArchiveSource,
		"p_allow_archived":    req.AllowArchived,
		"p_metadata_extra":    extra,
		"p_dedupe_by_content": req.DedupeByContent,
	}
	var out []SentRecord
	if err := c.call(ctx, FnSendOK, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Archive implements Backend.
func (c *RPCClient) Archive(ctx context.Context, id int64, reason string) error {
	return c.call(ctx, FnArchive, map[string]interface{}{"p_id": id, "p_reason": reason}, nil)
}

// EditRecord implements Backend.
func (c *RPCClient) EditRecord(ctx context.Context, id int64, newContent string, metadataPatch map[string]interface{}) error {
	if metadataPatch == nil {
		metadataPatch = map[string]interface{}{}
	}
	params := map[string]interface{}{
		"p_id":             id,
		"p_new_content":    newContent,
		"p_metadata_patch": metadataPatch,
	}
	return c.call(ctx, FnEditContent, params, nil)
}

// SetCanonical implements Backend.
func (c *RPCClient) SetCanonical(ctx context.Context, duplicateID, canonicalID int64) error {
	params := map[string]interface{}{"p_id": duplicateID, "p_canonical_id": canonicalID}
	return c.call(ctx, FnSetCanonical, params, nil)
}

// ListDeferred implements Backend by reading the deferred cases table.
func (c *RPCClient) ListDeferred(ctx context.Context) ([]DeferredCase, error) {
	u := c.endpoint + "/rest/v1/" + deferredTable + "?select=id,content&order=id.asc"
	var out []DeferredCase
	if err := c.do(ctx, http.MethodGet, u, deferredTable, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDeferred implements Backend.
func (c *RPCClient) UpdateDeferred(ctx context.Context, id int64, content string) error {
	u := c.endpoint + "/rest/v1/" + deferredTable + "?id=" + url.QueryEscape(fmt.Sprintf("eq.%d", id))
	return c.do(ctx, http.MethodPatch, u, deferredTable, map[string]interface{}{"content": content}, nil)
}

func (c *RPCClient) call(ctx context.Context, fn string, params map[string]interface{}, out interface{}) error {
	err := c.do(ctx, http.MethodPost, c.endpoint+"/rest/v1/rpc/"+fn, fn, params, out)
	if err != nil {
		p, _ := json.Marshal(params)
		c.logger.Printf("RPC error %s %s %v", fn, p, err)
	}
	return err
}

func (c *RPCClient) do(ctx context.Context, method, u, name string, body interface{}, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s params: %w", name, err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RPCError{Function: name, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return &RPCError{Function: name, Status: resp.StatusCode, Message: remoteMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return nil
}

// remoteMessage extracts the error text from a PostgREST error body.
func remoteMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "Unknown error"
	}
	return truncateBody(msg, 400)
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
