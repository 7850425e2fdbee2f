package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Path   string
	Query  string
	Params map[string]interface{}
	APIKey string
	Auth   string
}

func newTestServer(t *testing.T, reply func(w http.ResponseWriter, call recordedCall)) (*RPCClient, *[]recordedCall) {
	t.Helper()
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		call := recordedCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			APIKey: r.Header.Get("apikey"),
			Auth:   r.Header.Get("Authorization"),
		}
		if len(body) > 0 {
			_ = json.Unmarshal(body, &call.Params)
		}
		*calls = append(*calls, call)
		reply(w, call)
	}))
	t.Cleanup(srv.Close)

	c, err := NewRPCClient(srv.URL+"/", "anon-key", 5*time.Second, nil)
	require.NoError(t, err)
	return c, calls
}

func TestNewRPCClientRequiresURL(t *testing.T) {
	_, err := NewRPCClient("  ", "k", 0, nil)
	assert.Error(t, err)
}

func TestListRecordsDefaults(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = io.WriteString(w, `[{"id":1,"content":"Тема: a;","archived":false,"canonical_id":null,"duplicates_count":2,"has_duplicates":true}]`)
	})

	rows, err := c.ListRecords(context.Background(), ListQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].ID)
	require.NotNil(t, rows[0].Content)
	assert.Equal(t, "Тема: a;", *rows[0].Content)
	assert.Nil(t, rows[0].CanonicalID)
	assert.Equal(t, 2, rows[0].DuplicatesCount)
	assert.True(t, rows[0].HasDuplicates)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.Method)
	assert.Equal(t, "/rest/v1/rpc/"+FnListRecords, call.Path)
	assert.Equal(t, "anon-key", call.APIKey)
	assert.Equal(t, "Bearer anon-key", call.Auth)
	assert.Nil(t, call.Params["p_search"])
	assert.Nil(t, call.Params["p_archived"])
	assert.Equal(t, false, call.Params["p_with_dupes_only"])
	assert.Equal(t, float64(20), call.Params["p_limit"])
	assert.Equal(t, float64(0), call.Params["p_offset"])
	assert.Equal(t, 0.86, call.Params["p_pairs_thr"])
}

func TestListRecordsFilters(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = io.WriteString(w, `[]`)
	})
	search := "касса"
	archived := true
	_, err := c.ListRecords(context.Background(), ListQuery{Search: &search, Archived: &archived, WithDupesOnly: true, Limit: 50, Offset: 100})
	require.NoError(t, err)

	p := (*calls)[0].Params
	assert.Equal(t, "касса", p["p_search"])
	assert.Equal(t, true, p["p_archived"])
	assert.Equal(t, true, p["p_with_dupes_only"])
	assert.Equal(t, float64(50), p["p_limit"])
	assert.Equal(t, float64(100), p["p_offset"])
}

func TestGetSimilarPairsDefaults(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = io.WriteString(w, `[{"neighbor_id":9,"sim":0.91,"neighbor_archived":true,"neighbor_canonical_id":3,"neighbor_content":null}]`)
	})
	out, err := c.GetSimilarPairs(context.Background(), SimilarQuery{ID: 4})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(9), out[0].NeighborID)
	assert.InDelta(t, 0.91, out[0].Sim, 1e-9)
	require.NotNil(t, out[0].NeighborCanonicalID)
	assert.Equal(t, int64(3), *out[0].NeighborCanonicalID)
	assert.Nil(t, out[0].NeighborContent)

	p := (*calls)[0].Params
	assert.Equal(t, float64(4), p["p_id"])
	assert.Equal(t, 0.86, p["p_thr"])
	assert.Equal(t, float64(50), p["p_limit"])
}

func TestSendOKParams(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		_, _ = io.WriteString(w, `[{"id":5,"telegram_id":77}]`)
	})
	out, err := c.SendOK(context.Background(), SendOKRequest{ID: 5, ArchiveSource: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].TelegramID)
	assert.Equal(t, int64(77), *out[0].TelegramID)

	p := (*calls)[0].Params
	assert.Equal(t, "/rest/v1/rpc/"+FnSendOK, (*calls)[0].Path)
	assert.Equal(t, true, p["p_archive_source"])
	assert.Equal(t, false, p["p_allow_archived"])
	assert.Equal(t, map[string]interface{}{}, p["p_metadata_extra"])
	assert.Equal(t, false, p["p_dedupe_by_content"])
}

func TestArchiveAndEdit(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	require.NoError(t, c.Archive(ctx, 3, "manual"))
	require.NoError(t, c.EditRecord(ctx, 3, "Тема: x;", map[string]interface{}{"edited": true}))
	require.NoError(t, c.SetCanonical(ctx, 3, 1))

	require.Len(t, *calls, 3)
	assert.Equal(t, "manual", (*calls)[0].Params["p_reason"])
	assert.Equal(t, "Тема: x;", (*calls)[1].Params["p_new_content"])
	assert.Equal(t, map[string]interface{}{"edited": true}, (*calls)[1].Params["p_metadata_patch"])
	assert.Equal(t, "/rest/v1/rpc/"+FnSetCanonical, (*calls)[2].Path)
	assert.Equal(t, float64(1), (*calls)[2].Params["p_canonical_id"])
}

func TestDeferredTable(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, call recordedCall) {
		if call.Method == http.MethodGet {
			_, _ = io.WriteString(w, `[{"id":1,"content":"Тема: t;"},{"id":2,"content":null}]`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()
	items, err := c.ListDeferred(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Nil(t, items[1].Content)

	require.NoError(t, c.UpdateDeferred(ctx, 2, "Тема: new;"))
	upd := (*calls)[1]
	assert.Equal(t, http.MethodPatch, upd.Method)
	assert.Equal(t, "/rest/v1/deferredcases", upd.Path)
	assert.Equal(t, "id=eq.2", upd.Query)
	assert.Equal(t, "Тема: new;", upd.Params["content"])
}

func TestRPCErrorCarriesRemoteMessage(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"P0001","message":"record 5 is archived"}`)
	})
	err := c.Archive(context.Background(), 5, "manual")
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, FnArchive, rpcErr.Function)
	assert.Equal(t, http.StatusBadRequest, rpcErr.Status)
	assert.Equal(t, "record 5 is archived", rpcErr.Message)
	assert.Contains(t, err.Error(), "record 5 is archived")
}

func TestRPCErrorPlainBody(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, _ recordedCall) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.GetCluster(context.Background(), 1)
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "Unknown error", rpcErr.Message)
}
