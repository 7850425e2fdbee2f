package review

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/store"
)

type recordingBus struct {
	bus.NullBus
	mu      sync.Mutex
	records []bus.RecordMessage
}

func (b *recordingBus) PublishRecord(_ context.Context, msg bus.RecordMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, msg)
	return nil
}

func (b *recordingBus) actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.Action)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *store.Store, *recordingBus) {
	t.Helper()
	s, err := store.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	rb := &recordingBus{}
	return NewService(s, rb, nil).WithActor("uid-1"), s, rb
}

func TestOpenDecodesRecordAndNeighbors(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "Тема: Касса; Вопрос: не печатает чек; Ответ: перезагрузите;")
	require.NoError(t, err)
	twin, err := s.CreateRecord(ctx, "Тема: Касса; Вопрос: не печатает чек; Ответ: другой ответ;")
	require.NoError(t, err)

	view, err := svc.Open(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Depth)
	require.NotNil(t, view.Member)
	assert.Equal(t, backend.RoleSelf, view.Member.Role)
	assert.Equal(t, casetext.Record{Theme: "Касса", Question: "не печатает чек", Answer: "перезагрузите"}, view.Record)
	require.Len(t, view.Neighbors, 1)
	assert.Equal(t, twin, view.Neighbors[0].NeighborID)
	assert.Equal(t, "другой ответ", view.Neighbors[0].Record.Answer)
}

func TestOpenMissingRecord(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Open(context.Background(), 404, 1)
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}

func TestOpenNeighborDepthLimit(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	id, err := s.CreateRecord(ctx, "Тема: t;")
	require.NoError(t, err)

	view, err := svc.OpenNeighbor(ctx, MaxDepth, id)
	require.NoError(t, err)
	assert.Equal(t, MaxDepth+1, view.Depth)

	_, err = svc.OpenNeighbor(ctx, MaxDepth+1, id)
	assert.Equal(t, ErrMaxDepth, err)
	assert.Equal(t, "Достигнута максимальная глубина вложенности модальных окон.", err.Error())
}

func TestSaveApproveReject(t *testing.T) {
	svc, s, rb := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "черновик")
	require.NoError(t, err)

	msg, err := svc.Save(ctx, id, casetext.Record{Theme: "Вход", Answer: "Нажмите кнопку."})
	require.NoError(t, err)
	assert.Equal(t, MsgSaved, msg)
	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Тема: Вход; Ответ: Нажмите кнопку.;", *rec.Content)
	assert.Equal(t, true, rec.Metadata["edited"])

	msg, err = svc.Approve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Отправлено в telegram (id=—)", msg)

	// The approved record is archived, so a second approval is refused.
	_, err = svc.Approve(ctx, id)
	assert.True(t, errors.Is(err, backend.ErrArchived))

	other, err := s.CreateRecord(ctx, "Тема: x;")
	require.NoError(t, err)
	msg, err = svc.Reject(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, MsgArchived, msg)
	rec, err = s.GetRecord(ctx, other)
	require.NoError(t, err)
	assert.True(t, rec.Archived)
	assert.Equal(t, "manual", rec.ArchiveReason)

	assert.Equal(t, []string{bus.ActionEdited, bus.ActionSentOK, bus.ActionArchived}, rb.actions())
	assert.Equal(t, "uid-1", rb.records[0].Actor)
}

func TestMarkDuplicate(t *testing.T) {
	svc, s, rb := newTestService(t)
	ctx := context.Background()

	canon, err := s.CreateRecord(ctx, "Тема: Касса; Вопрос: чек;")
	require.NoError(t, err)
	dup, err := s.CreateRecord(ctx, "Тема: Касса; Вопрос: чек;")
	require.NoError(t, err)

	msg, neighbors, err := svc.MarkDuplicate(ctx, canon, dup)
	require.NoError(t, err)
	assert.Equal(t, "Кейс #2 успешно помечен как дубль.", msg)
	require.Len(t, neighbors, 1)
	require.NotNil(t, neighbors[0].NeighborCanonicalID)
	assert.Equal(t, canon, *neighbors[0].NeighborCanonicalID)
	assert.Equal(t, []string{bus.ActionDuplicate}, rb.actions())
	assert.Equal(t, "1", rb.records[0].Detail)
}

func TestDeferredRoundTrip(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.AddDeferred(ctx, "без меток")
	require.NoError(t, err)
	items, err := svc.Deferred(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "без меток", items[0].Record.Theme)

	require.NoError(t, svc.SaveDeferred(ctx, id, casetext.Record{Theme: "t", Question: "q"}))
	items, err = svc.Deferred(ctx)
	require.NoError(t, err)
	assert.Equal(t, casetext.Record{Theme: "t", Question: "q"}, items[0].Record)
}

func TestSaveDropsThemePlaceholder(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.CreateRecord(ctx, "Вопрос: как войти?; Ответ: кнопкой;")
	require.NoError(t, err)
	view, err := svc.Open(ctx, id, 1)
	require.NoError(t, err)
	require.Equal(t, casetext.ThemeNotFound, view.Record.Theme)

	_, err = svc.Save(ctx, id, view.Record)
	require.NoError(t, err)

	rec, err := s.GetRecord(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.Content)
	assert.Equal(t, "Вопрос: как войти?; Ответ: кнопкой;", *rec.Content)
	assert.NotContains(t, *rec.Content, casetext.LabelTheme)
}

func TestSaveDeferredDropsNoDataPlaceholder(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	id, err := s.AddDeferred(ctx, "")
	require.NoError(t, err)
	items, err := svc.Deferred(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, casetext.NoData, items[0].Record.Theme)

	require.NoError(t, svc.SaveDeferred(ctx, id, items[0].Record))

	raw, err := s.ListDeferred(ctx)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	if raw[0].Content != nil {
		assert.NotContains(t, *raw[0].Content, casetext.NoData)
	}
}

type failingBackend struct {
	backend.Backend
	err error
}

func (f failingBackend) GetCluster(context.Context, int64) ([]backend.ClusterMember, error) {
	return nil, nil
}

func (f failingBackend) GetSimilarPairs(context.Context, backend.SimilarQuery) ([]backend.Neighbor, error) {
	return nil, f.err
}

func (f failingBackend) SendOK(context.Context, backend.SendOKRequest) ([]backend.SentRecord, error) {
	tg := int64(991)
	return []backend.SentRecord{{ID: 1, TelegramID: &tg}}, nil
}

func TestOpenPropagatesBackendError(t *testing.T) {
	rpcErr := &backend.RPCError{Function: backend.FnGetSimilarPairs, Status: 500, Message: "boom"}
	svc := NewService(failingBackend{err: rpcErr}, nil, nil)

	_, err := svc.Open(context.Background(), 1, 1)
	var got *backend.RPCError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "boom", got.Message)
}

func TestOpenEmptyClusterShowsNoData(t *testing.T) {
	svc := NewService(failingBackend{}, nil, nil)
	view, err := svc.Open(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, view.Member)
	assert.Equal(t, casetext.NoData, view.Record.Theme)
	assert.NotNil(t, view.Neighbors)
}

func TestApproveReportsTelegramID(t *testing.T) {
	svc := NewService(failingBackend{}, nil, nil)
	msg, err := svc.Approve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Отправлено в telegram (id=991)", msg)
}
