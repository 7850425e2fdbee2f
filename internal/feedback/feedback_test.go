package feedback

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/casetext"
	"github.com/casedesk/casedesk/internal/webhook"
)

type fakeSender struct {
	got []webhook.Request
	res *webhook.Result
}

func (f *fakeSender) Send(_ context.Context, req webhook.Request) *webhook.Result {
	f.got = append(f.got, req)
	return f.res
}

type fakeBus struct {
	bus.NullBus
	published []bus.FeedbackMessage
}

func (b *fakeBus) PublishFeedback(_ context.Context, msg bus.FeedbackMessage) error {
	b.published = append(b.published, msg)
	return nil
}

type fakeAudit struct {
	actor, id, summary string
	cases              []string
	calls              int
}

func (a *fakeAudit) LogFeedback(_ context.Context, actor, id, summary string, cases []string) error {
	a.calls++
	a.actor, a.id, a.summary, a.cases = actor, id, summary, cases
	return nil
}

func TestDraftExtractsCases(t *testing.T) {
	c := NewComposer(&fakeSender{}, nil, nil, nil, nil)
	fb := c.Draft("Проверил кейс 123456 из телеграма. Все хорошо, проблема решена.", nil)

	_, err := uuid.Parse(fb.ID)
	require.NoError(t, err)
	assert.Equal(t, []casetext.Reference{{ID: "123456", Source: "telegram"}}, fb.Cases)
	assert.Empty(t, fb.Summary)
}

func TestDraftKeepsInitialCase(t *testing.T) {
	c := NewComposer(&fakeSender{}, nil, nil, nil, nil)
	fb := c.Draft("", &casetext.Reference{ID: "9", Source: SourceOptions[0]})
	assert.Equal(t, []casetext.Reference{{ID: "9", Source: "Наша база знаний"}}, fb.Cases)
}

func TestSubmitForwardsReview(t *testing.T) {
	sender := &fakeSender{res: &webhook.Result{Response: "принято"}}
	eb := &fakeBus{}
	audit := &fakeAudit{}
	c := NewComposer(sender, eb, audit, nil, nil)

	fb := c.Draft("кейс 5 и кейс 6", nil)
	fb.Cases = append(fb.Cases, casetext.Reference{ID: "  "})
	fb.Summary = "Оба решены"

	res := c.Submit(context.Background(), "uid-1", fb)
	require.True(t, res.OK())

	require.Len(t, sender.got, 1)
	req := sender.got[0]
	assert.True(t, req.Review)
	assert.Equal(t, "Оба решены", req.ReviewMessage)
	assert.Equal(t, "uid-1", req.SessionID)
	assert.Equal(t, []casetext.Reference{{ID: "5"}, {ID: "6"}}, req.Cases)

	require.Len(t, eb.published, 1)
	assert.Equal(t, fb.ID, eb.published[0].FeedbackID)
	assert.Equal(t, 1, audit.calls)
	assert.Equal(t, []string{"5", "6"}, audit.cases)
	assert.Equal(t, "uid-1", audit.actor)
}

func TestSubmitFailureSkipsSideEffects(t *testing.T) {
	sender := &fakeSender{res: &webhook.Result{Error: webhook.ErrEmptyMessage}}
	eb := &fakeBus{}
	audit := &fakeAudit{}
	c := NewComposer(sender, eb, audit, nil, nil)

	res := c.Submit(context.Background(), "uid", Feedback{})
	assert.Equal(t, webhook.ErrEmptyMessage, res.Error)
	assert.Empty(t, eb.published)
	assert.Zero(t, audit.calls)
	assert.NotEmpty(t, sender.got)
}
