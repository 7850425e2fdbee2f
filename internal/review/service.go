// Package review implements the record review flows: opening a record with
// its similar neighbors, editing, approving to Telegram, archiving and
// marking duplicates. It works against any backend.Backend.
package review

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/casedesk/casedesk/internal/backend"
	"github.com/casedesk/casedesk/internal/bus"
	"github.com/casedesk/casedesk/internal/casetext"
)

// MaxDepth is the deepest neighbor modal that may open another one.
const MaxDepth = 5

// Messages shown after successful actions.
const (
	MsgSaved    = "Сохранено"
	MsgArchived = "Запись заархивирована"

	rejectReason = "manual"
)

// ErrMaxDepth is returned by OpenNeighbor when the nesting limit is reached.
var ErrMaxDepth = errors.New("Достигнута максимальная глубина вложенности модальных окон.")

// Service runs review actions and announces them on the bus.
type Service struct {
	backend backend.Backend
	bus     bus.Bus
	logger  *log.Logger
	actor   string
}

// NewService wires a review service. A nil bus disables announcements.
func NewService(b backend.Backend, eb bus.Bus, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if eb == nil {
		eb = bus.NewNullBus(logger)
	}
	return &Service{backend: b, bus: eb, logger: logger}
}

// WithActor returns a copy of the service that attributes actions to actor.
func (s *Service) WithActor(actor string) *Service {
	c := *s
	c.actor = actor
	return &c
}

// CaseView is a decoded record together with its similar neighbors.
type CaseView struct {
	ID        int64                  `json:"id"`
	Depth     int                    `json:"depth"`
	Member    *backend.ClusterMember `json:"member,omitempty"`
	Record    casetext.Record        `json:"record"`
	Neighbors []NeighborView         `json:"neighbors"`
}

// NeighborView is a neighbor with its decoded content.
type NeighborView struct {
	backend.Neighbor
	Record casetext.Record `json:"record"`
}

// Open loads a record and its neighbors in parallel. depth is the modal
// nesting level of the view (1 for a record opened from the list).
func (s *Service) Open(ctx context.Context, id int64, depth int) (*CaseView, error) {
	var (
		cluster   []backend.ClusterMember
		neighbors []backend.Neighbor
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		cluster, err = s.backend.GetCluster(egCtx, id)
		return err
	})
	eg.Go(func() error {
		var err error
		neighbors, err = s.backend.GetSimilarPairs(egCtx, backend.SimilarQuery{ID: id})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to open record %d: %w", id, err)
	}

	view := &CaseView{ID: id, Depth: depth, Neighbors: decodeNeighbors(neighbors)}
	if len(cluster) > 0 {
		m := cluster[0]
		view.Member = &m
		view.Record = casetext.DecodeNullable(m.Content)
	} else {
		view.Record = casetext.DecodeNullable(nil)
	}
	return view, nil
}

// OpenNeighbor opens neighborID from a view at depth.
func (s *Service) OpenNeighbor(ctx context.Context, depth int, neighborID int64) (*CaseView, error) {
	if depth > MaxDepth {
		return nil, ErrMaxDepth
	}
	return s.Open(ctx, neighborID, depth+1)
}

// Neighbors reloads the neighbors of a record.
func (s *Service) Neighbors(ctx context.Context, id int64) ([]NeighborView, error) {
	neighbors, err := s.backend.GetSimilarPairs(ctx, backend.SimilarQuery{ID: id})
	if err != nil {
		return nil, err
	}
	return decodeNeighbors(neighbors), nil
}

func decodeNeighbors(in []backend.Neighbor) []NeighborView {
	out := make([]NeighborView, 0, len(in))
	for _, n := range in {
		out = append(out, NeighborView{Neighbor: n, Record: casetext.DecodeNullable(n.NeighborContent)})
	}
	return out
}

// Save re-encodes rec and stores it as the record content. A sentinel theme
// is dropped rather than stored.
func (s *Service) Save(ctx context.Context, id int64, rec casetext.Record) (string, error) {
	content := rec.Editable().Encode()
	if err := s.backend.EditRecord(ctx, id, content, map[string]interface{}{"edited": true}); err != nil {
		return "", err
	}
	s.announce(ctx, id, bus.ActionEdited, "")
	return MsgSaved, nil
}

// Approve sends the record to Telegram and archives the source.
func (s *Service) Approve(ctx context.Context, id int64) (string, error) {
	res, err := s.backend.SendOK(ctx, backend.SendOKRequest{
		ID:              id,
		ArchiveSource:   true,
		AllowArchived:   false,
		MetadataExtra:   map[string]interface{}{},
		DedupeByContent: false,
	})
	if err != nil {
		return "", err
	}
	tg := "—"
	if len(res) > 0 && res[0].TelegramID != nil {
		tg = strconv.FormatInt(*res[0].TelegramID, 10)
	}
	s.announce(ctx, id, bus.ActionSentOK, tg)
	return fmt.Sprintf("Отправлено в telegram (id=%s)", tg), nil
}

// Reject archives the record.
func (s *Service) Reject(ctx context.Context, id int64) (string, error) {
	if err := s.backend.Archive(ctx, id, rejectReason); err != nil {
		return "", err
	}
	s.announce(ctx, id, bus.ActionArchived, rejectReason)
	return MsgArchived, nil
}

// MarkDuplicate marks duplicateID as a duplicate of canonicalID and returns
// the refreshed neighbors of the canonical record.
func (s *Service) MarkDuplicate(ctx context.Context, canonicalID, duplicateID int64) (string, []NeighborView, error) {
	if err := s.backend.SetCanonical(ctx, duplicateID, canonicalID); err != nil {
		return "", nil, err
	}
	s.announce(ctx, duplicateID, bus.ActionDuplicate, strconv.FormatInt(canonicalID, 10))

	msg := fmt.Sprintf("Кейс #%d успешно помечен как дубль.", duplicateID)
	neighbors, err := s.Neighbors(ctx, canonicalID)
	if err != nil {
		return msg, nil, err
	}
	return msg, neighbors, nil
}

// DeferredItem is a pending case with its decoded content.
type DeferredItem struct {
	ID     int64           `json:"id"`
	Record casetext.Record `json:"record"`
}

// Deferred lists the pending cases.
func (s *Service) Deferred(ctx context.Context) ([]DeferredItem, error) {
	items, err := s.backend.ListDeferred(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DeferredItem, 0, len(items))
	for _, it := range items {
		out = append(out, DeferredItem{ID: it.ID, Record: casetext.DecodeNullable(it.Content)})
	}
	return out, nil
}

// SaveDeferred stores an edited pending case.
func (s *Service) SaveDeferred(ctx context.Context, id int64, rec casetext.Record) error {
	if err := s.backend.UpdateDeferred(ctx, id, rec.Editable().Encode()); err != nil {
		return err
	}
	s.announce(ctx, id, bus.ActionDeferred, "")
	return nil
}

func (s *Service) announce(ctx context.Context, id int64, action, detail string) {
	err := s.bus.PublishRecord(ctx, bus.RecordMessage{
		RecordID:  id,
		Action:    action,
		Actor:     s.actor,
		Detail:    detail,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		s.logger.Printf("failed to announce %s for record %d: %v", action, id, err)
	}
}
