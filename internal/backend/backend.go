// Package backend describes the record backend the review surfaces talk to and
// provides an HTTP client for its RPC endpoint.
package backend

import (
	"context"
	"errors"
	"fmt"
)

// Defaults applied by the backend when a query leaves a field unset.
const (
	DefaultPageSize       = 20
	DefaultPairsThreshold = 0.86
	DefaultNeighborLimit  = 50
)

// Cluster member roles.
const (
	RoleCanonical = "canonical"
	RoleSelf      = "self"
	RoleDuplicate = "duplicate"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// ErrArchived is returned by SendOK for an archived record unless AllowArchived is set.
var ErrArchived = errors.New("record is archived")

// Backend is the set of record operations used by the review flows.
type Backend interface {
	ListRecords(ctx context.Context, q ListQuery) ([]RecordRow, error)
	GetCluster(ctx context.Context, id int64) ([]ClusterMember, error)
	GetSimilarPairs(ctx context.Context, q SimilarQuery) ([]Neighbor, error)
	SendOK(ctx context.Context, req SendOKRequest) ([]SentRecord, error)
	Archive(ctx context.Context, id int64, reason string) error
	EditRecord(ctx context.Context, id int64, newContent string, metadataPatch map[string]interface{}) error
	SetCanonical(ctx context.Context, duplicateID, canonicalID int64) error
	ListDeferred(ctx context.Context) ([]DeferredCase, error)
	UpdateDeferred(ctx context.Context, id int64, content string) error
}

// ListQuery filters a page of records. Nil pointers mean "any".
type ListQuery struct {
	Search         *string
	Archived       *bool
	WithDupesOnly  bool
	Limit          int
	Offset         int
	PairsThreshold float64
}

// Normalize fills defaults for unset paging fields.
func (q ListQuery) Normalize() ListQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.PairsThreshold <= 0 {
		q.PairsThreshold = DefaultPairsThreshold
	}
	return q
}

// RecordRow is one row of the records page.
type RecordRow struct {
	ID              int64   `json:"id" yaml:"id"`
	Content         *string `json:"content" yaml:"content"`
	Archived        bool    `json:"archived" yaml:"archived"`
	CanonicalID     *int64  `json:"canonical_id" yaml:"canonical_id"`
	DuplicatesCount int     `json:"duplicates_count" yaml:"duplicates_count"`
	HasDuplicates   bool    `json:"has_duplicates" yaml:"has_duplicates"`
}

// ClusterMember is a record together with its role in a duplicate cluster.
type ClusterMember struct {
	ID          int64    `json:"id"`
	Role        string   `json:"role"`
	Archived    bool     `json:"archived"`
	CanonicalID *int64   `json:"canonical_id"`
	Sim         *float64 `json:"sim"`
	Content     *string  `json:"content"`
}

// SimilarQuery selects neighbors of a record above a similarity threshold.
type SimilarQuery struct {
	ID        int64
	Threshold float64
	Limit     int
	Offset    int
}

// Normalize fills defaults for unset fields.
func (q SimilarQuery) Normalize() SimilarQuery {
	if q.Threshold <= 0 {
		q.Threshold = DefaultPairsThreshold
	}
	if q.Limit <= 0 {
		q.Limit = DefaultNeighborLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Neighbor is a record similar to the one being reviewed.
type Neighbor struct {
	NeighborID          int64   `json:"neighbor_id"`
	Sim                 float64 `json:"sim"`
	NeighborArchived    bool    `json:"neighbor_archived"`
	NeighborCanonicalID *int64  `json:"neighbor_canonical_id"`
	NeighborContent     *string `json:"neighbor_content"`
}

// SendOKRequest approves a record and forwards it to the Telegram outbox.
type SendOKRequest struct {
	ID              int64
	ArchiveSource   bool
	AllowArchived   bool
	MetadataExtra   map[string]interface{}
	DedupeByContent bool
}

// SentRecord reports the outbox row created for an approved record.
type SentRecord struct {
	ID         int64  `json:"id"`
	TelegramID *int64 `json:"telegram_id"`
}

// DeferredCase is an item of the pending (deferred) queue.
type DeferredCase struct {
	ID      int64   `json:"id"`
	Content *string `json:"content"`
}

// RPCError is returned when the remote backend rejects a call.
type RPCError struct {
	Function string
	Status   int
	Message  string
}

func (e *RPCError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("rpc %s: status %d: %s", e.Function, e.Status, e.Message)
	}
	return fmt.Sprintf("rpc %s: %s", e.Function, e.Message)
}
