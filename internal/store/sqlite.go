package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/casedesk/casedesk/internal/backend"
)

// Store is the local SQLite mirror of the record backend. It implements
// backend.Backend so the review flows can run without the remote service.
type Store struct {
	db     *sql.DB
	logger *log.Logger

	mu      sync.Mutex // guards entropy
	entropy io.Reader
}

var _ backend.Backend = (*Store)(nil)

// Record is a stored case record.
type Record struct {
	ID            int64                  `json:"id" yaml:"id"`
	Content       *string                `json:"content" yaml:"content"`
	Archived      bool                   `json:"archived" yaml:"archived"`
	CanonicalID   *int64                 `json:"canonical_id,omitempty" yaml:"canonical_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ArchiveReason string                 `json:"archive_reason,omitempty" yaml:"archive_reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at" yaml:"updated_at"`
}

// OutboxEntry is a record approved for publication to Telegram.
type OutboxEntry struct {
	ID         int64     `json:"id"`
	RecordID   int64     `json:"record_id"`
	Content    string    `json:"content"`
	TelegramID *int64    `json:"telegram_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open(sqliteDriver, dbPath+sqliteParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{
		db:      db,
		logger:  log.New(io.Discard, "", 0),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// SetLogger sets where failed audit writes are reported. Nil silences them.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	s.logger = logger
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	coreMigrations := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT,
			archived INTEGER NOT NULL DEFAULT 0,
			canonical_id INTEGER,
			metadata TEXT NOT NULL DEFAULT '{}',
			archive_reason TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS telegram_outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			telegram_id INTEGER,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS deferred_cases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_records_archived ON records(archived)`,
		`CREATE INDEX IF NOT EXISTS idx_records_canonical_id ON records(canonical_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_record_id ON telegram_outbox(record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_content ON telegram_outbox(content)`,
	}

	for _, migration := range coreMigrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return s.SetupAuditTables()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const recordColumns = `id, content, archived, canonical_id, metadata, archive_reason, created_at, updated_at`

func scanRecord(sc rowScanner) (Record, error) {
	var (
		r                    Record
		content, reason      sql.NullString
		canonical            sql.NullInt64
		archived             int
		metadataJSON         string
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&r.ID, &content, &archived, &canonical, &metadataJSON, &reason, &createdAt, &updatedAt); err != nil {
		return Record{}, err
	}
	if content.Valid {
		c := content.String
		r.Content = &c
	}
	if canonical.Valid {
		c := canonical.Int64
		r.CanonicalID = &c
	}
	r.Archived = archived != 0
	r.ArchiveReason = reason.String
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
			r.Metadata = map[string]interface{}{"raw": metadataJSON}
		}
	}
	return r, nil
}

func getRecord(ctx context.Context, q rowQuerier, id int64) (Record, error) {
	r, err := scanRecord(q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record %d: %w", id, backend.ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load record %d: %w", id, err)
	}
	return r, nil
}

// GetRecord returns a single record.
func (s *Store) GetRecord(ctx context.Context, id int64) (*Record, error) {
	r, err := getRecord(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ExportRecords returns every record ordered by id.
func (s *Store) ExportRecords(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// CountRecords returns the total and archived record counts.
func (s *Store) CountRecords(ctx context.Context) (total, archived int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(archived), 0) FROM records`).Scan(&total, &archived)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count records: %w", err)
	}
	return total, archived, nil
}

// CreateRecord inserts a new active record and returns its id.
func (s *Store) CreateRecord(ctx context.Context, content string) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO records (content, archived, metadata, created_at, updated_at) VALUES (?, 0, '{}', ?, ?)`,
		content, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read record id: %w", err)
	}
	return id, nil
}

// ImportRecord upserts a record by id. Records without an id are created.
func (s *Store) ImportRecord(ctx context.Context, r Record) (int64, error) {
	if r.ID <= 0 {
		content := ""
		if r.Content != nil {
			content = *r.Content
		}
		return s.CreateRecord(ctx, content)
	}

	meta := r.Metadata
	if meta == nil {
		meta = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	now := time.Now().Unix()
	created := now
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.Unix()
	}

	query := `INSERT INTO records (id, content, archived, canonical_id, metadata, archive_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			archived = excluded.archived,
			canonical_id = excluded.canonical_id,
			metadata = excluded.metadata,
			archive_reason = excluded.archive_reason,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, nullString(r.Content), boolInt(r.Archived), nullInt64(r.CanonicalID),
		string(metaJSON), r.ArchiveReason, created, now)
	if err != nil {
		return 0, fmt.Errorf("failed to import record %d: %w", r.ID, err)
	}
	return r.ID, nil
}

// ListRecords implements backend.Backend. Search is a case-insensitive
// substring match on the content (or an exact id match). A record's
// duplicates are the records pointing at it as canonical plus every record
// whose similarity reaches the pairs threshold.
func (s *Store) ListRecords(ctx context.Context, q backend.ListQuery) ([]backend.RecordRow, error) {
	q = q.Normalize()
	all, err := s.ExportRecords(ctx)
	if err != nil {
		return nil, err
	}
	ix := newSimilarityIndex(all)

	needle := ""
	if q.Search != nil {
		needle = strings.ToLower(strings.TrimSpace(*q.Search))
	}

	rows := make([]backend.RecordRow, 0)
	for _, r := range all {
		if q.Archived != nil && r.Archived != *q.Archived {
			continue
		}
		if needle != "" && !matchesSearch(r, needle) {
			continue
		}
		dups := ix.duplicateCount(r.ID, q.PairsThreshold)
		if q.WithDupesOnly && dups == 0 {
			continue
		}
		rows = append(rows, backend.RecordRow{
			ID:              r.ID,
			Content:         r.Content,
			Archived:        r.Archived,
			CanonicalID:     r.CanonicalID,
			DuplicatesCount: dups,
			HasDuplicates:   dups > 0,
		})
	}
	return paginate(rows, q.Offset, q.Limit), nil
}

func matchesSearch(r Record, needle string) bool {
	if strconv.FormatInt(r.ID, 10) == needle {
		return true
	}
	return r.Content != nil && strings.Contains(strings.ToLower(*r.Content), needle)
}

// GetCluster implements backend.Backend. The requested record always comes
// first, followed by its canonical (if any) and the other duplicates of the
// cluster root.
func (s *Store) GetCluster(ctx context.Context, id int64) ([]backend.ClusterMember, error) {
	self, err := getRecord(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	selfWords := wordSet(self.Content)
	members := []backend.ClusterMember{memberOf(self, backend.RoleSelf, nil)}

	root := self.ID
	if self.CanonicalID != nil {
		root = *self.CanonicalID
		canon, err := getRecord(ctx, s.db, root)
		switch {
		case err == nil:
			sim := jaccard(selfWords, wordSet(canon.Content))
			members = append(members, memberOf(canon, backend.RoleCanonical, &sim))
		case errors.Is(err, backend.ErrNotFound):
		default:
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE canonical_id = ? AND id != ? ORDER BY id`, root, self.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster of %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster member: %w", err)
		}
		sim := jaccard(selfWords, wordSet(r.Content))
		members = append(members, memberOf(r, backend.RoleDuplicate, &sim))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cluster: %w", err)
	}
	return members, nil
}

func memberOf(r Record, role string, sim *float64) backend.ClusterMember {
	return backend.ClusterMember{
		ID:          r.ID,
		Role:        role,
		Archived:    r.Archived,
		CanonicalID: r.CanonicalID,
		Sim:         sim,
		Content:     r.Content,
	}
}

// GetSimilarPairs implements backend.Backend. Neighbors are ordered by
// similarity, highest first.
func (s *Store) GetSimilarPairs(ctx context.Context, q backend.SimilarQuery) ([]backend.Neighbor, error) {
	q = q.Normalize()
	if _, err := getRecord(ctx, s.db, q.ID); err != nil {
		return nil, err
	}
	all, err := s.ExportRecords(ctx)
	if err != nil {
		return nil, err
	}
	ix := newSimilarityIndex(all)

	out := make([]backend.Neighbor, 0)
	for _, r := range all {
		if r.ID == q.ID {
			continue
		}
		sim := ix.sim(q.ID, r.ID)
		if sim < q.Threshold {
			continue
		}
		out = append(out, backend.Neighbor{
			NeighborID:          r.ID,
			Sim:                 sim,
			NeighborArchived:    r.Archived,
			NeighborCanonicalID: r.CanonicalID,
			NeighborContent:     r.Content,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sim != out[j].Sim {
			return out[i].Sim > out[j].Sim
		}
		return out[i].NeighborID < out[j].NeighborID
	})
	return paginate(out, q.Offset, q.Limit), nil
}

// SendOK implements backend.Backend: the record content is queued in the
// Telegram outbox and the record metadata is marked as sent.
func (s *Store) SendOK(ctx context.Context, req backend.SendOKRequest) ([]backend.SentRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) ([]backend.SentRecord, error) {
		_ = tx.Rollback()
		return nil, e
	}

	rec, err := getRecord(ctx, tx, req.ID)
	if err != nil {
		return rollback(err)
	}
	if rec.Archived && !req.AllowArchived {
		return rollback(fmt.Errorf("send record %d: %w", req.ID, backend.ErrArchived))
	}
	content := ""
	if rec.Content != nil {
		content = *rec.Content
	}

	var (
		outboxID   int64
		telegramID sql.NullInt64
		reused     bool
	)
	if req.DedupeByContent {
		err := tx.QueryRowContext(ctx,
			`SELECT id, telegram_id FROM telegram_outbox WHERE content = ? ORDER BY id LIMIT 1`, content,
		).Scan(&outboxID, &telegramID)
		switch {
		case err == nil:
			reused = true
		case errors.Is(err, sql.ErrNoRows):
		default:
			return rollback(fmt.Errorf("lookup outbox for record %d: %w", req.ID, err))
		}
	}
	now := time.Now().Unix()
	if !reused {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO telegram_outbox (record_id, content, created_at) VALUES (?, ?, ?)`, req.ID, content, now)
		if err != nil {
			return rollback(fmt.Errorf("queue record %d: %w", req.ID, err))
		}
		if outboxID, err = res.LastInsertId(); err != nil {
			return rollback(fmt.Errorf("read outbox id: %w", err))
		}
	}

	meta := mergeMetadata(rec.Metadata, req.MetadataExtra)
	meta["sent_ok"] = true
	meta["outbox_id"] = outboxID
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return rollback(fmt.Errorf("failed to marshal metadata: %w", err))
	}
	archived, reason := rec.Archived, rec.ArchiveReason
	if req.ArchiveSource {
		archived, reason = true, "sent_ok"
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET metadata = ?, archived = ?, archive_reason = ?, updated_at = ? WHERE id = ?`,
		string(metaJSON), boolInt(archived), reason, now, req.ID); err != nil {
		return rollback(fmt.Errorf("update record %d: %w", req.ID, err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	s.audit(ctx, req.ID, ActionSendOK, map[string]interface{}{
		"outbox_id":      outboxID,
		"reused":         reused,
		"archive_source": req.ArchiveSource,
	})
	return []backend.SentRecord{{ID: outboxID, TelegramID: int64Ptr(telegramID)}}, nil
}

// Archive implements backend.Backend.
func (s *Store) Archive(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET archived = 1, archive_reason = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to archive record %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %d: %w", id, backend.ErrNotFound)
	}
	s.audit(ctx, id, ActionArchive, map[string]interface{}{"reason": reason})
	return nil
}

// EditRecord implements backend.Backend. The patch is merged into the
// existing metadata object key by key.
func (s *Store) EditRecord(ctx context.Context, id int64, newContent string, metadataPatch map[string]interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	rec, err := getRecord(ctx, tx, id)
	if err != nil {
		return rollback(err)
	}
	metaJSON, err := json.Marshal(mergeMetadata(rec.Metadata, metadataPatch))
	if err != nil {
		return rollback(fmt.Errorf("failed to marshal metadata: %w", err))
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET content = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		newContent, string(metaJSON), time.Now().Unix(), id); err != nil {
		return rollback(fmt.Errorf("update record %d: %w", id, err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.audit(ctx, id, ActionEdit, map[string]interface{}{"patch": metadataPatch})
	return nil
}

// SetCanonical implements backend.Backend. Clusters stay one level deep: the
// duplicate (and anything pointing at it) is attached to the canonical's root.
func (s *Store) SetCanonical(ctx context.Context, duplicateID, canonicalID int64) error {
	if duplicateID == canonicalID {
		return fmt.Errorf("record %d cannot be a duplicate of itself", duplicateID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(e error) error {
		_ = tx.Rollback()
		return e
	}

	if _, err := getRecord(ctx, tx, duplicateID); err != nil {
		return rollback(err)
	}
	canon, err := getRecord(ctx, tx, canonicalID)
	if err != nil {
		return rollback(err)
	}

	now := time.Now().Unix()
	root := canonicalID
	if canon.CanonicalID != nil {
		if *canon.CanonicalID == duplicateID {
			// Swap direction: the former canonical becomes the duplicate's root.
			if _, err := tx.ExecContext(ctx, `UPDATE records SET canonical_id = NULL, updated_at = ? WHERE id = ?`, now, canonicalID); err != nil {
				return rollback(fmt.Errorf("detach record %d: %w", canonicalID, err))
			}
		} else {
			root = *canon.CanonicalID
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET canonical_id = ?, updated_at = ? WHERE canonical_id = ? AND id != ?`,
		root, now, duplicateID, root); err != nil {
		return rollback(fmt.Errorf("re-point duplicates of %d: %w", duplicateID, err))
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET canonical_id = ?, updated_at = ? WHERE id = ?`, root, now, duplicateID); err != nil {
		return rollback(fmt.Errorf("set canonical of %d: %w", duplicateID, err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	s.audit(ctx, duplicateID, ActionMarkDuplicate, map[string]interface{}{"canonical_id": root})
	return nil
}

// ListDeferred implements backend.Backend.
func (s *Store) ListDeferred(ctx context.Context) ([]backend.DeferredCase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM deferred_cases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query deferred cases: %w", err)
	}
	defer rows.Close()

	out := make([]backend.DeferredCase, 0)
	for rows.Next() {
		var (
			d       backend.DeferredCase
			content sql.NullString
		)
		if err := rows.Scan(&d.ID, &content); err != nil {
			return nil, fmt.Errorf("failed to scan deferred case: %w", err)
		}
		if content.Valid {
			c := content.String
			d.Content = &c
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deferred cases: %w", err)
	}
	return out, nil
}

// UpdateDeferred implements backend.Backend.
func (s *Store) UpdateDeferred(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deferred_cases SET content = ?, updated_at = ? WHERE id = ?`, content, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update deferred case %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deferred case %d: %w", id, backend.ErrNotFound)
	}
	return nil
}

// AddDeferred queues content in the deferred cases table.
func (s *Store) AddDeferred(ctx context.Context, content string) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deferred_cases (content, created_at, updated_at) VALUES (?, ?, ?)`, content, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to add deferred case: %w", err)
	}
	return res.LastInsertId()
}

// Outbox returns the most recent outbox entries, newest first.
func (s *Store) Outbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	query := `SELECT id, record_id, content, telegram_id, created_at FROM telegram_outbox ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	out := make([]OutboxEntry, 0)
	for rows.Next() {
		var (
			e         OutboxEntry
			tgID      sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Content, &tgID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}
		e.TelegramID = int64Ptr(tgID)
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// similarityIndex caches word sets and canonical links for a snapshot of records.
type similarityIndex struct {
	words    map[int64]map[string]struct{}
	order    []int64
	children map[int64][]int64
}

func newSimilarityIndex(all []Record) *similarityIndex {
	ix := &similarityIndex{
		words:    make(map[int64]map[string]struct{}, len(all)),
		order:    make([]int64, 0, len(all)),
		children: make(map[int64][]int64),
	}
	for _, r := range all {
		ix.words[r.ID] = wordSet(r.Content)
		ix.order = append(ix.order, r.ID)
		if r.CanonicalID != nil {
			ix.children[*r.CanonicalID] = append(ix.children[*r.CanonicalID], r.ID)
		}
	}
	return ix
}

func (ix *similarityIndex) sim(a, b int64) float64 {
	return jaccard(ix.words[a], ix.words[b])
}

func (ix *similarityIndex) duplicateCount(id int64, threshold float64) int {
	seen := make(map[int64]bool)
	for _, c := range ix.children[id] {
		if c != id {
			seen[c] = true
		}
	}
	for _, other := range ix.order {
		if other == id || seen[other] {
			continue
		}
		if ix.sim(id, other) >= threshold {
			seen[other] = true
		}
	}
	return len(seen)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func mergeMetadata(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
