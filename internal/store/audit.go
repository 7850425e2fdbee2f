package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit actions recorded by the store and the services above it.
const (
	ActionEdit          = "edit"
	ActionSendOK        = "send_ok"
	ActionArchive       = "archive"
	ActionMarkDuplicate = "mark_duplicate"
	ActionFeedback      = "feedback"
	ActionImport        = "import"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID        string                 `json:"id"`
	RecordID  int64                  `json:"record_id,omitempty"` // 0 when not tied to a record
	Action    string                 `json:"action"`
	Actor     string                 `json:"actor"`   // session uid or "system"
	Details   map[string]interface{} `json:"details"` // action-specific data
	CreatedAt time.Time              `json:"created_at"`
}

// SetupAuditTables creates the audit table if it doesn't exist
func (s *Store) SetupAuditTables() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			record_id INTEGER,
			action TEXT NOT NULL,
			actor TEXT NOT NULL,
			details TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_audit_record_id ON audit_entries(record_id)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute audit migration: %w", err)
		}
	}
	return nil
}

// newID returns a lexically sortable id.
func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// AddAuditEntry adds an audit entry to the database
func (s *Store) AddAuditEntry(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	var recordID interface{}
	if entry.RecordID > 0 {
		recordID = entry.RecordID
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_entries (id, record_id, action, actor, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, recordID, entry.Action, entry.Actor, string(detailsJSON), entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// GetAuditEntries retrieves audit entries for a record, newest first. A zero
// recordID returns entries for every record.
func (s *Store) GetAuditEntries(ctx context.Context, recordID int64, limit int) ([]AuditEntry, error) {
	query := `SELECT id, record_id, action, actor, details, created_at FROM audit_entries`
	args := []interface{}{}
	if recordID > 0 {
		query += ` WHERE record_id = ?`
		args = append(args, recordID)
	}
	// ulids sort by creation time
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var (
			entry       AuditEntry
			recID       sql.NullInt64
			detailsJSON string
			createdAt   int64
		)
		if err := rows.Scan(&entry.ID, &recID, &entry.Action, &entry.Actor, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.RecordID = recID.Int64
		entry.CreatedAt = time.Unix(createdAt, 0)

		if err := json.Unmarshal([]byte(detailsJSON), &entry.Details); err != nil {
			// If unmarshaling fails, store as string
			entry.Details = map[string]interface{}{"raw": detailsJSON}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LogRecordAction logs a record-related action
func (s *Store) LogRecordAction(ctx context.Context, recordID int64, action, actor string, details map[string]interface{}) error {
	return s.AddAuditEntry(ctx, AuditEntry{
		RecordID: recordID,
		Action:   action,
		Actor:    actor,
		Details:  details,
	})
}

// LogFeedback logs a submitted feedback message with the cases it references.
func (s *Store) LogFeedback(ctx context.Context, actor, feedbackID, summary string, caseIDs []string) error {
	return s.AddAuditEntry(ctx, AuditEntry{
		Action: ActionFeedback,
		Actor:  actor,
		Details: map[string]interface{}{
			"feedback_id": feedbackID,
			"summary":     summary,
			"cases":       caseIDs,
		},
	})
}

// audit records an action that already happened; a failed write is logged
// because the action itself cannot be undone.
func (s *Store) audit(ctx context.Context, recordID int64, action string, details map[string]interface{}) {
	if err := s.LogRecordAction(ctx, recordID, action, "", details); err != nil {
		s.logger.Printf("failed to audit %s for record %d: %v", action, recordID, err)
	}
}
