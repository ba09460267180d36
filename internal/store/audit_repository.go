package store

import (
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

// insertAudit appends one audit record. Always runs inside the mutation's
// transaction so a failed audit write rolls the mutation back.
func insertAudit(e execer, clientID, draftID string, actor draft.Actor, action string, before, after []byte) error {
	_, err := e.Exec(
		`INSERT INTO audit_log (client_id, draft_id, actor, action, before_snapshot, after_snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		clientID, draftID, string(actor), action, string(before), string(after), time.Now().UTC().Unix(),
	)
	if err != nil {
		return unavailable("insert audit record", err)
	}
	return nil
}

// AppendAudit records an action that is not tied to a draft or queue
// mutation (global pause/resume, recovery attempts).
func (s *Store) AppendAudit(clientID, draftID string, actor draft.Actor, action string, before, after []byte) error {
	return insertAudit(s.db, clientID, draftID, actor, action, before, after)
}

// AuditTrail returns the audit records for a draft in insertion order.
func (s *Store) AuditTrail(draftID string) ([]*draft.AuditRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, client_id, actor, action, before_snapshot, after_snapshot, created_at
		 FROM audit_log WHERE draft_id = ? ORDER BY id ASC`,
		draftID,
	)
	if err != nil {
		return nil, unavailable("query audit trail", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*draft.AuditRecord
	for rows.Next() {
		var r draft.AuditRecord
		var actor string
		var before, after string
		var at int64
		if err := rows.Scan(&r.ID, &r.ClientID, &actor, &r.Action, &before, &after, &at); err != nil {
			return nil, unavailable("scan audit row", err)
		}
		r.Actor = draft.Actor(actor)
		r.Before = []byte(before)
		r.After = []byte(after)
		r.At = time.Unix(at, 0).UTC()
		records = append(records, &r)
	}
	return records, rows.Err()
}
