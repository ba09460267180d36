package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

const recoveryColumns = `id, draft_id, client_id, platform, platform_post_id, urgency, reason,
	status, actor, completed_at, replacement_draft_id, created_at`

func scanRecovery(scanner interface{ Scan(...any) error }) (*draft.RecoveryLog, error) {
	var r draft.RecoveryLog
	var platform, urgency, status, actor string
	var completedAt *int64
	var createdAt int64
	err := scanner.Scan(
		&r.ID, &r.DraftID, &r.ClientID, &platform, &r.PlatformPostID, &urgency, &r.Reason,
		&status, &actor, &completedAt, &r.ReplacementDraftID, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.Platform = draft.Platform(platform)
	r.Urgency = draft.Urgency(urgency)
	r.Status = draft.RecoveryStatus(status)
	r.Actor = draft.Actor(actor)
	r.CompletedAt = unixPtr(completedAt)
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &r, nil
}

// InsertRecoveryLog appends a recovery log in status pending.
func (s *Store) InsertRecoveryLog(r *draft.RecoveryLog) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	var completedAt *int64
	if r.CompletedAt != nil {
		ts := r.CompletedAt.Unix()
		completedAt = &ts
	}
	_, err := s.db.Exec(
		`INSERT INTO recovery_log (`+recoveryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DraftID, r.ClientID, string(r.Platform), r.PlatformPostID,
		string(r.Urgency), r.Reason, string(r.Status), string(r.Actor),
		completedAt, r.ReplacementDraftID, r.CreatedAt.Unix(),
	)
	if err != nil {
		return unavailable("insert recovery log", err)
	}
	return nil
}

// GetRecoveryLog retrieves a recovery log by ID.
func (s *Store) GetRecoveryLog(id string) (*draft.RecoveryLog, error) {
	row := s.db.QueryRow(`SELECT `+recoveryColumns+` FROM recovery_log WHERE id = ?`, id)
	r, err := scanRecovery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recovery log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get recovery log", err)
	}
	return r, nil
}

// SetRecoveryStatus advances a recovery log's status. Only the recovery
// service calls this; the log is otherwise append-only.
func (s *Store) SetRecoveryStatus(id string, status draft.RecoveryStatus, completedAt *time.Time) error {
	var ts *int64
	if completedAt != nil {
		v := completedAt.Unix()
		ts = &v
	}
	res, err := s.db.Exec(
		`UPDATE recovery_log SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), ts, id,
	)
	if err != nil {
		return unavailable("set recovery status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recovery log %s: %w", id, ErrNotFound)
	}
	return nil
}

// LinkReplacementDraft records the backlink once the generation pipeline
// delivers a replacement for recovered content.
func (s *Store) LinkReplacementDraft(recoveryID, replacementDraftID string) error {
	res, err := s.db.Exec(
		`UPDATE recovery_log SET replacement_draft_id = ? WHERE id = ?`,
		replacementDraftID, recoveryID,
	)
	if err != nil {
		return unavailable("link replacement draft", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("recovery log %s: %w", recoveryID, ErrNotFound)
	}
	return nil
}

// ListRecoveryLogs returns logs for a draft, newest first.
func (s *Store) ListRecoveryLogs(draftID string) ([]*draft.RecoveryLog, error) {
	rows, err := s.db.Query(
		`SELECT `+recoveryColumns+` FROM recovery_log WHERE draft_id = ? ORDER BY created_at DESC`,
		draftID,
	)
	if err != nil {
		return nil, unavailable("list recovery logs", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*draft.RecoveryLog
	for rows.Next() {
		r, err := scanRecovery(rows)
		if err != nil {
			return nil, unavailable("scan recovery row", err)
		}
		logs = append(logs, r)
	}
	return logs, rows.Err()
}
