package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

const queueColumns = `id, draft_id, client_id, platform, scheduled_at, publish_mode, status,
	retry_count, platform_post_id, platform_post_url, error_message, image_ref,
	published_at, created_at, updated_at`

func scanQueueEntry(scanner interface{ Scan(...any) error }) (*queueEntryModel, error) {
	var m queueEntryModel
	err := scanner.Scan(
		&m.ID, &m.DraftID, &m.ClientID, &m.Platform, &m.ScheduledAt, &m.PublishMode, &m.Status,
		&m.RetryCount, &m.PlatformPostID, &m.PlatformPostURL, &m.ErrorMessage, &m.ImageRef,
		&m.PublishedAt, &m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// execer covers both *sql.DB and *sql.Tx so queue inserts can ride inside
// a draft mutation transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertQueueEntry(e execer, entry *draft.QueueEntry) error {
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	m := toQueueEntryModel(entry)
	_, err := e.Exec(
		`INSERT INTO queue_entries (`+queueColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DraftID, m.ClientID, m.Platform, m.ScheduledAt, m.PublishMode, m.Status,
		m.RetryCount, m.PlatformPostID, m.PlatformPostURL, m.ErrorMessage, m.ImageRef,
		m.PublishedAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return unavailable("insert queue entry", err)
	}
	return nil
}

// reviveOrInsertQueueEntry reuses the paused entry for the same draft
// and platform when one exists, so an edit/re-approve cycle keeps one
// entry per (draft, platform) instead of stranding the paused row. The
// caller's entry takes over the existing row ID, which is what fire
// registration after commit must target.
func reviveOrInsertQueueEntry(tx *sql.Tx, entry *draft.QueueEntry) error {
	var existingID string
	err := tx.QueryRow(
		`SELECT id FROM queue_entries WHERE draft_id = ? AND platform = ? AND status = ?
		 ORDER BY created_at ASC LIMIT 1`,
		entry.DraftID, string(entry.Platform), string(draft.QueuePaused),
	).Scan(&existingID)
	if errors.Is(err, sql.ErrNoRows) {
		return insertQueueEntry(tx, entry)
	}
	if err != nil {
		return unavailable("find paused entry", err)
	}

	entry.ID = existingID
	entry.RetryCount = 0
	entry.ErrorMessage = ""
	entry.UpdatedAt = time.Now().UTC()
	m := toQueueEntryModel(entry)
	if _, err := tx.Exec(
		`UPDATE queue_entries SET scheduled_at = ?, publish_mode = ?, status = ?,
			retry_count = 0, error_message = '', image_ref = ?, updated_at = ?
		 WHERE id = ?`,
		m.ScheduledAt, m.PublishMode, m.Status, m.ImageRef, m.UpdatedAt, m.ID,
	); err != nil {
		return unavailable("revive paused entry", err)
	}
	return nil
}

// InsertQueueEntry persists a queue entry outside a draft mutation.
// The approval path inserts entries transactionally via UpdateDraftAtomic;
// this is for the scheduler's direct Schedule operation.
func (s *Store) InsertQueueEntry(entry *draft.QueueEntry) error {
	return insertQueueEntry(s.db, entry)
}

// GetQueueEntry retrieves a queue entry by ID.
func (s *Store) GetQueueEntry(id string) (*draft.QueueEntry, error) {
	row := s.db.QueryRow(`SELECT `+queueColumns+` FROM queue_entries WHERE id = ?`, id)
	m, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get queue entry", err)
	}
	return m.toDomain(), nil
}

// QueueFilter narrows ListQueueEntries.
type QueueFilter struct {
	Statuses []draft.QueueStatus
	ClientID string
	Platform draft.Platform
	DraftID  string

	// ScheduledWithin restricts to entries scheduled inside [From, To).
	ScheduledFrom time.Time
	ScheduledTo   time.Time
}

// ListQueueEntries returns entries matching the filter in scheduled-at
// order, which is also the firing order the scheduler guarantees per
// (client, platform).
func (s *Store) ListQueueEntries(f QueueFilter) ([]*draft.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE 1=1`
	var args []any

	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if f.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, string(f.Platform))
	}
	if f.DraftID != "" {
		query += ` AND draft_id = ?`
		args = append(args, f.DraftID)
	}
	if !f.ScheduledFrom.IsZero() {
		query += ` AND scheduled_at >= ?`
		args = append(args, f.ScheduledFrom.Unix())
	}
	if !f.ScheduledTo.IsZero() {
		query += ` AND scheduled_at < ?`
		args = append(args, f.ScheduledTo.Unix())
	}
	query += ` ORDER BY scheduled_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable("list queue entries", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*draft.QueueEntry
	for rows.Next() {
		m, err := scanQueueEntry(rows)
		if err != nil {
			return nil, unavailable("scan queue row", err)
		}
		entries = append(entries, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate queue rows", err)
	}
	return entries, nil
}

// RecentPublishTimes returns the publish timestamps for a platform since
// the given instant. The rate limiter rebuilds its window from this on
// startup so a restart cannot over-permit.
func (s *Store) RecentPublishTimes(platform draft.Platform, since time.Time) ([]time.Time, error) {
	rows, err := s.db.Query(
		`SELECT published_at FROM queue_entries
		 WHERE platform = ? AND published_at IS NOT NULL AND published_at >= ?
		 ORDER BY published_at ASC`,
		string(platform), since.Unix(),
	)
	if err != nil {
		return nil, unavailable("query publish times", err)
	}
	defer func() { _ = rows.Close() }()

	var times []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, unavailable("scan publish time", err)
		}
		times = append(times, time.Unix(ts, 0).UTC())
	}
	return times, rows.Err()
}

// QueueMutation describes one atomic queue-entry write.
type QueueMutation struct {
	// ExpectStatus is the precondition on the current status. Empty
	// means any. A mismatch fails with ErrConflict.
	ExpectStatus []draft.QueueStatus

	Apply func(*draft.QueueEntry) error

	Actor  draft.Actor
	Action string
}

// UpdateQueueEntryAtomic applies the mutation and writes an audit record
// in one transaction, mirroring UpdateDraftAtomic. Every publish attempt,
// retry, and failure passes through here.
func (s *Store) UpdateQueueEntryAtomic(id string, mut QueueMutation) (*draft.QueueEntry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRow(`SELECT `+queueColumns+` FROM queue_entries WHERE id = ?`, id)
	m, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("load queue entry", err)
	}
	current := m.toDomain()

	if len(mut.ExpectStatus) > 0 && !slices.Contains(mut.ExpectStatus, current.Status) {
		return nil, fmt.Errorf("queue entry %s is %s: %w", id, current.Status, ErrConflict)
	}

	before, _ := json.Marshal(current)

	updated := *current
	if mut.Apply != nil {
		if err := mut.Apply(&updated); err != nil {
			return nil, err
		}
	}
	updated.ID = current.ID
	updated.DraftID = current.DraftID
	updated.ClientID = current.ClientID
	updated.UpdatedAt = time.Now().UTC()

	um := toQueueEntryModel(&updated)
	if _, err := tx.Exec(
		`UPDATE queue_entries SET platform = ?, scheduled_at = ?, publish_mode = ?, status = ?,
			retry_count = ?, platform_post_id = ?, platform_post_url = ?, error_message = ?,
			image_ref = ?, published_at = ?, updated_at = ?
		 WHERE id = ?`,
		um.Platform, um.ScheduledAt, um.PublishMode, um.Status,
		um.RetryCount, um.PlatformPostID, um.PlatformPostURL, um.ErrorMessage,
		um.ImageRef, um.PublishedAt, um.UpdatedAt, um.ID,
	); err != nil {
		return nil, unavailable("update queue entry", err)
	}

	after, _ := json.Marshal(&updated)
	if err := insertAudit(tx, updated.ClientID, updated.DraftID, mut.Actor, mut.Action, before, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit queue mutation", err)
	}
	return &updated, nil
}
