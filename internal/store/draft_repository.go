package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
)

const draftColumns = `id, client_id, platform, body, image_prompt, hashtags, image_ref,
	suggested_at, custom_post_time, quality_report, voice_score, status, publish_mode,
	edit_history, reject_tags, reject_guidance, approved_at, approved_by, created_at, updated_at`

func scanDraft(scanner interface{ Scan(...any) error }) (*draftModel, error) {
	var m draftModel
	err := scanner.Scan(
		&m.ID, &m.ClientID, &m.Platform, &m.Body, &m.ImagePrompt, &m.Hashtags, &m.ImageRef,
		&m.SuggestedAt, &m.CustomPostTime, &m.QualityReport, &m.VoiceScore, &m.Status, &m.PublishMode,
		&m.EditHistory, &m.RejectTags, &m.RejectGuidance, &m.ApprovedAt, &m.ApprovedBy,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// InsertDraft persists a new draft, normally arriving from the generation
// pipeline in status draft. The client reference is fixed at insert and
// never changes afterward.
func (s *Store) InsertDraft(d *draft.Draft) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	d.UpdatedAt = d.CreatedAt
	m := toDraftModel(d)

	_, err := s.db.Exec(
		`INSERT INTO drafts (`+draftColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ClientID, m.Platform, m.Body, m.ImagePrompt, m.Hashtags, m.ImageRef,
		m.SuggestedAt, m.CustomPostTime, m.QualityReport, m.VoiceScore, m.Status, m.PublishMode,
		m.EditHistory, m.RejectTags, m.RejectGuidance, m.ApprovedAt, m.ApprovedBy,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return unavailable("insert draft", err)
	}
	return nil
}

// GetDraft retrieves a draft by ID. Returns ErrNotFound if absent.
func (s *Store) GetDraft(id string) (*draft.Draft, error) {
	row := s.db.QueryRow(`SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	m, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get draft", err)
	}
	return m.toDomain(), nil
}

// DraftFilter narrows ListDrafts. Zero values mean "no constraint".
type DraftFilter struct {
	Statuses  []draft.Status
	ClientIDs []string
	Platform  draft.Platform

	// InReviewBefore selects in_review drafts whose last update is older
	// than the given instant. Used by the stale monitor.
	InReviewBefore time.Time
}

// ListDrafts returns drafts matching the filter, oldest first so the
// review queue surfaces the longest-waiting content at the top.
func (s *Store) ListDrafts(f DraftFilter) ([]*draft.Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE 1=1`
	var args []any

	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	if len(f.ClientIDs) > 0 {
		query += ` AND client_id IN (` + placeholders(len(f.ClientIDs)) + `)`
		for _, c := range f.ClientIDs {
			args = append(args, c)
		}
	}
	if f.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, string(f.Platform))
	}
	if !f.InReviewBefore.IsZero() {
		query += ` AND status = ? AND updated_at < ?`
		args = append(args, string(draft.StatusInReview), f.InReviewBefore.Unix())
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable("list drafts", err)
	}
	defer func() { _ = rows.Close() }()

	var drafts []*draft.Draft
	for rows.Next() {
		m, err := scanDraft(rows)
		if err != nil {
			return nil, unavailable("scan draft row", err)
		}
		drafts = append(drafts, m.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate draft rows", err)
	}
	return drafts, nil
}

// CountByStatus returns the number of drafts per status, optionally
// scoped to one client. Backs the health strip.
func (s *Store) CountByStatus(clientID string) (map[draft.Status]int, error) {
	query := `SELECT status, COUNT(*) FROM drafts`
	var args []any
	if clientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, clientID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, unavailable("count drafts", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[draft.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, unavailable("scan count row", err)
		}
		counts[draft.Status(status)] = n
	}
	return counts, rows.Err()
}

// DraftMutation describes one atomic draft write: a status precondition,
// an in-memory mutator, and the audit attribution. CreateEntries are
// inserted and PauseQueued applied inside the same transaction, so a
// failed audit or queue write rolls the whole mutation back.
type DraftMutation struct {
	// ExpectStatus is the precondition on the current status. Empty
	// means any. A mismatch fails with ErrConflict.
	ExpectStatus []draft.Status

	// Apply mutates the draft in memory. The store persists whatever
	// Apply leaves behind, except ClientID which is immutable.
	Apply func(*draft.Draft) error

	Actor  draft.Actor
	Action string

	// CreateEntries builds queue entries from the post-mutation draft;
	// they are inserted in the same transaction (approval creates one per
	// target platform on approve). A paused entry for the same draft and
	// platform is revived in place rather than duplicated.
	CreateEntries func(updated *draft.Draft) ([]*draft.QueueEntry, error)

	// PauseQueued moves this draft's queued entries to paused. Used when
	// an edit pulls an approved draft back into review.
	PauseQueued bool
}

// UpdateDraftAtomic reads the draft, checks the precondition, applies the
// mutator, and writes the row plus exactly one audit record in a single
// transaction. Returns the updated draft.
func (s *Store) UpdateDraftAtomic(id string, mut DraftMutation) (*draft.Draft, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRow(`SELECT `+draftColumns+` FROM drafts WHERE id = ?`, id)
	m, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("load draft", err)
	}
	current := m.toDomain()

	if len(mut.ExpectStatus) > 0 && !slices.Contains(mut.ExpectStatus, current.Status) {
		return nil, fmt.Errorf("draft %s is %s: %w", id, current.Status, ErrConflict)
	}

	before, _ := json.Marshal(current)

	updated := *current
	if mut.Apply != nil {
		if err := mut.Apply(&updated); err != nil {
			return nil, err
		}
	}
	updated.ClientID = current.ClientID // immutable
	updated.ID = current.ID
	updated.UpdatedAt = time.Now().UTC()

	um := toDraftModel(&updated)
	if _, err := tx.Exec(
		`UPDATE drafts SET platform = ?, body = ?, image_prompt = ?, hashtags = ?, image_ref = ?,
			suggested_at = ?, custom_post_time = ?, quality_report = ?, voice_score = ?,
			status = ?, publish_mode = ?, edit_history = ?, reject_tags = ?, reject_guidance = ?,
			approved_at = ?, approved_by = ?, updated_at = ?
		 WHERE id = ?`,
		um.Platform, um.Body, um.ImagePrompt, um.Hashtags, um.ImageRef,
		um.SuggestedAt, um.CustomPostTime, um.QualityReport, um.VoiceScore,
		um.Status, um.PublishMode, um.EditHistory, um.RejectTags, um.RejectGuidance,
		um.ApprovedAt, um.ApprovedBy, um.UpdatedAt, um.ID,
	); err != nil {
		return nil, unavailable("update draft", err)
	}

	after, _ := json.Marshal(&updated)
	if err := insertAudit(tx, updated.ClientID, updated.ID, mut.Actor, mut.Action, before, after); err != nil {
		return nil, err
	}

	if mut.CreateEntries != nil {
		entries, err := mut.CreateEntries(&updated)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if err := reviveOrInsertQueueEntry(tx, entry); err != nil {
				return nil, err
			}
		}
	}

	if mut.PauseQueued {
		if _, err := tx.Exec(
			`UPDATE queue_entries SET status = ?, updated_at = ? WHERE draft_id = ? AND status = ?`,
			string(draft.QueuePaused), time.Now().UTC().Unix(), id, string(draft.QueueQueued),
		); err != nil {
			return nil, unavailable("pause queue entries", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit draft mutation", err)
	}

	log.Debug(log.CatStore, "Draft mutated", "draft", id,
		"from", current.Status, "to", updated.Status, "action", mut.Action)
	return &updated, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
