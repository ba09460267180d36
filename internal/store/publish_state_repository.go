package store

import (
	"time"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

// GetPublishState reads the single global publish state row. The executor
// consults this before every dispatch; pause must survive restarts, which
// is why it lives here and not in a process flag.
func (s *Store) GetPublishState() (*draft.PublishState, error) {
	row := s.db.QueryRow(`SELECT paused, paused_by, paused_at FROM global_publish_state WHERE id = 1`)
	var paused int
	var pausedBy string
	var pausedAt *int64
	if err := row.Scan(&paused, &pausedBy, &pausedAt); err != nil {
		return nil, unavailable("get publish state", err)
	}
	return &draft.PublishState{
		Paused:   paused != 0,
		PausedBy: draft.Actor(pausedBy),
		PausedAt: unixPtr(pausedAt),
	}, nil
}

// SetPublishState writes the global pause flag and an audit record in one
// transaction.
func (s *Store) SetPublishState(paused bool, by draft.Actor) (*draft.PublishState, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	state := &draft.PublishState{Paused: paused, PausedBy: by}

	var pausedAt *int64
	if paused {
		ts := now.Unix()
		pausedAt = &ts
		state.PausedAt = &now
	}
	if _, err := tx.Exec(
		`UPDATE global_publish_state SET paused = ?, paused_by = ?, paused_at = ? WHERE id = 1`,
		boolInt(paused), string(by), pausedAt,
	); err != nil {
		return nil, unavailable("set publish state", err)
	}

	action := "publishing_resumed"
	if paused {
		action = "publishing_paused"
	}
	if err := insertAudit(tx, "", "", by, action, nil, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit publish state", err)
	}
	return state, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
