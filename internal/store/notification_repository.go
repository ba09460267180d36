package store

import (
	"encoding/json"

	"github.com/sophiahq/sophia/internal/domain/draft"
)

// GetNotificationPreferences returns all stored channel preferences.
// Channels with no row default to enabled for every event.
func (s *Store) GetNotificationPreferences() ([]draft.NotificationPreference, error) {
	rows, err := s.db.Query(`SELECT channel, enabled, events FROM notification_preferences`)
	if err != nil {
		return nil, unavailable("query notification preferences", err)
	}
	defer func() { _ = rows.Close() }()

	var prefs []draft.NotificationPreference
	for rows.Next() {
		var p draft.NotificationPreference
		var channel string
		var enabled int
		var events *string
		if err := rows.Scan(&channel, &enabled, &events); err != nil {
			return nil, unavailable("scan notification row", err)
		}
		p.Channel = draft.NotificationChannel(channel)
		p.Enabled = enabled != 0
		if events != nil {
			_ = json.Unmarshal([]byte(*events), &p.Events)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// GetNotificationPreference returns the preference for one channel,
// defaulting to enabled-for-everything when no row exists.
func (s *Store) GetNotificationPreference(channel draft.NotificationChannel) (draft.NotificationPreference, error) {
	prefs, err := s.GetNotificationPreferences()
	if err != nil {
		return draft.NotificationPreference{}, err
	}
	for _, p := range prefs {
		if p.Channel == channel {
			return p, nil
		}
	}
	return draft.NotificationPreference{Channel: channel, Enabled: true}, nil
}

// PutNotificationPreference upserts one channel's preference.
func (s *Store) PutNotificationPreference(p draft.NotificationPreference) error {
	var events *string
	if len(p.Events) > 0 {
		events = marshalJSON(p.Events)
	}
	_, err := s.db.Exec(
		`INSERT INTO notification_preferences (channel, enabled, events) VALUES (?, ?, ?)
		 ON CONFLICT(channel) DO UPDATE SET enabled = excluded.enabled, events = excluded.events`,
		string(p.Channel), boolInt(p.Enabled), events,
	)
	if err != nil {
		return unavailable("put notification preference", err)
	}
	return nil
}
