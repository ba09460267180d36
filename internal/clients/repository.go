// Package clients exposes the read-only client repository: cadence rules,
// platform account IDs, and guardrails. The core never writes client
// data; profiles are maintained by the surrounding system.
package clients

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sophiahq/sophia/internal/log"
)

// ErrClientNotFound is returned for unknown client IDs.
var ErrClientNotFound = errors.New("client not found")

// Cadence holds the per-client posting-frequency rules. The scheduler
// enforces PostsPerWeekPerPlatform and MinHoursBetweenPosts as hard
// constraints; PreferredDays is a soft preference.
type Cadence struct {
	PostsPerWeekPerPlatform int
	MinHoursBetweenPosts    int
	PreferredDays           []time.Weekday
}

// PlatformAccounts holds the client's platform identities.
type PlatformAccounts struct {
	FacebookID  string
	InstagramID string
}

// Client is the read model the core sees.
type Client struct {
	ID         string
	Name       string
	Cadence    Cadence
	Accounts   PlatformAccounts
	Guardrails json.RawMessage
}

// Repository is the read-only access contract.
type Repository interface {
	Get(clientID string) (*Client, error)
	GetCadence(clientID string) (Cadence, error)
	GetPlatformAccounts(clientID string) (PlatformAccounts, error)
}

// sqlRepository reads client rows from the shared content database.
type sqlRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a repository over the given database handle.
func NewSQLRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) Get(clientID string) (*Client, error) {
	row := r.db.QueryRow(
		`SELECT id, name, posts_per_week, min_hours_between_posts, preferred_days,
			facebook_id, instagram_id, guardrails
		 FROM clients WHERE id = ?`,
		clientID,
	)

	var c Client
	var preferredDays, guardrails *string
	err := row.Scan(
		&c.ID, &c.Name, &c.Cadence.PostsPerWeekPerPlatform, &c.Cadence.MinHoursBetweenPosts,
		&preferredDays, &c.Accounts.FacebookID, &c.Accounts.InstagramID, &guardrails,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("client %s: %w", clientID, ErrClientNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if preferredDays != nil {
		var days []int
		if json.Unmarshal([]byte(*preferredDays), &days) == nil {
			for _, d := range days {
				c.Cadence.PreferredDays = append(c.Cadence.PreferredDays, time.Weekday(d))
			}
		}
	}
	if guardrails != nil {
		c.Guardrails = json.RawMessage(*guardrails)
	}
	log.Debug(log.CatClients, "Loaded client", "client", clientID)
	return &c, nil
}

func (r *sqlRepository) GetCadence(clientID string) (Cadence, error) {
	c, err := r.Get(clientID)
	if err != nil {
		return Cadence{}, err
	}
	return c.Cadence, nil
}

func (r *sqlRepository) GetPlatformAccounts(clientID string) (PlatformAccounts, error) {
	c, err := r.Get(clientID)
	if err != nil {
		return PlatformAccounts{}, err
	}
	return c.Accounts, nil
}
