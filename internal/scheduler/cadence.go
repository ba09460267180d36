package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/sophiahq/sophia/internal/clients"
	"github.com/sophiahq/sophia/internal/domain/draft"
	"github.com/sophiahq/sophia/internal/log"
	"github.com/sophiahq/sophia/internal/store"
)

// planIterationCap bounds the forward search. A client would need a
// pathological queue to ever hit it.
const planIterationCap = 1000

// CadencePlanner turns a requested publish time into one that honors the
// client's cadence rules. Minimum gap and weekly cap are hard
// constraints; preferred days are a soft nudge applied once.
type CadencePlanner struct {
	store   *store.Store
	clients clients.Repository
	now     func() time.Time
}

// NewCadencePlanner creates the planner.
func NewCadencePlanner(st *store.Store, cl clients.Repository) *CadencePlanner {
	return &CadencePlanner{store: st, clients: cl, now: time.Now}
}

// PlanPublishTime returns the earliest time at or after requested that
// satisfies the client's cadence for the platform.
func (p *CadencePlanner) PlanPublishTime(clientID string, platform draft.Platform, requested time.Time) (time.Time, error) {
	now := p.now().UTC()
	candidate := requested.UTC()
	if candidate.Before(now) {
		candidate = now
	}

	cadence, err := p.clients.GetCadence(clientID)
	if errors.Is(err, clients.ErrClientNotFound) {
		// Unknown client profile: no cadence to enforce.
		return candidate, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load cadence: %w", err)
	}

	commitments, err := p.commitments(clientID, platform, now)
	if err != nil {
		return time.Time{}, err
	}

	gap := time.Duration(cadence.MinHoursBetweenPosts) * time.Hour
	preferredTried := false

	for i := 0; i < planIterationCap; i++ {
		if t, moved := nextAfterGap(candidate, commitments, gap); moved {
			candidate = t
			continue
		}
		if cadence.PostsPerWeekPerPlatform > 0 &&
			countInWeek(commitments, candidate) >= cadence.PostsPerWeekPerPlatform {
			candidate = startOfWeek(candidate).AddDate(0, 0, 7).
				Add(time.Duration(candidate.Hour())*time.Hour + time.Duration(candidate.Minute())*time.Minute)
			continue
		}
		if !preferredTried && len(cadence.PreferredDays) > 0 && !isPreferredDay(candidate, cadence.PreferredDays) {
			preferredTried = true
			if shifted, ok := shiftToPreferredDay(candidate, cadence.PreferredDays); ok {
				candidate = shifted
				continue
			}
		}
		log.Debug(log.CatSched, "Planned publish time", "client", clientID,
			"platform", platform, "requested", requested, "planned", candidate)
		return candidate, nil
	}
	return time.Time{}, fmt.Errorf("no feasible publish slot for client %s on %s", clientID, platform)
}

// commitments gathers the times this client already occupies on the
// platform: pending queue entries plus recent publishes.
func (p *CadencePlanner) commitments(clientID string, platform draft.Platform, now time.Time) ([]time.Time, error) {
	entries, err := p.store.ListQueueEntries(store.QueueFilter{
		ClientID: clientID,
		Platform: platform,
		Statuses: []draft.QueueStatus{draft.QueueQueued, draft.QueuePublishing, draft.QueuePublished},
	})
	if err != nil {
		return nil, fmt.Errorf("load commitments: %w", err)
	}

	var times []time.Time
	for _, e := range entries {
		switch e.Status {
		case draft.QueuePublished:
			if e.PublishedAt != nil && now.Sub(*e.PublishedAt) < 14*24*time.Hour {
				times = append(times, e.PublishedAt.UTC())
			}
		default:
			times = append(times, e.ScheduledAt.UTC())
		}
	}
	return times, nil
}

// nextAfterGap reports whether candidate sits inside the minimum gap of
// any commitment, and if so where to move it.
func nextAfterGap(candidate time.Time, commitments []time.Time, gap time.Duration) (time.Time, bool) {
	if gap <= 0 {
		return candidate, false
	}
	for _, t := range commitments {
		d := candidate.Sub(t)
		if d < 0 {
			d = -d
		}
		if d < gap {
			return t.Add(gap), true
		}
	}
	return candidate, false
}

func countInWeek(commitments []time.Time, candidate time.Time) int {
	weekStart := startOfWeek(candidate)
	weekEnd := weekStart.AddDate(0, 0, 7)
	n := 0
	for _, t := range commitments {
		if !t.Before(weekStart) && t.Before(weekEnd) {
			n++
		}
	}
	return n
}

// startOfWeek returns Monday 00:00 UTC of the candidate's week.
func startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}

func isPreferredDay(t time.Time, days []time.Weekday) bool {
	for _, d := range days {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

// shiftToPreferredDay moves candidate forward to the next preferred
// weekday within the same week, keeping the time of day. Returns false
// when no preferred day remains before the week ends.
func shiftToPreferredDay(candidate time.Time, days []time.Weekday) (time.Time, bool) {
	weekEnd := startOfWeek(candidate).AddDate(0, 0, 7)
	for d := 1; d <= 6; d++ {
		shifted := candidate.AddDate(0, 0, d)
		if !shifted.Before(weekEnd) {
			break
		}
		if isPreferredDay(shifted, days) {
			return shifted, true
		}
	}
	return candidate, false
}
