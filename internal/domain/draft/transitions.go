package draft

// transitions is the full table of valid status changes. Anything absent
// here is invalid; in particular there is no path into published that does
// not pass through approved.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusInReview},
	StatusInReview:  {StatusApproved, StatusRejected, StatusSkipped},
	StatusApproved:  {StatusInReview, StatusPublished},
	StatusRejected:  {StatusInReview},
	StatusSkipped:   {StatusInReview},
	StatusPublished: {StatusRecovered},
	StatusRecovered: {StatusInReview},
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the valid targets from the given status.
// The returned slice is a copy.
func AllowedTransitions(from Status) []Status {
	allowed := transitions[from]
	out := make([]Status, len(allowed))
	copy(out, allowed)
	return out
}

// AtRest reports whether a draft in this status requires no further
// system action. Every remaining transition out of an at-rest status is
// operator-initiated (resubmit, reconsider, recovery).
func (s Status) AtRest() bool {
	switch s {
	case StatusRejected, StatusSkipped, StatusPublished, StatusRecovered:
		return true
	}
	return false
}

// Reviewable reports whether the status participates in the operator
// review queue.
func (s Status) Reviewable() bool {
	return s == StatusInReview
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInReview, StatusApproved, StatusRejected,
		StatusSkipped, StatusPublished, StatusRecovered:
		return true
	}
	return false
}
