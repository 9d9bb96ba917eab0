// Package item defines the tracked unit of a page source and its delivery status.
package item

import "strconv"

// Status is the tri-state delivery flag persisted in the "alerted" column.
//
// The integer values are part of the on-disk layout; do not renumber.
type Status int

const (
	StatusFailedFinal Status = -2
	StatusFailedOnce  Status = -1
	StatusUnsent      Status = 0
	StatusSent        Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusUnsent:
		return "unsent"
	case StatusSent:
		return "sent"
	case StatusFailedOnce:
		return "failed_once"
	case StatusFailedFinal:
		return "failed_final"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnsent, StatusSent, StatusFailedOnce, StatusFailedFinal:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further delivery attempts happen from s.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailedFinal
}

// transitions lists every allowed (from -> to) edge.
var transitions = map[Status][]Status{
	StatusUnsent:     {StatusSent, StatusFailedOnce},
	StatusFailedOnce: {StatusSent, StatusFailedFinal},
}

// CanTransition reports whether the delivery protocol allows moving from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Statuses returns all known statuses in display order.
func Statuses() []Status {
	return []Status{StatusUnsent, StatusSent, StatusFailedOnce, StatusFailedFinal}
}

// Item is one stored (url, title) pair with its delivery status.
type Item struct {
	URL    string
	Title  string
	Status Status
}

// Candidate is an extracted (url, title) pair not yet merged into the store.
type Candidate struct {
	URL   string
	Title string
}
