package types

import (
	"slices"
	"time"
)

// Pair is a group of participants assigned to walk together for one rotation window.
//
// A pair normally holds 2 users. When the checked-in count is odd, exactly one
// pair per rotation holds 3 users (IsTriple). A 1-user pair only exists as a
// transient join-time placeholder, never as rotation output.
//
// Color and Number form a display tag participants use to find each other on
// the walk. The tag is not guaranteed unique across pairs; a collision is a
// cosmetic issue, not a correctness one.
type Pair struct {
	// ID is unique within the walk and regenerated on every rotation.
	ID string `json:"id"`

	// Users lists the participant IDs in this pair.
	Users []string `json:"users"`

	// Color is drawn from a fixed palette.
	Color string `json:"color"`

	// Number is drawn from a bounded range (1-100).
	Number int `json:"number"`

	// IsTriple marks the single 3-user pair used to absorb an odd remainder.
	IsTriple bool `json:"isTriple,omitempty"`
}

// HasUser reports whether userID belongs to this pair.
func (p Pair) HasUser(userID string) bool {
	return slices.Contains(p.Users, userID)
}

// Walk is one scheduled group-walk event with its own pairing state.
//
// The walk document is the only shared mutable resource in the engine. It is
// mutated by the rotation orchestrator (Pairs, CurrentRotation,
// LastRotationTime) and by participant actions (CheckedInUsers, join-time
// pairs). All writers go through revision-conditioned store updates.
type Walk struct {
	// ID is assigned at creation and immutable.
	ID string `json:"id"`

	// Date is the scheduled start instant.
	Date time.Time `json:"date"`

	// Active marks the walk the engine currently rotates. The creation flow
	// keeps at most one walk active; the orchestrator tolerates zero or more.
	Active bool `json:"active"`

	// DurationMinutes is the total walk length.
	DurationMinutes int `json:"durationMinutes"`

	// NumberOfRotations is how many times pairs are reshuffled over the walk.
	NumberOfRotations int `json:"numberOfRotations"`

	// CurrentRotation counts committed rotations, starting at 0. It is
	// terminal once it reaches NumberOfRotations.
	CurrentRotation int `json:"currentRotation"`

	// LastRotationTime is the instant of the most recent rotation commit,
	// initialized to the walk's creation time.
	LastRotationTime time.Time `json:"lastRotationTime"`

	// CheckedInUsers lists participants who confirmed presence for this walk.
	// Append-only until the walk ends.
	CheckedInUsers []string `json:"checkedInUsers"`

	// Pairs is the current partition. It is replaced wholesale on each
	// rotation, never merged.
	Pairs []Pair `json:"pairs"`
}

// RotationInterval returns the time between rotations,
// DurationMinutes / NumberOfRotations.
func (w *Walk) RotationInterval() time.Duration {
	if w.NumberOfRotations <= 0 {
		return 0
	}

	return time.Duration(w.DurationMinutes) * time.Minute / time.Duration(w.NumberOfRotations)
}

// RotationDue reports whether a rotation should happen at now.
//
// It is true iff the walk has rotations left and at least one full rotation
// interval has elapsed since the last rotation commit. The boundary is
// inclusive: elapsed == interval is due.
func (w *Walk) RotationDue(now time.Time) bool {
	if w.CurrentRotation >= w.NumberOfRotations {
		return false
	}

	return now.Sub(w.LastRotationTime) >= w.RotationInterval()
}

// IsCheckedIn reports whether userID has checked in for this walk.
func (w *Walk) IsCheckedIn(userID string) bool {
	return slices.Contains(w.CheckedInUsers, userID)
}

// CheckedInPairs returns the current pairs filtered down to checked-in
// members. Pairs left with no checked-in members are dropped. Users who never
// checked in are excluded entirely and receive no pair from the next rotation
// onward.
func (w *Walk) CheckedInPairs() []Pair {
	var filtered []Pair

	for _, pair := range w.Pairs {
		var users []string
		for _, userID := range pair.Users {
			if w.IsCheckedIn(userID) {
				users = append(users, userID)
			}
		}

		if len(users) == 0 {
			continue
		}

		sub := pair
		sub.Users = users
		filtered = append(filtered, sub)
	}

	return filtered
}

// PairFor returns the pair containing userID, or nil when the user has no
// pair in the current partition.
func (w *Walk) PairFor(userID string) *Pair {
	for i := range w.Pairs {
		if w.Pairs[i].HasUser(userID) {
			return &w.Pairs[i]
		}
	}

	return nil
}

// WalkRecord is a Walk together with the store revision it was observed at.
//
// The revision pins the read-decide-write sequence to a single consistent
// snapshot: a rotation commit conditioned on it is rejected when any other
// writer has advanced the document in between.
type WalkRecord struct {
	Walk

	// Revision is the key-value revision of the walk document at read time.
	Revision uint64 `json:"-"`
}
