package model

import "time"

// JargonEntry maps a trade-community acronym to its expansion. Only verified
// entries are ever applied to text; entries learned from extraction output
// start unverified and wait for an admin to confirm them.
type JargonEntry struct {
	CreatedAt time.Time
	Acronym   string
	Expansion string
	ID        int64
	Verified  bool
}
