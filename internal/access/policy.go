// Package access provides the stateless authorization predicates used across
// the moderation pipeline: role-hierarchy comparison and the ban-status
// check. All functions here are pure; they perform no I/O and hold no state.
package access

import (
	"time"

	"github.com/tbourn/go-forum-backend/internal/domain"
)

// roleWeights assigns each role its ordinal in the total order
// VISITOR < MEMBER < MODERATOR < ADMIN. Unknown roles map to the zero
// weight, which is below VISITOR, so comparisons fail closed.
var roleWeights = map[domain.Role]int{
	domain.RoleVisitor:   1,
	domain.RoleMember:    2,
	domain.RoleModerator: 3,
	domain.RoleAdmin:     4,
}

// HasMinRole reports whether actual meets or exceeds required in the role
// hierarchy. Unknown values on either side are treated as the lowest weight.
func HasMinRole(actual, required domain.Role) bool {
	return roleWeights[actual] >= roleWeights[required]
}

// IsModerator reports whether r is MODERATOR or above.
func IsModerator(r domain.Role) bool { return HasMinRole(r, domain.RoleModerator) }

// IsAdmin reports whether r is ADMIN.
func IsAdmin(r domain.Role) bool { return HasMinRole(r, domain.RoleAdmin) }

// BanSnapshot is the minimal view of a user's ban state needed by the ban
// predicate. It is taken from the user row at check time; the predicate is
// recomputed on every call and never cached.
type BanSnapshot struct {
	BannedAt    *time.Time
	BannedUntil *time.Time
}

// SnapshotOf extracts the ban snapshot from a user row.
func SnapshotOf(u *domain.User) BanSnapshot {
	return BanSnapshot{BannedAt: u.BannedAt, BannedUntil: u.BannedUntil}
}

// IsBanned reports whether the snapshot describes an active ban: bannedAt is
// set AND (bannedUntil is nil, meaning permanent, OR bannedUntil is still in
// the future). An expired temporary ban reads as not banned even before the
// ban fields are cleared.
func IsBanned(s BanSnapshot) bool {
	return isBannedAt(s, time.Now())
}

// isBannedAt is the time-injected form of IsBanned used by tests.
func isBannedAt(s BanSnapshot, now time.Time) bool {
	if s.BannedAt == nil {
		return false
	}
	if s.BannedUntil == nil {
		return true
	}
	return s.BannedUntil.After(now)
}
