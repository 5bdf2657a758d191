// Package quota implements the per-user daily message ledger. The
// decision here is pure: the counter is only ever advanced by the
// persistence finalizer's atomic conditional update, so denied or
// failed turns never consume quota.
package quota

import (
	"time"

	"github.com/quillworks/quill-assistant/internal/apperr"
	"github.com/quillworks/quill-assistant/internal/store"
)

// Limits holds the role-derived daily message allowances.
type Limits struct {
	DirectorDaily int
	MemberDaily   int
}

// DefaultLimits matches the product defaults: directors get twice the
// member allowance.
func DefaultLimits() Limits {
	return Limits{DirectorDaily: 40, MemberDaily: 20}
}

// ForRole returns the daily limit for a user role. Unknown roles get
// the member allowance.
func (l Limits) ForRole(role string) int {
	if role == store.RoleDirector {
		return l.DirectorDaily
	}
	return l.MemberDaily
}

// Check decides whether a user may send another message at instant now.
// The stored counter only binds when last_message_date is now's
// calendar day; any other date means the counter has lapsed and reads
// as zero. Denial surfaces as a quota-kind error (429).
func Check(u *store.User, now time.Time, limits Limits) error {
	today := now.UTC().Format(store.DateFormat)
	if u.LastMessageDate != today {
		return nil
	}
	if u.DailyMessageCount >= limits.ForRole(u.Role) {
		return apperr.New(apperr.KindQuota, "daily message limit reached")
	}
	return nil
}
