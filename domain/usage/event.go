// Package usage provides usage ledger types and aggregation functions.
// All functions are pure - no side effects.
package usage

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/nexastudio/creditmeter/domain/event"
)

// Credits is a credit amount that may be unlimited.
type Credits int64

// UnlimitedCredits marks an amount with no upper bound.
const UnlimitedCredits Credits = math.MaxInt64

// Unlimited reports whether c is the unlimited marker.
func (c Credits) Unlimited() bool {
	return c == UnlimitedCredits
}

// String renders c, using "unlimited" for the marker.
func (c Credits) String() string {
	if c.Unlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(c), 10)
}

// MarshalJSON encodes unlimited amounts as null.
func (c Credits) MarshalJSON() ([]byte, error) {
	if c.Unlimited() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(int64(c), 10)), nil
}

// UnmarshalJSON decodes null as unlimited.
func (c *Credits) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*c = UnlimitedCredits
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Credits(n)
	return nil
}

// Event is one immutable ledger entry for a tracked action.
type Event struct {
	ID              string
	OrganizationID  string
	UserID          string
	SessionID       *int64
	EventType       string
	EventData       event.Data
	CreditsConsumed int64
	CreatedAt       time.Time
}

// NewEvent builds a ledger entry, stamping the cost audit trail into its data.
// The caller's data is copied, never modified.
func NewEvent(id, orgID, userID string, sessionID *int64, def event.Definition, data event.Data, credits int64, at time.Time) Event {
	stored := data.Clone()
	stored[event.KeyCalculatedCredits] = credits
	stored[event.KeyBaseCredits] = def.BaseCredits
	stored[event.KeyMultipliers] = event.AppliedMultipliers(def, data).Map()

	return Event{
		ID:              id,
		OrganizationID:  orgID,
		UserID:          userID,
		SessionID:       sessionID,
		EventType:       def.EventType,
		EventData:       stored,
		CreditsConsumed: credits,
		CreatedAt:       at,
	}
}

// User is the display identity attached to events in reports.
type User struct {
	ID       string
	FullName string
	Email    string
}

// DisplayName returns the full name, falling back to email and then ID.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
