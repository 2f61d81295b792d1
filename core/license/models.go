package license

import (
	"time"

	"github.com/pkg/errors"
)

// Type is the billing path enabling a student account.
type Type string

const (
	TypeDistrict Type = "district" // seat from the district pool
	TypeParent   Type = "parent"   // parent purchase, activates on payment
	TypeTrial    Type = "trial"    // 14-day trial
)

func (t Type) Valid() bool {
	switch t {
	case TypeDistrict, TypeParent, TypeTrial:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"   // parent purchase awaiting payment
	StatusExpired   Status = "expired"   // trial ran out
	StatusConverted Status = "converted" // trial converted to a paid license
	StatusReleased  Status = "released"  // district seat returned
)

// TrialPeriod is how long a trial license stays active before expiring.
const TrialPeriod = 14 * 24 * time.Hour

var (
	ErrNotPending = errors.New("license is not awaiting payment")
	ErrNotTrial   = errors.New("license is not a trial")
)

type License struct {
	Type        Type      `json:"type"`
	Status      Status    `json:"status"`
	ActivatedAt time.Time `json:"activated_at"` // UTC; zero while pending
	ExpiresAt   time.Time `json:"expires_at"`   // UTC; zero unless trial
}

func (l License) Active() bool { return l.Status == StatusActive }

// TrialExpired reports whether an active trial has run past its expiry.
func (l License) TrialExpired(now time.Time) bool {
	return l.Type == TypeTrial && l.Status == StatusActive && now.After(l.ExpiresAt)
}

// WithPurchaseConfirmed activates a pending parent-purchase license.
func (l License) WithPurchaseConfirmed(now time.Time) (License, error) {
	if l.Type != TypeParent || l.Status != StatusPending {
		return l, ErrNotPending
	}
	l.Status = StatusActive
	l.ActivatedAt = now.UTC()
	return l, nil
}

// WithTrialExpired marks an overdue trial expired.
func (l License) WithTrialExpired(now time.Time) (License, error) {
	if l.Type != TypeTrial {
		return l, ErrNotTrial
	}
	l.Status = StatusExpired
	return l, nil
}

// WithTrialConverted converts a trial to a paid license of the given type.
func (l License) WithTrialConverted(to Type, now time.Time) (License, error) {
	if l.Type != TypeTrial {
		return l, ErrNotTrial
	}
	l.Type = to
	l.Status = StatusActive
	l.ActivatedAt = now.UTC()
	l.ExpiresAt = time.Time{}
	return l, nil
}
