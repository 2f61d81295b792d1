package license

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/shulehq/shule/core/district"
)

type (
	// SeatPool manages district seat accounting.
	SeatPool interface {
		TakeSeat(ctx context.Context, districtID string) error
		ReleaseSeat(ctx context.Context, districtID string) error
	}

	// Allocator applies the license decision table:
	//   district + seats left  -> active immediately, seat taken
	//   district + no seats    -> 14-day trial
	//   parent                 -> pending until payment confirmation
	//   trial                  -> active, expires in 14 days
	Allocator struct {
		pool    SeatPool
		nowFunc func() time.Time // mockable
	}
)

func NewAllocator(pool SeatPool) *Allocator {
	return &Allocator{pool: pool, nowFunc: time.Now}
}

func (a *Allocator) Allocate(ctx context.Context, districtID string, requested Type) (License, error) {
	if requested == "" {
		requested = TypeDistrict // default billing path
	}
	now := a.nowFunc().UTC()

	switch requested {
	case TypeDistrict:
		err := a.pool.TakeSeat(ctx, districtID)
		if errors.Cause(err) == district.ErrNoSeats {
			return a.trial(now), nil
		}
		if err != nil {
			return License{}, errors.Wrap(err, "taking district seat")
		}
		return License{Type: TypeDistrict, Status: StatusActive, ActivatedAt: now}, nil
	case TypeParent:
		return License{Type: TypeParent, Status: StatusPending}, nil
	case TypeTrial:
		return a.trial(now), nil
	}
	return License{}, errors.Errorf("unknown license type %q", requested)
}

// Release returns a district seat for an active district license.
func (a *Allocator) Release(ctx context.Context, districtID string, l License) (License, error) {
	if l.Type == TypeDistrict && l.Status == StatusActive {
		if err := a.pool.ReleaseSeat(ctx, districtID); err != nil {
			return l, errors.Wrap(err, "releasing district seat")
		}
	}
	l.Status = StatusReleased
	return l, nil
}

func (a *Allocator) trial(now time.Time) License {
	return License{
		Type:        TypeTrial,
		Status:      StatusActive,
		ActivatedAt: now,
		ExpiresAt:   now.Add(TrialPeriod),
	}
}
