package district

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core"
)

var (
	// errors
	ErrNotFound = errors.New("district not found")
	ErrNoSeats  = errors.New("district has no seats left")
)

type (
	Repository interface {
		CreateDistrict(ctx context.Context, d District) (District, error)
		GetDistrict(ctx context.Context, filter GetFilter) (District, error)
		FilterDistricts(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]District, error)
		UpdateDistrict(ctx context.Context, d District) (District, error)
		// TakeSeat atomically increments seats_used; returns ErrNoSeats when the pool is exhausted.
		TakeSeat(ctx context.Context, id string) (District, error)
		// ReleaseSeat atomically decrements seats_used, never below zero.
		ReleaseSeat(ctx context.Context, id string) (District, error)
	}

	// Cache is an optional read-through cache for ZIP lookups.
	Cache interface {
		GetZIP(ctx context.Context, zip string) (District, bool)
		SetZIP(ctx context.Context, zip string, d District)
		InvalidateZIPs(ctx context.Context, zips ...string)
	}

	Service struct {
		repo  Repository
		cache Cache // may be nil
		log   core.Logger
	}
)

func NewService(repo Repository, cache Cache, log core.Logger) *Service {
	return &Service{repo: repo, cache: cache, log: log}
}

// ResolveZIP finds the district serving a 5-digit ZIP code.
// Returns ErrNotFound on a miss; callers then fall back to manual entry.
func (svc *Service) ResolveZIP(ctx context.Context, zip string) (District, error) {
	zip = core.CleanString(zip)
	if !ValidZIP(zip) {
		return District{}, core.NewValidationError(nil, core.FieldError{Field: "zip", Error: "a 5-digit ZIP code is required"})
	}

	if svc.cache != nil {
		if d, ok := svc.cache.GetZIP(ctx, zip); ok {
			return d, nil
		}
	}

	d, err := svc.repo.GetDistrict(ctx, GetFilter{ZIP: zip})
	if err != nil {
		return District{}, err
	}
	if svc.cache != nil {
		svc.cache.SetZIP(ctx, zip, d)
	}
	return d, nil
}

func (svc *Service) Register(ctx context.Context, nd NewDistrict) (District, error) {
	if err := nd.Validate(); err != nil {
		return District{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateDistrict(ctx, District{
		ID:         uuid.New().String(),
		Name:       nd.Name,
		State:      nd.State,
		ZIPCodes:   nd.ZIPCodes,
		Curriculum: nd.Curriculum,
		Standards:  nd.Standards,
		SeatsTotal: nd.SeatsTotal,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// RegisterManual records a manually entered district (no ZIP mapping, no seats).
// An existing district with the same name and state is reused instead.
func (svc *Service) RegisterManual(ctx context.Context, md ManualDistrict) (District, error) {
	if err := md.Validate(); err != nil {
		return District{}, err
	}

	if d, err := svc.repo.GetDistrict(ctx, GetFilter{Name: core.CleanString(md.Name, true), State: md.State}); err == nil {
		return d, nil
	} else if errors.Cause(err) != ErrNotFound {
		return District{}, err
	}

	now := time.Now().UTC()
	return svc.repo.CreateDistrict(ctx, District{
		ID:          uuid.New().String(),
		Name:        md.Name,
		State:       md.State,
		Curriculum:  md.Curriculum,
		ManualEntry: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (District, error) {
	return svc.repo.GetDistrict(ctx, GetFilter{ID: id})
}

// GetByName looks a district up by exact name and state.
func (svc *Service) GetByName(ctx context.Context, name, state string) (District, error) {
	return svc.repo.GetDistrict(ctx, GetFilter{
		Name:  core.CleanString(name, true /* lower */),
		State: core.CleanString(state, true /* lower */),
	})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]District, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.FilterDistricts(ctx, *filter, ordering...)
}

// Update modifies district settings. Only set fields are applied; the seat
// counter is owned by the licensing flow and cannot be edited here.
func (svc *Service) Update(ctx context.Context, id string, ud UpdateDistrict) (District, error) {
	if err := ud.Validate(); err != nil {
		return District{}, err
	}

	d, err := svc.repo.GetDistrict(ctx, GetFilter{ID: id})
	if err != nil {
		return District{}, err
	}
	// cached lookups hold the full record, so any change makes both the old
	// and the new ZIP entries stale
	staleZIPs := append([]string{}, d.ZIPCodes...)
	if ud.Name != "" {
		d.Name = ud.Name
	}
	if ud.ZIPCodes != nil {
		staleZIPs = append(staleZIPs, ud.ZIPCodes...)
		d.ZIPCodes = ud.ZIPCodes
	}
	if ud.Curriculum != "" {
		d.Curriculum = ud.Curriculum
	}
	if ud.Standards != nil {
		d.Standards = ud.Standards
	}
	if ud.SeatsTotal != nil {
		d.SeatsTotal = *ud.SeatsTotal
	}
	d.UpdatedAt = time.Now().UTC()
	d, err = svc.repo.UpdateDistrict(ctx, d)
	if err != nil {
		return District{}, err
	}
	if svc.cache != nil && len(staleZIPs) > 0 {
		svc.cache.InvalidateZIPs(ctx, staleZIPs...)
	}
	return d, nil
}

func (svc *Service) TakeSeat(ctx context.Context, id string) error {
	_, err := svc.repo.TakeSeat(ctx, id)
	return err
}

func (svc *Service) ReleaseSeat(ctx context.Context, id string) error {
	_, err := svc.repo.ReleaseSeat(ctx, id)
	return err
}
