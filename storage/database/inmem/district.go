package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
)

type districtRepository struct {
	db *districtTable
}

func NewDistrictRepository(db *DB) district.Repository {
	return &districtRepository{db: db.district}
}

func (repo *districtRepository) query() []district.District {
	districts := make([]district.District, 0, len(repo.db.table))
	for _, d := range repo.db.table {
		districts = append(districts, *d)
	}
	return districts
}

func (repo *districtRepository) CreateDistrict(ctx context.Context, d district.District) (district.District, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.table[d.ID] = &d
	return d, nil
}

func (repo *districtRepository) GetDistrict(ctx context.Context, filter district.GetFilter) (district.District, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != "":
		if d, ok := repo.db.table[filter.ID]; ok {
			return *d, nil
		}
	case filter.ZIP != "":
		for _, d := range repo.query() {
			for _, zip := range d.ZIPCodes {
				if zip == filter.ZIP {
					return d, nil
				}
			}
		}
	case filter.Name != "" && filter.State != "":
		for _, d := range repo.query() {
			if strings.ToLower(d.Name) == filter.Name && d.State == filter.State {
				return d, nil
			}
		}
	}
	return district.District{}, district.ErrNotFound
}

func (repo *districtRepository) FilterDistricts(ctx context.Context, filter district.QueryFilter, ordering ...core.DBOrdering) ([]district.District, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var districts []district.District
	for _, d := range repo.query() {
		if filter.Search != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.State != "" && d.State != filter.State {
			continue
		}
		if filter.ZIP != "" && !containsZIP(d.ZIPCodes, filter.ZIP) {
			continue
		}
		districts = append(districts, d)
	}
	sort.Slice(districts, func(i, j int) bool { return districts[i].Name < districts[j].Name })
	return districts, nil
}

func (repo *districtRepository) UpdateDistrict(ctx context.Context, d district.District) (district.District, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.table[d.ID]
	if !ok {
		return district.District{}, district.ErrNotFound
	}
	d.SeatsUsed = orig.SeatsUsed
	d.CreatedAt = orig.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	repo.db.table[d.ID] = &d
	return d, nil
}

func (repo *districtRepository) TakeSeat(ctx context.Context, id string) (district.District, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.table[id]
	if !ok {
		return district.District{}, district.ErrNotFound
	}
	if d.SeatsUsed >= d.SeatsTotal {
		return district.District{}, district.ErrNoSeats
	}
	d.SeatsUsed++
	d.UpdatedAt = time.Now().UTC()
	return *d, nil
}

func (repo *districtRepository) ReleaseSeat(ctx context.Context, id string) (district.District, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	d, ok := repo.db.table[id]
	if !ok {
		return district.District{}, district.ErrNotFound
	}
	if d.SeatsUsed > 0 {
		d.SeatsUsed--
	}
	d.UpdatedAt = time.Now().UTC()
	return *d, nil
}

func containsZIP(zips []string, zip string) bool {
	for _, z := range zips {
		if z == zip {
			return true
		}
	}
	return false
}
