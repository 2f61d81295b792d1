package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
)

const districtCols = `id, name, state, zip_codes, curriculum, standards, seats_total, seats_used, manual_entry, created_at, updated_at`

type districtRepository struct {
	db *sqlx.DB
}

var _ district.Repository = (*districtRepository)(nil) // interface compliance check

func NewDistrictRepository(db *sql.DB) *districtRepository {
	return &districtRepository{db: wrapDB(db)}
}

type districtRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	State       string         `db:"state"`
	ZIPCodes    pq.StringArray `db:"zip_codes"`
	Curriculum  string         `db:"curriculum"`
	Standards   pq.StringArray `db:"standards"`
	SeatsTotal  int            `db:"seats_total"`
	SeatsUsed   int            `db:"seats_used"`
	ManualEntry bool           `db:"manual_entry"`
	CreatedAt   null.Time      `db:"created_at"`
	UpdatedAt   null.Time      `db:"updated_at"`
}

func (repo districtRepository) pack(d district.District) districtRow {
	return districtRow{
		ID:          d.ID,
		Name:        d.Name,
		State:       d.State,
		ZIPCodes:    d.ZIPCodes,
		Curriculum:  d.Curriculum,
		Standards:   d.Standards,
		SeatsTotal:  d.SeatsTotal,
		SeatsUsed:   d.SeatsUsed,
		ManualEntry: d.ManualEntry,
		CreatedAt:   null.NewTime(d.CreatedAt.UTC(), !d.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(d.UpdatedAt.UTC(), !d.UpdatedAt.IsZero()),
	}
}

func (repo districtRepository) unpack(row districtRow) district.District {
	return district.District{
		ID:          row.ID,
		Name:        row.Name,
		State:       row.State,
		ZIPCodes:    row.ZIPCodes,
		Curriculum:  row.Curriculum,
		Standards:   row.Standards,
		SeatsTotal:  row.SeatsTotal,
		SeatsUsed:   row.SeatsUsed,
		ManualEntry: row.ManualEntry,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
}

func (repo districtRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return district.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo districtRepository) CreateDistrict(ctx context.Context, d district.District) (district.District, error) {
	q := `
INSERT INTO district (` + districtCols + `)
VALUES (:id, :name, :state, :zip_codes, :curriculum, :standards, :seats_total, :seats_used, :manual_entry, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.pack(d)); err != nil {
		return district.District{}, errors.Wrap(err, "creating district")
	}
	return d, nil
}

func (repo districtRepository) GetDistrict(ctx context.Context, filter district.GetFilter) (district.District, error) {
	var cond string
	var args []interface{}
	switch {
	case filter.ID != "":
		cond, args = "id = $1", []interface{}{filter.ID}
	case filter.ZIP != "":
		cond, args = "$1 = ANY(zip_codes)", []interface{}{filter.ZIP}
	case filter.Name != "" && filter.State != "":
		cond, args = "lower(name) = $1 AND state = $2", []interface{}{filter.Name, filter.State}
	default:
		return district.District{}, district.ErrNotFound
	}

	var row districtRow
	q := `SELECT ` + districtCols + ` FROM district WHERE ` + cond
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return district.District{}, repo.trapNoRowsErr(err, "getting district")
	}
	return repo.unpack(row), nil
}

func (repo districtRepository) FilterDistricts(ctx context.Context, filter district.QueryFilter, ordering ...core.DBOrdering) ([]district.District, error) {
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE %s", placeholder(len(args))))
	}
	if filter.State != "" {
		args = append(args, filter.State)
		conds = append(conds, "state = "+placeholder(len(args)))
	}
	if filter.ZIP != "" {
		args = append(args, filter.ZIP)
		conds = append(conds, placeholder(len(args))+" = ANY(zip_codes)")
	}

	var rows []districtRow
	q := `SELECT ` + districtCols + ` FROM district` + buildWhere(conds) + buildOrderBy(ordering, "name ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering districts")
	}
	districts := make([]district.District, 0, len(rows))
	for _, row := range rows {
		districts = append(districts, repo.unpack(row))
	}
	return districts, nil
}

func (repo districtRepository) UpdateDistrict(ctx context.Context, d district.District) (district.District, error) {
	q := `
UPDATE district SET
	name        = :name,
	state       = :state,
	zip_codes   = :zip_codes,
	curriculum  = :curriculum,
	standards   = :standards,
	seats_total = :seats_total,
	updated_at  = now()
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.pack(d))
	if err != nil {
		return district.District{}, errors.Wrap(err, "updating district")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return district.District{}, district.ErrNotFound
	}
	return repo.GetDistrict(ctx, district.GetFilter{ID: d.ID})
}

// TakeSeat is a conditional increment: it only succeeds while seats remain.
func (repo districtRepository) TakeSeat(ctx context.Context, id string) (district.District, error) {
	var row districtRow
	q := `
UPDATE district SET seats_used = seats_used + 1, updated_at = now()
WHERE id = $1 AND seats_used < seats_total
RETURNING ` + districtCols
	err := repo.db.GetContext(ctx, &row, q, id)
	if err == sql.ErrNoRows {
		// either unknown district or an exhausted pool
		if _, gerr := repo.GetDistrict(ctx, district.GetFilter{ID: id}); gerr != nil {
			return district.District{}, gerr
		}
		return district.District{}, district.ErrNoSeats
	}
	if err != nil {
		return district.District{}, errors.Wrap(err, "taking district seat")
	}
	return repo.unpack(row), nil
}

func (repo districtRepository) ReleaseSeat(ctx context.Context, id string) (district.District, error) {
	var row districtRow
	q := `
UPDATE district SET seats_used = GREATEST(seats_used - 1, 0), updated_at = now()
WHERE id = $1
RETURNING ` + districtCols
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return district.District{}, repo.trapNoRowsErr(err, "releasing district seat")
	}
	return repo.unpack(row), nil
}
