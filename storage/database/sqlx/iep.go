package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/shulehq/shule/core/iep"
)

const iepCols = `id, student_id, status, effective_at, review_at, goals, services, placement, team, meetings, created_at, updated_at`

type iepRepository struct {
	db *sqlx.DB
}

var _ iep.Repository = (*iepRepository)(nil) // interface compliance check

func NewIEPRepository(db *sql.DB) *iepRepository {
	return &iepRepository{db: wrapDB(db)}
}

type iepRow struct {
	ID          string          `db:"id"`
	StudentID   string          `db:"student_id"`
	Status      string          `db:"status"`
	EffectiveAt null.Time       `db:"effective_at"`
	ReviewAt    null.Time       `db:"review_at"`
	Goals       json.RawMessage `db:"goals"`
	Services    json.RawMessage `db:"services"`
	Placement   json.RawMessage `db:"placement"`
	Team        json.RawMessage `db:"team"`
	Meetings    json.RawMessage `db:"meetings"`
	CreatedAt   null.Time       `db:"created_at"`
	UpdatedAt   null.Time       `db:"updated_at"`
}

func (repo iepRepository) pack(doc iep.IEP) (iepRow, error) {
	row := iepRow{
		ID:          doc.ID,
		StudentID:   doc.StudentID,
		Status:      string(doc.Status),
		EffectiveAt: null.NewTime(doc.EffectiveAt.UTC(), !doc.EffectiveAt.IsZero()),
		ReviewAt:    null.NewTime(doc.ReviewAt.UTC(), !doc.ReviewAt.IsZero()),
		CreatedAt:   null.NewTime(doc.CreatedAt.UTC(), !doc.CreatedAt.IsZero()),
		UpdatedAt:   null.NewTime(doc.UpdatedAt.UTC(), !doc.UpdatedAt.IsZero()),
	}
	for _, field := range []struct {
		dst *json.RawMessage
		src interface{}
		msg string
	}{
		{&row.Goals, doc.Goals, "marshaling goals"},
		{&row.Services, doc.Services, "marshaling services"},
		{&row.Placement, doc.Placement, "marshaling placement"},
		{&row.Team, doc.Team, "marshaling team"},
		{&row.Meetings, doc.Meetings, "marshaling meetings"},
	} {
		b, err := json.Marshal(field.src)
		if err != nil {
			return iepRow{}, errors.Wrap(err, field.msg)
		}
		*field.dst = b
	}
	return row, nil
}

func (repo iepRepository) unpack(row iepRow) (iep.IEP, error) {
	doc := iep.IEP{
		ID:          row.ID,
		StudentID:   row.StudentID,
		Status:      iep.Status(row.Status),
		EffectiveAt: row.EffectiveAt.Time,
		ReviewAt:    row.ReviewAt.Time,
		CreatedAt:   row.CreatedAt.Time,
		UpdatedAt:   row.UpdatedAt.Time,
	}
	for _, field := range []struct {
		src json.RawMessage
		dst interface{}
		msg string
	}{
		{row.Goals, &doc.Goals, "unmarshaling goals"},
		{row.Services, &doc.Services, "unmarshaling services"},
		{row.Placement, &doc.Placement, "unmarshaling placement"},
		{row.Team, &doc.Team, "unmarshaling team"},
		{row.Meetings, &doc.Meetings, "unmarshaling meetings"},
	} {
		if len(field.src) == 0 {
			continue
		}
		if err := json.Unmarshal(field.src, field.dst); err != nil {
			return iep.IEP{}, errors.Wrap(err, field.msg)
		}
	}
	return doc, nil
}

func (repo iepRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return iep.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo iepRepository) CreateIEP(ctx context.Context, doc iep.IEP) (iep.IEP, error) {
	row, err := repo.pack(doc)
	if err != nil {
		return iep.IEP{}, err
	}
	q := `
INSERT INTO iep (` + iepCols + `)
VALUES (:id, :student_id, :status, :effective_at, :review_at, :goals, :services, :placement, :team, :meetings, :created_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return iep.IEP{}, errors.Wrap(err, "creating iep")
	}
	return doc, nil
}

func (repo iepRepository) GetIEP(ctx context.Context, id string) (iep.IEP, error) {
	var row iepRow
	q := `SELECT ` + iepCols + ` FROM iep WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return iep.IEP{}, repo.trapNoRowsErr(err, "getting iep")
	}
	return repo.unpack(row)
}

func (repo iepRepository) FilterIEPs(ctx context.Context, studentID string) ([]iep.IEP, error) {
	var rows []iepRow
	q := `SELECT ` + iepCols + ` FROM iep WHERE student_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "filtering ieps")
	}
	docs := make([]iep.IEP, 0, len(rows))
	for _, row := range rows {
		doc, err := repo.unpack(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (repo iepRepository) UpdateIEP(ctx context.Context, doc iep.IEP) (iep.IEP, error) {
	row, err := repo.pack(doc)
	if err != nil {
		return iep.IEP{}, err
	}
	q := `
UPDATE iep SET
	status       = :status,
	effective_at = :effective_at,
	review_at    = :review_at,
	goals        = :goals,
	services     = :services,
	placement    = :placement,
	team         = :team,
	meetings     = :meetings,
	updated_at   = now()
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return iep.IEP{}, errors.Wrap(err, "updating iep")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return iep.IEP{}, iep.ErrNotFound
	}
	return repo.GetIEP(ctx, doc.ID)
}

func (repo iepRepository) DeleteIEPsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q := `DELETE FROM iep WHERE id = ANY($1)`
	if _, err := repo.db.ExecContext(ctx, q, pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "deleting ieps")
	}
	return nil
}
