package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/student"
)

const (
	studentCols = `id, first_name, last_name, date_of_birth, grade_level, district_id, parent_user_id,
	profile, consent, license_type, license_status, license_activated_at, license_expires_at,
	status, created_at, updated_at`

	sessionCols = `id, parent_user_id, step, draft, student_id, created_at, updated_at, completed_at`
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil) // interface compliance check

func NewStudentRepository(db *sql.DB) *studentRepository {
	return &studentRepository{db: wrapDB(db)}
}

type studentRow struct {
	ID                 string          `db:"id"`
	FirstName          string          `db:"first_name"`
	LastName           string          `db:"last_name"`
	DateOfBirth        null.Time       `db:"date_of_birth"`
	GradeLevel         string          `db:"grade_level"`
	DistrictID         null.String     `db:"district_id"`
	ParentUserID       null.String     `db:"parent_user_id"`
	Profile            json.RawMessage `db:"profile"`
	Consent            json.RawMessage `db:"consent"`
	LicenseType        string          `db:"license_type"`
	LicenseStatus      string          `db:"license_status"`
	LicenseActivatedAt null.Time       `db:"license_activated_at"`
	LicenseExpiresAt   null.Time       `db:"license_expires_at"`
	Status             string          `db:"status"`
	CreatedAt          null.Time       `db:"created_at"`
	UpdatedAt          null.Time       `db:"updated_at"`
}

func (repo studentRepository) pack(stu student.Student) (studentRow, error) {
	profile, err := json.Marshal(stu.Profile)
	if err != nil {
		return studentRow{}, errors.Wrap(err, "marshaling learning profile")
	}
	consent, err := json.Marshal(stu.Consent)
	if err != nil {
		return studentRow{}, errors.Wrap(err, "marshaling consent record")
	}
	return studentRow{
		ID:                 stu.ID,
		FirstName:          stu.FirstName,
		LastName:           stu.LastName,
		DateOfBirth:        null.NewTime(stu.DateOfBirth.UTC(), !stu.DateOfBirth.IsZero()),
		GradeLevel:         stu.GradeLevel,
		DistrictID:         null.NewString(stu.DistrictID, stu.DistrictID != ""),
		ParentUserID:       null.NewString(stu.ParentUserID, stu.ParentUserID != ""),
		Profile:            profile,
		Consent:            consent,
		LicenseType:        string(stu.License.Type),
		LicenseStatus:      string(stu.License.Status),
		LicenseActivatedAt: null.NewTime(stu.License.ActivatedAt.UTC(), !stu.License.ActivatedAt.IsZero()),
		LicenseExpiresAt:   null.NewTime(stu.License.ExpiresAt.UTC(), !stu.License.ExpiresAt.IsZero()),
		Status:             string(stu.Status),
		CreatedAt:          null.NewTime(stu.CreatedAt.UTC(), !stu.CreatedAt.IsZero()),
		UpdatedAt:          null.NewTime(stu.UpdatedAt.UTC(), !stu.UpdatedAt.IsZero()),
	}, nil
}

func (repo studentRepository) unpack(row studentRow) (student.Student, error) {
	stu := student.Student{
		ID:           row.ID,
		FirstName:    row.FirstName,
		LastName:     row.LastName,
		DateOfBirth:  row.DateOfBirth.Time,
		GradeLevel:   row.GradeLevel,
		DistrictID:   row.DistrictID.String,
		ParentUserID: row.ParentUserID.String,
		License: license.License{
			Type:        license.Type(row.LicenseType),
			Status:      license.Status(row.LicenseStatus),
			ActivatedAt: row.LicenseActivatedAt.Time,
			ExpiresAt:   row.LicenseExpiresAt.Time,
		},
		Status:    student.Status(row.Status),
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
	if len(row.Profile) > 0 {
		if err := json.Unmarshal(row.Profile, &stu.Profile); err != nil {
			return student.Student{}, errors.Wrap(err, "unmarshaling learning profile")
		}
	}
	if len(row.Consent) > 0 {
		if err := json.Unmarshal(row.Consent, &stu.Consent); err != nil {
			return student.Student{}, errors.Wrap(err, "unmarshaling consent record")
		}
	}
	return stu, nil
}

func (repo studentRepository) unpackSlice(rows []studentRow) ([]student.Student, error) {
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		stu, err := repo.unpack(row)
		if err != nil {
			return nil, err
		}
		students = append(students, stu)
	}
	return students, nil
}

func (repo studentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return student.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo studentRepository) CreateStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	row, err := repo.pack(stu)
	if err != nil {
		return student.Student{}, err
	}
	q := `
INSERT INTO student (` + studentCols + `)
VALUES (:id, :first_name, :last_name, :date_of_birth, :grade_level, :district_id, :parent_user_id,
	:profile, :consent, :license_type, :license_status, :license_activated_at, :license_expires_at,
	:status, :created_at, :updated_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return student.Student{}, errors.Wrap(err, "creating student")
	}
	return stu, nil
}

func (repo studentRepository) GetStudent(ctx context.Context, filter student.GetFilter) (student.Student, error) {
	if filter.ID == "" {
		return student.Student{}, student.ErrNotFound
	}
	var row studentRow
	q := `SELECT ` + studentCols + ` FROM student WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, filter.ID); err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, "getting student")
	}
	return repo.unpack(row)
}

func (repo studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter, ordering ...core.DBOrdering) ([]student.Student, error) {
	var conds []string
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		p := placeholder(len(args))
		conds = append(conds, fmt.Sprintf("(first_name ILIKE %s OR last_name ILIKE %s)", p, p))
	}
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		conds = append(conds, "grade_level = "+placeholder(len(args)))
	}
	if filter.DistrictID != "" {
		args = append(args, filter.DistrictID)
		conds = append(conds, "district_id = "+placeholder(len(args)))
	}
	if filter.ParentUserID != "" {
		args = append(args, filter.ParentUserID)
		conds = append(conds, "parent_user_id = "+placeholder(len(args)))
	}
	if filter.LicenseType != "" {
		args = append(args, filter.LicenseType)
		conds = append(conds, "license_type = "+placeholder(len(args)))
	}
	if filter.LicenseStatus != "" {
		args = append(args, filter.LicenseStatus)
		conds = append(conds, "license_status = "+placeholder(len(args)))
	}
	if !filter.TrialExpiredBefore.IsZero() {
		args = append(args, string(license.TypeTrial), string(license.StatusActive), filter.TrialExpiredBefore.UTC())
		conds = append(conds, fmt.Sprintf(
			"license_type = %s AND license_status = %s AND license_expires_at < %s",
			placeholder(len(args)-2), placeholder(len(args)-1), placeholder(len(args)),
		))
	}

	var rows []studentRow
	q := `SELECT ` + studentCols + ` FROM student` + buildWhere(conds) + buildOrderBy(ordering, "last_name ASC, first_name ASC")
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "filtering students")
	}
	return repo.unpackSlice(rows)
}

func (repo studentRepository) UpdateStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	row, err := repo.pack(stu)
	if err != nil {
		return student.Student{}, err
	}
	q := `
UPDATE student SET
	first_name           = :first_name,
	last_name            = :last_name,
	grade_level          = :grade_level,
	district_id          = :district_id,
	profile              = :profile,
	consent              = :consent,
	license_type         = :license_type,
	license_status       = :license_status,
	license_activated_at = :license_activated_at,
	license_expires_at   = :license_expires_at,
	status               = :status,
	updated_at           = now()
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return repo.GetStudent(ctx, student.GetFilter{ID: stu.ID})
}

func (repo studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q := `DELETE FROM student WHERE id = ANY($1)`
	if _, err := repo.db.ExecContext(ctx, q, pq.StringArray(ids)); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return nil
}

type sessionRow struct {
	ID           string          `db:"id"`
	ParentUserID null.String     `db:"parent_user_id"`
	Step         string          `db:"step"`
	Draft        json.RawMessage `db:"draft"`
	StudentID    null.String     `db:"student_id"`
	CreatedAt    null.Time       `db:"created_at"`
	UpdatedAt    null.Time       `db:"updated_at"`
	CompletedAt  null.Time       `db:"completed_at"`
}

func (repo studentRepository) packSession(sess student.Session) (sessionRow, error) {
	draft, err := json.Marshal(sess.Draft)
	if err != nil {
		return sessionRow{}, errors.Wrap(err, "marshaling wizard draft")
	}
	return sessionRow{
		ID:           sess.ID,
		ParentUserID: null.NewString(sess.ParentUserID, sess.ParentUserID != ""),
		Step:         string(sess.Step),
		Draft:        draft,
		StudentID:    null.NewString(sess.StudentID, sess.StudentID != ""),
		CreatedAt:    null.NewTime(sess.CreatedAt.UTC(), !sess.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(sess.UpdatedAt.UTC(), !sess.UpdatedAt.IsZero()),
		CompletedAt:  null.NewTime(sess.CompletedAt.UTC(), !sess.CompletedAt.IsZero()),
	}, nil
}

func (repo studentRepository) unpackSession(row sessionRow) (student.Session, error) {
	sess := student.Session{
		ID:           row.ID,
		ParentUserID: row.ParentUserID.String,
		Step:         student.Step(row.Step),
		StudentID:    row.StudentID.String,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
		CompletedAt:  row.CompletedAt.Time,
	}
	if len(row.Draft) > 0 {
		if err := json.Unmarshal(row.Draft, &sess.Draft); err != nil {
			return student.Session{}, errors.Wrap(err, "unmarshaling wizard draft")
		}
	}
	return sess, nil
}

func (repo studentRepository) CreateSession(ctx context.Context, sess student.Session) (student.Session, error) {
	row, err := repo.packSession(sess)
	if err != nil {
		return student.Session{}, err
	}
	q := `
INSERT INTO onboarding_session (` + sessionCols + `)
VALUES (:id, :parent_user_id, :step, :draft, :student_id, :created_at, :updated_at, :completed_at)`
	if _, err = repo.db.NamedExecContext(ctx, q, row); err != nil {
		return student.Session{}, errors.Wrap(err, "creating onboarding session")
	}
	return sess, nil
}

func (repo studentRepository) GetSession(ctx context.Context, id string) (student.Session, error) {
	var row sessionRow
	q := `SELECT ` + sessionCols + ` FROM onboarding_session WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Session{}, student.ErrSessionNotFound
		}
		return student.Session{}, errors.Wrap(err, "getting onboarding session")
	}
	return repo.unpackSession(row)
}

func (repo studentRepository) FilterSessions(ctx context.Context, parentUserID string) ([]student.Session, error) {
	var rows []sessionRow
	q := `SELECT ` + sessionCols + ` FROM onboarding_session WHERE parent_user_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, parentUserID); err != nil {
		return nil, errors.Wrap(err, "filtering onboarding sessions")
	}
	sessions := make([]student.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := repo.unpackSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (repo studentRepository) UpdateSession(ctx context.Context, sess student.Session) (student.Session, error) {
	row, err := repo.packSession(sess)
	if err != nil {
		return student.Session{}, err
	}
	q := `
UPDATE onboarding_session SET
	step         = :step,
	draft        = :draft,
	student_id   = :student_id,
	updated_at   = now(),
	completed_at = :completed_at
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return student.Session{}, errors.Wrap(err, "updating onboarding session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.Session{}, student.ErrSessionNotFound
	}
	return repo.GetSession(ctx, sess.ID)
}
