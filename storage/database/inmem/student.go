package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/student"
)

type studentRepository struct {
	db *studentTable
}

func NewStudentRepository(db *DB) student.Repository {
	return &studentRepository{db: db.student}
}

func (repo *studentRepository) CreateSession(ctx context.Context, sess student.Session) (student.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *studentRepository) GetSession(ctx context.Context, id string) (student.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.sessions[id]; ok {
		return *sess, nil
	}
	return student.Session{}, student.ErrSessionNotFound
}

func (repo *studentRepository) FilterSessions(ctx context.Context, parentUserID string) ([]student.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sessions []student.Session
	for _, sess := range repo.db.sessions {
		if sess.ParentUserID == parentUserID {
			sessions = append(sessions, *sess)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.After(sessions[j].CreatedAt) })
	return sessions, nil
}

func (repo *studentRepository) UpdateSession(ctx context.Context, sess student.Session) (student.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.sessions[sess.ID]; !ok {
		return student.Session{}, student.ErrSessionNotFound
	}
	repo.db.sessions[sess.ID] = &sess
	return sess, nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.students[stu.ID] = &stu
	return stu, nil
}

func (repo *studentRepository) GetStudent(ctx context.Context, filter student.GetFilter) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if stu, ok := repo.db.students[filter.ID]; ok {
		return *stu, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) FilterStudents(ctx context.Context, filter student.QueryFilter, ordering ...core.DBOrdering) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var students []student.Student
	for _, stu := range repo.db.students {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(stu.FirstName), search) &&
				!strings.Contains(strings.ToLower(stu.LastName), search) {
				continue
			}
		}
		if filter.GradeLevel != "" && stu.GradeLevel != filter.GradeLevel {
			continue
		}
		if filter.DistrictID != "" && stu.DistrictID != filter.DistrictID {
			continue
		}
		if filter.ParentUserID != "" && stu.ParentUserID != filter.ParentUserID {
			continue
		}
		if filter.LicenseType != "" && string(stu.License.Type) != filter.LicenseType {
			continue
		}
		if filter.LicenseStatus != "" && string(stu.License.Status) != filter.LicenseStatus {
			continue
		}
		if !filter.TrialExpiredBefore.IsZero() {
			if stu.License.Type != license.TypeTrial || stu.License.Status != license.StatusActive ||
				!stu.License.ExpiresAt.Before(filter.TrialExpiredBefore) {
				continue
			}
		}
		students = append(students, *stu)
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	})
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, stu student.Student) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.students[stu.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	stu.CreatedAt = orig.CreatedAt
	repo.db.students[stu.ID] = &stu
	return stu, nil
}

func (repo *studentRepository) DeleteStudentsByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.students, id)
	}
	return nil
}
