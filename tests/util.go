package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
)

// NopLogger drops everything; it keeps test output focused on failures.
type NopLogger struct{}

var _ core.Logger = (*NopLogger)(nil)

func (NopLogger) Enable(bool)                  {}
func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// NewConfig returns a self-contained configuration for tests.
func NewConfig() *core.Config {
	return &core.Config{
		Env:                       "test",
		TestMode:                  true,
		AppName:                   "Shule",
		SecretKey:                 "poipoi",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		FrontendBaseURL:           "https://shule.test",
		DefaultFromName:           "Shule",
		DefaultFromAddr:           "noreply@shule.test",
		Server: core.ServerConfig{
			Host:                      "localhost",
			Port:                      "8000",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateDistrict(
	t *testing.T,
	repo district.Repository,
	name, state string,
	zips []string,
	seatsTotal int,
) district.District {
	t.Helper()

	now := time.Now().UTC()
	d, err := repo.CreateDistrict(context.Background(), district.District{
		ID:         uuid.New().String(),
		Name:       name,
		State:      state,
		ZIPCodes:   zips,
		Curriculum: district.CurriculumCommonCore,
		SeatsTotal: seatsTotal,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateDistrict() failed: %v", err)
	}
	return d
}

func CreateStudent(
	t *testing.T,
	repo student.Repository,
	firstName, lastName, grade, districtID, parentUserID string,
	lic license.License,
) student.Student {
	t.Helper()

	now := time.Now().UTC()
	status := student.StatusEnrolled
	if lic.Status == license.StatusPending {
		status = student.StatusPending
	}
	stu, err := repo.CreateStudent(context.Background(), student.Student{
		ID:           uuid.New().String(),
		FirstName:    firstName,
		LastName:     lastName,
		DateOfBirth:  now.AddDate(-10, 0, 0),
		GradeLevel:   grade,
		DistrictID:   districtID,
		ParentUserID: parentUserID,
		Consent: student.ConsentRecord{
			ParentalConsent:  true,
			FERPAAgreement:   true,
			DistrictApproval: true,
			ConsentedAt:      now,
		},
		License:   lic,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return stu
}
