package student_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
	emailsvc "github.com/shulehq/shule/services/email"
	inmemdb "github.com/shulehq/shule/storage/database/inmem"
	testutil "github.com/shulehq/shule/tests"
)

type env struct {
	svc          *student.Service
	repo         student.Repository
	districtRepo district.Repository
	districtSvc  *district.Service
	userRepo     user.Repository
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conf := testutil.NewConfig()
	db := inmemdb.NewDB()
	repo := inmemdb.NewStudentRepository(db)
	districtRepo := inmemdb.NewDistrictRepository(db)
	userRepo := inmemdb.NewUserRepository(db)

	log := testutil.NopLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	districtSvc := district.NewService(districtRepo, nil, log)
	usrSvc := user.NewService(conf, userRepo, mailSvc, log)
	svc := student.NewService(conf, repo, districtSvc, license.NewAllocator(districtSvc), usrSvc, mailSvc, log)

	emailsvc.ClearSentMessages()
	return &env{svc: svc, repo: repo, districtRepo: districtRepo, districtSvc: districtSvc, userRepo: userRepo}
}

func (e *env) runWizard(t *testing.T, parentID string, loc student.Location, licType license.Type, optIn bool) student.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := e.svc.StartOnboarding(ctx, parentID)
	if err != nil {
		t.Fatalf("StartOnboarding() failed: %v", err)
	}
	payloads := []student.StepPayload{
		{Step: student.StepBasicInfo, BasicInfo: &student.BasicInfo{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			DateOfBirth: time.Date(2015, 3, 10, 0, 0, 0, 0, time.UTC),
			GradeLevel:  "5",
		}},
		{Step: student.StepLocation, Location: &loc},
		{Step: student.StepLearningProfile, Profile: &student.LearningProfile{Interests: []string{"math"}}},
		{Step: student.StepConsent, Consent: &student.ConsentStep{
			ParentalConsent:  true,
			FERPAAgreement:   true,
			DistrictApproval: true,
			DataSharingOptIn: optIn,
			Version:          "v1",
		}},
		{Step: student.StepLicense, License: &student.LicenseStep{Type: licType}},
	}
	for _, p := range payloads {
		if sess, err = e.svc.Advance(ctx, sess.ID, p); err != nil {
			t.Fatalf("Advance(%s) failed: %v", p.Step, err)
		}
	}
	return sess
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("district seat enrollment", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)
		d := testutil.CreateDistrict(t, e.districtRepo, "Austin ISD", "tx", []string{"78701"}, 5)

		sess := e.runWizard(t, parent.ID, student.Location{ZIP: "78701"}, license.TypeDistrict, true)
		stu, err := e.svc.Complete(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Complete() failed: %v", err)
		}

		if stu.Status != student.StatusEnrolled {
			t.Errorf("Status = %s; want %s", stu.Status, student.StatusEnrolled)
		}
		if stu.License.Type != license.TypeDistrict || stu.License.Status != license.StatusActive {
			t.Errorf("License = %s/%s; want district/active", stu.License.Type, stu.License.Status)
		}
		if stu.DistrictID != d.ID {
			t.Errorf("DistrictID = %s; want %s (resolved from ZIP)", stu.DistrictID, d.ID)
		}

		got, err := e.districtSvc.GetByID(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if got.SeatsUsed != 1 {
			t.Errorf("SeatsUsed = %d; want 1", got.SeatsUsed)
		}

		sess, err = e.svc.GetSession(ctx, sess.ID)
		if err != nil {
			t.Fatalf("GetSession() failed: %v", err)
		}
		if !sess.Completed() || sess.StudentID != stu.ID {
			t.Error("session not closed with the new student")
		}

		// full enrollment email goes out under the data sharing opt-in
		if n := len(emailsvc.SentMessages); n != 1 {
			t.Fatalf("sent messages = %d; want 1", n)
		}
		if body := emailsvc.SentMessages[0].BodyStr; !strings.Contains(body, "Ada Lovelace") {
			t.Errorf("expected the student name in the notification, got %q", body)
		}
	})

	t.Run("without opt-in the notification is minimal", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)
		testutil.CreateDistrict(t, e.districtRepo, "Austin ISD", "tx", []string{"78701"}, 5)

		sess := e.runWizard(t, parent.ID, student.Location{ZIP: "78701"}, license.TypeDistrict, false)
		if _, err := e.svc.Complete(ctx, sess.ID); err != nil {
			t.Fatalf("Complete() failed: %v", err)
		}
		if n := len(emailsvc.SentMessages); n != 1 {
			t.Fatalf("sent messages = %d; want 1", n)
		}
		if body := emailsvc.SentMessages[0].BodyStr; strings.Contains(body, "Ada") {
			t.Errorf("notification must not name the student without the opt-in, got %q", body)
		}
	})

	t.Run("exhausted seat pool falls back to a trial", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)
		testutil.CreateDistrict(t, e.districtRepo, "Tiny ISD", "tx", []string{"75001"}, 0)

		sess := e.runWizard(t, parent.ID, student.Location{ZIP: "75001"}, license.TypeDistrict, false)
		stu, err := e.svc.Complete(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Complete() failed: %v", err)
		}
		if stu.License.Type != license.TypeTrial || stu.License.Status != license.StatusActive {
			t.Errorf("License = %s/%s; want trial/active", stu.License.Type, stu.License.Status)
		}
		if stu.License.ExpiresAt.IsZero() {
			t.Error("trial license must carry an expiry")
		}
	})

	t.Run("manual district entry", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)

		loc := student.Location{Manual: &district.ManualDistrict{
			Name: "Smallville USD", State: "ks", Curriculum: district.CurriculumCommonCore,
		}}
		sess := e.runWizard(t, parent.ID, loc, license.TypeParent, false)
		stu, err := e.svc.Complete(ctx, sess.ID)
		if err != nil {
			t.Fatalf("Complete() failed: %v", err)
		}

		d, err := e.districtSvc.GetByID(ctx, stu.DistrictID)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if !d.ManualEntry {
			t.Error("ManualEntry = false; want true")
		}
		if stu.License.Status != license.StatusPending || stu.Status != student.StatusPending {
			t.Errorf("got license %s, student %s; want both pending", stu.License.Status, stu.Status)
		}
	})

	t.Run("unknown zip is rejected on the location step", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)

		sess, err := e.svc.StartOnboarding(ctx, parent.ID)
		if err != nil {
			t.Fatalf("StartOnboarding() failed: %v", err)
		}
		sess, err = e.svc.Advance(ctx, sess.ID, student.StepPayload{Step: student.StepBasicInfo, BasicInfo: &student.BasicInfo{
			FirstName: "Ada", LastName: "Lovelace", DateOfBirth: time.Date(2015, 3, 10, 0, 0, 0, 0, time.UTC), GradeLevel: "5",
		}})
		if err != nil {
			t.Fatalf("Advance() failed: %v", err)
		}
		if _, err = e.svc.Advance(ctx, sess.ID, student.StepPayload{Step: student.StepLocation, Location: &student.Location{ZIP: "99999"}}); err == nil {
			t.Error("expected an unknown ZIP to be rejected")
		}
	})

	t.Run("incomplete draft cannot be completed", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)

		sess, err := e.svc.StartOnboarding(ctx, parent.ID)
		if err != nil {
			t.Fatalf("StartOnboarding() failed: %v", err)
		}
		if _, err = e.svc.Complete(ctx, sess.ID); err == nil {
			t.Error("expected an incomplete session to be rejected")
		}
	})

	t.Run("cannot complete twice", func(t *testing.T) {
		e := newEnv(t)
		parent := testutil.CreateUser(t, e.userRepo, "Jane Doe", "jane", "jane@test.shule", "", user.ParentRoles, true)
		testutil.CreateDistrict(t, e.districtRepo, "Austin ISD", "tx", []string{"78701"}, 5)

		sess := e.runWizard(t, parent.ID, student.Location{ZIP: "78701"}, license.TypeDistrict, false)
		if _, err := e.svc.Complete(ctx, sess.ID); err != nil {
			t.Fatalf("Complete() failed: %v", err)
		}
		if _, err := e.svc.Complete(ctx, sess.ID); errors.Cause(err) != student.ErrSessionCompleted {
			t.Errorf("err = %v; want ErrSessionCompleted", err)
		}
	})
}

func TestService_ConfirmPurchase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	d := testutil.CreateDistrict(t, e.districtRepo, "Austin ISD", "tx", []string{"78701"}, 5)

	stu := testutil.CreateStudent(t, e.repo, "Ada", "Lovelace", "5", d.ID, "par1",
		license.License{Type: license.TypeParent, Status: license.StatusPending})

	got, err := e.svc.ConfirmPurchase(ctx, stu.ID)
	if err != nil {
		t.Fatalf("ConfirmPurchase() failed: %v", err)
	}
	if got.License.Status != license.StatusActive {
		t.Errorf("license status = %s; want %s", got.License.Status, license.StatusActive)
	}
	if got.Status != student.StatusEnrolled {
		t.Errorf("student status = %s; want %s", got.Status, student.StatusEnrolled)
	}
	if got.License.ActivatedAt.IsZero() {
		t.Error("ActivatedAt not stamped")
	}

	// confirming again is rejected
	if _, err = e.svc.ConfirmPurchase(ctx, stu.ID); err == nil {
		t.Error("expected a second confirmation to be rejected")
	}
}

func TestService_ExpireTrials(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	d := testutil.CreateDistrict(t, e.districtRepo, "Austin ISD", "tx", []string{"78701"}, 5)

	now := time.Now().UTC()
	overdue := testutil.CreateStudent(t, e.repo, "Ada", "Lovelace", "5", d.ID, "par1",
		license.License{Type: license.TypeTrial, Status: license.StatusActive, ActivatedAt: now.Add(-15 * 24 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour)})
	current := testutil.CreateStudent(t, e.repo, "Grace", "Hopper", "7", d.ID, "par1",
		license.License{Type: license.TypeTrial, Status: license.StatusActive, ActivatedAt: now, ExpiresAt: now.Add(license.TrialPeriod)})
	paid := testutil.CreateStudent(t, e.repo, "Alan", "Turing", "9", d.ID, "par1",
		license.License{Type: license.TypeDistrict, Status: license.StatusActive, ActivatedAt: now})

	n, err := e.svc.ExpireTrials(ctx)
	if err != nil {
		t.Fatalf("ExpireTrials() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d; want 1", n)
	}

	got, err := e.svc.GetByID(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.License.Status != license.StatusExpired || got.Status != student.StatusInactive {
		t.Errorf("got license %s, student %s; want expired/inactive", got.License.Status, got.Status)
	}

	for _, id := range []string{current.ID, paid.ID} {
		got, err := e.svc.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID() failed: %v", err)
		}
		if got.License.Status != license.StatusActive {
			t.Errorf("student %s license = %s; want active", id, got.License.Status)
		}
	}
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	d := testutil.CreateDistrict(t, e.districtRepo, "Austin ISD", "tx", []string{"78701"}, 5)

	if err := e.districtSvc.TakeSeat(ctx, d.ID); err != nil {
		t.Fatalf("TakeSeat() failed: %v", err)
	}
	stu := testutil.CreateStudent(t, e.repo, "Ada", "Lovelace", "5", d.ID, "par1",
		license.License{Type: license.TypeDistrict, Status: license.StatusActive, ActivatedAt: time.Now().UTC()})

	if err := e.svc.Delete(ctx, stu.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := e.svc.GetByID(ctx, stu.ID); errors.Cause(err) != student.ErrNotFound {
		t.Errorf("err = %v; want ErrNotFound", err)
	}

	got, err := e.districtSvc.GetByID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.SeatsUsed != 0 {
		t.Errorf("SeatsUsed = %d; want 0 (seat returned)", got.SeatsUsed)
	}

	// unknown ids are skipped, not an error
	if err := e.svc.Delete(ctx, "nope"); err != nil {
		t.Errorf("Delete() failed: %v", err)
	}
}
