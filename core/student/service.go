package student

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/license"
	"github.com/shulehq/shule/core/user"
)

var ErrNotFound = errors.New("student not found")

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		FilterSessions(ctx context.Context, parentUserID string) ([]Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)

		CreateStudent(ctx context.Context, s Student) (Student, error)
		GetStudent(ctx context.Context, filter GetFilter) (Student, error)
		FilterStudents(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids ...string) error
	}

	// parentGetter looks up the parent account for notification emails.
	parentGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		conf      *core.Config
		repo      Repository
		districts *district.Service
		alloc     *license.Allocator
		parents   parentGetter
		mail      core.EmailService
		log       core.Logger
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	districts *district.Service,
	alloc *license.Allocator,
	parents *user.Service,
	mailSvc core.EmailService,
	log core.Logger,
) *Service {
	return &Service{
		conf:      conf,
		repo:      repo,
		districts: districts,
		alloc:     alloc,
		parents:   parents,
		mail:      mailSvc,
		log:       log,
	}
}

// StartOnboarding opens a new wizard session for a parent.
func (svc *Service) StartOnboarding(ctx context.Context, parentUserID string) (Session, error) {
	now := time.Now().UTC()
	return svc.repo.CreateSession(ctx, Session{
		ID:           uuid.New().String(),
		ParentUserID: parentUserID,
		Step:         StepBasicInfo,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *Service) GetSession(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

func (svc *Service) QuerySessions(ctx context.Context, parentUserID string) ([]Session, error) {
	return svc.repo.FilterSessions(ctx, parentUserID)
}

// Advance submits one wizard step. On the location step a ZIP is resolved
// against the district table first; an unknown ZIP is rejected so the client
// falls back to manual entry.
func (svc *Service) Advance(ctx context.Context, sessionID string, payload StepPayload) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}

	if payload.Step == StepLocation && payload.Location != nil {
		if err := svc.resolveLocation(ctx, payload.Location); err != nil {
			return Session{}, err
		}
	}

	if err := sess.Advance(payload); err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSession(ctx, sess)
}

func (svc *Service) resolveLocation(ctx context.Context, loc *Location) error {
	if loc.DistrictID != "" || loc.Manual != nil {
		return nil
	}
	if loc.ZIP == "" {
		return nil // Location.Validate reports the missing source
	}
	d, err := svc.districts.ResolveZIP(ctx, loc.ZIP)
	if err != nil {
		if errors.Cause(err) == district.ErrNotFound {
			return core.NewValidationError(
				errors.Errorf("no district found for ZIP %s", loc.ZIP),
				core.FieldError{Field: "zip", Error: "no district serves this ZIP code; enter your district manually"},
			)
		}
		return err
	}
	loc.DistrictID = d.ID
	return nil
}

// Back moves the wizard one step back without discarding entered data.
func (svc *Service) Back(ctx context.Context, sessionID string) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if err := sess.Back(); err != nil {
		return Session{}, err
	}
	sess.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSession(ctx, sess)
}

// Complete finalizes the wizard: re-validates the assembled draft, pins down
// the district, allocates a license and enrolls the student.
func (svc *Service) Complete(ctx context.Context, sessionID string) (Student, error) {
	sess, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Student{}, err
	}
	if sess.Completed() {
		return Student{}, ErrSessionCompleted
	}
	if err := sess.readyToComplete(); err != nil {
		return Student{}, err
	}

	districtID := sess.Draft.Location.DistrictID
	if sess.Draft.Location.Manual != nil {
		d, err := svc.districts.RegisterManual(ctx, *sess.Draft.Location.Manual)
		if err != nil {
			return Student{}, errors.Wrap(err, "registering manual district")
		}
		districtID = d.ID
	}

	lic, err := svc.alloc.Allocate(ctx, districtID, sess.Draft.License.Type)
	if err != nil {
		return Student{}, errors.Wrap(err, "allocating license")
	}

	now := time.Now().UTC()
	status := StatusEnrolled
	if lic.Status == license.StatusPending {
		status = StatusPending
	}
	stu := Student{
		ID:           uuid.New().String(),
		FirstName:    sess.Draft.BasicInfo.FirstName,
		LastName:     sess.Draft.BasicInfo.LastName,
		DateOfBirth:  sess.Draft.BasicInfo.DateOfBirth,
		GradeLevel:   sess.Draft.BasicInfo.GradeLevel,
		DistrictID:   districtID,
		ParentUserID: sess.ParentUserID,
		Profile:      *sess.Draft.Profile,
		Consent:      *sess.Draft.Consent,
		License:      lic,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	stu, err = svc.repo.CreateStudent(ctx, stu)
	if err != nil {
		return Student{}, err
	}

	sess.StudentID = stu.ID
	sess.CompletedAt = now
	sess.UpdatedAt = now
	if _, err = svc.repo.UpdateSession(ctx, sess); err != nil {
		return Student{}, errors.Wrap(err, "closing onboarding session")
	}

	svc.notifyEnrollment(ctx, stu)
	return stu, nil
}

// notifyEnrollment emails the parent. The level of detail is consent-gated:
// without the data sharing opt-in only a minimal notice goes out.
func (svc *Service) notifyEnrollment(ctx context.Context, stu Student) {
	parent, err := svc.parents.GetByID(ctx, stu.ParentUserID)
	if err != nil || parent.Email == "" {
		if err != nil {
			svc.log.Warn(fmt.Sprintf("enrollment notification skipped: %v", err))
		}
		return
	}

	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: parent.Name, Address: parent.Email}},
		Subject: "Enrollment complete",
	}
	if stu.Consent.DataSharingOptIn {
		msg.TemplateName = "enrollment-complete"
		msg.TemplateData = struct {
			Parent, Student, Grade, LicenseType string
		}{parent.Name, stu.FullName(), stu.GradeLevel, string(stu.License.Type)}
		msg.BodyStr = fmt.Sprintf(
			"Hi %s,\n\n%s has been enrolled in grade %s with a %s license.",
			parent.Name, stu.FullName(), stu.GradeLevel, stu.License.Type,
		)
	} else {
		msg.BodyStr = fmt.Sprintf("Hi %s,\n\nYour student's enrollment is complete.", parent.Name)
	}
	svc.mail.SendMessages(msg)
}

// ConfirmPurchase activates a pending parent-purchase license.
func (svc *Service) ConfirmPurchase(ctx context.Context, studentID string) (Student, error) {
	stu, err := svc.repo.GetStudent(ctx, GetFilter{ID: studentID})
	if err != nil {
		return Student{}, err
	}
	lic, err := stu.License.WithPurchaseConfirmed(time.Now())
	if err != nil {
		return Student{}, errors.Wrap(err, "confirming purchase")
	}
	stu.License = lic
	stu.Status = StatusEnrolled
	stu.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, stu)
}

// ExpireTrials marks all overdue trial licenses expired and deactivates the
// students. Returns how many were expired. Meant to run periodically.
func (svc *Service) ExpireTrials(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	overdue, err := svc.repo.FilterStudents(ctx, QueryFilter{TrialExpiredBefore: now})
	if err != nil {
		return 0, err
	}

	var n int
	for _, stu := range overdue {
		lic, err := stu.License.WithTrialExpired(now)
		if err != nil {
			continue
		}
		stu.License = lic
		stu.Status = StatusInactive
		stu.UpdatedAt = now
		if _, err := svc.repo.UpdateStudent(ctx, stu); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]Student, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	return svc.repo.FilterStudents(ctx, *filter, ordering...)
}

func (svc *Service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	stu, err := svc.repo.GetStudent(ctx, GetFilter{ID: id})
	if err != nil {
		return Student{}, err
	}
	if us.FirstName != "" {
		stu.FirstName = us.FirstName
	}
	if us.LastName != "" {
		stu.LastName = us.LastName
	}
	if us.GradeLevel != "" {
		stu.GradeLevel = us.GradeLevel
	}
	if us.Profile != nil {
		stu.Profile = *us.Profile
	}
	if us.Status != "" {
		stu.Status = us.Status
	}
	stu.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, stu)
}

// Delete removes students and returns any district seats they held.
func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		stu, err := svc.repo.GetStudent(ctx, GetFilter{ID: id})
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				continue
			}
			return err
		}
		if _, err := svc.alloc.Release(ctx, stu.DistrictID, stu.License); err != nil {
			return err
		}
	}
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}
