package iep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core"
)

var (
	// errors
	ErrNotFound = errors.New("IEP not found")
	ErrArchived = errors.New("IEP is archived")
)

type (
	Repository interface {
		CreateIEP(ctx context.Context, doc IEP) (IEP, error)
		GetIEP(ctx context.Context, id string) (IEP, error)
		FilterIEPs(ctx context.Context, studentID string) ([]IEP, error)
		UpdateIEP(ctx context.Context, doc IEP) (IEP, error)
		DeleteIEPsByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo Repository
		log  core.Logger
	}
)

func NewService(repo Repository, log core.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (svc *Service) Create(ctx context.Context, ni NewIEP) (IEP, error) {
	now := time.Now().UTC()
	doc := IEP{
		ID:        uuid.New().String(),
		StudentID: ni.StudentID,
		Status:    StatusDraft,
		Goals:     ni.Goals,
		Services:  ni.Services,
		Placement: ni.Placement,
		Team:      ni.Team,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := range doc.Goals {
		doc.Goals[i].ID = uuid.New().String()
	}
	return svc.repo.CreateIEP(ctx, doc)
}

func (svc *Service) GetByID(ctx context.Context, id string) (IEP, error) {
	return svc.repo.GetIEP(ctx, id)
}

func (svc *Service) QueryByStudent(ctx context.Context, studentID string) ([]IEP, error) {
	return svc.repo.FilterIEPs(ctx, studentID)
}

func (svc *Service) Update(ctx context.Context, id string, ui UpdateIEP) (IEP, error) {
	doc, err := svc.mutable(ctx, id)
	if err != nil {
		return IEP{}, err
	}
	if ui.Goals != nil {
		doc.Goals = ui.Goals
		for i := range doc.Goals {
			if doc.Goals[i].ID == "" {
				doc.Goals[i].ID = uuid.New().String()
			}
		}
	}
	if ui.Services != nil {
		doc.Services = ui.Services
	}
	if ui.Placement != nil {
		doc.Placement = *ui.Placement
	}
	if ui.Team != nil {
		doc.Team = ui.Team
	}
	doc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateIEP(ctx, doc)
}

// Activate makes a draft IEP effective. Requires at least one goal, a valid
// placement split and at least one team member.
func (svc *Service) Activate(ctx context.Context, id string) (IEP, error) {
	doc, err := svc.mutable(ctx, id)
	if err != nil {
		return IEP{}, err
	}

	var flds []core.FieldError
	if len(doc.Goals) == 0 {
		flds = append(flds, core.FieldError{Field: "goals", Error: "at least one goal is required"})
	}
	if !doc.Placement.Valid() {
		flds = append(flds, core.FieldError{Field: "placement", Error: "placement percentages must sum to 100"})
	}
	if len(doc.Team) == 0 {
		flds = append(flds, core.FieldError{Field: "team", Error: "at least one team member is required"})
	}
	if flds != nil {
		return IEP{}, core.NewValidationError(errors.New("IEP not ready for activation"), flds...)
	}

	now := time.Now().UTC()
	doc.Status = StatusActive
	doc.EffectiveAt = now
	if doc.ReviewAt.IsZero() {
		doc.ReviewAt = now.AddDate(1, 0, 0) // annual review by default
	}
	doc.UpdatedAt = now
	return svc.repo.UpdateIEP(ctx, doc)
}

func (svc *Service) ScheduleReview(ctx context.Context, id string, at time.Time) (IEP, error) {
	doc, err := svc.mutable(ctx, id)
	if err != nil {
		return IEP{}, err
	}
	if !at.After(time.Now()) {
		return IEP{}, core.NewValidationError(nil, core.FieldError{Field: "review_at", Error: "review date must be in the future"})
	}
	doc.ReviewAt = at.UTC()
	doc.Status = StatusReview
	doc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateIEP(ctx, doc)
}

func (svc *Service) RecordMeeting(ctx context.Context, id string, nm NewMeeting) (IEP, error) {
	doc, err := svc.mutable(ctx, id)
	if err != nil {
		return IEP{}, err
	}
	doc.Meetings = append(doc.Meetings, Meeting{
		ID:          uuid.New().String(),
		Kind:        nm.Kind,
		ScheduledAt: nm.ScheduledAt.UTC(),
		HeldAt:      nm.HeldAt.UTC(),
		Notes:       nm.Notes,
		Attendees:   nm.Attendees,
	})
	doc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateIEP(ctx, doc)
}

func (svc *Service) UpdateGoalProgress(ctx context.Context, id, goalID string, progress int) (IEP, error) {
	if progress < 0 || progress > 100 {
		return IEP{}, core.NewValidationError(nil, core.FieldError{Field: "progress", Error: "progress must be between 0 and 100"})
	}
	doc, err := svc.mutable(ctx, id)
	if err != nil {
		return IEP{}, err
	}
	var found bool
	for i := range doc.Goals {
		if doc.Goals[i].ID == goalID {
			doc.Goals[i].Progress = progress
			found = true
			break
		}
	}
	if !found {
		return IEP{}, core.NewValidationError(nil, core.FieldError{Field: "goal_id", Error: "goal not found"})
	}
	doc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateIEP(ctx, doc)
}

func (svc *Service) Archive(ctx context.Context, id string) (IEP, error) {
	doc, err := svc.repo.GetIEP(ctx, id)
	if err != nil {
		return IEP{}, err
	}
	doc.Status = StatusArchived
	doc.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateIEP(ctx, doc)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteIEPsByID(ctx, ids...)
}

// mutable loads an IEP and rejects mutation of archived documents.
func (svc *Service) mutable(ctx context.Context, id string) (IEP, error) {
	doc, err := svc.repo.GetIEP(ctx, id)
	if err != nil {
		return IEP{}, err
	}
	if doc.Status == StatusArchived {
		return IEP{}, errors.Wrap(ErrArchived, "loading IEP")
	}
	return doc, nil
}
