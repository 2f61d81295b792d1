package iep_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/shulehq/shule/core/iep"
	inmemdb "github.com/shulehq/shule/storage/database/inmem"
	testutil "github.com/shulehq/shule/tests"
)

func newService() *iep.Service {
	return iep.NewService(inmemdb.NewIEPRepository(inmemdb.NewDB()), testutil.NopLogger{})
}

func readyIEP() iep.NewIEP {
	return iep.NewIEP{
		StudentID: "stu1",
		Goals: []iep.Goal{{
			Area:        iep.AreaAcademic,
			Description: "Reading comprehension at grade level",
			Target:      "80% accuracy on grade-level passages",
		}},
		Services:  []iep.RelatedService{{Kind: "speech therapy", MinutesPerWeek: 60}},
		Placement: iep.Placement{GeneralEdPercent: 70, SpecialEdPercent: 20, RelatedPercent: 10},
		Team:      []iep.TeamMember{{Name: "Pat Smith", Role: "case manager"}},
	}
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	doc, err := svc.Create(ctx, readyIEP())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if doc.Status != iep.StatusDraft {
		t.Errorf("Status = %s; want %s", doc.Status, iep.StatusDraft)
	}
	if doc.ID == "" {
		t.Error("ID not assigned")
	}
	for _, g := range doc.Goals {
		if g.ID == "" {
			t.Error("goal ID not assigned")
		}
	}

	docs, err := svc.QueryByStudent(ctx, "stu1")
	if err != nil {
		t.Fatalf("QueryByStudent() failed: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("docs = %d; want 1", len(docs))
	}
}

func TestService_Activate(t *testing.T) {
	ctx := context.Background()

	t.Run("ready draft activates with a default annual review", func(t *testing.T) {
		svc := newService()
		doc, err := svc.Create(ctx, readyIEP())
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		got, err := svc.Activate(ctx, doc.ID)
		if err != nil {
			t.Fatalf("Activate() failed: %v", err)
		}
		if got.Status != iep.StatusActive {
			t.Errorf("Status = %s; want %s", got.Status, iep.StatusActive)
		}
		if got.EffectiveAt.IsZero() {
			t.Error("EffectiveAt not stamped")
		}
		want := got.EffectiveAt.AddDate(1, 0, 0)
		if !got.ReviewAt.Equal(want) {
			t.Errorf("ReviewAt = %s; want %s", got.ReviewAt, want)
		}
	})

	t.Run("activation requirements", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*iep.NewIEP)
		}{
			{"no goals", func(ni *iep.NewIEP) { ni.Goals = nil }},
			{"placement does not sum to 100", func(ni *iep.NewIEP) { ni.Placement.RelatedPercent = 20 }},
			{"no team", func(ni *iep.NewIEP) { ni.Team = nil }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				svc := newService()
				ni := readyIEP()
				tt.mutate(&ni)
				doc, err := svc.Create(ctx, ni)
				if err != nil {
					t.Fatalf("Create() failed: %v", err)
				}
				if _, err := svc.Activate(ctx, doc.ID); err == nil {
					t.Error("expected activation to be rejected")
				}
			})
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		svc := newService()
		if _, err := svc.Activate(ctx, "nope"); errors.Cause(err) != iep.ErrNotFound {
			t.Errorf("err = %v; want ErrNotFound", err)
		}
	})
}

func TestService_ScheduleReview(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	doc, err := svc.Create(ctx, readyIEP())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if _, err := svc.ScheduleReview(ctx, doc.ID, time.Now().Add(-time.Hour)); err == nil {
		t.Error("expected a past review date to be rejected")
	}

	at := time.Now().Add(30 * 24 * time.Hour)
	got, err := svc.ScheduleReview(ctx, doc.ID, at)
	if err != nil {
		t.Fatalf("ScheduleReview() failed: %v", err)
	}
	if got.Status != iep.StatusReview {
		t.Errorf("Status = %s; want %s", got.Status, iep.StatusReview)
	}
	if !got.ReviewAt.Equal(at.UTC()) {
		t.Errorf("ReviewAt = %s; want %s", got.ReviewAt, at.UTC())
	}
}

func TestService_RecordMeeting(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	doc, err := svc.Create(ctx, readyIEP())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	sched := time.Date(2026, 9, 15, 14, 0, 0, 0, time.UTC)
	got, err := svc.RecordMeeting(ctx, doc.ID, iep.NewMeeting{
		Kind:        "annual",
		ScheduledAt: sched,
		HeldAt:      sched.Add(time.Hour),
		Notes:       "reviewed reading goal",
		Attendees:   []string{"Pat Smith", "Jane Doe"},
	})
	if err != nil {
		t.Fatalf("RecordMeeting() failed: %v", err)
	}
	if len(got.Meetings) != 1 {
		t.Fatalf("meetings = %d; want 1", len(got.Meetings))
	}
	if got.Meetings[0].ID == "" {
		t.Error("meeting ID not assigned")
	}
}

func TestNewMeeting_Validate(t *testing.T) {
	sched := time.Date(2026, 9, 15, 14, 0, 0, 0, time.UTC)
	nm := iep.NewMeeting{Kind: "Annual", ScheduledAt: sched, HeldAt: sched.Add(-time.Hour)}
	if err := nm.Validate(); err == nil {
		t.Error("expected a meeting held before scheduling to be rejected")
	}

	nm = iep.NewMeeting{Kind: "Annual", ScheduledAt: sched}
	if err := nm.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if nm.Kind != "annual" {
		t.Errorf("Kind = %q; want %q", nm.Kind, "annual")
	}
}

func TestService_UpdateGoalProgress(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	doc, err := svc.Create(ctx, readyIEP())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	goalID := doc.Goals[0].ID

	got, err := svc.UpdateGoalProgress(ctx, doc.ID, goalID, 45)
	if err != nil {
		t.Fatalf("UpdateGoalProgress() failed: %v", err)
	}
	if got.Goals[0].Progress != 45 {
		t.Errorf("Progress = %d; want 45", got.Goals[0].Progress)
	}

	if _, err := svc.UpdateGoalProgress(ctx, doc.ID, goalID, 101); err == nil {
		t.Error("expected progress above 100 to be rejected")
	}
	if _, err := svc.UpdateGoalProgress(ctx, doc.ID, goalID, -1); err == nil {
		t.Error("expected negative progress to be rejected")
	}
	if _, err := svc.UpdateGoalProgress(ctx, doc.ID, "nope", 50); err == nil {
		t.Error("expected an unknown goal to be rejected")
	}
}

func TestService_Archive(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	doc, err := svc.Create(ctx, readyIEP())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := svc.Archive(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Archive() failed: %v", err)
	}
	if got.Status != iep.StatusArchived {
		t.Errorf("Status = %s; want %s", got.Status, iep.StatusArchived)
	}

	// archived documents are immutable
	if _, err := svc.Update(ctx, doc.ID, iep.UpdateIEP{Team: []iep.TeamMember{{Name: "X", Role: "Y"}}}); err == nil {
		t.Error("expected Update on an archived IEP to be rejected")
	}
	if _, err := svc.Activate(ctx, doc.ID); err == nil {
		t.Error("expected Activate on an archived IEP to be rejected")
	}
	if _, err := svc.RecordMeeting(ctx, doc.ID, iep.NewMeeting{Kind: "annual", ScheduledAt: time.Now()}); err == nil {
		t.Error("expected RecordMeeting on an archived IEP to be rejected")
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	doc, err := svc.Create(ctx, readyIEP())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	got, err := svc.Update(ctx, doc.ID, iep.UpdateIEP{
		Goals: []iep.Goal{
			doc.Goals[0],
			{Area: iep.AreaSocial, Description: "Peer interaction", Target: "Initiates play twice daily"},
		},
		Placement: &iep.Placement{GeneralEdPercent: 60, SpecialEdPercent: 30, RelatedPercent: 10},
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if len(got.Goals) != 2 {
		t.Fatalf("goals = %d; want 2", len(got.Goals))
	}
	if got.Goals[0].ID != doc.Goals[0].ID {
		t.Error("existing goal ID must be preserved")
	}
	if got.Goals[1].ID == "" {
		t.Error("new goal must get an ID")
	}
	if got.Placement.GeneralEdPercent != 60 {
		t.Errorf("GeneralEdPercent = %d; want 60", got.Placement.GeneralEdPercent)
	}
	// untouched sections stay put
	if len(got.Services) != 1 || len(got.Team) != 1 {
		t.Error("services and team must be untouched")
	}
}
