package iep

import (
	"time"

	"github.com/shulehq/shule/core"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusActive   Status = "active"
	StatusReview   Status = "review"
	StatusArchived Status = "archived"
)

// Goal areas commonly tracked on an IEP.
const (
	AreaAcademic      = "academic"
	AreaBehavioral    = "behavioral"
	AreaCommunication = "communication"
	AreaMotor         = "motor"
	AreaSocial        = "social"
)

type Goal struct {
	ID          string   `json:"id"`
	Area        string   `json:"area" validate:"required,oneof=academic behavioral communication motor social"`
	Description string   `json:"description" validate:"required"`
	Baseline    string   `json:"baseline"`
	Target      string   `json:"target" validate:"required"`
	Objectives  []string `json:"objectives"`
	Progress    int      `json:"progress" validate:"gte=0,lte=100"` // percent
}

// RelatedService is a support service committed on the IEP (speech therapy,
// occupational therapy, counseling...).
type RelatedService struct {
	Kind           string `json:"kind" validate:"required"`
	Provider       string `json:"provider"`
	Location       string `json:"location"`
	MinutesPerWeek int    `json:"minutes_per_week" validate:"gt=0"`
}

// Placement is the time split across educational settings, in percent.
// The three shares must sum to exactly 100.
type Placement struct {
	GeneralEdPercent int `json:"general_ed_percent" validate:"gte=0,lte=100"`
	SpecialEdPercent int `json:"special_ed_percent" validate:"gte=0,lte=100"`
	RelatedPercent   int `json:"related_percent" validate:"gte=0,lte=100"`
}

func (p Placement) Total() int {
	return p.GeneralEdPercent + p.SpecialEdPercent + p.RelatedPercent
}

func (p Placement) Valid() bool { return p.Total() == 100 }

type TeamMember struct {
	Name  string `json:"name" validate:"required"`
	Role  string `json:"role" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type Meeting struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`         // annual, triennial, amendment...
	ScheduledAt time.Time `json:"scheduled_at"` // UTC
	HeldAt      time.Time `json:"held_at"`      // UTC; zero until held
	Notes       string    `json:"notes"`
	Attendees   []string  `json:"attendees"`
}

type IEP struct {
	ID          string           `json:"id"`
	StudentID   string           `json:"student_id"`
	Status      Status           `json:"status"`
	EffectiveAt time.Time        `json:"effective_at"` // UTC
	ReviewAt    time.Time        `json:"review_at"`    // UTC; next scheduled review
	Goals       []Goal           `json:"goals"`
	Services    []RelatedService `json:"services"`
	Placement   Placement        `json:"placement"`
	Team        []TeamMember     `json:"team"`
	Meetings    []Meeting        `json:"meetings"`
	CreatedAt   time.Time        `json:"created_at"` // UTC
	UpdatedAt   time.Time        `json:"updated_at"` // UTC
}

// NewIEP contains information needed to open a draft IEP.
type NewIEP struct {
	StudentID string           `json:"student_id" validate:"required"`
	Goals     []Goal           `json:"goals" validate:"omitempty,dive"`
	Services  []RelatedService `json:"services" validate:"omitempty,dive"`
	Placement Placement        `json:"placement"`
	Team      []TeamMember     `json:"team" validate:"omitempty,dive"`
}

func (ni *NewIEP) Validate() error {
	return core.Validate.Struct(ni)
}

// UpdateIEP defines what may be modified on a non-archived IEP.
type UpdateIEP struct {
	Goals     []Goal           `json:"goals" validate:"omitempty,dive"`
	Services  []RelatedService `json:"services" validate:"omitempty,dive"`
	Placement *Placement       `json:"placement"`
	Team      []TeamMember     `json:"team" validate:"omitempty,dive"`
}

func (ui *UpdateIEP) Validate() error {
	return core.Validate.Struct(ui)
}

// NewMeeting records an IEP team meeting.
type NewMeeting struct {
	Kind        string    `json:"kind" validate:"required"`
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	HeldAt      time.Time `json:"held_at"`
	Notes       string    `json:"notes"`
	Attendees   []string  `json:"attendees"`
}

func (nm *NewMeeting) Validate() error {
	nm.Kind = core.CleanString(nm.Kind, true /* lower */)
	if err := core.Validate.Struct(nm); err != nil {
		return err
	}
	if !nm.HeldAt.IsZero() && nm.HeldAt.Before(nm.ScheduledAt) {
		return core.NewValidationError(nil, core.FieldError{Field: "held_at", Error: "meeting cannot be held before it was scheduled"})
	}
	return nil
}
