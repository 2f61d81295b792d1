package student

import (
	"time"

	"github.com/pkg/errors"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/license"
)

// Step is one of the five linear onboarding wizard steps.
type Step string

const (
	StepBasicInfo       Step = "basic_info"
	StepLocation        Step = "location"
	StepLearningProfile Step = "learning_profile"
	StepConsent         Step = "consent"
	StepLicense         Step = "license"
)

// Steps in wizard order.
var Steps = []Step{StepBasicInfo, StepLocation, StepLearningProfile, StepConsent, StepLicense}

func (s Step) Index() int {
	for i, step := range Steps {
		if s == step {
			return i
		}
	}
	return -1
}

func (s Step) Valid() bool { return s.Index() >= 0 }

func (s Step) next() (Step, bool) {
	i := s.Index()
	if i < 0 || i == len(Steps)-1 {
		return s, false
	}
	return Steps[i+1], true
}

func (s Step) prev() (Step, bool) {
	i := s.Index()
	if i <= 0 {
		return s, false
	}
	return Steps[i-1], true
}

var (
	ErrSessionNotFound  = errors.New("onboarding session not found")
	ErrSessionCompleted = errors.New("onboarding session already completed")
)

// BasicInfo is the first wizard step.
type BasicInfo struct {
	FirstName   string    `json:"first_name" validate:"required"`
	LastName    string    `json:"last_name" validate:"required"`
	DateOfBirth time.Time `json:"date_of_birth" validate:"required"`
	GradeLevel  string    `json:"grade_level" validate:"required,gradelevel"`
}

func (bi *BasicInfo) Validate() error {
	bi.FirstName = core.CleanString(bi.FirstName)
	bi.LastName = core.CleanString(bi.LastName)
	bi.GradeLevel = core.CleanString(bi.GradeLevel, true /* lower */)
	if bi.GradeLevel == "k" {
		bi.GradeLevel = "K"
	}
	if err := core.Validate.Struct(bi); err != nil {
		return err
	}
	if !bi.DateOfBirth.Before(time.Now()) {
		return core.NewValidationError(nil, core.FieldError{Field: "date_of_birth", Error: "date of birth must be in the past"})
	}
	return nil
}

// Location is the second wizard step. Exactly one of DistrictID (ZIP-detected)
// or Manual must end up set; the two are mutually exclusive.
type Location struct {
	ZIP        string                   `json:"zip" validate:"omitempty,len=5,numeric"`
	DistrictID string                   `json:"district_id"`
	Manual     *district.ManualDistrict `json:"manual"`
}

func (loc *Location) Validate() error {
	loc.ZIP = core.CleanString(loc.ZIP)
	if err := core.Validate.Struct(loc); err != nil {
		return err
	}
	if loc.DistrictID != "" && loc.Manual != nil {
		return core.NewValidationError(errors.New("detected district and manual entry are mutually exclusive"))
	}
	if loc.DistrictID == "" && loc.Manual == nil && loc.ZIP == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "zip", Error: "a ZIP code or manual district entry is required"})
	}
	if loc.Manual != nil {
		return loc.Manual.Validate()
	}
	return nil
}

// ConsentStep is the fourth wizard step. All three required grants must be
// true for the step to validate; the record cannot proceed otherwise.
type ConsentStep struct {
	ParentalConsent    bool   `json:"parental_consent"`
	FERPAAgreement     bool   `json:"ferpa_agreement"`
	DistrictApproval   bool   `json:"district_approval"`
	DataSharingOptIn   bool   `json:"data_sharing_opt_in"`
	AnonymousAnalytics bool   `json:"anonymous_analytics"`
	Version            string `json:"version"`
}

func (cs *ConsentStep) Validate() error {
	var flds []core.FieldError
	if !cs.ParentalConsent {
		flds = append(flds, core.FieldError{Field: "parental_consent", Error: "parental consent is required"})
	}
	if !cs.FERPAAgreement {
		flds = append(flds, core.FieldError{Field: "ferpa_agreement", Error: "FERPA agreement is required"})
	}
	if !cs.DistrictApproval {
		flds = append(flds, core.FieldError{Field: "district_approval", Error: "district approval is required"})
	}
	if flds != nil {
		return core.NewValidationError(errors.New("required consents missing"), flds...)
	}
	return nil
}

// LicenseStep is the fifth wizard step.
type LicenseStep struct {
	Type license.Type `json:"type" validate:"omitempty,oneof=district parent trial"`
}

func (ls *LicenseStep) Validate() error {
	if ls.Type == "" {
		ls.Type = license.TypeDistrict
	}
	return core.Validate.Struct(ls)
}

// Draft is the accumulator merged across wizard steps. A nil section means
// its step has not been submitted yet.
type Draft struct {
	BasicInfo *BasicInfo       `json:"basic_info,omitempty"`
	Location  *Location        `json:"location,omitempty"`
	Profile   *LearningProfile `json:"learning_profile,omitempty"`
	Consent   *ConsentRecord   `json:"consent,omitempty"`
	License   *LicenseStep     `json:"license,omitempty"`
}

// StepPayload is one advance submission. Only the section matching Step is read.
type StepPayload struct {
	Step Step `json:"step"`

	BasicInfo *BasicInfo       `json:"basic_info,omitempty"`
	Location  *Location        `json:"location,omitempty"`
	Profile   *LearningProfile `json:"learning_profile,omitempty"`
	Consent   *ConsentStep     `json:"consent,omitempty"`
	License   *LicenseStep     `json:"license,omitempty"`
}

// Session is a persisted run of the onboarding wizard.
type Session struct {
	ID           string    `json:"id"`
	ParentUserID string    `json:"parent_user_id"`
	Step         Step      `json:"step"`
	Draft        Draft     `json:"draft"`
	StudentID    string    `json:"student_id,omitempty"` // set on completion
	CreatedAt    time.Time `json:"created_at"`           // UTC
	UpdatedAt    time.Time `json:"updated_at"`           // UTC
	CompletedAt  time.Time `json:"completed_at"`         // UTC; zero while in progress
}

func (s *Session) Completed() bool { return !s.CompletedAt.IsZero() }

// Advance validates the payload for the session's current step and merges it
// into the draft. Moves to the next step, or stays on the last one.
func (s *Session) Advance(payload StepPayload) error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	if !payload.Step.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "step", Error: "unknown step"})
	}
	if payload.Step != s.Step {
		return core.NewValidationError(
			errors.Errorf("expected step %q, got %q", s.Step, payload.Step),
			core.FieldError{Field: "step", Error: "steps must be completed in order"},
		)
	}

	switch s.Step {
	case StepBasicInfo:
		if payload.BasicInfo == nil {
			return missingSection("basic_info")
		}
		if err := payload.BasicInfo.Validate(); err != nil {
			return err
		}
		s.Draft.mergeBasicInfo(*payload.BasicInfo)
	case StepLocation:
		if payload.Location == nil {
			return missingSection("location")
		}
		if err := payload.Location.Validate(); err != nil {
			return err
		}
		s.Draft.mergeLocation(*payload.Location)
	case StepLearningProfile:
		if payload.Profile == nil {
			return missingSection("learning_profile")
		}
		s.Draft.mergeProfile(*payload.Profile)
	case StepConsent:
		if payload.Consent == nil {
			return missingSection("consent")
		}
		if err := payload.Consent.Validate(); err != nil {
			return err
		}
		s.Draft.mergeConsent(*payload.Consent)
	case StepLicense:
		if payload.License == nil {
			return missingSection("license")
		}
		if err := payload.License.Validate(); err != nil {
			return err
		}
		s.Draft.License = payload.License
	}

	if next, ok := s.Step.next(); ok {
		s.Step = next
	}
	return nil
}

// Back moves one step back. Draft data entered so far is never discarded.
func (s *Session) Back() error {
	if s.Completed() {
		return ErrSessionCompleted
	}
	prev, ok := s.Step.prev()
	if !ok {
		return core.NewValidationError(errors.New("already at the first step"))
	}
	s.Step = prev
	return nil
}

// readyToComplete checks that every step has been submitted.
func (s *Session) readyToComplete() error {
	var flds []core.FieldError
	if s.Draft.BasicInfo == nil {
		flds = append(flds, core.FieldError{Field: string(StepBasicInfo), Error: "step not completed"})
	}
	if s.Draft.Location == nil {
		flds = append(flds, core.FieldError{Field: string(StepLocation), Error: "step not completed"})
	}
	if s.Draft.Profile == nil {
		flds = append(flds, core.FieldError{Field: string(StepLearningProfile), Error: "step not completed"})
	}
	if s.Draft.Consent == nil {
		flds = append(flds, core.FieldError{Field: string(StepConsent), Error: "step not completed"})
	}
	if s.Draft.License == nil {
		flds = append(flds, core.FieldError{Field: string(StepLicense), Error: "step not completed"})
	}
	if flds != nil {
		return core.NewValidationError(errors.New("onboarding incomplete"), flds...)
	}
	if !s.Draft.Consent.RequiredGranted() {
		return core.NewValidationError(errors.New("required consents missing"))
	}
	return nil
}

func missingSection(name string) error {
	return core.NewValidationError(nil, core.FieldError{Field: name, Error: "this step's data is required"})
}

// merge helpers: incoming zero-values never clear previously entered data, so
// going back and resubmitting a step keeps whatever the re-submission omits.

func (d *Draft) mergeBasicInfo(in BasicInfo) {
	if d.BasicInfo == nil {
		d.BasicInfo = &in
		return
	}
	if in.FirstName != "" {
		d.BasicInfo.FirstName = in.FirstName
	}
	if in.LastName != "" {
		d.BasicInfo.LastName = in.LastName
	}
	if !in.DateOfBirth.IsZero() {
		d.BasicInfo.DateOfBirth = in.DateOfBirth
	}
	if in.GradeLevel != "" {
		d.BasicInfo.GradeLevel = in.GradeLevel
	}
}

func (d *Draft) mergeLocation(in Location) {
	// the two sources are exclusive: picking one clears the other
	if d.Location == nil {
		d.Location = &in
		return
	}
	if in.DistrictID != "" {
		d.Location.DistrictID = in.DistrictID
		d.Location.ZIP = in.ZIP
		d.Location.Manual = nil
		return
	}
	if in.Manual != nil {
		d.Location.Manual = in.Manual
		d.Location.DistrictID = ""
		d.Location.ZIP = ""
	}
}

func (d *Draft) mergeProfile(in LearningProfile) {
	if d.Profile == nil {
		d.Profile = &in
		return
	}
	if in.Disabilities != nil {
		d.Profile.Disabilities = in.Disabilities
	}
	if in.LearningStyles != nil {
		d.Profile.LearningStyles = in.LearningStyles
	}
	if in.Accommodations != nil {
		d.Profile.Accommodations = in.Accommodations
	}
	if in.Interests != nil {
		d.Profile.Interests = in.Interests
	}
	if in.Notes != "" {
		d.Profile.Notes = in.Notes
	}
}

func (d *Draft) mergeConsent(in ConsentStep) {
	version := in.Version
	if version == "" && d.Consent != nil {
		version = d.Consent.Version
	}
	d.Consent = &ConsentRecord{
		ParentalConsent:    in.ParentalConsent,
		FERPAAgreement:     in.FERPAAgreement,
		DistrictApproval:   in.DistrictApproval,
		DataSharingOptIn:   in.DataSharingOptIn,
		AnonymousAnalytics: in.AnonymousAnalytics,
		Version:            version,
		ConsentedAt:        time.Now().UTC(),
	}
}
