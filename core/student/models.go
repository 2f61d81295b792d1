package student

import (
	"time"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/license"
)

// Grade levels K-12.
var GradeLevels = []string{"K", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

func ValidGradeLevel(grade string) bool {
	for _, g := range GradeLevels {
		if grade == g {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusEnrolled Status = "enrolled"
	StatusPending  Status = "pending" // awaiting license activation
	StatusInactive Status = "inactive"
)

// LearningProfile captures the learner-facing part of the onboarding record.
// All fields optional.
type LearningProfile struct {
	Disabilities   []string `json:"disabilities"`
	LearningStyles []string `json:"learning_styles"`
	Accommodations []string `json:"accommodations"`
	Interests      []string `json:"interests"`
	Notes          string   `json:"notes"`
}

// ConsentRecord is the compliance gate for an enrollment. The three required
// grants must all be true before a draft can be finalized.
type ConsentRecord struct {
	ParentalConsent  bool `json:"parental_consent"`
	FERPAAgreement   bool `json:"ferpa_agreement"`
	DistrictApproval bool `json:"district_approval"`

	// optional grants
	DataSharingOptIn   bool `json:"data_sharing_opt_in"`
	AnonymousAnalytics bool `json:"anonymous_analytics"`

	Version     string    `json:"version"`
	ConsentedAt time.Time `json:"consented_at"` // UTC
}

func (c ConsentRecord) RequiredGranted() bool {
	return c.ParentalConsent && c.FERPAAgreement && c.DistrictApproval
}

type Student struct {
	ID           string          `json:"id"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	DateOfBirth  time.Time       `json:"date_of_birth"`
	GradeLevel   string          `json:"grade_level"`
	DistrictID   string          `json:"district_id"`
	ParentUserID string          `json:"parent_user_id"`
	Profile      LearningProfile `json:"profile"`
	Consent      ConsentRecord   `json:"consent"`
	License      license.License `json:"license"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"` // UTC
	UpdatedAt    time.Time       `json:"updated_at"` // UTC
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	FirstName  string           `json:"first_name"`
	LastName   string           `json:"last_name"`
	GradeLevel string           `json:"grade_level" validate:"omitempty,gradelevel"`
	Profile    *LearningProfile `json:"profile"`
	Status     Status           `json:"status" validate:"omitempty,oneof=enrolled pending inactive"`
}

func (us *UpdateStudent) Validate() error {
	us.FirstName = core.CleanString(us.FirstName)
	us.LastName = core.CleanString(us.LastName)
	return core.Validate.Struct(us)
}

type QueryFilter struct {
	Search        string `query:"search"`
	GradeLevel    string `query:"grade"`
	DistrictID    string `query:"district"`
	ParentUserID  string `query:"parent"`
	LicenseType   string `query:"license_type"`
	LicenseStatus string `query:"license_status"`

	// TrialExpiredBefore selects active trials whose expiry precedes the given instant.
	TrialExpiredBefore time.Time
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

type GetFilter struct {
	ID string
}
