package district

import (
	"regexp"
	"time"

	"github.com/shulehq/shule/core"
)

// Curriculum frameworks a district may follow.
const (
	CurriculumCommonCore = "common_core"
	CurriculumTEKS       = "teks"
	CurriculumNGSS       = "ngss"
	CurriculumStateOther = "state_other"
)

var Curricula = []string{CurriculumCommonCore, CurriculumTEKS, CurriculumNGSS, CurriculumStateOther}

var zipRegex = regexp.MustCompile(`^\d{5}$`)

// ValidZIP reports whether zip is a 5-digit US ZIP code.
func ValidZIP(zip string) bool {
	return zipRegex.MatchString(zip)
}

type District struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	ZIPCodes    []string  `json:"zip_codes"`
	Curriculum  string    `json:"curriculum"`
	Standards   []string  `json:"standards"`
	SeatsTotal  int       `json:"seats_total"`
	SeatsUsed   int       `json:"seats_used"`
	ManualEntry bool      `json:"manual_entry"` // created via parent manual entry, no seat allocation
	CreatedAt   time.Time `json:"created_at"`   // UTC
	UpdatedAt   time.Time `json:"updated_at"`   // UTC
}

func (d District) SeatsLeft() int {
	if left := d.SeatsTotal - d.SeatsUsed; left > 0 {
		return left
	}
	return 0
}

// NewDistrict contains information needed to register a new District.
type NewDistrict struct {
	Name       string   `json:"name" validate:"required"`
	State      string   `json:"state" validate:"required,len=2,alpha"`
	ZIPCodes   []string `json:"zip_codes" validate:"omitempty,dive,len=5,numeric"`
	Curriculum string   `json:"curriculum" validate:"required,curriculum"`
	Standards  []string `json:"standards"`
	SeatsTotal int      `json:"seats_total" validate:"gte=0"`
}

func (nd *NewDistrict) Validate() error {
	nd.Name = core.CleanString(nd.Name)
	nd.State = core.CleanString(nd.State, true /* lower */)
	nd.Curriculum = core.CleanString(nd.Curriculum, true /* lower */)
	return core.Validate.Struct(nd)
}

// ManualDistrict is the manual-entry fallback used during student onboarding
// when ZIP detection fails. It carries no seat pool.
type ManualDistrict struct {
	Name       string `json:"name" validate:"required"`
	State      string `json:"state" validate:"required,len=2,alpha"`
	Curriculum string `json:"curriculum" validate:"required,curriculum"`
}

func (md *ManualDistrict) Validate() error {
	md.Name = core.CleanString(md.Name)
	md.State = core.CleanString(md.State, true /* lower */)
	md.Curriculum = core.CleanString(md.Curriculum, true /* lower */)
	return core.Validate.Struct(md)
}

// UpdateDistrict defines what information may be provided to modify an
// existing District. Zero-value fields are left untouched.
type UpdateDistrict struct {
	Name       string   `json:"name"`
	ZIPCodes   []string `json:"zip_codes" validate:"omitempty,dive,len=5,numeric"`
	Curriculum string   `json:"curriculum" validate:"omitempty,curriculum"`
	Standards  []string `json:"standards"`
	SeatsTotal *int     `json:"seats_total" validate:"omitempty,gte=0"`
}

func (ud *UpdateDistrict) Validate() error {
	ud.Name = core.CleanString(ud.Name)
	ud.Curriculum = core.CleanString(ud.Curriculum, true /* lower */)
	return core.Validate.Struct(ud)
}

type QueryFilter struct {
	Search string `query:"search"`
	State  string `query:"state"`
	ZIP    string `query:"zip"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.State = core.CleanString(qf.State, true /* lower */)
	qf.ZIP = core.CleanString(qf.ZIP)
}

// GetFilter selects a single District. Fields are tried in order; first non-empty wins.
type GetFilter struct {
	ID  string
	ZIP string
	// NameState matches on lower(name) + state; used to dedupe manual entries.
	Name  string
	State string
}
