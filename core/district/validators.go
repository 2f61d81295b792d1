package district

import (
	"github.com/go-playground/validator/v10"

	"github.com/shulehq/shule/core"
)

var (
	curriculumTag  = "curriculum"
	curriculumText = "invalid curriculum framework"
)

func init() {
	_ = core.Validate.RegisterValidation(curriculumTag, curriculumValidation)
	core.RegisterCustomTranslation(curriculumTag, curriculumText)
}

// curriculumValidation only allows known curriculum frameworks.
func curriculumValidation(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	for _, c := range Curricula {
		if val == c {
			return true
		}
	}
	return false
}
