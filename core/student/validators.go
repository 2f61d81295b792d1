package student

import (
	"github.com/go-playground/validator/v10"

	"github.com/shulehq/shule/core"
)

var (
	gradeLevelTag  = "gradelevel"
	gradeLevelText = "invalid grade level (K-12)"
)

func init() {
	_ = core.Validate.RegisterValidation(gradeLevelTag, gradeLevelValidation)
	core.RegisterCustomTranslation(gradeLevelTag, gradeLevelText)
}

func gradeLevelValidation(fl validator.FieldLevel) bool {
	return ValidGradeLevel(fl.Field().String())
}
