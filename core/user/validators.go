package user

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/cohort/core"
)

var (
	userRoleTag  = "userrole"
	userRoleText = "{0} must be one of admin, mentor or student"
)

func init() {
	_ = core.Validate.RegisterValidation(userRoleTag, userRoleValidation)
	core.RegisterCustomTranslation(userRoleTag, userRoleText)
}

func userRoleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}
