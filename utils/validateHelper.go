package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs go-playground/validator tags over input structs
// (materiality configs, rule definitions) before they reach the DB.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
